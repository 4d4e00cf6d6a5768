package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"satei/internal/pipeline"
)

// sseSink writes pipeline events as server-sent event frames, flushing
// after each one so the client sees progress as it happens. Writes stop
// silently once the client disconnects.
type sseSink struct {
	c *gin.Context
}

// startStream sets the SSE response headers and returns a sink bound to
// the request. Must be called before any body bytes are written.
func (s *Server) startStream(c *gin.Context) *sseSink {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	return &sseSink{c: c}
}

func (k *sseSink) send(event string, data any) {
	if k.c.Request.Context().Err() != nil {
		return
	}
	k.c.SSEvent(event, data)
	k.c.Writer.Flush()
}

func (k *sseSink) Log(code string, meta map[string]any) {
	payload := gin.H{"code": code}
	if meta != nil {
		payload["meta"] = meta
	}
	k.send("log", payload)
}

func (k *sseSink) Step(phase pipeline.Phase, index int, status pipeline.StepStatus) {
	k.send("step", gin.H{"phase": phase, "index": index, "status": status})
}

func (k *sseSink) Result(phase pipeline.Phase, payload any) {
	k.send("result", gin.H{"phase": phase, "payload": payload})
}

func (k *sseSink) Error(message string) {
	k.send("error", gin.H{"message": message})
}
