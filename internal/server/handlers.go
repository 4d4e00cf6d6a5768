package server

import (
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"satei/internal/apperr"
	"satei/internal/pipeline"
	"satei/internal/types"
)

const (
	visionFailedMsg = "VLM request failed"
	ragFailedMsg    = "RAG request failed"
)

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) describe(c *gin.Context) {
	file, mimeType, ok := s.imageUpload(c)
	if !ok {
		return
	}
	defer file.Close()

	desc, err := s.valuator.Describe(c.Request.Context(), file, mimeType, pipeline.NopSink{})
	if err != nil {
		s.writeError(c, err, visionFailedMsg)
		return
	}
	c.JSON(http.StatusOK, desc)
}

func (s *Server) describeStream(c *gin.Context) {
	file, mimeType, ok := s.imageUpload(c)
	if !ok {
		return
	}
	defer file.Close()

	sink := s.startStream(c)
	_, err := s.valuator.Describe(c.Request.Context(), file, mimeType, sink)
	s.logStreamError(c, err)
}

func (s *Server) estimate(c *gin.Context) {
	desc, ok := s.descriptionBody(c)
	if !ok {
		return
	}

	result, err := s.valuator.Estimate(c.Request.Context(), desc, pipeline.NopSink{})
	if err != nil {
		s.writeError(c, err, ragFailedMsg)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) estimateStream(c *gin.Context) {
	desc, ok := s.descriptionBody(c)
	if !ok {
		return
	}

	sink := s.startStream(c)
	_, err := s.valuator.Estimate(c.Request.Context(), desc, sink)
	s.logStreamError(c, err)
}

// imageUpload extracts the "image" multipart field and rejects non-image
// MIME types before any pipeline work starts.
func (s *Server) imageUpload(c *gin.Context) (multipart.File, string, bool) {
	f, header, err := c.Request.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "image file is required"})
		return nil, "", false
	}

	mimeType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(mimeType, "image/") {
		f.Close()
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Unsupported file type"})
		return nil, "", false
	}
	return f, mimeType, true
}

func (s *Server) descriptionBody(c *gin.Context) (types.InstrumentDescription, bool) {
	var desc types.InstrumentDescription
	if err := c.ShouldBindJSON(&desc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request body"})
		return desc, false
	}
	desc.Normalize()
	return desc, true
}

// writeError maps a pipeline error onto the synchronous response. Caller
// mistakes and unparseable model output travel back with their message;
// everything else becomes a generic message with the detail logged here.
func (s *Server) writeError(c *gin.Context, err error, generic string) {
	switch apperr.KindOf(err) {
	case apperr.KindBadInput, apperr.KindParse:
		c.JSON(http.StatusBadRequest, gin.H{"detail": apperr.CallerMessage(err, generic)})
	default:
		requestLogger(c, s.logger).Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": generic})
	}
}

// logStreamError records the server-side detail of a failed streaming run.
// The client already received its terminal error event from the pipeline.
func (s *Server) logStreamError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	switch apperr.KindOf(err) {
	case apperr.KindBadInput, apperr.KindParse:
		requestLogger(c, s.logger).Warn("stream rejected", zap.Error(err))
	default:
		requestLogger(c, s.logger).Error("stream failed", zap.Error(err))
	}
}
