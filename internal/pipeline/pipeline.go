// Package pipeline implements the two-stage valuation flow: a vision call
// that turns an instrument photo into a structured description, and a
// retrieval-augmented pricing call that turns a description into a price
// estimate. Both stages report progress through a Sink.
package pipeline

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"satei/internal/apperr"
	"satei/internal/llm"
	"satei/internal/store"
	"satei/internal/types"
)

const (
	visionFailedMsg = "VLM request failed"
	ragFailedMsg    = "RAG request failed"
)

// Generator is the slice of the provider client the pipeline needs.
type Generator interface {
	GenerateVision(ctx context.Context, model string, params llm.RequestParams, instruction, imageURL string) (*llm.Output, error)
	GenerateText(ctx context.Context, model string, params llm.RequestParams, instruction, body string) (*llm.Output, error)
}

// Retriever finds reference records similar to a query text.
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]store.QueryResult, error)
}

// Config selects the models and generation options for both stages.
type Config struct {
	VisionModel string
	RAGModel    string
	Options     llm.Options
	TopK        int
}

// Pipeline executes the valuation flow. Request parameters for both models
// are validated at construction so an invalid model/option combination
// fails at startup, not on the first request.
type Pipeline struct {
	generator Generator
	retriever Retriever
	logger    *zap.Logger

	visionModel  string
	visionParams llm.RequestParams
	ragModel     string
	ragParams    llm.RequestParams
	topK         int
}

// New validates the configuration and builds a pipeline.
func New(generator Generator, retriever Retriever, cfg Config, logger *zap.Logger) (*Pipeline, error) {
	opts := cfg.Options
	// Both stages require structured output.
	opts.ForceJSONMode = true

	visionParams, err := llm.BuildRequestParams(cfg.VisionModel, opts)
	if err != nil {
		return nil, err
	}
	ragParams, err := llm.BuildRequestParams(cfg.RAGModel, opts)
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		generator:    generator,
		retriever:    retriever,
		logger:       logger,
		visionModel:  cfg.VisionModel,
		visionParams: visionParams,
		ragModel:     cfg.RAGModel,
		ragParams:    ragParams,
		topK:         cfg.TopK,
	}, nil
}

// Describe runs the vision stage: read the upload, encode it as a data URL,
// request a structured description and parse it. Events go to sink; on
// failure the terminal error event carries only what the caller may see.
func (p *Pipeline) Describe(ctx context.Context, image io.Reader, mimeType string, sink Sink) (types.InstrumentDescription, error) {
	desc, err := p.describe(ctx, image, mimeType, sink)
	if err != nil {
		sink.Error(apperr.CallerMessage(err, visionFailedMsg))
		return types.InstrumentDescription{}, err
	}
	sink.Result(PhaseVision, desc)
	return desc, nil
}

func (p *Pipeline) describe(ctx context.Context, image io.Reader, mimeType string, sink Sink) (types.InstrumentDescription, error) {
	var zero types.InstrumentDescription

	if !strings.HasPrefix(mimeType, "image/") {
		return zero, apperr.BadInput("unsupported file type")
	}

	sink.Log("vision.upload_received", nil)
	sink.Step(PhaseVision, 0, StepStart)
	data, err := io.ReadAll(image)
	if err != nil {
		return zero, apperr.BadInput("failed to read image upload: %v", err)
	}
	if len(data) == 0 {
		return zero, apperr.BadInput("empty image upload")
	}
	sink.Step(PhaseVision, 0, StepDone)

	sink.Step(PhaseVision, 1, StepStart)
	imageURL := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
	sink.Step(PhaseVision, 1, StepDone)
	sink.Log("vision.image_encoded", nil)

	sink.Log("vision.request_sent", nil)
	sink.Step(PhaseVision, 2, StepStart)
	output, err := p.generator.GenerateVision(ctx, p.visionModel, p.visionParams, descriptionPrompt, imageURL)
	if err != nil {
		return zero, err
	}
	sink.Step(PhaseVision, 2, StepDone)
	p.logOutput(PhaseVision, output, sink)

	sink.Step(PhaseVision, 3, StepStart)
	raw, err := llm.ExtractJSONObject(output.Text)
	if err != nil {
		return zero, err
	}
	desc, err := types.DecodeInstrumentDescription(raw)
	if err != nil {
		return zero, err
	}
	sink.Step(PhaseVision, 3, StepDone)
	sink.Log("vision.response_parsed", nil)

	return desc, nil
}

// Estimate runs the pricing stage: build a retrieval query from the
// description, fetch the top-k reference records, assemble the prompt
// context and request a structured estimate.
func (p *Pipeline) Estimate(ctx context.Context, desc types.InstrumentDescription, sink Sink) (types.ValuationResult, error) {
	result, err := p.estimate(ctx, desc, sink)
	if err != nil {
		sink.Error(apperr.CallerMessage(err, ragFailedMsg))
		return types.ValuationResult{}, err
	}
	sink.Result(PhaseRAG, result)
	return result, nil
}

func (p *Pipeline) estimate(ctx context.Context, desc types.InstrumentDescription, sink Sink) (types.ValuationResult, error) {
	var zero types.ValuationResult

	sink.Log("rag.query_build", nil)
	sink.Step(PhaseRAG, 0, StepStart)
	query := BuildQuery(desc)
	sink.Step(PhaseRAG, 0, StepDone)

	sink.Log("rag.retrieve_start", nil)
	sink.Step(PhaseRAG, 1, StepStart)
	entries, err := p.retriever.Query(ctx, query, p.topK)
	if err != nil {
		return zero, apperr.Upstream(err, "retrieval failed")
	}
	sink.Step(PhaseRAG, 1, StepDone)
	sink.Log("rag.retrieve_done", map[string]any{"count": len(entries)})

	sink.Log("rag.context_build", nil)
	sink.Step(PhaseRAG, 2, StepStart)
	context := BuildContext(entries)
	sink.Step(PhaseRAG, 2, StepDone)

	sink.Log("rag.request_sent", nil)
	sink.Step(PhaseRAG, 3, StepStart)
	body := fmt.Sprintf("Target\n%s\n\nReferences\n%s", query, context)
	output, err := p.generator.GenerateText(ctx, p.ragModel, p.ragParams, pricingPrompt, body)
	if err != nil {
		return zero, err
	}
	p.logOutput(PhaseRAG, output, sink)

	raw, err := llm.ExtractJSONObject(output.Text)
	if err != nil {
		return zero, err
	}
	result, err := types.DecodeValuationResult(raw)
	if err != nil {
		return zero, err
	}
	sink.Step(PhaseRAG, 3, StepDone)

	return result, nil
}

// logOutput surfaces usage counters and reasoning summaries as log events
// and server-side logs. Neither is guaranteed to be present.
func (p *Pipeline) logOutput(phase Phase, output *llm.Output, sink Sink) {
	if output.Usage != nil {
		sink.Log(string(phase)+".usage", map[string]any{
			"input_tokens":  output.Usage.InputTokens,
			"output_tokens": output.Usage.OutputTokens,
			"total_tokens":  output.Usage.TotalTokens,
		})
		p.logger.Debug("provider usage",
			zap.String("phase", string(phase)),
			zap.Int("input_tokens", output.Usage.InputTokens),
			zap.Int("output_tokens", output.Usage.OutputTokens),
			zap.Int("total_tokens", output.Usage.TotalTokens))
	}
	if len(output.ReasoningSummary) > 0 {
		sink.Log(string(phase)+".reasoning_summary", map[string]any{
			"lines": output.ReasoningSummary,
		})
		p.logger.Debug("reasoning summary",
			zap.String("phase", string(phase)),
			zap.Strings("lines", output.ReasoningSummary))
	}
}
