package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"satei/internal/apperr"
	"satei/internal/llm"
	"satei/internal/store"
	"satei/internal/types"
)

type fakeGenerator struct {
	visionText string
	visionErr  error
	textText   string
	textErr    error

	lastInstruction string
	lastBody        string
	lastImageURL    string
}

func (f *fakeGenerator) GenerateVision(ctx context.Context, model string, params llm.RequestParams, instruction, imageURL string) (*llm.Output, error) {
	f.lastInstruction = instruction
	f.lastImageURL = imageURL
	if f.visionErr != nil {
		return nil, f.visionErr
	}
	return &llm.Output{Text: f.visionText}, nil
}

func (f *fakeGenerator) GenerateText(ctx context.Context, model string, params llm.RequestParams, instruction, body string) (*llm.Output, error) {
	f.lastInstruction = instruction
	f.lastBody = body
	if f.textErr != nil {
		return nil, f.textErr
	}
	return &llm.Output{Text: f.textText}, nil
}

type fakeRetriever struct {
	results   []store.QueryResult
	err       error
	lastQuery string
	lastK     int
}

func (f *fakeRetriever) Query(ctx context.Context, text string, k int) ([]store.QueryResult, error) {
	f.lastQuery = text
	f.lastK = k
	return f.results, f.err
}

type sinkEvent struct {
	kind    string // "log", "step", "result", "error"
	code    string
	phase   Phase
	index   int
	status  StepStatus
	message string
	meta    map[string]any
}

// recordingSink captures the full event sequence for ordering assertions.
type recordingSink struct {
	events []sinkEvent
}

func (r *recordingSink) Log(code string, meta map[string]any) {
	r.events = append(r.events, sinkEvent{kind: "log", code: code, meta: meta})
}

func (r *recordingSink) Step(phase Phase, index int, status StepStatus) {
	r.events = append(r.events, sinkEvent{kind: "step", phase: phase, index: index, status: status})
}

func (r *recordingSink) Result(phase Phase, payload any) {
	r.events = append(r.events, sinkEvent{kind: "result", phase: phase})
}

func (r *recordingSink) Error(message string) {
	r.events = append(r.events, sinkEvent{kind: "error", message: message})
}

// assertStepOrdering checks the step protocol: index N's start precedes its
// done, and no index starts before the previous index is done.
func (r *recordingSink) assertStepOrdering(t *testing.T) {
	t.Helper()
	next := 0
	open := -1
	for _, ev := range r.events {
		if ev.kind != "step" {
			continue
		}
		switch ev.status {
		case StepStart:
			assert.Equal(t, -1, open, "step %d started while %d still open", ev.index, open)
			assert.Equal(t, next, ev.index, "steps must start in order")
			open = ev.index
		case StepDone:
			assert.Equal(t, open, ev.index, "done for a step that is not open")
			open = -1
			next = ev.index + 1
		}
	}
}

func (r *recordingSink) terminals() (results, errs int) {
	for _, ev := range r.events {
		switch ev.kind {
		case "result":
			results++
		case "error":
			errs++
		}
	}
	return
}

func (r *recordingSink) logCodes() []string {
	var codes []string
	for _, ev := range r.events {
		if ev.kind == "log" {
			codes = append(codes, ev.code)
		}
	}
	return codes
}

func newTestPipeline(t *testing.T, gen Generator, retr Retriever) *Pipeline {
	t.Helper()
	p, err := New(gen, retr, Config{
		VisionModel: "gpt-5-mini",
		RAGModel:    "gpt-5-mini",
		TopK:        4,
	}, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(&fakeGenerator{}, &fakeRetriever{}, Config{
		VisionModel: "gpt-5-mini",
		RAGModel:    "gpt-5-mini",
		Options:     llm.Options{ReasoningEffort: "ultra"},
	}, zap.NewNop())
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConfig))
}

func TestDescribeSuccess(t *testing.T) {
	gen := &fakeGenerator{
		visionText: "Here is the description:\n" +
			`{"category": "electric guitar", "brand": "Fender", "model": "ST62", "year": "2013",
			  "condition": "good", "materials": ["alder"], "features": [], "notes": ""}`,
	}
	p := newTestPipeline(t, gen, &fakeRetriever{})
	sink := &recordingSink{}

	desc, err := p.Describe(context.Background(), strings.NewReader("rawimagebytes"), "image/png", sink)
	require.NoError(t, err)
	assert.Equal(t, "Fender", desc.Brand)
	assert.Equal(t, []string{"alder"}, desc.Materials)

	assert.True(t, strings.HasPrefix(gen.lastImageURL, "data:image/png;base64,"))

	sink.assertStepOrdering(t)
	results, errs := sink.terminals()
	assert.Equal(t, 1, results)
	assert.Equal(t, 0, errs)
	assert.Equal(t, []string{
		"vision.upload_received",
		"vision.image_encoded",
		"vision.request_sent",
		"vision.response_parsed",
	}, sink.logCodes())
}

func TestDescribeRejectsNonImageMIME(t *testing.T) {
	p := newTestPipeline(t, &fakeGenerator{}, &fakeRetriever{})
	sink := &recordingSink{}

	_, err := p.Describe(context.Background(), strings.NewReader("x"), "application/pdf", sink)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindBadInput))

	results, errs := sink.terminals()
	assert.Equal(t, 0, results)
	assert.Equal(t, 1, errs)
}

func TestDescribeUpstreamFailureHidesDetail(t *testing.T) {
	gen := &fakeGenerator{
		visionErr: apperr.Upstream(errors.New("401 invalid api key"), "provider request failed"),
	}
	p := newTestPipeline(t, gen, &fakeRetriever{})
	sink := &recordingSink{}

	_, err := p.Describe(context.Background(), strings.NewReader("x"), "image/jpeg", sink)
	require.Error(t, err)

	results, errs := sink.terminals()
	assert.Equal(t, 0, results)
	require.Equal(t, 1, errs)
	for _, ev := range sink.events {
		if ev.kind == "error" {
			assert.Equal(t, "VLM request failed", ev.message)
			assert.NotContains(t, ev.message, "api key")
		}
	}
}

func TestDescribeUnparseableOutput(t *testing.T) {
	gen := &fakeGenerator{visionText: "I cannot see an instrument in this photo."}
	p := newTestPipeline(t, gen, &fakeRetriever{})
	sink := &recordingSink{}

	_, err := p.Describe(context.Background(), strings.NewReader("x"), "image/png", sink)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindParse))

	// Parse errors are caller-visible, so the event carries the real message.
	for _, ev := range sink.events {
		if ev.kind == "error" {
			assert.Contains(t, ev.message, "no JSON object")
		}
	}
}

func TestEstimateSuccess(t *testing.T) {
	retr := &fakeRetriever{results: []store.QueryResult{
		{Entry: types.RetrievalEntry{Title: "Fender Japan ST62", PriceJPY: 78000, Source: "reverb", Content: "alder body"}},
	}}
	gen := &fakeGenerator{
		textText: "Here is the result:\n" +
			`{"price_jpy": 120000, "range_jpy": [90000, 150000], "confidence": 0.7,
			  "rationale": "参考相場に基づく推定です。", "evidence": ["Fender Japan ST62 (78,000円)"]}`,
	}
	p := newTestPipeline(t, gen, retr)
	sink := &recordingSink{}

	desc := types.InstrumentDescription{Category: "electric guitar", Brand: "Fender", Model: "ST62"}
	result, err := p.Estimate(context.Background(), desc, sink)
	require.NoError(t, err)
	assert.Equal(t, 120000, result.PriceJPY)
	assert.Equal(t, [2]int{90000, 150000}, result.RangeJPY)

	assert.Equal(t, "category: electric guitar\nbrand: Fender\nmodel: ST62", retr.lastQuery)
	assert.Equal(t, 4, retr.lastK)
	assert.Contains(t, gen.lastBody, "Target\ncategory: electric guitar")
	assert.Contains(t, gen.lastBody, "References\n- Fender Japan ST62 | price_jpy: 78000 | source: reverb")

	sink.assertStepOrdering(t)
	results, errs := sink.terminals()
	assert.Equal(t, 1, results)
	assert.Equal(t, 0, errs)
	assert.Equal(t, []string{
		"rag.query_build",
		"rag.retrieve_start",
		"rag.retrieve_done",
		"rag.context_build",
		"rag.request_sent",
	}, sink.logCodes())
}

func TestEstimateRetrieveDoneCarriesCount(t *testing.T) {
	retr := &fakeRetriever{results: []store.QueryResult{
		{Entry: types.RetrievalEntry{Title: "A", PriceJPY: 1, Source: "s", Content: "c"}},
		{Entry: types.RetrievalEntry{Title: "B", PriceJPY: 2, Source: "s", Content: "c"}},
	}}
	gen := &fakeGenerator{
		textText: `{"price_jpy": 1, "range_jpy": [1, 2], "confidence": 0.1, "rationale": "低", "evidence": []}`,
	}
	p := newTestPipeline(t, gen, retr)
	sink := &recordingSink{}

	_, err := p.Estimate(context.Background(), types.InstrumentDescription{Brand: "x"}, sink)
	require.NoError(t, err)

	found := false
	for _, ev := range sink.events {
		if ev.kind == "log" && ev.code == "rag.retrieve_done" {
			found = true
			assert.Equal(t, 2, ev.meta["count"])
		}
	}
	assert.True(t, found)
}

func TestEstimateEmptyRetrievalStillEstimates(t *testing.T) {
	gen := &fakeGenerator{
		textText: `{"price_jpy": 10000, "range_jpy": [5000, 20000], "confidence": 0.2,
			"rationale": "参考情報が見つからないため信頼度は低いです。", "evidence": []}`,
	}
	p := newTestPipeline(t, gen, &fakeRetriever{})
	sink := &recordingSink{}

	result, err := p.Estimate(context.Background(), types.InstrumentDescription{Brand: "Unknown"}, sink)
	require.NoError(t, err)
	assert.Equal(t, 10000, result.PriceJPY)
	assert.Contains(t, gen.lastBody, "(no references found)")
}

func TestEstimateRetrieverFailure(t *testing.T) {
	retr := &fakeRetriever{err: errors.New("database is locked")}
	p := newTestPipeline(t, &fakeGenerator{}, retr)
	sink := &recordingSink{}

	_, err := p.Estimate(context.Background(), types.InstrumentDescription{Brand: "x"}, sink)
	require.Error(t, err)

	results, errs := sink.terminals()
	assert.Equal(t, 0, results)
	require.Equal(t, 1, errs)
	for _, ev := range sink.events {
		if ev.kind == "error" {
			assert.Equal(t, "RAG request failed", ev.message)
			assert.NotContains(t, ev.message, "locked")
		}
	}
}
