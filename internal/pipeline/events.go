package pipeline

// Phase identifies which half of the two-stage flow an event belongs to.
type Phase string

const (
	PhaseVision Phase = "vision"
	PhaseRAG    Phase = "rag"
)

// StepStatus marks the start or completion of a step.
type StepStatus string

const (
	StepStart StepStatus = "start"
	StepDone  StepStatus = "done"
)

// Sink receives progress events from a pipeline run. Within a phase, step
// index N's start precedes its done, and no step starts before the previous
// one is done. A run emits exactly one terminal event: Result on success,
// Error on failure, never both.
type Sink interface {
	Log(code string, meta map[string]any)
	Step(phase Phase, index int, status StepStatus)
	Result(phase Phase, payload any)
	Error(message string)
}

// NopSink discards all events. The synchronous endpoints use it so the
// pipeline has a single execution path for both endpoint flavors.
type NopSink struct{}

func (NopSink) Log(string, map[string]any)  {}
func (NopSink) Step(Phase, int, StepStatus) {}
func (NopSink) Result(Phase, any)           {}
func (NopSink) Error(string)                {}
