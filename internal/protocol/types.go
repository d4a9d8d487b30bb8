package protocol

// EventName identifies a push-channel frame type
type EventName string

const (
	EventThought  EventName = "thought"
	EventPlan     EventName = "plan"
	EventStep     EventName = "step"
	EventSummary  EventName = "summary"
	EventError    EventName = "error"
	EventComplete EventName = "complete"
)

// Status values carried in frame payloads and service snapshots
const (
	StatusGenerating = "generating"
	StatusCompleted  = "completed"
	StatusWaiting    = "waiting"
	StatusExecuting  = "executing"
	StatusFailed     = "failed"
)

// SummaryFormat values accepted by the pipeline
const (
	SummaryFormatBrief     = "brief"
	SummaryFormatDetailed  = "detailed"
	SummaryFormatTechnical = "technical"
)

// StepNameExecutionStarted is the only step frame surfaced to the transcript;
// all other step payloads stay internal to the pipeline.
const StepNameExecutionStarted = "Task Execution Started"

// StreamRequest is the body sent when opening a push channel
type StreamRequest struct {
	ExecutionTargetID string `json:"executionTargetId"`
	UserQuery         string `json:"userQuery"`
	Stream            bool   `json:"stream"`
	SummaryFormat     string `json:"summaryFormat"`
}

// StreamEvent is a single frame received from the push channel
type StreamEvent struct {
	Event   EventName      `json:"event"`
	Payload map[string]any `json:"payload,omitempty"`
}

// PendingInput names a field the pipeline cannot proceed without
type PendingInput struct {
	StepID      string `json:"stepId"`
	Field       string `json:"field"`
	Description string `json:"description,omitempty"`
}

// SubmittedInput is one user-provided value resolving a pending input
type SubmittedInput struct {
	StepID string `json:"stepId"`
	Field  string `json:"field"`
	Value  string `json:"value"`
}

// StepOutput is the recorded output of one executed pipeline step
type StepOutput struct {
	StepName string `json:"stepName,omitempty"`
	Output   string `json:"output,omitempty"`
}

// TaskSnapshot is the task service's view of a task
type TaskSnapshot struct {
	ID          string       `json:"id,omitempty"`
	Status      string       `json:"status,omitempty"`
	Summary     string       `json:"summary,omitempty"`
	StepOutputs []StepOutput `json:"stepOutputs,omitempty"`
	Results     *TaskResults `json:"results,omitempty"`
}

// TaskResults is the nested result block of a task snapshot
type TaskResults struct {
	Summary   string           `json:"summary,omitempty"`
	Execution *ExecutionResult `json:"execution,omitempty"`
}

// OrchestrationSnapshot is the orchestration service's status view
type OrchestrationSnapshot struct {
	Status  string                `json:"status,omitempty"`
	Error   string                `json:"error,omitempty"`
	Summary string                `json:"summary,omitempty"`
	Results *OrchestrationResults `json:"results,omitempty"`
}

// OrchestrationResults is the nested result block of an orchestration snapshot
type OrchestrationResults struct {
	Summary   string           `json:"summary,omitempty"`
	Execution *ExecutionResult `json:"execution,omitempty"`
	TaskID    string           `json:"taskId,omitempty"`
}

// ExecutionResult describes a single execution attempt inside a snapshot.
// The upstream pipeline exposes its identifier as "_id".
type ExecutionResult struct {
	ID            string         `json:"_id,omitempty"`
	Summary       string         `json:"summary,omitempty"`
	Paused        bool           `json:"paused,omitempty"`
	PendingInputs []PendingInput `json:"pendingInputs,omitempty"`
}
