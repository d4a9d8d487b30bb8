package session

import (
	"fmt"

	"github.com/wsyeabsera/taskstream/internal/protocol"
)

// Placeholder strings shown on the live entry while a phase is in flight.
// The do-not-overwrite rule keys off this set: a fallback completion message
// may only replace content that is still one of these (or empty).
const (
	contentThinking    = "Thinking…"
	contentPlanning    = "Planning…"
	contentExecuting   = "Executing…"
	contentSummarizing = "Generating summary…"
	contentFinalizing  = "Finalizing…"
)

// contentCompleted is the canned message used when no summary text can be
// resolved from any payload location.
const contentCompleted = "Task completed."

// contentTimeout is appended when the poll loop exhausts its iteration bound.
const contentTimeout = "Timed out waiting for the pipeline to finish. The execution may still be running server-side."

func isPlaceholder(content string) bool {
	switch content {
	case "", contentThinking, contentPlanning, contentExecuting, contentSummarizing, contentFinalizing:
		return true
	}
	return false
}

// resolvePollSummary picks the best available summary text from the two
// snapshots. The priority order mirrors the payload shapes the pipeline has
// been observed to produce; if the upstream shape changes, this list is the
// only place to review.
func resolvePollSummary(orch *protocol.OrchestrationSnapshot, task *protocol.TaskSnapshot) string {
	if orch != nil {
		if orch.Results != nil {
			if orch.Results.Summary != "" {
				return orch.Results.Summary
			}
			if orch.Results.Execution != nil && orch.Results.Execution.Summary != "" {
				return orch.Results.Execution.Summary
			}
		}
		if orch.Summary != "" {
			return orch.Summary
		}
	}
	if task != nil {
		if task.Summary != "" {
			return task.Summary
		}
		if task.Results != nil {
			if task.Results.Summary != "" {
				return task.Results.Summary
			}
			if task.Results.Execution != nil && task.Results.Execution.Summary != "" {
				return task.Results.Execution.Summary
			}
		}
	}
	return stepOutputFallback(task)
}

// stepOutputFallback derives a completion message from the last non-empty
// tool-step output, or returns "" when none exists.
func stepOutputFallback(task *protocol.TaskSnapshot) string {
	if task == nil {
		return ""
	}
	for i := len(task.StepOutputs) - 1; i >= 0; i-- {
		if out := task.StepOutputs[i].Output; out != "" {
			return fmt.Sprintf("Task completed. Final output: %s", out)
		}
	}
	return ""
}

// resolveCompleteSummary picks the best available summary text from a
// complete frame's payload, in fixed priority order.
func resolveCompleteSummary(evt *protocol.StreamEvent) string {
	if s := evt.NestedString("results", "summary"); s != "" {
		return s
	}
	if s := evt.NestedString("results", "execution", "summary"); s != "" {
		return s
	}
	if s := evt.StringField("summary"); s != "" {
		return s
	}
	if s := evt.NestedString("execution", "summary"); s != "" {
		return s
	}
	return ""
}
