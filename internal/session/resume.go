package session

import (
	"context"
	"fmt"

	"github.com/wsyeabsera/taskstream/internal/phase"
	"github.com/wsyeabsera/taskstream/internal/protocol"
)

// SubmitInputs resolves the pending input request: it clears the pending set
// first (so a second submission cannot race the first), appends a user entry
// summarizing the values, resumes the task, re-enters the executing phase,
// and arms the polling reconciliation loop. The original channel is not
// reopened after resume; polling is the sole source of truth until a
// terminal state.
//
// The context must outlive the poll loop: it governs both the resume call
// and every subsequent poll tick.
func (c *Controller) SubmitInputs(ctx context.Context, values []protocol.SubmittedInput) error {
	c.mu.Lock()

	if len(c.state.PendingInputs) == 0 {
		c.mu.Unlock()
		return fmt.Errorf("no pending inputs to resolve")
	}

	taskID := c.state.CurrentTaskID
	if taskID == "" {
		entry := c.log.AppendSystem("cannot resume: no task identifier is known for this execution")
		c.notifyEntryLocked(entry)
		c.mu.Unlock()
		return fmt.Errorf("no task id known, inputs not submitted")
	}

	// Clear before the service call so a concurrent second submission fails
	// the pending check rather than resuming twice.
	c.state.PendingInputs = nil
	c.notifyEntryLocked(c.log.ResolvePending(values))
	c.mu.Unlock()

	c.logger.Info("resuming task", "task_id", taskID, "inputs", len(values))

	if err := c.tasks.ResumeTask(ctx, taskID, values); err != nil {
		c.mu.Lock()
		c.failLocked(fmt.Sprintf("Error: resume failed: %v", err))
		c.mu.Unlock()
		return fmt.Errorf("failed to resume task %s: %w", taskID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.applyLiveLocked(contentExecuting, phase.Executing, true)
	c.state.IsStreaming = true
	c.armPollerLocked(ctx)

	return nil
}
