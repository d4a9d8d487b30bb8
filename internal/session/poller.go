package session

import (
	"context"
	"time"

	"github.com/wsyeabsera/taskstream/internal/phase"
	"github.com/wsyeabsera/taskstream/internal/protocol"
)

// armPollerLocked starts the polling reconciliation loop, canceling any
// previously running loop first so at most one loop is ever armed per
// session.
func (c *Controller) armPollerLocked(ctx context.Context) {
	c.stopPollerLocked()

	pollCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.pollCancel = cancel
	c.pollDone = done

	go c.pollLoop(pollCtx, done)
}

// stopPollerLocked clears the armed loop, if any. Cooperative: the loop
// goroutine observes the canceled context on its next suspension point.
func (c *Controller) stopPollerLocked() {
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}
}

// PollDone returns a channel closed when the current poll loop exits, or nil
// when no loop has been armed. Callers use it to wait for terminal
// reconciliation after SubmitInputs.
func (c *Controller) PollDone() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pollDone
}

func (c *Controller) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	c.logger.Debug("poll loop armed",
		"interval", c.pollInterval,
		"max_ticks", c.maxPollTicks)

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for tick := 1; tick <= c.maxPollTicks; tick++ {
		select {
		case <-ctx.Done():
			c.logger.Debug("poll loop canceled", "tick", tick)
			return
		case <-ticker.C:
		}

		if c.pollTick(ctx) {
			return
		}
	}

	c.handlePollTimeout(ctx)
}

// pollTick fetches the two snapshots and applies exactly one resolution.
// Returns true when the loop reached a terminal resolution and must stop.
// Individual fetch failures are logged and swallowed so transient network
// blips never kill the loop; only the iteration bound or a terminal state
// stops it.
func (c *Controller) pollTick(ctx context.Context) bool {
	c.mu.Lock()
	taskID := c.state.CurrentTaskID
	executionID := c.state.CurrentExecutionID
	c.mu.Unlock()

	var task *protocol.TaskSnapshot
	if taskID != "" {
		snap, err := c.tasks.GetTask(ctx, taskID)
		if err != nil {
			c.logger.Warn("poll: task fetch failed", "task_id", taskID, "error", err)
		} else {
			task = snap
			if c.eventLog != nil {
				if err := c.eventLog.WriteTaskSnapshot(snap); err != nil {
					c.logger.Warn("failed to log task snapshot", "error", err)
				}
			}
		}
	}

	var orch *protocol.OrchestrationSnapshot
	if executionID != "" {
		snap, err := c.orch.GetOrchestration(ctx, executionID)
		if err != nil {
			c.logger.Warn("poll: orchestration fetch failed", "execution_id", executionID, "error", err)
		} else {
			orch = snap
			if c.eventLog != nil {
				if err := c.eventLog.WriteOrchestrationSnapshot(snap); err != nil {
					c.logger.Warn("failed to log orchestration snapshot", "error", err)
				}
			}
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ctx.Err() != nil {
		// Canceled while fetching; a newer source of truth owns the session.
		return true
	}

	if orch != nil && orch.Results != nil {
		c.captureCorrelationLocked(orch.Results.TaskID, "")
		if orch.Results.Execution != nil {
			c.captureCorrelationLocked("", orch.Results.Execution.ID)
		}
	}

	switch {
	case orch != nil && orch.Status == protocol.StatusCompleted:
		c.logger.Info("poll: orchestration completed", "execution_id", executionID)
		c.completeLocked(resolvePollSummary(orch, task))
		return true

	case orch != nil && orch.Status == protocol.StatusFailed:
		reason := orch.Error
		if reason == "" {
			reason = "Unknown error"
		}
		c.logger.Info("poll: orchestration failed", "execution_id", executionID, "reason", reason)
		c.failLocked(reason)
		return true

	case orch != nil && pausedAgain(orch):
		c.logger.Info("poll: execution paused again", "execution_id", executionID)
		c.enterWaitingLocked(orch.Results.Execution.PendingInputs)
		return true

	case task != nil && task.Status == protocol.StatusCompleted:
		// The task reports done but orchestration has not settled yet;
		// stay in executing and keep polling.
		c.applyLiveLocked(contentFinalizing, phase.Executing, true)
		return false

	default:
		return false
	}
}

func pausedAgain(orch *protocol.OrchestrationSnapshot) bool {
	return orch.Results != nil &&
		orch.Results.Execution != nil &&
		orch.Results.Execution.Paused &&
		len(orch.Results.Execution.PendingInputs) > 0
}

// handlePollTimeout runs when the iteration bound is exhausted without a
// terminal state. The timeout notice is appended; prior content is never
// discarded. The execution may still be progressing server-side.
func (c *Controller) handlePollTimeout(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ctx.Err() != nil {
		// A reset or teardown canceled the loop between the last tick and
		// here; the session has moved on.
		return
	}

	c.logger.Warn("poll loop exhausted iteration bound", "max_ticks", c.maxPollTicks)

	c.stopPollerLocked()
	if c.state.IsStreaming {
		c.state.IsStreaming = false
	}
	if live := c.log.Live(); live != nil && live.IsLoading {
		c.notifyEntryLocked(c.log.UpdateLive(live.Content, live.Phase, false))
	}
	c.notifyEntryLocked(c.log.AppendAssistant(contentTimeout, c.state.Phase, false))
}
