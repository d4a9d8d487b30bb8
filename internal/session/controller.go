// Package session implements the controller that drives one interactive
// pipeline session: it consumes push-channel events, folds them into the
// transcript and phase state, orchestrates the pause/resume protocol for
// missing inputs, and falls back to time-boxed polling after a resume.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wsyeabsera/taskstream/internal/phase"
	"github.com/wsyeabsera/taskstream/internal/protocol"
	"github.com/wsyeabsera/taskstream/internal/stream"
	"github.com/wsyeabsera/taskstream/internal/taskapi"
	"github.com/wsyeabsera/taskstream/internal/transcript"
)

// Default poll schedule: a tick every 2 s, bounded to 150 iterations
// (about five minutes). Timeout is enforced by the iteration bound, not a
// wall-clock deadline, so arbitrarily slow individual ticks are tolerated
// but still bounded.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxPollTicks = 150
)

// EventLogger records everything the controller observes, for diagnostics
type EventLogger interface {
	WriteFrame(*protocol.StreamEvent) error
	WriteTaskSnapshot(*protocol.TaskSnapshot) error
	WriteOrchestrationSnapshot(*protocol.OrchestrationSnapshot) error
}

// Controller owns the session: the transcript, the session state, the phase
// machine, and the two asynchronous update sources (push channel, poll loop).
// The two sources are never active for the same phase segment: entering the
// waiting state clears IsStreaming before the poller is armed, and terminal
// resolution from either source cancels the other.
type Controller struct {
	stream stream.Client
	tasks  taskapi.TaskService
	orch   taskapi.OrchestrationService
	logger *slog.Logger

	executionTargetID string
	summaryFormat     string
	pollInterval      time.Duration
	maxPollTicks      int

	// Optional collaborators
	eventLog   EventLogger
	onEntry    func(transcript.Entry)
	onComplete func(executionID string)

	mu      sync.Mutex
	log     *transcript.Log
	state   State
	machine *phase.Machine

	// completeNotified guards the complete handler for the current execution
	// attempt; cleared whenever a fresh attempt starts.
	completeNotified bool

	pollCancel context.CancelFunc
	pollDone   chan struct{}
}

// NewController creates a controller bound to one execution target.
func NewController(
	streamClient stream.Client,
	tasks taskapi.TaskService,
	orch taskapi.OrchestrationService,
	executionTargetID string,
	summaryFormat string,
	logger *slog.Logger,
) *Controller {
	if summaryFormat == "" {
		summaryFormat = protocol.SummaryFormatBrief
	}
	return &Controller{
		stream:            streamClient,
		tasks:             tasks,
		orch:              orch,
		logger:            logger,
		executionTargetID: executionTargetID,
		summaryFormat:     summaryFormat,
		pollInterval:      DefaultPollInterval,
		maxPollTicks:      DefaultMaxPollTicks,
		log:               transcript.NewLog(),
		state:             State{Phase: phase.None},
		machine:           phase.NewMachine(),
	}
}

// SetEventLogger sets the event logger for diagnostics persistence
func (c *Controller) SetEventLogger(logger EventLogger) {
	c.eventLog = logger
}

// SetEntryHandler sets the callback invoked after every transcript append or
// live-entry patch. The handler must not call back into the controller.
func (c *Controller) SetEntryHandler(handler func(transcript.Entry)) {
	c.onEntry = handler
}

// SetCompleteHandler sets the callback fired once per successfully completed
// execution.
func (c *Controller) SetCompleteHandler(handler func(executionID string)) {
	c.onComplete = handler
}

// SetPollSchedule overrides the poll interval and iteration bound.
func (c *Controller) SetPollSchedule(interval time.Duration, maxTicks int) {
	if interval > 0 {
		c.pollInterval = interval
	}
	if maxTicks > 0 {
		c.maxPollTicks = maxTicks
	}
}

// Transcript returns the live transcript log
func (c *Controller) Transcript() *transcript.Log {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log
}

// StateSnapshot returns a copy of the current session state
func (c *Controller) StateSnapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// Send submits a user query, opens a push channel, and folds the incoming
// events into the transcript until the stream goes quiet: a terminal event,
// a waiting event, or channel close. It blocks for the duration; the poll
// loop, if one is armed later by SubmitInputs, runs in the background.
func (c *Controller) Send(ctx context.Context, query string) error {
	c.mu.Lock()

	// A new user message starts a fresh execution attempt.
	c.stopPollerLocked()
	c.machine.Reset()
	c.completeNotified = false
	c.state.Phase = phase.None
	c.state.PendingInputs = nil
	c.state.CurrentTaskID = ""
	c.state.CurrentExecutionID = ""

	c.notifyEntryLocked(c.log.AppendUser(query))
	live := c.log.AppendAssistant("", phase.None, true)
	c.state.LiveEntryID = live.ID
	c.notifyEntryLocked(live)
	c.state.IsStreaming = true

	req := protocol.StreamRequest{
		ExecutionTargetID: c.executionTargetID,
		UserQuery:         query,
		Stream:            true,
		SummaryFormat:     c.summaryFormat,
	}
	c.mu.Unlock()

	c.logger.Info("opening stream", "target", c.executionTargetID)

	events, err := c.stream.Open(ctx, req)
	if err != nil {
		c.mu.Lock()
		c.failLocked(fmt.Sprintf("Error: %v", err))
		c.mu.Unlock()
		return fmt.Errorf("failed to open stream: %w", err)
	}

	for evt := range events {
		c.HandleEvent(evt)
		if !c.isStreaming() {
			break
		}
	}
	c.stream.Disconnect()

	// A channel that closes without delivering a terminal or waiting event
	// is a transport failure.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.IsStreaming {
		c.failLocked("Error: stream closed before the pipeline finished")
		return fmt.Errorf("stream closed before a terminal event")
	}
	return nil
}

// HandleEvent folds one push-channel event into the transcript and phase
// state. Exposed so tests and alternative consumers can drive the controller
// directly; Send uses it for every received frame.
func (c *Controller) HandleEvent(evt *protocol.StreamEvent) {
	if c.eventLog != nil {
		if err := c.eventLog.WriteFrame(evt); err != nil {
			c.logger.Warn("failed to log frame", "error", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.captureCorrelationLocked(evt.TaskID(), evt.ExecutionID())

	switch evt.Event {
	case protocol.EventThought:
		switch evt.Status() {
		case protocol.StatusGenerating:
			c.applyLiveLocked(contentThinking, phase.Thought, true)
		case protocol.StatusCompleted:
			// The reasoning content itself is intentionally not surfaced.
			c.applyLiveLocked(contentPlanning, phase.Plan, true)
		}

	case protocol.EventPlan:
		switch evt.Status() {
		case protocol.StatusGenerating:
			c.applyLiveLocked(contentPlanning, phase.Plan, true)
		case protocol.StatusCompleted:
			c.applyLiveLocked(contentExecuting, phase.Executing, true)
		}

	case protocol.EventStep:
		c.handleStepLocked(evt)

	case protocol.EventSummary:
		switch evt.Status() {
		case protocol.StatusGenerating:
			c.applyLiveLocked(contentSummarizing, phase.Summary, true)
		case protocol.StatusCompleted:
			if text := evt.StringField("summary"); text != "" {
				c.applyLiveLocked(text, phase.Summary, false)
			}
		}

	case protocol.EventError:
		msg := evt.StringField("error")
		if msg == "" {
			msg = "Unknown error"
		}
		c.failLocked(fmt.Sprintf("Error: %s", msg))

	case protocol.EventComplete:
		c.handleCompleteLocked(evt)

	default:
		c.logger.Warn("unknown stream event", "event", evt.Event)
	}
}

func (c *Controller) handleStepLocked(evt *protocol.StreamEvent) {
	if evt.Status() == protocol.StatusWaiting {
		c.enterWaitingLocked(evt.PendingInputs())
		return
	}

	stepNumber, ok := evt.IntField("stepNumber")
	if ok && stepNumber == 0 && evt.StringField("stepName") == protocol.StepNameExecutionStarted {
		c.applyLiveLocked(contentExecuting, phase.Executing, true)
		return
	}

	// Intermediate tool output never leaks into the transcript.
	c.logger.Debug("step event not surfaced",
		"step_number", stepNumber,
		"step_name", evt.StringField("stepName"))
}

// handleCompleteLocked performs terminal reconciliation for a complete frame,
// applying the same resolution rule as the polling loop.
func (c *Controller) handleCompleteLocked(evt *protocol.StreamEvent) {
	paused := evt.BoolField("paused")
	pending := evt.PendingInputs()
	if exec := evt.NestedMap("results", "execution"); exec != nil {
		if p, _ := exec["paused"].(bool); p {
			paused = true
		}
		if more := protocol.DecodePendingInputs(exec["pendingInputs"]); len(more) > 0 {
			pending = more
		}
	}
	if paused && len(pending) > 0 {
		c.enterWaitingLocked(pending)
		return
	}

	c.completeLocked(resolveCompleteSummary(evt))
}

// enterWaitingLocked suspends the live phase and surfaces a structured
// request for the missing fields. The push channel stops being the source of
// truth here: IsStreaming goes false before anything else can be armed.
func (c *Controller) enterWaitingLocked(inputs []protocol.PendingInput) {
	c.stopPollerLocked()

	if live := c.log.Live(); live != nil {
		c.notifyEntryLocked(c.log.UpdateLive(live.Content, live.Phase, false))
	}

	entry := c.log.AppendInputRequired(inputs, c.state.CurrentTaskID, c.state.CurrentExecutionID)
	c.notifyEntryLocked(entry)

	c.state.PendingInputs = append([]protocol.PendingInput(nil), inputs...)
	c.state.IsStreaming = false

	c.logger.Info("pipeline waiting for input",
		"fields", len(inputs),
		"task_id", c.state.CurrentTaskID)
}

// completeLocked resolves the final content for a completed execution. A
// fallback message may only replace the live content when it is still a
// placeholder; a real summary is never overwritten.
func (c *Controller) completeLocked(text string) {
	if text == "" {
		live := c.log.Live()
		if live != nil && !isPlaceholder(live.Content) {
			text = live.Content
		} else {
			text = contentCompleted
		}
	}

	c.applyLiveLocked(text, phase.Completed, false)
	c.state.IsStreaming = false
	c.stopPollerLocked()
	c.notifyCompleteLocked()
}

// failLocked marks the current execution attempt failed
func (c *Controller) failLocked(content string) {
	c.applyLiveLocked(content, phase.Failed, false)
	c.state.IsStreaming = false
	c.stopPollerLocked()
}

// applyLiveLocked advances the phase machine and patches the live entry.
// Stale lower-ordinal events are dropped entirely so the displayed phase
// never regresses except via failed or a full reset.
func (c *Controller) applyLiveLocked(content string, ph phase.Phase, loading bool) {
	advanced := c.machine.Advance(ph)
	if advanced != ph {
		c.logger.Debug("dropping stale phase update",
			"requested", ph,
			"current", advanced)
		return
	}

	c.state.Phase = advanced
	entry := c.log.UpdateLive(content, advanced, loading)
	c.state.LiveEntryID = entry.ID
	c.log.SetLiveCorrelation(c.state.CurrentTaskID, c.state.CurrentExecutionID)
	c.notifyEntryLocked(entry)
}

func (c *Controller) captureCorrelationLocked(taskID, executionID string) {
	if taskID != "" {
		c.state.CurrentTaskID = taskID
	}
	if executionID != "" {
		c.state.CurrentExecutionID = executionID
	}
}

func (c *Controller) notifyEntryLocked(entry transcript.Entry) {
	if c.onEntry != nil {
		c.onEntry(entry)
	}
}

func (c *Controller) notifyCompleteLocked() {
	if c.completeNotified {
		return
	}
	c.completeNotified = true
	if c.onComplete != nil {
		c.onComplete(c.state.CurrentExecutionID)
	}
}

func (c *Controller) isStreaming() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.IsStreaming
}

// NewConversation tears down any in-flight work and starts a fresh session:
// the poll timer is cleared, the channel disconnected, the session state
// fully reset, and a fresh transcript swapped in. Previous entries are never
// mutated or truncated in place.
func (c *Controller) NewConversation() {
	c.stream.Disconnect()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopPollerLocked()
	c.log = transcript.NewLog()
	c.state.Reset()
	c.machine.Reset()
	c.completeNotified = false
}

// Close tears the controller down: disconnects the channel and clears the
// poll timer. No background work survives Close.
func (c *Controller) Close() {
	c.stream.Disconnect()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopPollerLocked()
	c.state.IsStreaming = false
}
