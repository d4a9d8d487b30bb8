package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wsyeabsera/taskstream/internal/phase"
	"github.com/wsyeabsera/taskstream/internal/protocol"
	"github.com/wsyeabsera/taskstream/internal/transcript"
	"github.com/wsyeabsera/taskstream/pkg/streamtest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func frame(name protocol.EventName, payload map[string]any) protocol.StreamEvent {
	return protocol.StreamEvent{Event: name, Payload: payload}
}

// happyPathFrames is a full successful execution on the push channel.
func happyPathFrames() []protocol.StreamEvent {
	return []protocol.StreamEvent{
		frame(protocol.EventThought, map[string]any{"status": protocol.StatusGenerating, "taskId": "t-1", "executionId": "e-1"}),
		frame(protocol.EventThought, map[string]any{"status": protocol.StatusCompleted}),
		frame(protocol.EventPlan, map[string]any{"status": protocol.StatusGenerating}),
		frame(protocol.EventPlan, map[string]any{"status": protocol.StatusCompleted}),
		frame(protocol.EventStep, map[string]any{"stepNumber": 0, "stepName": protocol.StepNameExecutionStarted}),
		frame(protocol.EventSummary, map[string]any{"status": protocol.StatusGenerating}),
		frame(protocol.EventSummary, map[string]any{"status": protocol.StatusCompleted, "summary": "All shelves restocked."}),
		frame(protocol.EventComplete, map[string]any{"results": map[string]any{"summary": "All shelves restocked."}}),
	}
}

func newTestController(sc *streamtest.ScriptedStream, tasks *streamtest.FakeTaskService, orch *streamtest.FakeOrchestrationService) *Controller {
	c := NewController(sc, tasks, orch, "target-test", protocol.SummaryFormatBrief, testLogger())
	c.SetPollSchedule(2*time.Millisecond, 20)
	return c
}

func waitPollDone(t *testing.T, c *Controller) {
	t.Helper()
	done := c.PollDone()
	require.NotNil(t, done, "poll loop should be armed")
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the poll loop")
	}
}

func TestSendHappyPath(t *testing.T) {
	sc := streamtest.NewScriptedStream(streamtest.Turn{Frames: happyPathFrames()})
	c := newTestController(sc, streamtest.NewFakeTaskService(), streamtest.NewFakeOrchestrationService())
	defer c.Close()

	var completions []string
	c.SetCompleteHandler(func(executionID string) {
		completions = append(completions, executionID)
	})

	require.NoError(t, c.Send(context.Background(), "restock bay 4"))

	state := c.StateSnapshot()
	require.Equal(t, phase.Completed, state.Phase)
	require.Equal(t, 100, state.ProgressPercent())
	require.False(t, state.IsStreaming)
	require.Equal(t, "t-1", state.CurrentTaskID)
	require.Equal(t, "e-1", state.CurrentExecutionID)

	entries := c.Transcript().Snapshot()
	require.Len(t, entries, 2, "one user entry plus one live assistant entry")
	require.Equal(t, transcript.KindUser, entries[0].Kind)
	require.Equal(t, "restock bay 4", entries[0].Content)
	require.Equal(t, transcript.KindAssistant, entries[1].Kind)
	require.Equal(t, "All shelves restocked.", entries[1].Content)
	require.False(t, entries[1].IsLoading)
	require.Equal(t, "t-1", entries[1].TaskID)

	require.Equal(t, []string{"e-1"}, completions, "complete handler fires exactly once")
	require.Equal(t, 1, sc.Disconnects())

	reqs := sc.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, "target-test", reqs[0].ExecutionTargetID)
	require.True(t, reqs[0].Stream)
	require.Equal(t, protocol.SummaryFormatBrief, reqs[0].SummaryFormat)
}

func TestPhaseProgressionThroughEvents(t *testing.T) {
	sc := streamtest.NewScriptedStream()
	c := newTestController(sc, streamtest.NewFakeTaskService(), streamtest.NewFakeOrchestrationService())
	defer c.Close()

	steps := []struct {
		evt         protocol.StreamEvent
		wantPhase   phase.Phase
		wantContent string
		wantPercent int
	}{
		{frame(protocol.EventThought, map[string]any{"status": protocol.StatusGenerating}), phase.Thought, contentThinking, 25},
		{frame(protocol.EventThought, map[string]any{"status": protocol.StatusCompleted}), phase.Plan, contentPlanning, 50},
		{frame(protocol.EventPlan, map[string]any{"status": protocol.StatusCompleted}), phase.Executing, contentExecuting, 75},
		{frame(protocol.EventSummary, map[string]any{"status": protocol.StatusGenerating}), phase.Summary, contentSummarizing, 90},
	}

	for _, step := range steps {
		evt := step.evt
		c.HandleEvent(&evt)

		state := c.StateSnapshot()
		require.Equal(t, step.wantPhase, state.Phase)
		require.Equal(t, step.wantPercent, state.ProgressPercent())

		live := c.Transcript().Live()
		require.NotNil(t, live)
		require.Equal(t, step.wantContent, live.Content)
		require.True(t, live.IsLoading)
	}
}

func TestTranscriptNeverShrinksAndAtMostOneLoading(t *testing.T) {
	sc := streamtest.NewScriptedStream()
	c := newTestController(sc, streamtest.NewFakeTaskService(), streamtest.NewFakeOrchestrationService())
	defer c.Close()

	log := c.Transcript()
	prevLen := 0
	for _, evt := range happyPathFrames() {
		e := evt
		c.HandleEvent(&e)
		require.GreaterOrEqual(t, log.Len(), prevLen, "transcript length never decreases")
		require.LessOrEqual(t, log.LoadingCount(), 1, "at most one loading entry")
		prevLen = log.Len()
	}
	require.Equal(t, 0, log.LoadingCount(), "no loading entries after a terminal event")
}

func TestStaleLowerPhaseEventDropped(t *testing.T) {
	sc := streamtest.NewScriptedStream()
	c := newTestController(sc, streamtest.NewFakeTaskService(), streamtest.NewFakeOrchestrationService())
	defer c.Close()

	advance := frame(protocol.EventPlan, map[string]any{"status": protocol.StatusCompleted})
	c.HandleEvent(&advance)
	require.Equal(t, phase.Executing, c.StateSnapshot().Phase)

	// A late thought frame must not regress the phase or the content.
	stale := frame(protocol.EventThought, map[string]any{"status": protocol.StatusGenerating})
	c.HandleEvent(&stale)

	require.Equal(t, phase.Executing, c.StateSnapshot().Phase)
	require.Equal(t, contentExecuting, c.Transcript().Live().Content)
}

func TestSummaryNotOverwrittenByEmptyComplete(t *testing.T) {
	sc := streamtest.NewScriptedStream()
	c := newTestController(sc, streamtest.NewFakeTaskService(), streamtest.NewFakeOrchestrationService())
	defer c.Close()

	summary := frame(protocol.EventSummary, map[string]any{"status": protocol.StatusCompleted, "summary": "Real summary text."})
	c.HandleEvent(&summary)

	complete := frame(protocol.EventComplete, map[string]any{})
	c.HandleEvent(&complete)

	live := c.Transcript().Live()
	require.Equal(t, "Real summary text.", live.Content, "a real summary survives a bare complete frame")
	require.Equal(t, phase.Completed, live.Phase)
}

func TestBareCompleteFallsBackToCannedMessage(t *testing.T) {
	sc := streamtest.NewScriptedStream()
	c := newTestController(sc, streamtest.NewFakeTaskService(), streamtest.NewFakeOrchestrationService())
	defer c.Close()

	executing := frame(protocol.EventPlan, map[string]any{"status": protocol.StatusCompleted})
	c.HandleEvent(&executing)

	complete := frame(protocol.EventComplete, map[string]any{})
	c.HandleEvent(&complete)

	require.Equal(t, contentCompleted, c.Transcript().Live().Content)
}

func TestEmptySummaryTextIgnored(t *testing.T) {
	sc := streamtest.NewScriptedStream()
	c := newTestController(sc, streamtest.NewFakeTaskService(), streamtest.NewFakeOrchestrationService())
	defer c.Close()

	generating := frame(protocol.EventSummary, map[string]any{"status": protocol.StatusGenerating})
	c.HandleEvent(&generating)

	empty := frame(protocol.EventSummary, map[string]any{"status": protocol.StatusCompleted, "summary": ""})
	c.HandleEvent(&empty)

	live := c.Transcript().Live()
	require.Equal(t, contentSummarizing, live.Content)
	require.True(t, live.IsLoading)
}

func TestErrorEventFailsExecution(t *testing.T) {
	sc := streamtest.NewScriptedStream(streamtest.Turn{Frames: []protocol.StreamEvent{
		frame(protocol.EventThought, map[string]any{"status": protocol.StatusGenerating, "taskId": "t-1"}),
		frame(protocol.EventError, map[string]any{"error": "inventory service unavailable"}),
	}})
	c := newTestController(sc, streamtest.NewFakeTaskService(), streamtest.NewFakeOrchestrationService())
	defer c.Close()

	var completions int
	c.SetCompleteHandler(func(string) { completions++ })

	require.NoError(t, c.Send(context.Background(), "restock"))

	state := c.StateSnapshot()
	require.Equal(t, phase.Failed, state.Phase)
	require.Equal(t, 0, state.ProgressPercent())
	require.False(t, state.IsStreaming)

	live := c.Transcript().Live()
	require.Equal(t, "Error: inventory service unavailable", live.Content)
	require.False(t, live.IsLoading)
	require.Zero(t, completions, "failed executions never fire the complete handler")
}

func TestErrorEventWithoutMessage(t *testing.T) {
	sc := streamtest.NewScriptedStream()
	c := newTestController(sc, streamtest.NewFakeTaskService(), streamtest.NewFakeOrchestrationService())
	defer c.Close()

	evt := frame(protocol.EventError, map[string]any{})
	c.HandleEvent(&evt)

	require.Equal(t, "Error: Unknown error", c.Transcript().Live().Content)
}

func TestEventsAfterTerminalAreDropped(t *testing.T) {
	sc := streamtest.NewScriptedStream()
	c := newTestController(sc, streamtest.NewFakeTaskService(), streamtest.NewFakeOrchestrationService())
	defer c.Close()

	fail := frame(protocol.EventError, map[string]any{"error": "boom"})
	c.HandleEvent(&fail)

	late := frame(protocol.EventSummary, map[string]any{"status": protocol.StatusCompleted, "summary": "too late"})
	c.HandleEvent(&late)

	require.Equal(t, phase.Failed, c.StateSnapshot().Phase)
	require.Equal(t, "Error: boom", c.Transcript().Live().Content)
}

func TestUnknownEventTolerated(t *testing.T) {
	sc := streamtest.NewScriptedStream()
	c := newTestController(sc, streamtest.NewFakeTaskService(), streamtest.NewFakeOrchestrationService())
	defer c.Close()

	before := c.Transcript().Len()
	evt := protocol.StreamEvent{Event: protocol.EventName("telemetry"), Payload: map[string]any{}}
	c.HandleEvent(&evt)

	require.Equal(t, before, c.Transcript().Len())
	require.Equal(t, phase.None, c.StateSnapshot().Phase)
}

func TestIntermediateStepEventsNotSurfaced(t *testing.T) {
	sc := streamtest.NewScriptedStream()
	c := newTestController(sc, streamtest.NewFakeTaskService(), streamtest.NewFakeOrchestrationService())
	defer c.Close()

	evt := frame(protocol.EventStep, map[string]any{"stepNumber": 3, "stepName": "Fetch Inventory", "output": "42 units"})
	c.HandleEvent(&evt)

	require.Equal(t, 0, c.Transcript().Len())
	require.Equal(t, phase.None, c.StateSnapshot().Phase)
}

func TestSendOpenFailure(t *testing.T) {
	sc := streamtest.NewScriptedStream()
	sc.FailNextOpen(errors.New("connection refused"))
	c := newTestController(sc, streamtest.NewFakeTaskService(), streamtest.NewFakeOrchestrationService())
	defer c.Close()

	err := c.Send(context.Background(), "restock")
	require.Error(t, err)

	state := c.StateSnapshot()
	require.Equal(t, phase.Failed, state.Phase)
	require.False(t, state.IsStreaming)
	require.Contains(t, c.Transcript().Live().Content, "connection refused")
}

func TestChannelCloseBeforeTerminalIsFailure(t *testing.T) {
	sc := streamtest.NewScriptedStream(streamtest.Turn{Frames: []protocol.StreamEvent{
		frame(protocol.EventThought, map[string]any{"status": protocol.StatusGenerating}),
		frame(protocol.EventPlan, map[string]any{"status": protocol.StatusCompleted}),
	}})
	c := newTestController(sc, streamtest.NewFakeTaskService(), streamtest.NewFakeOrchestrationService())
	defer c.Close()

	err := c.Send(context.Background(), "restock")
	require.Error(t, err)

	state := c.StateSnapshot()
	require.Equal(t, phase.Failed, state.Phase)
	require.Equal(t, "Error: stream closed before the pipeline finished", c.Transcript().Live().Content)
}

func TestSecondSendStartsFreshAttempt(t *testing.T) {
	sc := streamtest.NewScriptedStream(
		streamtest.Turn{Frames: happyPathFrames()},
		streamtest.Turn{Frames: []protocol.StreamEvent{
			frame(protocol.EventThought, map[string]any{"status": protocol.StatusGenerating, "taskId": "t-2", "executionId": "e-2"}),
			frame(protocol.EventComplete, map[string]any{"results": map[string]any{"summary": "Second answer."}}),
		}},
	)
	c := newTestController(sc, streamtest.NewFakeTaskService(), streamtest.NewFakeOrchestrationService())
	defer c.Close()

	require.NoError(t, c.Send(context.Background(), "first"))
	firstLive := c.Transcript().Live()

	require.NoError(t, c.Send(context.Background(), "second"))

	entries := c.Transcript().Snapshot()
	require.Len(t, entries, 4)
	require.Equal(t, "All shelves restocked.", entries[1].Content, "the first answer is history, never patched")
	require.Equal(t, firstLive.ID, entries[1].ID)
	require.Equal(t, "Second answer.", entries[3].Content)

	state := c.StateSnapshot()
	require.Equal(t, "t-2", state.CurrentTaskID)
	require.Equal(t, "e-2", state.CurrentExecutionID)
	require.Equal(t, phase.Completed, state.Phase)
}

func TestNewConversationResetsEverything(t *testing.T) {
	sc := streamtest.NewScriptedStream(streamtest.Turn{Frames: happyPathFrames()})
	c := newTestController(sc, streamtest.NewFakeTaskService(), streamtest.NewFakeOrchestrationService())
	defer c.Close()

	require.NoError(t, c.Send(context.Background(), "restock"))
	require.NotZero(t, c.Transcript().Len())

	c.NewConversation()

	require.Equal(t, 0, c.Transcript().Len())
	state := c.StateSnapshot()
	require.Equal(t, phase.None, state.Phase)
	require.Empty(t, state.CurrentTaskID)
	require.Empty(t, state.CurrentExecutionID)
	require.Empty(t, state.PendingInputs)
	require.False(t, state.IsStreaming)
}

func TestCompleteHandlerFiresPerAttemptWithoutExecutionID(t *testing.T) {
	completeTurn := func(summary string) streamtest.Turn {
		return streamtest.Turn{Frames: []protocol.StreamEvent{
			frame(protocol.EventComplete, map[string]any{"results": map[string]any{"summary": summary}}),
		}}
	}
	sc := streamtest.NewScriptedStream(completeTurn("First."), completeTurn("Second."))
	c := newTestController(sc, streamtest.NewFakeTaskService(), streamtest.NewFakeOrchestrationService())
	defer c.Close()

	var completions []string
	c.SetCompleteHandler(func(id string) { completions = append(completions, id) })

	// Neither execution ever supplies an executionId; each attempt still
	// notifies exactly once.
	require.NoError(t, c.Send(context.Background(), "first"))
	require.Equal(t, []string{""}, completions)

	// A duplicate terminal frame within the same attempt stays deduplicated.
	dup := frame(protocol.EventComplete, map[string]any{})
	c.HandleEvent(&dup)
	require.Equal(t, []string{""}, completions)

	require.NoError(t, c.Send(context.Background(), "second"))
	require.Equal(t, []string{"", ""}, completions)
}

func TestEntryHandlerObservesUpdates(t *testing.T) {
	sc := streamtest.NewScriptedStream(streamtest.Turn{Frames: happyPathFrames()})
	c := newTestController(sc, streamtest.NewFakeTaskService(), streamtest.NewFakeOrchestrationService())
	defer c.Close()

	var seen []transcript.Entry
	c.SetEntryHandler(func(e transcript.Entry) { seen = append(seen, e) })

	require.NoError(t, c.Send(context.Background(), "restock"))

	require.NotEmpty(t, seen)
	require.Equal(t, transcript.KindUser, seen[0].Kind)
	last := seen[len(seen)-1]
	require.Equal(t, "All shelves restocked.", last.Content)
	require.False(t, last.IsLoading)
}

func TestEventLoggerReceivesFrames(t *testing.T) {
	sc := streamtest.NewScriptedStream(streamtest.Turn{Frames: happyPathFrames()})
	c := newTestController(sc, streamtest.NewFakeTaskService(), streamtest.NewFakeOrchestrationService())
	defer c.Close()

	rec := &recordingEventLog{}
	c.SetEventLogger(rec)

	require.NoError(t, c.Send(context.Background(), "restock"))
	require.Len(t, rec.frames, len(happyPathFrames()))
}

// recordingEventLog captures observations in memory.
type recordingEventLog struct {
	frames []*protocol.StreamEvent
	tasks  []*protocol.TaskSnapshot
	orchs  []*protocol.OrchestrationSnapshot
}

func (r *recordingEventLog) WriteFrame(evt *protocol.StreamEvent) error {
	r.frames = append(r.frames, evt)
	return nil
}

func (r *recordingEventLog) WriteTaskSnapshot(snap *protocol.TaskSnapshot) error {
	r.tasks = append(r.tasks, snap)
	return nil
}

func (r *recordingEventLog) WriteOrchestrationSnapshot(snap *protocol.OrchestrationSnapshot) error {
	r.orchs = append(r.orchs, snap)
	return nil
}
