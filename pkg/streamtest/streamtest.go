// Package streamtest provides in-process fakes for the pipeline surfaces a
// session controller talks to: the push channel and the task/orchestration
// snapshot services. Tests script frames and snapshots up front and assert
// on what the controller did with them.
package streamtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/wsyeabsera/taskstream/internal/protocol"
)

// ScriptedStream is an in-process stream client. Each call to Open consumes
// the next scripted turn: its frames are delivered in order and then the
// channel closes, unless HoldOpen keeps it open so the test can feed more
// frames by hand.
type ScriptedStream struct {
	mu       sync.Mutex
	turns    []Turn
	next     int
	requests []protocol.StreamRequest
	openErr  error

	current      chan *protocol.StreamEvent
	disconnected int
}

// Turn is one scripted execution on the push channel.
type Turn struct {
	Frames []protocol.StreamEvent
	// HoldOpen leaves the channel open after the last frame. The test feeds
	// further frames via Emit and closes with CloseChannel.
	HoldOpen bool
}

// NewScriptedStream returns a stream client that plays the given turns.
func NewScriptedStream(turns ...Turn) *ScriptedStream {
	return &ScriptedStream{turns: turns}
}

// FailNextOpen makes the next Open call return err instead of a channel.
func (s *ScriptedStream) FailNextOpen(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openErr = err
}

// Open implements stream.Client.
func (s *ScriptedStream) Open(ctx context.Context, req protocol.StreamRequest) (<-chan *protocol.StreamEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)

	if s.openErr != nil {
		err := s.openErr
		s.openErr = nil
		return nil, err
	}
	if s.next >= len(s.turns) {
		return nil, fmt.Errorf("no scripted turn for request %d", len(s.requests))
	}

	turn := s.turns[s.next]
	s.next++

	ch := make(chan *protocol.StreamEvent, len(turn.Frames)+16)
	for i := range turn.Frames {
		frame := turn.Frames[i]
		ch <- &frame
	}
	if turn.HoldOpen {
		s.current = ch
	} else {
		close(ch)
		s.current = nil
	}
	return ch, nil
}

// Emit feeds one more frame into a held-open channel.
func (s *ScriptedStream) Emit(evt protocol.StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		panic("streamtest: Emit without a held-open channel")
	}
	s.current <- &evt
}

// CloseChannel closes a held-open channel.
func (s *ScriptedStream) CloseChannel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		close(s.current)
		s.current = nil
	}
}

// Disconnect implements stream.Client.
func (s *ScriptedStream) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnected++
}

// Requests returns every stream request seen so far.
func (s *ScriptedStream) Requests() []protocol.StreamRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.StreamRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Disconnects returns how many times Disconnect was called.
func (s *ScriptedStream) Disconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

// ResumeCall records one ResumeTask invocation.
type ResumeCall struct {
	TaskID string
	Inputs []protocol.SubmittedInput
}

// FakeTaskService is a scripted task snapshot and resume endpoint.
type FakeTaskService struct {
	mu        sync.Mutex
	snapshots []*protocol.TaskSnapshot
	getErr    error
	resumeErr error
	resumes   []ResumeCall
}

// NewFakeTaskService returns a task service that serves snapshots in order,
// repeating the last one once the script runs out.
func NewFakeTaskService(snapshots ...*protocol.TaskSnapshot) *FakeTaskService {
	return &FakeTaskService{snapshots: snapshots}
}

// FailGets makes every GetTask call return err.
func (f *FakeTaskService) FailGets(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

// FailResume makes every ResumeTask call return err.
func (f *FakeTaskService) FailResume(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumeErr = err
}

// ResumeTask implements taskapi.TaskService.
func (f *FakeTaskService) ResumeTask(ctx context.Context, taskID string, inputs []protocol.SubmittedInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resumeErr != nil {
		return f.resumeErr
	}
	recorded := make([]protocol.SubmittedInput, len(inputs))
	copy(recorded, inputs)
	f.resumes = append(f.resumes, ResumeCall{TaskID: taskID, Inputs: recorded})
	return nil
}

// GetTask implements taskapi.TaskService.
func (f *FakeTaskService) GetTask(ctx context.Context, taskID string) (*protocol.TaskSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if len(f.snapshots) == 0 {
		return &protocol.TaskSnapshot{ID: taskID, Status: protocol.StatusExecuting}, nil
	}
	snap := f.snapshots[0]
	if len(f.snapshots) > 1 {
		f.snapshots = f.snapshots[1:]
	}
	return snap, nil
}

// Resumes returns every recorded resume call.
func (f *FakeTaskService) Resumes() []ResumeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ResumeCall, len(f.resumes))
	copy(out, f.resumes)
	return out
}

// FakeOrchestrationService serves scripted orchestration snapshots in order,
// repeating the last one once the script runs out.
type FakeOrchestrationService struct {
	mu        sync.Mutex
	snapshots []*protocol.OrchestrationSnapshot
	getErr    error
	calls     int
}

// NewFakeOrchestrationService returns a scripted orchestration service.
func NewFakeOrchestrationService(snapshots ...*protocol.OrchestrationSnapshot) *FakeOrchestrationService {
	return &FakeOrchestrationService{snapshots: snapshots}
}

// FailGets makes every GetOrchestration call return err.
func (f *FakeOrchestrationService) FailGets(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

// GetOrchestration implements taskapi.OrchestrationService.
func (f *FakeOrchestrationService) GetOrchestration(ctx context.Context, executionID string) (*protocol.OrchestrationSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	if len(f.snapshots) == 0 {
		return &protocol.OrchestrationSnapshot{Status: protocol.StatusExecuting}, nil
	}
	snap := f.snapshots[0]
	if len(f.snapshots) > 1 {
		f.snapshots = f.snapshots[1:]
	}
	return snap, nil
}

// Calls returns how many snapshot fetches were made.
func (f *FakeOrchestrationService) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
