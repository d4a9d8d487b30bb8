// mockpipeline is a scripted stand-in for the real task pipeline. It serves
// the push-channel endpoint plus the task and orchestration snapshot
// endpoints, so taskstream can be exercised end to end without a live
// backend. Behavior is driven by flags or an optional JSON script file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/wsyeabsera/taskstream/internal/ndjson"
	"github.com/wsyeabsera/taskstream/internal/protocol"
)

func main() {
	addr := flag.String("addr", ":8080", "Listen address")
	scriptFile := flag.String("script", "", "Path to response script file (JSON)")
	pause := flag.Bool("pause", false, "Pause mid-execution and request a 'facilityId' input")
	frameDelay := flag.Duration("frame-delay", 150*time.Millisecond, "Delay between streamed frames")
	completeAfterPolls := flag.Int("complete-after-polls", 3, "Orchestration polls before a resumed execution completes")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	pipeline := &MockPipeline{
		logger:             logger,
		pause:              *pause,
		frameDelay:         *frameDelay,
		completeAfterPolls: *completeAfterPolls,
	}

	if *scriptFile != "" {
		if err := pipeline.loadScript(*scriptFile); err != nil {
			logger.Error("failed to load script", "error", err)
			os.Exit(1)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/stream", pipeline.handleStream)
	mux.HandleFunc("GET /api/tasks/{id}", pipeline.handleGetTask)
	mux.HandleFunc("POST /api/tasks/{id}/resume", pipeline.handleResume)
	mux.HandleFunc("GET /api/orchestrations/{id}", pipeline.handleGetOrchestration)

	server := &http.Server{Addr: *addr, Handler: mux}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal", "signal", sig)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	logger.Info("mock pipeline listening", "addr", *addr, "pause", *pause)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("mock pipeline stopped")
}

// Script contains pre-programmed responses
type Script struct {
	// Frames streamed in order on the push channel; overrides the built-in
	// sequence entirely when present.
	Frames []protocol.StreamEvent `json:"frames"`
	// Task snapshot served by the task endpoint.
	Task *protocol.TaskSnapshot `json:"task,omitempty"`
	// Orchestration snapshot served once the execution completes.
	Orchestration *protocol.OrchestrationSnapshot `json:"orchestration,omitempty"`
}

// MockPipeline simulates the pipeline backend for testing
type MockPipeline struct {
	logger             *slog.Logger
	pause              bool
	frameDelay         time.Duration
	completeAfterPolls int

	mu        sync.Mutex
	script    *Script
	resumed   bool
	pollCount int
}

func (p *MockPipeline) loadScript(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read script file: %w", err)
	}

	var script Script
	if err := json.Unmarshal(data, &script); err != nil {
		return fmt.Errorf("failed to parse script JSON: %w", err)
	}

	p.script = &script
	p.logger.Info("loaded script", "path", path, "frames", len(script.Frames))
	return nil
}

func (p *MockPipeline) handleStream(w http.ResponseWriter, r *http.Request) {
	var req protocol.StreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid stream request"}`, http.StatusBadRequest)
		return
	}

	p.logger.Info("stream opened",
		"target", req.ExecutionTargetID,
		"query", req.UserQuery,
		"format", req.SummaryFormat)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	encoder := ndjson.NewEncoder(w, p.logger)

	for _, frame := range p.frames(req.UserQuery) {
		select {
		case <-r.Context().Done():
			p.logger.Info("client disconnected")
			return
		case <-time.After(p.frameDelay):
		}

		if err := encoder.Encode(frame); err != nil {
			p.logger.Warn("failed to write frame", "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// frames returns the scripted sequence, or the built-in happy path /
// pause-for-input sequence.
func (p *MockPipeline) frames(query string) []protocol.StreamEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.script != nil && len(p.script.Frames) > 0 {
		return p.script.Frames
	}

	ids := map[string]any{"taskId": "task-mock-1", "executionId": "exec-mock-1"}
	base := []protocol.StreamEvent{
		{Event: protocol.EventThought, Payload: merge(ids, map[string]any{"status": protocol.StatusGenerating})},
		{Event: protocol.EventThought, Payload: map[string]any{"status": protocol.StatusCompleted}},
		{Event: protocol.EventPlan, Payload: map[string]any{"status": protocol.StatusGenerating}},
		{Event: protocol.EventPlan, Payload: map[string]any{"status": protocol.StatusCompleted}},
		{Event: protocol.EventStep, Payload: map[string]any{"stepNumber": 0, "stepName": protocol.StepNameExecutionStarted}},
	}

	if p.pause {
		return append(base, protocol.StreamEvent{
			Event: protocol.EventStep,
			Payload: map[string]any{
				"status": protocol.StatusWaiting,
				"pendingInputs": []any{
					map[string]any{"stepId": "s2", "field": "facilityId", "description": "identifier of the target facility"},
				},
			},
		})
	}

	summary := fmt.Sprintf("Handled %q without incident.", query)
	return append(base,
		protocol.StreamEvent{Event: protocol.EventSummary, Payload: map[string]any{"status": protocol.StatusGenerating}},
		protocol.StreamEvent{Event: protocol.EventSummary, Payload: map[string]any{"status": protocol.StatusCompleted, "summary": summary}},
		protocol.StreamEvent{Event: protocol.EventComplete, Payload: map[string]any{"results": map[string]any{"summary": summary}}},
	)
}

func (p *MockPipeline) handleGetTask(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	snap := &protocol.TaskSnapshot{
		ID:     r.PathValue("id"),
		Status: protocol.StatusExecuting,
	}
	if p.script != nil && p.script.Task != nil {
		snap = p.script.Task
	} else if p.resumed && p.pollCount >= p.completeAfterPolls {
		snap.Status = protocol.StatusCompleted
		snap.Summary = "Mock task finished after resume."
	}

	writeJSON(w, snap)
}

func (p *MockPipeline) handleResume(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Inputs []protocol.SubmittedInput `json:"inputs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error":"invalid resume body"}`, http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	p.resumed = true
	p.pollCount = 0
	p.mu.Unlock()

	p.logger.Info("task resumed",
		"task_id", r.PathValue("id"),
		"inputs", len(body.Inputs))

	w.WriteHeader(http.StatusNoContent)
}

func (p *MockPipeline) handleGetOrchestration(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.script != nil && p.script.Orchestration != nil {
		writeJSON(w, p.script.Orchestration)
		return
	}

	p.pollCount++
	snap := &protocol.OrchestrationSnapshot{Status: protocol.StatusExecuting}
	if p.resumed && p.pollCount >= p.completeAfterPolls {
		snap.Status = protocol.StatusCompleted
		snap.Results = &protocol.OrchestrationResults{
			Summary: "Mock execution finished after resume.",
			TaskID:  "task-mock-1",
		}
	}

	writeJSON(w, snap)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func merge(a, b map[string]any) map[string]any {
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
