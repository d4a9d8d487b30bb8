// Package stream opens the push channel that delivers pipeline phase events
// to the session controller. The wire format is NDJSON over a streaming HTTP
// POST: one frame per line, each naming an event and carrying an
// arbitrary-shaped payload.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/wsyeabsera/taskstream/internal/ndjson"
	"github.com/wsyeabsera/taskstream/internal/protocol"
)

// Client opens a push channel with a query payload and emits typed events
// until explicitly disconnected. The returned channel is closed when the
// server ends the stream, the transport fails, or Disconnect is called.
type Client interface {
	Open(ctx context.Context, req protocol.StreamRequest) (<-chan *protocol.StreamEvent, error)
	Disconnect()
}

// HTTPClient implements Client against a streaming HTTP endpoint.
//
// Transport failures mid-stream are surfaced as a synthesized error frame
// followed by channel close, so consumers handle them exactly like a
// pipeline-reported error. The client never retries a broken channel.
type HTTPClient struct {
	endpoint string
	httpc    *http.Client
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	body   io.ReadCloser
}

// NewHTTPClient creates a push-channel client for the given endpoint.
// A nil httpc falls back to http.DefaultClient; the client must not carry a
// global timeout, since the channel stays open for the whole execution.
func NewHTTPClient(endpoint string, httpc *http.Client, logger *slog.Logger) *HTTPClient {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &HTTPClient{
		endpoint: endpoint,
		httpc:    httpc,
		logger:   logger,
	}
}

// Open starts the channel. Only one channel may be open at a time; opening a
// new one disconnects the previous channel first.
func (c *HTTPClient) Open(ctx context.Context, req protocol.StreamRequest) (<-chan *protocol.StreamEvent, error) {
	c.Disconnect()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stream request: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to build stream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("stream endpoint returned status %d", resp.StatusCode)
	}

	c.mu.Lock()
	c.cancel = cancel
	c.body = resp.Body
	c.mu.Unlock()

	c.logger.Debug("stream opened", "endpoint", c.endpoint, "target", req.ExecutionTargetID)

	events := make(chan *protocol.StreamEvent, 64)
	go c.readLoop(streamCtx, resp.Body, events)

	return events, nil
}

// Disconnect closes the current channel, if any. It is idempotent and safe
// to call from any goroutine.
func (c *HTTPClient) Disconnect() {
	c.mu.Lock()
	cancel := c.cancel
	body := c.body
	c.cancel = nil
	c.body = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if body != nil {
		body.Close()
	}
}

func (c *HTTPClient) readLoop(ctx context.Context, body io.ReadCloser, events chan<- *protocol.StreamEvent) {
	defer close(events)
	defer body.Close()

	decoder := ndjson.NewDecoder(body, c.logger)
	for {
		evt, err := decoder.DecodeEvent()
		if err == io.EOF {
			c.logger.Debug("stream closed by server")
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				// Disconnected locally; nothing to report.
				return
			}
			c.logger.Error("stream transport failure", "error", err)
			transportErr := &protocol.StreamEvent{
				Event:   protocol.EventError,
				Payload: map[string]any{"error": fmt.Sprintf("stream transport failure: %v", err)},
			}
			select {
			case events <- transportErr:
			case <-ctx.Done():
			}
			return
		}

		select {
		case events <- evt:
		case <-ctx.Done():
			return
		}
	}
}
