package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/wsyeabsera/taskstream/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func collect(t *testing.T, events <-chan *protocol.StreamEvent) []*protocol.StreamEvent {
	t.Helper()

	var out []*protocol.StreamEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, evt)
		case <-timeout:
			t.Fatal("timed out waiting for stream to close")
		}
	}
}

func TestOpenDeliversFramesInOrder(t *testing.T) {
	var gotReq protocol.StreamRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"event":"thought","payload":{"status":"generating"}}`)
		fmt.Fprintln(w, `{"event":"plan","payload":{"status":"completed"}}`)
		fmt.Fprintln(w, `{"event":"complete","payload":{"results":{"summary":"done"}}}`)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, nil, testLogger())
	defer client.Disconnect()

	events, err := client.Open(context.Background(), protocol.StreamRequest{
		ExecutionTargetID: "target-1",
		UserQuery:         "hello",
		Stream:            true,
		SummaryFormat:     protocol.SummaryFormatBrief,
	})
	require.NoError(t, err)

	frames := collect(t, events)
	require.Len(t, frames, 3)
	require.Equal(t, protocol.EventThought, frames[0].Event)
	require.Equal(t, protocol.EventPlan, frames[1].Event)
	require.Equal(t, protocol.EventComplete, frames[2].Event)

	require.Equal(t, "target-1", gotReq.ExecutionTargetID)
	require.True(t, gotReq.Stream)
}

func TestOpenRejectsNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"nope"}`, http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, nil, testLogger())
	_, err := client.Open(context.Background(), protocol.StreamRequest{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestOpenConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewHTTPClient(server.URL, nil, testLogger())
	_, err := client.Open(context.Background(), protocol.StreamRequest{})
	require.Error(t, err)
}

func TestMalformedFrameSynthesizesErrorEvent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"event":"thought","payload":{"status":"generating"}}`)
		fmt.Fprintln(w, `{garbage`)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, nil, testLogger())
	defer client.Disconnect()

	events, err := client.Open(context.Background(), protocol.StreamRequest{})
	require.NoError(t, err)

	frames := collect(t, events)
	require.Len(t, frames, 2)
	require.Equal(t, protocol.EventThought, frames[0].Event)
	require.Equal(t, protocol.EventError, frames[1].Event)
	require.Contains(t, frames[1].StringField("error"), "stream transport failure")
}

func TestDisconnectClosesChannelSilently(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"event":"thought","payload":{"status":"generating"}}`)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, nil, testLogger())

	events, err := client.Open(context.Background(), protocol.StreamRequest{})
	require.NoError(t, err)

	<-started
	client.Disconnect()

	// Local disconnect closes the channel without a synthesized error frame.
	for evt := range events {
		require.NotEqual(t, protocol.EventError, evt.Event)
	}
}

func TestDisconnectIsIdempotent(t *testing.T) {
	client := NewHTTPClient("http://unused.invalid", nil, testLogger())
	client.Disconnect()
	client.Disconnect()
}
