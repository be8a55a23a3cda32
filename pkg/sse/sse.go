// Package sse provides Server-Sent Events support for streaming
// search progress to clients.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Stage identifies a search pipeline stage.
type Stage string

const (
	StageCache     Stage = "cache"
	StageEmbedding Stage = "embedding"
	StageRetrieval Stage = "retrieval"
	StageRanking   Stage = "ranking"
)

// ProgressEvent reports that the search entered a stage.
type ProgressEvent struct {
	Stage    Stage   `json:"stage"`
	Progress float64 `json:"progress"`
}

// CompleteEvent carries the final recommendations and run stats.
type CompleteEvent struct {
	Recommendations json.RawMessage `json:"recommendations"`
	Stats           json.RawMessage `json:"stats"`
}

// ErrorEvent reports a failed search and the stage it failed in.
type ErrorEvent struct {
	Error string `json:"error"`
	Stage Stage  `json:"stage,omitempty"`
}

// Writer streams typed events over an http.ResponseWriter.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter prepares the response for SSE streaming. Headers go out
// immediately so clients see the stream before the first event arrives.
// Returns nil if the ResponseWriter does not support flushing.
func NewWriter(w http.ResponseWriter) *Writer {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Writer{w: w, flusher: flusher}
}

// SendProgress emits a progress event for the given stage.
func (sw *Writer) SendProgress(stage Stage, progress float64) error {
	return sw.emit("progress", ProgressEvent{Stage: stage, Progress: progress})
}

// SendComplete emits the final event with recommendations and stats.
func (sw *Writer) SendComplete(recommendations interface{}, stats interface{}) error {
	recsJSON, err := json.Marshal(recommendations)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	return sw.emit("complete", CompleteEvent{
		Recommendations: json.RawMessage(recsJSON),
		Stats:           json.RawMessage(statsJSON),
	})
}

// SendError emits an error event.
func (sw *Writer) SendError(stage Stage, errMsg string) error {
	return sw.emit("error", ErrorEvent{Error: errMsg, Stage: stage})
}

// emit writes one SSE frame and flushes it to the client.
func (sw *Writer) emit(event string, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	sw.flusher.Flush()
	return nil
}
