package sse

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := NewWriter(rec)
	if sw == nil {
		t.Fatal("expected non-nil Writer from httptest.ResponseRecorder")
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q, want no-cache", cc)
	}
	if conn := rec.Header().Get("Connection"); conn != "keep-alive" {
		t.Errorf("Connection = %q, want keep-alive", conn)
	}
}

// nonFlushWriter does not implement http.Flusher.
type nonFlushWriter struct {
	http.ResponseWriter
}

func TestNewWriter_NoFlusher(t *testing.T) {
	sw := NewWriter(&nonFlushWriter{})
	if sw != nil {
		t.Error("expected nil Writer when ResponseWriter does not support Flusher")
	}
}

func TestSendProgress(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := NewWriter(rec)

	if err := sw.SendProgress(StageRetrieval, 0.5); err != nil {
		t.Fatalf("SendProgress: %v", err)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: progress") {
		t.Error("missing 'event: progress' line")
	}

	data := extractData(t, body, "progress")
	var evt ProgressEvent
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		t.Fatalf("unmarshal progress event: %v", err)
	}
	if evt.Stage != StageRetrieval {
		t.Errorf("stage = %q, want %q", evt.Stage, StageRetrieval)
	}
	if evt.Progress != 0.5 {
		t.Errorf("progress = %v, want 0.5", evt.Progress)
	}
}

func TestSendComplete(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := NewWriter(rec)

	recommendations := []map[string]string{{"isbn13": "9780000000001", "title": "Gilead"}}
	stats := map[string]int{"retrieved": 50, "returned": 16}

	if err := sw.SendComplete(recommendations, stats); err != nil {
		t.Fatalf("SendComplete: %v", err)
	}

	data := extractData(t, rec.Body.String(), "complete")
	var evt CompleteEvent
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	var parsedRecs []map[string]string
	if err := json.Unmarshal(evt.Recommendations, &parsedRecs); err != nil {
		t.Fatalf("unmarshal recommendations: %v", err)
	}
	if len(parsedRecs) != 1 || parsedRecs[0]["title"] != "Gilead" {
		t.Errorf("unexpected recommendations: %v", parsedRecs)
	}

	var parsedStats map[string]int
	if err := json.Unmarshal(evt.Stats, &parsedStats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if parsedStats["returned"] != 16 {
		t.Errorf("returned = %d, want 16", parsedStats["returned"])
	}
}

func TestSendError(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := NewWriter(rec)

	if err := sw.SendError(StageEmbedding, "API key missing"); err != nil {
		t.Fatalf("SendError: %v", err)
	}

	data := extractData(t, rec.Body.String(), "error")
	var evt ErrorEvent
	if err := json.Unmarshal([]byte(data), &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if evt.Error != "API key missing" {
		t.Errorf("error = %q, want %q", evt.Error, "API key missing")
	}
	if evt.Stage != StageEmbedding {
		t.Errorf("stage = %q, want %q", evt.Stage, StageEmbedding)
	}
}

func TestMultipleEvents(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := NewWriter(rec)

	_ = sw.SendProgress(StageCache, 1.0)
	_ = sw.SendProgress(StageEmbedding, 1.0)
	_ = sw.SendProgress(StageRetrieval, 1.0)
	_ = sw.SendProgress(StageRanking, 1.0)
	_ = sw.SendComplete([]string{}, map[string]int{})

	body := rec.Body.String()
	progressCount := strings.Count(body, "event: progress")
	if progressCount != 4 {
		t.Errorf("progress events = %d, want 4", progressCount)
	}
	completeCount := strings.Count(body, "event: complete")
	if completeCount != 1 {
		t.Errorf("complete events = %d, want 1", completeCount)
	}
}

func TestStageConstants(t *testing.T) {
	stages := []Stage{StageCache, StageEmbedding, StageRetrieval, StageRanking}
	seen := make(map[Stage]bool)
	for _, s := range stages {
		if s == "" {
			t.Error("empty stage constant")
		}
		if seen[s] {
			t.Errorf("duplicate stage: %s", s)
		}
		seen[s] = true
	}
}

// extractData finds the data line for the first occurrence of the given event type.
func extractData(t *testing.T, body, eventType string) string {
	t.Helper()
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		if line == "event: "+eventType {
			if i+1 < len(lines) && strings.HasPrefix(lines[i+1], "data: ") {
				return strings.TrimPrefix(lines[i+1], "data: ")
			}
		}
	}
	t.Fatalf("no data found for event type %q in:\n%s", eventType, body)
	return ""
}
