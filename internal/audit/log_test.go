package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"kgrbac.org/internal/obs"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	logger := obs.Logger()
	original := logger.Writer()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(original) })
	return &buf
}

func TestLogEvent(t *testing.T) {
	buf := captureLog(t)

	ctx := WithSession(context.Background(), "sess-123")
	ctx = WithActor(ctx, "alice.analyst@alphafund.demo")

	err := LogEvent(ctx, EventDenied, map[string]any{"dataset": "BETA_DDQ", "error": errors.New("no read")})
	if err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if entry["type"] != "audit" || entry["event"] != EventDenied {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if entry["session_id"] != "sess-123" {
		t.Fatalf("unexpected session id: %v", entry["session_id"])
	}
	if entry["actor"] != "alice.analyst@alphafund.demo" {
		t.Fatalf("unexpected actor: %v", entry["actor"])
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["dataset"] != "BETA_DDQ" || fields["error"] != "no read" {
		t.Fatalf("fields missing or incorrect: %v", entry["fields"])
	}
}

func TestLogEventRequiresName(t *testing.T) {
	captureLog(t)
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatal("expected error for blank event")
	}
}

func TestBlankContextValuesAreIgnored(t *testing.T) {
	buf := captureLog(t)
	ctx := WithActor(WithSession(context.Background(), " "), "")
	if err := LogEvent(ctx, EventReset, nil); err != nil {
		t.Fatalf("LogEvent failed: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log not valid JSON: %v", err)
	}
	if _, ok := entry["actor"]; ok {
		t.Fatalf("unexpected actor: %v", entry)
	}
	if _, ok := entry["session_id"]; ok {
		t.Fatalf("unexpected session: %v", entry)
	}
}
