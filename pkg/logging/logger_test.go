package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerWithServiceTagsEntries(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithService("escrowctl")
	l.SetOutput(&buf)
	l.WithField("k", "v").Info("hello")

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("expected JSON output: %v", err)
	}
	if out["service"] != "escrowctl" {
		t.Fatalf("expected service field, got %v", out["service"])
	}
	if out["k"] != "v" {
		t.Fatalf("expected k=v, got %v", out["k"])
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("expected discard logger for nil")
	}
	l := NewLogger()
	if OrDiscard(l) != l {
		t.Fatal("expected same logger back")
	}
}
