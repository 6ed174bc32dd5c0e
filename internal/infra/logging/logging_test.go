//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestRedact(t *testing.T) {
	defer showText.Store(false)

	showText.Store(false)
	cases := map[string]string{
		"":                          "***",
		"short":                     "***",
		"What is a goroutine leak?": "What...k?",
	}
	for in, want := range cases {
		if got := Redact(in); got != want {
			t.Errorf("Redact(%q) = %q, want %q", in, got, want)
		}
	}

	showText.Store(true)
	if got := Redact("What is a goroutine leak?"); got != "What is a goroutine leak?" {
		t.Errorf("dev mode should keep text, got %q", got)
	}
}

func TestWith_AttachesContextIDs(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithJobID(ctx, "job-1")
	With(ctx, &base).Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["trace_id"] != "trace-1" || line["job_id"] != "job-1" {
		t.Errorf("missing ids in %v", line)
	}
	if _, ok := line["session_id"]; ok {
		t.Error("unset ids must not be logged")
	}
	if TraceID(ctx) != "trace-1" {
		t.Errorf("TraceID = %q", TraceID(ctx))
	}
}
