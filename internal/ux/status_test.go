package ux

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/jorge-barreto/coursegen/internal/history"
	"github.com/jorge-barreto/coursegen/internal/state"
)

func TestRenderStatus(t *testing.T) {
	st := &state.PipelineState{
		Course: "Cell Biology",
		Status: state.StatusPartial,
		Sessions: map[int]*state.SessionState{
			2: {Module: 1, Title: "Membranes", Status: state.StatusFailed, Errors: []string{"lecture: timeout"}},
			1: {Module: 1, Title: "The Cell", Status: state.StatusCompleted},
		},
	}
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	timing := &state.Timing{Entries: []state.TimingEntry{{Step: "session_01", Start: start, End: start.Add(125 * time.Second), Duration: "2m 05s"}}}

	var buf bytes.Buffer
	RenderStatus(&buf, st, timing)
	out := buf.String()
	if !strings.Contains(out, "Cell Biology") || !strings.Contains(out, "lecture: timeout") {
		t.Fatalf("output = %q", out)
	}
	if strings.Index(out, "The Cell") > strings.Index(out, "Membranes") {
		t.Fatalf("sessions out of order:\n%s", out)
	}
	if !strings.Contains(out, "(2m 05s)") {
		t.Fatalf("missing duration:\n%s", out)
	}
}

func TestRenderRuns_Empty(t *testing.T) {
	var buf bytes.Buffer
	RenderRuns(&buf, nil)
	if !strings.Contains(buf.String(), "(none)") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestRenderRuns(t *testing.T) {
	var buf bytes.Buffer
	RenderRuns(&buf, []history.Run{{
		ID: "0123456789abcdef", Course: "bio", Stage: "content", Status: state.StatusCompleted,
		SessionsOK: 3, AvgScore: 81.5, StartedAt: time.Unix(1700000000, 0),
	}})
	out := buf.String()
	if !strings.Contains(out, "01234567") || strings.Contains(out, "89abcdef") {
		t.Fatalf("id not shortened: %q", out)
	}
	if !strings.Contains(out, "ok=3") || !strings.Contains(out, "avg=81.5") {
		t.Fatalf("output = %q", out)
	}
}

func TestQuoteArg(t *testing.T) {
	if got := quoteArg("out/a.json"); got != "out/a.json" {
		t.Fatalf("quoteArg = %q", got)
	}
	if got := quoteArg("my dir/a.json"); got != "'my dir/a.json'" {
		t.Fatalf("quoteArg = %q", got)
	}
}
