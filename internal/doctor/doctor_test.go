package doctor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jorge-barreto/coursegen/internal/config"
	"github.com/jorge-barreto/coursegen/internal/health"
	"github.com/jorge-barreto/coursegen/internal/state"
)

type fakeDiagnoser struct {
	d health.Diagnostics
}

func (f fakeDiagnoser) Diagnostics(_ context.Context, model string) health.Diagnostics {
	d := f.d
	d.Model.Model = model
	return d
}

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	s := config.Defaults()
	s.Course.Name = "Cell Biology"
	s.Output.BaseDirectory = t.TempDir()
	s.LLM.Model = "llama3.1:8b"
	s.LLM.Timeout = 120
	return s
}

func healthy() health.Diagnostics {
	return health.Diagnostics{
		BaseURL: "http://localhost:11434",
		Service: health.ServiceStatus{Available: true, Version: "0.5.1", ResponseTime: 12 * time.Millisecond},
		Model:   health.ModelStatus{Available: true, Loaded: true, Processor: "100% GPU"},
		LoadedModels: []health.LoadedModel{
			{Name: "llama3.1:8b", Processor: "100% GPU", SizeVRAM: 1},
		},
		GPUInUse: true,
	}
}

func TestRun_Healthy(t *testing.T) {
	s := testSettings(t)
	var buf bytes.Buffer
	if err := Run(context.Background(), &buf, s, fakeDiagnoser{healthy()}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"available", "0.5.1", "loaded", "no failed sessions", "outline"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Suggestions:") {
		t.Fatalf("unexpected suggestions:\n%s", out)
	}
}

func TestRun_ServiceDown(t *testing.T) {
	s := testSettings(t)
	d := health.Diagnostics{BaseURL: "http://localhost:11434", Service: health.ServiceStatus{Error: "connection refused"}}
	var buf bytes.Buffer
	err := Run(context.Background(), &buf, s, fakeDiagnoser{d})
	if !errors.Is(err, ErrUnhealthy) {
		t.Fatalf("err = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "unavailable") || !strings.Contains(out, "ollama serve") {
		t.Fatalf("output:\n%s", out)
	}
}

func TestRun_ReportsFailedSessions(t *testing.T) {
	s := testSettings(t)
	courseDir := s.OutputPaths("").Course
	state.EnsureDir(courseDir)
	st := &state.PipelineState{Course: "Cell Biology", Status: state.StatusPartial, Sessions: map[int]*state.SessionState{
		1: {Module: 1, Title: "Cells", Status: state.StatusCompleted},
		2: {Module: 1, Title: "Membranes", Status: state.StatusFailed, Errors: []string{
			"lecture: [lec:a1b2c3] stream timed out after 300s",
		}},
	}}
	if err := st.Save(courseDir); err != nil {
		t.Fatal(err)
	}
	timing := &state.Timing{}
	timing.AddStart("session_02/lecture")
	if err := timing.Flush(courseDir); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Run(context.Background(), &buf, s, fakeDiagnoser{healthy()}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"1 failed session", "Membranes", "stream timed out", "session_02/lecture", "Suggestions:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestFailureCategories_Order(t *testing.T) {
	failures := []sessionFailure{
		{Errors: []string{"lab: connection refused", "lecture: request timed out"}},
		{Errors: []string{"questions: read timeout"}},
	}
	got := failureCategories(failures)
	if len(got) != 2 || got[0] != "timeout" || got[1] != "connection" {
		t.Fatalf("categories = %v", got)
	}
}

func TestRun_TimeoutWarnings(t *testing.T) {
	s := testSettings(t)
	s.LLM.OperationTimeouts = map[string]float64{"lab": 10}
	var buf bytes.Buffer
	Run(context.Background(), &buf, s, fakeDiagnoser{healthy()})
	if !strings.Contains(buf.String(), "< 30s") {
		t.Fatalf("missing lab warning:\n%s", buf.String())
	}
}
