package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jorge-barreto/coursegen/internal/config"
	"github.com/jorge-barreto/coursegen/internal/health"
)

type fakeLLM struct {
	mu       sync.Mutex
	bodies   []map[string]any
	calls    atomic.Int32
	generate http.HandlerFunc
}

func (f *fakeLLM) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/version", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version":"0.6.0"}`))
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		f.calls.Add(1)
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.bodies = append(f.bodies, body)
		f.mu.Unlock()
		f.generate(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func streamWords(words ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, word := range words {
			fmt.Fprintf(w, "{\"response\":%q,\"done\":false}\n", word)
		}
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}
}

func testSettings(url string) *config.Settings {
	s := config.Defaults()
	s.Course.Name = "Test Biology"
	s.LLM.Model = "test:1b"
	s.LLM.APIURL = url + "/api/generate"
	s.LLM.Parameters = map[string]any{"temperature": 0.7}
	s.Prompts = map[string]config.Prompt{
		"lecture": {System: "Teach in {language}.", Template: "Write a lecture on {topic}."},
	}
	return s
}

func newTestClient(t *testing.T, s *config.Settings, sleeps *[]time.Duration) *Client {
	t.Helper()
	mon, err := health.New(s.LLM.APIURL)
	if err != nil {
		t.Fatal(err)
	}
	return NewClient(s, nil,
		WithHealth(mon),
		WithTick(10*time.Millisecond),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			if sleeps != nil {
				*sleeps = append(*sleeps, d)
			}
			return nil
		}),
	)
}

func TestGenerate_HappyPath(t *testing.T) {
	f := &fakeLLM{generate: streamWords("Cells ", "are ", "alive.")}
	srv := f.server(t)
	s := testSettings(srv.URL)
	c := newTestClient(t, s, nil)

	resp, err := c.Generate(context.Background(), Request{
		Operation:  OpLecture,
		Vars:       map[string]any{"topic": "cells", "language": "English"},
		Parameters: map[string]any{"num_predict": 100},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Text != "Cells are alive." {
		t.Fatalf("Text = %q", resp.Text)
	}
	if !requestIDRe.MatchString(resp.RequestID) || !strings.HasPrefix(resp.RequestID, "lec:") {
		t.Fatalf("RequestID = %q", resp.RequestID)
	}
	if resp.Attempts != 1 || resp.Chunks != 4 {
		t.Fatalf("Attempts = %d, Chunks = %d", resp.Attempts, resp.Chunks)
	}

	body := f.bodies[0]
	if body["model"] != "test:1b" || body["stream"] != true {
		t.Fatalf("body = %v", body)
	}
	if body["prompt"] != "Write a lecture on cells." || body["system"] != "Teach in English." {
		t.Fatalf("prompt/system = %q / %q", body["prompt"], body["system"])
	}
	opts, _ := body["options"].(map[string]any)
	if opts["temperature"] != 0.7 || opts["num_predict"] != float64(100) {
		t.Fatalf("options = %v", opts)
	}
}

func TestGenerate_FeedbackAppended(t *testing.T) {
	f := &fakeLLM{generate: streamWords("ok")}
	srv := f.server(t)
	c := newTestClient(t, testSettings(srv.URL), nil)
	_, err := c.Generate(context.Background(), Request{
		Operation: OpLecture,
		Vars:      map[string]any{"topic": "cells"},
		Feedback:  "FIX: add examples",
	})
	if err != nil {
		t.Fatal(err)
	}
	if p := f.bodies[0]["prompt"].(string); !strings.HasSuffix(p, "\n\nFIX: add examples") {
		t.Fatalf("prompt = %q", p)
	}
}

func TestGenerate_TemplateErrorNoRequest(t *testing.T) {
	f := &fakeLLM{generate: streamWords("ok")}
	srv := f.server(t)
	c := newTestClient(t, testSettings(srv.URL), nil)
	_, err := c.Generate(context.Background(), Request{Operation: OpLecture, Vars: map[string]any{}})
	var te *TemplateError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v", err)
	}
	if f.calls.Load() != 0 {
		t.Fatal("no request should be sent on template error")
	}
}

func TestGenerate_RetriesTransientWithBackoff(t *testing.T) {
	var n atomic.Int32
	f := &fakeLLM{generate: func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) < 3 {
			http.Error(w, "service unavailable", http.StatusServiceUnavailable)
			return
		}
		streamWords("recovered")(w, r)
	}}
	srv := f.server(t)
	var sleeps []time.Duration
	c := newTestClient(t, testSettings(srv.URL), &sleeps)

	resp, err := c.Generate(context.Background(), Request{Operation: OpLecture, Vars: map[string]any{"topic": "x"}})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Attempts != 3 || resp.Text != "recovered" {
		t.Fatalf("resp = %+v", resp)
	}
	if len(sleeps) != 2 || sleeps[0] != time.Second || sleeps[1] != 2*time.Second {
		t.Fatalf("sleeps = %v", sleeps)
	}
}

func TestGenerate_NonTransientNotRetried(t *testing.T) {
	f := &fakeLLM{generate: func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}}
	srv := f.server(t)
	c := newTestClient(t, testSettings(srv.URL), nil)
	_, err := c.Generate(context.Background(), Request{Operation: OpLecture, Vars: map[string]any{"topic": "x"}})
	var he *HTTPStatusError
	if !errors.As(err, &he) || he.StatusCode != 404 {
		t.Fatalf("err = %v", err)
	}
	if f.calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", f.calls.Load())
	}
}

func TestGenerate_EmptyResponseNotRetried(t *testing.T) {
	f := &fakeLLM{generate: streamWords()}
	srv := f.server(t)
	c := newTestClient(t, testSettings(srv.URL), nil)
	_, err := c.Generate(context.Background(), Request{Operation: OpLecture, Vars: map[string]any{"topic": "x"}})
	var ee *EmptyResponseError
	if !errors.As(err, &ee) {
		t.Fatalf("err = %v", err)
	}
	if f.calls.Load() != 1 {
		t.Fatalf("calls = %d", f.calls.Load())
	}
}

type downProbe struct{}

func (downProbe) CheckService(ctx context.Context, timeout time.Duration) health.ServiceStatus {
	return health.ServiceStatus{Error: "dial tcp: connection refused"}
}

func TestGenerate_PreflightAbortsFast(t *testing.T) {
	f := &fakeLLM{generate: streamWords("never")}
	srv := f.server(t)
	c := NewClient(testSettings(srv.URL), nil, WithProbe(downProbe{}))
	_, err := c.Generate(context.Background(), Request{Operation: OpLecture, Vars: map[string]any{"topic": "x"}})
	var ce *ConnectionError
	if !errors.As(err, &ce) || !strings.Contains(err.Error(), "pre-flight") {
		t.Fatalf("err = %v", err)
	}
	if f.calls.Load() != 0 {
		t.Fatal("generate endpoint should not be called")
	}
}

func TestGenerate_StreamTimeoutDiagnostics(t *testing.T) {
	f := &fakeLLM{generate: func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		flusher.Flush()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(10 * time.Millisecond):
				fmt.Fprintln(w, `{"response":"token "}`)
				flusher.Flush()
			}
		}
	}}
	srv := f.server(t)
	s := testSettings(srv.URL)
	s.LLM.MaxRetries = 1
	c := newTestClient(t, s, nil)

	_, err := c.Generate(context.Background(), Request{
		Operation:       OpLecture,
		Vars:            map[string]any{"topic": "x"},
		TimeoutOverride: 200 * time.Millisecond,
	})
	var ste *StreamTimeoutError
	if !errors.As(err, &ste) {
		t.Fatalf("err = %v, want StreamTimeoutError", err)
	}
	if ste.Limit != 700*time.Millisecond {
		t.Fatalf("Limit = %s, want extended to ceiling", ste.Limit)
	}
	msg := err.Error()
	for _, want := range []string{"lec:", "elapsed=", "limit=", "chunks=", "bytes=", "chars=", "chars/s", "tokens/s", "operation_timeouts.lecture"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q: %s", want, msg)
		}
	}
}

func TestTerminalFor(t *testing.T) {
	cases := []struct {
		err  error
		want requestStatus
	}{
		{&StreamTimeoutError{}, stateTimedOut},
		{&ReadTimeoutError{}, stateTimedOut},
		{&ConnectionError{Err: errors.New("x")}, stateConnectionFailed},
		{&StreamStuckError{}, stateStreamStuck},
		{&EmptyResponseError{}, stateEmptyResponse},
		{errors.New("other"), stateFailed},
	}
	for _, c := range cases {
		if got := terminalFor(c.err); got != c.want {
			t.Errorf("terminalFor(%T) = %s, want %s", c.err, got, c.want)
		}
	}
}
