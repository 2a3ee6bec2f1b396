package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jorge-barreto/coursegen/internal/config"
	"github.com/jorge-barreto/coursegen/internal/course"
	"github.com/jorge-barreto/coursegen/internal/llm"
	"github.com/jorge-barreto/coursegen/internal/retry"
)

type fakeLLM struct {
	replies []string
	err     error
	// errAt fails the n-th request (1-based).
	errAt map[int]error
	reqs  []llm.Request
}

func (f *fakeLLM) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	if err := f.errAt[len(f.reqs)]; err != nil {
		return nil, err
	}
	i := len(f.reqs) - 1
	if i >= len(f.replies) {
		i = len(f.replies) - 1
	}
	return &llm.Response{Text: f.replies[i], RequestID: fmt.Sprintf("dia:%06d", len(f.reqs))}, nil
}

func chain(n int) string {
	var b strings.Builder
	b.WriteString("```mermaid\nflowchart TD\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "    N%d[Step %d] --> N%d[Step %d]\n", i, i, i+1, i+1)
	}
	b.WriteString("```\n")
	return b.String()
}

func testInput(kind Kind) Input {
	return Input{
		Kind:   kind,
		Course: course.Metadata{Name: "Test Biology", Level: "Intro"},
		Module: course.Module{ModuleID: 1, ModuleName: "Foundations"},
		Session: course.Session{
			SessionNumber: 1, SessionTitle: "Cells",
			Subtopics: []string{"membranes", "organelles"}, KeyConcepts: []string{"cell"},
		},
		Subtopic: "membranes",
		Index:    1,
	}
}

func TestGenerate_DiagramRetry(t *testing.T) {
	small := "Here you go:\n```mermaid\ngraph TD\n  A[One] --> B[Two]\n  C[Three] --> D[Four]\n  style A fill:#f00\n```\n"
	f := &fakeLLM{replies: []string{small, chain(10)}}
	policy := retry.NewPolicy(nil, nil)
	g := New(config.Defaults(), f, policy, nil)

	res, err := g.Generate(context.Background(), testInput(KindDiagram))
	if err != nil {
		t.Fatal(err)
	}
	if len(f.reqs) != 2 || res.Attempts != 2 {
		t.Fatalf("requests = %d, attempts = %d", len(f.reqs), res.Attempts)
	}
	if f.reqs[0].Feedback != "" {
		t.Fatalf("first attempt carried feedback: %q", f.reqs[0].Feedback)
	}
	fb := f.reqs[1].Feedback
	if !strings.Contains(fb, "at least 10 nodes and 8 connections") || !strings.Contains(fb, "extend the diagram") {
		t.Fatalf("feedback:\n%s", fb)
	}
	if !res.Valid() || res.Score != 100 || strings.Contains(res.Text, "```") {
		t.Fatalf("result = %+v", res)
	}
	snap := policy.Ledger.Snapshot()
	if len(snap) != 1 || !snap[0].Success || snap[0].ContentType != "diagram" || snap[0].Class != retry.ClassCount {
		t.Fatalf("ledger = %+v", snap)
	}
	if f.reqs[0].Vars["min_nodes"] != 10 || f.reqs[0].Vars["subtopic"] != "membranes" {
		t.Fatalf("vars = %+v", f.reqs[0].Vars)
	}
}

func TestGenerate_KeepsBestAfterExhaustion(t *testing.T) {
	worse := "A-->B\n"
	better := chain(6)
	f := &fakeLLM{replies: []string{better, worse, worse}}
	policy := retry.NewPolicy(nil, nil)
	res, err := New(config.Defaults(), f, policy, nil).Generate(context.Background(), testInput(KindDiagram))
	if err != nil {
		t.Fatal(err)
	}
	if res.Attempts != 3 || res.Valid() {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Text, "N6") {
		t.Fatalf("best attempt not kept: %q", res.Text)
	}
	if policy.Ledger.Total() != 2 {
		t.Fatalf("ledger total = %d", policy.Ledger.Total())
	}
}

func TestGenerate_DegradedContext(t *testing.T) {
	s := config.Defaults()
	s.Content.MaxValidationAttempts = 1
	f := &fakeLLM{replies: []string{"# Lab\n\n1. Do it.\n"}}
	res, err := New(s, f, nil, nil).Generate(context.Background(), testInput(KindLab))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0], "degraded context") {
		t.Fatalf("warnings = %v", res.Warnings)
	}
	if got := f.reqs[0].Vars["lecture_content"]; !strings.Contains(fmt.Sprint(got), "lecture unavailable") {
		t.Fatalf("lecture_content = %v", got)
	}
	if len(f.reqs) != 1 {
		t.Fatalf("requests = %d", len(f.reqs))
	}
}

func TestGenerate_PassesLectureAndLab(t *testing.T) {
	f := &fakeLLM{replies: []string{"### Question 1\nWhat?\n"}}
	s := config.Defaults()
	s.Content.MaxValidationAttempts = 1
	in := testInput(KindQuestions)
	in.Lecture = "# Lecture\nbody"
	in.Lab = "# Lab\nsteps"
	res, err := New(s, f, nil, nil).Generate(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	for _, w := range res.Warnings {
		if strings.Contains(w, "degraded") {
			t.Fatalf("unexpected degraded warning: %v", res.Warnings)
		}
	}
	v := f.reqs[0].Vars
	if v["lecture_content"] != "# Lecture\nbody" || v["lab_content"] != "# Lab\nsteps" {
		t.Fatalf("vars = %+v", v)
	}
	if f.reqs[0].Operation != llm.OpQuestions || f.reqs[0].Template != "questions" {
		t.Fatalf("request = %+v", f.reqs[0])
	}
}

func TestGenerate_TransportError(t *testing.T) {
	boom := &llm.StreamStuckError{RequestID: "lec:000001", Operation: llm.OpLecture}
	_, err := New(config.Defaults(), &fakeLLM{err: boom}, nil, nil).Generate(context.Background(), testInput(KindLecture))
	var se *llm.StreamStuckError
	if !errors.As(err, &se) {
		t.Fatalf("got %v", err)
	}
}

func TestGenerate_RetryErrorKeepsEarlierAttempt(t *testing.T) {
	small := "```mermaid\ngraph TD\n  A[One] --> B[Two]\n```\n"
	f := &fakeLLM{replies: []string{small}, errAt: map[int]error{2: errors.New("stream timeout")}}
	policy := retry.NewPolicy(nil, nil)
	res, err := New(config.Defaults(), f, policy, nil).Generate(context.Background(), testInput(KindDiagram))
	if err != nil {
		t.Fatalf("retry failure discarded the first attempt: %v", err)
	}
	if len(f.reqs) != 2 || res.Attempts != 1 {
		t.Fatalf("requests = %d, attempts = %d", len(f.reqs), res.Attempts)
	}
	if !strings.Contains(res.Text, "A[One] --> B[Two]") {
		t.Fatalf("text = %q", res.Text)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "retry aborted: stream timeout") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v", res.Warnings)
	}
	snap := policy.Ledger.Snapshot()
	if len(snap) != 1 || snap[0].Success {
		t.Fatalf("ledger = %+v", snap)
	}
}

func TestGenerate_RetryErrorAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	small := "```mermaid\ngraph TD\n  A[One] --> B[Two]\n```\n"
	f := &fakeLLM{replies: []string{small}, errAt: map[int]error{2: context.Canceled}}
	g := New(config.Defaults(), &cancelOnSecond{fakeLLM: f, cancel: cancel}, retry.NewPolicy(nil, nil), nil)
	if _, err := g.Generate(ctx, testInput(KindDiagram)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

type cancelOnSecond struct {
	*fakeLLM
	cancel context.CancelFunc
}

func (c *cancelOnSecond) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if len(c.reqs) == 1 {
		c.cancel()
	}
	return c.fakeLLM.Generate(ctx, req)
}

func TestGenerate_UnknownKind(t *testing.T) {
	if _, err := New(config.Defaults(), &fakeLLM{}, nil, nil).Generate(context.Background(), Input{Kind: "poster"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestExtraKinds(t *testing.T) {
	kinds, err := ExtraKinds([]string{"application", "visualization", "application"})
	if err != nil {
		t.Fatal(err)
	}
	if len(kinds) != 2 || kinds[0] != KindApplication || kinds[1] != KindVisualization {
		t.Fatalf("kinds = %v", kinds)
	}
	for _, bad := range []string{"lecture", "diagram", "poster"} {
		if _, err := ExtraKinds([]string{bad}); err == nil {
			t.Fatalf("%q accepted", bad)
		}
	}
}

func TestOutlineContext(t *testing.T) {
	got := OutlineContext(1, 2, 2, 3,
		course.Module{ModuleName: "Foundations", ModuleDescription: "Basics"},
		course.Session{SessionTitle: "Cells", Rationale: "Start small"})
	for _, want := range []string{"Module 1 of 2: Foundations", "Session 2 of 3 in this module: Cells", "Module description: Basics", "Session rationale: Start small"} {
		if !strings.Contains(got, want) {
			t.Fatalf("context missing %q:\n%s", want, got)
		}
	}
}
