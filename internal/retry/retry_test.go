package retry

import (
	"strings"
	"sync"
	"testing"

	"github.com/jorge-barreto/coursegen/internal/analyze"
	"github.com/jorge-barreto/coursegen/internal/config"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		msg  string
		want Class
	}{
		{"[lec:abc123] stream timeout: elapsed=10.0s", ClassTimeout},
		{"[dia:abc123] stream stuck: no chunks", ClassStuck},
		{"[lab:abc123] empty response for op=lab", ClassEmpty},
		{"[lec:abc123] connection to LLM service at http://x failed", ClassConnection},
		{"service unavailable", ClassConnection},
		{"Missing safety section (add a '## Safety' section)", ClassMissing},
		{"Question 2 has 3 options; format must be exactly four options labelled A-D", ClassFormat},
		{"Diagram has 4 nodes, below minimum 10 (need 6 more nodes)", ClassCount},
		{"Diagram has 2 connections, below minimum 8 (need 6 more connections)", ClassCount},
		{"3 node labels exceed 40 characters; shorten them", ClassQuality},
		{"", ClassUnknown},
	}
	for _, c := range cases {
		if got := Classify(c.msg); got != c.want {
			t.Errorf("Classify(%q) = %q, want %q", c.msg, got, c.want)
		}
	}
}

func TestLedger_SuccessRate(t *testing.T) {
	l := NewLedger()
	if rate, n := l.SuccessRate(ClassCount, "diagram"); rate != 1 || n != 0 {
		t.Fatalf("empty ledger = %v, %d", rate, n)
	}
	l.Record(Attempt{Class: ClassCount, ContentType: "diagram", Success: true})
	l.Record(Attempt{Class: ClassCount, ContentType: "diagram"})
	l.Record(Attempt{Class: ClassCount, ContentType: "lecture"})
	rate, n := l.SuccessRate(ClassCount, "diagram")
	if rate != 0.5 || n != 2 {
		t.Fatalf("rate = %v, n = %d", rate, n)
	}
	if l.Total() != 3 {
		t.Fatalf("Total = %d", l.Total())
	}
	if snap := l.Snapshot(); len(snap) != 3 || snap[0].At.IsZero() {
		t.Fatalf("Snapshot = %+v", snap)
	}
	stats := l.Stats()
	if len(stats) != 2 || stats[0].ContentType != "diagram" || stats[0].Attempts != 2 {
		t.Fatalf("Stats = %+v", stats)
	}
}

func TestLedger_Concurrent(t *testing.T) {
	l := NewLedger()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Record(Attempt{Class: ClassCount, ContentType: "diagram", Success: j%2 == 0})
				l.SuccessRate(ClassCount, "diagram")
			}
		}()
	}
	wg.Wait()
	if l.Total() != 400 {
		t.Fatalf("Total = %d", l.Total())
	}
}

func TestPolicy_ShouldRetry(t *testing.T) {
	p := NewPolicy(nil, nil)
	ok, strategy := p.ShouldRetry("Diagram has 4 nodes, below minimum 10", "diagram", 0, 3)
	if !ok || strategy != StrategyFeedback {
		t.Fatalf("ShouldRetry = %v, %q", ok, strategy)
	}
	if ok, _ := p.ShouldRetry("x", "diagram", 2, 3); ok {
		t.Fatal("last attempt should not retry")
	}
	if _, s := p.ShouldRetry("Question 1 has 3 options; format must be", "questions", 0, 3); s != StrategyReformat {
		t.Fatalf("strategy = %q", s)
	}
}

func TestPolicy_RefusesLowSuccessRate(t *testing.T) {
	p := NewPolicy(nil, nil)
	for i := 0; i < 2; i++ {
		p.RecordAttempt(ClassCount, "below minimum", "diagram", 1, false, StrategyFeedback, "")
	}
	if ok, _ := p.ShouldRetry("Diagram has 4 nodes, below minimum 10", "diagram", 0, 3); !ok {
		t.Fatal("two samples are not enough to refuse")
	}
	p.RecordAttempt(ClassCount, "below minimum", "diagram", 1, false, StrategyFeedback, "")
	if ok, s := p.ShouldRetry("Diagram has 4 nodes, below minimum 10", "diagram", 0, 3); ok || s != StrategyGiveUp {
		t.Fatalf("ShouldRetry = %v, %q", ok, s)
	}
	if ok, _ := p.ShouldRetry("Diagram has 4 nodes, below minimum 10", "lecture", 0, 3); !ok {
		t.Fatal("other content types are unaffected")
	}
}

func TestPolicy_FeedbackDiagram(t *testing.T) {
	p := NewPolicy(nil, nil)
	m := analyze.Diagram("graph TD\nA-->B\nB-->C\nC-->D\n", config.DefaultContentRequirements().Diagram)
	fb := p.Feedback(m.Warnings[0], m.ContentType, m.Warnings, m.Requirements)
	for _, want := range []string{
		"REVISION REQUIRED",
		"COUNT issues:",
		"at least 10 nodes and 8 connections",
		"extend the diagram",
		"Do not add style, classDef or linkStyle lines",
	} {
		if !strings.Contains(fb, want) {
			t.Fatalf("feedback missing %q:\n%s", want, fb)
		}
	}
}

func TestPolicy_FeedbackCategoriesAndCap(t *testing.T) {
	p := NewPolicy(nil, nil)
	warnings := []string{
		"Missing safety section",
		"Question 1 has 3 options; format must be exactly four options labelled A-D",
		"Question 1 explanation has 2 words (need 20-50 words)",
		"Question 2 explanation has 2 words (need 20-50 words)",
		"Question 3 explanation has 2 words (need 20-50 words)",
		"Question 4 explanation has 2 words (need 20-50 words)",
	}
	req := analyze.Questions("", config.DefaultContentRequirements().Questions).Requirements
	fb := p.Feedback("", analyze.TypeQuestions, warnings, req)
	crit := strings.Index(fb, "CRITICAL issues:")
	format := strings.Index(fb, "FORMAT issues:")
	count := strings.Index(fb, "COUNT issues:")
	if crit < 0 || format < crit || count < format {
		t.Fatalf("category order wrong:\n%s", fb)
	}
	if strings.Contains(fb, "Question 4 explanation") {
		t.Fatalf("count category not capped:\n%s", fb)
	}
	if !strings.Contains(fb, "### Question N") || !strings.Contains(fb, "20-50 words") {
		t.Fatalf("format example missing:\n%s", fb)
	}
}

func TestPolicy_FeedbackThemed(t *testing.T) {
	p := NewPolicy(nil, nil)
	req := analyze.Sections("", analyze.InvestigationTheme, config.DefaultContentRequirements().Investigation).Requirements
	fb := p.Feedback("too short", analyze.TypeInvestigation, nil, req)
	if !strings.Contains(fb, "'## Research Question N: <title>'") || !strings.Contains(fb, "60-250 words") {
		t.Fatalf("feedback:\n%s", fb)
	}
}
