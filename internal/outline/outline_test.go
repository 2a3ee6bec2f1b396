package outline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jorge-barreto/coursegen/internal/config"
	"github.com/jorge-barreto/coursegen/internal/course"
	"github.com/jorge-barreto/coursegen/internal/health"
	"github.com/jorge-barreto/coursegen/internal/llm"
)

type fakeLLM struct {
	text string
	err  error
	reqs []llm.Request
}

func (f *fakeLLM) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.text, RequestID: "out:abc123", Attempts: 1}, nil
}

type fakeDiagnoser struct{ calls int }

func (f *fakeDiagnoser) Diagnostics(context.Context, string) health.Diagnostics {
	f.calls++
	return health.Diagnostics{Service: health.ServiceStatus{Available: true, Version: "0.5.0"}, GPUInUse: true}
}

func outlineJSON(numbers ...int) string {
	topics := [][]string{
		{"Cell Theory", "cell theory", "microscopy", "prokaryotes"},
		{"Membranes", "lipid bilayer", "transport proteins", "osmosis"},
		{"Genetics", "dna structure", "replication", "mutation"},
		{"Ecology", "food webs", "populations", "biomes"},
	}
	var sessions []string
	for i, n := range numbers {
		t := topics[i%len(topics)]
		sessions = append(sessions, fmt.Sprintf(`{"session_number": %d, "session_title": %q,
			"subtopics": [%q, %q, %q],
			"learning_objectives": ["Explain %s", "Describe %s", "Apply %s"],
			"key_concepts": ["%s concept", "%s idea", "%s term"],
			"rationale": "Builds on the previous session."}`,
			n, t[0], t[1], t[2], t[3], t[1], t[2], t[3], t[1], t[2], t[3]))
	}
	half := len(sessions) / 2
	return fmt.Sprintf(`{"course_metadata": {"name": "Test Biology", "level": "Intro", "duration_weeks": 4, "total_sessions": %d, "total_modules": 2},
	"modules": [
		{"module_id": 1, "module_name": "Foundations", "sessions": [%s]},
		{"module_id": 2, "module_name": "Systems", "sessions": [%s]}
	]}`, len(sessions), strings.Join(sessions[:half], ","), strings.Join(sessions[half:], ","))
}

func testSettings(t *testing.T) *config.Settings {
	t.Helper()
	s := config.Defaults()
	s.Course.Name = "Test Biology"
	s.Course.Description = "Test course"
	s.Course.Level = "Intro"
	s.Course.Defaults.NumModules = 2
	s.Course.Defaults.TotalSessions = 4
	s.LLM.Model = "llama3.1:8b"
	s.Output.BaseDirectory = t.TempDir()
	return s
}

func fixedClock() func() time.Time {
	t0 := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return func() time.Time { return t0 }
}

func TestGenerate_HappyPath(t *testing.T) {
	s := testSettings(t)
	f := &fakeLLM{text: "Here is the outline:\n```json\n" + outlineJSON(1, 2, 3, 4) + "\n```\n"}
	d := &fakeDiagnoser{}
	res, err := New(s, f, nil, WithDiagnoser(d), WithClock(fixedClock())).Generate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if d.calls != 1 {
		t.Fatalf("preflight calls = %d", d.calls)
	}
	if len(f.reqs) != 1 || f.reqs[0].Operation != llm.OpOutline || f.reqs[0].Parameters["num_ctx"] != 8192 {
		t.Fatalf("request = %+v", f.reqs)
	}
	if f.reqs[0].Vars["course_name"] != "Test Biology" || f.reqs[0].Vars["sessions_per_module"] != 2 {
		t.Fatalf("vars = %+v", f.reqs[0].Vars)
	}

	o := res.Outline
	if len(o.Modules) != 2 {
		t.Fatalf("modules = %d", len(o.Modules))
	}
	for i, ref := range o.Sessions() {
		s := ref.Session
		if s.SessionNumber != i+1 {
			t.Fatalf("session %d numbered %d", i, s.SessionNumber)
		}
		if len(s.Subtopics) < 3 || len(s.LearningObjectives) < 3 || len(s.KeyConcepts) < 3 {
			t.Fatalf("session %d too thin: %+v", s.SessionNumber, s)
		}
	}
	if sc := o.Metadata.QualityScore; sc == nil || *sc < 0 || *sc > 100 {
		t.Fatalf("quality score = %v", sc)
	}

	wantBase := "course_outline_20260314_092653"
	if filepath.Base(res.JSONPath) != wantBase+".json" || filepath.Base(res.MarkdownPath) != wantBase+".md" {
		t.Fatalf("paths = %s, %s", res.JSONPath, res.MarkdownPath)
	}
	for _, p := range []string{res.JSONPath, res.MarkdownPath, res.MetadataPath} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("missing %s: %v", p, err)
		}
	}
	reloaded, err := course.Load(res.JSONPath)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Metadata.QualityLevel == "" || reloaded.TotalSessions() != 4 {
		t.Fatalf("reloaded = %+v", reloaded.Metadata)
	}
	data, _ := os.ReadFile(res.MetadataPath)
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatal(err)
	}
	if meta.RequestID != "out:abc123" || meta.Files["json"] != wantBase+".json" {
		t.Fatalf("metadata = %+v", meta)
	}
	md, _ := os.ReadFile(res.MarkdownPath)
	if !strings.Contains(string(md), "## Module 1: Foundations") || !strings.Contains(string(md), "### Session 4:") {
		t.Fatalf("markdown:\n%s", md)
	}
}

func TestGenerate_MalformedThenValid(t *testing.T) {
	s := testSettings(t)
	f := &fakeLLM{text: "Draft: {bad json}\nFinal answer:\n" + outlineJSON(1, 2, 3, 4) + "\nThanks!"}
	res, err := New(s, f, nil, WithClock(fixedClock())).Generate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Outline.Metadata.Name != "Test Biology" || len(res.Outline.Modules) != 2 {
		t.Fatalf("outline = %+v", res.Outline.Metadata)
	}
}

func TestGenerate_NonSequentialSessions(t *testing.T) {
	s := testSettings(t)
	s.Course.Defaults.TotalSessions = 4
	f := &fakeLLM{text: outlineJSON(5, 10, 3, 3)}
	res, err := New(s, f, nil, WithClock(fixedClock())).Generate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var titles, nums []string
	for _, ref := range res.Outline.Sessions() {
		nums = append(nums, fmt.Sprint(ref.Session.SessionNumber))
		titles = append(titles, ref.Session.SessionTitle)
	}
	if strings.Join(nums, ",") != "1,2,3,4" {
		t.Fatalf("numbers = %v", nums)
	}
	if strings.Join(titles, ",") != "Cell Theory,Membranes,Genetics,Ecology" {
		t.Fatalf("order = %v", titles)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "renumbered") {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings = %v", res.Warnings)
	}
}

func TestGenerate_MissingMetadataKeysWarn(t *testing.T) {
	s := testSettings(t)
	text := strings.Replace(outlineJSON(1, 2, 3, 4), `"name": "Test Biology", "level": "Intro", "duration_weeks": 4, `, "", 1)
	res, err := New(s, &fakeLLM{text: text}, nil, WithClock(fixedClock())).Generate(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	joined := strings.Join(res.Warnings, "\n")
	for _, k := range []string{"name", "level", "duration_weeks"} {
		if !strings.Contains(joined, "course_metadata."+k+" missing") {
			t.Errorf("no warning for %s:\n%s", k, joined)
		}
	}
	if strings.Contains(joined, "course_metadata.total_sessions missing") {
		t.Errorf("unexpected total_sessions warning:\n%s", joined)
	}
	if res.Outline.Metadata.Name != "Test Biology" || res.Outline.Metadata.Level != "Intro" {
		t.Errorf("metadata not filled: %+v", res.Outline.Metadata)
	}
}

func TestGenerate_Errors(t *testing.T) {
	s := testSettings(t)
	_, err := New(s, &fakeLLM{text: "I cannot produce JSON today."}, nil).Generate(context.Background())
	var je *JSONExtractionError
	if !errors.As(err, &je) || !strings.Contains(je.Preview, "cannot produce") {
		t.Fatalf("got %v", err)
	}

	_, err = New(s, &fakeLLM{text: `{"course_metadata": {}, "modules": [{"module_id": 1}]}`}, nil).Generate(context.Background())
	var ve *course.OutlineValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("got %v", err)
	}

	boom := &llm.ConnectionError{RequestID: "out:000000", URL: "http://x", Err: errors.New("refused")}
	_, err = New(s, &fakeLLM{err: boom}, nil).Generate(context.Background())
	var ce *llm.ConnectionError
	if !errors.As(err, &ce) {
		t.Fatalf("got %v", err)
	}
	entries, _ := os.ReadDir(s.OutputPaths("").Outlines)
	if len(entries) != 0 {
		t.Fatalf("failed runs must not write files: %v", entries)
	}
}

func TestExtractJSON_Strategies(t *testing.T) {
	cases := map[string]string{
		"json fence":   "```json\n{\"a\": 1}\n```",
		"any fence":    "```\n{\"a\": 1}\n```",
		"balanced":     "prefix {\"a\": {\"b\": \"}\"}} suffix",
		"raw":          "{\"a\": 1}",
		"modules wins": "{\"x\": 1} then {\"modules\": [], \"a\": 1}",
	}
	for name, text := range cases {
		m, err := ExtractJSON(text)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if _, ok := m["a"]; !ok {
			t.Fatalf("%s: got %v", name, m)
		}
	}
}

func TestIsOutlineFile(t *testing.T) {
	if !IsOutlineFile("course_outline_20260101_000000.json") {
		t.Fatal("outline not recognised")
	}
	if IsOutlineFile("course_outline_20260101_000000_metadata.json") || IsOutlineFile("course_outline_x.md") {
		t.Fatal("sidecar or markdown recognised")
	}
}
