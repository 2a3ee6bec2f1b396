// Package outline drives stage 1: prompting the model for a course outline,
// extracting and validating the JSON, scoring it and persisting the result.
package outline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jorge-barreto/coursegen/internal/config"
	"github.com/jorge-barreto/coursegen/internal/course"
	"github.com/jorge-barreto/coursegen/internal/health"
	"github.com/jorge-barreto/coursegen/internal/llm"
	"github.com/jorge-barreto/coursegen/internal/logger"
	"github.com/jorge-barreto/coursegen/internal/quality"
	"github.com/jorge-barreto/coursegen/internal/state"
)

// Completer is the part of llm.Client the generator needs.
type Completer interface {
	Generate(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Diagnoser runs the pre-flight service and GPU checks.
type Diagnoser interface {
	Diagnostics(ctx context.Context, model string) health.Diagnostics
}

type Generator struct {
	settings *config.Settings
	llm      Completer
	health   Diagnoser
	log      *logger.Logger
	now      func() time.Time
}

type Option func(*Generator)

func WithDiagnoser(d Diagnoser) Option {
	return func(g *Generator) { g.health = d }
}

func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

func New(s *config.Settings, c Completer, log *logger.Logger, opts ...Option) *Generator {
	g := &Generator{settings: s, llm: c, log: logger.OrNop(log), now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Result is a persisted outline.
type Result struct {
	Outline      *course.Outline
	Report       quality.Report
	JSONPath     string
	MarkdownPath string
	MetadataPath string
	Warnings     []string
	Elapsed      time.Duration
}

// ValidationSummary is the validation block of the metadata document.
type ValidationSummary struct {
	QualityScore          int      `json:"quality_score"`
	QualityLevel          string   `json:"quality_level"`
	ValidForDownstream    bool     `json:"valid_for_downstream"`
	OverlapCount          int      `json:"overlap_count"`
	ProgressionIssueCount int      `json:"progression_issue_count"`
	BalanceIssueCount     int      `json:"balance_issue_count"`
	Issues                []string `json:"issues"`
	Warnings              []string `json:"warnings"`
}

// Metadata is written next to the outline as <name>_metadata.json.
type Metadata struct {
	GeneratedAt    time.Time         `json:"generated_at"`
	RequestID      string            `json:"request_id"`
	Model          string            `json:"model"`
	ElapsedSeconds float64           `json:"elapsed_seconds"`
	Attempts       int               `json:"attempts"`
	Parameters     map[string]any    `json:"parameters"`
	Course         map[string]any    `json:"course"`
	Validation     ValidationSummary `json:"validation"`
	Files          map[string]string `json:"files"`
}

// Generate runs stage 1 end to end.
func (g *Generator) Generate(ctx context.Context) (*Result, error) {
	start := g.now()
	c := g.settings.Course
	numModules := c.Defaults.NumModules
	totalSessions := c.Defaults.TotalSessions
	if numModules <= 0 || totalSessions <= 0 {
		return nil, &config.ConfigurationError{File: config.CourseFile, Msg: "num_modules and total_sessions must be > 0"}
	}
	perModule := (totalSessions + numModules - 1) / numModules
	if c.Defaults.SessionsPerModule != nil {
		perModule = *c.Defaults.SessionsPerModule
	}
	g.log.Info(fmt.Sprintf("outline: %q level=%s modules=%d sessions=%d (~%d per module)", c.Name, c.Level, numModules, totalSessions, perModule))

	g.preflight(ctx)

	timeout, warning := g.settings.OperationTimeout(string(llm.OpOutline))
	if warning != "" {
		g.log.Warn(warning)
	}
	params := map[string]any{}
	if g.settings.Outline.NumCtx > 0 {
		params["num_ctx"] = g.settings.Outline.NumCtx
	}
	if g.settings.Outline.NumPredict > 0 {
		params["num_predict"] = g.settings.Outline.NumPredict
	}
	resp, err := g.llm.Generate(ctx, llm.Request{
		Operation:       llm.OpOutline,
		Vars:            g.promptVars(perModule),
		TimeoutOverride: timeout,
		Parameters:      params,
	})
	if err != nil {
		return nil, fmt.Errorf("generating outline: %w", err)
	}

	raw, err := ExtractJSON(resp.Text)
	if err != nil {
		return nil, err
	}
	o, err := course.Parse(raw)
	if err != nil {
		return nil, err
	}

	var warnings []string
	for _, k := range course.MissingMetadataKeys(raw) {
		warnings = append(warnings, fmt.Sprintf("course_metadata.%s missing; filled in", k))
	}
	warnings = append(warnings, o.RenumberModules()...)
	warnings = append(warnings, o.ReconcileMetadata(g.defaultMetadata())...)
	if o.NormalizeSessionNumbers() {
		warnings = append(warnings, "session numbers renumbered globally from 1")
	}
	warnings = append(warnings, g.checkBounds(o)...)
	for _, w := range warnings {
		g.log.Warn("outline: " + w)
	}

	report := quality.Evaluate(o, numModules, totalSessions)
	report.Apply(&o.Metadata)
	g.log.Info(fmt.Sprintf("outline quality %d/100 (%s): overlaps=%d progression=%d balance=%d",
		report.Score, report.Label, len(report.Overlaps), len(report.Progression), len(report.Balance)))
	if !report.ValidForDownstream() {
		g.log.Warn("outline is below the quality bar for content generation; review it before running generate")
	}

	res := &Result{Outline: o, Report: report, Warnings: warnings, Elapsed: g.now().Sub(start)}
	if err := g.persist(res, resp, params); err != nil {
		return nil, err
	}
	return res, nil
}

func (g *Generator) preflight(ctx context.Context) {
	if g.health == nil {
		return
	}
	d := g.health.Diagnostics(ctx, g.settings.LLM.Model)
	if !d.Service.Available {
		g.log.Warn(fmt.Sprintf("pre-flight: LLM service at %s unavailable: %s", d.BaseURL, d.Service.Error))
		return
	}
	g.log.Info(fmt.Sprintf("pre-flight: service %s (%.0fms), model %s loaded=%v processor=%q",
		d.Service.Version, float64(d.Service.ResponseTime.Milliseconds()), d.Model.Model, d.Model.Loaded, d.Model.Processor))
	if !d.GPUInUse {
		g.log.Warn("pre-flight: no GPU in use; outline generation may be slow")
	}
}

func (g *Generator) promptVars(perModule int) map[string]any {
	c := g.settings.Course
	b := g.settings.OutlineBounds()
	return map[string]any{
		"course_name":            c.Name,
		"course_description":     c.Description,
		"course_level":           c.Level,
		"subject":                c.Subject,
		"duration_weeks":         g.durationWeeks(),
		"num_modules":            c.Defaults.NumModules,
		"total_sessions":         c.Defaults.TotalSessions,
		"sessions_per_module":    perModule,
		"min_subtopics":          b.Subtopics.Min,
		"max_subtopics":          b.Subtopics.Max,
		"min_objectives":         b.LearningObjectives.Min,
		"max_objectives":         b.LearningObjectives.Max,
		"min_concepts":           b.KeyConcepts.Min,
		"max_concepts":           b.KeyConcepts.Max,
		"additional_constraints": c.AdditionalConstraints,
		"course_template":        c.CourseTemplate,
		"language":               g.settings.Language(),
	}
}

// durationWeeks defaults to one session per week.
func (g *Generator) durationWeeks() int {
	if w := g.settings.Course.DurationWeeks; w != nil && *w > 0 {
		return *w
	}
	return g.settings.Course.Defaults.TotalSessions
}

func (g *Generator) defaultMetadata() course.Metadata {
	c := g.settings.Course
	return course.Metadata{
		Name:           c.Name,
		Description:    c.Description,
		Level:          c.Level,
		DurationWeeks:  g.durationWeeks(),
		CourseTemplate: c.CourseTemplate,
	}
}

// checkBounds reports per-session lists outside the configured ranges.
func (g *Generator) checkBounds(o *course.Outline) []string {
	b := g.settings.OutlineBounds()
	var out []string
	for _, ref := range o.Sessions() {
		s := ref.Session
		for _, f := range []struct {
			name string
			n    int
			r    config.Range
		}{
			{"subtopics", len(s.Subtopics), b.Subtopics},
			{"learning_objectives", len(s.LearningObjectives), b.LearningObjectives},
			{"key_concepts", len(s.KeyConcepts), b.KeyConcepts},
		} {
			if f.n < f.r.Min || f.n > f.r.Max {
				out = append(out, fmt.Sprintf("session %d has %d %s (expected %d-%d)", s.SessionNumber, f.n, f.name, f.r.Min, f.r.Max))
			}
		}
	}
	return out
}

func (g *Generator) persist(res *Result, resp *llm.Response, params map[string]any) error {
	dir := g.settings.OutputPaths("").Outlines
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating outline directory: %w", err)
	}
	generatedAt := g.now()
	base := uniqueBase(filepath.Join(dir, "course_outline_"+generatedAt.Format("20060102_150405")), resp.RequestID)
	res.JSONPath = base + ".json"
	res.MarkdownPath = base + ".md"
	res.MetadataPath = base + "_metadata.json"

	if err := state.WriteJSONAtomic(res.JSONPath, res.Outline); err != nil {
		return fmt.Errorf("writing outline JSON: %w", err)
	}
	if err := state.WriteFileAtomic(res.MarkdownPath, []byte(RenderMarkdown(res.Outline)), 0644); err != nil {
		return fmt.Errorf("writing outline Markdown: %w", err)
	}

	r := res.Report
	var issues []string
	for _, ov := range r.Overlaps {
		issues = append(issues, fmt.Sprintf("overlap %.2f: %q (session %d) / %q (session %d)", ov.Similarity, ov.A.Text, ov.A.SessionNumber, ov.B.Text, ov.B.SessionNumber))
	}
	for _, is := range append(append([]quality.Issue(nil), r.Progression...), r.Balance...) {
		issues = append(issues, is.Kind+": "+is.Message)
	}
	if r.ModuleCountMismatch {
		issues = append(issues, fmt.Sprintf("module count %d differs from requested %d", len(res.Outline.Modules), g.settings.Course.Defaults.NumModules))
	}
	c := g.settings.Course
	meta := Metadata{
		GeneratedAt:    generatedAt,
		RequestID:      resp.RequestID,
		Model:          g.settings.LLM.Model,
		ElapsedSeconds: res.Elapsed.Seconds(),
		Attempts:       resp.Attempts,
		Parameters:     params,
		Course: map[string]any{
			"name":           c.Name,
			"level":          c.Level,
			"subject":        c.Subject,
			"num_modules":    c.Defaults.NumModules,
			"total_sessions": c.Defaults.TotalSessions,
			"language":       g.settings.Language(),
		},
		Validation: ValidationSummary{
			QualityScore:          r.Score,
			QualityLevel:          r.Label,
			ValidForDownstream:    r.ValidForDownstream(),
			OverlapCount:          len(r.Overlaps),
			ProgressionIssueCount: len(r.Progression),
			BalanceIssueCount:     len(r.Balance),
			Issues:                nonNil(issues),
			Warnings:              nonNil(res.Warnings),
		},
		Files: map[string]string{
			"json":     filepath.Base(res.JSONPath),
			"markdown": filepath.Base(res.MarkdownPath),
		},
	}
	if err := state.WriteJSONAtomic(res.MetadataPath, meta); err != nil {
		return fmt.Errorf("writing outline metadata: %w", err)
	}
	g.log.Info("outline saved", "json", res.JSONPath, "markdown", res.MarkdownPath)
	return nil
}

// uniqueBase keeps runs within the same second from overwriting each other:
// an existing base gets the request id token appended, then a counter.
func uniqueBase(base, requestID string) string {
	taken := func(b string) bool {
		_, err := os.Stat(b + ".json")
		return err == nil
	}
	if !taken(base) {
		return base
	}
	if _, token, ok := strings.Cut(requestID, ":"); ok && token != "" {
		base += "_" + token
	} else {
		base += "_1"
	}
	candidate := base
	for n := 2; taken(candidate); n++ {
		candidate = fmt.Sprintf("%s_%d", base, n)
	}
	return candidate
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// IsOutlineFile reports whether name is a generated outline JSON document
// (not its metadata sidecar).
func IsOutlineFile(name string) bool {
	return strings.HasPrefix(name, "course_outline_") && strings.HasSuffix(name, ".json") && !strings.HasSuffix(name, "_metadata.json")
}
