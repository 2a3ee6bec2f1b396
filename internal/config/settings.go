package config

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Environment variables that override config values.
const (
	EnvLanguage = "COURSE_LANGUAGE"
	EnvLLMURL   = "COURSEGEN_LLM_URL"
	EnvModel    = "COURSEGEN_MODEL"
)

// Lecture failure policies.
const (
	LectureFailureContinue = "continue"
	LectureFailureAbort    = "abort"
)

const (
	minSaneTimeout = 30 * time.Second
	maxSaneTimeout = 900 * time.Second
)

// Settings is the read-only, typed view over course, LLM and output config.
type Settings struct {
	Course  CourseConfig
	LLM     LLMConfig
	Prompts map[string]Prompt
	Output  OutputConfig
	Outline OutlineGeneration
	Content ContentGeneration

	getenv func(string) string
}

func newDefaultSettings() *Settings {
	return &Settings{
		Course: CourseConfig{Subject: "general education"},
		LLM: LLMConfig{
			APIURL:              "http://localhost:11434/api/generate",
			Timeout:             120,
			OperationTimeouts:   map[string]float64{},
			Parameters:          map[string]any{},
			Language:            "English",
			MaxRetries:          3,
			RetryDelay:          1,
			ConnectTimeout:      5,
			HealthCheckInterval: 10,
			Stream:              DefaultStreamTuning(),
		},
		Prompts: map[string]Prompt{},
		Output: OutputConfig{
			BaseDirectory: "output",
			Directories:   DirectoryConfig{Outlines: "outlines", Modules: "modules"},
			Logging:       LoggingConfig{HeartbeatInterval: 5, ProgressLogInterval: 2, Level: "info", Mode: "dev"},
		},
		Outline: OutlineGeneration{ItemsPerField: DefaultOutlineBounds(), NumCtx: 8192, NumPredict: 4096},
		Content: ContentGeneration{
			DiagramsPerSession:    3,
			MaxDiagramWorkers:     4,
			MaxValidationAttempts: 3,
			OnLectureFailure:      LectureFailureContinue,
			Requirements:          DefaultContentRequirements(),
		},
	}
}

// Defaults returns Settings populated only with documented defaults. Tests
// and callers that build config programmatically start from here.
func Defaults() *Settings {
	return newDefaultSettings()
}

// DefaultStreamTuning returns the 1.5x/3.5x/0.5x multipliers and 30s/15s/5s windows.
func DefaultStreamTuning() StreamTuning {
	return StreamTuning{
		BaseMultiplier:      1.5,
		MaxMultiplier:       3.5,
		ExtensionMultiplier: 0.5,
		StuckInterval:       30,
		ChunkProgressWindow: 15,
		TextProgressWindow:  5,
	}
}

func (s *Settings) env(key string) string {
	if s.getenv == nil {
		return ""
	}
	return s.getenv(key)
}

// applyEnv records the environment lookup and applies URL/model overrides.
func (s *Settings) applyEnv(getenv func(string) string) {
	s.getenv = getenv
	if v := strings.TrimSpace(s.env(EnvLLMURL)); v != "" {
		s.LLM.APIURL = v
	}
	if v := strings.TrimSpace(s.env(EnvModel)); v != "" {
		s.LLM.Model = v
	}
}

// SetEnv replaces the environment lookup used for overrides.
func (s *Settings) SetEnv(getenv func(string) string) {
	s.applyEnv(getenv)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// BaseTimeout is the llm.timeout value.
func (s *Settings) BaseTimeout() time.Duration {
	return seconds(s.LLM.Timeout)
}

// OperationTimeout resolves op's timeout: the operation override, else
// operation_timeouts.default, else the base timeout. The second return
// value carries a warning for values outside 30s..900s.
func (s *Settings) OperationTimeout(op string) (time.Duration, string) {
	v, ok := s.LLM.OperationTimeouts[op]
	if !ok || v <= 0 {
		v, ok = s.LLM.OperationTimeouts["default"]
	}
	if !ok || v <= 0 {
		v = s.LLM.Timeout
	}
	d := seconds(v)
	var warning string
	switch {
	case d < minSaneTimeout:
		warning = fmt.Sprintf("timeout for %s is %s (< %s); long generations will likely time out", op, d, minSaneTimeout)
	case d > maxSaneTimeout:
		warning = fmt.Sprintf("timeout for %s is %s (> %s); stuck requests will block for a long time", op, d, maxSaneTimeout)
	}
	return d, warning
}

// OutlineBounds returns the per-session outline list bounds, with defaults
// filling any unset range.
func (s *Settings) OutlineBounds() OutlineBounds {
	b := s.Outline.ItemsPerField
	d := DefaultOutlineBounds()
	fill := func(r *Range, def Range) {
		if r.Min <= 0 {
			r.Min = def.Min
		}
		if r.Max <= 0 {
			r.Max = def.Max
		}
	}
	fill(&b.Subtopics, d.Subtopics)
	fill(&b.LearningObjectives, d.LearningObjectives)
	fill(&b.KeyConcepts, d.KeyConcepts)
	return b
}

// ContentRequirements returns the artifact requirements.
func (s *Settings) ContentRequirements() ContentRequirements {
	return s.Content.Requirements
}

// Language resolves COURSE_LANGUAGE, then llm.language, then "English".
func (s *Settings) Language() string {
	if v := strings.TrimSpace(s.env(EnvLanguage)); v != "" {
		return v
	}
	if v := strings.TrimSpace(s.LLM.Language); v != "" {
		return v
	}
	return "English"
}

// LoggingIntervals holds heartbeat and progress-log cadences.
type LoggingIntervals struct {
	Heartbeat   time.Duration
	ProgressLog time.Duration
}

// LoggingIntervals returns the configured intervals, falling back to 5s and
// 2s for non-positive values.
func (s *Settings) LoggingIntervals() LoggingIntervals {
	li := LoggingIntervals{
		Heartbeat:   seconds(s.Output.Logging.HeartbeatInterval),
		ProgressLog: seconds(s.Output.Logging.ProgressLogInterval),
	}
	if li.Heartbeat <= 0 {
		li.Heartbeat = 5 * time.Second
	}
	if li.ProgressLog <= 0 {
		li.ProgressLog = 2 * time.Second
	}
	return li
}

// StreamTuning returns the stream knobs with defaults for non-positive values.
func (s *Settings) StreamTuning() StreamTuning {
	t := s.LLM.Stream
	d := DefaultStreamTuning()
	for _, f := range []struct {
		v   *float64
		def float64
	}{
		{&t.BaseMultiplier, d.BaseMultiplier},
		{&t.MaxMultiplier, d.MaxMultiplier},
		{&t.ExtensionMultiplier, d.ExtensionMultiplier},
		{&t.StuckInterval, d.StuckInterval},
		{&t.ChunkProgressWindow, d.ChunkProgressWindow},
		{&t.TextProgressWindow, d.TextProgressWindow},
	} {
		if *f.v <= 0 {
			*f.v = f.def
		}
	}
	if t.MaxMultiplier < t.BaseMultiplier {
		t.MaxMultiplier = t.BaseMultiplier
	}
	return t
}

// ConnectTimeout defaults to 5s.
func (s *Settings) ConnectTimeout() time.Duration {
	if s.LLM.ConnectTimeout <= 0 {
		return 5 * time.Second
	}
	return seconds(s.LLM.ConnectTimeout)
}

// HealthCheckInterval defaults to 10s.
func (s *Settings) HealthCheckInterval() time.Duration {
	if s.LLM.HealthCheckInterval <= 0 {
		return 10 * time.Second
	}
	return seconds(s.LLM.HealthCheckInterval)
}

// RetryDelay is the backoff base, default 1s.
func (s *Settings) RetryDelay() time.Duration {
	if s.LLM.RetryDelay <= 0 {
		return time.Second
	}
	return seconds(s.LLM.RetryDelay)
}

// MaxRetries defaults to 3 attempts.
func (s *Settings) MaxRetries() int {
	if s.LLM.MaxRetries <= 0 {
		return 3
	}
	return s.LLM.MaxRetries
}

// PromptTemplate looks up a named prompt.
func (s *Settings) PromptTemplate(name string) (Prompt, bool) {
	p, ok := s.Prompts[name]
	return p, ok
}

// DiagramsPerSession is the number of subtopic diagrams per session (default 3).
func (s *Settings) DiagramsPerSession() int {
	if s.Content.DiagramsPerSession < 0 {
		return 0
	}
	return s.Content.DiagramsPerSession
}

// MaxDiagramWorkers is clamped to 1..4.
func (s *Settings) MaxDiagramWorkers() int {
	n := s.Content.MaxDiagramWorkers
	if n < 1 {
		n = 1
	}
	if n > 4 {
		n = 4
	}
	return n
}

// MaxValidationAttempts defaults to 3.
func (s *Settings) MaxValidationAttempts() int {
	if s.Content.MaxValidationAttempts < 1 {
		return 3
	}
	return s.Content.MaxValidationAttempts
}

// LectureFailurePolicy is "continue" (default) or "abort".
func (s *Settings) LectureFailurePolicy() string {
	if strings.EqualFold(s.Content.OnLectureFailure, LectureFailureAbort) {
		return LectureFailureAbort
	}
	return LectureFailureContinue
}

// ExtraArtifacts lists the optional per-session artifact kinds to generate.
func (s *Settings) ExtraArtifacts() []string {
	return s.Content.ExtraArtifacts
}

// OutputPaths is the per-course output layout.
type OutputPaths struct {
	Base     string
	Course   string
	Outlines string
	Modules  string
	Slug     string
}

// OutputPaths returns the layout under output/<course_slug>/. When
// courseName is empty the slug derives from course.short_name, then
// course.name.
func (s *Settings) OutputPaths(courseName string) OutputPaths {
	name := strings.TrimSpace(courseName)
	if name == "" {
		name = s.Course.ShortName
	}
	if strings.TrimSpace(name) == "" {
		name = s.Course.Name
	}
	slug := Slugify(name)
	if slug == "" {
		slug = "course"
	}
	base := s.Output.BaseDirectory
	if base == "" {
		base = "output"
	}
	outlines := s.Output.Directories.Outlines
	if outlines == "" {
		outlines = "outlines"
	}
	modules := s.Output.Directories.Modules
	if modules == "" {
		modules = "modules"
	}
	course := filepath.Join(base, slug)
	return OutputPaths{
		Base:     base,
		Course:   course,
		Outlines: filepath.Join(course, outlines),
		Modules:  filepath.Join(course, modules),
		Slug:     slug,
	}
}

// HistoryPath returns the sqlite history path, or "" when disabled.
func (s *Settings) HistoryPath() string {
	if s.Output.HistoryDB != nil {
		return strings.TrimSpace(*s.Output.HistoryDB)
	}
	base := s.Output.BaseDirectory
	if base == "" {
		base = "output"
	}
	return filepath.Join(base, "history.db")
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

const maxSlugLen = 48

// Slugify lowercases s and joins alphanumeric runs with underscores.
func Slugify(s string) string {
	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(s), "_"), "_")
	if len(slug) > maxSlugLen {
		slug = strings.TrimRight(slug[:maxSlugLen], "_")
	}
	return slug
}

var modelSizeRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)b\b`)

// modelSizeB extracts the parameter count in billions from a model id such
// as "llama3.1:8b" or "gemma3:27b".
func modelSizeB(model string) (float64, bool) {
	m := modelSizeRe.FindStringSubmatch(model)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// suggestedTimeout maps a model size to a base timeout that usually
// accommodates a full lecture on consumer hardware.
func suggestedTimeout(sizeB float64) time.Duration {
	switch {
	case sizeB >= 30:
		return 600 * time.Second
	case sizeB >= 13:
		return 300 * time.Second
	case sizeB >= 7:
		return 180 * time.Second
	default:
		return 120 * time.Second
	}
}
