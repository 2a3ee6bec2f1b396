package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// File names inside the config directory.
const (
	CourseFile = "course.yaml"
	LLMFile    = "llm.yaml"
	OutputFile = "output.yaml"
)

// ConfigurationError reports a malformed or structurally incomplete config document.
type ConfigurationError struct {
	File string
	Msg  string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.File, e.Msg, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.File, e.Msg)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

type CourseDefaults struct {
	NumModules        int  `yaml:"num_modules"`
	TotalSessions     int  `yaml:"total_sessions"`
	SessionsPerModule *int `yaml:"sessions_per_module"`
}

type CourseConfig struct {
	Name                  string         `yaml:"name"`
	ShortName             string         `yaml:"short_name"`
	Description           string         `yaml:"description"`
	Level                 string         `yaml:"level"`
	Subject               string         `yaml:"subject"`
	DurationWeeks         *int           `yaml:"duration_weeks"`
	Defaults              CourseDefaults `yaml:"defaults"`
	AdditionalConstraints string         `yaml:"additional_constraints"`
	CourseTemplate        string         `yaml:"course_template"`
}

// Prompt is a named prompt template. Template uses {name} for substitution
// and {{ }} for literal braces.
type Prompt struct {
	System   string `yaml:"system"`
	Template string `yaml:"template"`
}

// StreamTuning holds the adaptive stream timeout knobs. Multipliers apply to
// the effective operation timeout; intervals are seconds.
type StreamTuning struct {
	BaseMultiplier      float64 `yaml:"base_multiplier"`
	MaxMultiplier       float64 `yaml:"max_multiplier"`
	ExtensionMultiplier float64 `yaml:"extension_multiplier"`
	StuckInterval       float64 `yaml:"stuck_interval"`
	ChunkProgressWindow float64 `yaml:"chunk_progress_window"`
	TextProgressWindow  float64 `yaml:"text_progress_window"`
}

type LLMConfig struct {
	Model               string             `yaml:"model"`
	APIURL              string             `yaml:"api_url"`
	Timeout             float64            `yaml:"timeout"`
	OperationTimeouts   map[string]float64 `yaml:"operation_timeouts"`
	Parameters          map[string]any     `yaml:"parameters"`
	Language            string             `yaml:"language"`
	MaxRetries          int                `yaml:"max_retries"`
	RetryDelay          float64            `yaml:"retry_delay"`
	ConnectTimeout      float64            `yaml:"connect_timeout"`
	HealthCheckInterval float64            `yaml:"health_check_interval"`
	Stream              StreamTuning       `yaml:"stream"`
}

type LoggingConfig struct {
	HeartbeatInterval   float64 `yaml:"heartbeat_interval"`
	ProgressLogInterval float64 `yaml:"progress_log_interval"`
	Level               string  `yaml:"level"`
	Mode                string  `yaml:"mode"`
}

type DirectoryConfig struct {
	Outlines string `yaml:"outlines"`
	Modules  string `yaml:"modules"`
}

type OutputConfig struct {
	BaseDirectory string          `yaml:"base_directory"`
	Directories   DirectoryConfig `yaml:"directories"`
	Logging       LoggingConfig   `yaml:"logging"`
	HistoryDB     *string         `yaml:"history_db"`
}

type Range struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// OutlineBounds sizes the per-session lists of a generated outline.
type OutlineBounds struct {
	Subtopics          Range `yaml:"subtopics"`
	LearningObjectives Range `yaml:"learning_objectives"`
	KeyConcepts        Range `yaml:"key_concepts"`
}

type OutlineGeneration struct {
	ItemsPerField OutlineBounds `yaml:"items_per_field"`
	NumCtx        int           `yaml:"num_ctx"`
	NumPredict    int           `yaml:"num_predict"`
}

type ContentGeneration struct {
	DiagramsPerSession    int                 `yaml:"diagrams_per_session"`
	MaxDiagramWorkers     int                 `yaml:"max_diagram_workers"`
	MaxValidationAttempts int                 `yaml:"max_validation_attempts"`
	OnLectureFailure      string              `yaml:"on_lecture_failure"`
	ExtraArtifacts        []string            `yaml:"extra_artifacts"`
	Requirements          ContentRequirements `yaml:",inline"`
}

type courseDoc struct {
	Course *CourseConfig `yaml:"course"`
}

type llmDoc struct {
	LLM     *LLMConfig        `yaml:"llm"`
	Prompts map[string]Prompt `yaml:"prompts"`
}

type outputDoc struct {
	Output            *OutputConfig      `yaml:"output"`
	OutlineGeneration *OutlineGeneration `yaml:"outline_generation"`
	ContentGeneration *ContentGeneration `yaml:"content_generation"`
}

// Load reads course.yaml, llm.yaml and output.yaml from dir.
func Load(dir string) (*Settings, error) {
	return LoadFiles(
		filepath.Join(dir, CourseFile),
		filepath.Join(dir, LLMFile),
		filepath.Join(dir, OutputFile),
	)
}

// LoadFiles reads the three config documents from explicit paths and
// returns validated, default-populated Settings. output.yaml may be absent.
func LoadFiles(coursePath, llmPath, outputPath string) (*Settings, error) {
	s := newDefaultSettings()

	cd := courseDoc{Course: &s.Course}
	if err := readYAML(coursePath, &cd, "course"); err != nil {
		return nil, err
	}
	if cd.Course == nil {
		return nil, &ConfigurationError{File: coursePath, Msg: "section 'course' is empty"}
	}
	s.Course = *cd.Course

	ld := llmDoc{LLM: &s.LLM}
	if err := readYAML(llmPath, &ld, "llm"); err != nil {
		return nil, err
	}
	if ld.LLM == nil {
		return nil, &ConfigurationError{File: llmPath, Msg: "section 'llm' is empty"}
	}
	s.LLM = *ld.LLM
	s.Prompts = ld.Prompts
	if s.Prompts == nil {
		s.Prompts = map[string]Prompt{}
	}

	if _, err := os.Stat(outputPath); err == nil {
		od := outputDoc{Output: &s.Output, OutlineGeneration: &s.Outline, ContentGeneration: &s.Content}
		if err := readYAML(outputPath, &od); err != nil {
			return nil, err
		}
		if od.Output != nil {
			s.Output = *od.Output
		}
		if od.OutlineGeneration != nil {
			s.Outline = *od.OutlineGeneration
		}
		if od.ContentGeneration != nil {
			s.Content = *od.ContentGeneration
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, &ConfigurationError{File: outputPath, Msg: "cannot read file", Err: err}
	}

	s.applyEnv(os.Getenv)
	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}

// readYAML decodes path into out. Each name in required must be present as a
// top-level key.
func readYAML(path string, out any, required ...string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &ConfigurationError{File: path, Msg: "cannot read file", Err: err}
	}
	var probe map[string]yaml.Node
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return &ConfigurationError{File: path, Msg: "malformed YAML", Err: err}
	}
	for _, key := range required {
		if _, ok := probe[key]; !ok {
			return &ConfigurationError{File: path, Msg: fmt.Sprintf("missing required section '%s'", key)}
		}
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return &ConfigurationError{File: path, Msg: "malformed YAML", Err: err}
	}
	return nil
}
