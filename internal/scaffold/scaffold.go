// Package scaffold writes a starter config directory: course.yaml,
// llm.yaml with the default prompt set, output.yaml and .env.example.
package scaffold

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jorge-barreto/coursegen/internal/config"
	"github.com/jorge-barreto/coursegen/internal/state"
	"github.com/jorge-barreto/coursegen/internal/ux"
)

type Options struct {
	CourseName string
	Model      string
	// Force overwrites an existing configuration.
	Force bool
}

const courseTemplate = `course:
  name: %s
  short_name: ""
  description: An introductory course.
  level: Introductory
  subject: general education
  # duration_weeks defaults to one week per session
  defaults:
    num_modules: 4
    total_sessions: 12
    # sessions_per_module: 3
  additional_constraints: ""
  course_template: standard
`

const outputTemplate = `output:
  base_directory: output
  directories:
    outlines: outlines
    modules: modules
  # history_db: ""   # empty disables run history
  logging:
    level: info
    mode: dev
    heartbeat_interval: 5
    progress_log_interval: 2

outline_generation:
  num_ctx: 8192
  num_predict: 4096
  items_per_field:
    subtopics: {min: 3, max: 7}
    learning_objectives: {min: 3, max: 7}
    key_concepts: {min: 3, max: 7}

content_generation:
  diagrams_per_session: 3
  max_diagram_workers: 4
  max_validation_attempts: 3
  on_lecture_failure: continue
  # extra_artifacts: [application, extension, visualization, integration, investigation, open_questions]
  lecture:
    min_word_count: 1000
    max_word_count: 3000
  diagram:
    min_nodes: 10
    min_connections: 8
`

const envTemplate = `# Copy to .env to override settings without editing config files.
# ` + config.EnvLanguage + `=English
# ` + config.EnvModel + `=llama3.1:8b
# ` + config.EnvLLMURL + `=http://localhost:11434/api/generate
`

type llmSection struct {
	Model             string             `yaml:"model"`
	APIURL            string             `yaml:"api_url"`
	Timeout           float64            `yaml:"timeout"`
	Language          string             `yaml:"language"`
	OperationTimeouts map[string]float64 `yaml:"operation_timeouts"`
	Parameters        map[string]any     `yaml:"parameters"`
}

type llmFile struct {
	LLM     llmSection               `yaml:"llm"`
	Prompts map[string]config.Prompt `yaml:"prompts"`
}

// Init writes the starter configuration into configDir.
func Init(configDir string, opts Options) error {
	if opts.CourseName == "" {
		opts.CourseName = "My Course"
	}
	if opts.Model == "" {
		opts.Model = "llama3.1:8b"
	}
	if !opts.Force {
		for _, f := range []string{config.CourseFile, config.LLMFile, config.OutputFile} {
			if _, err := os.Stat(filepath.Join(configDir, f)); err == nil {
				return fmt.Errorf("%s already exists in %s (use --force to overwrite)", f, configDir)
			}
		}
	}
	if err := state.EnsureDir(configDir); err != nil {
		return err
	}

	llmDoc, err := renderLLM(opts.Model)
	if err != nil {
		return err
	}
	files := []struct {
		name, desc string
		data       []byte
	}{
		{config.CourseFile, "course identity and size", []byte(fmt.Sprintf(courseTemplate, yamlScalar(opts.CourseName)))},
		{config.LLMFile, "model, timeouts and prompt templates", llmDoc},
		{config.OutputFile, "output layout and content requirements", []byte(outputTemplate)},
		{".env.example", "environment overrides", []byte(envTemplate)},
	}
	for _, f := range files {
		if err := state.WriteFileAtomic(filepath.Join(configDir, f.name), f.data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", f.name, err)
		}
	}

	fmt.Printf("\n%s%s✓ Initialized %s%s\n\n", ux.Bold, ux.Green, configDir, ux.Reset)
	fmt.Printf("  Created:\n")
	for _, f := range files {
		fmt.Printf("    %s%-28s%s %s\n", ux.Cyan, filepath.Join(configDir, f.name), ux.Reset, f.desc)
	}
	fmt.Printf("\n  Next steps:\n")
	fmt.Printf("    1. Edit %s%s%s to describe your course\n", ux.Cyan, filepath.Join(configDir, config.CourseFile), ux.Reset)
	fmt.Printf("    2. Run %scoursegen doctor%s to check the LLM service\n", ux.Cyan, ux.Reset)
	fmt.Printf("    3. Run %scoursegen run%s to generate the outline and content\n\n", ux.Cyan, ux.Reset)
	return nil
}

func renderLLM(model string) ([]byte, error) {
	doc := llmFile{
		LLM: llmSection{
			Model:    model,
			APIURL:   "http://localhost:11434/api/generate",
			Timeout:  120,
			Language: "English",
			OperationTimeouts: map[string]float64{
				"outline": 300,
				"lecture": 240,
				"lab":     180,
				"default": 150,
			},
			Parameters: map[string]any{"temperature": 0.7},
		},
		Prompts: DefaultPrompts(),
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", config.LLMFile, err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// yamlScalar quotes s when it would not survive as a plain YAML scalar.
func yamlScalar(s string) string {
	if strings.ContainsAny(s, ":#'\"{}[],&*!|>%@`") || strings.TrimSpace(s) != s {
		out, err := yaml.Marshal(s)
		if err == nil {
			return strings.TrimSpace(string(out))
		}
	}
	return s
}
