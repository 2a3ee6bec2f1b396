package docs

var topics = []Topic{
	{
		Name:    "quickstart",
		Title:   "Quick Start",
		Summary: "Getting started with coursegen",
		Content: topicQuickstart,
	},
	{
		Name:    "config",
		Title:   "Configuration Reference",
		Summary: "course.yaml, llm.yaml and output.yaml fields and defaults",
		Content: topicConfig,
	},
	{
		Name:    "prompts",
		Title:   "Prompt Templates",
		Summary: "Placeholder syntax and the variables each prompt receives",
		Content: topicPrompts,
	},
	{
		Name:    "pipeline",
		Title:   "Generation Pipeline",
		Summary: "Stage 1 outline, stage 2 content, validation and retries",
		Content: topicPipeline,
	},
	{
		Name:    "output",
		Title:   "Output Layout",
		Summary: "Directory structure, state files and run history",
		Content: topicOutput,
	},
	{
		Name:    "troubleshooting",
		Title:   "Troubleshooting",
		Summary: "Timeouts, stuck streams, connection errors and resuming",
		Content: topicTroubleshooting,
	},
}

const topicQuickstart = `Quick Start
===========

1. Scaffold a config directory:

    coursegen init --course "Introduction to Cell Biology"

   This creates config/course.yaml, config/llm.yaml (with default
   prompts), config/output.yaml and config/.env.example.

2. Start the LLM service and pull the model named in llm.yaml:

    ollama serve
    ollama pull llama3.1:8b

3. Check the service, model and timeouts:

    coursegen doctor

4. Generate the outline, then the course content:

    coursegen outline
    coursegen generate

   or both at once:

    coursegen run

5. Check progress:

    coursegen status

CLI
---

  coursegen init [--course NAME] [--model M] [--force]
  coursegen outline
  coursegen generate [--outline PATH] [--modules 1,3] [--skip-existing] [--force]
  coursegen run [--modules 1,3]
  coursegen doctor
  coursegen status [--limit N]
  coursegen docs [topic]

Global flags: --config-dir (default config), --log-level, --log-mode.
`

const topicConfig = `Configuration Reference
=======================

Settings come from three YAML files in the config directory. Missing
keys fall back to the defaults shown here.

course.yaml
-----------

  course:
    name: Introduction to Cell Biology      (required)
    short_name: bio101                      (optional, used for the output slug)
    description: ...
    level: Introductory
    subject: general education
    duration_weeks: 12                      (default: one week per session)
    defaults:
      num_modules: 4                        (required, > 0)
      total_sessions: 12                    (required, > 0)
      sessions_per_module: 3                (optional, derived when absent)
    additional_constraints: ""
    course_template: standard

llm.yaml
--------

  llm:
    model: llama3.1:8b                      (required)
    api_url: http://localhost:11434/api/generate
    timeout: 120                            (base timeout, seconds)
    operation_timeouts:                     (per operation, seconds)
      outline: 300
      default: 150                          (fallback before the base)
    language: English
    max_retries: 3
    retry_delay: 1
    connect_timeout: 5
    health_check_interval: 10
    parameters: {temperature: 0.7}
    stream:
      base_multiplier: 1.5
      max_multiplier: 3.5
      extension_multiplier: 0.5
      stuck_interval: 30
      chunk_progress_window: 15
      text_progress_window: 5
  prompts:
    <name>: {system: ..., template: ...}

output.yaml
-----------

  output:
    base_directory: output
    directories: {outlines: outlines, modules: modules}
    history_db: output/history.db           (empty string disables history)
    logging: {level: info, mode: dev, heartbeat_interval: 5, progress_log_interval: 2}
  outline_generation:
    num_ctx: 8192
    num_predict: 4096
    items_per_field:
      subtopics: {min: 3, max: 7}
      learning_objectives: {min: 3, max: 7}
      key_concepts: {min: 3, max: 7}
  content_generation:
    diagrams_per_session: 3
    max_diagram_workers: 4                  (clamped to 1..4)
    max_validation_attempts: 3
    on_lecture_failure: continue            (continue | abort)
    extra_artifacts: []                     (application, extension, visualization,
                                             integration, investigation, open_questions)
    lecture: {min_word_count: 1000, max_word_count: 3000, min_examples: 3, ...}
    lab: {min_steps: 5, max_steps: 25, require_safety: true, require_table: true, ...}
    study_notes: {min_key_concepts: 3, max_key_concepts: 12, max_word_count: 1500}
    questions: {min_questions: 5, max_questions: 15, ...}
    diagram: {min_nodes: 10, min_connections: 8, max_label_length: 40}

Environment
-----------

  COURSE_LANGUAGE      overrides llm.language
  COURSEGEN_MODEL      overrides llm.model
  COURSEGEN_LLM_URL    overrides llm.api_url

A .env file in the working directory is loaded first; variables already
set in the environment win.
`

const topicPrompts = `Prompt Templates
================

Prompts live under "prompts:" in llm.yaml. Each has an optional system
prompt and a template.

Syntax
------

  {name}     replaced by the variable "name"
  {{ and }}  literal braces (use them for JSON examples)

A template that uses a variable the generator does not supply fails
before any request is sent, naming the missing variables. System
prompts are rendered leniently: unknown placeholders stay as written.

Variables
---------

outline:
  course_name, course_description, course_level, subject, duration_weeks,
  num_modules, total_sessions, sessions_per_module, min_subtopics,
  max_subtopics, min_objectives, max_objectives, min_concepts,
  max_concepts, additional_constraints, course_template, language

every session artifact:
  course_name, course_level, subject, language, module_number,
  module_name, module_description, session_number, session_title,
  subtopics, learning_objectives, key_concepts, rationale, outline_context

lecture:         min_words, max_words, min_sections, max_sections,
                 min_examples, max_examples
lab:             lecture_content, min_steps, max_steps, min_words, max_words
study_notes:     lecture_content, min_concepts, max_concepts, max_words
questions:       lecture_content, lab_content, min_questions, max_questions,
                 min_explanation_words, max_explanation_words
diagram:         subtopic, diagram_number, min_nodes, min_connections,
                 max_label_length
visualization:   lecture_content plus the diagram variables
application, extension, integration, investigation, open_questions:
                 lecture_content, min_sections, max_sections,
                 min_words_per_section, max_words_per_section, max_total_words

On a validation retry a "REVISION REQUIRED" block listing the problems
is appended to the rendered prompt.
`

const topicPipeline = `Generation Pipeline
===================

Stage 1: outline
----------------

1. Pre-flight check of the service and model.
2. One streaming request with the outline prompt.
3. JSON extraction: json code block, any code block, the first balanced
   object with a "modules" key, then the raw text.
4. Structure validation and repair: session numbers renumbered 1..N,
   module ids made sequential, metadata counts set to the real counts.
   Missing course_metadata keys are filled from course.yaml with a warning.
5. Quality checks: topic overlap, concept progression and module
   balance, combined into a 0..100 score and a label (excellent, good,
   acceptable, needs-improvement).
6. The outline is written as JSON and Markdown with a metadata sidecar.

An outline scoring below 60, or one that introduces an advanced concept
too early, fails the quality bar. "run" stops after the outline and
"generate" refuses it unless --force is given.

Stage 2: content
----------------

For each session, in outline order:

  lecture -> lab -> study notes -> questions -> extra artifacts
  diagrams (one per subtopic, up to diagrams_per_session, in parallel)

The lab, notes and questions receive the lecture text; the questions
also receive the lab. Every artifact goes through the same loop:

  request -> cleanup -> analyze -> retry with feedback when invalid

Up to max_validation_attempts attempts are made and the best-scoring
one is kept. Retries are skipped for error classes whose recorded
success rate has fallen below 20% over at least 3 attempts.

Transport errors that look transient (timeouts, refused connections,
HTTP 5xx) are retried up to 2 more times with exponential backoff.

A failed artifact never stops the session. A failed lecture marks the
session failed; with on_lecture_failure: continue the remaining
artifacts are generated without lecture context, with abort the run
stops after that session.

After the last session the stage reports average scores per artifact
kind and re-checks concept progression across the whole outline.
`

const topicOutput = `Output Layout
=============

  output/<course_slug>/
    outlines/
      course_outline_<timestamp>.json
      course_outline_<timestamp>.md
      course_outline_<timestamp>_metadata.json
    modules/
      module_NN_<slug>/
        session_NN/
          lecture.md
          lab.md
          study_notes.md
          questions.md
          diagram_1.mmd .. diagram_K.mmd
          application.md, visualization.mmd, ...   (extra artifacts)
    pipeline_state.json       per-session and per-artifact status
    timing.json               start/end of every session and artifact
    generation_summary.json   last stage 2 summary
  output/history.db           run history (SQLite)

The newest outline in outlines/ is used unless --outline is given.
Session numbers are global across modules.

Run history
-----------

Every outline and content run is recorded with its status, per-artifact
outcomes (score, attempts, warning count, error) and the retry-ledger
statistics. Model responses are not stored. "coursegen status" lists
recent runs and the session table of the last content run.
`

const topicTroubleshooting = `Troubleshooting
===============

Start with:

    coursegen doctor

It reports service availability and version, whether the model is
installed and loaded, CPU/GPU placement, the effective timeout of every
operation, failed sessions from the last run and numbered suggestions.

Timeouts
--------

Every request id looks like "lec:3fa9c1" (operation prefix plus six hex
digits) and appears in each log line and error. Slow first requests
usually mean the model was not loaded yet; raise
llm.operation_timeouts.<operation> or pre-load the model.

Stuck streams
-------------

A stream with no new chunks for stream.stuck_interval seconds is
abandoned. The stream limit grows while chunks keep arriving, up to
max_multiplier times the operation timeout.

Resuming
--------

    coursegen generate --skip-existing

Sessions whose four core files exist are skipped. Otherwise existing
files are loaded in place and only the missing ones are generated.
Existing diagrams are kept.
`
