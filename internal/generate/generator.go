package generate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jorge-barreto/coursegen/internal/analyze"
	"github.com/jorge-barreto/coursegen/internal/cleanup"
	"github.com/jorge-barreto/coursegen/internal/config"
	"github.com/jorge-barreto/coursegen/internal/course"
	"github.com/jorge-barreto/coursegen/internal/llm"
	"github.com/jorge-barreto/coursegen/internal/logger"
	"github.com/jorge-barreto/coursegen/internal/retry"
)

const maxContextChars = 8000

// Completer is the part of llm.Client the generator needs.
type Completer interface {
	Generate(ctx context.Context, req llm.Request) (*llm.Response, error)
}

type Generator struct {
	settings *config.Settings
	llm      Completer
	policy   *retry.Policy
	log      *logger.Logger
}

func New(s *config.Settings, c Completer, policy *retry.Policy, log *logger.Logger) *Generator {
	log = logger.OrNop(log)
	if policy == nil {
		policy = retry.NewPolicy(nil, log)
	}
	return &Generator{settings: s, llm: c, policy: policy, log: log}
}

func (g *Generator) Policy() *retry.Policy { return g.policy }

// Input is everything one artifact is generated from.
type Input struct {
	Kind     Kind
	Course   course.Metadata
	Module   course.Module
	Session  course.Session
	Context  string
	Lecture  string
	Lab      string
	Subtopic string
	// Index numbers diagrams within a session, from 1.
	Index int
}

type Result struct {
	Kind       Kind
	Text       string
	Metrics    analyze.Metrics
	Score      int
	Attempts   int
	Warnings   []string
	RequestIDs []string
	Elapsed    time.Duration
}

// Valid reports whether the kept text passed validation.
func (r *Result) Valid() bool { return r.Metrics.Valid() }

// Generate runs the validate, clean and retry loop for one artifact. Model
// output is cleaned and analysed after every attempt; on validation
// warnings the retry policy decides whether to try again with a feedback
// block. The best-scoring attempt is returned; validation warnings never
// make it an error. A transport error on the first attempt is returned as
// is; on a retry the best earlier attempt is kept and the error becomes a
// warning.
func (g *Generator) Generate(ctx context.Context, in Input) (*Result, error) {
	spec, ok := SpecFor(in.Kind)
	if !ok {
		return nil, fmt.Errorf("unknown artifact kind %q", in.Kind)
	}
	start := time.Now()
	contentType := string(spec.Kind)
	reqs := g.settings.ContentRequirements()
	log := g.log.With("artifact", contentType, "session", in.Session.SessionNumber)

	res := &Result{Kind: spec.Kind}
	if spec.NeedsLecture && strings.TrimSpace(in.Lecture) == "" {
		res.Warnings = append(res.Warnings, fmt.Sprintf("degraded context: %s generated without the session lecture", contentType))
		log.Warn("lecture unavailable; generating with degraded context")
	}
	vars := g.vars(spec, in)

	maxAttempts := g.settings.MaxValidationAttempts()
	var (
		best         *analyze.Metrics
		bestText     string
		feedback     string
		prevClass    retry.Class
		prevMsg      string
		prevStrategy retry.Strategy
	)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		resp, err := g.llm.Generate(ctx, llm.Request{
			Operation: spec.Operation,
			Template:  spec.Template,
			Vars:      vars,
			Feedback:  feedback,
		})
		if err != nil {
			if attempt > 0 {
				g.policy.RecordAttempt(prevClass, prevMsg, contentType, attempt, false, prevStrategy, "request failed")
			}
			if best == nil || ctx.Err() != nil {
				return nil, err
			}
			log.Warn(fmt.Sprintf("validation retry %d/%d failed; keeping attempt %d", attempt+1, maxAttempts, res.Attempts), "error", err)
			res.Warnings = append(res.Warnings, fmt.Sprintf("retry aborted: %v", err))
			break
		}
		res.Attempts = attempt + 1
		res.RequestIDs = append(res.RequestIDs, resp.RequestID)

		text := cleanup.Clean(resp.Text, spec.Format)
		m := spec.Analyze(text, reqs)
		if attempt > 0 {
			g.policy.RecordAttempt(prevClass, prevMsg, contentType, attempt, m.Valid(), prevStrategy, "feedback appended")
		}
		if best == nil || analyze.Score(m) >= analyze.Score(*best) {
			mc := m
			best, bestText = &mc, text
		}
		if m.Valid() {
			break
		}

		primary := m.Warnings[0]
		again, strategy := g.policy.ShouldRetry(primary, contentType, attempt, maxAttempts)
		log.Warn(fmt.Sprintf("[%s] validation attempt %d/%d: %d warnings (%s)", resp.RequestID, attempt+1, maxAttempts, len(m.Warnings), primary))
		if !again {
			break
		}
		feedback = g.policy.Feedback(primary, contentType, m.Warnings, m.Requirements)
		prevClass, prevMsg, prevStrategy = retry.Classify(primary), primary, strategy
	}

	res.Text = bestText
	res.Metrics = *best
	res.Score = analyze.Score(*best)
	res.Warnings = append(res.Warnings, best.Warnings...)
	res.Elapsed = time.Since(start)
	return res, nil
}

func (g *Generator) vars(spec Spec, in Input) map[string]any {
	s := in.Session
	v := map[string]any{
		"course_name":         in.Course.Name,
		"course_level":        in.Course.Level,
		"subject":             g.settings.Course.Subject,
		"language":            g.settings.Language(),
		"module_number":       in.Module.ModuleID,
		"module_name":         in.Module.ModuleName,
		"module_description":  in.Module.ModuleDescription,
		"session_number":      s.SessionNumber,
		"session_title":       s.SessionTitle,
		"subtopics":           bullets(s.Subtopics),
		"learning_objectives": bullets(s.LearningObjectives),
		"key_concepts":        bullets(s.KeyConcepts),
		"rationale":           s.Rationale,
		"outline_context":     in.Context,
	}
	if spec.NeedsLecture {
		v["lecture_content"] = contextText(in.Lecture, "(lecture unavailable; rely on the session outline)")
	}
	if spec.NeedsLab {
		v["lab_content"] = contextText(in.Lab, "(lab unavailable)")
	}

	r := g.settings.ContentRequirements()
	switch spec.Kind {
	case KindLecture:
		v["min_words"], v["max_words"] = r.Lecture.MinWordCount, r.Lecture.MaxWordCount
		v["min_sections"], v["max_sections"] = r.Lecture.MinSections, r.Lecture.MaxSections
		v["min_examples"], v["max_examples"] = r.Lecture.MinExamples, r.Lecture.MaxExamples
	case KindLab:
		v["min_steps"], v["max_steps"] = r.Lab.MinSteps, r.Lab.MaxSteps
		v["min_words"], v["max_words"] = r.Lab.MinWordCount, r.Lab.MaxWordCount
	case KindStudyNotes:
		v["min_concepts"], v["max_concepts"] = r.StudyNotes.MinKeyConcepts, r.StudyNotes.MaxKeyConcepts
		v["max_words"] = r.StudyNotes.MaxWordCount
	case KindQuestions:
		v["min_questions"], v["max_questions"] = r.Questions.MinQuestions, r.Questions.MaxQuestions
		v["min_explanation_words"], v["max_explanation_words"] = r.Questions.MinExplanationWords, r.Questions.MaxExplanationWords
	case KindDiagram, KindVisualization:
		d := r.Diagram
		if spec.Kind == KindVisualization {
			d = r.Visualization
		}
		v["subtopic"] = in.Subtopic
		v["diagram_number"] = in.Index
		v["min_nodes"], v["min_connections"], v["max_label_length"] = d.MinNodes, d.MinConnections, d.MaxLabelLength
	default:
		var sr config.SectionRequirements
		switch spec.Kind {
		case KindApplication:
			sr = r.Application
		case KindExtension:
			sr = r.Extension
		case KindIntegration:
			sr = r.Integration
		case KindInvestigation:
			sr = r.Investigation
		case KindOpenQuestions:
			sr = r.OpenQuestions
		}
		v["min_sections"], v["max_sections"] = sr.MinSections, sr.MaxSections
		v["min_words_per_section"], v["max_words_per_section"] = sr.MinWordsPerSection, sr.MaxWordsPerSection
		v["max_total_words"] = sr.MaxTotalWords
	}
	return v
}

func bullets(items []string) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// contextText truncates long context to keep prompts inside num_ctx.
func contextText(text, fallback string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return fallback
	}
	if r := []rune(text); len(r) > maxContextChars {
		return string(r[:maxContextChars]) + "\n[...]"
	}
	return text
}

// OutlineContext describes where a session sits in the course.
func OutlineContext(moduleIdx, moduleTotal, sessionIdx, sessionTotal int, m course.Module, s course.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Module %d of %d: %s\n", moduleIdx, moduleTotal, m.ModuleName)
	fmt.Fprintf(&b, "Session %d of %d in this module: %s", sessionIdx, sessionTotal, s.SessionTitle)
	if m.ModuleDescription != "" {
		fmt.Fprintf(&b, "\nModule description: %s", m.ModuleDescription)
	}
	if s.Rationale != "" {
		fmt.Fprintf(&b, "\nSession rationale: %s", s.Rationale)
	}
	return b.String()
}
