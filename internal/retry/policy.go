// Package retry implements the smart retry policy: error classification, a
// shared ledger of past attempts and feedback synthesis for regenerating
// artifacts that failed validation.
package retry

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jorge-barreto/coursegen/internal/analyze"
	"github.com/jorge-barreto/coursegen/internal/logger"
)

// Class is the error class an attempt is recorded under.
type Class string

const (
	ClassTimeout    Class = "timeout"
	ClassConnection Class = "connection"
	ClassStuck      Class = "stream_stuck"
	ClassEmpty      Class = "empty_response"
	ClassMissing    Class = "missing_section"
	ClassFormat     Class = "format"
	ClassCount      Class = "count"
	ClassQuality    Class = "quality"
	ClassUnknown    Class = "unknown"
)

// Strategy names how the next attempt differs from the previous one.
type Strategy string

const (
	StrategyNone     Strategy = "none"
	StrategyBackoff  Strategy = "backoff"
	StrategyFeedback Strategy = "feedback"
	StrategyReformat Strategy = "reformat"
	StrategyAddParts Strategy = "add_missing"
	StrategySimplify Strategy = "simplify"
	StrategyGiveUp   Strategy = "give_up"
)

// Feedback categories, most urgent first.
const (
	CategoryCritical = "critical"
	CategoryFormat   = "format"
	CategoryCount    = "count"
	CategoryQuality  = "quality"
)

var (
	connectionRe   = regexp.MustCompile(`\bconnection\b|unreachable|service unavailable|temporarily unavailable|no such host|connection refused`)
	timeoutRe      = regexp.MustCompile(`timeout|timed out|deadline exceeded`)
	missingRe      = regexp.MustCompile(`missing|type declaration`)
	formatRe       = regexp.MustCompile(`format|labelled|duplicate|question marks|empty nodes|sequentially`)
	countRe        = regexp.MustCompile(`below minimum|exceeds maximum|\bneed \d+|\bremove \d+`)
	maxPerCategory = 3
)

// Classify maps an error message or validation warning to a Class.
func Classify(msg string) Class {
	m := strings.ToLower(strings.TrimSpace(msg))
	switch {
	case m == "":
		return ClassUnknown
	case strings.Contains(m, "stuck"):
		return ClassStuck
	case strings.Contains(m, "empty response"):
		return ClassEmpty
	case timeoutRe.MatchString(m):
		return ClassTimeout
	case connectionRe.MatchString(m):
		return ClassConnection
	case missingRe.MatchString(m):
		return ClassMissing
	case formatRe.MatchString(m):
		return ClassFormat
	case countRe.MatchString(m):
		return ClassCount
	default:
		return ClassQuality
	}
}

// Category maps a validation warning to its feedback category.
func Category(warning string) string {
	switch Classify(warning) {
	case ClassMissing, ClassStuck, ClassEmpty:
		return CategoryCritical
	case ClassFormat:
		return CategoryFormat
	case ClassCount:
		return CategoryCount
	default:
		return CategoryQuality
	}
}

func strategyFor(c Class) Strategy {
	switch c {
	case ClassTimeout, ClassConnection:
		return StrategyBackoff
	case ClassStuck, ClassEmpty:
		return StrategySimplify
	case ClassMissing:
		return StrategyAddParts
	case ClassFormat:
		return StrategyReformat
	case ClassCount, ClassQuality:
		return StrategyFeedback
	default:
		return StrategyNone
	}
}

// Policy decides whether to retry and what to tell the model. It refuses a
// retry once at least MinSamples attempts of the same class and content
// type have been recorded and fewer than MinSuccessRate of them succeeded.
type Policy struct {
	Ledger         *Ledger
	MinSuccessRate float64
	MinSamples     int
	log            *logger.Logger
}

func NewPolicy(ledger *Ledger, log *logger.Logger) *Policy {
	if ledger == nil {
		ledger = NewLedger()
	}
	return &Policy{Ledger: ledger, MinSuccessRate: 0.2, MinSamples: 3, log: logger.OrNop(log)}
}

// ShouldRetry reports whether attempt (0-based, already failed) may be
// followed by another, and the strategy to use.
func (p *Policy) ShouldRetry(msg, contentType string, attempt, max int) (bool, Strategy) {
	if attempt+1 >= max {
		return false, StrategyGiveUp
	}
	class := Classify(msg)
	if rate, n := p.Ledger.SuccessRate(class, contentType); n >= p.MinSamples && rate < p.MinSuccessRate {
		p.log.Warn(fmt.Sprintf("retry refused for %s/%s: success rate %.0f%% over %d attempts is below %.0f%%",
			class, contentType, rate*100, n, p.MinSuccessRate*100))
		return false, StrategyGiveUp
	}
	return true, strategyFor(class)
}

// RecordAttempt appends one outcome to the ledger.
func (p *Policy) RecordAttempt(class Class, msg, contentType string, attempt int, success bool, strategy Strategy, fix string) {
	p.Ledger.Record(Attempt{
		Class:       class,
		Message:     msg,
		ContentType: contentType,
		Attempt:     attempt,
		Success:     success,
		Strategy:    strategy,
		FixApplied:  fix,
	})
	p.log.Debug("retry attempt recorded", "class", class, "content_type", contentType, "attempt", attempt, "success", success)
}

// Feedback builds the block appended to the original prompt for the next
// attempt. Warnings are grouped by category, at most three per category,
// followed by the explicit requirements for the content type.
func (p *Policy) Feedback(primary, contentType string, warnings []string, req map[string]int) string {
	groups := map[string][]string{}
	for _, w := range warnings {
		c := Category(w)
		if len(groups[c]) < maxPerCategory {
			groups[c] = append(groups[c], w)
		}
	}

	var b strings.Builder
	b.WriteString("## REVISION REQUIRED\n\n")
	fmt.Fprintf(&b, "Your previous %s did not meet the requirements", label(contentType))
	if primary != "" {
		fmt.Fprintf(&b, " (main problem: %s)", primary)
	}
	b.WriteString(".\n")
	for _, c := range []string{CategoryCritical, CategoryFormat, CategoryCount, CategoryQuality} {
		if len(groups[c]) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s issues:\n", strings.ToUpper(c))
		for _, w := range groups[c] {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}
	if reqs := requirementLines(contentType, req); len(reqs) > 0 {
		b.WriteString("\nREQUIRED FIX:\n")
		for _, r := range reqs {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	fmt.Fprintf(&b, "\nRegenerate the complete %s, keeping everything that was already correct.\n", label(contentType))
	return b.String()
}

func label(contentType string) string {
	if contentType == "" {
		return "response"
	}
	return strings.ReplaceAll(contentType, "_", " ")
}

func requirementLines(contentType string, r map[string]int) []string {
	switch contentType {
	case analyze.TypeDiagram, "visualization":
		return []string{
			"Start with a diagram type declaration such as 'flowchart TD'.",
			fmt.Sprintf("The diagram must contain at least %d nodes and %d connections; extend the diagram with additional nodes and edges.", r["min_nodes"], r["min_connections"]),
			fmt.Sprintf("Keep every node label under %d characters and give every node a label.", r["max_label_length"]),
			"Output only Mermaid code. Do not add style, classDef or linkStyle lines.",
		}
	case analyze.TypeLecture:
		return []string{
			fmt.Sprintf("Write %d-%d words.", r["min_word_count"], r["max_word_count"]),
			fmt.Sprintf("Use %d-%d '## ' sections.", r["min_sections"], r["max_sections"]),
			fmt.Sprintf("Include %d-%d concrete examples introduced with 'For example' or 'such as'.", r["min_examples"], r["max_examples"]),
		}
	case analyze.TypeLab:
		out := []string{
			fmt.Sprintf("Write %d-%d numbered procedure steps (1., 2., ...).", r["min_steps"], r["max_steps"]),
			fmt.Sprintf("Write %d-%d words.", r["min_word_count"], r["max_word_count"]),
		}
		if r["require_safety"] == 1 {
			out = append(out, "Include a '## Safety' section with ⚠️ warnings.")
		}
		if r["require_table"] == 1 {
			out = append(out, "Include a Markdown data table for recording observations.")
		}
		return out
	case analyze.TypeStudyNotes:
		return []string{
			fmt.Sprintf("List %d-%d key concepts formatted as '- **Concept**: definition'.", r["min_key_concepts"], r["max_key_concepts"]),
			fmt.Sprintf("Stay under %d words.", r["max_word_count"]),
		}
	case analyze.TypeQuestions:
		return []string{
			fmt.Sprintf("Write %d-%d questions numbered sequentially.", r["min_questions"], r["max_questions"]),
			"Format each question exactly as:\n  ### Question N\n  <question text ending with ?>\n  A) ...\n  B) ...\n  C) ...\n  D) ...\n  **Answer:** <letter>\n  **Explanation:** <explanation>",
			fmt.Sprintf("Each explanation must be %d-%d words.", r["min_explanation_words"], r["max_explanation_words"]),
		}
	}
	if theme, ok := analyze.ThemeFor(contentType); ok {
		return []string{
			fmt.Sprintf("Write %d-%d sections headed '## %s N: <title>'.", r["min_sections"], r["max_sections"], theme.Label),
			fmt.Sprintf("Each section must be %d-%d words; stay under %d words in total.", r["min_words_per_section"], r["max_words_per_section"], r["max_total_words"]),
		}
	}
	return nil
}
