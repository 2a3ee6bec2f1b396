// Package analyze holds the structural validators for generated artifacts.
// Every analyzer is a pure function of its input text and requirements and
// returns the same Metrics shape. Analyzers never fail; problems are
// reported as warnings.
package analyze

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Content types reported in Metrics.ContentType.
const (
	TypeLecture       = "lecture"
	TypeLab           = "lab"
	TypeStudyNotes    = "study_notes"
	TypeQuestions     = "questions"
	TypeDiagram       = "diagram"
	TypeApplication   = "application"
	TypeExtension     = "extension"
	TypeIntegration   = "integration"
	TypeInvestigation = "investigation"
	TypeOpenQuestions = "open_questions"
)

type Metrics struct {
	ContentType  string         `json:"content_type"`
	Counts       map[string]int `json:"counts"`
	Warnings     []string       `json:"warnings"`
	Requirements map[string]int `json:"requirements"`
}

func newMetrics(contentType string) *Metrics {
	return &Metrics{
		ContentType:  contentType,
		Counts:       map[string]int{},
		Warnings:     []string{},
		Requirements: map[string]int{},
	}
}

func (m *Metrics) warn(format string, args ...any) {
	m.Warnings = append(m.Warnings, fmt.Sprintf(format, args...))
}

// Valid reports whether no warnings were raised.
func (m Metrics) Valid() bool {
	return len(m.Warnings) == 0
}

// Score is 100 minus 10 per warning, floored at 0.
func Score(m Metrics) int {
	s := 100 - 10*len(m.Warnings)
	if s < 0 {
		return 0
	}
	return s
}

// checkRange warns when count falls outside [min, max]. A zero max means
// unbounded. The shortfall or excess is stated explicitly.
func (m *Metrics) checkRange(label, unit string, count, min, max int) {
	switch {
	case count < min:
		m.warn("%s %d is below minimum %d (need %d more %s)", label, count, min, min-count, unit)
	case max > 0 && count > max:
		m.warn("%s %d exceeds maximum %d (remove %d %s)", label, count, max, count-max, unit)
	}
}

// WordCount counts whitespace-separated tokens containing a letter or digit,
// so Markdown markers such as "##" or "-" are not words.
func WordCount(text string) int {
	n := 0
	for _, f := range strings.Fields(text) {
		if strings.IndexFunc(f, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) >= 0 {
			n++
		}
	}
	return n
}

func countMatches(re *regexp.Regexp, text string) int {
	return len(re.FindAllStringIndex(text, -1))
}

func lines(text string) []string {
	return strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
}
