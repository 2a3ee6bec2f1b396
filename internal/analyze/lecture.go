package analyze

import (
	"regexp"

	"github.com/jorge-barreto/coursegen/internal/config"
)

var (
	sectionRe    = regexp.MustCompile(`(?m)^##\s+\S`)
	subsectionRe = regexp.MustCompile(`(?m)^###\s+\S`)
	exampleRe    = regexp.MustCompile(`(?i)\bfor example\b|\bfor instance\b|\bsuch as\b|\be\.g\.|\bconsider\b|\bimagine\b|\bexample:`)
	definitionRe = regexp.MustCompile(`\*\*[^*\n]+\*\*\s*:`)
	crossRefRe   = regexp.MustCompile(`(?i)\bsee\b|\brefer to\b|→|\[see [^\]]+\]`)
)

// Lecture counts words, sections, examples, bold definitions and cross
// references.
func Lecture(text string, req config.LectureRequirements) Metrics {
	m := newMetrics(TypeLecture)
	m.Requirements = map[string]int{
		"min_word_count": req.MinWordCount, "max_word_count": req.MaxWordCount,
		"min_examples": req.MinExamples, "max_examples": req.MaxExamples,
		"min_sections": req.MinSections, "max_sections": req.MaxSections,
	}
	m.Counts["word_count"] = WordCount(text)
	m.Counts["sections"] = countMatches(sectionRe, text)
	m.Counts["subsections"] = countMatches(subsectionRe, text)
	m.Counts["examples"] = countMatches(exampleRe, text)
	m.Counts["definitions"] = countMatches(definitionRe, text)
	m.Counts["cross_references"] = countMatches(crossRefRe, text)

	m.checkRange("Word count", "words", m.Counts["word_count"], req.MinWordCount, req.MaxWordCount)
	m.checkRange("Example count", "examples", m.Counts["examples"], req.MinExamples, req.MaxExamples)
	m.checkRange("Section count", "sections", m.Counts["sections"], req.MinSections, req.MaxSections)
	return *m
}
