package analyze

import (
	"regexp"
	"strings"

	"github.com/jorge-barreto/coursegen/internal/config"
)

// boldLabel matches "**X**:" and "**X:**".
const boldLabel = `\*\*([^*\n]+?)(?::\*\*|\*\*\s*:)`

var conceptFormats = []struct {
	name string
	re   *regexp.Regexp
}{
	{"bulleted", regexp.MustCompile(`(?m)^\s*[-*+]\s+` + boldLabel)},
	{"numbered", regexp.MustCompile(`(?m)^\s*\d+[.)]\s+` + boldLabel)},
	{"header", regexp.MustCompile(`(?m)^#{1,6}\s+` + boldLabel)},
	{"paragraph", regexp.MustCompile(`(?m)^` + boldLabel + `\s`)},
}

// StudyNotes counts key concepts across the four supported formats,
// counting each concept name once.
func StudyNotes(text string, req config.StudyNotesRequirements) Metrics {
	m := newMetrics(TypeStudyNotes)
	m.Requirements = map[string]int{
		"min_key_concepts": req.MinKeyConcepts,
		"max_key_concepts": req.MaxKeyConcepts,
		"max_word_count":   req.MaxWordCount,
	}
	seen := map[string]bool{}
	for _, f := range conceptFormats {
		matches := f.re.FindAllStringSubmatch(text, -1)
		m.Counts[f.name+"_concepts"] = len(matches)
		for _, match := range matches {
			key := normalizeConcept(match[1])
			if key != "" {
				seen[key] = true
			}
		}
	}
	m.Counts["key_concepts"] = len(seen)
	m.Counts["word_count"] = WordCount(text)

	m.checkRange("Key concept count", "key concepts", m.Counts["key_concepts"], req.MinKeyConcepts, req.MaxKeyConcepts)
	if req.MaxWordCount > 0 && m.Counts["word_count"] > req.MaxWordCount {
		m.warn("Word count %d exceeds maximum %d (remove %d words)", m.Counts["word_count"], req.MaxWordCount, m.Counts["word_count"]-req.MaxWordCount)
	}
	return *m
}

func normalizeConcept(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimRight(s, ":. ")
	return strings.Join(strings.Fields(s), " ")
}
