package analyze

import (
	"regexp"

	"github.com/jorge-barreto/coursegen/internal/config"
)

var (
	stepRe      = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+\S`)
	safetyRe    = regexp.MustCompile(`(?i)⚠|\bsafety\b|\bcaution\b|\bwarning\b|\bhazard`)
	materialRe  = regexp.MustCompile(`(?m)^\s*[-*+]\s+\S`)
	tableSepRe  = regexp.MustCompile(`(?m)^\s*\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)+\|?\s*$`)
	tableLineRe = regexp.MustCompile(`(?m)^\s*\|.*\|\s*$`)
)

// Lab counts numbered steps, safety mentions, bulleted materials and
// Markdown tables.
func Lab(text string, req config.LabRequirements) Metrics {
	m := newMetrics(TypeLab)
	m.Requirements = map[string]int{
		"min_steps": req.MinSteps, "max_steps": req.MaxSteps,
		"min_word_count": req.MinWordCount, "max_word_count": req.MaxWordCount,
		"require_safety": boolInt(req.RequireSafety), "require_table": boolInt(req.RequireTable),
	}
	m.Counts["word_count"] = WordCount(text)
	m.Counts["procedure_steps"] = countMatches(stepRe, text)
	m.Counts["safety_warnings"] = countMatches(safetyRe, text)
	m.Counts["materials"] = countMatches(materialRe, text)
	m.Counts["tables"] = countMatches(tableSepRe, text)
	m.Counts["table_rows"] = countMatches(tableLineRe, text)

	if req.RequireSafety && m.Counts["safety_warnings"] == 0 {
		m.warn("Missing safety section (add a '## Safety' section with ⚠️ warnings)")
	}
	m.checkRange("Procedure step count", "steps", m.Counts["procedure_steps"], req.MinSteps, req.MaxSteps)
	if req.RequireTable && m.Counts["tables"] == 0 {
		m.warn("Missing data table (add a Markdown table for recording observations)")
	}
	m.checkRange("Word count", "words", m.Counts["word_count"], req.MinWordCount, req.MaxWordCount)
	return *m
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
