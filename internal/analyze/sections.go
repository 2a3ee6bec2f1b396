package analyze

import (
	"regexp"
	"strings"

	"github.com/jorge-barreto/coursegen/internal/config"
)

// SectionTheme describes a document organised as numbered "## <Theme> N"
// sections.
type SectionTheme struct {
	ContentType string
	Label       string
	Heading     *regexp.Regexp
}

var (
	ApplicationTheme   = SectionTheme{TypeApplication, "Application", regexp.MustCompile(`(?i)^##\s+(?:\*\*)?Application\s+\d+`)}
	ExtensionTheme     = SectionTheme{TypeExtension, "Topic", regexp.MustCompile(`(?i)^##\s+(?:\*\*)?(?:Extension\s+)?Topic\s+\d+`)}
	IntegrationTheme   = SectionTheme{TypeIntegration, "Connection", regexp.MustCompile(`(?i)^##\s+(?:\*\*)?(?:Connection|Integration)\s+\d+`)}
	InvestigationTheme = SectionTheme{TypeInvestigation, "Research Question", regexp.MustCompile(`(?i)^##\s+(?:\*\*)?Research\s+Question\s+\d+`)}
	OpenQuestionsTheme = SectionTheme{TypeOpenQuestions, "Question", regexp.MustCompile(`(?i)^##\s+(?:\*\*)?(?:Open\s+)?Question\s+\d+`)}
)

// ThemeFor returns the section theme for a themed content type.
func ThemeFor(contentType string) (SectionTheme, bool) {
	for _, t := range []SectionTheme{ApplicationTheme, ExtensionTheme, IntegrationTheme, InvestigationTheme, OpenQuestionsTheme} {
		if t.ContentType == contentType {
			return t, true
		}
	}
	return SectionTheme{}, false
}

var anyH2Re = regexp.MustCompile(`^#{1,2}\s+\S`)

// Sections counts themed sections, per-section words and total words.
func Sections(text string, theme SectionTheme, req config.SectionRequirements) Metrics {
	m := newMetrics(theme.ContentType)
	m.Requirements = map[string]int{
		"min_sections": req.MinSections, "max_sections": req.MaxSections,
		"min_words_per_section": req.MinWordsPerSection, "max_words_per_section": req.MaxWordsPerSection,
		"max_total_words": req.MaxTotalWords,
	}

	type section struct {
		heading string
		words   int
	}
	var sections []section
	var cur *section
	var buf []string
	closeCur := func() {
		if cur != nil {
			cur.words = WordCount(strings.Join(buf, "\n"))
			sections = append(sections, *cur)
		}
		cur, buf = nil, nil
	}
	for _, l := range lines(text) {
		t := strings.TrimSpace(l)
		if theme.Heading.MatchString(t) {
			closeCur()
			cur = &section{heading: strings.Trim(strings.TrimLeft(t, "# "), "*")}
			continue
		}
		if anyH2Re.MatchString(t) {
			closeCur()
			continue
		}
		if cur != nil {
			buf = append(buf, l)
		}
	}
	closeCur()

	total := WordCount(text)
	m.Counts["sections"] = len(sections)
	m.Counts["total_words"] = total
	short, long := 0, 0
	for i, s := range sections {
		if i == 0 || s.words < m.Counts["min_section_words"] {
			m.Counts["min_section_words"] = s.words
		}
		if s.words > m.Counts["max_section_words"] {
			m.Counts["max_section_words"] = s.words
		}
		switch {
		case s.words < req.MinWordsPerSection:
			short++
			m.warn("%s has %d words, below minimum %d (need %d more words)", s.heading, s.words, req.MinWordsPerSection, req.MinWordsPerSection-s.words)
		case req.MaxWordsPerSection > 0 && s.words > req.MaxWordsPerSection:
			long++
			m.warn("%s has %d words, exceeds maximum %d (remove %d words)", s.heading, s.words, req.MaxWordsPerSection, s.words-req.MaxWordsPerSection)
		}
	}
	m.Counts["short_sections"] = short
	m.Counts["long_sections"] = long

	m.checkRange(theme.Label+" section count", "'## "+theme.Label+" N' sections", len(sections), req.MinSections, req.MaxSections)
	if req.MaxTotalWords > 0 && total > req.MaxTotalWords {
		m.warn("Total word count %d exceeds maximum %d (remove %d words)", total, req.MaxTotalWords, total-req.MaxTotalWords)
	}
	return *m
}
