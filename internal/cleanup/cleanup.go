// Package cleanup normalises raw model output before it is analysed and
// written: conversational filler, placeholder redaction, word-count
// footers, duplicate headings and noisy Mermaid.
package cleanup

import (
	"regexp"
	"strings"
)

type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatMermaid  Format = "mermaid"
)

const maxPasses = 5

// Clean dispatches on format. Unknown formats are treated as Markdown.
func Clean(text string, format Format) string {
	if format == FormatMermaid {
		return Mermaid(text)
	}
	return Markdown(text)
}

var (
	preambleRe = regexp.MustCompile(`(?i)^\s*(?:okay|ok|alright|sure|certainly|absolutely|of course|great)\b[,!.]?(?:\s+here(?:'s|’s| is| are)\b.*)?\s*$|` +
		`(?i)^\s*(?:okay|ok|alright|sure|certainly|absolutely|of course|great)[,!.]\s+.*$|` +
		`(?i)^\s*here(?:'s|’s| is| are)\b.*:\s*$`)
	closingRe = regexp.MustCompile(`(?i)^\s*(?:[*_>]+\s*)?(?:would you like|let me know|feel free to|i trust this|do you have any further|i hope this|is there anything else|shall i\b|if you(?:'d| would) like me to)`)

	instructorRe = regexp.MustCompile(`\b(?:Dr\.|Professor)\s+\p{Lu}\p{L}+(?:\s+\p{Lu}\p{L}+)?`)
	dateRes      = []*regexp.Regexp{
		regexp.MustCompile(`\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},\s+\d{4}\b`),
		regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{4}\b`),
		regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
	}
	wordCountRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^\s*[*_(\[]*\s*(?:total\s+)?word\s*count\s*[:：-]?\s*(?:approximately|approx\.?|about|~)?\s*\d[\d,]*\s*(?:words)?\s*[*_)\]]*\.?\s*$`),
		regexp.MustCompile(`(?i)^\s*[*_(\[]*\s*(?:total\s+)?words\s*[:：]\s*~?\d[\d,]*\s*[*_)\]]*\.?\s*$`),
		regexp.MustCompile(`(?i)^\s*[*_(\[]*\s*(?:approximately|approx\.?|about|~)?\s*\d[\d,]*\s+words\s*[*_)\]]*\.?\s*$`),
	}
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
)

// Markdown applies the Markdown clean pass until the text stops changing.
func Markdown(text string) string {
	out := text
	for i := 0; i < maxPasses; i++ {
		next := markdownOnce(out)
		if next == out {
			break
		}
		out = next
	}
	return out
}

func markdownOnce(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := stripPreambles(strings.Split(text, "\n"))

	kept := lines[:0:0]
	for _, l := range lines {
		if closingRe.MatchString(l) || isWordCountFooter(l) {
			continue
		}
		l = instructorRe.ReplaceAllString(l, "[INSTRUCTOR]")
		for _, re := range dateRes {
			l = re.ReplaceAllString(l, "[DATE]")
		}
		kept = append(kept, strings.TrimRight(l, " \t"))
	}
	kept = dedupeHeadings(kept)
	return finish(collapseBlankRuns(kept))
}

// stripPreambles drops conversational lines before the first real content.
func stripPreambles(lines []string) []string {
	i := 0
	for i < len(lines) {
		t := strings.TrimSpace(lines[i])
		if t == "" || preambleRe.MatchString(t) && !strings.HasPrefix(t, "#") {
			i++
			continue
		}
		break
	}
	return lines[i:]
}

func isWordCountFooter(l string) bool {
	for _, re := range wordCountRes {
		if re.MatchString(l) {
			return true
		}
	}
	return false
}

// dedupeHeadings keeps the first heading for each (level, case-folded text)
// and drops later duplicates together with their content, up to the next
// heading of equal or higher level. Fenced code is left alone.
func dedupeHeadings(lines []string) []string {
	seen := map[string]bool{}
	var out []string
	inFence := false
	skipLevel := 0
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if strings.HasPrefix(t, "```") || strings.HasPrefix(t, "~~~") {
			inFence = !inFence
		}
		if !inFence {
			if m := headingRe.FindStringSubmatch(t); m != nil {
				level := len(m[1])
				if skipLevel > 0 && level <= skipLevel {
					skipLevel = 0
				}
				if skipLevel == 0 {
					key := m[1] + " " + strings.ToLower(strings.Join(strings.Fields(m[2]), " "))
					if seen[key] {
						skipLevel = level
						continue
					}
					seen[key] = true
				}
			}
		}
		if skipLevel > 0 {
			continue
		}
		out = append(out, l)
	}
	return out
}

// collapseBlankRuns turns runs of three or more blank lines into two.
func collapseBlankRuns(lines []string) []string {
	var out []string
	blank := 0
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			blank++
			if blank > 2 {
				continue
			}
			out = append(out, "")
			continue
		}
		blank = 0
		out = append(out, l)
	}
	return out
}

func finish(lines []string) string {
	s := strings.Trim(strings.Join(lines, "\n"), "\n")
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s + "\n"
}
