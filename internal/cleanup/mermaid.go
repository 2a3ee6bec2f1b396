package cleanup

import (
	"regexp"
	"strings"

	"github.com/jorge-barreto/coursegen/internal/analyze"
	"github.com/jorge-barreto/coursegen/internal/fileblocks"
)

var (
	stylingRe    = regexp.MustCompile(`(?i)^\s*(?:style|classdef|linkstyle)\b`)
	fenceLineRe  = regexp.MustCompile("^\\s*(?:```|~~~)")
	trailerRe    = regexp.MustCompile(`(?i)^\s*(?:#{1,6}\s|\*\*\s*(?:explanation|adherence|requirements|notes?|key|legend)\b|(?:explanation|adherence to requirements|requirements|this diagram|the diagram)\b.*:)`)
	proseCharsRe = regexp.MustCompile(`[\[\](){}<>|]|--|==|->`)
)

// Mermaid extracts a bare diagram definition from model output: fences,
// prose around the diagram, styling directives and conversational filler
// are removed. The result always ends in a single newline.
func Mermaid(text string) string {
	out := text
	for i := 0; i < maxPasses; i++ {
		next := mermaidOnce(out)
		if next == out {
			break
		}
		out = next
	}
	return out
}

func mermaidOnce(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	body := diagramBody(text)
	lines := strings.Split(body, "\n")

	start := -1
	for i, l := range lines {
		if analyze.DiagramOpenerRe.MatchString(l) {
			start = i
			break
		}
	}
	if start >= 0 {
		lines = lines[start:]
	} else {
		lines = stripPreambles(lines)
	}

	var kept []string
	for i, l := range lines {
		if i > 0 && isTrailingProse(l) {
			break
		}
		if stylingRe.MatchString(l) || fenceLineRe.MatchString(l) || closingRe.MatchString(l) {
			continue
		}
		kept = append(kept, strings.TrimRight(l, " \t"))
	}
	return finish(collapseBlankRuns(kept))
}

// diagramBody prefers a fenced block tagged mermaid, then any fenced block
// containing a diagram opener, then the raw text.
func diagramBody(text string) string {
	if b, ok := fileblocks.First(text, "mermaid"); ok {
		return b.Content
	}
	for _, b := range fileblocks.Parse(text) {
		if hasOpener(b.Content) {
			return b.Content
		}
	}
	return text
}

func hasOpener(s string) bool {
	for _, l := range strings.Split(s, "\n") {
		if analyze.DiagramOpenerRe.MatchString(l) {
			return true
		}
	}
	return false
}

// isTrailingProse reports lines that mark explanatory text after the
// diagram body.
func isTrailingProse(l string) bool {
	t := strings.TrimSpace(l)
	if t == "" {
		return false
	}
	if trailerRe.MatchString(t) {
		return true
	}
	if proseCharsRe.MatchString(t) || !strings.HasSuffix(t, ".") || isStatement(t) {
		return false
	}
	return len(strings.Fields(t)) >= 6
}

// statementKeywords open diagram statements whose free text can read like a
// sentence.
var statementKeywords = map[string]bool{
	"note": true, "participant": true, "actor": true, "title": true,
	"section": true, "class": true, "state": true, "loop": true,
	"alt": true, "else": true, "opt": true, "par": true, "and": true,
	"critical": true, "break": true, "rect": true, "subgraph": true,
	"click": true, "acctitle": true, "accdescr": true,
}

// isStatement reports a diagram statement: a line opened by a keyword, or a
// "label: text" line whose label is a short identifier such as a
// state name or a pie slice.
func isStatement(t string) bool {
	fields := strings.Fields(t)
	if statementKeywords[strings.ToLower(fields[0])] {
		return true
	}
	label, _, ok := strings.Cut(t, ":")
	return ok && len(strings.Fields(label)) > 0 && len(strings.Fields(label)) <= 3
}
