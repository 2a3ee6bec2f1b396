package outline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jorge-barreto/coursegen/internal/fileblocks"
)

const previewLen = 200

// JSONExtractionError means no strategy produced a JSON object.
type JSONExtractionError struct {
	Chars   int
	Preview string
}

func (e *JSONExtractionError) Error() string {
	return fmt.Sprintf("no JSON object found in model response (%d chars; tried json fence, any fence, balanced braces, raw text); response starts: %q", e.Chars, e.Preview)
}

// ExtractJSON pulls the outline object out of a model response. Strategies
// run in order: a fence tagged json, any fence, the first balanced {...}
// span that parses (spans carrying a "modules" key win), then the raw text.
func ExtractJSON(text string) (map[string]any, error) {
	if b, ok := fileblocks.First(text, "json"); ok {
		if m, ok := decodeObject(b.Content); ok {
			return m, nil
		}
	}
	for _, b := range fileblocks.Parse(text) {
		if m, ok := decodeObject(b.Content); ok {
			return m, nil
		}
	}
	if m, ok := balancedObject(text); ok {
		return m, nil
	}
	if m, ok := decodeObject(text); ok {
		return m, nil
	}
	preview := strings.TrimSpace(text)
	if r := []rune(preview); len(r) > previewLen {
		preview = string(r[:previewLen])
	}
	return nil, &JSONExtractionError{Chars: len(text), Preview: preview}
}

func decodeObject(s string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(s)), &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

// balancedObject scans every top-level {...} span. Spans that fail to
// parse are skipped as a whole so a later valid object can still be found.
func balancedObject(text string) (map[string]any, bool) {
	var first map[string]any
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end := matchBrace(text, i)
		if end < 0 {
			continue
		}
		m, ok := decodeObject(text[i : end+1])
		if !ok {
			continue
		}
		if _, has := m["modules"]; has {
			return m, true
		}
		if first == nil {
			first = m
		}
		i = end
	}
	return first, first != nil
}

// matchBrace returns the index of the brace closing the one at start,
// honouring JSON string literals, or -1.
func matchBrace(text string, start int) int {
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
