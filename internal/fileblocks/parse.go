package fileblocks

import (
	"regexp"
	"strings"
)

// Block represents a single fenced code block extracted from LLM output.
type Block struct {
	Lang     string // e.g. "json", "mermaid"; empty when untagged
	Info     string // full info string after the fence
	Content  string // content between the fences
	Start    int    // line index of the opening fence
	End      int    // line index of the closing fence, or len(lines) if unterminated
	Unclosed bool
}

var fenceOpenRe = regexp.MustCompile("^(```+|~~~+)\\s*([\\w+-]*)(.*)$")

// Parse extracts fenced code blocks from text. It recognizes opening fences
// like:
//
//	```json
//	```mermaid title=cells
//	```
//
// A block left open at end of input is returned with Unclosed set, since
// models routinely stop before the closing fence. Returns blocks in order
// of appearance.
func Parse(text string) []Block {
	lines := strings.Split(text, "\n")
	var blocks []Block
	var current *Block
	var fence string
	var buf strings.Builder

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if current != nil {
			if strings.HasPrefix(trimmed, fence) && strings.Trim(trimmed, fence[:1]) == "" {
				current.Content = buf.String()
				current.End = i
				blocks = append(blocks, *current)
				current = nil
				buf.Reset()
				continue
			}
			if buf.Len() > 0 {
				buf.WriteByte('\n')
			}
			buf.WriteString(line)
			continue
		}

		m := fenceOpenRe.FindStringSubmatch(trimmed)
		if m != nil {
			fence = m[1]
			current = &Block{
				Lang:  strings.ToLower(m[2]),
				Info:  strings.TrimSpace(m[2] + m[3]),
				Start: i,
			}
			buf.Reset()
		}
	}

	if current != nil {
		current.Content = buf.String()
		current.End = len(lines)
		current.Unclosed = true
		blocks = append(blocks, *current)
	}
	return blocks
}

// First returns the first block whose language matches lang
// (case-insensitive). An empty lang matches any block.
func First(text, lang string) (Block, bool) {
	lang = strings.ToLower(lang)
	for _, b := range Parse(text) {
		if lang == "" || b.Lang == lang {
			return b, true
		}
	}
	return Block{}, false
}
