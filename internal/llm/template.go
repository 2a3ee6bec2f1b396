package llm

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// TemplateReport compares a template's placeholders with supplied variables.
type TemplateReport struct {
	Required []string
	Provided []string
	Missing  []string
	Extra    []string
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type segment struct {
	literal string
	name    string
}

// parseTemplate splits a template into literal text and placeholders.
// "{{" and "}}" are literal braces; "{name}" is a placeholder.
func parseTemplate(t string) []segment {
	var segs []segment
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			segs = append(segs, segment{literal: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(t); {
		c := t[i]
		switch {
		case c == '{' && i+1 < len(t) && t[i+1] == '{':
			lit.WriteByte('{')
			i += 2
		case c == '}' && i+1 < len(t) && t[i+1] == '}':
			lit.WriteByte('}')
			i += 2
		case c == '{':
			if end := strings.IndexByte(t[i+1:], '}'); end >= 0 {
				name := t[i+1 : i+1+end]
				if identRe.MatchString(name) {
					flush()
					segs = append(segs, segment{name: name})
					i += end + 2
					continue
				}
			}
			lit.WriteByte(c)
			i++
		default:
			lit.WriteByte(c)
			i++
		}
	}
	flush()
	return segs
}

// ExtractVariables returns the sorted, unique placeholder names of t.
func ExtractVariables(t string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range parseTemplate(t) {
		if s.name != "" && !seen[s.name] {
			seen[s.name] = true
			out = append(out, s.name)
		}
	}
	sort.Strings(out)
	return out
}

// CheckTemplate computes required/provided/missing/extra for t and vars.
func CheckTemplate(t string, vars map[string]any) TemplateReport {
	r := TemplateReport{Required: ExtractVariables(t)}
	req := make(map[string]bool, len(r.Required))
	for _, n := range r.Required {
		req[n] = true
	}
	for k := range vars {
		r.Provided = append(r.Provided, k)
		if !req[k] {
			r.Extra = append(r.Extra, k)
		}
	}
	for _, n := range r.Required {
		if _, ok := vars[n]; !ok {
			r.Missing = append(r.Missing, n)
		}
	}
	sort.Strings(r.Provided)
	sort.Strings(r.Extra)
	return r
}

// FormatTemplate substitutes vars into t. Missing variables fail with a
// *TemplateError naming each one.
func FormatTemplate(name, t string, vars map[string]any) (string, TemplateReport, error) {
	r := CheckTemplate(t, vars)
	if len(r.Missing) > 0 {
		return "", r, &TemplateError{Template: name, Missing: r.Missing}
	}
	return render(t, vars, false), r, nil
}

// render substitutes placeholders. In lenient mode unknown placeholders are
// left as written.
func render(t string, vars map[string]any, lenient bool) string {
	var b strings.Builder
	for _, s := range parseTemplate(t) {
		if s.name == "" {
			b.WriteString(s.literal)
			continue
		}
		v, ok := vars[s.name]
		if !ok && lenient {
			b.WriteString("{" + s.name + "}")
			continue
		}
		b.WriteString(fmt.Sprint(v))
	}
	return b.String()
}
