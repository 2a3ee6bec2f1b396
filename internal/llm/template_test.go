package llm

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestExtractVariables(t *testing.T) {
	cases := []struct {
		name string
		tmpl string
		want []string
	}{
		{"simple", "Write about {topic} for {level}", []string{"level", "topic"}},
		{"duplicates", "{a} {b} {a}", []string{"a", "b"}},
		{"literal braces", `Return JSON like {{"name": "{course_name}"}}`, []string{"course_name"}},
		{"escaped placeholder", "{{not_a_var}}", nil},
		{"non identifier", "{ spaced } {1abc} {}", nil},
		{"unclosed", "trailing {brace", nil},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := ExtractVariables(c.tmpl)
			if !reflect.DeepEqual(got, c.want) {
				t.Fatalf("ExtractVariables(%q) = %v, want %v", c.tmpl, got, c.want)
			}
		})
	}
}

func TestCheckTemplate_Sets(t *testing.T) {
	r := CheckTemplate("{a} {b} {c}", map[string]any{"b": 1, "c": 2, "d": 3})
	if !reflect.DeepEqual(r.Missing, []string{"a"}) {
		t.Fatalf("Missing = %v", r.Missing)
	}
	if !reflect.DeepEqual(r.Extra, []string{"d"}) {
		t.Fatalf("Extra = %v", r.Extra)
	}
	if !reflect.DeepEqual(r.Provided, []string{"b", "c", "d"}) {
		t.Fatalf("Provided = %v", r.Provided)
	}
}

func TestFormatTemplate(t *testing.T) {
	out, _, err := FormatTemplate("outline", `{{"modules": {n}}} for {name}`, map[string]any{"n": 2, "name": "Bio"})
	if err != nil {
		t.Fatal(err)
	}
	if out != `{"modules": 2} for Bio` {
		t.Fatalf("out = %q", out)
	}
}

func TestFormatTemplate_Missing(t *testing.T) {
	_, r, err := FormatTemplate("lecture", "{topic} {level}", map[string]any{"topic": "cells"})
	var te *TemplateError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TemplateError", err)
	}
	if !reflect.DeepEqual(te.Missing, []string{"level"}) || !reflect.DeepEqual(r.Missing, te.Missing) {
		t.Fatalf("Missing = %v", te.Missing)
	}
	if !strings.Contains(err.Error(), "lecture") {
		t.Fatalf("error should name the template: %v", err)
	}
	if IsTransient(err) {
		t.Fatal("template errors must not be transient")
	}
}

func TestRender_Lenient(t *testing.T) {
	got := render("Teach in {language}. Unknown {other}. {{x}}", map[string]any{"language": "French"}, true)
	if got != "Teach in French. Unknown {other}. {x}" {
		t.Fatalf("got %q", got)
	}
}
