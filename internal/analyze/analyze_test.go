package analyze

import (
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/jorge-barreto/coursegen/internal/config"
)

var reqs = config.DefaultContentRequirements()

func words(n int) string {
	return strings.TrimSpace(strings.Repeat("cell ", n))
}

func hasWarning(m Metrics, substr string) bool {
	for _, w := range m.Warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}

func TestWordCount(t *testing.T) {
	if got := WordCount("## Heading\n- item one\n\n**bold** text -- x"); got != 6 {
		t.Fatalf("WordCount = %d", got)
	}
}

func TestScore(t *testing.T) {
	cases := []struct {
		warnings int
		want     int
	}{{0, 100}, {3, 70}, {10, 0}, {14, 0}}
	for _, c := range cases {
		m := Metrics{Warnings: make([]string, c.warnings)}
		if got := Score(m); got != c.want {
			t.Errorf("Score(%d warnings) = %d, want %d", c.warnings, got, c.want)
		}
	}
}

func TestLecture_Counts(t *testing.T) {
	text := `# Cells
## Introduction
Cells are units of life. For example, bacteria are single cells.
### Detail
**Membrane**: a lipid bilayer. See the lab for more.
## Structure
Organelles such as mitochondria matter. Consider the nucleus, e.g. in plants.
`
	m := Lecture(text, reqs.Lecture)
	if m.ContentType != TypeLecture {
		t.Fatalf("ContentType = %q", m.ContentType)
	}
	want := map[string]int{"sections": 2, "subsections": 1, "examples": 4, "definitions": 1, "cross_references": 1}
	for k, v := range want {
		if m.Counts[k] != v {
			t.Errorf("Counts[%s] = %d, want %d", k, m.Counts[k], v)
		}
	}
	if !hasWarning(m, "Word count") || !hasWarning(m, "need") {
		t.Fatalf("expected word-count shortfall warning: %v", m.Warnings)
	}
	if !hasWarning(m, "Section count 2 is below minimum 4 (need 2 more sections)") {
		t.Fatalf("warnings = %v", m.Warnings)
	}
	if m.Requirements["min_word_count"] != 1000 {
		t.Fatalf("Requirements = %v", m.Requirements)
	}
}

func TestLecture_Excess(t *testing.T) {
	req := config.LectureRequirements{MinWordCount: 1, MaxWordCount: 10, MaxExamples: 100, MaxSections: 100}
	m := Lecture(words(15), req)
	if !hasWarning(m, "exceeds maximum 10 (remove 5 words)") {
		t.Fatalf("warnings = %v", m.Warnings)
	}
}

const goodLab = `# Lab: Observing Cells
## Materials
- Microscope
- Slides
## Safety
⚠️ Handle glass slides with care.
## Procedure
1. Prepare the slide.
2. Add a drop of water.
3. Place the sample.
4. Focus the microscope.
5. Record observations.
## Data
| Sample | Observation |
|--------|-------------|
| Onion  | Cell walls  |
`

func TestLab_Valid(t *testing.T) {
	req := reqs.Lab
	req.MinWordCount = 10
	m := Lab(goodLab, req)
	if !m.Valid() {
		t.Fatalf("warnings = %v", m.Warnings)
	}
	if m.Counts["procedure_steps"] != 5 || m.Counts["tables"] != 1 || m.Counts["materials"] != 2 {
		t.Fatalf("counts = %v", m.Counts)
	}
}

func TestLab_Missing(t *testing.T) {
	m := Lab("1. Do it.\n2. Again.\n", reqs.Lab)
	for _, want := range []string{"Missing safety section", "Missing data table", "Procedure step count 2 is below minimum 5"} {
		if !hasWarning(m, want) {
			t.Errorf("missing warning %q in %v", want, m.Warnings)
		}
	}
}

func TestStudyNotes_FourFormatsAndDedup(t *testing.T) {
	text := `# Notes
- **Mitosis**: cell division.
1. **Mitosis**: repeated in numbered form.
2. **Meiosis:** gamete division.
**Osmosis**: water movement.
## **Diffusion**: particle spread
- **mitosis** : lowercase duplicate
`
	m := StudyNotes(text, reqs.StudyNotes)
	if m.Counts["key_concepts"] != 4 {
		t.Fatalf("key_concepts = %d, counts = %v", m.Counts["key_concepts"], m.Counts)
	}
	if m.Counts["bulleted_concepts"] != 2 || m.Counts["numbered_concepts"] != 2 || m.Counts["paragraph_concepts"] != 1 || m.Counts["header_concepts"] != 1 {
		t.Fatalf("format counts = %v", m.Counts)
	}
	if !m.Valid() {
		t.Fatalf("warnings = %v", m.Warnings)
	}
}

func TestStudyNotes_TooFew(t *testing.T) {
	m := StudyNotes("- **One**: x\n", reqs.StudyNotes)
	if !hasWarning(m, "Key concept count 1 is below minimum 3") {
		t.Fatalf("warnings = %v", m.Warnings)
	}
}

func mcQuestion(n int, expl string) string {
	return fmt.Sprintf(`## Question %d
Which organelle produces most of the cell's energy?
A) Nucleus
B) Mitochondria
C) Ribosome
D) Golgi apparatus
**Answer:** B
**Explanation:** %s
`, n, expl)
}

var goodExpl = "Mitochondria carry out cellular respiration, converting glucose and oxygen into ATP, which is the main energy currency used by nearly every process inside the cell."

func TestQuestions_Valid(t *testing.T) {
	var b strings.Builder
	for i := 1; i <= 5; i++ {
		b.WriteString(mcQuestion(i, goodExpl))
	}
	m := Questions(b.String(), reqs.Questions)
	if m.Counts["questions"] != 5 || m.Counts["multiple_choice"] != 5 {
		t.Fatalf("counts = %v", m.Counts)
	}
	if !m.Valid() {
		t.Fatalf("warnings = %v", m.Warnings)
	}
}

func TestQuestions_DedupByNumber(t *testing.T) {
	text := mcQuestion(1, goodExpl) + mcQuestion(1, goodExpl) + mcQuestion(2, goodExpl)
	m := Questions(text, reqs.Questions)
	if m.Counts["questions"] != 2 || m.Counts["duplicate_numbers"] != 1 {
		t.Fatalf("counts = %v", m.Counts)
	}
}

func TestQuestions_Formats(t *testing.T) {
	text := `**Question 1:** What is a cell?
Answer: the unit of life.
Question 2: What is a tissue?
Answer: a group of cells.
**3.** What is an organ?
Answer: tissues working together.
Q4. What is a system?
Answer: organs together.
5. Why do cells divide?
Answer: growth.
### Question 6
What does DNA store?
Answer: information.
`
	m := Questions(text, config.QuestionRequirements{MinQuestions: 1, MaxQuestions: 10, MinQuestionWords: 3, MaxQuestionWords: 50})
	if m.Counts["questions"] != 6 {
		t.Fatalf("questions = %d", m.Counts["questions"])
	}
	if m.Counts["with_answers"] != 6 {
		t.Fatalf("with_answers = %d", m.Counts["with_answers"])
	}
	if !m.Valid() {
		t.Fatalf("warnings = %v", m.Warnings)
	}
}

func TestQuestions_Violations(t *testing.T) {
	text := `## Question 1
Which is a cell part?
A. Nucleus
B. Wall
C. Leaf
**Answer:** A
**Explanation:** Too short.
## Question 2
Pick one?
A) x
B) y
C) z
D) w
`
	m := Questions(text, reqs.Questions)
	for _, want := range []string{
		"Question 1 has 3 options",
		"Question 1 explanation has 2 words (need 20-50 words)",
		"Question 2 is missing an answer section",
		"Question 2 is missing an explanation section",
		"Question 2 text has 2 words",
		"Question count 2 is below minimum 5",
	} {
		if !hasWarning(m, want) {
			t.Errorf("missing warning %q in %v", want, m.Warnings)
		}
	}
	if m.Counts["invalid_options"] != 1 || m.Counts["missing_answers"] != 1 {
		t.Fatalf("counts = %v", m.Counts)
	}
}

func bigDiagram() string {
	var b strings.Builder
	b.WriteString("graph TD\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "    N%d[Step %d] --> N%d[Step %d]\n", i, i, i+1, i+1)
	}
	return b.String()
}

func TestDiagram_Valid(t *testing.T) {
	m := Diagram(bigDiagram(), reqs.Diagram)
	if m.Counts["nodes"] != 11 || m.Counts["connections"] != 10 || m.Counts["has_type"] != 1 {
		t.Fatalf("counts = %v", m.Counts)
	}
	if !m.Valid() {
		t.Fatalf("warnings = %v", m.Warnings)
	}
}

func TestDiagram_Small(t *testing.T) {
	text := "flowchart LR\n  A[Cell] --> B(Nucleus)\n  B --> C{DNA?}\n  C -- yes --> D[Genes]\n"
	m := Diagram(text, reqs.Diagram)
	if m.Counts["nodes"] != 4 || m.Counts["connections"] != 3 {
		t.Fatalf("counts = %v", m.Counts)
	}
	if !hasWarning(m, "4 nodes, below minimum 10") || !hasWarning(m, "3 connections, below minimum 8") {
		t.Fatalf("warnings = %v", m.Warnings)
	}
}

func TestDiagram_LabelsAndEmpty(t *testing.T) {
	text := "graph TD\n  A[This label is definitely much longer than forty characters] --> B[]\n  C[\"Cell (membrane)\"] --> A\n"
	m := Diagram(text, reqs.Diagram)
	if m.Counts["long_labels"] != 1 || m.Counts["empty_nodes"] != 1 {
		t.Fatalf("counts = %v", m.Counts)
	}
	if m.Counts["nodes"] != 3 {
		t.Fatalf("nodes = %d", m.Counts["nodes"])
	}
}

func TestDiagram_BareEndpoints(t *testing.T) {
	m := Diagram("graph TD\n  A --> B\n  B -->|yes| C\n  C --- end\n", reqs.Diagram)
	if m.Counts["nodes"] != 3 || m.Counts["connections"] != 3 {
		t.Fatalf("counts = %v", m.Counts)
	}
}

func TestDiagram_MissingType(t *testing.T) {
	m := Diagram("A --> B", reqs.Diagram)
	if !hasWarning(m, "Missing diagram type declaration") {
		t.Fatalf("warnings = %v", m.Warnings)
	}
}

func themed(heading string, n, wordsEach int) string {
	var b strings.Builder
	b.WriteString("# Title\n\nIntro text.\n\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "## %s %d: Example\n\n%s\n\n", heading, i, words(wordsEach))
	}
	return b.String()
}

func TestSections_Themes(t *testing.T) {
	cases := []struct {
		theme   SectionTheme
		heading string
		req     config.SectionRequirements
	}{
		{ApplicationTheme, "Application", reqs.Application},
		{ExtensionTheme, "Topic", reqs.Extension},
		{IntegrationTheme, "Connection", reqs.Integration},
		{InvestigationTheme, "Research Question", reqs.Investigation},
		{OpenQuestionsTheme, "Open Question", reqs.OpenQuestions},
	}
	for _, c := range cases {
		t.Run(c.theme.ContentType, func(t *testing.T) {
			m := Sections(themed(c.heading, 3, 150), c.theme, c.req)
			if m.Counts["sections"] != 3 {
				t.Fatalf("sections = %d", m.Counts["sections"])
			}
			if !m.Valid() {
				t.Fatalf("warnings = %v", m.Warnings)
			}
		})
	}
}

func TestSections_Violations(t *testing.T) {
	m := Sections(themed("Application", 2, 40), ApplicationTheme, reqs.Application)
	if !hasWarning(m, "Application 1: Example has") || !hasWarning(m, "(need 1 more '## Application N' sections)") {
		t.Fatalf("warnings = %v", m.Warnings)
	}
	if m.Counts["short_sections"] != 2 {
		t.Fatalf("counts = %v", m.Counts)
	}
}

func TestAnalyzers_Deterministic(t *testing.T) {
	inputs := []string{"", "???", "```\n{{{", goodLab, bigDiagram(), mcQuestion(1, goodExpl)}
	for _, in := range inputs {
		for _, run := range []func(string) Metrics{
			func(s string) Metrics { return Lecture(s, reqs.Lecture) },
			func(s string) Metrics { return Lab(s, reqs.Lab) },
			func(s string) Metrics { return StudyNotes(s, reqs.StudyNotes) },
			func(s string) Metrics { return Questions(s, reqs.Questions) },
			func(s string) Metrics { return Diagram(s, reqs.Diagram) },
			func(s string) Metrics { return Sections(s, OpenQuestionsTheme, reqs.OpenQuestions) },
		} {
			a, b := run(in), run(in)
			if !reflect.DeepEqual(a, b) {
				t.Fatalf("non-deterministic output for %q", in)
			}
		}
	}
}
