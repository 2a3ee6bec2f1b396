package cleanup

import (
	"strings"
	"testing"
)

func TestMarkdown_PreambleAndClosing(t *testing.T) {
	in := "Okay, here's the lecture you asked for:\n\n# Cells\n\nBody text.\n\nLet me know if you want changes.\n"
	got := Markdown(in)
	if got != "# Cells\n\nBody text.\n" {
		t.Fatalf("Markdown = %q", got)
	}
}

func TestMarkdown_PreambleVariants(t *testing.T) {
	for _, in := range []string{
		"Sure! Here is the content:\n# Cells\n",
		"Alright, let's get started.\n# Cells\n",
		"Certainly.\n\n# Cells\n",
	} {
		if got := Markdown(in); got != "# Cells\n" {
			t.Fatalf("Markdown(%q) = %q", in, got)
		}
	}
}

func TestMarkdown_KeepsOrdinaryOpening(t *testing.T) {
	in := "Great Barrier Reef ecosystems are diverse.\n"
	if got := Markdown(in); got != in {
		t.Fatalf("Markdown = %q", got)
	}
}

func TestMarkdown_Redaction(t *testing.T) {
	in := "Professor Jane Smith met Dr. Watson on March 3, 2024, 3/4/2024 and 2024-03-04.\n"
	want := "[INSTRUCTOR] met [INSTRUCTOR] on [DATE], [DATE] and [DATE].\n"
	if got := Markdown(in); got != want {
		t.Fatalf("Markdown = %q", got)
	}
}

func TestMarkdown_WordCountFooters(t *testing.T) {
	in := "# T\n\nText here.\n\nWord count: 1,234\n(Approximately 1200 words)\n**Total words: 900**\n"
	if got := Markdown(in); got != "# T\n\nText here.\n" {
		t.Fatalf("Markdown = %q", got)
	}
}

func TestMarkdown_DuplicateHeadings(t *testing.T) {
	in := "# A\n\n## Intro\none\n\n## Body\ntwo\n\n## intro\ndup content\n\n### sub\nmore dup\n\n## End\nthree\n"
	want := "# A\n\n## Intro\none\n\n## Body\ntwo\n\n## End\nthree\n"
	if got := Markdown(in); got != want {
		t.Fatalf("Markdown = %q", got)
	}
}

func TestMarkdown_FencedCodeUntouched(t *testing.T) {
	in := "```bash\n# run\n```\n\n```bash\n# run\n```\n"
	if got := Markdown(in); got != in {
		t.Fatalf("Markdown = %q", got)
	}
}

func TestMarkdown_CollapsesBlankRuns(t *testing.T) {
	if got := Markdown("a\n\n\n\n\nb"); got != "a\n\n\nb\n" {
		t.Fatalf("Markdown = %q", got)
	}
}

func TestMarkdown_Idempotent(t *testing.T) {
	in := "Sure, here's your lecture:\n\n# Topic\n\n## Part\nDr. Jones said so on 2023-01-02.\n\n\n\n\n## part\nagain\n\nWord count: 50\nI hope this helps!\n"
	once := Markdown(in)
	if twice := Markdown(once); twice != once {
		t.Fatalf("not idempotent:\n%q\n%q", once, twice)
	}
	if strings.Contains(once, "Jones") || strings.Contains(once, "again") {
		t.Fatalf("Markdown = %q", once)
	}
}

func TestMermaid_FencedWithProse(t *testing.T) {
	in := "Here is the diagram you requested:\n\n```mermaid\ngraph TD\n    A[Start] --> B[End]\n    style A fill:#f9f\n    classDef red fill:#f00\n  linkStyle 0 stroke:#333\n```\n\n**Explanation:** The diagram shows flow.\n"
	want := "graph TD\n    A[Start] --> B[End]\n"
	if got := Mermaid(in); got != want {
		t.Fatalf("Mermaid = %q", got)
	}
}

func TestMermaid_UnfencedTrailingProse(t *testing.T) {
	in := "Sure, here's a flowchart.\nflowchart LR\n  A --> B\n  B --> C\n\nThis diagram shows how the pieces connect together.\n"
	want := "flowchart LR\n  A --> B\n  B --> C\n"
	if got := Mermaid(in); got != want {
		t.Fatalf("Mermaid = %q", got)
	}
}

func TestMermaid_HeadingTrailer(t *testing.T) {
	if got := Mermaid("graph TD\nA-->B\n## Notes\ntext"); got != "graph TD\nA-->B\n" {
		t.Fatalf("Mermaid = %q", got)
	}
}

func TestMermaid_KeepsSequenceNotes(t *testing.T) {
	in := "sequenceDiagram\n    Alice->>Bob: Hello\n    Note right of Bob: Thinks.\n"
	if got := Mermaid(in); got != in {
		t.Fatalf("Mermaid = %q", got)
	}
}

func TestMermaid_KeepsLongStatements(t *testing.T) {
	inputs := []string{
		"sequenceDiagram\n    Alice->>Bob: Hello\n    Note right of Bob: Bob thinks about the reply for a while.\n    Bob->>Alice: Hi\n",
		"stateDiagram-v2\n    Idle : The machine waits here for the next order.\n    Idle --> Busy\n",
		"pie\n    title Share of cell mass by component in a typical cell.\n    \"Water\" : 70\n",
	}
	for _, in := range inputs {
		if got := Mermaid(in); got != in {
			t.Errorf("Mermaid(%q) = %q", in, got)
		}
	}
}

func TestMermaid_NoStylingSurvives(t *testing.T) {
	inputs := []string{
		"graph LR\nstyle A fill:red\nA-->B\n",
		"```\nflowchart TD\n\tSTYLE X color:blue\n  ClassDef c fill:#fff\nlinkstyle default stroke:red\nX-->Y\n```",
		"Intro text\n```mermaid\ngraph TD\n    linkStyle 1 stroke:#000\nQ-->R\n```\nDone.",
	}
	for _, in := range inputs {
		once := Mermaid(in)
		for _, l := range strings.Split(once, "\n") {
			if stylingRe.MatchString(l) {
				t.Fatalf("styling line survived in %q", once)
			}
		}
		if twice := Mermaid(once); twice != once {
			t.Fatalf("not idempotent:\n%q\n%q", once, twice)
		}
	}
}

func TestClean_Dispatch(t *testing.T) {
	if got := Clean("```mermaid\ngraph TD\nA-->B\n```", FormatMermaid); got != "graph TD\nA-->B\n" {
		t.Fatalf("Clean mermaid = %q", got)
	}
	if got := Clean("Sure, here it is.\n# X\n", FormatMarkdown); got != "# X\n" {
		t.Fatalf("Clean markdown = %q", got)
	}
}
