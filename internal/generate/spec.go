// Package generate produces session artifacts: one Spec per artifact kind
// and a Generator that runs the validate, clean and retry loop.
package generate

import (
	"fmt"

	"github.com/jorge-barreto/coursegen/internal/analyze"
	"github.com/jorge-barreto/coursegen/internal/cleanup"
	"github.com/jorge-barreto/coursegen/internal/config"
	"github.com/jorge-barreto/coursegen/internal/llm"
)

type Kind string

const (
	KindLecture       Kind = "lecture"
	KindLab           Kind = "lab"
	KindStudyNotes    Kind = "study_notes"
	KindQuestions     Kind = "questions"
	KindDiagram       Kind = "diagram"
	KindApplication   Kind = "application"
	KindExtension     Kind = "extension"
	KindVisualization Kind = "visualization"
	KindIntegration   Kind = "integration"
	KindInvestigation Kind = "investigation"
	KindOpenQuestions Kind = "open_questions"
)

// CoreKinds are generated for every session, in order.
var CoreKinds = []Kind{KindLecture, KindLab, KindStudyNotes, KindQuestions}

// Spec describes how one artifact kind is prompted, cleaned and validated.
type Spec struct {
	Kind      Kind
	Operation llm.Operation
	// Template is the prompt name in llm.yaml.
	Template string
	FileName string
	Format   cleanup.Format
	Analyze  func(text string, req config.ContentRequirements) analyze.Metrics
	// NeedsLecture marks artifacts that take the lecture as context.
	NeedsLecture bool
	NeedsLab     bool
}

var specs = map[Kind]Spec{
	KindLecture: {
		Kind: KindLecture, Operation: llm.OpLecture, Template: "lecture", FileName: "lecture.md", Format: cleanup.FormatMarkdown,
		Analyze: func(t string, r config.ContentRequirements) analyze.Metrics { return analyze.Lecture(t, r.Lecture) },
	},
	KindLab: {
		Kind: KindLab, Operation: llm.OpLab, Template: "lab", FileName: "lab.md", Format: cleanup.FormatMarkdown,
		Analyze:      func(t string, r config.ContentRequirements) analyze.Metrics { return analyze.Lab(t, r.Lab) },
		NeedsLecture: true,
	},
	KindStudyNotes: {
		Kind: KindStudyNotes, Operation: llm.OpStudyNotes, Template: "study_notes", FileName: "study_notes.md", Format: cleanup.FormatMarkdown,
		Analyze:      func(t string, r config.ContentRequirements) analyze.Metrics { return analyze.StudyNotes(t, r.StudyNotes) },
		NeedsLecture: true,
	},
	KindQuestions: {
		Kind: KindQuestions, Operation: llm.OpQuestions, Template: "questions", FileName: "questions.md", Format: cleanup.FormatMarkdown,
		Analyze:      func(t string, r config.ContentRequirements) analyze.Metrics { return analyze.Questions(t, r.Questions) },
		NeedsLecture: true, NeedsLab: true,
	},
	KindDiagram: {
		Kind: KindDiagram, Operation: llm.OpDiagram, Template: "diagram", Format: cleanup.FormatMermaid,
		Analyze: func(t string, r config.ContentRequirements) analyze.Metrics { return analyze.Diagram(t, r.Diagram) },
	},
	KindApplication: {
		Kind: KindApplication, Operation: llm.OpApplication, Template: "application", FileName: "application.md", Format: cleanup.FormatMarkdown,
		Analyze: func(t string, r config.ContentRequirements) analyze.Metrics {
			return analyze.Sections(t, analyze.ApplicationTheme, r.Application)
		},
		NeedsLecture: true,
	},
	KindExtension: {
		Kind: KindExtension, Operation: llm.OpExtension, Template: "extension", FileName: "extension.md", Format: cleanup.FormatMarkdown,
		Analyze: func(t string, r config.ContentRequirements) analyze.Metrics {
			return analyze.Sections(t, analyze.ExtensionTheme, r.Extension)
		},
		NeedsLecture: true,
	},
	KindVisualization: {
		Kind: KindVisualization, Operation: llm.OpVisualization, Template: "visualization", FileName: "visualization.mmd", Format: cleanup.FormatMermaid,
		Analyze: func(t string, r config.ContentRequirements) analyze.Metrics {
			m := analyze.Diagram(t, r.Visualization)
			m.ContentType = string(KindVisualization)
			return m
		},
		NeedsLecture: true,
	},
	KindIntegration: {
		Kind: KindIntegration, Operation: llm.OpIntegration, Template: "integration", FileName: "integration.md", Format: cleanup.FormatMarkdown,
		Analyze: func(t string, r config.ContentRequirements) analyze.Metrics {
			return analyze.Sections(t, analyze.IntegrationTheme, r.Integration)
		},
		NeedsLecture: true,
	},
	KindInvestigation: {
		Kind: KindInvestigation, Operation: llm.OpInvestigation, Template: "investigation", FileName: "investigation.md", Format: cleanup.FormatMarkdown,
		Analyze: func(t string, r config.ContentRequirements) analyze.Metrics {
			return analyze.Sections(t, analyze.InvestigationTheme, r.Investigation)
		},
		NeedsLecture: true,
	},
	KindOpenQuestions: {
		Kind: KindOpenQuestions, Operation: llm.OpOpenQuestions, Template: "open_questions", FileName: "open_questions.md", Format: cleanup.FormatMarkdown,
		Analyze: func(t string, r config.ContentRequirements) analyze.Metrics {
			return analyze.Sections(t, analyze.OpenQuestionsTheme, r.OpenQuestions)
		},
		NeedsLecture: true,
	},
}

// SpecFor returns the spec for kind.
func SpecFor(kind Kind) (Spec, bool) {
	s, ok := specs[kind]
	return s, ok
}

// ExtraKinds validates configured extra artifact names, preserving order
// and dropping duplicates.
func ExtraKinds(names []string) ([]Kind, error) {
	seen := map[Kind]bool{}
	var out []Kind
	for _, n := range names {
		k := Kind(n)
		s, ok := specs[k]
		if !ok || s.FileName == "" || isCore(k) {
			return nil, fmt.Errorf("unknown extra artifact %q (valid: application, extension, visualization, integration, investigation, open_questions)", n)
		}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out, nil
}

func isCore(k Kind) bool {
	for _, c := range CoreKinds {
		if c == k {
			return true
		}
	}
	return false
}

// DiagramFileName is diagram_<n>.mmd, n starting at 1.
func DiagramFileName(n int) string {
	return fmt.Sprintf("diagram_%d.mmd", n)
}
