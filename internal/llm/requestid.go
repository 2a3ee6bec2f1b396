package llm

import (
	"strings"

	"github.com/google/uuid"
)

// Operation names a generation kind. It selects the timeout, the prompt
// template and the request-id prefix.
type Operation string

const (
	OpOutline       Operation = "outline"
	OpLecture       Operation = "lecture"
	OpLab           Operation = "lab"
	OpStudyNotes    Operation = "study_notes"
	OpDiagram       Operation = "diagram"
	OpQuestions     Operation = "questions"
	OpApplication   Operation = "application"
	OpExtension     Operation = "extension"
	OpVisualization Operation = "visualization"
	OpIntegration   Operation = "integration"
	OpInvestigation Operation = "investigation"
	OpOpenQuestions Operation = "open_questions"
)

var opAbbrev = map[Operation]string{
	OpOutline:       "out",
	OpLecture:       "lec",
	OpLab:           "lab",
	OpStudyNotes:    "stu",
	OpDiagram:       "dia",
	OpQuestions:     "qst",
	OpApplication:   "app",
	OpExtension:     "ext",
	OpVisualization: "viz",
	OpIntegration:   "int",
	OpInvestigation: "inv",
	OpOpenQuestions: "opq",
}

// Abbrev returns the three-letter request-id prefix.
func (o Operation) Abbrev() string {
	if a, ok := opAbbrev[o]; ok {
		return a
	}
	letters := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r
		}
		return -1
	}, strings.ToLower(string(o)))
	for len(letters) < 3 {
		letters += "x"
	}
	return letters[:3]
}

// NewRequestID mints "<op3>:<6hex>".
func NewRequestID(op Operation) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return op.Abbrev() + ":" + token[:6]
}
