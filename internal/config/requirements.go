package config

import "fmt"

type LectureRequirements struct {
	MinWordCount int `yaml:"min_word_count"`
	MaxWordCount int `yaml:"max_word_count"`
	MinExamples  int `yaml:"min_examples"`
	MaxExamples  int `yaml:"max_examples"`
	MinSections  int `yaml:"min_sections"`
	MaxSections  int `yaml:"max_sections"`
}

type LabRequirements struct {
	MinSteps      int  `yaml:"min_steps"`
	MaxSteps      int  `yaml:"max_steps"`
	MinWordCount  int  `yaml:"min_word_count"`
	MaxWordCount  int  `yaml:"max_word_count"`
	RequireSafety bool `yaml:"require_safety"`
	RequireTable  bool `yaml:"require_table"`
}

type StudyNotesRequirements struct {
	MinKeyConcepts int `yaml:"min_key_concepts"`
	MaxKeyConcepts int `yaml:"max_key_concepts"`
	MaxWordCount   int `yaml:"max_word_count"`
}

type QuestionRequirements struct {
	MinQuestions        int `yaml:"min_questions"`
	MaxQuestions        int `yaml:"max_questions"`
	MinExplanationWords int `yaml:"min_explanation_words"`
	MaxExplanationWords int `yaml:"max_explanation_words"`
	MinQuestionWords    int `yaml:"min_question_words"`
	MaxQuestionWords    int `yaml:"max_question_words"`
}

type DiagramRequirements struct {
	MinNodes       int `yaml:"min_nodes"`
	MinConnections int `yaml:"min_connections"`
	MaxLabelLength int `yaml:"max_label_length"`
}

// SectionRequirements bounds documents organised as numbered themed sections
// (applications, extension topics, research questions, ...).
type SectionRequirements struct {
	MinSections        int `yaml:"min_sections"`
	MaxSections        int `yaml:"max_sections"`
	MinWordsPerSection int `yaml:"min_words_per_section"`
	MaxWordsPerSection int `yaml:"max_words_per_section"`
	MaxTotalWords      int `yaml:"max_total_words"`
}

// ContentRequirements maps each artifact type to its structural bounds.
type ContentRequirements struct {
	Lecture       LectureRequirements    `yaml:"lecture"`
	Lab           LabRequirements        `yaml:"lab"`
	StudyNotes    StudyNotesRequirements `yaml:"study_notes"`
	Questions     QuestionRequirements   `yaml:"questions"`
	Diagram       DiagramRequirements    `yaml:"diagram"`
	Visualization DiagramRequirements    `yaml:"visualization"`
	Application   SectionRequirements    `yaml:"application"`
	Extension     SectionRequirements    `yaml:"extension"`
	Integration   SectionRequirements    `yaml:"integration"`
	Investigation SectionRequirements    `yaml:"investigation"`
	OpenQuestions SectionRequirements    `yaml:"open_questions"`
}

// DefaultContentRequirements returns the documented defaults.
func DefaultContentRequirements() ContentRequirements {
	return ContentRequirements{
		Lecture: LectureRequirements{
			MinWordCount: 1000, MaxWordCount: 3000,
			MinExamples: 3, MaxExamples: 20,
			MinSections: 4, MaxSections: 12,
		},
		Lab: LabRequirements{
			MinSteps: 5, MaxSteps: 25,
			MinWordCount: 300, MaxWordCount: 2500,
			RequireSafety: true, RequireTable: true,
		},
		StudyNotes: StudyNotesRequirements{MinKeyConcepts: 3, MaxKeyConcepts: 12, MaxWordCount: 1500},
		Questions: QuestionRequirements{
			MinQuestions: 5, MaxQuestions: 15,
			MinExplanationWords: 20, MaxExplanationWords: 50,
			MinQuestionWords: 3, MaxQuestionWords: 50,
		},
		Diagram:       DiagramRequirements{MinNodes: 10, MinConnections: 8, MaxLabelLength: 40},
		Visualization: DiagramRequirements{MinNodes: 10, MinConnections: 8, MaxLabelLength: 40},
		Application:   SectionRequirements{MinSections: 3, MaxSections: 5, MinWordsPerSection: 100, MaxWordsPerSection: 300, MaxTotalWords: 1500},
		Extension:     SectionRequirements{MinSections: 3, MaxSections: 4, MinWordsPerSection: 100, MaxWordsPerSection: 300, MaxTotalWords: 1200},
		Integration:   SectionRequirements{MinSections: 3, MaxSections: 5, MinWordsPerSection: 80, MaxWordsPerSection: 300, MaxTotalWords: 1500},
		Investigation: SectionRequirements{MinSections: 3, MaxSections: 5, MinWordsPerSection: 60, MaxWordsPerSection: 250, MaxTotalWords: 1200},
		OpenQuestions: SectionRequirements{MinSections: 3, MaxSections: 5, MinWordsPerSection: 50, MaxWordsPerSection: 250, MaxTotalWords: 1200},
	}
}

// DefaultOutlineBounds returns 3..7 for every per-session list.
func DefaultOutlineBounds() OutlineBounds {
	return OutlineBounds{
		Subtopics:          Range{Min: 3, Max: 7},
		LearningObjectives: Range{Min: 3, Max: 7},
		KeyConcepts:        Range{Min: 3, Max: 7},
	}
}

type namedRange struct {
	name     string
	min, max int
}

func (r ContentRequirements) ranges() []namedRange {
	out := []namedRange{
		{"lecture.word_count", r.Lecture.MinWordCount, r.Lecture.MaxWordCount},
		{"lecture.examples", r.Lecture.MinExamples, r.Lecture.MaxExamples},
		{"lecture.sections", r.Lecture.MinSections, r.Lecture.MaxSections},
		{"lab.steps", r.Lab.MinSteps, r.Lab.MaxSteps},
		{"lab.word_count", r.Lab.MinWordCount, r.Lab.MaxWordCount},
		{"study_notes.key_concepts", r.StudyNotes.MinKeyConcepts, r.StudyNotes.MaxKeyConcepts},
		{"questions.questions", r.Questions.MinQuestions, r.Questions.MaxQuestions},
		{"questions.explanation_words", r.Questions.MinExplanationWords, r.Questions.MaxExplanationWords},
		{"questions.question_words", r.Questions.MinQuestionWords, r.Questions.MaxQuestionWords},
	}
	sections := []struct {
		name string
		req  SectionRequirements
	}{
		{"application", r.Application},
		{"extension", r.Extension},
		{"integration", r.Integration},
		{"investigation", r.Investigation},
		{"open_questions", r.OpenQuestions},
	}
	for _, s := range sections {
		out = append(out,
			namedRange{s.name + ".sections", s.req.MinSections, s.req.MaxSections},
			namedRange{s.name + ".words_per_section", s.req.MinWordsPerSection, s.req.MaxWordsPerSection},
		)
	}
	return out
}

// Check reports every range whose min exceeds its max, and negative bounds.
func (r ContentRequirements) Check() []string {
	var problems []string
	for _, nr := range r.ranges() {
		if nr.min < 0 || nr.max < 0 {
			problems = append(problems, fmt.Sprintf("%s: bounds must be >= 0 (min=%d, max=%d)", nr.name, nr.min, nr.max))
			continue
		}
		if nr.min > nr.max {
			problems = append(problems, fmt.Sprintf("%s: min %d exceeds max %d", nr.name, nr.min, nr.max))
		}
	}
	return problems
}

// Check reports ranges with min > max or min < 1.
func (b OutlineBounds) Check() []string {
	var problems []string
	for _, nr := range []namedRange{
		{"subtopics", b.Subtopics.Min, b.Subtopics.Max},
		{"learning_objectives", b.LearningObjectives.Min, b.LearningObjectives.Max},
		{"key_concepts", b.KeyConcepts.Min, b.KeyConcepts.Max},
	} {
		if nr.min < 1 {
			problems = append(problems, fmt.Sprintf("items_per_field.%s: min must be >= 1", nr.name))
		}
		if nr.min > nr.max {
			problems = append(problems, fmt.Sprintf("items_per_field.%s: min %d exceeds max %d", nr.name, nr.min, nr.max))
		}
	}
	return problems
}
