// Package course holds the stage-1 outline model and its structural rules.
package course

import (
	"encoding/json"
	"fmt"
	"os"
)

type Session struct {
	SessionNumber      int      `json:"session_number"`
	SessionTitle       string   `json:"session_title"`
	Subtopics          []string `json:"subtopics"`
	LearningObjectives []string `json:"learning_objectives"`
	KeyConcepts        []string `json:"key_concepts"`
	Rationale          string   `json:"rationale"`
}

type Module struct {
	ModuleID          int       `json:"module_id"`
	ModuleName        string    `json:"module_name"`
	ModuleDescription string    `json:"module_description,omitempty"`
	Sessions          []Session `json:"sessions"`
}

type QualityValidation struct {
	OverlapCount          int `json:"overlap_count"`
	ProgressionIssueCount int `json:"progression_issue_count"`
	BalanceIssueCount     int `json:"balance_issue_count"`
}

type Metadata struct {
	Name              string             `json:"name"`
	Description       string             `json:"description,omitempty"`
	Level             string             `json:"level"`
	DurationWeeks     int                `json:"duration_weeks"`
	TotalSessions     int                `json:"total_sessions"`
	TotalModules      int                `json:"total_modules"`
	CourseTemplate    string             `json:"course_template,omitempty"`
	QualityScore      *int               `json:"quality_score,omitempty"`
	QualityLevel      string             `json:"quality_level,omitempty"`
	QualityValidation *QualityValidation `json:"quality_validation,omitempty"`
}

type Outline struct {
	Metadata Metadata `json:"course_metadata"`
	Modules  []Module `json:"modules"`
}

// SessionRef points at one session together with its position.
type SessionRef struct {
	Module       *Module
	Session      *Session
	ModuleIndex  int
	SessionIndex int
}

// Sessions returns every session in outline order.
func (o *Outline) Sessions() []SessionRef {
	var out []SessionRef
	for mi := range o.Modules {
		m := &o.Modules[mi]
		for si := range m.Sessions {
			out = append(out, SessionRef{Module: m, Session: &m.Sessions[si], ModuleIndex: mi, SessionIndex: si})
		}
	}
	return out
}

func (o *Outline) TotalSessions() int {
	n := 0
	for _, m := range o.Modules {
		n += len(m.Sessions)
	}
	return n
}

// FilterModules returns a copy holding only the listed module ids, in
// outline order. An empty list keeps every module.
func (o *Outline) FilterModules(ids []int) *Outline {
	out := *o
	if len(ids) == 0 {
		return &out
	}
	want := map[int]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out.Modules = nil
	for _, m := range o.Modules {
		if want[m.ModuleID] {
			out.Modules = append(out.Modules, m)
		}
	}
	return &out
}

// Load reads an outline JSON document, applying the same structural rules
// as freshly generated outlines.
func Load(path string) (*Outline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing outline %s: %w", path, err)
	}
	o, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("outline %s: %w", path, err)
	}
	return o, nil
}
