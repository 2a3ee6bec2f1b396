package course

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RequiredSessionFields lists the keys every session object must carry.
var RequiredSessionFields = []string{
	"session_number", "session_title", "subtopics", "learning_objectives", "key_concepts", "rationale",
}

var requiredModuleFields = []string{"module_id", "module_name", "sessions"}

// RequiredMetadataFields lists the course_metadata keys an outline should
// carry. A missing one is a warning; ReconcileMetadata fills it.
var RequiredMetadataFields = []string{"name", "level", "duration_weeks", "total_sessions", "total_modules"}

// OutlineValidationError lists every structural problem found in a raw
// outline document.
type OutlineValidationError struct {
	Problems []string
}

func (e *OutlineValidationError) Error() string {
	return "outline validation failed: " + strings.Join(e.Problems, "; ")
}

// ValidateRaw checks the structure of a decoded outline document: required
// top-level keys, a non-empty list of module objects, required module keys
// and the six required session fields.
func ValidateRaw(raw map[string]any) error {
	var problems []string
	add := func(format string, args ...any) { problems = append(problems, fmt.Sprintf(format, args...)) }

	if _, ok := raw["course_metadata"].(map[string]any); !ok {
		add("missing or non-object 'course_metadata'")
	}
	modules, ok := raw["modules"].([]any)
	switch {
	case !ok:
		add("missing or non-list 'modules'")
	case len(modules) == 0:
		add("'modules' is empty")
	}
	for i, mv := range modules {
		m, ok := mv.(map[string]any)
		if !ok {
			add("module %d is not an object", i+1)
			continue
		}
		for _, k := range requiredModuleFields {
			if _, ok := m[k]; !ok {
				add("module %d missing '%s'", i+1, k)
			}
		}
		sessions, ok := m["sessions"].([]any)
		if !ok {
			if _, present := m["sessions"]; present {
				add("module %d 'sessions' is not a list", i+1)
			}
			continue
		}
		if len(sessions) == 0 {
			add("module %d has no sessions", i+1)
		}
		for j, sv := range sessions {
			s, ok := sv.(map[string]any)
			if !ok {
				add("module %d session %d is not an object", i+1, j+1)
				continue
			}
			var missing []string
			for _, k := range RequiredSessionFields {
				if _, ok := s[k]; !ok {
					missing = append(missing, k)
				}
			}
			if len(missing) > 0 {
				add("module %d session %d missing %s", i+1, j+1, strings.Join(missing, ", "))
			}
		}
	}
	if len(problems) > 0 {
		return &OutlineValidationError{Problems: problems}
	}
	return nil
}

// MissingMetadataKeys returns the required course_metadata keys that raw
// lacks or leaves blank, in RequiredMetadataFields order.
func MissingMetadataKeys(raw map[string]any) []string {
	md, ok := raw["course_metadata"].(map[string]any)
	if !ok {
		return nil
	}
	var missing []string
	for _, k := range RequiredMetadataFields {
		if v, ok := md[k]; !ok || v == nil || asString(v) == "" {
			missing = append(missing, k)
		}
	}
	return missing
}

// Parse validates raw and converts it into an Outline. Numbers given as
// strings or floats and list fields given as a single string are coerced.
func Parse(raw map[string]any) (*Outline, error) {
	if err := ValidateRaw(raw); err != nil {
		return nil, err
	}
	md, _ := raw["course_metadata"].(map[string]any)
	o := &Outline{Metadata: Metadata{
		Name:           asString(md["name"]),
		Description:    asString(md["description"]),
		Level:          asString(md["level"]),
		DurationWeeks:  asInt(md["duration_weeks"]),
		TotalSessions:  asInt(md["total_sessions"]),
		TotalModules:   asInt(md["total_modules"]),
		CourseTemplate: asString(md["course_template"]),
		QualityLevel:   asString(md["quality_level"]),
	}}
	if v, ok := md["quality_score"]; ok && v != nil {
		score := asInt(v)
		o.Metadata.QualityScore = &score
	}
	if qv, ok := md["quality_validation"].(map[string]any); ok {
		o.Metadata.QualityValidation = &QualityValidation{
			OverlapCount:          asInt(qv["overlap_count"]),
			ProgressionIssueCount: asInt(qv["progression_issue_count"]),
			BalanceIssueCount:     asInt(qv["balance_issue_count"]),
		}
	}
	for _, mv := range raw["modules"].([]any) {
		m := mv.(map[string]any)
		mod := Module{
			ModuleID:          asInt(m["module_id"]),
			ModuleName:        asString(m["module_name"]),
			ModuleDescription: asString(m["module_description"]),
		}
		for _, sv := range m["sessions"].([]any) {
			s := sv.(map[string]any)
			mod.Sessions = append(mod.Sessions, Session{
				SessionNumber:      asInt(s["session_number"]),
				SessionTitle:       asString(s["session_title"]),
				Subtopics:          asStrings(s["subtopics"]),
				LearningObjectives: asStrings(s["learning_objectives"]),
				KeyConcepts:        asStrings(s["key_concepts"]),
				Rationale:          asString(s["rationale"]),
			})
		}
		o.Modules = append(o.Modules, mod)
	}
	return o, nil
}

// NormalizeSessionNumbers renumbers sessions globally from 1 in module and
// session order. It reports whether any number changed.
func (o *Outline) NormalizeSessionNumbers() bool {
	changed := false
	n := 0
	for _, ref := range o.Sessions() {
		n++
		if ref.Session.SessionNumber != n {
			ref.Session.SessionNumber = n
			changed = true
		}
	}
	return changed
}

// RenumberModules makes module ids 1..N in outline order and returns one
// warning per id that changed.
func (o *Outline) RenumberModules() []string {
	var warnings []string
	for i := range o.Modules {
		if want := i + 1; o.Modules[i].ModuleID != want {
			warnings = append(warnings, fmt.Sprintf("module %q had id %d; renumbered to %d", o.Modules[i].ModuleName, o.Modules[i].ModuleID, want))
			o.Modules[i].ModuleID = want
		}
	}
	return warnings
}

// ReconcileMetadata fills blank metadata from defaults and sets the module
// and session totals to the actual counts. Every adjusted value produces a
// warning.
func (o *Outline) ReconcileMetadata(defaults Metadata) []string {
	var warnings []string
	md := &o.Metadata
	if strings.TrimSpace(md.Name) == "" {
		md.Name = defaults.Name
	}
	if strings.TrimSpace(md.Level) == "" {
		md.Level = defaults.Level
	}
	if md.Description == "" {
		md.Description = defaults.Description
	}
	if md.DurationWeeks <= 0 && defaults.DurationWeeks > 0 {
		md.DurationWeeks = defaults.DurationWeeks
	}
	if md.CourseTemplate == "" {
		md.CourseTemplate = defaults.CourseTemplate
	}
	if actual := len(o.Modules); md.TotalModules != actual {
		warnings = append(warnings, fmt.Sprintf("course_metadata.total_modules %d does not match actual %d; updated", md.TotalModules, actual))
		md.TotalModules = actual
	}
	if actual := o.TotalSessions(); md.TotalSessions != actual {
		warnings = append(warnings, fmt.Sprintf("course_metadata.total_sessions %d does not match actual %d; updated", md.TotalSessions, actual))
		md.TotalSessions = actual
	}
	return warnings
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

func asInt(v any) int {
	switch x := v.(type) {
	case float64:
		return int(math.Round(x))
	case int:
		return x
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func asStrings(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(x) == "" {
			return nil
		}
		return []string{strings.TrimSpace(x)}
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s := asString(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{asString(x)}
	}
}
