package outline

import (
	"fmt"
	"strings"

	"github.com/jorge-barreto/coursegen/internal/course"
)

// RenderMarkdown renders the human-readable outline document.
func RenderMarkdown(o *course.Outline) string {
	var b strings.Builder
	md := o.Metadata
	fmt.Fprintf(&b, "# %s\n\n", md.Name)
	if md.Level != "" {
		fmt.Fprintf(&b, "**Level:** %s  \n", md.Level)
	}
	if md.DurationWeeks > 0 {
		fmt.Fprintf(&b, "**Duration:** %d weeks  \n", md.DurationWeeks)
	}
	fmt.Fprintf(&b, "**Modules:** %d | **Sessions:** %d  \n", md.TotalModules, md.TotalSessions)
	if md.QualityScore != nil {
		fmt.Fprintf(&b, "**Outline quality:** %d/100 (%s)  \n", *md.QualityScore, md.QualityLevel)
	}
	if md.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", md.Description)
	}

	for _, m := range o.Modules {
		fmt.Fprintf(&b, "\n## Module %d: %s\n", m.ModuleID, m.ModuleName)
		if m.ModuleDescription != "" {
			fmt.Fprintf(&b, "\n%s\n", m.ModuleDescription)
		}
		for _, s := range m.Sessions {
			fmt.Fprintf(&b, "\n### Session %d: %s\n", s.SessionNumber, s.SessionTitle)
			writeList(&b, "Subtopics", s.Subtopics)
			writeList(&b, "Learning Objectives", s.LearningObjectives)
			writeList(&b, "Key Concepts", s.KeyConcepts)
			if s.Rationale != "" {
				fmt.Fprintf(&b, "\n**Rationale:** %s\n", s.Rationale)
			}
		}
	}
	return b.String()
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n**%s:**\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}
