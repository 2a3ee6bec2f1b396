// Package docs holds the plain-text help topics shown by "coursegen docs".
package docs

import (
	"fmt"
	"strings"
)

type Topic struct {
	Name    string // CLI argument
	Title   string
	Summary string // one line for the topic list
	Content string
}

func All() []Topic {
	return topics
}

// Get finds a topic by name, case-insensitively. A unique prefix also
// matches, so "trouble" resolves to "troubleshooting".
func Get(name string) (Topic, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	var matches []Topic
	for _, t := range topics {
		if t.Name == name {
			return t, nil
		}
		if name != "" && strings.HasPrefix(t.Name, name) {
			matches = append(matches, t)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return Topic{}, fmt.Errorf("unknown topic %q; run 'coursegen docs' to list available topics", name)
	default:
		names := make([]string, len(matches))
		for i, t := range matches {
			names[i] = t.Name
		}
		return Topic{}, fmt.Errorf("topic %q is ambiguous: %s", name, strings.Join(names, ", "))
	}
}
