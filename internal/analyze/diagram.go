package analyze

import (
	"regexp"
	"strings"

	"github.com/jorge-barreto/coursegen/internal/config"
)

// DiagramOpenerRe matches the first line of a Mermaid diagram.
var DiagramOpenerRe = regexp.MustCompile(`(?i)^\s*(graph|flowchart|sequenceDiagram|classDiagram|stateDiagram(?:-v2)?|erDiagram|gantt|pie|gitgraph)\b`)

var (
	squareNodeRe = regexp.MustCompile(`([A-Za-z_]\w*)\s*\[+\s*([^\]]*?)\s*\]+`)
	roundNodeRe  = regexp.MustCompile(`([A-Za-z_]\w*)\s*\(+\s*([^)]*?)\s*\)+`)
	curlyNodeRe  = regexp.MustCompile(`([A-Za-z_]\w*)\s*\{+\s*([^}]*?)\s*\}+`)
	classNodeRe  = regexp.MustCompile(`^\s*class\s+([A-Za-z_]\w*)`)
	edgeRe       = regexp.MustCompile(`-\.->|-->|==>|---|--|==`)
	// "A -- text --> B" and "A == text ==> B" are single labelled edges.
	labelledEdgeRe = regexp.MustCompile(`--\s+[^-\n>]+?\s+-->|==\s+[^=\n>]+?\s+==>`)
	quotedRe       = regexp.MustCompile(`"[^"]*"`)
	pipeLabelRe    = regexp.MustCompile(`^\|[^|]*\|\s*`)
	bareIDRe       = regexp.MustCompile(`^[A-Za-z_]\w*$`)
)

var nodeKeywords = map[string]bool{
	"graph": true, "flowchart": true, "subgraph": true, "end": true,
	"style": true, "classdef": true, "linkstyle": true, "click": true,
}

// Diagram validates a cleaned Mermaid diagram: a type declaration, unique
// node and edge counts, label lengths and empty nodes.
func Diagram(text string, req config.DiagramRequirements) Metrics {
	m := newMetrics(TypeDiagram)
	m.Requirements = map[string]int{
		"min_nodes":        req.MinNodes,
		"min_connections":  req.MinConnections,
		"max_label_length": req.MaxLabelLength,
	}

	var body []string
	hasType := false
	for _, l := range lines(text) {
		t := strings.TrimSpace(l)
		if t == "" || strings.HasPrefix(t, "%%") {
			continue
		}
		if !hasType && len(body) == 0 && DiagramOpenerRe.MatchString(t) {
			hasType = true
			continue
		}
		body = append(body, t)
	}

	nodes := map[string]bool{}
	longLabels, emptyNodes, edges := 0, 0, 0
	for _, l := range body {
		l = quotedRe.ReplaceAllStringFunc(l, func(q string) string {
			return strings.NewReplacer("(", " ", ")", " ", "[", " ", "]", " ", "{", " ", "}", " ", "-", " ", "=", " ").Replace(q)
		})
		for _, re := range []*regexp.Regexp{squareNodeRe, roundNodeRe, curlyNodeRe} {
			for _, match := range re.FindAllStringSubmatch(l, -1) {
				id := match[1]
				if nodeKeywords[strings.ToLower(id)] {
					continue
				}
				label := strings.Trim(strings.TrimSpace(match[2]), `"'`)
				if !nodes[id] {
					if label == "" {
						emptyNodes++
					} else if req.MaxLabelLength > 0 && len([]rune(label)) > req.MaxLabelLength {
						longLabels++
					}
				}
				nodes[id] = true
			}
			// Later shapes must not see this shape's label text.
			l = re.ReplaceAllString(l, "$1")
		}
		if match := classNodeRe.FindStringSubmatch(l); match != nil {
			nodes[match[1]] = true
		}
		l = labelledEdgeRe.ReplaceAllString(l, "-->")
		if n := countMatches(edgeRe, l); n > 0 {
			edges += n
			// Edge endpoints without a shape are nodes too.
			for _, part := range edgeRe.Split(l, -1) {
				id := strings.TrimSpace(pipeLabelRe.ReplaceAllString(strings.TrimSpace(part), ""))
				if bareIDRe.MatchString(id) && !nodeKeywords[strings.ToLower(id)] {
					nodes[id] = true
				}
			}
		}
	}

	m.Counts["has_type"] = boolInt(hasType)
	m.Counts["nodes"] = len(nodes)
	m.Counts["connections"] = edges
	m.Counts["long_labels"] = longLabels
	m.Counts["empty_nodes"] = emptyNodes
	m.Counts["lines"] = len(body)

	if !hasType {
		m.warn("Missing diagram type declaration (start with e.g. 'graph TD' or 'flowchart LR')")
	}
	if len(nodes) < req.MinNodes {
		m.warn("Diagram has %d nodes, below minimum %d (need %d more nodes)", len(nodes), req.MinNodes, req.MinNodes-len(nodes))
	}
	if edges < req.MinConnections {
		m.warn("Diagram has %d connections, below minimum %d (need %d more connections)", edges, req.MinConnections, req.MinConnections-edges)
	}
	if longLabels > 0 {
		m.warn("%d node labels exceed %d characters; shorten them", longLabels, req.MaxLabelLength)
	}
	if emptyNodes > 0 {
		m.warn("%d empty nodes found; every node needs a label", emptyNodes)
	}
	return *m
}
