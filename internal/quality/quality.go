// Package quality scores a course outline for topic overlap, concept
// progression and module balance.
package quality

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/jorge-barreto/coursegen/internal/course"
)

// Issue kinds.
const (
	KindAdvancedEarly   = "advanced_early"
	KindConceptGap      = "concept_gap"
	KindSessionSpan     = "session_span"
	KindConceptSpread   = "concept_spread"
	KindObjectiveSpread = "objective_spread"
	KindSessionTotal    = "session_total_mismatch"
)

// Labels, best first.
const (
	LabelExcellent        = "excellent"
	LabelGood             = "good"
	LabelAcceptable       = "acceptable"
	LabelNeedsImprovement = "needs-improvement"
)

const (
	overlapThreshold = 0.5
	minKeywordLen    = 3
	maxConceptGap    = 3
	maxSessionSpan   = 2
	maxConceptSpread = 3.0
	maxObjSpread     = 2.0
)

// DownstreamMinScore is the lowest outline score content generation accepts.
const DownstreamMinScore = 60

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true, "into": true,
	"that": true, "this": true, "these": true, "those": true, "are": true, "was": true,
	"were": true, "its": true, "their": true, "our": true, "your": true, "how": true,
	"what": true, "why": true, "when": true, "which": true, "who": true, "about": true,
	"between": true, "through": true, "using": true, "use": true, "via": true, "not": true,
	"but": true, "can": true, "will": true, "has": true, "have": true, "all": true,
}

var advancedKeywords = []string{
	"advanced", "complex", "sophisticated", "expert", "mastery", "specialized", "in-depth", "cutting-edge",
}

// Topic is one subtopic or session title with its position.
type Topic struct {
	Text          string `json:"text"`
	ModuleID      int    `json:"module_id"`
	SessionNumber int    `json:"session_number"`
}

type Overlap struct {
	A          Topic   `json:"a"`
	B          Topic   `json:"b"`
	Similarity float64 `json:"similarity"`
}

type Issue struct {
	Kind          string `json:"kind"`
	Message       string `json:"message"`
	ModuleID      int    `json:"module_id,omitempty"`
	SessionNumber int    `json:"session_number,omitempty"`
}

type ModuleBalance struct {
	ModuleID             int     `json:"module_id"`
	Sessions             int     `json:"sessions"`
	Concepts             int     `json:"concepts"`
	Objectives           int     `json:"objectives"`
	ConceptsPerSession   float64 `json:"concepts_per_session"`
	ObjectivesPerSession float64 `json:"objectives_per_session"`
}

type Report struct {
	Overlaps            []Overlap       `json:"overlaps"`
	Progression         []Issue         `json:"progression"`
	Balance             []Issue         `json:"balance"`
	Modules             []ModuleBalance `json:"modules"`
	ModuleCountMismatch bool            `json:"module_count_mismatch"`
	Score               int             `json:"score"`
	Label               string          `json:"label"`
}

// Keywords lowercases s, splits on non-alphanumerics and drops stopwords
// and words shorter than three characters.
func Keywords(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(w)) >= minKeywordLen && !stopwords[w] {
			out[w] = true
		}
	}
	return out
}

// Jaccard is |a∩b| / |a∪b|; zero when both are empty.
func Jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	return float64(inter) / float64(len(a)+len(b)-inter)
}

func topics(o *course.Outline) []Topic {
	var out []Topic
	for _, ref := range o.Sessions() {
		t := Topic{ModuleID: ref.Module.ModuleID, SessionNumber: ref.Session.SessionNumber}
		t.Text = ref.Session.SessionTitle
		out = append(out, t)
		for _, st := range ref.Session.Subtopics {
			t.Text = st
			out = append(out, t)
		}
	}
	return out
}

// CheckOverlap reports topic pairs from different sessions whose keyword
// sets have a Jaccard similarity of at least 0.5.
func CheckOverlap(o *course.Outline) []Overlap {
	ts := topics(o)
	kws := make([]map[string]bool, len(ts))
	for i, t := range ts {
		kws[i] = Keywords(t.Text)
	}
	var out []Overlap
	for i := 0; i < len(ts); i++ {
		for j := i + 1; j < len(ts); j++ {
			if ts[i].ModuleID == ts[j].ModuleID && ts[i].SessionNumber == ts[j].SessionNumber {
				continue
			}
			if sim := Jaccard(kws[i], kws[j]); sim >= overlapThreshold {
				out = append(out, Overlap{A: ts[i], B: ts[j], Similarity: sim})
			}
		}
	}
	return out
}

// CheckProgression flags advanced concepts in the first session and
// concepts that reappear after a gap of more than three sessions.
func CheckProgression(o *course.Outline) []Issue {
	var issues []Issue
	seen := map[string][]int{}
	var order []string
	for _, ref := range o.Sessions() {
		s := ref.Session
		for _, kc := range s.KeyConcepts {
			norm := strings.ToLower(strings.Join(strings.Fields(kc), " "))
			if norm == "" {
				continue
			}
			if s.SessionNumber == 1 && isAdvanced(norm) {
				issues = append(issues, Issue{
					Kind:          KindAdvancedEarly,
					Message:       fmt.Sprintf("advanced concept %q introduced in session 1", kc),
					ModuleID:      ref.Module.ModuleID,
					SessionNumber: 1,
				})
			}
			if _, ok := seen[norm]; !ok {
				order = append(order, norm)
			}
			seen[norm] = append(seen[norm], s.SessionNumber)
		}
	}
	for _, c := range order {
		nums := seen[c]
		sort.Ints(nums)
		for i := 1; i < len(nums); i++ {
			if gap := nums[i] - nums[i-1]; gap > maxConceptGap {
				issues = append(issues, Issue{
					Kind:          KindConceptGap,
					Message:       fmt.Sprintf("concept %q reappears in session %d after a gap of %d sessions", c, nums[i], gap),
					SessionNumber: nums[i],
				})
				break
			}
		}
	}
	return issues
}

func isAdvanced(concept string) bool {
	for _, k := range advancedKeywords {
		if strings.Contains(concept, k) {
			return true
		}
	}
	return false
}

// CheckBalance computes per-module load and reports uneven modules and a
// total session count that differs from expectedSessions (when > 0).
func CheckBalance(o *course.Outline, expectedSessions int) ([]Issue, []ModuleBalance) {
	var mods []ModuleBalance
	for _, m := range o.Modules {
		mb := ModuleBalance{ModuleID: m.ModuleID, Sessions: len(m.Sessions)}
		for _, s := range m.Sessions {
			mb.Concepts += len(s.KeyConcepts)
			mb.Objectives += len(s.LearningObjectives)
		}
		if mb.Sessions > 0 {
			mb.ConceptsPerSession = float64(mb.Concepts) / float64(mb.Sessions)
			mb.ObjectivesPerSession = float64(mb.Objectives) / float64(mb.Sessions)
		}
		mods = append(mods, mb)
	}

	var issues []Issue
	if len(mods) > 1 {
		minS, maxS := mods[0].Sessions, mods[0].Sessions
		minC, maxC := mods[0].ConceptsPerSession, mods[0].ConceptsPerSession
		minO, maxO := mods[0].ObjectivesPerSession, mods[0].ObjectivesPerSession
		for _, mb := range mods[1:] {
			minS, maxS = min(minS, mb.Sessions), max(maxS, mb.Sessions)
			minC, maxC = math.Min(minC, mb.ConceptsPerSession), math.Max(maxC, mb.ConceptsPerSession)
			minO, maxO = math.Min(minO, mb.ObjectivesPerSession), math.Max(maxO, mb.ObjectivesPerSession)
		}
		if maxS-minS > maxSessionSpan {
			issues = append(issues, Issue{Kind: KindSessionSpan, Message: fmt.Sprintf("module sizes range from %d to %d sessions", minS, maxS)})
		}
		if maxC-minC > maxConceptSpread {
			issues = append(issues, Issue{Kind: KindConceptSpread, Message: fmt.Sprintf("key concepts per session range from %.1f to %.1f", minC, maxC)})
		}
		if maxO-minO > maxObjSpread {
			issues = append(issues, Issue{Kind: KindObjectiveSpread, Message: fmt.Sprintf("learning objectives per session range from %.1f to %.1f", minO, maxO)})
		}
	}
	if total := o.TotalSessions(); expectedSessions > 0 && total != expectedSessions {
		issues = append(issues, Issue{Kind: KindSessionTotal, Message: fmt.Sprintf("outline has %d sessions, expected %d", total, expectedSessions)})
	}
	return issues, mods
}

// Evaluate runs every check and computes the composite score.
func Evaluate(o *course.Outline, expectedModules, expectedSessions int) Report {
	r := Report{
		Overlaps:    CheckOverlap(o),
		Progression: CheckProgression(o),
	}
	r.Balance, r.Modules = CheckBalance(o, expectedSessions)
	r.ModuleCountMismatch = expectedModules > 0 && len(o.Modules) != expectedModules
	r.Score = Score(len(r.Overlaps), len(r.Progression), len(r.Balance), r.ModuleCountMismatch)
	r.Label = Label(r.Score)
	return r
}

// Score starts at 100 and subtracts capped penalties per issue type.
func Score(overlaps, progression, balance int, moduleMismatch bool) int {
	s := 100 - min(20, 2*overlaps) - min(15, 3*progression) - min(15, 3*balance)
	if moduleMismatch {
		s -= 10
	}
	return max(0, min(100, s))
}

func Label(score int) string {
	switch {
	case score >= 90:
		return LabelExcellent
	case score >= 75:
		return LabelGood
	case score >= 60:
		return LabelAcceptable
	default:
		return LabelNeedsImprovement
	}
}

// ValidForDownstream holds when the score is at least 60 and no advanced
// concept is introduced in the first session.
func (r Report) ValidForDownstream() bool {
	if r.Score < DownstreamMinScore {
		return false
	}
	for _, is := range r.Progression {
		if is.Kind == KindAdvancedEarly {
			return false
		}
	}
	return true
}

// Apply stores the score, label and issue counts on the outline metadata.
func (r Report) Apply(md *course.Metadata) {
	score := r.Score
	md.QualityScore = &score
	md.QualityLevel = r.Label
	md.QualityValidation = &course.QualityValidation{
		OverlapCount:          len(r.Overlaps),
		ProgressionIssueCount: len(r.Progression),
		BalanceIssueCount:     len(r.Balance),
	}
}
