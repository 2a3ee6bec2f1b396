package analyze

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/jorge-barreto/coursegen/internal/config"
)

// Question headings in the six formats models produce.
var questionFormats = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^#{2,4}\s*(?:\*\*)?Question\s+(\d+)\b[:.)]?(?:\*\*)?\s*(.*)$`),
	regexp.MustCompile(`(?i)^\*\*Question\s+(\d+)\s*[:.)]?\s*\*\*\s*[:.]?\s*(.*)$`),
	regexp.MustCompile(`(?i)^Question\s+(\d+)\s*[:.)]\s*(.*)$`),
	regexp.MustCompile(`^\*\*(\d+)[.)]\*\*\s*(.*)$`),
	regexp.MustCompile(`(?i)^Q(\d+)\s*[:.)]\s*(.*)$`),
	regexp.MustCompile(`^(\d+)[.)]\s+(.*\?)\s*$`),
}

var (
	optionRe      = regexp.MustCompile(`^\s*(?:[-*]\s*)?(?:\*\*)?\(?([A-E])[.):](?:\*\*)?\s+\S`)
	answerRe      = regexp.MustCompile(`(?i)^\s*(?:[-*]\s*)?(?:\*\*)?(?:correct\s+)?answer\b`)
	explanationRe = regexp.MustCompile(`(?i)^\s*(?:[-*]\s*)?(?:\*\*)?explanation\b(?:\*\*)?\s*[:：]?(?:\*\*)?\s*(.*)$`)
)

type question struct {
	number      int
	line        int
	body        []string
	options     map[string]bool
	optionLines int
	hasAnswer   bool
	explanation []string
	hasExpl     bool
}

func matchQuestion(line string) (int, string, bool) {
	trimmed := strings.TrimSpace(line)
	for _, re := range questionFormats {
		if m := re.FindStringSubmatch(trimmed); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			return n, m[2], true
		}
	}
	return 0, "", false
}

// parseQuestions splits text into question blocks, keeping the first block
// for each question number.
func parseQuestions(text string) ([]*question, int) {
	var all []*question
	var cur *question
	inExpl := false
	inBody := false
	for i, line := range lines(text) {
		if n, rest, ok := matchQuestion(line); ok {
			cur = &question{number: n, line: i, options: map[string]bool{}}
			if strings.TrimSpace(rest) != "" {
				cur.body = append(cur.body, rest)
			}
			all = append(all, cur)
			inExpl, inBody = false, true
			continue
		}
		if cur == nil {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			inExpl, inBody = false, false
			continue
		}
		switch {
		case optionRe.MatchString(line):
			letter := strings.ToUpper(optionRe.FindStringSubmatch(line)[1])
			cur.options[letter] = true
			cur.optionLines++
			inExpl, inBody = false, false
		case explanationRe.MatchString(line):
			cur.hasExpl = true
			if rest := explanationRe.FindStringSubmatch(line)[1]; strings.TrimSpace(rest) != "" {
				cur.explanation = append(cur.explanation, rest)
			}
			inExpl, inBody = true, false
		case answerRe.MatchString(line):
			cur.hasAnswer = true
			inExpl, inBody = false, false
		case inExpl && trimmed != "":
			cur.explanation = append(cur.explanation, trimmed)
		case inBody && trimmed != "":
			cur.body = append(cur.body, trimmed)
		}
	}

	seen := map[int]bool{}
	var out []*question
	dups := 0
	for _, q := range all {
		if seen[q.number] {
			dups++
			continue
		}
		seen[q.number] = true
		out = append(out, q)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].line < out[j].line })
	return out, dups
}

// Questions detects questions, deduplicates them by number and validates
// answers, explanations, options and lengths. Every violation is tallied.
func Questions(text string, req config.QuestionRequirements) Metrics {
	m := newMetrics(TypeQuestions)
	m.Requirements = map[string]int{
		"min_questions": req.MinQuestions, "max_questions": req.MaxQuestions,
		"min_explanation_words": req.MinExplanationWords, "max_explanation_words": req.MaxExplanationWords,
		"min_question_words": req.MinQuestionWords, "max_question_words": req.MaxQuestionWords,
	}
	qs, dups := parseQuestions(text)
	m.Counts["questions"] = len(qs)
	m.Counts["duplicate_numbers"] = dups
	m.Counts["question_marks"] = strings.Count(text, "?")
	m.Counts["word_count"] = WordCount(text)

	var mc, answered, explained, missingAnswer, missingExpl, badOptions, badExpl, badBody int
	for _, q := range qs {
		isMC := q.optionLines > 0
		if isMC {
			mc++
		}
		if q.hasAnswer {
			answered++
		} else {
			missingAnswer++
			m.warn("Question %d is missing an answer section", q.number)
		}
		if q.hasExpl {
			explained++
		} else if isMC {
			missingExpl++
			m.warn("Question %d is missing an explanation section", q.number)
		}
		if isMC && !validOptions(q) {
			badOptions++
			m.warn("Question %d has %d options; format must be exactly four options labelled A-D", q.number, q.optionLines)
		}
		if q.hasExpl {
			w := WordCount(strings.Join(q.explanation, " "))
			if w < req.MinExplanationWords || (req.MaxExplanationWords > 0 && w > req.MaxExplanationWords) {
				badExpl++
				m.warn("Question %d explanation has %d words (need %d-%d words)", q.number, w, req.MinExplanationWords, req.MaxExplanationWords)
			}
		}
		w := WordCount(strings.Join(q.body, " "))
		if w < req.MinQuestionWords || (req.MaxQuestionWords > 0 && w > req.MaxQuestionWords) {
			badBody++
			m.warn("Question %d text has %d words (need %d-%d words)", q.number, w, req.MinQuestionWords, req.MaxQuestionWords)
		}
	}
	m.Counts["multiple_choice"] = mc
	m.Counts["with_answers"] = answered
	m.Counts["with_explanations"] = explained
	m.Counts["missing_answers"] = missingAnswer
	m.Counts["missing_explanations"] = missingExpl
	m.Counts["invalid_options"] = badOptions
	m.Counts["invalid_explanation_length"] = badExpl
	m.Counts["invalid_question_length"] = badBody

	m.checkRange("Question count", "questions", len(qs), req.MinQuestions, req.MaxQuestions)
	if dups > 0 {
		m.warn("%d duplicate question numbers found; number questions sequentially", dups)
	}
	if n := len(qs); n > 0 {
		qm := m.Counts["question_marks"]
		if qm < n {
			m.warn("Only %d question marks for %d questions; phrase every question as a question", qm, n)
		} else if qm > 2*n {
			m.warn("%d question marks for %d questions; keep one question per item", qm, n)
		}
	}
	return *m
}

func validOptions(q *question) bool {
	if q.optionLines != 4 || len(q.options) != 4 {
		return false
	}
	for _, l := range []string{"A", "B", "C", "D"} {
		if !q.options[l] {
			return false
		}
	}
	return true
}
