package scaffold

import "github.com/jorge-barreto/coursegen/internal/config"

const systemEducator = `You are an experienced curriculum designer and educator writing in {language}. Produce only the requested content, with no preamble, no closing remarks and no offers of further help.`

const outlinePrompt = `Design a complete course outline.

Course: {course_name}
Description: {course_description}
Level: {course_level}
Subject: {subject}
Duration: {duration_weeks} weeks
Modules: exactly {num_modules}
Total sessions: exactly {total_sessions} (about {sessions_per_module} per module)
Template: {course_template}
Additional constraints: {additional_constraints}

Every session needs {min_subtopics}-{max_subtopics} subtopics, {min_objectives}-{max_objectives} learning objectives and {min_concepts}-{max_concepts} key concepts. Number sessions globally from 1 to {total_sessions}. Introduce foundations before advanced material and avoid repeating topics across sessions.

Answer with a single JSON document in a json code block, shaped like:

` + "```json" + `
{{
  "course_metadata": {{"name": "...", "level": "...", "duration_weeks": 12, "total_sessions": 24, "total_modules": 4}},
  "modules": [
    {{
      "module_id": 1,
      "module_name": "...",
      "module_description": "...",
      "sessions": [
        {{
          "session_number": 1,
          "session_title": "...",
          "subtopics": ["..."],
          "learning_objectives": ["..."],
          "key_concepts": ["..."],
          "rationale": "..."
        }}
      ]
    }}
  ]
}}
` + "```" + `

Write all titles and descriptions in {language}.`

const sessionHeader = `Course: {course_name} ({course_level}, {subject})
{outline_context}

Session {session_number}: {session_title}
Subtopics:
{subtopics}
Learning objectives:
{learning_objectives}
Key concepts:
{key_concepts}
`

const lecturePrompt = sessionHeader + `
Write the lecture for this session in Markdown.

Requirements:
- {min_words} to {max_words} words.
- {min_sections} to {max_sections} sections, each starting with a "## " heading.
- At least {min_examples} concrete examples introduced with "for example" or "for instance".
- Define important terms in bold followed by a colon, like **Term**: definition.
- Cover every subtopic and learning objective.`

const labPrompt = sessionHeader + `
Lecture for context:
{lecture_content}

Write a hands-on lab activity in Markdown that practises the lecture material.

Requirements:
- {min_words} to {max_words} words.
- A "## Materials" bulleted list.
- A "## Safety" section with the relevant precautions.
- {min_steps} to {max_steps} numbered procedure steps ("1. ...").
- A Markdown table for recording observations or results.`

const studyNotesPrompt = sessionHeader + `
Lecture for context:
{lecture_content}

Write concise study notes in Markdown, at most {max_words} words.
List {min_concepts} to {max_concepts} key concepts, one per line, as "- **Concept**: explanation". Finish with a short summary.`

const questionsPrompt = sessionHeader + `
Lecture for context:
{lecture_content}

Lab for context:
{lab_content}

Write {min_questions} to {max_questions} multiple-choice review questions in Markdown. Use exactly this layout for each one:

### Question 1
Question text?
A) option
B) option
C) option
D) option
**Answer:** B
**Explanation:** {min_explanation_words} to {max_explanation_words} words explaining why.`

const diagramPrompt = `Course: {course_name} ({course_level})
Session {session_number}: {session_title}
Diagram {diagram_number} subtopic: {subtopic}

Draw a Mermaid flowchart that explains this subtopic.
- Start with "flowchart TD".
- At least {min_nodes} nodes and {min_connections} connections.
- Node labels of at most {max_label_length} characters, written in {language}.
- No style, classDef or linkStyle lines.
Answer with the diagram in a mermaid code block and nothing else.`

const visualizationPrompt = sessionHeader + `
Lecture for context:
{lecture_content}

Draw one Mermaid flowchart that maps the whole session: how its key concepts relate and build on each other.
- Start with "flowchart TD".
- At least {min_nodes} nodes and {min_connections} connections.
- Node labels of at most {max_label_length} characters.
- No style, classDef or linkStyle lines.
Answer with the diagram in a mermaid code block and nothing else.`

func sectionPrompt(task, heading string) string {
	return sessionHeader + `
Lecture for context:
{lecture_content}

` + task + `

Write {min_sections} to {max_sections} sections in Markdown, each starting with "## ` + heading + ` N: Title" where N counts from 1. Each section has {min_words_per_section} to {max_words_per_section} words; the whole document stays under {max_total_words} words.`
}

// DefaultPrompts returns the prompt set written by Init, keyed by the names
// the generators look up.
func DefaultPrompts() map[string]config.Prompt {
	p := func(t string) config.Prompt { return config.Prompt{System: systemEducator, Template: t} }
	return map[string]config.Prompt{
		"outline":       p(outlinePrompt),
		"lecture":       p(lecturePrompt),
		"lab":           p(labPrompt),
		"study_notes":   p(studyNotesPrompt),
		"questions":     p(questionsPrompt),
		"diagram":       p(diagramPrompt),
		"visualization": p(visualizationPrompt),
		"application": p(sectionPrompt(
			"Describe real-world applications of the session material: where it is used and why it matters.", "Application")),
		"extension": p(sectionPrompt(
			"Suggest extension topics for students who want to go beyond the session.", "Topic")),
		"integration": p(sectionPrompt(
			"Connect this session to other sessions of the course and to neighbouring disciplines.", "Connection")),
		"investigation": p(sectionPrompt(
			"Propose research questions students could investigate, with a suggested approach for each.", "Research Question")),
		"open_questions": p(sectionPrompt(
			"Present open questions the field has not settled, with the competing views on each.", "Question")),
	}
}
