package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Validate checks structural requirements that make the settings unusable,
// including non-positive timeouts and min/max bounds that contradict each
// other. Advisory timeout warnings are left to the caller.
func Validate(s *Settings) error {
	c := s.Course
	if strings.TrimSpace(c.Name) == "" {
		return &ConfigurationError{File: CourseFile, Msg: "'course.name' is required"}
	}
	if c.Defaults.NumModules <= 0 {
		return &ConfigurationError{File: CourseFile, Msg: fmt.Sprintf("'course.defaults.num_modules' must be > 0 (got %d)", c.Defaults.NumModules)}
	}
	if c.Defaults.TotalSessions <= 0 {
		return &ConfigurationError{File: CourseFile, Msg: fmt.Sprintf("'course.defaults.total_sessions' must be > 0 (got %d)", c.Defaults.TotalSessions)}
	}
	if spm := c.Defaults.SessionsPerModule; spm != nil && *spm <= 0 {
		return &ConfigurationError{File: CourseFile, Msg: fmt.Sprintf("'course.defaults.sessions_per_module' must be > 0 when set (got %d)", *spm)}
	}
	if c.DurationWeeks != nil && *c.DurationWeeks <= 0 {
		return &ConfigurationError{File: CourseFile, Msg: fmt.Sprintf("'course.duration_weeks' must be > 0 when set (got %d)", *c.DurationWeeks)}
	}

	if strings.TrimSpace(s.LLM.Model) == "" {
		return &ConfigurationError{File: LLMFile, Msg: "'llm.model' is required"}
	}
	if strings.TrimSpace(s.LLM.APIURL) == "" {
		return &ConfigurationError{File: LLMFile, Msg: "'llm.api_url' is required"}
	}
	u, err := url.Parse(s.LLM.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigurationError{File: LLMFile, Msg: fmt.Sprintf("'llm.api_url' %q is not an absolute URL", s.LLM.APIURL)}
	}
	for name, p := range s.Prompts {
		if strings.TrimSpace(p.Template) == "" {
			return &ConfigurationError{File: LLMFile, Msg: fmt.Sprintf("prompt %q: 'template' is required", name)}
		}
	}

	switch strings.ToLower(s.Content.OnLectureFailure) {
	case "", LectureFailureContinue, LectureFailureAbort:
	default:
		return &ConfigurationError{File: OutputFile, Msg: fmt.Sprintf("'content_generation.on_lecture_failure' must be continue or abort (got %q)", s.Content.OnLectureFailure)}
	}

	if _, err := s.ValidateTimeoutConfig(); err != nil {
		return err
	}
	return s.ValidateContentRequirements()
}

// ValidateContentRequirements runs the cross-field min/max consistency check
// over content and outline bounds.
func (s *Settings) ValidateContentRequirements() error {
	problems := append(s.Content.Requirements.Check(), s.OutlineBounds().Check()...)
	if len(problems) > 0 {
		return &ConfigurationError{File: OutputFile, Msg: "inconsistent content requirements: " + strings.Join(problems, "; ")}
	}
	return nil
}

// ValidateTimeoutConfig rejects non-positive timeouts and returns advisory
// warnings: base above 600s, operations above twice the base, and a
// model-size-based suggestion when the model id carries a size suffix.
func (s *Settings) ValidateTimeoutConfig() ([]string, error) {
	if s.LLM.Timeout <= 0 {
		return nil, &ConfigurationError{File: LLMFile, Msg: fmt.Sprintf("'llm.timeout' must be > 0 (got %v)", s.LLM.Timeout)}
	}
	ops := make([]string, 0, len(s.LLM.OperationTimeouts))
	for op := range s.LLM.OperationTimeouts {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		if v := s.LLM.OperationTimeouts[op]; v <= 0 {
			return nil, &ConfigurationError{File: LLMFile, Msg: fmt.Sprintf("'llm.operation_timeouts.%s' must be > 0 (got %v)", op, v)}
		}
	}

	var warnings []string
	base := s.BaseTimeout()
	if base > 600*time.Second {
		warnings = append(warnings, fmt.Sprintf("base timeout %s exceeds 600s; consider per-operation overrides instead", base))
	}
	for _, op := range ops {
		d := seconds(s.LLM.OperationTimeouts[op])
		if d > 2*base {
			warnings = append(warnings, fmt.Sprintf("operation %q timeout %s is more than twice the base timeout %s", op, d, base))
		}
	}
	if size, ok := modelSizeB(s.LLM.Model); ok {
		if suggested := suggestedTimeout(size); base < suggested {
			warnings = append(warnings, fmt.Sprintf("model %s (~%gB parameters) usually needs a base timeout of at least %s (configured %s)", s.LLM.Model, size, suggested, base))
		}
	}
	return warnings, nil
}
