package pipeline

import (
	"context"
	"fmt"

	"github.com/jorge-barreto/coursegen/internal/health"
	"github.com/jorge-barreto/coursegen/internal/llm"
)

// sessionDiagnostics gathers troubleshooting suggestions for the failed
// artifacts of one session. Service diagnostics are fetched at most once.
type sessionDiagnostics struct {
	p           *Pipeline
	ctx         context.Context
	diag        *health.Diagnostics
	categories  map[string]bool
	suggestions []string
}

// fail records err against the session and adds suggestions for its
// category the first time that category is seen. A nil err is ignored.
func (d *sessionDiagnostics) fail(res *SessionResult, label string, err error) {
	if err == nil {
		return
	}
	res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", label, err))
	if d.ctx.Err() != nil {
		return
	}
	category := llm.ErrorCategory(err)
	if d.categories == nil {
		d.categories = map[string]bool{}
	}
	if d.categories[category] {
		return
	}
	d.categories[category] = true
	if d.p.Health == nil {
		d.suggestions = append(d.suggestions, genericSuggestion(category))
		return
	}
	if d.diag == nil {
		diag := d.p.Health.Diagnostics(d.ctx, d.p.Settings.LLM.Model)
		d.diag = &diag
	}
	for _, s := range health.TroubleshootingSuggestions(*d.diag, category) {
		if !contains(d.suggestions, s) {
			d.suggestions = append(d.suggestions, s)
		}
	}
}

func genericSuggestion(category string) string {
	switch category {
	case "timeout":
		return "Raise llm.operation_timeouts for the failing operation or use a smaller model"
	case "connection":
		return "Check that the LLM service is running and llm.api_url is reachable"
	case "validation":
		return "Review the prompt templates in llm.yaml and the content_generation bounds in output.yaml"
	}
	return "Run 'coursegen doctor' for service and model diagnostics"
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
