package health

import (
	"fmt"
	"strings"
)

// TroubleshootingSuggestions returns ordered remediation steps for an error
// category ("timeout" or "connection"); other categories get general advice.
func TroubleshootingSuggestions(d Diagnostics, errType string) []string {
	var out []string
	model := d.Model.Model
	if model == "" {
		model = "<model>"
	}
	if !d.Service.Available {
		out = append(out,
			fmt.Sprintf("Start the LLM service (ollama serve) and confirm %s/api/version responds", d.BaseURL),
		)
	}

	switch strings.ToLower(errType) {
	case "timeout":
		if d.Service.Available && !d.Model.Loaded {
			out = append(out, fmt.Sprintf("Model %s is not loaded; pre-load it with 'ollama run %s' so the first request does not pay the load time", model, model))
		}
		if strings.Contains(d.Model.Processor, "CPU") {
			out = append(out, fmt.Sprintf("Model is running on %s; free GPU memory or switch to a smaller model", d.Model.Processor))
		}
		out = append(out,
			"Increase llm.operation_timeouts for the failing operation (or llm.timeout)",
			"Use a faster or smaller model for long artifacts",
			"Resume without regenerating finished sessions: coursegen generate --skip-existing",
		)
	case "connection":
		if d.Service.Available && d.Model.Model != "" && !d.Model.Available {
			out = append(out, fmt.Sprintf("Model %s is not in the catalog; pull it with 'ollama pull %s'", model, model))
		}
		out = append(out,
			"Verify llm.api_url (or COURSEGEN_LLM_URL) points at the running service",
			fmt.Sprintf("Check that nothing blocks %s (firewall, container port mapping)", d.BaseURL),
			"Retry once the service is reachable: coursegen generate --skip-existing",
		)
	default:
		out = append(out,
			"Run 'coursegen doctor' to inspect service and model state",
			"Resume without regenerating finished sessions: coursegen generate --skip-existing",
		)
	}
	return out
}
