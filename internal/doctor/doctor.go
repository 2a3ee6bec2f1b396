// Package doctor prints service, model and configuration diagnostics along
// with the failures of the last content run and what to do about them.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jorge-barreto/coursegen/internal/config"
	"github.com/jorge-barreto/coursegen/internal/health"
	"github.com/jorge-barreto/coursegen/internal/llm"
	"github.com/jorge-barreto/coursegen/internal/state"
	"github.com/jorge-barreto/coursegen/internal/ux"
)

// ErrUnhealthy is returned when the service or the configured model is not usable.
var ErrUnhealthy = errors.New("LLM service is not ready")

// Diagnoser is satisfied by *health.Monitor.
type Diagnoser interface {
	Diagnostics(ctx context.Context, model string) health.Diagnostics
}

var operations = []llm.Operation{
	llm.OpOutline, llm.OpLecture, llm.OpLab, llm.OpStudyNotes, llm.OpQuestions, llm.OpDiagram,
	llm.OpApplication, llm.OpExtension, llm.OpVisualization, llm.OpIntegration, llm.OpInvestigation, llm.OpOpenQuestions,
}

const maxErrorsPerSession = 3

// Run gathers diagnostics and writes the report to w.
func Run(ctx context.Context, w io.Writer, s *config.Settings, d Diagnoser) error {
	diag := d.Diagnostics(ctx, s.LLM.Model)
	courseDir := s.OutputPaths("").Course

	fmt.Fprintf(w, "\n%s%s══ Doctor: %s ══%s\n", ux.Bold, ux.Cyan, s.Course.Name, ux.Reset)
	renderService(w, diag)
	renderTimeouts(w, s)
	failures := gatherFailures(courseDir)
	renderFailures(w, failures)
	renderStalled(w, gatherStalled(courseDir))

	categories := []string{}
	if !diag.Service.Available {
		categories = append(categories, "connection")
	}
	categories = append(categories, failureCategories(failures)...)
	if len(categories) == 0 && diag.Service.Available && !diag.Model.Available {
		categories = append(categories, "other")
	}
	renderSuggestions(w, diag, categories)
	fmt.Fprintln(w)

	if !diag.Service.Available || !diag.Model.Available {
		return ErrUnhealthy
	}
	return nil
}

func renderService(w io.Writer, d health.Diagnostics) {
	fmt.Fprintf(w, "\n%sService:%s %s\n", ux.Bold, ux.Reset, d.BaseURL)
	if !d.Service.Available {
		fmt.Fprintf(w, "  %s✗ unavailable%s: %s\n", ux.Red, ux.Reset, d.Service.Error)
		return
	}
	version := d.Service.Version
	if version == "" {
		version = "unknown version"
	}
	fmt.Fprintf(w, "  %s✓ available%s (%s, %s)\n", ux.Green, ux.Reset, version, d.Service.ResponseTime.Round(time.Millisecond))

	fmt.Fprintf(w, "\n%sModel:%s %s\n", ux.Bold, ux.Reset, d.Model.Model)
	switch {
	case !d.Model.Available:
		fmt.Fprintf(w, "  %s✗ not installed%s; run 'ollama pull %s'\n", ux.Red, ux.Reset, d.Model.Model)
	case d.Model.Loaded:
		fmt.Fprintf(w, "  %s✓ loaded%s on %s\n", ux.Green, ux.Reset, d.Model.Processor)
	default:
		fmt.Fprintf(w, "  %s– installed, not loaded%s\n", ux.Yellow, ux.Reset)
	}
	if d.Model.Error != "" {
		fmt.Fprintf(w, "  %s%s%s\n", ux.Dim, d.Model.Error, ux.Reset)
	}
	if len(d.LoadedModels) > 0 {
		names := make([]string, len(d.LoadedModels))
		for i, m := range d.LoadedModels {
			names[i] = fmt.Sprintf("%s (%s)", m.Name, m.Processor)
		}
		fmt.Fprintf(w, "  Loaded: %s\n", strings.Join(names, ", "))
	}
	if !d.GPUInUse && len(d.LoadedModels) > 0 {
		fmt.Fprintf(w, "  %s⚠ no loaded model uses the GPU%s\n", ux.Yellow, ux.Reset)
	}
}

func renderTimeouts(w io.Writer, s *config.Settings) {
	fmt.Fprintf(w, "\n%sTimeouts:%s base %s\n", ux.Bold, ux.Reset, s.BaseTimeout())
	warnings, err := s.ValidateTimeoutConfig()
	if err != nil {
		fmt.Fprintf(w, "  %s✗ %v%s\n", ux.Red, err, ux.Reset)
		return
	}
	for _, op := range operations {
		d, warn := s.OperationTimeout(string(op))
		line := fmt.Sprintf("  %-15s %s", op, d)
		if warn != "" {
			line += fmt.Sprintf("  %s⚠ %s%s", ux.Yellow, warn, ux.Reset)
		}
		fmt.Fprintln(w, line)
	}
	for _, warn := range warnings {
		fmt.Fprintf(w, "  %s⚠ %s%s\n", ux.Yellow, warn, ux.Reset)
	}
	if err := s.ValidateContentRequirements(); err != nil {
		fmt.Fprintf(w, "  %s✗ %v%s\n", ux.Red, err, ux.Reset)
	}
}

type sessionFailure struct {
	Number int
	Title  string
	Status string
	Errors []string
}

// gatherFailures reads failed and partial sessions from the last run.
func gatherFailures(courseDir string) []sessionFailure {
	st, err := state.Load(courseDir)
	if err != nil {
		return nil
	}
	var out []sessionFailure
	for _, n := range st.FailedSessions() {
		ss := st.Sessions[n]
		errs := ss.Errors
		if len(errs) > maxErrorsPerSession {
			errs = errs[:maxErrorsPerSession]
		}
		out = append(out, sessionFailure{Number: n, Title: ss.Title, Status: ss.Status, Errors: errs})
	}
	return out
}

func renderFailures(w io.Writer, failures []sessionFailure) {
	fmt.Fprintf(w, "\n%sLast run:%s ", ux.Bold, ux.Reset)
	if len(failures) == 0 {
		fmt.Fprintf(w, "%sno failed sessions%s\n", ux.Green, ux.Reset)
		return
	}
	fmt.Fprintf(w, "%s%d failed session(s)%s\n", ux.Red, len(failures), ux.Reset)
	for _, f := range failures {
		fmt.Fprintf(w, "  %02d %s (%s)\n", f.Number, f.Title, f.Status)
		for _, e := range f.Errors {
			fmt.Fprintf(w, "     %s%s%s\n", ux.Dim, e, ux.Reset)
		}
	}
}

// gatherStalled lists timing steps that started but never finished.
func gatherStalled(courseDir string) []string {
	timing, err := state.LoadTiming(courseDir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range timing.Incomplete() {
		out = append(out, fmt.Sprintf("%s started %s (did not complete)", e.Step, e.Start.Local().Format("2006-01-02 15:04:05")))
	}
	return out
}

func renderStalled(w io.Writer, stalled []string) {
	if len(stalled) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%sIncomplete steps:%s\n", ux.Bold, ux.Reset)
	for _, s := range stalled {
		fmt.Fprintf(w, "  %s\n", s)
	}
}

// failureCategories buckets recorded error messages, most frequent first.
func failureCategories(failures []sessionFailure) []string {
	counts := map[string]int{}
	for _, f := range failures {
		for _, e := range f.Errors {
			counts[llm.ErrorCategory(errors.New(e))]++
		}
	}
	cats := make([]string, 0, len(counts))
	for c := range counts {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool {
		if counts[cats[i]] != counts[cats[j]] {
			return counts[cats[i]] > counts[cats[j]]
		}
		return cats[i] < cats[j]
	})
	return cats
}

func renderSuggestions(w io.Writer, d health.Diagnostics, categories []string) {
	var all []string
	seen := map[string]bool{}
	for _, c := range categories {
		for _, s := range health.TroubleshootingSuggestions(d, c) {
			if !seen[s] {
				seen[s] = true
				all = append(all, s)
			}
		}
	}
	if len(all) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%sSuggestions:%s\n", ux.Bold, ux.Reset)
	for i, s := range all {
		fmt.Fprintf(w, "  %d. %s\n", i+1, s)
	}
}
