package ux

import (
	"fmt"
	"io"
	"sort"

	"github.com/jorge-barreto/coursegen/internal/history"
	"github.com/jorge-barreto/coursegen/internal/state"
)

// RenderRuns prints the most recent pipeline runs from the history store.
func RenderRuns(w io.Writer, runs []history.Run) {
	fmt.Fprintf(w, "%sRecent runs:%s\n", Bold, Reset)
	if len(runs) == 0 {
		fmt.Fprintf(w, "  %s(none)%s\n", Dim, Reset)
		return
	}
	for _, r := range runs {
		color := Green
		switch r.Status {
		case state.StatusFailed, state.StatusInterrupted:
			color = Red
		case state.StatusPartial, state.StatusRunning:
			color = Yellow
		}
		id := r.ID
		if len(id) > 8 {
			id = id[:8]
		}
		fmt.Fprintf(w, "  %s%s%s  %s  %-8s %s%-11s%s", Dim, id, Reset,
			r.StartedAt.Local().Format("2006-01-02 15:04"), r.Stage, color, r.Status, Reset)
		if r.Stage == "content" {
			fmt.Fprintf(w, " ok=%d failed=%d skipped=%d avg=%.1f",
				r.SessionsOK, r.SessionsFailed, r.SessionsSkipped, r.AvgScore)
		}
		fmt.Fprintf(w, "  %s\n", r.Course)
	}
}

// RenderStatus prints the per-session state of the last stage 2 run in a
// course directory, with step durations from timing.json.
func RenderStatus(w io.Writer, st *state.PipelineState, timing *state.Timing) {
	fmt.Fprintf(w, "%sCourse:%s  %s\n", Bold, Reset, st.Course)
	if st.OutlinePath != "" {
		fmt.Fprintf(w, "%sOutline:%s %s\n", Bold, Reset, st.OutlinePath)
	}
	fmt.Fprintf(w, "%sState:%s   %s\n", Bold, Reset, st.Status)

	numbers := make([]int, 0, len(st.Sessions))
	for n := range st.Sessions {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	if len(numbers) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%sSessions:%s\n", Bold, Reset)
	for _, n := range numbers {
		ss := st.Sessions[n]
		marker := Green
		switch ss.Status {
		case state.StatusFailed:
			marker = Red
		case state.StatusPartial, state.StatusRunning, state.StatusPending:
			marker = Yellow
		case state.StatusSkipped:
			marker = Dim
		}
		dur := findDuration(timing, fmt.Sprintf("session_%02d", n))
		fmt.Fprintf(w, "  %s%02d%s  %-36s %s%s%s  %s\n",
			Dim, n, Reset, truncate(ss.Title, 36), marker, ss.Status, Reset, dur)
		for _, e := range ss.Errors {
			fmt.Fprintf(w, "      %s%s%s\n", Red, e, Reset)
		}
	}
	fmt.Fprintln(w)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func findDuration(timing *state.Timing, step string) string {
	if timing == nil {
		return ""
	}
	if e, ok := timing.Latest(step); ok {
		return fmt.Sprintf("(%s)", e.Duration)
	}
	return ""
}
