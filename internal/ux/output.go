package ux

import (
	"fmt"
	"strings"
	"time"

	"github.com/jorge-barreto/coursegen/internal/state"
)

// ANSI color helpers
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Dim    = "\033[2m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
)

func timestamp() string {
	return time.Now().Format("15:04:05")
}

// StageHeader prints a timestamped banner for stage 1 or stage 2.
func StageHeader(stage int, title string) {
	fmt.Printf("\n%s[%s]%s %s══════════════════════════════════════%s\n",
		Dim, timestamp(), Reset, Cyan, Reset)
	fmt.Printf("%s[%s]%s  %sStage %d: %s%s\n",
		Dim, timestamp(), Reset, Bold, stage, title, Reset)
	fmt.Printf("%s[%s]%s %s══════════════════════════════════════%s\n",
		Dim, timestamp(), Reset, Cyan, Reset)
}

// SessionHeader prints the header for one session, index counted from 0.
func SessionHeader(index, total, moduleID, sessionNumber int, title string) {
	fmt.Printf("\n%s[%s]%s  %sSession %d/%d%s (module %d, session %02d): %s\n",
		Dim, timestamp(), Reset, Bold, index+1, total, Reset, moduleID, sessionNumber, title)
}

// ArtifactComplete prints an artifact completion line with its quality score.
func ArtifactComplete(kind string, score, attempts int, duration time.Duration) {
	color := Green
	if score < 60 {
		color = Yellow
	}
	retries := ""
	if attempts > 1 {
		retries = fmt.Sprintf(", %d attempts", attempts)
	}
	fmt.Printf("%s[%s]%s    %s✓ %s%s score %d/100 (%s%s)\n",
		Dim, timestamp(), Reset, color, kind, Reset, score, state.FormatDuration(duration), retries)
}

// ArtifactFail prints an artifact failure message.
func ArtifactFail(kind, errMsg string) {
	fmt.Printf("%s[%s]%s    %s✗ %s failed: %s%s\n",
		Dim, timestamp(), Reset, Red, kind, errMsg, Reset)
}

// ArtifactSkip prints an artifact kept from a previous run.
func ArtifactSkip(kind, reason string) {
	fmt.Printf("%s[%s]%s    %s– %s skipped (%s)%s\n",
		Dim, timestamp(), Reset, Dim, kind, reason, Reset)
}

// SessionSkip prints a session skipped as a whole.
func SessionSkip(sessionNumber int, reason string) {
	fmt.Printf("%s[%s]%s  %s– Session %02d skipped (%s)%s\n",
		Dim, timestamp(), Reset, Dim, sessionNumber, reason, Reset)
}

// Warn prints a yellow warning line.
func Warn(msg string) {
	fmt.Printf("  %s⚠ %s%s\n", Yellow, msg, Reset)
}

// Suggestions prints numbered troubleshooting steps.
func Suggestions(items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Printf("  %sTroubleshooting:%s\n", Bold, Reset)
	for i, s := range items {
		fmt.Printf("    %d. %s\n", i+1, s)
	}
}

// ResumeHint prints a resume command hint.
func ResumeHint(outlinePath string) {
	cmd := "coursegen generate --skip-existing"
	if outlinePath != "" {
		cmd += " --outline " + quoteArg(outlinePath)
	}
	fmt.Printf("\n%sResume:%s %s\n", Yellow, Reset, cmd)
}

// Summary prints the closing stage 2 tally.
func Summary(ok, failed, skipped int, avgScore float64, elapsed time.Duration) {
	color := Green
	if failed > 0 {
		color = Yellow
	}
	fmt.Printf("\n%s[%s]%s  %s%s══ %d sessions complete, %d failed, %d skipped; average score %.1f (%s) ══%s\n\n",
		Dim, timestamp(), Reset, Bold, color, ok, failed, skipped, avgScore, state.FormatDuration(elapsed), Reset)
}

// Success prints a final success message.
func Success(msg string) {
	fmt.Printf("\n%s[%s]%s  %s%s══ %s ══%s\n\n",
		Dim, timestamp(), Reset, Bold, Green, msg, Reset)
}

func quoteArg(s string) string {
	if strings.ContainsAny(s, " \t'\"") {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return s
}
