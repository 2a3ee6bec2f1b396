package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const timingFile = "timing.json"

// TimingEntry covers one generation step such as "outline",
// "session_03" or "session_03/lecture". End is zero while the step runs.
type TimingEntry struct {
	Step     string    `json:"step"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end,omitempty"`
	Duration string    `json:"duration,omitempty"`
}

// Timing is safe for concurrent use; diagram workers record their own steps.
type Timing struct {
	mu      sync.Mutex
	Entries []TimingEntry `json:"entries"`

	now func() time.Time
}

// LoadTiming reads timing.json from the course directory. A missing file
// yields an empty Timing so new runs append to it.
func LoadTiming(courseDir string) (*Timing, error) {
	data, err := os.ReadFile(filepath.Join(courseDir, timingFile))
	if errors.Is(err, fs.ErrNotExist) {
		return &Timing{}, nil
	}
	if err != nil {
		return nil, err
	}
	var t Timing
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", timingFile, err)
	}
	return &t, nil
}

func (t *Timing) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

func (t *Timing) AddStart(step string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Entries = append(t.Entries, TimingEntry{Step: step, Start: t.clock()})
}

// AddEnd closes the most recent open entry for step. Closing a step that
// was never started is a no-op.
func (t *Timing) AddEnd(step string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.Entries) - 1; i >= 0; i-- {
		e := &t.Entries[i]
		if e.Step != step || !e.End.IsZero() {
			continue
		}
		e.End = t.clock()
		e.Duration = FormatDuration(e.End.Sub(e.Start))
		return
	}
}

// Track starts step and returns the func that ends it.
func (t *Timing) Track(step string) func() {
	t.AddStart(step)
	return func() { t.AddEnd(step) }
}

// Latest returns the most recent completed entry for step.
func (t *Timing) Latest(step string) (TimingEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.Entries) - 1; i >= 0; i-- {
		if e := t.Entries[i]; e.Step == step && !e.End.IsZero() {
			return e, true
		}
	}
	return TimingEntry{}, false
}

// Incomplete lists entries that were started but never ended, which after
// a run means the process died or was killed during that step.
func (t *Timing) Incomplete() []TimingEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []TimingEntry
	for _, e := range t.Entries {
		if e.End.IsZero() {
			out = append(out, e)
		}
	}
	return out
}

func (t *Timing) Flush(courseDir string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return WriteJSONAtomic(filepath.Join(courseDir, timingFile), t)
}

// FormatDuration renders d as "4m 05s", or "1h 02m 03s" past an hour.
func FormatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	}
	return fmt.Sprintf("%dm %02ds", m, s)
}
