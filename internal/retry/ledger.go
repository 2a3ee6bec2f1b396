package retry

import (
	"sort"
	"sync"
	"time"
)

// Attempt is one recorded retry outcome.
type Attempt struct {
	Class       Class     `json:"error_class"`
	Message     string    `json:"error_message"`
	ContentType string    `json:"content_type"`
	Attempt     int       `json:"attempt"`
	Success     bool      `json:"success"`
	Strategy    Strategy  `json:"strategy"`
	FixApplied  string    `json:"fix_applied,omitempty"`
	At          time.Time `json:"at"`
}

// ClassStats aggregates attempts for one (class, content type) pair.
type ClassStats struct {
	Class       Class   `json:"error_class"`
	ContentType string  `json:"content_type"`
	Attempts    int     `json:"attempts"`
	Successes   int     `json:"successes"`
	SuccessRate float64 `json:"success_rate"`
}

// Ledger is the process-wide, append-only record of retry attempts. It is
// safe for concurrent use by the diagram workers.
type Ledger struct {
	mu       sync.RWMutex
	attempts []Attempt
	now      func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{now: time.Now}
}

// Record appends a, stamping it when At is zero.
func (l *Ledger) Record(a Attempt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a.At.IsZero() {
		a.At = l.now()
	}
	l.attempts = append(l.attempts, a)
}

// SuccessRate returns the share of successful attempts for the pair and the
// number of attempts it is based on. With no attempts the rate is 1.
func (l *Ledger) SuccessRate(class Class, contentType string) (float64, int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var n, ok int
	for _, a := range l.attempts {
		if a.Class == class && a.ContentType == contentType {
			n++
			if a.Success {
				ok++
			}
		}
	}
	if n == 0 {
		return 1, 0
	}
	return float64(ok) / float64(n), n
}

func (l *Ledger) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.attempts)
}

// Snapshot returns a copy of every recorded attempt in insertion order.
func (l *Ledger) Snapshot() []Attempt {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Attempt(nil), l.attempts...)
}

// Stats groups attempts by (class, content type), sorted by both.
func (l *Ledger) Stats() []ClassStats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx := map[[2]string]*ClassStats{}
	for _, a := range l.attempts {
		k := [2]string{string(a.Class), a.ContentType}
		cs, ok := idx[k]
		if !ok {
			cs = &ClassStats{Class: a.Class, ContentType: a.ContentType}
			idx[k] = cs
		}
		cs.Attempts++
		if a.Success {
			cs.Successes++
		}
	}
	out := make([]ClassStats, 0, len(idx))
	for _, cs := range idx {
		cs.SuccessRate = float64(cs.Successes) / float64(cs.Attempts)
		out = append(out, *cs)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Class != out[j].Class {
			return out[i].Class < out[j].Class
		}
		return out[i].ContentType < out[j].ContentType
	})
	return out
}
