package state

import (
	"testing"
	"time"
)

func TestTiming_StartEndFlush(t *testing.T) {
	dir := t.TempDir()
	tm, err := LoadTiming(dir)
	if err != nil {
		t.Fatal(err)
	}
	tm.AddStart("session_01/lecture")
	tm.AddEnd("session_01/lecture")
	if tm.Entries[0].End.IsZero() || tm.Entries[0].Duration == "" {
		t.Fatalf("entry not closed: %+v", tm.Entries[0])
	}
	if err := tm.Flush(dir); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadTiming(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded.Entries) != 1 || loaded.Entries[0].Step != "session_01/lecture" {
		t.Fatalf("loaded = %+v", loaded.Entries)
	}
}

func TestTiming_AddEndMatchesMostRecentOpen(t *testing.T) {
	tm := &Timing{}
	tm.AddStart("outline")
	tm.AddEnd("outline")
	tm.AddStart("outline")
	tm.AddEnd("outline")
	if tm.Entries[1].End.IsZero() {
		t.Fatal("second entry should be closed")
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{0, "0m 00s"},
		{65 * time.Second, "1m 05s"},
		{10*time.Minute + 3*time.Second, "10m 03s"},
	}
	for _, c := range cases {
		if got := FormatDuration(c.d); got != c.want {
			t.Errorf("FormatDuration(%s) = %q, want %q", c.d, got, c.want)
		}
	}
}

func TestTiming_TrackLatestIncomplete(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tm := &Timing{now: func() time.Time { return now }}

	done := tm.Track("session_01/lecture")
	now = now.Add(90 * time.Second)
	done()
	tm.AddStart("session_01/lab")

	e, ok := tm.Latest("session_01/lecture")
	if !ok || e.Duration != "1m 30s" {
		t.Fatalf("Latest = %+v, %v", e, ok)
	}
	if _, ok := tm.Latest("session_01/lab"); ok {
		t.Fatal("open entry reported as latest completed")
	}
	open := tm.Incomplete()
	if len(open) != 1 || open[0].Step != "session_01/lab" {
		t.Fatalf("Incomplete = %+v", open)
	}
}

func TestFormatDuration_Hours(t *testing.T) {
	if got := FormatDuration(time.Hour + 2*time.Minute + 3*time.Second); got != "1h 02m 03s" {
		t.Fatalf("got %q", got)
	}
}
