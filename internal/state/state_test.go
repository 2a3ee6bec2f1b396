package state

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NotExist(t *testing.T) {
	s, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if s.Status != StatusPending {
		t.Fatalf("Status = %q, want pending", s.Status)
	}
	if s.Sessions == nil {
		t.Fatal("Sessions should be initialised")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, _ := Load(dir)
	s.Course = "Test Biology"
	s.Status = StatusRunning
	ss := s.Session(3, 2)
	ss.Status = StatusSkipped
	ss.Reason = ReasonFilesExist
	s.SetArtifact(3, "lecture", ArtifactState{Status: StatusCompleted, Score: 90, Path: "lecture.md"})

	if err := s.Save(dir); err != nil {
		t.Fatal(err)
	}
	got, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got.Course != "Test Biology" {
		t.Fatalf("Course = %q", got.Course)
	}
	entry := got.Sessions[3]
	if entry == nil || entry.Status != StatusSkipped || entry.Reason != ReasonFilesExist || entry.Module != 2 {
		t.Fatalf("session 3 = %+v", entry)
	}
	if entry.Artifacts["lecture"].Score != 90 {
		t.Fatalf("lecture artifact = %+v", entry.Artifacts["lecture"])
	}
	if got.UpdatedAt.IsZero() {
		t.Fatal("UpdatedAt not set")
	}
}

func TestLoad_Corrupt(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "pipeline_state.json"), []byte("{nope"), 0644)
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for corrupt state")
	}
}

func TestFailedSessions(t *testing.T) {
	s, _ := Load(t.TempDir())
	s.Session(4, 2).Status = StatusFailed
	s.Session(1, 1).Status = StatusCompleted
	s.Session(2, 1).Status = StatusPartial
	got := s.FailedSessions()
	if len(got) != 2 || got[0] != 2 || got[1] != 4 {
		t.Fatalf("FailedSessions = %v", got)
	}
}
