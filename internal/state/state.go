package state

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	StatusPending     = "pending"
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusPartial     = "partial"
	StatusFailed      = "failed"
	StatusSkipped     = "skipped"
	StatusInterrupted = "interrupted"
)

// ReasonFilesExist marks a session skipped because every core artifact is on disk.
const ReasonFilesExist = "files_exist"

// ArtifactState records the outcome of one artifact in a session.
type ArtifactState struct {
	Status   string   `json:"status"`
	Score    int      `json:"score,omitempty"`
	Path     string   `json:"path,omitempty"`
	Attempts int      `json:"attempts,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Error    string   `json:"error,omitempty"`
}

type SessionState struct {
	Module    int                      `json:"module_id"`
	Title     string                   `json:"session_title,omitempty"`
	Status    string                   `json:"status"`
	Reason    string                   `json:"reason,omitempty"`
	Errors    []string                 `json:"errors,omitempty"`
	Artifacts map[string]ArtifactState `json:"artifacts,omitempty"`
}

// PipelineState is the resumable record of a stage 2 run, kept as
// pipeline_state.json in the course output directory.
type PipelineState struct {
	mu          sync.Mutex
	RunID       string                `json:"run_id,omitempty"`
	Course      string                `json:"course"`
	OutlinePath string                `json:"outline_path"`
	Status      string                `json:"status"`
	Sessions    map[int]*SessionState `json:"sessions"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

func statePath(courseDir string) string {
	return filepath.Join(courseDir, "pipeline_state.json")
}

// Load reads the pipeline state from the course directory. Returns a new
// state if not found.
func Load(courseDir string) (*PipelineState, error) {
	data, err := os.ReadFile(statePath(courseDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &PipelineState{Status: StatusPending, Sessions: map[int]*SessionState{}}, nil
		}
		return nil, err
	}
	var s PipelineState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Sessions == nil {
		s.Sessions = map[int]*SessionState{}
	}
	return &s, nil
}

// Save writes the state to the course directory.
func (s *PipelineState) Save(courseDir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return WriteFileAtomic(statePath(courseDir), data, 0644)
}

// Session returns the entry for a global session number, creating it.
func (s *PipelineState) Session(number, module int) *SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Sessions == nil {
		s.Sessions = map[int]*SessionState{}
	}
	ss, ok := s.Sessions[number]
	if !ok {
		ss = &SessionState{Module: module, Status: StatusPending}
		s.Sessions[number] = ss
	}
	return ss
}

// SetArtifact records an artifact outcome under the session entry.
func (s *PipelineState) SetArtifact(number int, kind string, a ArtifactState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, ok := s.Sessions[number]
	if !ok {
		ss = &SessionState{Status: StatusRunning}
		s.Sessions[number] = ss
	}
	if ss.Artifacts == nil {
		ss.Artifacts = map[string]ArtifactState{}
	}
	ss.Artifacts[kind] = a
}

// FailedSessions returns session numbers with status failed or partial, ascending.
func (s *PipelineState) FailedSessions() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int
	for n, ss := range s.Sessions {
		if ss.Status == StatusFailed || ss.Status == StatusPartial {
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}
