// Package pipeline runs stage 2: it walks an outline session by session and
// produces every artifact on disk, resuming from earlier runs when asked.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jorge-barreto/coursegen/internal/config"
	"github.com/jorge-barreto/coursegen/internal/course"
	"github.com/jorge-barreto/coursegen/internal/generate"
	"github.com/jorge-barreto/coursegen/internal/health"
	"github.com/jorge-barreto/coursegen/internal/history"
	"github.com/jorge-barreto/coursegen/internal/llm"
	"github.com/jorge-barreto/coursegen/internal/logger"
	"github.com/jorge-barreto/coursegen/internal/outline"
	"github.com/jorge-barreto/coursegen/internal/quality"
	"github.com/jorge-barreto/coursegen/internal/retry"
	"github.com/jorge-barreto/coursegen/internal/state"
	"github.com/jorge-barreto/coursegen/internal/ux"
)

// Generator produces one artifact; *generate.Generator satisfies it.
type Generator interface {
	Generate(ctx context.Context, in generate.Input) (*generate.Result, error)
}

// Diagnoser collects service and model diagnostics for failed requests.
type Diagnoser interface {
	Diagnostics(ctx context.Context, model string) health.Diagnostics
}

// ErrAborted is returned when a lecture fails under the abort policy.
var ErrAborted = errors.New("stage aborted after lecture failure")

const maxTransientRetries = 2

// Pipeline holds everything a stage 2 run needs. Health, History and Ledger
// are optional.
type Pipeline struct {
	Settings *config.Settings
	Gen      Generator
	Health   Diagnoser
	History  *history.Store
	Ledger   *retry.Ledger
	Log      *logger.Logger
	// Sleep waits between transient retries; nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Options struct {
	OutlinePath  string
	Modules      []int
	SkipExisting bool
	// Force generates from an outline that failed the quality bar.
	Force bool
}

type ArtifactResult struct {
	Kind     string        `json:"kind"`
	File     string        `json:"file"`
	Status   string        `json:"status"`
	Score    int           `json:"score,omitempty"`
	Attempts int           `json:"attempts,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
	Error    string        `json:"error,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// SessionResult is the outcome of one session.
type SessionResult struct {
	ModuleID      int              `json:"module_id"`
	SessionNumber int              `json:"session_number"`
	Title         string           `json:"session_title"`
	Dir           string           `json:"dir"`
	Status        string           `json:"status"`
	Reason        string           `json:"reason,omitempty"`
	Artifacts     []ArtifactResult `json:"artifacts"`
	Errors        []string         `json:"errors,omitempty"`
	Suggestions   []string         `json:"suggestions,omitempty"`
}

// Summary aggregates a stage 2 run.
type Summary struct {
	RunID       string             `json:"run_id"`
	Course      string             `json:"course"`
	OutlinePath string             `json:"outline_path"`
	CourseDir   string             `json:"course_dir"`
	Status      string             `json:"status"`
	Sessions    []SessionResult    `json:"sessions"`
	OK          int                `json:"sessions_ok"`
	Failed      int                `json:"sessions_failed"`
	Skipped     int                `json:"sessions_skipped"`
	AvgScore    float64            `json:"avg_score"`
	KindScores  map[string]float64 `json:"kind_scores"`
	Consistency []quality.Issue    `json:"consistency,omitempty"`
	Elapsed     time.Duration      `json:"elapsed"`
}

// run is the mutable state of one Run call.
type run struct {
	id          string
	courseDir   string
	modulesRoot string
	outline     *course.Outline
	state       *state.PipelineState
	timing      *state.Timing
	extras      []generate.Kind
	opts        Options
	start       time.Time
}

// Run executes stage 2 for the outline selected by opts.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Summary, error) {
	log := logger.OrNop(p.Log)
	path, err := FindOutline(p.Settings, opts.OutlinePath)
	if err != nil {
		return nil, err
	}
	if err := outline.CheckGate(path); err != nil {
		if !opts.Force {
			return nil, err
		}
		log.Warn("generating from an outline below the quality bar", "outline", path, "error", err)
	}
	full, err := course.Load(path)
	if err != nil {
		return nil, err
	}
	o := full.FilterModules(opts.Modules)
	if len(o.Modules) == 0 {
		return nil, fmt.Errorf("no modules match %v in %s", opts.Modules, path)
	}
	extras, err := generate.ExtraKinds(p.Settings.ExtraArtifacts())
	if err != nil {
		return nil, err
	}

	courseDir, modulesRoot := courseLayout(p.Settings, path, o.Metadata.Name)
	if err := state.EnsureDir(modulesRoot); err != nil {
		return nil, err
	}
	st, err := state.Load(courseDir)
	if err != nil {
		return nil, fmt.Errorf("loading pipeline state: %w", err)
	}
	timing, err := state.LoadTiming(courseDir)
	if err != nil {
		return nil, fmt.Errorf("loading timing: %w", err)
	}

	r := &run{
		id:          uuid.NewString(),
		courseDir:   courseDir,
		modulesRoot: modulesRoot,
		outline:     o,
		state:       st,
		timing:      timing,
		extras:      extras,
		opts:        opts,
		start:       time.Now(),
	}
	st.RunID = r.id
	st.Course = o.Metadata.Name
	st.OutlinePath = path
	st.Status = state.StatusRunning
	if err := st.Save(courseDir); err != nil {
		return nil, fmt.Errorf("saving pipeline state: %w", err)
	}
	p.startHistory(ctx, r)

	log.Info("content generation started", "outline", path, "modules", len(o.Modules), "sessions", o.TotalSessions(), "run", r.id)
	ux.StageHeader(2, fmt.Sprintf("Content generation for %s", o.Metadata.Name))

	sum := &Summary{RunID: r.id, Course: o.Metadata.Name, OutlinePath: path, CourseDir: courseDir}
	refs := o.Sessions()
	var runErr error
	for i, ref := range refs {
		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}
		ux.SessionHeader(i, len(refs), ref.Module.ModuleID, ref.Session.SessionNumber, ref.Session.SessionTitle)
		res, err := p.runSession(ctx, r, ref, len(o.Modules))
		sum.Sessions = append(sum.Sessions, res)
		if err != nil {
			runErr = err
			break
		}
	}

	p.aggregate(sum, o, r)
	switch {
	case runErr != nil && ctx.Err() != nil:
		sum.Status = state.StatusInterrupted
	case runErr != nil:
		sum.Status = state.StatusFailed
	}
	return sum, p.finish(r, sum, runErr)
}

// runSession produces every artifact of one session. The returned error is
// only set when the whole stage must stop.
func (p *Pipeline) runSession(ctx context.Context, r *run, ref course.SessionRef, moduleTotal int) (SessionResult, error) {
	log := logger.OrNop(p.Log).With("module", ref.Module.ModuleID, "session", ref.Session.SessionNumber)
	m, s := *ref.Module, *ref.Session
	dir := state.SessionDir(state.ModuleDir(r.modulesRoot, m.ModuleID, m.ModuleName), s.SessionNumber)
	res := SessionResult{ModuleID: m.ModuleID, SessionNumber: s.SessionNumber, Title: s.SessionTitle, Dir: dir, Status: state.StatusRunning}

	ss := r.state.Session(s.SessionNumber, m.ModuleID)
	ss.Title = s.SessionTitle
	ss.Reason = ""
	ss.Errors = nil
	if err := state.EnsureDir(dir); err != nil {
		res.Status = state.StatusFailed
		res.Errors = append(res.Errors, err.Error())
		p.saveSession(r, res)
		return res, nil
	}

	coreFiles := make([]string, len(generate.CoreKinds))
	for i, k := range generate.CoreKinds {
		spec, _ := generate.SpecFor(k)
		coreFiles[i] = spec.FileName
	}
	var existing map[string]bool
	if r.opts.SkipExisting {
		existing = state.ExistingFiles(dir, coreFiles)
		if len(existing) == len(coreFiles) {
			res.Status = state.StatusSkipped
			res.Reason = state.ReasonFilesExist
			for i, k := range generate.CoreKinds {
				res.Artifacts = append(res.Artifacts, ArtifactResult{Kind: string(k), File: coreFiles[i], Status: state.StatusSkipped})
			}
			ux.SessionSkip(s.SessionNumber, state.ReasonFilesExist)
			log.Info("session skipped", "reason", state.ReasonFilesExist)
			p.saveSession(r, res)
			return res, nil
		}
	}

	step := fmt.Sprintf("session_%02d", s.SessionNumber)
	r.timing.AddStart(step)
	defer func() {
		r.timing.AddEnd(step)
		if err := r.timing.Flush(r.courseDir); err != nil {
			log.Warn("flushing timing", "error", err)
		}
	}()

	in := generate.Input{
		Course:  r.outline.Metadata,
		Module:  m,
		Session: s,
		Context: generate.OutlineContext(ref.ModuleIndex+1, moduleTotal, ref.SessionIndex+1, len(m.Sessions), m, s),
	}
	diag := &sessionDiagnostics{p: p, ctx: ctx}
	lectureFailed := false
	abort := p.Settings.LectureFailurePolicy() == config.LectureFailureAbort

	for i, kind := range generate.CoreKinds {
		file := coreFiles[i]
		if existing[file] {
			text, err := os.ReadFile(filepath.Join(dir, file))
			if err == nil {
				p.keepExisting(&in, kind, string(text))
				res.Artifacts = append(res.Artifacts, ArtifactResult{Kind: string(kind), File: file, Status: state.StatusSkipped})
				ux.ArtifactSkip(string(kind), state.ReasonFilesExist)
				continue
			}
			log.Warn("existing artifact unreadable; regenerating", "file", file, "error", err)
		}
		if lectureFailed && abort {
			res.Artifacts = append(res.Artifacts, ArtifactResult{Kind: string(kind), File: file, Status: state.StatusSkipped, Error: "lecture failed"})
			ux.ArtifactSkip(string(kind), "lecture failed")
			continue
		}
		a, text, err := p.produce(ctx, r, dir, file, in, kind)
		res.Artifacts = append(res.Artifacts, a)
		diag.fail(&res, a.Kind, err)
		if ctx.Err() != nil {
			res.Status = state.StatusInterrupted
			p.saveSession(r, res)
			return res, ctx.Err()
		}
		if a.Status == state.StatusFailed {
			if kind == generate.KindLecture {
				lectureFailed = true
			}
			continue
		}
		p.keepExisting(&in, kind, text)
	}

	if !(lectureFailed && abort) {
		for _, kind := range r.extras {
			spec, _ := generate.SpecFor(kind)
			if r.opts.SkipExisting && len(state.ExistingFiles(dir, []string{spec.FileName})) == 1 {
				res.Artifacts = append(res.Artifacts, ArtifactResult{Kind: string(kind), File: spec.FileName, Status: state.StatusSkipped})
				ux.ArtifactSkip(string(kind), state.ReasonFilesExist)
				continue
			}
			a, _, err := p.produce(ctx, r, dir, spec.FileName, in, kind)
			res.Artifacts = append(res.Artifacts, a)
			diag.fail(&res, a.Kind, err)
			if ctx.Err() != nil {
				res.Status = state.StatusInterrupted
				p.saveSession(r, res)
				return res, ctx.Err()
			}
		}
	}

	for _, d := range p.diagrams(ctx, r, dir, in) {
		res.Artifacts = append(res.Artifacts, d.result)
		diag.fail(&res, d.result.Kind, d.err)
	}
	if ctx.Err() != nil {
		res.Status = state.StatusInterrupted
		p.saveSession(r, res)
		return res, ctx.Err()
	}

	res.Status = sessionStatus(res, lectureFailed)
	res.Suggestions = diag.suggestions
	if len(res.Suggestions) > 0 {
		ux.Suggestions(res.Suggestions)
	}
	p.saveSession(r, res)
	if lectureFailed && abort {
		return res, fmt.Errorf("session %d: %w", s.SessionNumber, ErrAborted)
	}
	return res, nil
}

func sessionStatus(res SessionResult, lectureFailed bool) string {
	if lectureFailed {
		return state.StatusFailed
	}
	for _, a := range res.Artifacts {
		if a.Status == state.StatusFailed {
			return state.StatusPartial
		}
	}
	return state.StatusCompleted
}

// keepExisting threads lecture and lab text into the input of later artifacts.
func (p *Pipeline) keepExisting(in *generate.Input, kind generate.Kind, text string) {
	switch kind {
	case generate.KindLecture:
		in.Lecture = text
	case generate.KindLab:
		in.Lab = text
	}
}

// produce generates one artifact, writes it and records the outcome. On
// failure the returned text is empty and err carries the cause.
func (p *Pipeline) produce(ctx context.Context, r *run, dir, file string, in generate.Input, kind generate.Kind) (ArtifactResult, string, error) {
	in.Kind = kind
	label := string(kind)
	if kind == generate.KindDiagram {
		label = strings.TrimSuffix(file, filepath.Ext(file))
	}
	step := fmt.Sprintf("session_%02d/%s", in.Session.SessionNumber, label)
	defer r.timing.Track(step)()

	a := ArtifactResult{Kind: label, File: file}
	start := time.Now()
	gen, err := p.withTransientRetry(ctx, label, func() (*generate.Result, error) {
		return p.Gen.Generate(ctx, in)
	})
	if err == nil && strings.TrimSpace(gen.Text) == "" {
		err = fmt.Errorf("%s: empty content after cleanup", label)
	}
	if err == nil {
		err = state.WriteFileAtomic(filepath.Join(dir, file), []byte(gen.Text), 0644)
	}
	a.Elapsed = time.Since(start)
	if err != nil {
		a.Status = state.StatusFailed
		a.Error = err.Error()
		if gen != nil {
			a.Attempts = gen.Attempts
		}
		if ctx.Err() == nil {
			ux.ArtifactFail(label, err.Error())
		}
		logger.OrNop(p.Log).Error("artifact failed", "artifact", label, "session", in.Session.SessionNumber, "error", err)
		p.recordArtifact(ctx, r, in.Session.SessionNumber, a)
		return a, "", err
	}

	a.Status = state.StatusCompleted
	a.Score = gen.Score
	a.Attempts = gen.Attempts
	a.Warnings = gen.Warnings
	ux.ArtifactComplete(label, a.Score, a.Attempts, a.Elapsed)
	for _, w := range gen.Warnings {
		logger.OrNop(p.Log).Warn("artifact warning", "artifact", label, "session", in.Session.SessionNumber, "warning", w)
	}
	p.recordArtifact(ctx, r, in.Session.SessionNumber, a)
	return a, gen.Text, nil
}

// withTransientRetry retries fn on transient transport errors up to
// maxTransientRetries times with exponential backoff from the configured
// retry delay.
func (p *Pipeline) withTransientRetry(ctx context.Context, label string, fn func() (*generate.Result, error)) (*generate.Result, error) {
	delay := p.Settings.RetryDelay()
	for attempt := 0; ; attempt++ {
		res, err := fn()
		if err == nil || attempt >= maxTransientRetries || ctx.Err() != nil || !llm.IsTransient(err) {
			return res, err
		}
		wait := delay << attempt
		logger.OrNop(p.Log).Warn(fmt.Sprintf("%s: transient error, retrying in %s (%d/%d)", label, wait, attempt+1, maxTransientRetries), "error", err)
		if err := p.sleep(ctx, wait); err != nil {
			return nil, err
		}
	}
}

func (p *Pipeline) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p *Pipeline) saveSession(r *run, res SessionResult) {
	ss := r.state.Session(res.SessionNumber, res.ModuleID)
	ss.Status = res.Status
	ss.Reason = res.Reason
	ss.Errors = res.Errors
	for _, a := range res.Artifacts {
		r.state.SetArtifact(res.SessionNumber, a.Kind, state.ArtifactState{
			Status:   a.Status,
			Score:    a.Score,
			Path:     a.File,
			Attempts: a.Attempts,
			Warnings: a.Warnings,
			Error:    a.Error,
		})
	}
	if err := r.state.Save(r.courseDir); err != nil {
		logger.OrNop(p.Log).Warn("saving pipeline state", "error", err)
	}
}

// aggregate fills the session counts, scores and the cross-session
// consistency check.
func (p *Pipeline) aggregate(sum *Summary, o *course.Outline, r *run) {
	var total, n int
	kindTotals := map[string][2]int{}
	for _, s := range sum.Sessions {
		switch s.Status {
		case state.StatusCompleted:
			sum.OK++
		case state.StatusSkipped:
			sum.Skipped++
		case state.StatusFailed, state.StatusPartial:
			sum.Failed++
		}
		for _, a := range s.Artifacts {
			if a.Status != state.StatusCompleted {
				continue
			}
			total += a.Score
			n++
			kind := a.Kind
			if strings.HasPrefix(kind, string(generate.KindDiagram)) {
				kind = string(generate.KindDiagram)
			}
			kt := kindTotals[kind]
			kindTotals[kind] = [2]int{kt[0] + a.Score, kt[1] + 1}
		}
	}
	if n > 0 {
		sum.AvgScore = float64(total) / float64(n)
	}
	sum.KindScores = make(map[string]float64, len(kindTotals))
	for k, kt := range kindTotals {
		sum.KindScores[k] = float64(kt[0]) / float64(kt[1])
	}

	sum.Consistency = quality.CheckProgression(o)
	for _, issue := range sum.Consistency {
		logger.OrNop(p.Log).Warn("consistency: "+issue.Message, "kind", issue.Kind)
	}

	switch {
	case sum.Failed == 0:
		sum.Status = state.StatusCompleted
	case sum.OK == 0 && sum.Skipped == 0:
		sum.Status = state.StatusFailed
	default:
		sum.Status = state.StatusPartial
	}
	sum.Elapsed = time.Since(r.start)
}

// finish persists state, timing and history, then prints the closing lines.
func (p *Pipeline) finish(r *run, sum *Summary, runErr error) error {
	log := logger.OrNop(p.Log)
	r.state.Status = sum.Status
	if err := r.state.Save(r.courseDir); err != nil {
		log.Warn("saving pipeline state", "error", err)
	}
	if err := r.timing.Flush(r.courseDir); err != nil {
		log.Warn("flushing timing", "error", err)
	}
	if err := state.WriteJSONAtomic(filepath.Join(r.courseDir, "generation_summary.json"), sum); err != nil {
		log.Warn("writing summary", "error", err)
	}
	p.finishHistory(r, sum)

	for _, issue := range sum.Consistency {
		ux.Warn(issue.Message)
	}
	ux.Summary(sum.OK, sum.Failed, sum.Skipped, sum.AvgScore, sum.Elapsed)
	log.Info("content generation finished", "status", sum.Status, "ok", sum.OK, "failed", sum.Failed,
		"skipped", sum.Skipped, "avg_score", fmt.Sprintf("%.1f", sum.AvgScore))

	if runErr != nil || sum.Failed > 0 {
		ux.ResumeHint(sum.OutlinePath)
	}
	if runErr != nil {
		return runErr
	}
	ux.Success(fmt.Sprintf("Content for %s generated", sum.Course))
	return nil
}

func (p *Pipeline) startHistory(ctx context.Context, r *run) {
	if p.History == nil {
		return
	}
	err := p.History.StartRun(ctx, history.Run{
		ID:          r.id,
		Course:      r.outline.Metadata.Name,
		Stage:       "content",
		Model:       p.Settings.LLM.Model,
		OutlinePath: r.state.OutlinePath,
	})
	if err != nil {
		logger.OrNop(p.Log).Warn("recording run history", "error", err)
	}
}

func (p *Pipeline) recordArtifact(ctx context.Context, r *run, session int, a ArtifactResult) {
	if p.History == nil {
		return
	}
	err := p.History.RecordArtifact(context.WithoutCancel(ctx), r.id, history.Artifact{
		SessionNumber: session,
		Kind:          a.Kind,
		Status:        a.Status,
		Score:         a.Score,
		Attempts:      a.Attempts,
		Warnings:      len(a.Warnings),
		Elapsed:       a.Elapsed,
		Error:         a.Error,
	})
	if err != nil {
		logger.OrNop(p.Log).Warn("recording artifact history", "error", err)
	}
}

func (p *Pipeline) finishHistory(r *run, sum *Summary) {
	if p.History == nil {
		return
	}
	var stats []retry.ClassStats
	if p.Ledger != nil {
		stats = p.Ledger.Stats()
	}
	err := p.History.FinishRun(context.Background(), r.id, history.Summary{
		Status:          sum.Status,
		SessionsOK:      sum.OK,
		SessionsFailed:  sum.Failed,
		SessionsSkipped: sum.Skipped,
		AvgScore:        sum.AvgScore,
	}, stats)
	if err != nil {
		logger.OrNop(p.Log).Warn("recording run history", "error", err)
	}
}
