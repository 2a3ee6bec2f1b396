package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/jorge-barreto/coursegen/internal/generate"
	"github.com/jorge-barreto/coursegen/internal/state"
	"github.com/jorge-barreto/coursegen/internal/ux"
)

type diagramOutcome struct {
	result ArtifactResult
	err    error
}

// diagrams generates one diagram per subtopic, up to the configured count,
// on a bounded worker pool. Failures are returned per diagram and never
// cancel the siblings. Diagrams already on disk are kept when resuming.
func (p *Pipeline) diagrams(ctx context.Context, r *run, dir string, in generate.Input) []diagramOutcome {
	n := min(p.Settings.DiagramsPerSession(), len(in.Session.Subtopics))
	if n == 0 {
		return nil
	}
	var kept map[string]bool
	if r.opts.SkipExisting {
		kept = existingDiagrams(dir)
	}

	out := make([]diagramOutcome, n)
	var g errgroup.Group
	g.SetLimit(p.Settings.MaxDiagramWorkers())
	for i := 0; i < n; i++ {
		file := generate.DiagramFileName(i + 1)
		label := file[:len(file)-len(".mmd")]
		if kept[file] {
			out[i] = diagramOutcome{result: ArtifactResult{Kind: label, File: file, Status: state.StatusSkipped}}
			ux.ArtifactSkip(label, state.ReasonFilesExist)
			continue
		}
		din := in
		din.Subtopic = in.Session.Subtopics[i]
		din.Index = i + 1
		g.Go(func() error {
			if ctx.Err() != nil {
				out[i] = diagramOutcome{result: ArtifactResult{Kind: label, File: file, Status: state.StatusFailed, Error: ctx.Err().Error()}, err: ctx.Err()}
				return nil
			}
			a, _, err := p.produce(ctx, r, dir, file, din, generate.KindDiagram)
			out[i] = diagramOutcome{result: a, err: err}
			return nil
		})
	}
	g.Wait()
	return out
}
