package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/jorge-barreto/coursegen/internal/config"
	"github.com/jorge-barreto/coursegen/internal/docs"
	"github.com/jorge-barreto/coursegen/internal/doctor"
	"github.com/jorge-barreto/coursegen/internal/generate"
	"github.com/jorge-barreto/coursegen/internal/health"
	"github.com/jorge-barreto/coursegen/internal/history"
	"github.com/jorge-barreto/coursegen/internal/llm"
	"github.com/jorge-barreto/coursegen/internal/logger"
	"github.com/jorge-barreto/coursegen/internal/outline"
	"github.com/jorge-barreto/coursegen/internal/pipeline"
	"github.com/jorge-barreto/coursegen/internal/retry"
	"github.com/jorge-barreto/coursegen/internal/scaffold"
	"github.com/jorge-barreto/coursegen/internal/state"
	"github.com/jorge-barreto/coursegen/internal/ux"
)

func main() {
	app := &cli.Command{
		Name:        "coursegen",
		Usage:       "Generate course outlines and session materials with a local LLM",
		Description: "Run 'coursegen docs' for documentation on configuration, prompts, the pipeline and more.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config-dir", Value: "config", Usage: "Directory holding course.yaml, llm.yaml and output.yaml"},
			&cli.StringFlag{Name: "log-level", Usage: "Log level: debug, info, warn or error (overrides output.yaml)"},
			&cli.StringFlag{Name: "log-mode", Usage: "Log format: dev or prod (overrides output.yaml)"},
		},
		Commands: []*cli.Command{
			initCmd(),
			outlineCmd(),
			generateCmd(),
			runCmd(),
			doctorCmd(),
			statusCmd(),
			docsCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%serror:%s %v\n", ux.Red, ux.Reset, err)
		os.Exit(1)
	}
}

// env bundles what every LLM-facing command needs.
type env struct {
	settings *config.Settings
	log      *logger.Logger
	monitor  *health.Monitor
	client   *llm.Client
}

func setup(cmd *cli.Command) (*env, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	s, err := config.Load(cmd.String("config-dir"))
	if err != nil {
		return nil, err
	}
	level, mode := s.Output.Logging.Level, s.Output.Logging.Mode
	if v := cmd.String("log-level"); v != "" {
		level = v
	}
	if v := cmd.String("log-mode"); v != "" {
		mode = v
	}
	log, err := logger.New(mode, level)
	if err != nil {
		return nil, err
	}
	mon, err := health.New(s.LLM.APIURL)
	if err != nil {
		return nil, fmt.Errorf("llm.api_url: %w", err)
	}
	return &env{
		settings: s,
		log:      log,
		monitor:  mon,
		client:   llm.NewClient(s, log, llm.WithHealth(mon)),
	}, nil
}

func (e *env) openHistory() *history.Store {
	store, err := history.OpenOptional(e.settings.HistoryPath())
	if err != nil {
		if !errors.Is(err, history.ErrDisabled) {
			e.log.Warn("run history unavailable", "path", e.settings.HistoryPath(), "error", err)
		}
		return nil
	}
	return store
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
}

func initCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create a starter config directory with default prompts",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "course", Usage: "Course name written to course.yaml"},
			&cli.StringFlag{Name: "model", Usage: "Model name written to llm.yaml"},
			&cli.BoolFlag{Name: "force", Usage: "Overwrite existing config files"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return scaffold.Init(cmd.String("config-dir"), scaffold.Options{
				CourseName: cmd.String("course"),
				Model:      cmd.String("model"),
				Force:      cmd.Bool("force"),
			})
		},
	}
}

func outlineCmd() *cli.Command {
	return &cli.Command{
		Name:  "outline",
		Usage: "Stage 1: generate the course outline",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.log.Sync()
			ctx, cancel := signalContext(ctx)
			defer cancel()

			store := e.openHistory()
			if store != nil {
				defer store.Close()
			}
			_, err = runOutline(ctx, e, store)
			return err
		},
	}
}

func runOutline(ctx context.Context, e *env, store *history.Store) (*outline.Result, error) {
	ux.StageHeader(1, "Course outline")
	runID := uuid.NewString()
	if store != nil {
		err := store.StartRun(ctx, history.Run{ID: runID, Course: e.settings.Course.Name, Stage: "outline", Model: e.settings.LLM.Model})
		if err != nil {
			e.log.Warn("recording outline run", "error", err)
			store = nil
		}
	}

	res, err := outline.New(e.settings, e.client, e.log, outline.WithDiagnoser(e.monitor)).Generate(ctx)

	if store != nil {
		sum := history.Summary{Status: state.StatusCompleted, SessionsOK: 1}
		if err != nil {
			sum = history.Summary{Status: state.StatusFailed, SessionsFailed: 1}
			if ctx.Err() != nil {
				sum.Status = state.StatusInterrupted
			}
		} else {
			sum.AvgScore = float64(res.Report.Score)
		}
		if ferr := store.FinishRun(context.WithoutCancel(ctx), runID, sum, nil); ferr != nil {
			e.log.Warn("recording outline result", "error", ferr)
		}
	}
	if err != nil {
		return nil, err
	}

	for _, w := range res.Warnings {
		ux.Warn(w)
	}
	ux.Success(fmt.Sprintf("Outline written to %s (quality %d/100, %s) in %s",
		res.JSONPath, res.Report.Score, res.Report.Label, state.FormatDuration(res.Elapsed)))
	fmt.Printf("  Markdown: %s\n  Metadata: %s\n", res.MarkdownPath, res.MetadataPath)
	return res, nil
}

func contentFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "modules", Usage: "Comma-separated module ids to generate, e.g. 1,3"},
		&cli.BoolFlag{Name: "skip-existing", Usage: "Skip sessions whose core files exist and reuse partial output"},
		&cli.BoolFlag{Name: "force", Usage: "Generate content even when the outline failed the quality bar"},
	}
}

func contentOptions(cmd *cli.Command, outlinePath string, modules []int) pipeline.Options {
	return pipeline.Options{
		OutlinePath:  outlinePath,
		Modules:      modules,
		SkipExisting: cmd.Bool("skip-existing"),
		Force:        cmd.Bool("force"),
	}
}

func generateCmd() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Stage 2: generate session materials from an outline",
		Flags: append([]cli.Flag{
			&cli.StringFlag{Name: "outline", Usage: "Outline JSON file or directory (default: newest outline)"},
		}, contentFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			modules, err := parseModules(cmd.String("modules"))
			if err != nil {
				return err
			}
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.log.Sync()
			ctx, cancel := signalContext(ctx)
			defer cancel()

			store := e.openHistory()
			if store != nil {
				defer store.Close()
			}
			return runContent(ctx, e, store, contentOptions(cmd, cmd.String("outline"), modules))
		},
	}
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Generate the outline, then all session materials",
		Flags: contentFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			modules, err := parseModules(cmd.String("modules"))
			if err != nil {
				return err
			}
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.log.Sync()
			ctx, cancel := signalContext(ctx)
			defer cancel()

			store := e.openHistory()
			if store != nil {
				defer store.Close()
			}
			res, err := runOutline(ctx, e, store)
			if err != nil {
				return err
			}
			if err := res.GateError(); err != nil && !cmd.Bool("force") {
				return err
			}
			return runContent(ctx, e, store, contentOptions(cmd, res.JSONPath, modules))
		},
	}
}

func runContent(ctx context.Context, e *env, store *history.Store, opts pipeline.Options) error {
	ledger := retry.NewLedger()
	p := &pipeline.Pipeline{
		Settings: e.settings,
		Gen:      generate.New(e.settings, e.client, retry.NewPolicy(ledger, e.log), e.log),
		Health:   e.monitor,
		History:  store,
		Ledger:   ledger,
		Log:      e.log,
	}
	sum, err := p.Run(ctx, opts)
	if err != nil {
		return err
	}
	if sum.Failed > 0 {
		return fmt.Errorf("%d of %d sessions failed", sum.Failed, len(sum.Sessions))
	}
	return nil
}

func doctorCmd() *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Check the LLM service, model, timeouts and recent failures",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.log.Sync()
			return doctor.Run(ctx, os.Stdout, e.settings, e.monitor)
		},
	}
}

func statusCmd() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show recent runs and the session table of the current course",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 10, Usage: "Number of recent runs to list"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.log.Sync()

			if store := e.openHistory(); store != nil {
				defer store.Close()
				runs, err := store.RecentRuns(ctx, int(cmd.Int("limit")))
				if err != nil {
					return err
				}
				ux.RenderRuns(os.Stdout, runs)
			}

			courseDir := e.settings.OutputPaths("").Course
			st, err := state.Load(courseDir)
			if err != nil {
				return fmt.Errorf("loading state: %w", err)
			}
			timing, err := state.LoadTiming(courseDir)
			if err != nil {
				return fmt.Errorf("loading timing: %w", err)
			}
			ux.RenderStatus(os.Stdout, st, timing)
			return nil
		},
	}
}

func docsCmd() *cli.Command {
	return &cli.Command{
		Name:      "docs",
		Usage:     "Show documentation",
		ArgsUsage: "[topic]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			name := cmd.Args().First()
			if name == "" {
				fmt.Print("\nAvailable topics:\n\n")
				for _, t := range docs.All() {
					fmt.Printf("  %-16s %s\n", t.Name, t.Summary)
				}
				fmt.Println("\nRun 'coursegen docs <topic>' to read a topic.")
				return nil
			}
			t, err := docs.Get(name)
			if err != nil {
				return err
			}
			fmt.Print(t.Content)
			return nil
		},
	}
}

// parseModules turns "1, 3,4" into [1 3 4]. Empty means all modules.
func parseModules(v string) ([]int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	var ids []int
	seen := map[int]bool{}
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("--modules: %q is not a module id", part)
		}
		if !seen[n] {
			seen[n] = true
			ids = append(ids, n)
		}
	}
	return ids, nil
}
