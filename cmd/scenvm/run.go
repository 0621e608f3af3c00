package main

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fortiblox/X1-Scenario/internal/testcontracts"
	"github.com/fortiblox/X1-Scenario/pkg/gasschedule"
	"github.com/fortiblox/X1-Scenario/pkg/scenario"
	"github.com/fortiblox/X1-Scenario/pkg/snapshot"
	"github.com/fortiblox/X1-Scenario/pkg/tracestore"
	"github.com/fortiblox/X1-Scenario/pkg/world"
)

// scenarioSuffix marks the files picked up from directories.
const scenarioSuffix = ".scen.json"

var errScenariosFailed = errors.New("scenarios failed")

type runOutcome struct {
	path     string
	steps    int
	duration time.Duration
	runID    string
	state    *world.State
	err      error
}

// runShared is what every scenario of one invocation shares.
type runShared struct {
	allowMissing bool
	schedule     *gasschedule.Schedule
	start        *world.State
	traces       *tracestore.BoltStore
	snapshots    *snapshot.Writer
}

func newRunCmd(a *app) *cobra.Command {
	var saveState, fromState bool

	cmd := &cobra.Command{
		Use:   "run <file|dir>...",
		Short: "Run scenario files, or every *.scen.json under the given directories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := collectScenarios(args)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return errors.New("no scenario files found")
			}
			if saveState && len(files) != 1 {
				return errors.New("--save-state needs exactly one scenario")
			}

			shared := runShared{allowMissing: a.v.GetBool(keyAllowMissing)}
			if name := a.v.GetString(keyGasSchedule); name != "" {
				if shared.schedule, err = gasschedule.Named(name); err != nil {
					return err
				}
			}
			if fromState {
				if shared.start, err = a.loadWorld(); err != nil {
					return err
				}
			}
			if a.v.GetBool(keyTrace) {
				cfg := tracestore.DefaultConfig(a.tracePath())
				cfg.RetainRuns = a.v.GetInt(keyRetainRuns)
				if shared.traces, err = tracestore.Open(cfg); err != nil {
					return err
				}
				defer shared.traces.Close()
			}
			if a.v.GetBool(keyDump) {
				cfg := snapshot.DefaultConfig()
				cfg.Dir = a.snapshotDir()
				cfg.Compress = a.v.GetBool(keyCompress)
				if shared.snapshots, err = snapshot.NewWriter(cfg); err != nil {
					return err
				}
			}

			outcomes, err := a.runAll(cmd.Context(), files, shared, a.v.GetInt(keyJobs))
			if err != nil {
				return err
			}
			failed := printOutcomes(cmd.OutOrStdout(), outcomes)

			if saveState && outcomes[0].err == nil {
				if err := a.saveWorld(outcomes[0].state); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "world saved to %s\n", a.statePath())
			}
			if failed > 0 {
				return errors.Wrapf(errScenariosFailed, "%d of %d", failed, len(outcomes))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntP("jobs", "j", runtime.NumCPU(), "scenarios run in parallel")
	f.Bool("allow-missing", true, "let missing code files evaluate to a MISSING: marker")
	f.String("gas-schedule", "", "gas schedule overriding the gasSchedule field of scenarios")
	f.Bool("trace", false, "record every step in the trace store")
	f.Bool("dump", false, "write dumpState steps as snapshots under the data dir")
	f.Bool("compress", true, "zstd-compress snapshots")
	f.Int("retain", 100, "trace store runs kept, 0 keeps all")
	f.BoolVar(&saveState, "save-state", false, "persist the final world of the scenario")
	f.BoolVar(&fromState, "from-state", false, "start from the persisted world instead of an empty one")
	bindFlags(a.v, f, map[string]string{
		keyJobs:         "jobs",
		keyAllowMissing: "allow-missing",
		keyGasSchedule:  "gas-schedule",
		keyTrace:        "trace",
		keyDump:         "dump",
		keyCompress:     "compress",
		keyRetainRuns:   "retain",
	})
	return cmd
}

// collectScenarios expands directories into their scenario files. Files
// named explicitly are kept whatever their suffix.
func collectScenarios(args []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, errors.Wrap(err, "scenario path")
		}
		if !info.IsDir() {
			add(filepath.Clean(arg))
			continue
		}
		err = filepath.WalkDir(arg, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), scenarioSuffix) {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrapf(err, "walk %s", arg)
		}
	}
	sort.Strings(files)
	return files, nil
}

// runAll runs each file on its own world, jobs at a time.
func (a *app) runAll(ctx context.Context, files []string, shared runShared, jobs int) ([]runOutcome, error) {
	if jobs < 1 {
		jobs = 1
	}
	pool, err := ants.NewPool(jobs)
	if err != nil {
		return nil, errors.Wrap(err, "create worker pool")
	}
	defer pool.Release()

	outcomes := make([]runOutcome, len(files))
	var wg sync.WaitGroup
	for i, path := range files {
		i, path := i, path
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			outcomes[i] = a.runOne(ctx, path, shared)
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, errors.Wrap(err, "submit scenario")
		}
	}
	wg.Wait()
	return outcomes, nil
}

func (a *app) runOne(ctx context.Context, path string, shared runShared) runOutcome {
	out := runOutcome{path: path}
	logger := a.logger.With(zap.String("file", path))

	cfg := scenario.DefaultConfig()
	cfg.BaseDir = filepath.Dir(path)
	cfg.AllowMissingFiles = shared.allowMissing
	cfg.Schedule = shared.schedule
	cfg.Logger = logger
	if shared.start != nil {
		cfg.State = shared.start.Clone()
	}
	if shared.snapshots != nil {
		cfg.OnDump = shared.snapshots.Dump
	}
	var rec *tracestore.Recorder
	if shared.traces != nil {
		var err error
		if rec, err = shared.traces.BeginRun(path); err != nil {
			out.err = err
			return out
		}
		cfg.Tracer = rec
		out.runID = rec.ID().String()
	}

	r := scenario.NewRunner(cfg)
	if err := testcontracts.Register(r); err != nil {
		out.err = err
		return out
	}

	begin := time.Now()
	out.err = r.RunFile(ctx, path)
	out.duration = time.Since(begin)
	out.steps = r.StepsExecuted()
	out.state = r.State()

	if rec != nil {
		if err := rec.Finish(out.err); err != nil && out.err == nil {
			out.err = err
		}
	}
	if out.err != nil {
		logger.Info("scenario failed", zap.Error(out.err))
	} else {
		logger.Debug("scenario passed", zap.Int("steps", out.steps), zap.Duration("took", out.duration))
	}
	return out
}

// printOutcomes renders the summary table and the failure details, and
// returns the number of failed scenarios.
func printOutcomes(w io.Writer, outcomes []runOutcome) int {
	header := []string{"Scenario", "Steps", "Time", "Result"}
	traced := len(outcomes) > 0 && outcomes[0].runID != ""
	if traced {
		header = append(header, "Run")
	}
	table := newTable(w, header...)

	failed := 0
	for _, o := range outcomes {
		if o.err != nil {
			failed++
		}
		row := []string{
			o.path,
			strconv.Itoa(o.steps),
			o.duration.Round(time.Microsecond).String(),
			verdict(o.err == nil),
		}
		if traced {
			row = append(row, o.runID)
		}
		table.Append(row)
	}
	table.SetFooter(append([]string{"", "", "", fmt.Sprintf("%d/%d", len(outcomes)-failed, len(outcomes))}, make([]string, len(header)-4)...))
	table.Render()

	for _, o := range outcomes {
		if o.err != nil {
			fmt.Fprintf(w, "%s %s\n  %s\n", failText("FAIL"), o.path, dimText(o.err.Error()))
		}
	}
	return failed
}
