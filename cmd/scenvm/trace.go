package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fortiblox/X1-Scenario/pkg/tracestore"
)

func (a *app) openTraces(readOnly bool) (*tracestore.BoltStore, error) {
	if _, err := os.Stat(a.tracePath()); os.IsNotExist(err) {
		return nil, errors.New("no traces recorded; run scenarios with --trace first")
	}
	cfg := tracestore.DefaultConfig(a.tracePath())
	cfg.ReadOnly = readOnly
	cfg.RetainRuns = 0
	return tracestore.Open(cfg)
}

func newTraceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect runs recorded with run --trace",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openTraces(true)
			if err != nil {
				return err
			}
			defer store.Close()
			runs, err := store.Runs()
			if err != nil {
				return err
			}
			table := newTable(cmd.OutOrStdout(), "Run", "Scenario", "Started", "Steps", "Result")
			for _, run := range runs {
				result := dimText("running")
				if run.Done() {
					result = verdict(!run.Failed)
				}
				table.Append([]string{
					run.ID.String(),
					run.Scenario,
					run.Started.Local().Format(time.DateTime),
					strconv.Itoa(run.Steps),
					result,
				})
			}
			table.Render()
			return nil
		},
	}

	var stepID string
	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the steps of a run, or one step in full with --step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return errors.Wrap(err, "run id")
			}
			store, err := a.openTraces(true)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.GetRun(id)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s  %s\n", run.Scenario, run.ID)
			if run.Failed {
				fmt.Fprintf(w, "%s %s\n", failText("FAIL"), run.Error)
			}

			if stepID != "" {
				st, err := store.Step(id, stepID)
				if err != nil {
					return err
				}
				printStep(w, st)
				return nil
			}

			steps, err := store.Steps(id)
			if err != nil {
				return err
			}
			table := newTable(w, "#", "Scenario", "Index", "Kind", "ID", "Status", "Message")
			for _, st := range steps {
				status, message := "", ""
				if st.HasResult {
					status = strconv.FormatUint(st.Status, 10)
					message = shorten(st.Message, 48)
				}
				if st.Failure != "" {
					status = failText(status)
				}
				table.Append([]string{
					strconv.FormatUint(st.Seq, 10),
					st.Scenario,
					strconv.Itoa(st.Index),
					st.Kind,
					st.ID,
					status,
					message,
				})
			}
			table.Render()
			return nil
		},
	}
	show.Flags().StringVar(&stepID, "step", "", "show the step with this id in full")

	var keep int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openTraces(false)
			if err != nil {
				return err
			}
			defer store.Close()
			n, err := store.Prune(keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pruned %d runs\n", n)
			return nil
		},
	}
	prune.Flags().IntVar(&keep, "keep", 10, "runs to keep")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show trace store counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openTraces(true)
			if err != nil {
				return err
			}
			defer store.Close()
			s, err := store.GetStats()
			if err != nil {
				return err
			}
			table := newTable(cmd.OutOrStdout(), "Field", "Value")
			table.AppendBulk([][]string{
				{"runs recorded", strconv.FormatUint(s.RunCount, 10)},
				{"steps recorded", strconv.FormatUint(s.StepCount, 10)},
				{"database size", strconv.FormatInt(s.DatabaseSize, 10)},
			})
			table.Render()
			return nil
		},
	}

	cmd.AddCommand(list, show, prune, stats)
	return cmd
}

func printStep(w io.Writer, st *tracestore.Step) {
	fmt.Fprintf(w, "step %d (%s %s) of %s\n", st.Index, st.Kind, st.ID, st.Scenario)
	if !st.NewAddress.IsZero() {
		fmt.Fprintf(w, "  new address: %s\n", st.NewAddress)
	}
	if st.HasResult {
		fmt.Fprintf(w, "  status: %d %q\n", st.Status, st.Message)
		fmt.Fprintf(w, "  gas remaining: %d\n", st.GasRemaining)
		for i, v := range st.Values {
			fmt.Fprintf(w, "  out[%d]: 0x%s\n", i, hex.EncodeToString(v))
		}
		for i, l := range st.Logs {
			fmt.Fprintf(w, "  log[%d]: %s %s data 0x%s\n", i, l.Address, l.Endpoint, hex.EncodeToString(l.Data))
			for j, t := range l.Topics {
				fmt.Fprintf(w, "    topic[%d]: 0x%s\n", j, hex.EncodeToString(t))
			}
		}
	}
	if st.Failure != "" {
		fmt.Fprintf(w, "  %s %s\n", failText("FAIL"), st.Failure)
	}
}
