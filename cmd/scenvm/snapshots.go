package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/fortiblox/X1-Scenario/pkg/scenario"
	"github.com/fortiblox/X1-Scenario/pkg/snapshot"
)

func newSnapshotCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect worlds written by dumpState steps (run --dump)",
	}

	list := &cobra.Command{
		Use:   "list [dir]",
		Short: "List snapshots, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := a.snapshotDir()
			if len(args) == 1 {
				dir = args[0]
			}
			snapshots, err := snapshot.FindSnapshots(dir)
			if err != nil {
				return err
			}
			table := newTable(cmd.OutOrStdout(), "Seq", "Hash", "Compressed", "Size", "Path")
			for _, s := range snapshots {
				table.Append([]string{
					strconv.FormatUint(s.Sequence, 10),
					s.Hash,
					strconv.FormatBool(s.IsCompressed),
					strconv.FormatInt(s.Size, 10),
					s.Path,
				})
			}
			table.Render()
			return nil
		},
	}

	var asScenario bool
	show := &cobra.Command{
		Use:   "show [path]",
		Short: "Verify a snapshot and print its manifest, or its world with --scenario",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			} else {
				latest, err := snapshot.FindLatestSnapshot(a.snapshotDir())
				if err != nil {
					return err
				}
				path = latest.Path
			}
			snap, err := snapshot.Load(path)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if asScenario {
				data, err := scenario.MarshalState(snap.Manifest.Scenario, snap.State)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(w, string(data))
				return err
			}
			m := snap.Manifest
			table := newTable(w, "Field", "Value")
			table.AppendBulk([][]string{
				{"path", path},
				{"scenario", m.Scenario},
				{"sequence", strconv.FormatUint(m.Sequence, 10)},
				{"created", m.Created.Local().Format(time.RFC3339)},
				{"accounts", strconv.Itoa(m.Accounts)},
				{"state hash", m.StateHash},
				{"verified", verdict(true)},
			})
			table.Render()
			return nil
		},
	}
	show.Flags().BoolVar(&asScenario, "scenario", false, "print the world as a setState scenario")

	cmd.AddCommand(list, show)
	return cmd
}
