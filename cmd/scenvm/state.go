package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/fortiblox/X1-Scenario/pkg/scenario"
	"github.com/fortiblox/X1-Scenario/pkg/snapshot"
	"github.com/fortiblox/X1-Scenario/pkg/world"
)

var errNoSavedWorld = errors.New("no saved world; run a scenario with --save-state first")

func (a *app) openWorld(mustExist bool) (*world.BadgerStore, error) {
	if mustExist {
		if _, err := os.Stat(a.statePath()); os.IsNotExist(err) {
			return nil, errNoSavedWorld
		}
	}
	return world.NewBadgerStore(world.DefaultBadgerStoreConfig(a.statePath()))
}

func (a *app) loadWorld() (*world.State, error) {
	store, err := a.openWorld(true)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.LoadState()
}

func (a *app) saveWorld(s *world.State) error {
	store, err := a.openWorld(false)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.SaveState(s)
}

func newStateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or replace the persisted world",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "List the accounts of the persisted world",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadWorld()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			table := newTable(w, "Address", "Nonce", "Balance", "Tokens", "Storage", "Code", "Owner")
			for _, addr := range s.Addresses() {
				acc := s.Account(addr)
				code, owner := "", ""
				if acc.HasCode() {
					code = strconv.Itoa(len(acc.Code)) + " bytes"
					owner = acc.Owner.String()
				}
				table.Append([]string{
					addr.String(),
					strconv.FormatUint(acc.Nonce, 10),
					acc.Balance.String(),
					strconv.Itoa(len(acc.TokenIDs())),
					strconv.Itoa(len(acc.StorageKeys())),
					code,
					owner,
				})
			}
			table.Render()
			fmt.Fprintf(w, "block: nonce %d, round %d, epoch %d, timestamp %d\n",
				s.CurrentBlock.Nonce, s.CurrentBlock.Round, s.CurrentBlock.Epoch, s.CurrentBlock.Timestamp)
			fmt.Fprintf(w, "state hash: %s\n", world.ComputeStateHash(s).Hex())
			return nil
		},
	}

	dump := &cobra.Command{
		Use:   "dump",
		Short: "Print the persisted world as a setState scenario",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.loadWorld()
			if err != nil {
				return err
			}
			data, err := scenario.MarshalState("state", s)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		},
	}

	importCmd := &cobra.Command{
		Use:   "import <snapshot|scenario>",
		Short: "Replace the persisted world with a snapshot or a setState-only scenario",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := readWorld(args[0])
			if err != nil {
				return err
			}
			if err := a.saveWorld(s); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d accounts\n", s.Len())
			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Replace the persisted world with an empty one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.saveWorld(world.NewState())
		},
	}

	cmd.AddCommand(show, dump, importCmd, clearCmd)
	return cmd
}

// readWorld loads a snapshot archive, or failing the snapshot name format,
// a scenario holding only setState steps.
func readWorld(path string) (*world.State, error) {
	if _, err := snapshot.GetSnapshotInfo(path); err == nil {
		snap, err := snapshot.Load(path)
		if err != nil {
			return nil, err
		}
		return snap.State, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read world file")
	}
	return scenario.LoadState(data)
}
