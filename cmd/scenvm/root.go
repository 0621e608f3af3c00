package main

import (
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/fortiblox/X1-Scenario/internal/logging"
)

// Configuration keys. Each is settable from scenvm.yaml, a SCENVM_ variable
// (dots become underscores) or the matching flag.
const (
	keyDataDir      = "data-dir"
	keyLogLevel     = "log.level"
	keyLogFormat    = "log.format"
	keyLogFile      = "log.file"
	keyJobs         = "run.jobs"
	keyAllowMissing = "run.allow-missing"
	keyGasSchedule  = "run.gas-schedule"
	keyTrace        = "run.trace"
	keyDump         = "run.dump"
	keyCompress     = "snapshot.compress"
	keyRetainRuns   = "trace.retain"
	keyNoColor      = "no-color"
)

// app carries what every sub-command needs once the root has parsed its
// configuration.
type app struct {
	v      *viper.Viper
	logger *zap.Logger
}

func (a *app) dataPath(elem ...string) string {
	return filepath.Join(append([]string{a.v.GetString(keyDataDir)}, elem...)...)
}

func (a *app) statePath() string {
	return a.dataPath("state")
}

func (a *app) tracePath() string {
	return a.dataPath("traces.db")
}

func (a *app) snapshotDir() string {
	return a.dataPath("snapshots")
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), logger: zap.NewNop()}
	var configFile string

	root := &cobra.Command{
		Use:           "scenvm",
		Short:         "Run contract scenarios against the off-chain VM",
		Version:       Version + " (" + GitCommit + ")",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(configFile); err != nil {
				return err
			}
			lc := logging.DefaultConfig()
			lc.Level = a.v.GetString(keyLogLevel)
			lc.Format = a.v.GetString(keyLogFormat)
			lc.File = a.v.GetString(keyLogFile)
			logger, err := logging.New(lc)
			if err != nil {
				return err
			}
			a.logger = logger
			if a.v.GetBool(keyNoColor) {
				color.NoColor = true
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.logger.Sync()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "config file (default: ./scenvm.yaml, then $HOME/.scenvm/scenvm.yaml)")
	pf.String(keyDataDir, ".scenvm", "directory for the persisted world, traces and snapshots")
	pf.String("log-level", "warn", "log level: debug, info, warn, error")
	pf.String("log-format", "console", "log format: console or json")
	pf.String("log-file", "", "also write JSON logs to this rotated file")
	pf.Bool(keyNoColor, false, "disable colored output")
	bindFlags(a.v, pf, map[string]string{
		keyDataDir:   keyDataDir,
		keyLogLevel:  "log-level",
		keyLogFormat: "log-format",
		keyLogFile:   "log-file",
		keyNoColor:   keyNoColor,
	})

	root.AddCommand(
		newRunCmd(a),
		newStateCmd(a),
		newTraceCmd(a),
		newSnapshotCmd(a),
	)
	return root
}

// bindFlags binds configuration keys to flag names of fs.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if f := fs.Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

func (a *app) loadConfig(file string) error {
	v := a.v
	v.SetEnvPrefix("SCENVM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "read config %s", file)
		}
		return nil
	}
	v.SetConfigName("scenvm")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.scenvm")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errors.Wrap(err, "read config")
		}
	}
	return nil
}
