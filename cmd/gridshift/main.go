// Command gridshift queries and builds grid shift datasets.
//
// Usage:
//
//	gridshift shift <easting> <northing> [--json]
//	gridshift transform <easting> <northing> [--json]
//	gridshift node <col> <row>
//	gridshift info
//	gridshift verify [--workers N]
//	gridshift build (--csv FILE | --sqlite FILE) --out FILE
//
// Examples:
//
//	gridshift shift 651000 313000
//	gridshift shift --json 651500 313250
//	gridshift transform 651234.5 313177.25
//	gridshift --dataset OSTN15.gsb info
//	gridshift build --csv OSTN15_OSGM15_DataFile.txt --out OSTN15.gsb
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/geal-ai/gridshift"
	"github.com/geal-ai/gridshift/internal/config"
)

// options holds the global flags and the state PersistentPreRunE sets up.
type options struct {
	configPath string
	dataset    string
	verbose    bool

	cfg *config.Config
	log *zap.Logger
}

func newRootCmd(o *options) *cobra.Command {
	root := &cobra.Command{
		Use:   "gridshift",
		Short: "Look up datum shifts on a grid shift dataset",
		Long: `gridshift answers coordinate shift queries against a grid shift dataset
(OSTN15-style: per-node easting, northing and height shifts on a regular grid,
bilinearly interpolated between nodes).

Without --dataset the bundled demonstration dataset is used: a patch of the
1 km national grid around (651000, 313000).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(o.configPath)
			if err != nil {
				return err
			}
			if o.dataset != "" {
				cfg.Dataset = o.dataset
			}
			o.cfg = cfg
			if o.log != nil {
				return nil
			}
			o.log, err = newLogger(cfg, o.verbose)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if o.log != nil {
				_ = o.log.Sync()
			}
		},
	}
	root.PersistentFlags().StringVarP(&o.configPath, "config", "c", "gridshift.yaml", "Config file (missing is fine)")
	root.PersistentFlags().StringVarP(&o.dataset, "dataset", "d", "", "Dataset blob (or set GRIDSHIFT_DATASET; default: bundled demo)")
	root.PersistentFlags().BoolVarP(&o.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newShiftCmd(o),
		newTransformCmd(o),
		newNodeCmd(o),
		newInfoCmd(o),
		newVerifyCmd(o),
		newBuildCmd(o),
	)
	return root
}

func newLogger(cfg *config.Config, verbose bool) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Encoding = cfg.Logging.Format
	if zc.Encoding == "console" {
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	level, err := cfg.ZapLevel()
	if err != nil {
		return nil, err
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	log, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return log, nil
}

// loadEngine opens the configured dataset, or the bundled one.
func loadEngine(o *options) (*gridshift.Engine, error) {
	if o.cfg.Dataset == "" {
		o.log.Debug("using bundled dataset")
		return gridshift.NewLazy(gridshift.DemoDataset(), gridshift.WithLogger(o.log)).Engine()
	}
	blob, err := os.ReadFile(o.cfg.Dataset)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return gridshift.Load(blob, gridshift.WithLogger(o.log))
}

// exitCode maps command errors to process exit codes: 3 for a query outside
// coverage, 1 otherwise.
func exitCode(err error) int {
	if errors.Is(err, gridshift.ErrOutsideCoverage) {
		return 3
	}
	return 1
}

func main() {
	if err := newRootCmd(&options{}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}
