package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/geal-ai/gridshift"
	"github.com/geal-ai/gridshift/internal/source"
)

func newInfoCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Describe the dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := loadEngine(o)
			if err != nil {
				return err
			}
			info, g := eng.Info(), eng.Grid()
			storage := "float64"
			if info.Template == 1 {
				storage = fmt.Sprintf("packed, %d decimal places", info.DecimalScale)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "\n")
			fmt.Fprintf(w, "  Name      : %s\n", info.Name)
			fmt.Fprintf(w, "  Build ID  : %s\n", info.BuildID)
			fmt.Fprintf(w, "  Format    : version %d\n", info.FormatVersion)
			fmt.Fprintf(w, "  Grid      : %dx%d nodes, %d spacing, origin (%d, %d)\n",
				g.Cols, g.Rows, g.Spacing, g.OriginEasting, g.OriginNorthing)
			fmt.Fprintf(w, "  Nodes     : %d (%d hash buckets)\n", info.Nodes, info.Buckets)
			fmt.Fprintf(w, "  Storage   : %s\n", storage)
			fmt.Fprintf(w, "\n")
			return nil
		},
	}
}

func newVerifyCmd(o *options) *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Re-check that every stored node resolves through the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("workers") {
				workers = o.cfg.Verify.Workers
			}
			eng, err := loadEngine(o)
			if err != nil {
				return err
			}
			start := time.Now()
			if err := eng.Verify(cmd.Context(), workers); err != nil {
				return fmt.Errorf("verify %q: %w", eng.Info().Name, err)
			}
			o.log.Debug("verify finished", zap.Duration("elapsed", time.Since(start)))
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d nodes verified\n", eng.Info().Nodes)
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "Parallel workers (0 = GOMAXPROCS)")
	return cmd
}

func newBuildCmd(o *options) *cobra.Command {
	var csvPath, sqlitePath, table, out, name string
	var scale int
	cmd := &cobra.Command{
		Use:   "build (--csv FILE | --sqlite FILE) --out FILE",
		Short: "Build a dataset blob from an OSTN15-style source",
		Long: `build reads grid nodes from an OSTN15 data file (CSV) or an OSTN15.db
style sqlite table, computes the perfect hash and writes a dataset blob.
The grid comes from the config file (default: 1 km spacing, 701x1251 nodes).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (csvPath == "") == (sqlitePath == "") {
				return fmt.Errorf("exactly one of --csv and --sqlite is required")
			}
			bc := o.cfg.Build
			if !cmd.Flags().Changed("table") {
				table = bc.Table
			}
			if !cmd.Flags().Changed("name") {
				name = bc.Name
			}
			if !cmd.Flags().Changed("scale") {
				scale = bc.DecimalScale
			}
			grid := bc.Grid.Definition()

			nodes, err := readNodes(cmd.Context(), csvPath, sqlitePath, table, grid)
			if err != nil {
				return err
			}
			o.log.Info("source read", zap.Int("nodes", len(nodes)))

			blob, err := gridshift.Build(grid, nodes, gridshift.BuildOptions{
				Name:         name,
				DecimalScale: scale,
				Logger:       o.log,
			})
			if err != nil {
				return err
			}
			eng, err := gridshift.Load(blob, gridshift.WithLogger(o.log))
			if err != nil {
				return fmt.Errorf("built dataset does not load: %w", err)
			}
			if err := os.WriteFile(out, blob, 0644); err != nil {
				return fmt.Errorf("write dataset: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s: %d nodes, %d bytes, build id %s\n",
				out, eng.Info().Nodes, len(blob), eng.Info().BuildID)
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "OSTN15 data file (Point_ID,ETRS89_Easting,ETRS89_Northing,EShift,NShift,GeoidHeight)")
	cmd.Flags().StringVar(&sqlitePath, "sqlite", "", "sqlite database with (key, eastings, northings, height) rows")
	cmd.Flags().StringVar(&table, "table", "ostn15", "sqlite table name")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output dataset file (required)")
	cmd.Flags().StringVar(&name, "name", "", "Dataset name stored in the blob")
	cmd.Flags().IntVar(&scale, "scale", 3, "Decimal places kept by packed storage")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func readNodes(ctx context.Context, csvPath, sqlitePath, table string, grid gridshift.GridDefinition) ([]gridshift.Node, error) {
	if sqlitePath != "" {
		return source.ReadSQLite(ctx, sqlitePath, table, grid)
	}
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	nodes, err := source.ReadCSV(f, grid)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", csvPath, err)
	}
	return nodes, nil
}
