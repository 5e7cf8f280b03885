package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/geal-ai/gridshift"
)

// jsonReference is the query point in JSON output.
type jsonReference struct {
	Easting  float64 `json:"easting"`
	Northing float64 `json:"northing"`
}

// jsonShift is an adjustment in JSON output.
type jsonShift struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// jsonTransformed is a shifted position in JSON output.
type jsonTransformed struct {
	Easting  float64 `json:"easting"`
	Northing float64 `json:"northing"`
	Height   float64 `json:"geoid_height"`
}

// jsonOutput is the top-level JSON response of shift and transform.
type jsonOutput struct {
	Reference   jsonReference    `json:"reference"`
	Dataset     string           `json:"dataset"`
	Shift       *jsonShift       `json:"shift,omitempty"`
	Transformed *jsonTransformed `json:"transformed,omitempty"`
	Error       string           `json:"error,omitempty"`
}

func newShiftCmd(o *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "shift <easting> <northing>",
		Short: "Interpolated shift at an integer grid reference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := parseInt32("easting", args[0])
			if err != nil {
				return err
			}
			n, err := parseInt32("northing", args[1])
			if err != nil {
				return err
			}
			eng, err := loadEngine(o)
			if err != nil {
				return err
			}
			ref := gridshift.GridReference{Easting: e, Northing: n}
			r, err := eng.ShiftAt(ref)
			out := jsonOutput{
				Reference: jsonReference{Easting: float64(e), Northing: float64(n)},
				Dataset:   eng.Info().Name,
			}
			if err != nil {
				if asJSON {
					out.Error = err.Error()
					if jerr := emitJSON(cmd.OutOrStdout(), out); jerr != nil {
						return jerr
					}
				}
				return err
			}
			if asJSON {
				out.Shift = &jsonShift{X: r.XShift, Y: r.YShift, Z: r.ZShift}
				return emitJSON(cmd.OutOrStdout(), out)
			}
			printShift(cmd.OutOrStdout(), float64(e), float64(n), eng.Info().Name, r)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output result as JSON")
	return cmd
}

func newTransformCmd(o *options) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "transform <easting> <northing>",
		Short: "Apply the interpolated shift to a position",
		Long: `transform adds the interpolated easting and northing shifts to a position
and reports the height shift. With OSTN15 data this maps ETRS89 eastings and
northings to OSGB36 and gives the geoid height.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return fmt.Errorf("invalid easting %q: %w", args[0], err)
			}
			n, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid northing %q: %w", args[1], err)
			}
			eng, err := loadEngine(o)
			if err != nil {
				return err
			}
			t, err := eng.Transform(e, n)
			out := jsonOutput{
				Reference: jsonReference{Easting: e, Northing: n},
				Dataset:   eng.Info().Name,
			}
			if err != nil {
				if asJSON {
					out.Error = err.Error()
					if jerr := emitJSON(cmd.OutOrStdout(), out); jerr != nil {
						return jerr
					}
				}
				return err
			}
			if asJSON {
				out.Transformed = &jsonTransformed{Easting: t.Easting, Northing: t.Northing, Height: t.Height}
				return emitJSON(cmd.OutOrStdout(), out)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "\n")
			fmt.Fprintf(w, "  Input     : %.3f E  %.3f N\n", e, n)
			fmt.Fprintf(w, "  Dataset   : %s\n", eng.Info().Name)
			fmt.Fprintf(w, "\n")
			fmt.Fprintf(w, "  Easting   : %.3f\n", t.Easting)
			fmt.Fprintf(w, "  Northing  : %.3f\n", t.Northing)
			fmt.Fprintf(w, "  Height    : %.3f m\n", t.Height)
			fmt.Fprintf(w, "\n")
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output result as JSON")
	return cmd
}

func newNodeCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "node <col> <row>",
		Short: "Stored shift vector of one grid node",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseInt32("col", args[0])
			if err != nil {
				return err
			}
			r, err := parseInt32("row", args[1])
			if err != nil {
				return err
			}
			eng, err := loadEngine(o)
			if err != nil {
				return err
			}
			k := gridshift.CellKey{Col: c, Row: r}
			v, ok := eng.Node(k)
			if !ok {
				return fmt.Errorf("node (%d, %d) is not defined by %q", c, r, eng.Info().Name)
			}
			g := eng.Grid()
			ref := g.NodeReference(k)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "\n")
			fmt.Fprintf(w, "  Node      : (%d, %d)  point id %d\n", c, r, g.PointID(k))
			fmt.Fprintf(w, "  Position  : %d E  %d N\n", ref.Easting, ref.Northing)
			fmt.Fprintf(w, "\n")
			fmt.Fprintf(w, "  X shift   : %.3f m\n", v.DX)
			fmt.Fprintf(w, "  Y shift   : %.3f m\n", v.DY)
			fmt.Fprintf(w, "  Z shift   : %.3f m\n", v.DZ)
			fmt.Fprintf(w, "\n")
			return nil
		},
	}
}

func parseInt32(name, s string) (int32, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", name, s, err)
	}
	return int32(v), nil
}

// emitJSON writes out as indented JSON.
func emitJSON(w io.Writer, out any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	return nil
}

// printShift displays an adjustment.
func printShift(w io.Writer, e, n float64, dataset string, r gridshift.AdjustmentResult) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  Reference : %.0f E  %.0f N\n", e, n)
	fmt.Fprintf(w, "  Dataset   : %s\n", dataset)
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "  X shift   : %.3f m\n", r.XShift)
	fmt.Fprintf(w, "  Y shift   : %.3f m\n", r.YShift)
	fmt.Fprintf(w, "  Z shift   : %.3f m\n", r.ZShift)
	fmt.Fprintf(w, "\n")
}
