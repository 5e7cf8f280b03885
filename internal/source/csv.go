// Package source reads grid shift nodes from the formats national mapping
// agencies distribute them in, for feeding gridshift.Build.
package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"go.uber.org/multierr"

	"github.com/geal-ai/gridshift"
)

// maxRowErrors stops ReadCSV from collecting errors for a file that is not a
// shift grid at all.
const maxRowErrors = 20

// ReadCSV reads the OSTN15 data file layout:
//
//	Point_ID,ETRS89_Easting,ETRS89_Northing,EShift,NShift,GeoidHeight[,Height_Datum_Flag]
//
// An optional header line is skipped. Eastings and northings must fall on grid
// nodes and agree with Point_ID. Row errors are collected and returned
// together.
func ReadCSV(r io.Reader, grid gridshift.GridDefinition) ([]gridshift.Node, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true
	cr.TrimLeadingSpace = true

	var nodes []gridshift.Node
	var errs error
	nerr := 0
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
		if line == 1 && isHeader(rec) {
			continue
		}
		nd, err := parseRecord(rec, grid)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("line %d: %w", line, err))
			if nerr++; nerr >= maxRowErrors {
				return nil, multierr.Append(errs, fmt.Errorf("csv: giving up after %d bad rows", nerr))
			}
			continue
		}
		nodes = append(nodes, nd)
	}
	if errs != nil {
		return nil, errs
	}
	return nodes, nil
}

func isHeader(rec []string) bool {
	if len(rec) == 0 {
		return false
	}
	_, err := strconv.ParseInt(strings.TrimSpace(rec[0]), 10, 64)
	return err != nil
}

func parseRecord(rec []string, grid gridshift.GridDefinition) (gridshift.Node, error) {
	if len(rec) < 6 {
		return gridshift.Node{}, fmt.Errorf("need at least 6 fields, got %d", len(rec))
	}
	var f [6]float64
	for i := range f {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
		if err != nil {
			return gridshift.Node{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		f[i] = v
	}
	k, err := nodeAt(grid, f[1], f[2])
	if err != nil {
		return gridshift.Node{}, err
	}
	if want := grid.PointID(k); f[0] != float64(want) {
		return gridshift.Node{}, fmt.Errorf("Point_ID %v does not match node (%d, %d) (want %d)", f[0], k.Col, k.Row, want)
	}
	return gridshift.Node{
		Key:   k,
		Shift: gridshift.ShiftVector{DX: f[3], DY: f[4], DZ: f[5]},
	}, nil
}

// nodeAt maps an exact node position to its key.
func nodeAt(grid gridshift.GridDefinition, e, n float64) (gridshift.CellKey, error) {
	s := float64(grid.Spacing)
	ce := (e - float64(grid.OriginEasting)) / s
	cn := (n - float64(grid.OriginNorthing)) / s
	if ce != math.Trunc(ce) || cn != math.Trunc(cn) {
		return gridshift.CellKey{}, fmt.Errorf("(%v, %v) is not a grid node", e, n)
	}
	k := gridshift.CellKey{Col: int32(ce), Row: int32(cn)}
	if ce < 0 || cn < 0 || ce > math.MaxInt32 || cn > math.MaxInt32 || !grid.Contains(k) {
		return gridshift.CellKey{}, fmt.Errorf("(%v, %v) outside %dx%d grid", e, n, grid.Cols, grid.Rows)
	}
	return k, nil
}
