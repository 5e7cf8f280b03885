package main

import (
	"math"
	"os"
	"sync/atomic"

	"github.com/geal-ai/gridshift"
)

const (
	statusOK        = 0
	statusOutside   = 1
	statusNoDataset = -1
)

// active is the engine behind the exported functions. nil means the bundled
// dataset, loaded on first use.
var active atomic.Pointer[gridshift.Engine]

func engine() (*gridshift.Engine, error) {
	if e := active.Load(); e != nil {
		return e, nil
	}
	return gridshift.Default()
}

func openFile(path string) error {
	blob, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	e, err := gridshift.Load(blob)
	if err != nil {
		return err
	}
	active.Store(e)
	return nil
}

func nanAdjustment() gridshift.AdjustmentResult {
	nan := math.NaN()
	return gridshift.AdjustmentResult{XShift: nan, YShift: nan, ZShift: nan}
}

// shiftsAtNode answers a query in node units.
func shiftsAtNode(col, row int32) gridshift.AdjustmentResult {
	e, err := engine()
	if err != nil {
		return nanAdjustment()
	}
	k := gridshift.CellKey{Col: col, Row: row}
	if !e.Grid().Contains(k) {
		return nanAdjustment()
	}
	return e.ShiftAtFFI(e.Grid().NodeReference(k))
}

func shiftAt(easting, northing int32) (gridshift.AdjustmentResult, int) {
	e, err := engine()
	if err != nil {
		return gridshift.AdjustmentResult{}, statusNoDataset
	}
	r, err := e.ShiftAt(gridshift.GridReference{Easting: easting, Northing: northing})
	if err != nil {
		return gridshift.AdjustmentResult{}, statusOutside
	}
	return r, statusOK
}
