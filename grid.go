// Package gridshift looks up datum shift vectors on a regular grid (OSTN15-style
// transformation grids). A dataset is an immutable binary blob holding a minimal
// perfect hash over the grid nodes and one shift vector per node; queries between
// nodes are bilinearly interpolated.
package gridshift

import "math"

// GridReference is a query point in the dataset's base unit (metres for the
// national grid datasets).
type GridReference struct {
	Easting  int32
	Northing int32
}

// CellKey identifies a grid node by column and row.
type CellKey struct {
	Col, Row int32
}

// ShiftVector is the adjustment stored at a grid node.
type ShiftVector struct {
	DX, DY, DZ float64
}

// AdjustmentResult is the interpolated adjustment for a GridReference.
// The layout is three plain float64s so it can cross a C boundary by value.
type AdjustmentResult struct {
	XShift float64
	YShift float64
	ZShift float64
}

// Node pairs a grid node with its shift vector. Used when building datasets.
type Node struct {
	Key   CellKey
	Shift ShiftVector
}

// GridDefinition describes the lattice a dataset is defined on.
// Node (c, r) sits at (OriginEasting + c*Spacing, OriginNorthing + r*Spacing).
type GridDefinition struct {
	OriginEasting  int32
	OriginNorthing int32
	Spacing        int32 // base units between adjacent nodes, > 0
	Cols, Rows     uint32
}

// Contains reports whether k lies on the lattice.
func (g GridDefinition) Contains(k CellKey) bool {
	return k.Col >= 0 && k.Row >= 0 && uint32(k.Col) < g.Cols && uint32(k.Row) < g.Rows
}

// PointID returns the 1-based point id of k (col + row*cols + 1), the numbering
// used by the OSTN15 data files. Only meaningful when g.Contains(k).
func (g GridDefinition) PointID(k CellKey) uint32 {
	return uint32(k.Col) + uint32(k.Row)*g.Cols + 1
}

// KeyOf inverts PointID. ok is false for ids outside the lattice.
func (g GridDefinition) KeyOf(id uint32) (k CellKey, ok bool) {
	if id == 0 || g.Cols == 0 {
		return CellKey{}, false
	}
	z := uint64(id - 1)
	if z >= uint64(g.Cols)*uint64(g.Rows) {
		return CellKey{}, false
	}
	return CellKey{Col: int32(z % uint64(g.Cols)), Row: int32(z / uint64(g.Cols))}, true
}

// NodeReference returns the grid reference of node k.
func (g GridDefinition) NodeReference(k CellKey) GridReference {
	return GridReference{
		Easting:  int32(int64(g.OriginEasting) + int64(k.Col)*int64(g.Spacing)),
		Northing: int32(int64(g.OriginNorthing) + int64(k.Row)*int64(g.Spacing)),
	}
}

// Locate maps ref to the lower-left node of its enclosing cell and the
// fractional offsets inside that cell, each in [0, 1).
// Offsets west or south of the origin floor to negative keys.
func (g GridDefinition) Locate(ref GridReference) (k CellKey, tx, ty float64) {
	s := int64(g.Spacing)
	col, remE := floorDiv(int64(ref.Easting)-int64(g.OriginEasting), s)
	row, remN := floorDiv(int64(ref.Northing)-int64(g.OriginNorthing), s)
	return CellKey{Col: clamp32(col), Row: clamp32(row)},
		float64(remE) / float64(s), float64(remN) / float64(s)
}

// locateCoord is Locate for continuous coordinates. e and n must be finite.
func (g GridDefinition) locateCoord(e, n float64) (k CellKey, tx, ty float64) {
	s := float64(g.Spacing)
	fe := (e - float64(g.OriginEasting)) / s
	fn := (n - float64(g.OriginNorthing)) / s
	ce, cn := math.Floor(fe), math.Floor(fn)
	return CellKey{Col: clampFloat(ce), Row: clampFloat(cn)}, fe - ce, fn - cn
}

// floorDiv returns q, r with a = q*b + r and 0 <= r < b (b > 0).
func floorDiv(a, b int64) (q, r int64) {
	q, r = a/b, a%b
	if r < 0 {
		q--
		r += b
	}
	return q, r
}

// clamp32 saturates v to the int32 range. Saturated keys are never on a lattice
// of at most maxGridDim nodes per side.
func clamp32(v int64) int32 {
	switch {
	case v > 1<<31-1:
		return 1<<31 - 1
	case v < -1<<31:
		return -1 << 31
	}
	return int32(v)
}

func clampFloat(v float64) int32 {
	switch {
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	}
	return int32(v)
}
