package gridshift

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// The demo dataset covers columns 640..662 and rows 300..326 of the 1 km
// national grid, minus a hole at columns 655-656, rows 320-321. Values are
// linear in (col, row) and exact to the millimetre.
const (
	demoColLo, demoColHi = 640, 662
	demoRowLo, demoRowHi = 300, 326
	demoNodeCount        = 617
)

var demoBuildID = uuid.MustParse("5b0e3f2a-9c41-4d7e-8a63-2f1d0c9b7e14")

func inDemoHole(c, r int32) bool {
	return (c == 655 || c == 656) && (r == 320 || r == 321)
}

func demoHas(k CellKey) bool {
	return k.Col >= demoColLo && k.Col <= demoColHi &&
		k.Row >= demoRowLo && k.Row <= demoRowHi &&
		!inDemoHole(k.Col, k.Row)
}

// demoField evaluates the linear field the demo values are sampled from, in
// metres, at fractional grid position (c, r).
func demoField(c, r float64) ShiftVector {
	return ShiftVector{
		DX: (102787 + 13*(c-651) - 4*(r-313)) / 1000,
		DY: (-78242 + 2*(c-651) + 9*(r-313)) / 1000,
		DZ: (44236 - 7*(c-651) + 5*(r-313)) / 1000,
	}
}

// demoVec is the stored value at node (c, r), computed from integer
// millimetres so it matches a decimal parse bit for bit.
func demoVec(c, r int32) ShiftVector {
	dc, dr := int64(c-651), int64(r-313)
	return ShiftVector{
		DX: float64(102787+13*dc-4*dr) / 1000,
		DY: float64(-78242+2*dc+9*dr) / 1000,
		DZ: float64(44236-7*dc+5*dr) / 1000,
	}
}

// demoNodes lists the demo nodes in point id order.
func demoNodes() []Node {
	var nodes []Node
	for r := int32(demoRowLo); r <= demoRowHi; r++ {
		for c := int32(demoColLo); c <= demoColHi; c++ {
			if inDemoHole(c, r) {
				continue
			}
			nodes = append(nodes, Node{Key: CellKey{Col: c, Row: r}, Shift: demoVec(c, r)})
		}
	}
	return nodes
}

func mustDefault(t testing.TB) *Engine {
	t.Helper()
	e, err := Default()
	require.NoError(t, err)
	return e
}

func TestDefaultInfo(t *testing.T) {
	e := mustDefault(t)
	want := Info{
		Name:          "OSTN15 demo patch",
		BuildID:       demoBuildID,
		FormatVersion: FormatVersion,
		Nodes:         demoNodeCount,
		Buckets:       155,
		Template:      templateSimple,
		DecimalScale:  3,
	}
	if diff := cmp.Diff(want, e.Info()); diff != "" {
		t.Errorf("Info() mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, nationalGrid, e.Grid())
	assert.Equal(t, demoNodeCount, e.Index().Len())
}

func TestShiftAtSampleNode(t *testing.T) {
	e := mustDefault(t)
	got, err := e.ShiftAt(GridReference{Easting: 651000, Northing: 313000})
	require.NoError(t, err)
	assert.Equal(t, AdjustmentResult{XShift: 102.787, YShift: -78.242, ZShift: 44.236}, got)
}

// TestShiftAtEveryNodeExact verifies a query on a node returns the stored
// value unchanged.
func TestShiftAtEveryNodeExact(t *testing.T) {
	e := mustDefault(t)
	for _, nd := range demoNodes() {
		got, err := e.ShiftAt(nationalGrid.NodeReference(nd.Key))
		require.NoError(t, err, "node %+v", nd.Key)
		want := AdjustmentResult{XShift: nd.Shift.DX, YShift: nd.Shift.DY, ZShift: nd.Shift.DZ}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("node %+v (-want +got):\n%s", nd.Key, diff)
		}
	}
}

// TestShiftAtSweep walks a 250 m lattice across and beyond the demo patch and
// checks coverage against the weighted-corner rule and values against the
// underlying linear field.
func TestShiftAtSweep(t *testing.T) {
	e := mustDefault(t)
	const step = 250
	for n := int32(demoRowLo-1) * 1000; n <= (demoRowHi+1)*1000; n += step {
		for east := int32(demoColLo-1) * 1000; east <= (demoColHi+1)*1000; east += step {
			k, tx, ty := nationalGrid.Locate(GridReference{Easting: east, Northing: n})
			covered := demoHas(k) &&
				(tx == 0 || demoHas(CellKey{k.Col + 1, k.Row})) &&
				(ty == 0 || demoHas(CellKey{k.Col, k.Row + 1})) &&
				(tx == 0 || ty == 0 || demoHas(CellKey{k.Col + 1, k.Row + 1}))

			got, err := e.ShiftAt(GridReference{Easting: east, Northing: n})
			if !covered {
				require.ErrorIs(t, err, ErrOutsideCoverage, "(%d, %d)", east, n)
				continue
			}
			require.NoError(t, err, "(%d, %d)", east, n)
			want := demoField(float64(east)/1000, float64(n)/1000)
			assert.InDelta(t, want.DX, got.XShift, 1e-9, "dx at (%d, %d)", east, n)
			assert.InDelta(t, want.DY, got.YShift, 1e-9, "dy at (%d, %d)", east, n)
			assert.InDelta(t, want.DZ, got.ZShift, 1e-9, "dz at (%d, %d)", east, n)
		}
	}
}

func TestShiftAtInterpolated(t *testing.T) {
	e := mustDefault(t)
	got, err := e.ShiftAt(GridReference{Easting: 651500, Northing: 313250})
	require.NoError(t, err)
	assert.InDelta(t, (102787+6.5-1)/1000, got.XShift, 1e-9)
	assert.InDelta(t, (-78242+1+2.25)/1000, got.YShift, 1e-9)
	assert.InDelta(t, (44236-3.5+1.25)/1000, got.ZShift, 1e-9)
}

// TestShiftAtLastNode verifies a query exactly on the north-east node of the
// patch succeeds even though the cell beyond it has no nodes.
func TestShiftAtLastNode(t *testing.T) {
	e := mustDefault(t)
	got, err := e.ShiftAt(GridReference{Easting: 662000, Northing: 326000})
	require.NoError(t, err)
	assert.Equal(t, AdjustmentResult{XShift: 102.878, YShift: -78.103, ZShift: 44.224}, got)
}

func TestShiftAtOutsideCoverage(t *testing.T) {
	e := mustDefault(t)
	cases := []struct {
		name    string
		ref     GridReference
		missing CellKey
	}{
		{"east of patch", GridReference{663000, 326000}, CellKey{663, 326}},
		{"between last column and beyond", GridReference{662500, 326000}, CellKey{663, 326}},
		{"north of last row", GridReference{662000, 326500}, CellKey{662, 327}},
		{"hole node", GridReference{655000, 320000}, CellKey{655, 320}},
		{"cell touching hole", GridReference{654500, 319500}, CellKey{655, 320}},
		{"grid origin", GridReference{0, 0}, CellKey{0, 0}},
		{"west of grid", GridReference{-1, 313000}, CellKey{-1, 313}},
		{"far outside", GridReference{math.MaxInt32, math.MinInt32}, CellKey{Col: 2147483, Row: -2147484}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.ShiftAt(tc.ref)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrOutsideCoverage)
			var ce *CoverageError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.ref, ce.Ref)
			assert.Equal(t, tc.missing, ce.Missing)
		})
	}
}

func TestShiftAtIdempotent(t *testing.T) {
	e := mustDefault(t)
	refs := []GridReference{{651000, 313000}, {651500, 313250}, {663000, 326000}}
	for _, ref := range refs {
		r1, err1 := e.ShiftAt(ref)
		r2, err2 := e.ShiftAt(ref)
		assert.Equal(t, r1, r2)
		assert.Equal(t, err1, err2)
	}
}

func TestShiftAtFFI(t *testing.T) {
	e := mustDefault(t)
	got := e.ShiftAtFFI(GridReference{651000, 313000})
	assert.Equal(t, AdjustmentResult{XShift: 102.787, YShift: -78.242, ZShift: 44.236}, got)

	miss := e.ShiftAtFFI(GridReference{0, 0})
	assert.True(t, math.IsNaN(miss.XShift))
	assert.True(t, math.IsNaN(miss.YShift))
	assert.True(t, math.IsNaN(miss.ZShift))
}

func TestShiftAtCoord(t *testing.T) {
	e := mustDefault(t)
	got, err := e.ShiftAtCoord(651000, 313000)
	require.NoError(t, err)
	assert.Equal(t, AdjustmentResult{XShift: 102.787, YShift: -78.242, ZShift: 44.236}, got)

	got, err = e.ShiftAtCoord(651500.5, 313250.25)
	require.NoError(t, err)
	want := demoField(651.5005, 313.25025)
	assert.InDelta(t, want.DX, got.XShift, 1e-9)
	assert.InDelta(t, want.DY, got.YShift, 1e-9)
	assert.InDelta(t, want.DZ, got.ZShift, 1e-9)

	for _, p := range [][2]float64{
		{math.NaN(), 313000}, {651000, math.Inf(1)}, {math.Inf(-1), 0}, {1e300, 313000},
	} {
		_, err := e.ShiftAtCoord(p[0], p[1])
		assert.ErrorIs(t, err, ErrOutsideCoverage, "(%v, %v)", p[0], p[1])
	}
}

func TestTransform(t *testing.T) {
	e := mustDefault(t)
	got, err := e.Transform(651000, 313000)
	require.NoError(t, err)
	assert.InDelta(t, 651102.787, got.Easting, 1e-6)
	assert.InDelta(t, 312921.758, got.Northing, 1e-6)
	assert.Equal(t, 44.236, got.Height)

	_, err = e.Transform(100, 100)
	assert.ErrorIs(t, err, ErrOutsideCoverage)
}

func TestNodeAndLookupPointID(t *testing.T) {
	e := mustDefault(t)
	v, ok := e.Node(CellKey{651, 313})
	require.True(t, ok)
	assert.Equal(t, demoVec(651, 313), v)

	v, ok = e.LookupPointID(220065)
	require.True(t, ok)
	assert.Equal(t, demoVec(651, 313), v)

	for _, id := range []int32{0, -5, 1, 876951, 876952, math.MaxInt32} {
		_, ok := e.LookupPointID(id)
		assert.False(t, ok, "LookupPointID(%d)", id)
	}
	for _, k := range []CellKey{{0, 0}, {700, 1250}, {655, 320}, {656, 321}, {639, 300}, {663, 326}, {640, 299}, {640, 327}, {-1, 0}, {701, 0}} {
		_, ok := e.Node(k)
		assert.False(t, ok, "Node(%+v)", k)
	}
}

func TestNodes(t *testing.T) {
	e := mustDefault(t)
	got := map[CellKey]ShiftVector{}
	e.Nodes(func(k CellKey, v ShiftVector) bool {
		got[k] = v
		return true
	})
	want := map[CellKey]ShiftVector{}
	for _, nd := range demoNodes() {
		want[nd.Key] = nd.Shift
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Nodes() mismatch (-want +got):\n%s", diff)
	}

	calls := 0
	e.Nodes(func(CellKey, ShiftVector) bool {
		calls++
		return calls < 3
	})
	assert.Equal(t, 3, calls)
}

func TestVerify(t *testing.T) {
	e := mustDefault(t)
	for _, w := range []int{0, 1, 3, 64, 1000} {
		assert.NoError(t, e.Verify(context.Background(), w), "workers=%d", w)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, e.Verify(ctx, 1), context.Canceled)
}

// TestConcurrentQueries verifies queries from many goroutines see the same
// results as sequential ones.
func TestConcurrentQueries(t *testing.T) {
	e := mustDefault(t)
	rng := rand.New(rand.NewSource(1))
	refs := make([]GridReference, 2000)
	for i := range refs {
		refs[i] = GridReference{
			Easting:  int32(639000 + rng.Intn(25000)),
			Northing: int32(299000 + rng.Intn(29000)),
		}
	}
	type result struct {
		r  AdjustmentResult
		ok bool
	}
	want := make([]result, len(refs))
	for i, ref := range refs {
		r, err := e.ShiftAt(ref)
		want[i] = result{r, err == nil}
	}

	const goroutines = 16
	got := make([][]result, goroutines)
	var g errgroup.Group
	for w := 0; w < goroutines; w++ {
		got[w] = make([]result, len(refs))
		g.Go(func() error {
			for i := range refs {
				// Walk in a different order per goroutine.
				j := (i*7 + w*131) % len(refs)
				r, err := e.ShiftAt(refs[j])
				if err != nil && !errors.Is(err, ErrOutsideCoverage) {
					return err
				}
				got[w][j] = result{r, err == nil}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	for w := range got {
		if diff := cmp.Diff(want, got[w], cmp.AllowUnexported(result{})); diff != "" {
			t.Fatalf("goroutine %d mismatch (-want +got):\n%s", w, diff)
		}
	}
}
