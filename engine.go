package gridshift

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Engine answers shift queries against one loaded dataset. It is immutable
// after Load and safe for concurrent use without locking.
type Engine struct {
	grid  GridDefinition
	index *Index
	store *gridStore
	info  Info
}

// Info describes a loaded dataset.
type Info struct {
	Name          string
	BuildID       uuid.UUID
	FormatVersion int
	Nodes         int
	Buckets       int
	Template      int // 0 raw float64, 1 packed integers
	DecimalScale  int
}

// Option configures Load.
type Option func(*loadOptions)

type loadOptions struct {
	log *zap.Logger
}

// WithLogger makes Load report the dataset it loaded.
func WithLogger(l *zap.Logger) Option {
	return func(o *loadOptions) { o.log = l }
}

// Load decodes and validates a dataset blob. On any problem it returns a
// *DatasetLoadError and no engine. blob may be reused by the caller afterwards.
func Load(blob []byte, opts ...Option) (*Engine, error) {
	o := loadOptions{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	ds, err := decode(blob)
	if err != nil {
		o.log.Error("dataset rejected", zap.Int("bytes", len(blob)), zap.Error(err))
		return nil, err
	}
	e := &Engine{
		grid:  ds.grid,
		store: &ds.store,
		info: Info{
			Name:          ds.name,
			BuildID:       ds.buildID,
			FormatVersion: int(ds.version),
			Nodes:         ds.store.len(),
			Buckets:       len(ds.disp),
			Template:      ds.repr.template,
			DecimalScale:  ds.repr.decimalScale,
		},
	}
	e.index = ds.index()
	o.log.Info("dataset loaded",
		zap.String("name", ds.name),
		zap.String("build_id", ds.buildID.String()),
		zap.Int("nodes", e.info.Nodes),
		zap.Uint32("cols", ds.grid.Cols),
		zap.Uint32("rows", ds.grid.Rows),
		zap.Int32("spacing", ds.grid.Spacing))
	return e, nil
}

// Grid returns the lattice the dataset is defined on.
func (e *Engine) Grid() GridDefinition { return e.grid }

// Info returns the dataset description.
func (e *Engine) Info() Info { return e.info }

// Index returns the perfect hash index over the dataset's nodes.
func (e *Engine) Index() *Index { return e.index }

// ShiftAt returns the bilinearly interpolated adjustment at ref. The only
// error is a *CoverageError, returned when a corner node the interpolation
// needs is not defined by the dataset.
func (e *Engine) ShiftAt(ref GridReference) (AdjustmentResult, error) {
	k, tx, ty := e.grid.Locate(ref)
	v, missing, ok := e.interpolate(k, tx, ty)
	if !ok {
		return AdjustmentResult{}, &CoverageError{Ref: ref, Missing: missing}
	}
	return AdjustmentResult{XShift: v.DX, YShift: v.DY, ZShift: v.DZ}, nil
}

// ShiftAtFFI is ShiftAt with the C-library contract: a NaN triple when ref is
// outside coverage.
func (e *Engine) ShiftAtFFI(ref GridReference) AdjustmentResult {
	r, err := e.ShiftAt(ref)
	if err != nil {
		nan := math.NaN()
		return AdjustmentResult{XShift: nan, YShift: nan, ZShift: nan}
	}
	return r
}

// ShiftAtCoord interpolates at a continuous position in base units.
// The returned error's Ref is the position truncated toward zero.
func (e *Engine) ShiftAtCoord(easting, northing float64) (AdjustmentResult, error) {
	ref := GridReference{Easting: clampFloat(easting), Northing: clampFloat(northing)}
	if math.IsNaN(easting) || math.IsNaN(northing) || math.IsInf(easting, 0) || math.IsInf(northing, 0) {
		return AdjustmentResult{}, &CoverageError{Ref: ref, Missing: CellKey{Col: math.MinInt32, Row: math.MinInt32}}
	}
	k, tx, ty := e.grid.locateCoord(easting, northing)
	v, missing, ok := e.interpolate(k, tx, ty)
	if !ok {
		return AdjustmentResult{}, &CoverageError{Ref: ref, Missing: missing}
	}
	return AdjustmentResult{XShift: v.DX, YShift: v.DY, ZShift: v.DZ}, nil
}

// Transformed is a position after applying a dataset's shifts.
type Transformed struct {
	Easting  float64
	Northing float64
	Height   float64
}

// Transform applies the interpolated shift to (easting, northing): for
// OSTN15 this maps ETRS89 coordinates to OSGB36 ones, with Height the geoid
// separation.
func (e *Engine) Transform(easting, northing float64) (Transformed, error) {
	r, err := e.ShiftAtCoord(easting, northing)
	if err != nil {
		return Transformed{}, err
	}
	return Transformed{
		Easting:  easting + r.XShift,
		Northing: northing + r.YShift,
		Height:   r.ZShift,
	}, nil
}

// Node returns the vector stored at node k.
func (e *Engine) Node(k CellKey) (ShiftVector, bool) {
	slot, ok := e.index.Lookup(k)
	if !ok {
		return ShiftVector{}, false
	}
	return e.store.get(slot), true
}

// LookupPointID returns the vector stored under an OSTN-style point id
// (col + row*cols + 1).
func (e *Engine) LookupPointID(id int32) (ShiftVector, bool) {
	if id <= 0 {
		return ShiftVector{}, false
	}
	k, ok := e.grid.KeyOf(uint32(id))
	if !ok {
		return ShiftVector{}, false
	}
	return e.Node(k)
}

// Nodes calls fn for every node of the dataset in slot order until fn returns
// false.
func (e *Engine) Nodes(fn func(k CellKey, v ShiftVector) bool) {
	for s, id := range e.store.ids {
		k, _ := e.grid.KeyOf(id)
		if !fn(k, e.store.vecs[s]) {
			return
		}
	}
}

// Verify resolves every stored node through the index using up to workers
// goroutines (GOMAXPROCS when workers <= 0) and returns every mismatch found.
// Load already guarantees a clean result; Verify exists for tooling that wants
// to re-check a long-lived engine.
func (e *Engine) Verify(ctx context.Context, workers int) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	n := e.store.len()
	chunk := (n + workers - 1) / workers
	errs := make([]error, workers)
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		lo, hi := w*chunk, min((w+1)*chunk, n)
		if lo >= hi {
			break
		}
		g.Go(func() error {
			var werr error
			for s := lo; s < hi; s++ {
				if s%4096 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				id := e.store.ids[s]
				k, ok := e.grid.KeyOf(id)
				if !ok {
					werr = multierr.Append(werr, fmt.Errorf("slot %d: point id %d off grid", s, id))
					continue
				}
				got, found := e.index.Lookup(k)
				if !found || int(got) != s {
					werr = multierr.Append(werr, fmt.Errorf("slot %d: node (%d, %d) resolves to slot %d (found=%v)",
						s, k.Col, k.Row, got, found))
				}
			}
			errs[w] = werr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return multierr.Combine(errs...)
}
