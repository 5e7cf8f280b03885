package gridshift

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// keysPerBucket is the average bucket load of the displacement table.
	keysPerBucket = 4

	// maxSeeds bounds the global retries with a fresh hash seed.
	maxSeeds = 32

	// maxD0 bounds the multiplier half of a displacement; together with
	// d1 < n it caps the search per bucket at n*maxD0 candidates.
	maxD0 = 4096

	// defaultDecimalScale stores shifts to the millimetre.
	defaultDecimalScale = 3
)

var errNoDisplacement = errors.New("no displacement fits a bucket")

// BuildOptions tunes Build. The zero value is usable.
type BuildOptions struct {
	Name string
	// DecimalScale is the number of decimal digits kept by the packed
	// representation. Zero means 3. Values that do not survive packing exactly
	// make the encoder fall back to raw float64.
	DecimalScale int
	// BuildID identifies the dataset build; a random one is generated when nil.
	BuildID *uuid.UUID
	Logger  *zap.Logger
}

// Build computes the perfect hash over nodes and returns the encoded dataset
// blob. Nodes must be unique and lie on grid. This is the offline half of the
// engine; Load never rebuilds the hash.
func Build(grid GridDefinition, nodes []Node, opts BuildOptions) ([]byte, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if err := grid.validate(); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("build: no nodes")
	}
	if len(nodes) > maxNodes {
		return nil, fmt.Errorf("build: %d nodes exceeds maximum %d", len(nodes), maxNodes)
	}

	ids := make([]uint32, len(nodes))
	seen := make(map[uint32]struct{}, len(nodes))
	for i, nd := range nodes {
		if !grid.Contains(nd.Key) {
			return nil, fmt.Errorf("build: node (%d, %d) outside %dx%d grid",
				nd.Key.Col, nd.Key.Row, grid.Cols, grid.Rows)
		}
		id := grid.PointID(nd.Key)
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("build: duplicate node (%d, %d)", nd.Key.Col, nd.Key.Row)
		}
		seen[id] = struct{}{}
		ids[i] = id
	}

	start := time.Now()
	seed, disp, slots, err := buildIndex(ids)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	log.Info("perfect hash built",
		zap.Int("keys", len(ids)),
		zap.Int("buckets", len(disp)),
		zap.Uint64("seed", seed),
		zap.Duration("elapsed", time.Since(start)))

	st := gridStore{ids: make([]uint32, len(ids)), vecs: make([]ShiftVector, len(ids))}
	for i, s := range slots {
		st.ids[s] = ids[i]
		st.vecs[s] = nodes[i].Shift
	}

	id := uuid.New()
	if opts.BuildID != nil {
		id = *opts.BuildID
	}
	scale := opts.DecimalScale
	if scale == 0 {
		scale = defaultDecimalScale
	}
	ds := &dataset{
		name:    opts.Name,
		buildID: id,
		grid:    grid,
		seed:    seed,
		disp:    disp,
		store:   st,
		repr:    chooseRepresentation(st.vecs, scale),
	}
	if ds.repr.template == templateRaw {
		log.Warn("shift values do not pack exactly, storing raw float64",
			zap.Int("decimal_scale", scale))
	}
	return encode(ds)
}

// buildIndex finds a seed and per-bucket displacements placing every id on a
// distinct slot. slots[i] is the slot of ids[i].
func buildIndex(ids []uint32) (seed uint64, disp []uint64, slots []uint32, err error) {
	for seed = 0; seed < maxSeeds; seed++ {
		disp, slots, err = placeKeys(ids, seed)
		if err == nil {
			return seed, disp, slots, nil
		}
		if !errors.Is(err, errNoDisplacement) {
			return 0, nil, nil, err
		}
	}
	return 0, nil, nil, fmt.Errorf("perfect hash: no seed in [0, %d) works: %w", maxSeeds, err)
}

func placeKeys(ids []uint32, seed uint64) ([]uint64, []uint32, error) {
	n := uint64(len(ids))
	nb := (n + keysPerBucket - 1) / keysPerBucket
	buckets := make([][]int, nb)
	h1s := make([]uint64, n)
	for i, id := range ids {
		h0, h1 := keyHashes(id, seed)
		b := h0 % nb
		buckets[b] = append(buckets[b], i)
		h1s[i] = h1
	}

	order := make([]int, nb)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return len(buckets[order[a]]) > len(buckets[order[b]])
	})

	limit := n * min(n, maxD0)
	disp := make([]uint64, nb)
	slots := make([]uint32, n)
	taken := make([]bool, n)
	pending := make([]uint64, 0, 16)
	for _, b := range order {
		keys := buckets[b]
		if len(keys) == 0 {
			break
		}
		placed := false
		for d := uint64(0); d < limit; d++ {
			pending = pending[:0]
			ok := true
			for _, ki := range keys {
				s := displacedSlot(h1s[ki], d, n)
				if taken[s] || containsSlot(pending, s) {
					ok = false
					break
				}
				pending = append(pending, s)
			}
			if !ok {
				continue
			}
			for j, ki := range keys {
				taken[pending[j]] = true
				slots[ki] = uint32(pending[j])
			}
			disp[b] = d
			placed = true
			break
		}
		if !placed {
			return nil, nil, fmt.Errorf("seed %d, bucket %d (%d keys): %w", seed, b, len(keys), errNoDisplacement)
		}
	}
	return disp, slots, nil
}

func containsSlot(s []uint64, v uint64) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// dispWidth returns the bit width needed for the largest displacement (>= 1).
func dispWidth(disp []uint64) int {
	var m uint64
	for _, d := range disp {
		if d > m {
			m = d
		}
	}
	if w := bits.Len64(m); w > 0 {
		return w
	}
	return 1
}
