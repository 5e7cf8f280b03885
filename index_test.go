package gridshift

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIndexIsMinimalPerfect verifies every demo node owns a distinct slot and
// the slots cover [0, Len()).
func TestIndexIsMinimalPerfect(t *testing.T) {
	x := mustDefault(t).Index()
	seen := make([]bool, x.Len())
	for _, nd := range demoNodes() {
		slot, ok := x.Lookup(nd.Key)
		require.True(t, ok, "Lookup(%+v)", nd.Key)
		require.Less(t, int(slot), x.Len())
		require.False(t, seen[slot], "slot %d assigned twice", slot)
		seen[slot] = true
	}
	for s, ok := range seen {
		assert.True(t, ok, "slot %d unused", s)
	}
}

// TestIndexRejectsNonMembers sweeps the whole national grid: exactly the demo
// nodes are found.
func TestIndexRejectsNonMembers(t *testing.T) {
	x := mustDefault(t).Index()
	found := 0
	for r := int32(0); r < int32(nationalGrid.Rows); r++ {
		for c := int32(0); c < int32(nationalGrid.Cols); c++ {
			k := CellKey{Col: c, Row: r}
			_, ok := x.Lookup(k)
			if ok != demoHas(k) {
				t.Fatalf("Lookup(%+v) = %v, want %v", k, ok, demoHas(k))
			}
			if ok {
				found++
			}
		}
	}
	assert.Equal(t, demoNodeCount, found)
}

func TestIndexOffLattice(t *testing.T) {
	x := mustDefault(t).Index()
	for _, k := range []CellKey{{-1, 313}, {651, -1}, {701, 313}, {651, 1251}, {1 << 30, 1 << 30}} {
		_, ok := x.Lookup(k)
		assert.False(t, ok, "Lookup(%+v)", k)
	}
}

func TestDisplacedSlotRange(t *testing.T) {
	for _, n := range []uint64{1, 2, 617, 876951} {
		for _, d := range []uint64{0, 1, n - 1, n, n*3 + 2, n * min(n, maxD0) - 1} {
			for _, h1 := range []uint64{0, 1, 0xffffffff, 1 << 32, ^uint64(0)} {
				assert.Less(t, displacedSlot(h1, d, n), n, "n=%d d=%d h1=%#x", n, d, h1)
			}
		}
	}
}

// TestDisplacedSlotCoversAllSlots verifies d1 alone reaches every slot, so a
// single-key bucket always finds a free one.
func TestDisplacedSlotCoversAllSlots(t *testing.T) {
	const n = 97
	h1 := uint64(0x1234567890abcdef)
	seen := map[uint64]bool{}
	for d := uint64(0); d < n; d++ {
		seen[displacedSlot(h1, d, n)] = true
	}
	assert.Len(t, seen, n)
}

// TestKeyHashesSeedIndependence verifies the bucket and slot hashes differ and
// that neighbouring seeds do not share hashes.
func TestKeyHashesSeedIndependence(t *testing.T) {
	h0, h1 := keyHashes(220065, 0)
	assert.NotEqual(t, h0, h1)
	n0, n1 := keyHashes(220065, 1)
	assert.NotEqual(t, h0, n0)
	assert.NotEqual(t, h1, n1)
	assert.NotEqual(t, h1, n0)
}

func TestBuildIndexPlacesEveryKey(t *testing.T) {
	ids := make([]uint32, 3000)
	for i := range ids {
		ids[i] = uint32(i*7 + 1)
	}
	seed, disp, slots, err := buildIndex(ids)
	require.NoError(t, err)
	assert.Len(t, disp, (len(ids)+keysPerBucket-1)/keysPerBucket)

	st := gridStore{ids: make([]uint32, len(ids)), vecs: make([]ShiftVector, len(ids))}
	for i, s := range slots {
		require.Zero(t, st.ids[s], "slot %d reused", s)
		st.ids[s] = ids[i]
	}
	x := &Index{seed: seed, n: uint64(len(ids)), disp: disp, store: &st}
	for i, id := range ids {
		assert.Equal(t, uint64(slots[i]), x.slotOf(id), "id %d", id)
	}
}
