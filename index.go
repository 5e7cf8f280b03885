package gridshift

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// Index is a minimal perfect hash over the point ids of a dataset's nodes
// (hash-and-displace). Every member key resolves to a distinct slot in [0, Len()).
// Non-member keys also resolve to some slot, so Lookup confirms the id stored at
// that slot before answering.
type Index struct {
	grid  GridDefinition
	seed  uint64
	n     uint64   // slots == keys
	disp  []uint64 // displacement index per bucket
	store *gridStore
}

// slotSeedMix derives the slot hash seed from the dataset seed.
const slotSeedMix = 0x9e3779b97f4a7c15

// keyHashes returns the bucket hash and the slot hash pair for point id.
func keyHashes(id uint32, seed uint64) (h0, h1 uint64) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], id)
	return xxh3.HashSeed(b[:], seed), xxh3.HashSeed(b[:], seed^slotSeedMix)
}

// displacedSlot places a key with slot hash h1 using displacement index d.
func displacedSlot(h1, d, n uint64) uint64 {
	f1 := (h1 & 0xffffffff) % n
	f2 := (h1 >> 32) % n
	d0, d1 := d/n, d%n
	return (f1 + d0*f2 + d1) % n
}

func (x *Index) slotOf(id uint32) uint64 {
	h0, h1 := keyHashes(id, x.seed)
	return displacedSlot(h1, x.disp[h0%uint64(len(x.disp))], x.n)
}

// Lookup returns the store slot holding k, or ok=false when k is not a node of
// the dataset. A slot whose stored id differs from k's is treated as absent.
func (x *Index) Lookup(k CellKey) (slot uint32, ok bool) {
	if !x.grid.Contains(k) {
		return 0, false
	}
	id := x.grid.PointID(k)
	s := x.slotOf(id)
	if x.store.idAt(uint32(s)) != id {
		return 0, false
	}
	return uint32(s), true
}

// Len returns the number of keys (and slots).
func (x *Index) Len() int { return int(x.n) }
