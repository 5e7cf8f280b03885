package gridshift

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// decode parses and validates a dataset blob. Every failure is a
// *DatasetLoadError; a blob that decodes is safe to serve from.
func decode(raw []byte) (*dataset, error) {
	s0, err := parseSection0(raw)
	if err != nil {
		return nil, loadErr("section 0", err)
	}
	if s0.Version != FormatVersion {
		return nil, loadErr("section 0", fmt.Errorf("%w: got %d, want %d", ErrVersion, s0.Version, FormatVersion))
	}
	if s0.TotalLength > uint64(len(raw)) {
		return nil, loadErr("section 0", fmt.Errorf("%w: header declares %d bytes, have %d", ErrTruncated, s0.TotalLength, len(raw)))
	}
	if s0.TotalLength < uint64(len(raw)) {
		return nil, loadErr("section 0", corruptf("%d trailing bytes after declared length %d", uint64(len(raw))-s0.TotalLength, s0.TotalLength))
	}

	// Walk sections; Section 0 is 16 bytes.
	off := 16
	var secs [secChecksum + 1][]byte
	ended := false
	for off < len(raw) {
		num, sec, next, err := sectionAt(raw, off)
		if err != nil {
			return nil, loadErr(fmt.Sprintf("section at %d", off), err)
		}
		if num == 255 {
			if next != len(raw) {
				return nil, loadErr("end marker", corruptf("%d bytes after end marker", len(raw)-next))
			}
			ended = true
			break
		}
		switch {
		case secs[secChecksum] != nil:
			return nil, loadErr(fmt.Sprintf("section %d", num), corruptf("section after checksum"))
		case num == 0 || num == 2 || num > secChecksum:
			return nil, loadErr(fmt.Sprintf("section %d", num), corruptf("unknown section number"))
		case secs[num] != nil:
			return nil, loadErr(fmt.Sprintf("section %d", num), corruptf("repeated section"))
		}
		if num == secChecksum {
			if len(sec) != 9 {
				return nil, loadErr("section 8", corruptf("length %d, want 9", len(sec)))
			}
			want := binary.BigEndian.Uint32(sec[5:9])
			if got := crc32.ChecksumIEEE(raw[:off]); got != want {
				return nil, loadErr("section 8", fmt.Errorf("%w: computed %08x, stored %08x", ErrChecksum, got, want))
			}
		}
		secs[num] = sec
		off = next
	}
	if !ended {
		return nil, loadErr("end marker", fmt.Errorf("%w: no end marker", ErrTruncated))
	}
	for _, num := range []int{secIdentification, secGrid, secHash, secRepresentation, secDisplacements, secData, secChecksum} {
		if secs[num] == nil {
			return nil, loadErr(fmt.Sprintf("section %d", num), corruptf("missing"))
		}
	}

	ds := &dataset{version: s0.Version}
	if ds.buildID, ds.name, err = parseIdentification(secs[secIdentification]); err != nil {
		return nil, loadErr("section 1", err)
	}
	if ds.grid, err = parseGrid(secs[secGrid]); err != nil {
		return nil, loadErr("section 3", err)
	}
	hp, err := parseHash(secs[secHash])
	if err != nil {
		return nil, loadErr("section 4", err)
	}
	ds.seed, ds.dispBits = hp.seed, hp.dispBits
	n, repr, err := parseRepresentation(secs[secRepresentation])
	if err != nil {
		return nil, loadErr("section 5", err)
	}
	if n != hp.n {
		return nil, loadErr("section 5", corruptf("N=%d disagrees with section 4 N=%d", n, hp.n))
	}
	ds.repr = repr
	if ds.disp, err = parseDisplacements(secs[secDisplacements], hp); err != nil {
		return nil, loadErr("section 6", err)
	}
	if ds.store, err = parseData(secs[secData], ds.grid, int(n), repr); err != nil {
		return nil, loadErr("section 7", err)
	}
	if err := ds.checkIndex(); err != nil {
		return nil, loadErr("index", err)
	}
	return ds, nil
}

// parseData decodes Section 7: N point ids, then N vectors.
func parseData(sec []byte, g GridDefinition, n int, r representation) (gridStore, error) {
	want := 5 + 4*n + r.vectorsLen(n)
	if len(sec) != want {
		return gridStore{}, corruptf("length %d, want %d", len(sec), want)
	}
	data := sec[5:]
	ids := make([]uint32, n)
	for i := range ids {
		id := binary.BigEndian.Uint32(data[4*i:])
		if _, ok := g.KeyOf(id); !ok {
			return gridStore{}, corruptf("slot %d: point id %d outside %dx%d grid", i, id, g.Cols, g.Rows)
		}
		ids[i] = id
	}
	vecs, err := unpackVectors(data[4*n:], n, r)
	if err != nil {
		return gridStore{}, err
	}
	return gridStore{ids: ids, vecs: vecs}, nil
}

// checkIndex confirms that every stored id hashes to its own slot. A blob built
// with a different hash function, or with duplicated ids, fails here.
func (ds *dataset) checkIndex() error {
	x := ds.index()
	for s, id := range ds.store.ids {
		if got := x.slotOf(id); got != uint64(s) {
			return corruptf("point id %d stored at slot %d resolves to slot %d", id, s, got)
		}
	}
	return nil
}

func (ds *dataset) index() *Index {
	return &Index{
		grid:  ds.grid,
		seed:  ds.seed,
		n:     uint64(len(ds.store.ids)),
		disp:  ds.disp,
		store: &ds.store,
	}
}
