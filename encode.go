package gridshift

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// encode serializes ds. The layout mirrors decode section by section.
func encode(ds *dataset) ([]byte, error) {
	if len(ds.name) > maxNameLen {
		return nil, fmt.Errorf("encode: name is %d bytes (max %d)", len(ds.name), maxNameLen)
	}
	n := len(ds.store.ids)
	width := dispWidth(ds.disp)
	if width > maxDispBits {
		return nil, fmt.Errorf("encode: displacement width %d exceeds %d", width, maxDispBits)
	}

	b := make([]byte, 16, 64+4*n+ds.repr.vectorsLen(n)+packedLen(len(ds.disp), width))
	copy(b[0:4], magic)
	binary.BigEndian.PutUint16(b[6:8], FormatVersion)

	ident := append([]byte(nil), ds.buildID[:]...)
	ident = append(ident, byte(len(ds.name)))
	ident = append(ident, ds.name...)
	b = appendSection(b, secIdentification, ident)
	b = appendGrid(b, ds.grid)
	b = appendHash(b, hashParams{seed: ds.seed, n: uint32(n), buckets: uint32(len(ds.disp)), dispBits: width})
	b = appendRepresentation(b, uint32(n), ds.repr)
	b = appendDisplacements(b, ds.disp, width)

	data := make([]byte, 0, 4*n+ds.repr.vectorsLen(n))
	for _, id := range ds.store.ids {
		data = binary.BigEndian.AppendUint32(data, id)
	}
	data = appendVectors(data, ds.store.vecs, ds.repr)
	b = appendSection(b, secData, data)

	// The checksum covers the total length field, so fix it first.
	binary.BigEndian.PutUint64(b[8:16], uint64(len(b)+9+len(endMarker)))
	b = appendSection(b, secChecksum, binary.BigEndian.AppendUint32(nil, crc32.ChecksumIEEE(b)))
	return append(b, endMarker...), nil
}
