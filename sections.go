package gridshift

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// FormatVersion is the dataset blob format this package reads and writes.
const FormatVersion = 1

const (
	magic     = "GSHF"
	endMarker = "GEND"
)

// Section numbers.
const (
	secIdentification = 1
	secGrid           = 3
	secHash           = 4
	secRepresentation = 5
	secDisplacements  = 6
	secData           = 7
	secChecksum       = 8
)

// Input sanity limits. Real national grids are well inside them (OSTN15 is
// 701x1251 with 876,951 nodes).
const (
	maxNodes     = 1 << 24
	maxGridDim   = 1 << 20
	maxValueBits = 32
	maxDispBits  = 48
	maxNameLen   = 255
)

// Section0 is the 16-byte indicator section.
type Section0 struct {
	Version     uint16
	TotalLength uint64
}

// hashParams holds Section 4.
type hashParams struct {
	seed     uint64
	n        uint32
	buckets  uint32
	dispBits int
}

// dataset is the decoded form of a blob.
type dataset struct {
	name     string
	buildID  uuid.UUID
	version  uint16
	grid     GridDefinition
	seed     uint64
	disp     []uint64
	dispBits int
	store    gridStore
	repr     representation
}

// parseSection0 decodes the indicator section.
func parseSection0(b []byte) (Section0, error) {
	if len(b) < 16 {
		return Section0{}, fmt.Errorf("%w: need 16 bytes, got %d", ErrTruncated, len(b))
	}
	if string(b[0:4]) != magic {
		return Section0{}, fmt.Errorf("%w: got %q", ErrBadMagic, b[0:4])
	}
	return Section0{
		Version:     binary.BigEndian.Uint16(b[6:8]),
		TotalLength: binary.BigEndian.Uint64(b[8:16]),
	}, nil
}

// sectionAt finds a section starting at byte offset off in buf.
// Returns (sectionNum, sectionData, nextOffset). sectionData includes the
// 5-byte header. The 4-byte end marker is reported as section 255.
func sectionAt(buf []byte, off int) (byte, []byte, int, error) {
	if off+4 <= len(buf) && string(buf[off:off+4]) == endMarker {
		return 255, buf[off : off+4], off + 4, nil
	}
	if off+5 > len(buf) {
		return 0, nil, 0, fmt.Errorf("%w: section header at %d out of bounds (buf=%d)", ErrTruncated, off, len(buf))
	}
	sLen := binary.BigEndian.Uint32(buf[off : off+4])
	sNum := buf[off+4]
	if sLen < 5 {
		return 0, nil, 0, corruptf("section %d at %d: length %d shorter than its header", sNum, off, sLen)
	}
	end64 := uint64(off) + uint64(sLen)
	if end64 > uint64(len(buf)) {
		return 0, nil, 0, fmt.Errorf("%w: section %d at %d: length %d overflows buffer %d",
			ErrTruncated, sNum, off, sLen, len(buf))
	}
	end := int(end64)
	return sNum, buf[off:end], end, nil
}

// appendSection appends a section header and body.
func appendSection(b []byte, num byte, body []byte) []byte {
	b = binary.BigEndian.AppendUint32(b, uint32(5+len(body)))
	b = append(b, num)
	return append(b, body...)
}

// parseIdentification decodes Section 1:
//
//	s+5..20   build id (UUID)
//	s+21      name length
//	s+22..    name
func parseIdentification(sec []byte) (uuid.UUID, string, error) {
	if len(sec) < 5+16+1 {
		return uuid.Nil, "", corruptf("section 1 too short (%d bytes)", len(sec))
	}
	id, err := uuid.FromBytes(sec[5:21])
	if err != nil {
		return uuid.Nil, "", corruptf("section 1: build id: %v", err)
	}
	nameLen := int(sec[21])
	if len(sec) != 22+nameLen {
		return uuid.Nil, "", corruptf("section 1: name length %d does not match section length %d", nameLen, len(sec))
	}
	return id, string(sec[22:]), nil
}

// parseGrid decodes Section 3:
//
//	s+5..8    origin easting (int32)
//	s+9..12   origin northing (int32)
//	s+13..16  spacing (int32)
//	s+17..20  cols
//	s+21..24  rows
func parseGrid(sec []byte) (GridDefinition, error) {
	if len(sec) != 25 {
		return GridDefinition{}, corruptf("section 3: length %d, want 25", len(sec))
	}
	u32 := func(off int) uint32 { return binary.BigEndian.Uint32(sec[off : off+4]) }
	g := GridDefinition{
		OriginEasting:  int32(u32(5)),
		OriginNorthing: int32(u32(9)),
		Spacing:        int32(u32(13)),
		Cols:           u32(17),
		Rows:           u32(21),
	}
	if err := g.validate(); err != nil {
		return GridDefinition{}, corruptf("section 3: %v", err)
	}
	return g, nil
}

// validate rejects grids the engine cannot index. Point ids must fit in a uint32.
func (g GridDefinition) validate() error {
	if g.Spacing <= 0 {
		return fmt.Errorf("grid spacing %d must be positive", g.Spacing)
	}
	if g.Cols == 0 || g.Cols > maxGridDim || g.Rows == 0 || g.Rows > maxGridDim {
		return fmt.Errorf("invalid grid dimensions %dx%d (max %d)", g.Cols, g.Rows, maxGridDim)
	}
	if uint64(g.Cols)*uint64(g.Rows) >= 1<<32 {
		return fmt.Errorf("grid %dx%d overflows 32-bit point ids", g.Cols, g.Rows)
	}
	return nil
}

func appendGrid(b []byte, g GridDefinition) []byte {
	body := binary.BigEndian.AppendUint32(nil, uint32(g.OriginEasting))
	body = binary.BigEndian.AppendUint32(body, uint32(g.OriginNorthing))
	body = binary.BigEndian.AppendUint32(body, uint32(g.Spacing))
	body = binary.BigEndian.AppendUint32(body, g.Cols)
	body = binary.BigEndian.AppendUint32(body, g.Rows)
	return appendSection(b, secGrid, body)
}

// parseHash decodes Section 4:
//
//	s+5..12   seed
//	s+13..16  N (keys == slots)
//	s+17..20  buckets
//	s+21      displacement bit width
func parseHash(sec []byte) (hashParams, error) {
	if len(sec) != 22 {
		return hashParams{}, corruptf("section 4: length %d, want 22", len(sec))
	}
	p := hashParams{
		seed:     binary.BigEndian.Uint64(sec[5:13]),
		n:        binary.BigEndian.Uint32(sec[13:17]),
		buckets:  binary.BigEndian.Uint32(sec[17:21]),
		dispBits: int(sec[21]),
	}
	// Validate before allocating anything sized by these counts.
	if p.n == 0 || p.n > maxNodes {
		return hashParams{}, corruptf("section 4: N=%d out of valid range [1, %d]", p.n, maxNodes)
	}
	if p.buckets == 0 || p.buckets > p.n {
		return hashParams{}, corruptf("section 4: %d buckets for %d keys", p.buckets, p.n)
	}
	if p.dispBits < 1 || p.dispBits > maxDispBits {
		return hashParams{}, corruptf("section 4: displacement width %d out of range [1, %d]", p.dispBits, maxDispBits)
	}
	return p, nil
}

func appendHash(b []byte, p hashParams) []byte {
	body := binary.BigEndian.AppendUint64(nil, p.seed)
	body = binary.BigEndian.AppendUint32(body, p.n)
	body = binary.BigEndian.AppendUint32(body, p.buckets)
	body = append(body, byte(p.dispBits))
	return appendSection(b, secHash, body)
}

// parseDisplacements decodes Section 6.
func parseDisplacements(sec []byte, p hashParams) ([]uint64, error) {
	want := 5 + packedLen(int(p.buckets), p.dispBits)
	if len(sec) != want {
		return nil, corruptf("section 6: length %d, want %d", len(sec), want)
	}
	limit := uint64(p.n) * min(uint64(p.n), maxD0)
	br := newBitReader(sec[5:])
	disp := make([]uint64, p.buckets)
	for i := range disp {
		d, err := br.read(p.dispBits)
		if err != nil {
			return nil, fmt.Errorf("section 6: displacement %d: %w", i, err)
		}
		if d >= limit {
			return nil, corruptf("section 6: displacement %d = %d exceeds %d", i, d, limit)
		}
		disp[i] = d
	}
	return disp, nil
}

func appendDisplacements(b []byte, disp []uint64, width int) []byte {
	var w bitWriter
	for _, d := range disp {
		w.write(d, width)
	}
	return appendSection(b, secDisplacements, w.bytes())
}
