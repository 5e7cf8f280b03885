package gridshift

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
)

// Representation templates for the shift vectors in Section 7.
const (
	templateRaw    = 0 // three IEEE float64 per node
	templateSimple = 1 // three packed integers per node, Y = (R + X) / 10^D
)

// maxDecimalScale keeps 10^D and every scaled value exactly representable.
const maxDecimalScale = 9

// axisPacking holds the reference value and bit width of one axis.
type axisPacking struct {
	Ref   int32
	Nbits int
}

// representation holds Section 5: how Section 7 stores the vectors.
type representation struct {
	template     int
	decimalScale int
	axes         [3]axisPacking // dx, dy, dz; templateSimple only
}

// scaled returns v*10^D as an integer when that is exact and survives the
// decode formula bit for bit.
func scaled(v float64, p float64) (int64, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	x := math.Round(v * p)
	if math.Abs(x) > 1<<31-1 {
		return 0, false
	}
	i := int64(x)
	if math.Float64bits(float64(i)/p) != math.Float64bits(v) {
		return 0, false
	}
	return i, true
}

// chooseRepresentation picks simple packing when every component round-trips
// exactly at the decimal scale, raw float64 otherwise.
func chooseRepresentation(vecs []ShiftVector, scale int) representation {
	raw := representation{template: templateRaw}
	if scale < 0 || scale > maxDecimalScale || len(vecs) == 0 {
		return raw
	}
	p := math.Pow10(scale)
	var lo, hi [3]int64
	for i, v := range vecs {
		for a, c := range [3]float64{v.DX, v.DY, v.DZ} {
			x, ok := scaled(c, p)
			if !ok {
				return raw
			}
			if i == 0 || x < lo[a] {
				lo[a] = x
			}
			if i == 0 || x > hi[a] {
				hi[a] = x
			}
		}
	}
	r := representation{template: templateSimple, decimalScale: scale}
	for a := range r.axes {
		r.axes[a] = axisPacking{Ref: int32(lo[a]), Nbits: bits.Len64(uint64(hi[a] - lo[a]))}
	}
	return r
}

// parseRepresentation decodes Section 5.
func parseRepresentation(sec []byte) (n uint32, r representation, err error) {
	// sec[0:4]=len, sec[4]=5, sec[5:9]=N, sec[9:11]=template, sec[11:]=template data
	if len(sec) < 11 {
		return 0, r, corruptf("section 5 too short (%d bytes)", len(sec))
	}
	n = binary.BigEndian.Uint32(sec[5:9])
	r.template = int(binary.BigEndian.Uint16(sec[9:11]))
	switch r.template {
	case templateRaw:
		return n, r, nil
	case templateSimple:
	default:
		return 0, r, corruptf("unsupported representation template %d (supported: 0, 1)", r.template)
	}
	if len(sec) < 11+2+3*5 {
		return 0, r, corruptf("section 5 template 1 too short (%d bytes)", len(sec))
	}
	t := sec[11:]
	r.decimalScale = decodeScaleFactor(binary.BigEndian.Uint16(t[0:2]))
	if r.decimalScale < 0 || r.decimalScale > maxDecimalScale {
		return 0, r, corruptf("decimal scale %d out of range [0, %d]", r.decimalScale, maxDecimalScale)
	}
	for a := range r.axes {
		o := 2 + a*5
		r.axes[a] = axisPacking{
			Ref:   int32(binary.BigEndian.Uint32(t[o : o+4])),
			Nbits: int(t[o+4]),
		}
		if r.axes[a].Nbits > maxValueBits {
			return 0, r, corruptf("axis %d width %d exceeds %d", a, r.axes[a].Nbits, maxValueBits)
		}
	}
	return n, r, nil
}

// appendRepresentation encodes Section 5.
func appendRepresentation(b []byte, n uint32, r representation) []byte {
	body := binary.BigEndian.AppendUint32(nil, n)
	body = binary.BigEndian.AppendUint16(body, uint16(r.template))
	if r.template == templateSimple {
		body = binary.BigEndian.AppendUint16(body, encodeScaleFactor(r.decimalScale))
		for _, ax := range r.axes {
			body = binary.BigEndian.AppendUint32(body, uint32(ax.Ref))
			body = append(body, byte(ax.Nbits))
		}
	}
	return appendSection(b, secRepresentation, body)
}

// vectorsLen returns the byte length of n vectors under r.
func (r representation) vectorsLen(n int) int {
	if r.template == templateRaw {
		return n * 24
	}
	return packedLen(n, r.axes[0].Nbits+r.axes[1].Nbits+r.axes[2].Nbits)
}

// unpackVectors decodes n vectors from data.
func unpackVectors(data []byte, n int, r representation) ([]ShiftVector, error) {
	if len(data) < r.vectorsLen(n) {
		return nil, fmt.Errorf("vectors: need %d bytes, have %d", r.vectorsLen(n), len(data))
	}
	out := make([]ShiftVector, n)
	if r.template == templateRaw {
		for i := range out {
			o := i * 24
			out[i] = ShiftVector{
				DX: math.Float64frombits(binary.BigEndian.Uint64(data[o:])),
				DY: math.Float64frombits(binary.BigEndian.Uint64(data[o+8:])),
				DZ: math.Float64frombits(binary.BigEndian.Uint64(data[o+16:])),
			}
		}
		return out, nil
	}

	p := math.Pow10(r.decimalScale)
	br := newBitReader(data)
	for i := range out {
		var c [3]float64
		for a, ax := range r.axes {
			x, err := br.read(ax.Nbits)
			if err != nil {
				return nil, fmt.Errorf("vectors: node %d axis %d: %w", i, a, err)
			}
			c[a] = float64(int64(ax.Ref)+int64(x)) / p
		}
		out[i] = ShiftVector{DX: c[0], DY: c[1], DZ: c[2]}
	}
	return out, nil
}

// appendVectors encodes vecs under r. r must come from chooseRepresentation
// over the same vectors.
func appendVectors(b []byte, vecs []ShiftVector, r representation) []byte {
	if r.template == templateRaw {
		for _, v := range vecs {
			b = binary.BigEndian.AppendUint64(b, math.Float64bits(v.DX))
			b = binary.BigEndian.AppendUint64(b, math.Float64bits(v.DY))
			b = binary.BigEndian.AppendUint64(b, math.Float64bits(v.DZ))
		}
		return b
	}
	p := math.Pow10(r.decimalScale)
	var w bitWriter
	for _, v := range vecs {
		for a, c := range [3]float64{v.DX, v.DY, v.DZ} {
			x, _ := scaled(c, p)
			w.write(uint64(x-int64(r.axes[a].Ref)), r.axes[a].Nbits)
		}
	}
	return append(b, w.bytes()...)
}

// decodeScaleFactor decodes a sign-magnitude 2-byte scale factor.
// MSB is the sign bit (1=negative), remaining 15 bits are magnitude.
func decodeScaleFactor(raw uint16) int {
	magnitude := int(raw & 0x7FFF)
	if raw&0x8000 != 0 {
		return -magnitude
	}
	return magnitude
}

func encodeScaleFactor(v int) uint16 {
	if v < 0 {
		return 0x8000 | uint16(-v)&0x7FFF
	}
	return uint16(v) & 0x7FFF
}
