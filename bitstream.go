package gridshift

import (
	"encoding/binary"
	"fmt"
)

// bitReader reads unsigned integers of arbitrary bit width from a byte slice.
// Bits are consumed MSB-first within each byte. Displacements and packed shift
// values are stored this way.
type bitReader struct {
	buf []byte
	pos int // current bit position
}

func newBitReader(b []byte) *bitReader { return &bitReader{buf: b} }

// read reads n bits (0 ≤ n ≤ 64) and returns them as a uint64.
// It never panics on short input; callers get an error instead.
func (r *bitReader) read(n int) (uint64, error) {
	if n == 0 {
		return 0, nil
	}
	if n < 0 || n > 64 {
		return 0, fmt.Errorf("bitReader: invalid width %d", n)
	}
	end := r.pos + n
	if end > len(r.buf)*8 {
		return 0, fmt.Errorf("bitReader: read %d bits at pos %d overflows buffer (%d bytes)",
			n, r.pos, len(r.buf))
	}
	if r.pos%8 == 0 {
		off := r.pos / 8
		switch n {
		case 8:
			r.pos = end
			return uint64(r.buf[off]), nil
		case 16:
			r.pos = end
			return uint64(binary.BigEndian.Uint16(r.buf[off:])), nil
		case 32:
			r.pos = end
			return uint64(binary.BigEndian.Uint32(r.buf[off:])), nil
		case 64:
			r.pos = end
			return binary.BigEndian.Uint64(r.buf[off:]), nil
		}
	}
	var v uint64
	for i := 0; i < n; i++ {
		byteIdx := (r.pos + i) / 8
		bitIdx := 7 - ((r.pos + i) % 8)
		v = (v << 1) | uint64((r.buf[byteIdx]>>bitIdx)&1)
	}
	r.pos = end
	return v, nil
}

// bitWriter is the encoding counterpart of bitReader.
type bitWriter struct {
	buf  []byte
	nbit int // bits used in the last byte of buf, 0 when aligned
}

// write appends the low n bits of v, MSB first.
func (w *bitWriter) write(v uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		if w.nbit == 0 {
			w.buf = append(w.buf, 0)
		}
		if (v>>uint(i))&1 == 1 {
			w.buf[len(w.buf)-1] |= 1 << uint(7-w.nbit)
		}
		w.nbit = (w.nbit + 1) % 8
	}
}

// bytes returns the written bits, zero padded to a byte boundary.
func (w *bitWriter) bytes() []byte { return w.buf }

// packedLen returns the byte length of count values of width bits each.
func packedLen(count, width int) int {
	return (count*width + 7) / 8
}
