package gridshift

import (
	"testing"
)

// FuzzLoad feeds arbitrary byte slices to Load.
// The invariant is that it must never panic: it returns an error or an engine
// whose every stored node resolves through the index.
// Run with: go test -fuzz=FuzzLoad -fuzztime=60s .
func FuzzLoad(f *testing.F) {
	seeds := [][]byte{
		// Valid magic, too short to decode
		[]byte("GSHF\x00\x00\x00\x01\x00\x00\x00\x00\x00\x00\x00\x10"),
		// Wrong magic
		[]byte("NOTGSHF"),
		// Empty
		{},
		// Just the magic
		[]byte("GSHF"),
		// Valid sec0 + end marker
		func() []byte {
			b := make([]byte, 20)
			copy(b[0:4], "GSHF")
			b[7] = 1
			b[15] = 20
			copy(b[16:], "GEND")
			return b
		}(),
		{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
			0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		demoBlob,
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		e, err := Load(data)
		if err != nil {
			return
		}
		e.Nodes(func(k CellKey, _ ShiftVector) bool {
			if _, ok := e.Node(k); !ok {
				t.Fatalf("stored node (%d, %d) does not resolve", k.Col, k.Row)
			}
			return true
		})
	})
}

// FuzzShiftAt queries the demo dataset at arbitrary references.
// Every call must return either a value or a *CoverageError.
// Run with: go test -fuzz=FuzzShiftAt -fuzztime=30s .
func FuzzShiftAt(f *testing.F) {
	f.Add(int32(651000), int32(313000))
	f.Add(int32(662000), int32(326000))
	f.Add(int32(-1), int32(-1))
	f.Add(int32(1<<31-1), int32(-1<<31))

	e, err := Default()
	if err != nil {
		f.Fatalf("Default: %v", err)
	}
	f.Fuzz(func(t *testing.T, easting, northing int32) {
		_, err := e.ShiftAt(GridReference{Easting: easting, Northing: northing})
		if err != nil {
			if _, ok := err.(*CoverageError); !ok {
				t.Fatalf("ShiftAt(%d, %d): unexpected error type %T", easting, northing, err)
			}
		}
	})
}

// FuzzBitReaderRead verifies that the bitReader never panics regardless of input.
// Run with: go test -fuzz=FuzzBitReaderRead -fuzztime=30s .
func FuzzBitReaderRead(f *testing.F) {
	f.Add([]byte{0xFF, 0x00, 0xAB, 0xCD}, 7)
	f.Add([]byte{}, 0)
	f.Add([]byte{0x00}, 8)
	f.Add([]byte{0x00}, 1)
	f.Add([]byte{0x00}, 65)

	f.Fuzz(func(t *testing.T, data []byte, nBits int) {
		r := newBitReader(data)
		// Must not panic; an error is fine.
		_, _ = r.read(nBits)
	})
}
