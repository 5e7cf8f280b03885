package gridshift

import (
	"errors"
	"fmt"
)

// ErrOutsideCoverage matches every *CoverageError via errors.Is.
var ErrOutsideCoverage = errors.New("gridshift: reference outside dataset coverage")

// Dataset load failures, wrapped in *DatasetLoadError.
var (
	ErrBadMagic  = errors.New("missing GSHF magic")
	ErrVersion   = errors.New("unsupported dataset format version")
	ErrTruncated = errors.New("dataset truncated")
	ErrChecksum  = errors.New("dataset checksum mismatch")
	ErrCorrupt   = errors.New("dataset corrupt")
)

// CoverageError reports a query whose enclosing cell has a needed corner node
// that the dataset does not define. It is a routine result, not a fault.
type CoverageError struct {
	Ref     GridReference
	Missing CellKey // first corner node found absent
}

func (e *CoverageError) Error() string {
	return fmt.Sprintf("gridshift: (%d, %d) outside coverage: node (%d, %d) not defined",
		e.Ref.Easting, e.Ref.Northing, e.Missing.Col, e.Missing.Row)
}

// Is makes errors.Is(err, ErrOutsideCoverage) true.
func (e *CoverageError) Is(target error) bool { return target == ErrOutsideCoverage }

// DatasetLoadError is returned when a dataset blob cannot be loaded. An engine is
// never handed out after one of these.
type DatasetLoadError struct {
	Op  string // decoding stage, e.g. "section 4"
	Err error
}

func (e *DatasetLoadError) Error() string {
	return fmt.Sprintf("gridshift: load dataset: %s: %v", e.Op, e.Err)
}

func (e *DatasetLoadError) Unwrap() error { return e.Err }

func loadErr(op string, err error) *DatasetLoadError {
	return &DatasetLoadError{Op: op, Err: err}
}

// corruptf wraps a formatted message around ErrCorrupt.
func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorrupt, fmt.Sprintf(format, args...))
}
