// Command libgridshift builds the C shared library:
//
//	go build -buildmode=c-shared -o libgridshift.so ./cmd/libgridshift
//
// Queries run against the bundled dataset until gridshift_open replaces it.
// Structs cross the boundary by value.
package main

/*
#include <stdint.h>

typedef struct {
	int32_t easting;
	int32_t northing;
} GridRefs;

typedef struct {
	double x_shift;
	double y_shift;
	double z_shift;
} Adjustment;
*/
import "C"

import (
	"github.com/geal-ai/gridshift"
)

func toAdjustment(r gridshift.AdjustmentResult) C.Adjustment {
	return C.Adjustment{
		x_shift: C.double(r.XShift),
		y_shift: C.double(r.YShift),
		z_shift: C.double(r.ZShift),
	}
}

// get_shifts_ffi returns the shifts at a grid node given in node units
// (kilometre grid references for OSTN15: 651, 313 is node (651, 313)).
// Outside coverage every field is NaN.
//
//export get_shifts_ffi
func get_shifts_ffi(gr C.GridRefs) C.Adjustment {
	return toAdjustment(shiftsAtNode(int32(gr.easting), int32(gr.northing)))
}

// gridshift_shift_at interpolates at a grid reference in the dataset's base
// unit and writes the result to out. It returns 0 on success, 1 outside
// coverage, -1 when out is NULL or no dataset is loaded.
//
//export gridshift_shift_at
func gridshift_shift_at(gr C.GridRefs, out *C.Adjustment) C.int {
	if out == nil {
		return -1
	}
	r, status := shiftAt(int32(gr.easting), int32(gr.northing))
	if status == statusOK {
		*out = toAdjustment(r)
	}
	return C.int(status)
}

// gridshift_open replaces the active dataset with the blob at path. It
// returns 0 on success and -1 on failure, keeping the previous dataset.
//
//export gridshift_open
func gridshift_open(path *C.char) C.int {
	if path == nil {
		return -1
	}
	if err := openFile(C.GoString(path)); err != nil {
		return -1
	}
	return 0
}

func main() {}
