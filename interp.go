package gridshift

// Bilinear blends the four corner vectors of a cell at fractional offsets
// (tx, ty), each axis independently:
//
//	(1-tx)(1-ty)*v00 + tx(1-ty)*v10 + (1-tx)ty*v01 + tx*ty*v11
//
// v00 is the lower-left corner, v10 is east of it, v01 north of it.
// At tx = ty = 0 the result is v00 bit for bit.
func Bilinear(tx, ty float64, v00, v10, v01, v11 ShiftVector) ShiftVector {
	if tx == 0 && ty == 0 {
		return v00
	}
	w00 := (1 - tx) * (1 - ty)
	w10 := tx * (1 - ty)
	w01 := (1 - tx) * ty
	w11 := tx * ty
	return ShiftVector{
		DX: w00*v00.DX + w10*v10.DX + w01*v01.DX + w11*v11.DX,
		DY: w00*v00.DY + w10*v10.DY + w01*v01.DY + w11*v11.DY,
		DZ: w00*v00.DZ + w10*v10.DZ + w01*v01.DZ + w11*v11.DZ,
	}
}

// interpolate resolves the corners of the cell at k that carry weight and
// blends them. Corners with zero weight are not required to exist, so a
// query on the last node of the grid succeeds. missing is the first needed
// corner that is absent.
func (e *Engine) interpolate(k CellKey, tx, ty float64) (v ShiftVector, missing CellKey, ok bool) {
	corner := func(dc, dr int32) (ShiftVector, bool) {
		c := CellKey{Col: k.Col + dc, Row: k.Row + dr}
		slot, found := e.index.Lookup(c)
		if !found {
			missing = c
			return ShiftVector{}, false
		}
		return e.store.get(slot), true
	}

	var v00, v10, v01, v11 ShiftVector
	if v00, ok = corner(0, 0); !ok {
		return v, missing, false
	}
	if tx > 0 {
		if v10, ok = corner(1, 0); !ok {
			return v, missing, false
		}
	}
	if ty > 0 {
		if v01, ok = corner(0, 1); !ok {
			return v, missing, false
		}
	}
	if tx > 0 && ty > 0 {
		if v11, ok = corner(1, 1); !ok {
			return v, missing, false
		}
	}
	return Bilinear(tx, ty, v00, v10, v01, v11), CellKey{}, true
}
