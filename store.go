package gridshift

// gridStore holds one point id and one shift vector per hash slot.
// It is never written after decoding.
type gridStore struct {
	ids  []uint32
	vecs []ShiftVector
}

func (s *gridStore) get(slot uint32) ShiftVector { return s.vecs[slot] }

func (s *gridStore) idAt(slot uint32) uint32 { return s.ids[slot] }

func (s *gridStore) len() int { return len(s.ids) }
