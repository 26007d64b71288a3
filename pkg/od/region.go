package od

// A region holds the packed, contiguous backing storage for every Variable
// of a RECORD or ARRAY object. CiA 301 objects are conventionally mirrored
// onto a single packed struct in application memory (as in a C device
// stack's co_obj_update(), which rebuilds one contiguous buffer per object
// whenever a member is attached), rather than each sub-index owning an
// independent allocation. Keeping one packed buffer lets a SDO block upload
// of "the whole object" or a configuration dump walk every sub-index without
// touching N unrelated heap allocations, and it makes the on-the-wire layout
// match the in-memory layout byte for byte.
type region struct {
	data    []byte
	offsets []uint32
}

// rebuild repacks data to hold exactly the concatenation of every variable's
// current value, in sub-index order, and repoints each Variable.value at its
// slice of the shared buffer. Existing values are preserved; newly grown
// variables are zero filled. A fixed-size ARRAY can contain sub-indexes that
// have not been attached yet (nil slots reserved by [NewArray]); those are
// skipped rather than dereferenced, and simply contribute no bytes until a
// [VariableList.AddSubObject] call fills them in.
func (r *region) rebuild(variables []*Variable) {
	total := uint32(0)
	offsets := make([]uint32, len(variables))
	for i, v := range variables {
		offsets[i] = total
		if v == nil {
			continue
		}
		total += uint32(len(v.value))
	}
	packed := make([]byte, total)
	for i, v := range variables {
		if v == nil {
			continue
		}
		copy(packed[offsets[i]:offsets[i]+uint32(len(v.value))], v.value)
	}
	r.data = packed
	r.offsets = offsets
	for i, v := range variables {
		if v == nil {
			continue
		}
		end := offsets[i] + uint32(len(v.value))
		v.value = packed[offsets[i]:end:end]
	}
}

// Raw returns the packed backing buffer for the whole object, e.g. for a
// contiguous SDO block transfer of a RECORD taken as a single unit.
func (rec *VariableList) Raw() []byte {
	if rec.reg == nil {
		return nil
	}
	return rec.reg.data
}
