package od

// VariableList is the data representation for storing a "RECORD" or "ARRAY"
// object type.
type VariableList struct {
	Variables         []*Variable
	objectType        uint8 // either ObjectTypeRECORD or ObjectTypeARRAY
	subEntriesNameMap map[string]uint8
	reg               *region
}

// GetSubObject returns the [Variable] corresponding to a given subindex.
func (rec *VariableList) GetSubObject(subindex uint8) (*Variable, error) {
	if rec.objectType == ObjectTypeARRAY {
		subEntriesCount := len(rec.Variables)
		if subindex >= uint8(subEntriesCount) || rec.Variables[subindex] == nil {
			return nil, ErrSubNotExist
		}
		return rec.Variables[subindex], nil
	}
	for i, variable := range rec.Variables {
		if variable.SubIndex == subindex {
			return rec.Variables[i], nil
		}
	}
	return nil, ErrSubNotExist
}

// GetSubObjectByName returns the [Variable] corresponding to a given name.
func (rec *VariableList) GetSubObjectByName(name string) (*Variable, error) {
	sub, ok := rec.subEntriesNameMap[name]
	if !ok {
		return nil, ErrSubNotExist
	}
	return rec.GetSubObject(sub)
}

// AddSubObject adds a [Variable] to the VariableList. If the VariableList is
// an ARRAY then the subindex should be identical to the actual placement
// inside of the array. Otherwise it can be any valid subindex value, and the
// VariableList will grow accordingly. Adding a sub object always repacks the
// VariableList's backing region.
func (rec *VariableList) AddSubObject(
	subindex uint8,
	name string,
	datatype uint8,
	attribute uint8,
	value string,
) (*Variable, error) {
	variable, err := NewVariable(subindex, name, datatype, attribute, value)
	if err != nil {
		return nil, err
	}
	if rec.objectType == ObjectTypeARRAY {
		if int(subindex) >= len(rec.Variables) {
			_logger.Error("trying to add a sub-object to array but ouf of bounds",
				"subindex", subindex,
				"length", len(rec.Variables),
			)
			return nil, ErrSubNotExist
		}
		rec.subEntriesNameMap[name] = subindex
		rec.Variables[subindex] = variable
	} else {
		rec.subEntriesNameMap[name] = subindex
		rec.Variables = append(rec.Variables, variable)
	}
	rec.reg.rebuild(rec.Variables)
	return variable, nil
}

// RemoveSubObject detaches the [Variable] at subindex and rebuilds the
// backing region so every remaining sub-object is repacked without it. For
// a RECORD the sub-object is dropped entirely (the list shrinks); for a
// fixed-size ARRAY the slot is cleared back to nil and its subindex stays
// reserved, matching [AddSubObject]'s placement-by-subindex contract.
func (rec *VariableList) RemoveSubObject(subindex uint8) error {
	sub, err := rec.GetSubObject(subindex)
	if err != nil {
		return err
	}
	delete(rec.subEntriesNameMap, sub.Name)
	if rec.objectType == ObjectTypeARRAY {
		rec.Variables[subindex] = nil
	} else {
		for i, v := range rec.Variables {
			if v.SubIndex == subindex {
				rec.Variables = append(rec.Variables[:i], rec.Variables[i+1:]...)
				break
			}
		}
	}
	rec.reg.rebuild(rec.Variables)
	return nil
}

func newVariableList(length int, objectType uint8) *VariableList {
	return &VariableList{
		objectType:        objectType,
		Variables:         make([]*Variable, length),
		subEntriesNameMap: make(map[string]uint8),
		reg:               &region{},
	}
}

// NewRecord creates an empty RECORD object, growing as sub objects are added.
func NewRecord() *VariableList {
	return newVariableList(0, ObjectTypeRECORD)
}

// NewArray creates an ARRAY object with a fixed number of sub-indexes.
func NewArray(length uint8) *VariableList {
	return newVariableList(int(length), ObjectTypeARRAY)
}
