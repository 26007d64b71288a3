package od

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntrySubIndexByNameAndIndex(t *testing.T) {
	od := NewObjectDictionary(nil)
	rec := NewRecord()
	rec.AddSubObject(0, "highest sub-index", UNSIGNED8, AttributeSdoR, "0x2")
	rec.AddSubObject(1, "guard time", UNSIGNED16, AttributeSdoRw, "0x64")
	entry := od.AddVariableList(0x100C, "Guard time", rec)

	byIndex, err := entry.SubIndex(1)
	require.NoError(t, err)
	byName, err := entry.SubIndex("guard time")
	require.NoError(t, err)
	assert.Same(t, byIndex, byName)

	_, err = entry.SubIndex("missing")
	assert.Equal(t, ErrSubNotExist, err)
}

func TestEntryVarSubIndexMustBeZero(t *testing.T) {
	od := NewObjectDictionary(nil)
	entry, err := od.AddVariableType(0x2003, "scalar", UNSIGNED8, AttributeSdoRw, "0x1")
	require.NoError(t, err)

	_, err = entry.SubIndex(1)
	assert.Equal(t, ErrSubNotExist, err)
}

func TestEntrySetLimitsRejectsInvertedRange(t *testing.T) {
	od := NewObjectDictionary(nil)
	entry, err := od.AddVariableType(0x2004, "scalar", UNSIGNED8, AttributeSdoRw, "0x10")
	require.NoError(t, err)

	err = entry.SetLimits(0, "0xF0", "0x00")
	assert.Equal(t, ErrMaxLessMin, err)
}

func TestEntryWriteExactlyEnforcesBounds(t *testing.T) {
	od := NewObjectDictionary(nil)
	entry, err := od.AddVariableType(0x2005, "scalar", UNSIGNED8, AttributeSdoRw, "0x10")
	require.NoError(t, err)
	require.NoError(t, entry.SetLimits(0, "0x05", "0xF0"))

	// Within bounds succeeds.
	require.NoError(t, entry.WriteExactly(0, []byte{0x50}, false))
	sub, err := entry.SubIndex(0)
	require.NoError(t, err)
	v, err := sub.Uint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x50), v)

	// Above max is rejected and the prior value survives.
	err = entry.WriteExactly(0, []byte{0xFF}, false)
	assert.Equal(t, ErrValueHigh, err)
	v, err = sub.Uint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0x50), v)

	// Below min is rejected.
	err = entry.WriteExactly(0, []byte{0x01}, false)
	assert.Equal(t, ErrValueLow, err)
}

func TestObjectDictionaryRemoveObjectAndSubObject(t *testing.T) {
	od := NewObjectDictionary(nil)
	_, err := od.AddVariableType(0x2006, "scalar", UNSIGNED8, AttributeSdoRw, "0x1")
	require.NoError(t, err)

	rec := NewRecord()
	rec.AddSubObject(0, "highest sub-index", UNSIGNED8, AttributeSdoR, "0x1")
	rec.AddSubObject(1, "value", UNSIGNED32, AttributeSdoRw, "0x1")
	od.AddVariableList(0x2100, "record", rec)

	require.NoError(t, od.RemoveSubObject(0x2100, 1))
	entry := od.Index(0x2100)
	require.NotNil(t, entry)
	_, err = entry.SubIndex(1)
	assert.Equal(t, ErrSubNotExist, err)

	require.NoError(t, od.RemoveObject(0x2006))
	assert.Nil(t, od.Index(0x2006))
	assert.Nil(t, od.Index("scalar"))

	err = od.RemoveObject(0x2006)
	assert.Equal(t, ErrIdxNotExist, err)

	err = od.RemoveSubObject(0x9999, 0)
	assert.Equal(t, ErrIdxNotExist, err)

	_, err = od.AddVariableType(0x2007, "plain var", UNSIGNED8, AttributeSdoRw, "0x1")
	require.NoError(t, err)
	err = od.RemoveSubObject(0x2007, 0)
	assert.Equal(t, ErrDevIncompat, err)
}
