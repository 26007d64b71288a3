package od

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAddSubObjectPacksRegion(t *testing.T) {
	rec := NewRecord()
	_, err := rec.AddSubObject(0, "highest sub-index", UNSIGNED8, AttributeSdoR, "0x2")
	require.NoError(t, err)
	_, err = rec.AddSubObject(1, "value", UNSIGNED32, AttributeSdoRw, "0x12345678")
	require.NoError(t, err)

	raw := rec.Raw()
	assert.Len(t, raw, 5)
	assert.Equal(t, byte(0x2), raw[0])
	assert.Equal(t, []byte{0x78, 0x56, 0x34, 0x12}, raw[1:5])

	sub, err := rec.GetSubObjectByName("value")
	require.NoError(t, err)
	v, err := sub.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), v)
}

func TestArrayOutOfBounds(t *testing.T) {
	arr := NewArray(2)
	_, err := arr.AddSubObject(0, "first", UNSIGNED8, AttributeSdoRw, "0x1")
	require.NoError(t, err)
	_, err = arr.AddSubObject(5, "oob", UNSIGNED8, AttributeSdoRw, "0x1")
	assert.Equal(t, ErrSubNotExist, err)
}

// A partially filled ARRAY still has nil slots reserved for the
// not-yet-attached subindexes; adding one sub-object must not panic walking
// the rest, and an unfilled slot must read back as not existing rather than
// crash.
func TestArrayPartiallyFilledDoesNotPanic(t *testing.T) {
	arr := NewArray(9)
	_, err := arr.AddSubObject(0, "number of errors", UNSIGNED8, AttributeSdoR, "0x0")
	require.NoError(t, err)

	_, err = arr.GetSubObject(1)
	assert.Equal(t, ErrSubNotExist, err)

	_, err = arr.AddSubObject(3, "third", UNSIGNED32, AttributeSdoRw, "0x7")
	require.NoError(t, err)

	sub, err := arr.GetSubObject(3)
	require.NoError(t, err)
	v, err := sub.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x7), v)

	// The still-unfilled slot 1 must keep reading back as absent.
	_, err = arr.GetSubObject(1)
	assert.Equal(t, ErrSubNotExist, err)
}

func TestRecordRemoveSubObjectPreservesSurvivors(t *testing.T) {
	rec := NewRecord()
	_, err := rec.AddSubObject(0, "highest sub-index", UNSIGNED8, AttributeSdoR, "0x2")
	require.NoError(t, err)
	_, err = rec.AddSubObject(1, "first", UNSIGNED32, AttributeSdoRw, "0x11111111")
	require.NoError(t, err)
	_, err = rec.AddSubObject(2, "second", UNSIGNED32, AttributeSdoRw, "0x22222222")
	require.NoError(t, err)

	require.NoError(t, rec.RemoveSubObject(1))

	_, err = rec.GetSubObject(1)
	assert.Equal(t, ErrSubNotExist, err)

	survivor, err := rec.GetSubObject(2)
	require.NoError(t, err)
	v, err := survivor.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x22222222), v)
}
