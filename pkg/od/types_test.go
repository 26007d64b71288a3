package od

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeOddWidth(t *testing.T) {
	encoded, err := EncodeFromString("0x010203", UNSIGNED24, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x03, 0x02, 0x01}, encoded)

	decoded, err := DecodeToType(encoded, UNSIGNED24)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x010203), decoded)

	encoded, err = EncodeFromString("-1", INTEGER24, 0)
	require.NoError(t, err)
	decoded, err = DecodeToType(encoded, INTEGER24)
	require.NoError(t, err)
	assert.Equal(t, int64(-1), decoded)
}

func TestEncodeDecodeTimeOfDay(t *testing.T) {
	ref := time.Date(2026, time.July, 31, 12, 30, 0, 0, time.UTC)
	encoded := EncodeTimeOfDay(ref)
	assert.Len(t, encoded, 6)

	decoded, err := DecodeTimeOfDay(encoded)
	require.NoError(t, err)
	assert.True(t, decoded.Equal(ref))
}

func TestCheckSizeRejectsMismatch(t *testing.T) {
	assert.Equal(t, ErrDataShort, CheckSize(1, UNSIGNED32))
	assert.Equal(t, ErrDataLong, CheckSize(5, UNSIGNED32))
	assert.NoError(t, CheckSize(4, UNSIGNED32))
}

func TestEncodeFromTypeExactToBuffer(t *testing.T) {
	buf := make([]byte, 2)
	err := EncodeFromTypeExactToBuffer(uint16(0x1234), UNSIGNED16, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x34, 0x12}, buf)

	err = EncodeFromTypeExactToBuffer(uint32(1), UNSIGNED16, buf)
	assert.ErrorIs(t, err, ErrTypeMismatch)
}
