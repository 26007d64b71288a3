package od

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamerReadWriteVariable(t *testing.T) {
	od := NewObjectDictionary(nil)
	entry, err := od.AddVariableType(0x2000, "counter", UNSIGNED16, AttributeSdoRw, "0x0")
	require.NoError(t, err)

	err = entry.PutUint16(0, 42, false)
	require.NoError(t, err)

	val, err := entry.Uint16(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(42), val)
}

func TestStreamerPartialRead(t *testing.T) {
	od := NewObjectDictionary(nil)
	entry, err := od.AddVariableType(0x2001, "big", UNSIGNED32, AttributeSdoRw, "0x11223344")
	require.NoError(t, err)

	streamer, err := NewStreamer(entry, 0, false)
	require.NoError(t, err)

	buf := make([]byte, 2)
	countRead := uint16(0)
	err = streamer.reader(&streamer.Stream, buf, &countRead)
	assert.Equal(t, ErrPartial, err)
	assert.Equal(t, uint16(2), countRead)
}

func TestStreamerDomainWithoutExtensionDisabled(t *testing.T) {
	od := NewObjectDictionary(nil)
	entry, err := od.AddVariableType(0x2002, "blob", DOMAIN, AttributeSdoRw, "")
	require.NoError(t, err)

	streamer, err := NewStreamer(entry, 0, false)
	require.NoError(t, err)

	buf := make([]byte, 1)
	countRead := uint16(0)
	err = streamer.reader(&streamer.Stream, buf, &countRead)
	assert.Equal(t, ErrUnsuppAccess, err)
}
