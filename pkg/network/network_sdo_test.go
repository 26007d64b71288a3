package network

import (
	"testing"

	"github.com/samsamfire/opencanopen/pkg/od"
	"github.com/stretchr/testify/assert"
)

// The expected-value maps for the default OD are shared with node_test.go

func TestRead(t *testing.T) {
	network := CreateNetworkTest()
	defer network.Disconnect()
	for indexName, key := range SDO_UNSIGNED_READ_MAP {
		val, _ := network.Read(NodeIdTest, indexName, "")
		assert.Equal(t, key, val)
	}
	for indexName, key := range SDO_INTEGER_READ_MAP {
		val, _ := network.Read(NodeIdTest, indexName, "")
		assert.Equal(t, key, val)
	}
	for indexName, key := range SDO_FLOAT_READ_MAP {
		val, _ := network.Read(NodeIdTest, indexName, "")
		assert.Equal(t, key, val)
	}
}

func TestReadUint(t *testing.T) {
	network := CreateNetworkTest()
	defer network.Disconnect()
	for indexName, key := range SDO_UNSIGNED_READ_MAP {
		val, _ := network.ReadUint(NodeIdTest, indexName, "")
		assert.Equal(t, key, val)
	}
	_, err := network.ReadUint(NodeIdTest, "INTEGER8 value", "")
	assert.Equal(t, od.ErrTypeMismatch, err)
}

func TestReadInt(t *testing.T) {
	network := CreateNetworkTest()
	defer network.Disconnect()
	for indexName, key := range SDO_INTEGER_READ_MAP {
		val, _ := network.ReadInt(NodeIdTest, indexName, "")
		assert.Equal(t, key, val)
	}
	_, err := network.ReadInt(NodeIdTest, "UNSIGNED8 value", "")
	assert.Equal(t, od.ErrTypeMismatch, err)
}

func TestReadFloat(t *testing.T) {
	network := CreateNetworkTest()
	defer network.Disconnect()
	for indexName, key := range SDO_FLOAT_READ_MAP {
		val, _ := network.ReadFloat(NodeIdTest, indexName, "")
		assert.InDelta(t, key, val, 0.01)
	}
	_, err := network.ReadFloat(NodeIdTest, "UNSIGNED8 value", "")
	assert.Equal(t, od.ErrTypeMismatch, err)
}

func TestReadString(t *testing.T) {
	network := CreateNetworkTest()
	defer network.Disconnect()
	val, err := network.ReadString(NodeIdTest, "VISIBLE STRING value", "")
	assert.Equal(t, "AStringCannotBeLongerThanTheDefaultValue", val)
	assert.Equal(t, nil, err, err)
}

func TestWrite(t *testing.T) {
	network := CreateNetworkTest()
	defer network.Disconnect()
	err := network.Write(NodeIdTest, "REAL32 value", "", float32(1500.1))
	assert.Nil(t, err)
	val, _ := network.ReadFloat(NodeIdTest, "REAL32 value", "")
	assert.InDelta(t, 1500.1, val, 0.01)
}
