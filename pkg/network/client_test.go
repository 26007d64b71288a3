package network

import (
	"testing"

	"github.com/samsamfire/opencanopen/pkg/od"
	"github.com/stretchr/testify/assert"
)

func TestSDOReadExpedited(t *testing.T) {
	network := CreateNetworkTest()
	defer network.Disconnect()
	data := make([]byte, 10)
	for i := uint16(0); i < 8; i++ {
		_, err := network.ReadRaw(NodeIdTest, 0x2001+i, 0, data)
		assert.Nil(t, err)
	}
}

func TestSDOReadWriteLocal(t *testing.T) {
	network := CreateNetworkTest()
	defer network.Disconnect()
	localNode, err := network.CreateLocalNode(0x55, od.Default())
	assert.Nil(t, err)
	client := localNode.SDOclients[0]
	_, err = client.ReadUint32(0x55, 0x2007, 0x0)
	assert.Nil(t, err)
	err = client.WriteRaw(0x55, 0x2007, 0x0, uint32(5656), false)
	assert.Nil(t, err)
	val, err := client.ReadUint32(0x55, 0x2007, 0x0)
	assert.Nil(t, err)
	assert.Equal(t, uint32(5656), val)
	_, err = client.ReadUint64(0x55, 0x201B, 0x0)
	assert.Nil(t, err)
	err = client.WriteRaw(0x55, 0x201B, 0x0, uint64(8989), false)
	assert.Nil(t, err)
	val2, err := client.ReadUint64(0x55, 0x201B, 0x0)
	assert.Nil(t, err)
	assert.EqualValues(t, 8989, val2)
}

func TestSDOReadBlock(t *testing.T) {
	network := CreateNetworkTest()
	defer network.Disconnect()
	data, err := network.ReadAll(NodeIdTest, 0x200A, 0)
	assert.Nil(t, err)
	assert.Equal(t, "AStringCannotBeLongerThanTheDefaultValue", string(data))
}

// In-memory DOMAIN backing store used to receive block downloads
type domainStore struct {
	data []byte
}

func writeDomainStore(stream *od.Stream, data []byte, countWritten *uint16) error {
	store, ok := stream.Object.(*domainStore)
	if !ok {
		return od.ErrDevIncompat
	}
	store.data = append(store.data, data...)
	*countWritten = uint16(len(data))
	return nil
}

func readDomainStore(stream *od.Stream, data []byte, countRead *uint16) error {
	store, ok := stream.Object.(*domainStore)
	if !ok {
		return od.ErrDevIncompat
	}
	n := copy(data, store.data)
	*countRead = uint16(n)
	return nil
}

func TestSDOWriteBlock(t *testing.T) {
	network := CreateNetworkTest()
	defer network.Disconnect()
	data := []byte("some random string some random string some random string some random string some random string some random string some random string")
	node, err := network.Local(NodeIdTest)
	assert.Nil(t, err)
	store := &domainStore{}
	node.GetOD().AddDomain(0x3333, "Domain entry", store, readDomainStore, writeDomainStore)
	err = network.WriteRaw(NodeIdTest, 0x3333, 0, data, false)
	assert.Nil(t, err)
	assert.Equal(t, data, store.data)
}
