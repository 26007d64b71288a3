package sdo

import (
	"context"
	"sync"
	"testing"
	"time"

	canopen "github.com/samsamfire/opencanopen"
	"github.com/samsamfire/opencanopen/internal/crc"
	"github.com/samsamfire/opencanopen/pkg/nmt"
	"github.com/samsamfire/opencanopen/pkg/od"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBus records every frame sent by the server so tests can assert on
// the exact bytes put on the wire.
type mockBus struct {
	mu     sync.Mutex
	frames []canopen.Frame
}

func (b *mockBus) Connect(...any) error                           { return nil }
func (b *mockBus) Disconnect() error                              { return nil }
func (b *mockBus) Subscribe(callback canopen.FrameListener) error { return nil }

func (b *mockBus) Send(frame canopen.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, frame)
	return nil
}

func (b *mockBus) pop() (canopen.Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) == 0 {
		return canopen.Frame{}, false
	}
	frame := b.frames[0]
	b.frames = b.frames[1:]
	return frame, true
}

func newServerOd() *od.ObjectDictionary {
	odict := od.NewObjectDictionary(nil)
	odict.AddVariableType(0x1000, "Device type", od.UNSIGNED32, od.AttributeSdoR, "0x0")
	sdoServer := od.NewRecord()
	sdoServer.AddSubObject(0, "Highest sub-index supported", od.UNSIGNED8, od.AttributeSdoR, "0x2")
	sdoServer.AddSubObject(1, "COB-ID client to server", od.UNSIGNED32, od.AttributeSdoR, "0x0")
	sdoServer.AddSubObject(2, "COB-ID server to client", od.UNSIGNED32, od.AttributeSdoR, "0x0")
	odict.AddVariableList(0x1200, "SDO server parameter", sdoServer)
	rec := od.NewRecord()
	rec.AddSubObject(0, "Highest sub-index supported", od.UNSIGNED8, od.AttributeSdoR, "0x3")
	rec.AddSubObject(1, "UNSIGNED32 value", od.UNSIGNED32, od.AttributeSdoRw, "0x0")
	rec.AddSubObject(2, "VISIBLE STRING value", od.VISIBLE_STRING, od.AttributeSdoRw, "HELLOWORLD")
	limited, _ := rec.AddSubObject(3, "LIMITED value", od.UNSIGNED8, od.AttributeSdoRw, "0x10")
	limited.SetLimits("0x05", "0xF0")
	odict.AddVariableList(0x2000, "Test object", rec)
	return odict
}

func newTestServer(t *testing.T, timeoutMs uint32, nmtState uint8) (*SDOServer, *mockBus, *od.ObjectDictionary) {
	t.Helper()
	bus := &mockBus{}
	bm := canopen.NewBusManager(bus)
	odict := newServerOd()
	server, err := NewSDOServer(bm, nil, odict, 5, timeoutMs, odict.Index(0x1200))
	require.NoError(t, err)
	server.SetNMTState(nmtState)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go server.Process(ctx)
	return server, bus, odict
}

func request(server *SDOServer, data [8]byte) {
	server.Handle(canopen.Frame{ID: 0x605, DLC: 8, Data: data})
}

func nextFrame(t *testing.T, bus *mockBus) canopen.Frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if frame, ok := bus.pop(); ok {
			return frame
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no frame received in time")
	return canopen.Frame{}
}

func TestServerExpeditedDownload(t *testing.T) {
	server, bus, odict := newTestServer(t, DefaultServerTimeout, nmt.StateOperational)

	request(server, [8]byte{0x23, 0x00, 0x20, 0x01, 0x78, 0x56, 0x34, 0x12})
	resp := nextFrame(t, bus)
	assert.EqualValues(t, 0x585, resp.ID)
	assert.Equal(t, [8]byte{0x60, 0x00, 0x20, 0x01, 0, 0, 0, 0}, resp.Data)

	val, err := odict.Index(0x2000).Uint32(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x12345678), val)
}

func TestServerExpeditedUpload(t *testing.T) {
	server, bus, odict := newTestServer(t, DefaultServerTimeout, nmt.StateOperational)
	require.NoError(t, odict.Index(0x2000).PutUint32(1, 0x12345678, true))

	request(server, [8]byte{0x40, 0x00, 0x20, 0x01, 0, 0, 0, 0})
	resp := nextFrame(t, bus)
	assert.Equal(t, [8]byte{0x43, 0x00, 0x20, 0x01, 0x78, 0x56, 0x34, 0x12}, resp.Data)
}

func TestServerSegmentedUpload(t *testing.T) {
	server, bus, _ := newTestServer(t, DefaultServerTimeout, nmt.StateOperational)

	// Initiate : server indicates a 10 byte transfer
	request(server, [8]byte{0x40, 0x00, 0x20, 0x02, 0, 0, 0, 0})
	resp := nextFrame(t, bus)
	assert.Equal(t, [8]byte{0x41, 0x00, 0x20, 0x02, 0x0A, 0, 0, 0}, resp.Data)

	// First segment : toggle 0, 7 bytes
	request(server, [8]byte{0x60, 0, 0, 0, 0, 0, 0, 0})
	resp = nextFrame(t, bus)
	assert.Equal(t, [8]byte{0x00, 'H', 'E', 'L', 'L', 'O', 'W', 'O'}, resp.Data)

	// Second segment : toggle 1, last, 3 bytes
	request(server, [8]byte{0x70, 0, 0, 0, 0, 0, 0, 0})
	resp = nextFrame(t, bus)
	assert.Equal(t, [8]byte{0x19, 'R', 'L', 'D', 0, 0, 0, 0}, resp.Data)
}

func TestServerSegmentedDownload(t *testing.T) {
	server, bus, odict := newTestServer(t, DefaultServerTimeout, nmt.StateOperational)

	request(server, [8]byte{0x21, 0x00, 0x20, 0x02, 0x0A, 0, 0, 0})
	resp := nextFrame(t, bus)
	assert.Equal(t, [8]byte{0x60, 0x00, 0x20, 0x02, 0, 0, 0, 0}, resp.Data)

	// First segment, toggle 0
	request(server, [8]byte{0x00, 'h', 'e', 'l', 'l', 'o', 'w', 'o'})
	resp = nextFrame(t, bus)
	assert.Equal(t, byte(0x20), resp.Data[0])

	// Client misses the response and resends : acknowledged again with
	// the same toggle, data not applied twice
	request(server, [8]byte{0x00, 'h', 'e', 'l', 'l', 'o', 'w', 'o'})
	resp = nextFrame(t, bus)
	assert.Equal(t, byte(0x20), resp.Data[0])

	// Last segment, toggle 1, 3 bytes
	request(server, [8]byte{0x19, 'r', 'l', 'd', 0, 0, 0, 0})
	resp = nextFrame(t, bus)
	assert.Equal(t, byte(0x30), resp.Data[0])

	sub, err := odict.Index(0x2000).SubIndex(2)
	require.NoError(t, err)
	val, err := sub.String()
	require.NoError(t, err)
	assert.Equal(t, "helloworld", val)
}

func TestServerToggleAbort(t *testing.T) {
	server, bus, _ := newTestServer(t, DefaultServerTimeout, nmt.StateOperational)

	request(server, [8]byte{0x21, 0x00, 0x20, 0x02, 0x0A, 0, 0, 0})
	nextFrame(t, bus)

	// First segment must carry toggle 0, not 1
	request(server, [8]byte{0x10, 'h', 'e', 'l', 'l', 'o', 'w', 'o'})
	resp := nextFrame(t, bus)
	assert.Equal(t, [8]byte{0x80, 0x00, 0x20, 0x02, 0x00, 0x00, 0x03, 0x05}, resp.Data)
}

func TestServerAbortOnBadSubIndex(t *testing.T) {
	server, bus, _ := newTestServer(t, DefaultServerTimeout, nmt.StateOperational)

	// 0x1000 is a VAR, sub-index 7 does not exist
	request(server, [8]byte{0x40, 0x00, 0x10, 0x07, 0, 0, 0, 0})
	resp := nextFrame(t, bus)
	assert.Equal(t, [8]byte{0x80, 0x00, 0x10, 0x07, 0x11, 0x00, 0x09, 0x06}, resp.Data)
}

func TestServerAbortOnUnknownCommand(t *testing.T) {
	server, bus, _ := newTestServer(t, DefaultServerTimeout, nmt.StateOperational)

	request(server, [8]byte{0xE0, 0x00, 0x20, 0x01, 0, 0, 0, 0})
	resp := nextFrame(t, bus)
	assert.Equal(t, byte(0x80), resp.Data[0])
	assert.Equal(t, [4]byte{0x01, 0x00, 0x04, 0x05}, [4]byte(resp.Data[4:8]))
}

func TestServerTimeout(t *testing.T) {
	server, bus, _ := newTestServer(t, 50, nmt.StateOperational)

	request(server, [8]byte{0x21, 0x00, 0x20, 0x02, 0x0A, 0, 0, 0})
	resp := nextFrame(t, bus)
	assert.Equal(t, byte(0x60), resp.Data[0])

	// No segment within the configured timeout : server aborts & idles
	resp = nextFrame(t, bus)
	assert.Equal(t, byte(0x80), resp.Data[0])
	assert.Equal(t, [4]byte{0x00, 0x00, 0x04, 0x05}, [4]byte(resp.Data[4:8]))
}

func TestServerBlockDownloadCRCMismatch(t *testing.T) {
	server, bus, odict := newTestServer(t, DefaultServerTimeout, nmt.StateOperational)

	// Initiate with CRC & size indicated, 10 bytes
	request(server, [8]byte{0xC6, 0x00, 0x20, 0x02, 0x0A, 0, 0, 0})
	resp := nextFrame(t, bus)
	assert.Equal(t, byte(0xA4), resp.Data[0])

	// Two sub-blocks, second is the last (bit 7)
	request(server, [8]byte{0x01, 'b', 'l', 'o', 'c', 'k', 'w', 'r'})
	request(server, [8]byte{0x82, 'i', 't', 'e', 0, 0, 0, 0})
	resp = nextFrame(t, bus)
	assert.Equal(t, byte(0xA2), resp.Data[0])
	assert.Equal(t, byte(2), resp.Data[1])

	// End of transfer : 4 bytes of the last sub-block carry no data,
	// and the CRC is deliberately off by one
	correct := crc.CRC16(0)
	correct.Block([]byte("blockwrite"))
	bad := uint16(correct) + 1
	request(server, [8]byte{0xC1 | (4 << 2), byte(bad), byte(bad >> 8), 0, 0, 0, 0, 0})
	resp = nextFrame(t, bus)
	assert.Equal(t, byte(0x80), resp.Data[0])
	assert.Equal(t, [4]byte{0x04, 0x00, 0x04, 0x05}, [4]byte(resp.Data[4:8]))

	// The target keeps its pre-transfer value
	sub, err := odict.Index(0x2000).SubIndex(2)
	require.NoError(t, err)
	val, err := sub.String()
	require.NoError(t, err)
	assert.Equal(t, "HELLOWORLD", val)
}

func TestServerBlockDownload(t *testing.T) {
	server, bus, odict := newTestServer(t, DefaultServerTimeout, nmt.StateOperational)

	request(server, [8]byte{0xC6, 0x00, 0x20, 0x02, 0x0A, 0, 0, 0})
	resp := nextFrame(t, bus)
	assert.Equal(t, byte(0xA4), resp.Data[0])

	request(server, [8]byte{0x01, 'b', 'l', 'o', 'c', 'k', 'w', 'r'})
	request(server, [8]byte{0x82, 'i', 't', 'e', 0, 0, 0, 0})
	resp = nextFrame(t, bus)
	assert.Equal(t, byte(0xA2), resp.Data[0])

	correct := crc.CRC16(0)
	correct.Block([]byte("blockwrite"))
	request(server, [8]byte{0xC1 | (4 << 2), byte(correct), byte(uint16(correct) >> 8), 0, 0, 0, 0, 0})
	resp = nextFrame(t, bus)
	assert.Equal(t, byte(0xA1), resp.Data[0])

	sub, err := odict.Index(0x2000).SubIndex(2)
	require.NoError(t, err)
	val, err := sub.String()
	require.NoError(t, err)
	assert.Equal(t, "blockwrite", val)
}

func TestServerBoundsEnforcement(t *testing.T) {
	server, bus, odict := newTestServer(t, DefaultServerTimeout, nmt.StateOperational)

	// Expedited download of a single byte above the configured maximum
	request(server, [8]byte{0x2F, 0x00, 0x20, 0x03, 0xFF, 0, 0, 0})
	resp := nextFrame(t, bus)
	assert.Equal(t, [8]byte{0x80, 0x00, 0x20, 0x03, 0x31, 0x00, 0x09, 0x06}, resp.Data)

	// Below the minimum
	request(server, [8]byte{0x2F, 0x00, 0x20, 0x03, 0x01, 0, 0, 0})
	resp = nextFrame(t, bus)
	assert.Equal(t, [8]byte{0x80, 0x00, 0x20, 0x03, 0x32, 0x00, 0x09, 0x06}, resp.Data)

	// In range succeeds and is committed
	request(server, [8]byte{0x2F, 0x00, 0x20, 0x03, 0x50, 0, 0, 0})
	resp = nextFrame(t, bus)
	assert.Equal(t, byte(0x60), resp.Data[0])
	val, err := odict.Index(0x2000).Uint8(3)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x50), val)
}

func TestServerRejectsRequestsWhenStopped(t *testing.T) {
	server, bus, _ := newTestServer(t, DefaultServerTimeout, nmt.StateStopped)

	request(server, [8]byte{0x23, 0x00, 0x20, 0x01, 0x78, 0x56, 0x34, 0x12})
	resp := nextFrame(t, bus)
	assert.Equal(t, byte(0x80), resp.Data[0])
	assert.Equal(t, [4]byte{0x22, 0x00, 0x00, 0x08}, [4]byte(resp.Data[4:8]))
}
