package nmt

import (
	"sync"
	"testing"
	"time"

	canopen "github.com/samsamfire/opencanopen"
	"github.com/samsamfire/opencanopen/pkg/od"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBus struct {
	mu     sync.Mutex
	frames []canopen.Frame
}

func (b *recordingBus) Connect(...any) error                           { return nil }
func (b *recordingBus) Disconnect() error                              { return nil }
func (b *recordingBus) Subscribe(callback canopen.FrameListener) error { return nil }

func (b *recordingBus) Send(frame canopen.Frame) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.frames = append(b.frames, frame)
	return nil
}

func (b *recordingBus) drain() []canopen.Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	frames := b.frames
	b.frames = nil
	return frames
}

func guardingFixture(t *testing.T, guardTimeMs string, lifeTimeFactor string) (*Guarding, *recordingBus, *canopen.BusManager) {
	t.Helper()
	bus := &recordingBus{}
	bm := canopen.NewBusManager(bus)
	odict := od.NewObjectDictionary(nil)
	entry1017, err := odict.AddVariableType(od.EntryProducerHeartbeatTime, "Producer heartbeat time", od.UNSIGNED16, od.AttributeSdoRw, "0x0")
	require.NoError(t, err)
	entryGuard, err := odict.AddVariableType(od.EntryGuardTime, "Guard time", od.UNSIGNED16, od.AttributeSdoRw, guardTimeMs)
	require.NoError(t, err)
	entryLife, err := odict.AddVariableType(od.EntryLifeTimeFactor, "Life time factor", od.UNSIGNED8, od.AttributeSdoRw, lifeTimeFactor)
	require.NoError(t, err)

	nm, err := NewNMT(bm, nil, nil, 5, 0, 0, ServiceId, ServiceId, 0x705, entry1017)
	require.NoError(t, err)
	bus.drain() // boot-up message

	guarding, err := NewGuarding(bm, nil, nil, nm, 5, 0x705, entryGuard, entryLife)
	require.NoError(t, err)
	t.Cleanup(guarding.Stop)
	return guarding, bus, bm
}

func TestGuardingAnswersPollWithToggle(t *testing.T) {
	_, bus, bm := guardingFixture(t, "0x32", "2")

	poll := canopen.Frame{ID: 0x705 | canopen.CanRtrFlag, DLC: 0}
	bm.Handle(poll)
	frames := bus.drain()
	require.Len(t, frames, 1)
	// Pre-operational state, toggle 0 on the first reply
	assert.Equal(t, byte(StatePreOperational), frames[0].Data[0])

	bm.Handle(poll)
	frames = bus.drain()
	require.Len(t, frames, 1)
	assert.Equal(t, byte(StatePreOperational)|byte(0x80), frames[0].Data[0])
}

func TestGuardingLifeTimeEvent(t *testing.T) {
	guarding, _, bm := guardingFixture(t, "0x14", "2")

	// Polls keep the lifetime timer fed
	poll := canopen.Frame{ID: 0x705 | canopen.CanRtrFlag, DLC: 0}
	bm.Handle(poll)
	time.Sleep(20 * time.Millisecond)
	bm.Handle(poll)
	assert.False(t, guarding.Event())

	// No poll for longer than guard time x lifetime factor
	time.Sleep(100 * time.Millisecond)
	assert.True(t, guarding.Event())
	// Reported exactly once
	assert.False(t, guarding.Event())
}

func TestGuardingDisabledWithoutConfiguration(t *testing.T) {
	guarding, _, bm := guardingFixture(t, "0x0", "2")

	poll := canopen.Frame{ID: 0x705 | canopen.CanRtrFlag, DLC: 0}
	bm.Handle(poll)
	time.Sleep(50 * time.Millisecond)
	assert.False(t, guarding.Event())
}
