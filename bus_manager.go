package canopen

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const (
	// Max Standard CAN ID is 0x7FF (2047).
	MaxCanId = 0x7FF

	// The array must hold standard frames + RTR frames (so 2x size)
	LookupArraySize = (MaxCanId + 1) * 2
)

type subscriber struct {
	id       uint64
	callback FrameListener
}

// BusManager wraps a [Bus] and dispatches received frames to CAN-ID indexed
// subscribers. It is the single point through which every CANopen service
// sends and receives frames.
type BusManager struct {
	logger *slog.Logger
	mu     sync.Mutex
	bus    Bus
	timers *TimerRegistry

	listeners [LookupArraySize][]subscriber
	nextSubId uint64
	canError  uint16
}

func NewBusManager(bus Bus) *BusManager {
	return &BusManager{
		bus:    bus,
		logger: slog.Default(),
		timers: NewTimerRegistry(),
	}
}

// Schedule registers a one-shot or periodic timer callback on the shared
// [TimerRegistry]. See [TimerRegistry.Schedule].
func (bm *BusManager) Schedule(interval time.Duration, periodic bool, callback func()) (cancel func()) {
	return bm.timers.Schedule(interval, periodic, callback)
}

// Now returns the monotonic time timer deadlines are measured against.
func (bm *BusManager) Now() time.Time {
	return bm.timers.Now()
}

// Handle implements [FrameListener]. A [Bus] implementation calls this for
// every received frame, and it fans out to the interested subscribers.
func (bm *BusManager) Handle(frame Frame) {
	canId := frame.ID & unix.CAN_SFF_MASK
	idx := canId
	if frame.ID&CanRtrFlag != 0 {
		idx += MaxCanId + 1
	}
	if idx >= LookupArraySize {
		return
	}

	bm.mu.Lock()
	listeners := bm.listeners[idx]
	bm.mu.Unlock()

	for _, sub := range listeners {
		sub.callback.Handle(frame)
	}
}

func (bm *BusManager) SetBus(bus Bus) {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.bus = bus
}

func (bm *BusManager) Bus() Bus {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return bm.bus
}

// Send transmits a frame on the underlying bus.
func (bm *BusManager) Send(frame Frame) error {
	bm.mu.Lock()
	bus := bm.bus
	bm.mu.Unlock()
	err := bus.Send(frame)
	if err != nil {
		bm.logger.Warn("error sending frame", "err", err)
	}
	return err
}

// Process is called cyclically by the node/network main loop to refresh
// bus error state.
func (bm *BusManager) Process() error {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	bm.canError = 0
	return nil
}

// Subscribe registers callback for frames matching ident/mask/rtr.
// Returns a cancel func removing the subscription.
func (bm *BusManager) Subscribe(ident uint32, mask uint32, rtr bool, callback FrameListener) (cancel func(), err error) {
	bm.mu.Lock()
	defer bm.mu.Unlock()

	idx := ident & unix.CAN_SFF_MASK
	if rtr {
		idx += MaxCanId + 1
	}
	if idx >= LookupArraySize {
		return nil, fmt.Errorf("id %v out of range", ident)
	}

	bm.nextSubId++
	subId := bm.nextSubId
	// Register on every standard id whose bits selected by mask match ident
	base := idx - (ident & unix.CAN_SFF_MASK)
	var indexes []uint32
	for id := uint32(0); id <= MaxCanId; id++ {
		if (id^ident)&mask&unix.CAN_SFF_MASK == 0 {
			indexes = append(indexes, base+id)
			bm.listeners[base+id] = append(bm.listeners[base+id], subscriber{id: subId, callback: callback})
		}
	}

	cancel = func() {
		bm.mu.Lock()
		defer bm.mu.Unlock()
		for _, idx := range indexes {
			subs := bm.listeners[idx]
			for i, sub := range subs {
				if sub.id == subId {
					bm.listeners[idx] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
		}
	}
	return cancel, nil
}

// Error returns the last known CAN bus error bitmask.
func (bm *BusManager) Error() uint16 {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	return bm.canError
}
