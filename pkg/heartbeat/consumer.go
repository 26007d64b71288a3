package heartbeat

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	canopen "github.com/samsamfire/opencanopen"
	"github.com/samsamfire/opencanopen/pkg/emergency"
	"github.com/samsamfire/opencanopen/pkg/nmt"
	"github.com/samsamfire/opencanopen/pkg/od"
)

const (
	HeartbeatUnconfigured = 0x00 // Consumer entry inactive
	HeartbeatUnknown      = 0x01 // Consumer enabled, but no heartbeat received yet
	HeartbeatActive       = 0x02 // Heartbeat received within set time
	HeartbeatTimeout      = 0x03 // No heartbeat received for set time
	ServiceId             = 0x700
)

const (
	EventNone = uint8(iota)
	EventStarted
	EventTimeout
	EventChanged
	EventBoot
)

// HBEventCallback is invoked on every liveness event of a monitored node :
// first heartbeat, timeout, NMT state change, or remote boot-up.
type HBEventCallback func(event uint8, index uint8, nodeId uint8, nmtState uint8)

// HBConsumer monitors the heartbeats of the nodes configured in object
// 0x1016, one [hbConsumerEntry] per sub-index. Node guarding (0x100C/
// 0x100D) is a separate, independent service : configuring one never
// disables the other.
type HBConsumer struct {
	bm                      *canopen.BusManager
	mu                      sync.Mutex
	logger                  *slog.Logger
	emcy                    *emergency.EMCY
	entries                 []*hbConsumerEntry
	allMonitoredActive      bool
	allMonitoredOperational bool
	eventCallback           HBEventCallback
	isOperational           bool
}

// checkAllMonitored recomputes the aggregate liveness view over every
// configured entry, clearing the consumer emergencies on the transition
// to all-active.
func (consumer *HBConsumer) checkAllMonitored() {
	consumer.mu.Lock()
	defer consumer.mu.Unlock()

	active := true
	operational := true
	for _, entry := range consumer.entries {
		entry.mu.Lock()
		state, nmtState := entry.hbState, entry.nmtState
		entry.mu.Unlock()

		if state == HeartbeatUnconfigured {
			continue
		}
		if state != HeartbeatActive {
			active = false
		}
		if nmtState != nmt.StateOperational {
			operational = false
		}
	}

	if !consumer.allMonitoredActive && active {
		consumer.emcy.ErrorReset(emergency.EmHeartbeatConsumer, 0)
		consumer.emcy.ErrorReset(emergency.EmHBConsumerRemoteReset, 0)
	}
	consumer.allMonitoredActive = active
	consumer.allMonitoredOperational = operational
}

// updateConsumerEntry re-targets the entry at index (0-based) and wires
// its heartbeat subscription. Monitoring the same remote node from two
// entries is rejected.
func (consumer *HBConsumer) updateConsumerEntry(index uint8, nodeId uint8, period time.Duration) error {
	if int(index) >= len(consumer.entries) {
		return canopen.ErrIllegalArgument
	}
	if period != 0 && nodeId != 0 {
		for i, other := range consumer.entries {
			if int(index) != i && other.timeoutPeriod != 0 && other.nodeId == nodeId {
				return canopen.ErrIllegalArgument
			}
		}
	}

	entry := consumer.entries[index]
	entry.mu.Lock()
	entry.update(nodeId, period)
	entry.mu.Unlock()

	if entry.hbState == HeartbeatUnconfigured {
		return nil
	}
	// Replace any previous subscription for this entry
	if entry.rxCancel != nil {
		entry.rxCancel()
	}
	consumer.logger.Info("will monitor", "monitoredId", entry.nodeId, "timeout", period)
	rxCancel, err := consumer.bm.Subscribe(uint32(entry.cobId), 0x7FF, false, entry)
	entry.rxCancel = rxCancel
	return err
}

// OnEvent registers a callback invoked on boot-up, timeout, first
// heartbeat and NMT state changes of any monitored node.
func (consumer *HBConsumer) OnEvent(callback HBEventCallback) {
	consumer.mu.Lock()
	defer consumer.mu.Unlock()
	consumer.eventCallback = callback
}

// Start arms the silence timer of every configured entry.
func (consumer *HBConsumer) Start() {
	consumer.mu.Lock()
	entries := consumer.entries
	consumer.mu.Unlock()

	for _, entry := range entries {
		entry.mu.Lock()
		configured := entry.hbState != HeartbeatUnconfigured
		entry.mu.Unlock()
		if configured {
			entry.restartTimeoutTimer()
		}
	}
}

// Stop cancels every pending silence timer and resets the per-entry state.
func (consumer *HBConsumer) Stop() {
	consumer.mu.Lock()
	defer consumer.mu.Unlock()

	for _, entry := range consumer.entries {
		entry.mu.Lock()
		if entry.timeoutCancel != nil {
			entry.timeoutCancel()
			entry.timeoutCancel = nil
		}
		entry.nmtState = nmt.StateUnknown
		entry.nmtStatePrev = nmt.StateUnknown
		if entry.hbState != HeartbeatUnconfigured {
			entry.hbState = HeartbeatUnknown
		}
		entry.mu.Unlock()
	}
	consumer.allMonitoredActive = false
	consumer.allMonitoredOperational = false
}

// OnStateChange follows the local NMT state : consumption runs in
// pre-operational & operational only.
func (consumer *HBConsumer) OnStateChange(state uint8) {
	isOperational := state == nmt.StateOperational || state == nmt.StatePreOperational

	consumer.mu.Lock()
	prevOperational := consumer.isOperational
	consumer.isOperational = isOperational
	consumer.mu.Unlock()

	if isOperational && !prevOperational {
		consumer.Start()
	} else if !isOperational && prevOperational {
		consumer.Stop()
	}
}

// NewHBConsumer creates the heartbeat consumer from object 0x1016 : one
// monitor per sub-index, each holding a (node id << 16 | period ms) value.
func NewHBConsumer(bm *canopen.BusManager, logger *slog.Logger, emcy *emergency.EMCY, entry1016 *od.Entry) (*HBConsumer, error) {
	if entry1016 == nil || bm == nil || emcy == nil {
		return nil, canopen.ErrIllegalArgument
	}
	if logger == nil {
		logger = slog.Default()
	}

	consumer := &HBConsumer{bm: bm, logger: logger.With("service", "[HB]"), emcy: emcy}

	nbEntries := uint8(entry1016.SubCount() - 1)
	consumer.logger.Info("number of entries to monitor nodes", "nb", nbEntries)
	consumer.entries = make([]*hbConsumerEntry, nbEntries)
	for i := range consumer.entries {
		consumer.entries[i] = &hbConsumerEntry{parent: consumer, odIndex: i}
	}

	for i := 0; i < int(nbEntries); i++ {
		hbConsValue, err := entry1016.Uint32(uint8(i) + 1)
		if err != nil {
			consumer.logger.Error("reading failed",
				"name", entry1016.Name,
				"index", fmt.Sprintf("x%x", entry1016.Index),
				"subindex", fmt.Sprintf("x%x", i+1),
				"error", err,
			)
			return nil, canopen.ErrOdParameters
		}
		nodeId := uint8(hbConsValue >> 16)
		period := uint16(hbConsValue & 0xFFFF)
		err = consumer.updateConsumerEntry(uint8(i), nodeId, time.Duration(period)*time.Millisecond)
		if err != nil {
			return nil, err
		}
	}
	entry1016.AddExtension(consumer, od.ReadEntryDefault, writeEntry1016)
	return consumer, nil
}
