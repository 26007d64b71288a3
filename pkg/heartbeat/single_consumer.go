package heartbeat

import (
	"sync"
	"time"

	canopen "github.com/samsamfire/opencanopen"
	"github.com/samsamfire/opencanopen/pkg/emergency"
	"github.com/samsamfire/opencanopen/pkg/nmt"
)

// A single monitored remote node : one sub-index of object 0x1016.
// Reception and timeout detection are handled here, the owning
// [HBConsumer] aggregates the results.
type hbConsumerEntry struct {
	mu            sync.Mutex
	nodeId        uint8
	cobId         uint16
	nmtState      uint8
	nmtStatePrev  uint8
	hbState       uint8
	timeoutPeriod time.Duration
	timeoutCancel func()
	rxCancel      func()
	parent        *HBConsumer
	odIndex       int
}

// Handle processes one heartbeat frame from the monitored node.
func (entry *hbConsumerEntry) Handle(frame canopen.Frame) {
	if frame.DLC != 1 {
		return
	}
	consumer := entry.parent

	entry.mu.Lock()
	entry.nmtState = frame.Data[0]
	event := EventNone

	if entry.nmtState == nmt.StateInitializing {
		// A boot-up message from a node we considered alive means the
		// remote rebooted behind our back
		if entry.hbState == HeartbeatActive {
			consumer.emcy.ErrorReport(emergency.EmHBConsumerRemoteReset, emergency.ErrHeartbeat, uint32(entry.odIndex))
		}
		event = EventBoot
		entry.hbState = HeartbeatUnknown
	} else {
		if entry.hbState != HeartbeatActive {
			event = EventStarted
		}
		entry.hbState = HeartbeatActive
	}
	entry.mu.Unlock()

	entry.restartTimeoutTimer()

	entry.mu.Lock()
	if event != EventNone && consumer.eventCallback != nil {
		consumer.eventCallback(event, uint8(entry.odIndex+1), entry.nodeId, nmt.StateInitializing)
	}
	if entry.nmtState != entry.nmtStatePrev && consumer.eventCallback != nil {
		consumer.eventCallback(EventChanged, uint8(entry.odIndex+1), entry.nodeId, entry.nmtState)
	}
	entry.nmtStatePrev = entry.nmtState
	entry.mu.Unlock()

	consumer.checkAllMonitored()
}

// restartTimeoutTimer feeds the per-node silence timer on the shared
// registry. A zero period means the entry is not monitored.
func (entry *hbConsumerEntry) restartTimeoutTimer() {
	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.timeoutCancel != nil {
		entry.timeoutCancel()
		entry.timeoutCancel = nil
	}
	if entry.timeoutPeriod == 0 {
		return
	}
	entry.timeoutCancel = entry.parent.bm.Schedule(entry.timeoutPeriod, false, entry.timeoutHandler)
}

// timeoutHandler fires when the monitored node stayed silent for the
// configured period. Only a previously active node raises an event :
// a node that never spoke cannot time out.
func (entry *hbConsumerEntry) timeoutHandler() {
	parent := entry.parent

	entry.mu.Lock()
	timedOut := entry.hbState == HeartbeatActive
	if timedOut {
		entry.nmtState = nmt.StateUnknown
		entry.hbState = HeartbeatTimeout
	}
	entry.mu.Unlock()

	if timedOut {
		parent.emcy.ErrorReport(emergency.EmHeartbeatConsumer, emergency.ErrHeartbeat, uint32(entry.odIndex))
		if parent.eventCallback != nil {
			parent.eventCallback(EventTimeout, uint8(entry.odIndex+1), entry.nodeId, nmt.StateUnknown)
		}
	}
	parent.checkAllMonitored()
}

// update re-targets the entry at a new node id & expected period. A zero
// id or period deactivates it.
func (entry *hbConsumerEntry) update(nodeId uint8, period time.Duration) {
	entry.nodeId = nodeId
	entry.timeoutPeriod = period
	entry.nmtState = nmt.StateUnknown
	entry.nmtStatePrev = nmt.StateUnknown

	if entry.nodeId != 0 && entry.timeoutPeriod != 0 {
		entry.cobId = uint16(entry.nodeId) + ServiceId
		entry.hbState = HeartbeatUnknown
	} else {
		entry.cobId = 0
		entry.timeoutPeriod = 0
		entry.hbState = HeartbeatUnconfigured
	}
}
