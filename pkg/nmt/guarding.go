package nmt

import (
	"log/slog"
	"sync"
	"time"

	canopen "github.com/samsamfire/opencanopen"
	"github.com/samsamfire/opencanopen/pkg/emergency"
	"github.com/samsamfire/opencanopen/pkg/od"
)

// Guarding implements the CiA 301 node guarding protocol : the slave
// side responds to remote-transmit-request polls from the master on
// its error-control COB-ID (the same 0x700+nodeId identifier used for
// heartbeat production) with its NMT state and an alternating toggle
// bit. If no poll is received within guard time x lifetime factor, a
// life guard event is reported through EMCY.
//
// Node guarding and heartbeat are independent services in this stack :
// enabling one does not disable the other, matching how the object
// dictionary exposes both 0x100C/0x100D and 0x1017 at the same time.
type Guarding struct {
	mu            sync.Mutex
	bm            *canopen.BusManager
	logger        *slog.Logger
	emcy          *emergency.EMCY
	nmt           *NMT
	nodeId        uint8
	guardTimeUs   uint32
	lifeTimeUs    uint32
	toggle        uint8
	lifeCancel    func()
	txBuff        canopen.Frame
	rxCancel      func()
	guardingEvent bool
}

// NewGuarding creates a node guarding responder for nmt, reading the
// guard time (entry1 0x100C, ms) and lifetime factor (entry2 0x100D)
// from the object dictionary. Guarding stays disabled (no timer, no
// RTR subscription) when either value is zero.
func NewGuarding(
	bm *canopen.BusManager,
	logger *slog.Logger,
	emcy *emergency.EMCY,
	nm *NMT,
	nodeId uint8,
	canIdHbTx uint16,
	entryGuardTime *od.Entry,
	entryLifeTimeFactor *od.Entry,
) (*Guarding, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if bm == nil || nm == nil {
		return nil, canopen.ErrIllegalArgument
	}

	g := &Guarding{
		bm:     bm,
		logger: logger.With("service", "[GUARD]"),
		emcy:   emcy,
		nmt:    nm,
		nodeId: nodeId,
		txBuff: canopen.NewFrame(uint32(canIdHbTx), 0, 1),
	}

	if entryGuardTime == nil || entryLifeTimeFactor == nil {
		return g, nil
	}
	guardTimeMs, err := entryGuardTime.Uint16(0)
	if err != nil {
		g.logger.Warn("no guard time configured, node guarding disabled", "error", err)
		return g, nil
	}
	lifeTimeFactor, err := entryLifeTimeFactor.Uint8(0)
	if err != nil {
		g.logger.Warn("no lifetime factor configured, node guarding disabled", "error", err)
		return g, nil
	}
	g.guardTimeUs = uint32(guardTimeMs) * 1000
	g.lifeTimeUs = g.guardTimeUs * uint32(lifeTimeFactor)
	if g.guardTimeUs == 0 || lifeTimeFactor == 0 {
		return g, nil
	}

	rxCancel, err := bm.Subscribe(uint32(canIdHbTx), 0x7FF, true, g)
	if err != nil {
		return nil, err
	}
	g.rxCancel = rxCancel
	g.restartLifeTimeTimer()
	return g, nil
}

// Handle answers a node guarding RTR poll with the current NMT state
// and toggles the reply bit, then restarts the lifetime timer.
func (g *Guarding) Handle(frame canopen.Frame) {
	g.mu.Lock()
	g.txBuff.Data[0] = g.nmt.GetInternalState() | g.toggle
	g.toggle ^= 0x80
	g.mu.Unlock()

	err := g.bm.Send(g.txBuff)
	if err != nil {
		g.logger.Warn("failed to send node guarding reply", "error", err)
	}
	g.restartLifeTimeTimer()
}

func (g *Guarding) restartLifeTimeTimer() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lifeTimeUs == 0 {
		return
	}
	if g.lifeCancel != nil {
		g.lifeCancel()
	}
	g.lifeCancel = g.bm.Schedule(time.Duration(g.lifeTimeUs)*time.Microsecond, false, g.lifeTimeTimeout)
}

func (g *Guarding) lifeTimeTimeout() {
	g.mu.Lock()
	g.guardingEvent = true
	g.mu.Unlock()

	g.logger.Warn("life guard event : no guarding request received in time")
	if g.emcy != nil {
		g.emcy.ErrorReport(emergency.EmHeartbeatConsumer, emergency.ErrHeartbeat, uint32(g.nodeId))
	}
}

// Event reports and clears whether a life guard timeout has occurred
// since the last call.
func (g *Guarding) Event() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	event := g.guardingEvent
	g.guardingEvent = false
	return event
}

// Stop cancels the RTR subscription and pending timer.
func (g *Guarding) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lifeCancel != nil {
		g.lifeCancel()
		g.lifeCancel = nil
	}
	if g.rxCancel != nil {
		g.rxCancel()
	}
}
