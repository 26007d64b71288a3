package node

import (
	"errors"
	"log/slog"
	"time"

	canopen "github.com/samsamfire/opencanopen"
	"github.com/samsamfire/opencanopen/pkg/emergency"
	"github.com/samsamfire/opencanopen/pkg/heartbeat"
	"github.com/samsamfire/opencanopen/pkg/nmt"
	"github.com/samsamfire/opencanopen/pkg/od"
	"github.com/samsamfire/opencanopen/pkg/sdo"
	s "github.com/samsamfire/opencanopen/pkg/sync"
	t "github.com/samsamfire/opencanopen/pkg/time"
)

// A [LocalNode] is a CiA 301 compliant CANopen node
// It supports all the standard CANopen objects.
// These objects will be loaded depending on the given OD.
// For configuration of the different CANopen objects see [NodeConfigurator].
type LocalNode struct {
	*BaseNode
	NMT        *nmt.NMT
	HBConsumer *heartbeat.HBConsumer
	Guarding   *nmt.Guarding
	SDOclients []*sdo.SDOClient
	SDOServers []*sdo.SDOServer
	SYNC       *s.SYNC
	EMCY       *emergency.EMCY
	TIME       *t.TIME
}

// ProcessPDO is a no-op : PDO mapping/transmission is not part of this
// stack, only the mappability metadata (0x14xx..0x1Bxx) is kept in the OD.
func (node *LocalNode) ProcessPDO(syncWas bool, timeDifferenceUs uint32) {}

func (node *LocalNode) ProcessSYNC(timeDifferenceUs uint32) bool {
	syncWas := false
	sy := node.SYNC
	if sy != nil {
		nmtState := node.NMT.GetInternalState()
		nmtIsPreOrOperational := nmtState == nmt.StatePreOperational || nmtState == nmt.StateOperational
		syncProcess := sy.Process(nmtIsPreOrOperational, timeDifferenceUs, nil)

		switch syncProcess {
		case s.EventRxOrTx:
			syncWas = true
		case s.EventPassedWindow:
		default:
		}
	}
	return syncWas
}

// ProcessMain processes canopen objects that are not RT.
// Does not process SYNC and PDOs.
func (node *LocalNode) ProcessMain(enableGateway bool, timeDifferenceUs uint32) uint8 {

	NMTState := node.NMT.GetInternalState()
	NMTisPreOrOperational := (NMTState == nmt.StatePreOperational) || (NMTState == nmt.StateOperational)

	// Propagate NMT state to server
	for _, server := range node.SDOServers {
		server.SetNMTState(NMTState)
	}

	node.BusManager.Process()
	node.EMCY.Process(NMTisPreOrOperational, timeDifferenceUs, nil)

	return node.NMT.GetPendingReset()
}

func (node *LocalNode) Servers() []*sdo.SDOServer {
	return node.SDOServers
}

// Reset restarts the NMT state machine; NodeProcessor calls it after a
// "reset node" (reset application) command. Heartbeat consumption and TIME
// follow automatically through
// the state change callback registered in initNMT.
func (node *LocalNode) Reset() error {
	node.NMT.Reset()
	return nil
}

// Initialize [emergency.EMCY] object
func (node *LocalNode) initEMCY() error {

	emcy, err := emergency.NewEMCY(
		node.BusManager,
		node.logger,
		node.id,
		node.od.Index(od.EntryErrorRegister),
		node.od.Index(od.EntryCobIdEMCY),
		node.od.Index(od.EntryInhibitTimeEMCY),
		node.od.Index(od.EntryManufacturerStatusRegister),
		nil,
	)
	if err != nil {
		node.logger.Error("init failed [EMCY] producer", "error", err)
		return canopen.ErrOdParameters
	}
	node.EMCY = emcy
	return nil
}

// Initialize [nmt.NMT] object, requires an EMCY object
func (node *LocalNode) initNMT(nmtControl uint16, firstHbTimeMs uint16) error {

	nm, err := nmt.NewNMT(
		node.BusManager,
		node.logger,
		node.EMCY,
		node.id,
		nmtControl,
		firstHbTimeMs,
		nmt.ServiceId,
		nmt.ServiceId,
		heartbeat.ServiceId+uint16(node.id),
		node.od.Index(od.EntryProducerHeartbeatTime),
	)
	if err != nil {
		node.logger.Error("init failed [NMT]", "error", err)
		return err
	}
	node.NMT = nm

	// Heartbeat consumption and TIME are event-driven off the NMT state ;
	// both are wired independently, neither disables the other.
	node.NMT.AddStateChangeCallback(func(state uint8) {
		if node.HBConsumer != nil {
			node.HBConsumer.OnStateChange(state)
		}
		if node.TIME != nil {
			node.TIME.SetOperational(state == nmt.StateOperational || state == nmt.StatePreOperational)
		}
	})
	return nil
}

// Initialize [nmt.Guarding] object (optional, independent of heartbeat)
func (node *LocalNode) initGuarding() error {
	guarding, err := nmt.NewGuarding(
		node.BusManager,
		node.logger,
		node.EMCY,
		node.NMT,
		node.id,
		heartbeat.ServiceId+uint16(node.id),
		node.od.Index(od.EntryGuardTime),
		node.od.Index(od.EntryLifeTimeFactor),
	)
	if err != nil {
		node.logger.Error("init failed [Guarding]", "error", err)
		return err
	}
	node.Guarding = guarding
	return nil
}

// Initialize [heartbeat.HBConsumer] object
func (node *LocalNode) initHBConsumer() error {

	hbCons, err := heartbeat.NewHBConsumer(
		node.BusManager,
		node.logger,
		node.EMCY,
		node.od.Index(od.EntryConsumerHeartbeatTime),
	)
	if err != nil {
		node.logger.Error("init failed [HBConsumer]", "error", err)
		return err
	}
	node.HBConsumer = hbCons
	return nil
}

// Initialize [sdo.SDOServer] object(s)
// Currently, only one server is supported (optionally)
func (node *LocalNode) initSDOServers(serverTimeoutMs uint32) error {
	entry1200 := node.od.Index(od.EntrySDOServerParameter)
	if entry1200 == nil {
		node.logger.Warn("no [SDOServer] initialized")
		return nil
	}
	sdoServers := make([]*sdo.SDOServer, 0)
	server, err := sdo.NewSDOServer(
		node.BusManager,
		node.logger,
		node.od,
		node.id,
		serverTimeoutMs,
		entry1200,
	)
	if err != nil {
		node.logger.Error("init failed [SDOServer]", "error", err)
		return err
	}
	sdoServers = append(sdoServers, server)
	node.SDOServers = sdoServers
	return nil
}

// Initialize [sdo.SDOClient] object(s)
func (node *LocalNode) initSDOClients(clientTimeoutMs uint32) error {

	entry1280 := node.od.Index(od.EntrySDOClientParameter)
	if entry1280 == nil {
		node.logger.Warn("no [SDOClient] initialized")
		return nil
	}
	sdoClients := make([]*sdo.SDOClient, 0)
	client, err := sdo.NewSDOClient(
		node.BusManager,
		node.logger,
		node.od, node.id,
		clientTimeoutMs,
		entry1280,
	)
	if err != nil {
		node.logger.Error("init failed [SDOClient]", "error", err)
		return err
	}
	sdoClients = append(sdoClients, client)
	node.SDOclients = sdoClients
	return nil
}

// Initialize [s.SYNC] object
func (node *LocalNode) initSYNC() error {

	sync, err := s.NewSYNC(
		node.BusManager,
		node.logger,
		node.EMCY,
		node.od.Index(od.EntryCobIdSYNC),
		node.od.Index(od.EntryCommunicationCyclePeriod),
		node.od.Index(od.EntrySynchronousWindowLength),
		node.od.Index(od.EntrySynchronousCounterOverflow),
	)
	if err != nil {
		node.logger.Error("init failed [SYNC]", "error", err)
		return err
	}
	node.SYNC = sync
	return nil
}

// Initialize [t.TIME] object
func (node *LocalNode) initTIME() error {

	timeSvc, err := t.NewTIME(
		node.BusManager,
		node.logger,
		node.od.Index(od.EntryCobIdTIME),
		time.Second,
	) // hardcoded for now
	if err != nil {
		node.logger.Error("init failed [TIME]", "error", err)
		return err
	}
	node.TIME = timeSvc
	return nil
}

// Initialize all CANopen components, called once from NewLocalNode
func (node *LocalNode) initAll(
	nmtControl uint16,
	firstHbTimeMs uint16,
	sdoServerTimeoutMs uint32,
	sdoClientTimeoutMs uint32,
) error {

	err := node.initEMCY()
	if err != nil {
		return err
	}

	err = node.initHBConsumer()
	if err != nil {
		return err
	}

	err = node.initTIME()
	if err != nil {
		return err
	}

	err = node.initNMT(nmtControl, firstHbTimeMs)
	if err != nil {
		return err
	}

	err = node.initGuarding()
	if err != nil {
		return err
	}

	err = node.initSDOServers(sdoServerTimeoutMs)
	if err != nil {
		return err
	}

	err = node.initSDOClients(sdoClientTimeoutMs)
	if err != nil {
		return err
	}

	err = node.initSYNC()
	if err != nil {
		return err
	}

	return nil
}

// Create a new local node
func NewLocalNode(
	bm *canopen.BusManager,
	logger *slog.Logger,
	odict *od.ObjectDictionary,
	nm *nmt.NMT,
	emcy *emergency.EMCY,
	nodeId uint8,
	nmtControl uint16,
	firstHbTimeMs uint16,
	sdoServerTimeoutMs uint32,
	sdoClientTimeoutMs uint32,
	blockTransferEnabled bool,
	statusBits *od.Entry,

) (*LocalNode, error) {

	if bm == nil || odict == nil {
		return nil, errors.New("need at least busManager and od parameters")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("id", nodeId)
	base, err := newBaseNode(bm, logger, odict, nodeId)
	if err != nil {
		return nil, err
	}
	node := &LocalNode{BaseNode: base}

	// Initialize all CANopen parts
	err = node.initAll(nmtControl, firstHbTimeMs, sdoServerTimeoutMs, sdoClientTimeoutMs)
	if err != nil {
		return nil, err
	}

	return node, nil
}
