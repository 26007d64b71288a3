package node

import (
	"log/slog"
	"sync"

	canopen "github.com/samsamfire/opencanopen"
	"github.com/samsamfire/opencanopen/pkg/config"
	"github.com/samsamfire/opencanopen/pkg/od"
	"github.com/samsamfire/opencanopen/pkg/sdo"
)

// BaseNode holds the fields and helpers shared by [LocalNode] and [RemoteNode].
type BaseNode struct {
	*canopen.BusManager
	*sdo.SDOClient
	mu     sync.Mutex
	logger *slog.Logger
	od     *od.ObjectDictionary
	id     uint8
}

func newBaseNode(
	bm *canopen.BusManager,
	logger *slog.Logger,
	odict *od.ObjectDictionary,
	nodeId uint8,
) (*BaseNode, error) {
	if logger == nil {
		logger = slog.Default()
	}
	// Every node carries its own loopback SDO client, used by Configurator()
	// to read/write its own object dictionary the same way a remote master
	// would.
	client, err := sdo.NewSDOClient(bm, logger, odict, nodeId, sdo.DefaultClientTimeout, nil)
	if err != nil {
		return nil, err
	}
	base := &BaseNode{
		BusManager: bm,
		SDOClient:  client,
		logger:     logger,
		od:         odict,
		id:         nodeId,
	}
	return base, nil
}

func (node *BaseNode) GetOD() *od.ObjectDictionary {
	return node.od
}

func (node *BaseNode) GetID() uint8 {
	return node.id
}

func (node *BaseNode) SetID(id uint8) {
	node.id = id
}

// Configurator returns a [config.NodeConfigurator] for reading/writing this
// node's own object dictionary through its loopback SDO client.
func (node *BaseNode) Configurator() *config.NodeConfigurator {
	return config.NewNodeConfigurator(node.id, node.logger, node.SDOClient)
}

// Node is the common interface implemented by [LocalNode] and [RemoteNode],
// consumed by [NodeProcessor] for periodic background/main processing.
type Node interface {
	// ProcessSYNC advances the SYNC consumer/producer and reports whether
	// a SYNC event (reception or transmission) occurred this period.
	ProcessSYNC(timeDifferenceUs uint32) bool
	// ProcessPDO is a no-op hook retained for services that key scheduling
	// off SYNC events; PDO mapping/transmission itself is out of scope.
	ProcessPDO(syncWas bool, timeDifferenceUs uint32)
	// ProcessMain refreshes the bus manager and EMCY (and, for a LocalNode,
	// the SDO servers' NMT state) and returns the pending NMT reset command,
	// if any (nmt.ResetNot when none). NMT, heartbeat and TIME run from
	// timers and frame callbacks.
	ProcessMain(enableGateway bool, timeDifferenceUs uint32) uint8
	// Reset re-initializes the node's communication-dependent services;
	// NodeProcessor calls it after a "reset node" (reset application) command.
	Reset() error
	// Servers returns the SDO servers that should be driven by their own
	// Process(ctx) goroutine.
	Servers() []*sdo.SDOServer
	GetOD() *od.ObjectDictionary
	GetID() uint8

	// Direct local OD accessors, provided by [BaseNode]
	ReadAny(index any, subindex any) (any, error)
	ReadAnyExact(index any, subindex any) (any, error)
	ReadBool(index any, subindex any) (bool, error)
	ReadUint(index any, subindex any) (uint64, error)
	ReadInt(index any, subindex any) (int64, error)
	ReadFloat(index any, subindex any) (float64, error)
	ReadString(index any, subindex any) (string, error)
}
