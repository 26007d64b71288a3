package node

import (
	"errors"
	"log/slog"

	canopen "github.com/samsamfire/opencanopen"
	"github.com/samsamfire/opencanopen/pkg/emergency"
	"github.com/samsamfire/opencanopen/pkg/nmt"
	"github.com/samsamfire/opencanopen/pkg/od"
	"github.com/samsamfire/opencanopen/pkg/sdo"
	"github.com/samsamfire/opencanopen/pkg/sync"
)

// A RemoteNode is a bit different from a [LocalNode].
// It is a local representation of a remote node on the CAN bus
// and does not have the same standard CiA objects.
// Its goal is to simplify master control by providing some general
// features :
//   - SDOClient for reading / writing to remote node with given OD
//   - SYNC consumer
//
// A RemoteNode has the same id as the remote node that it controls
// however, being a direct local representation it may only be accessed
// locally.
type RemoteNode struct {
	*BaseNode
	remoteOd *od.ObjectDictionary // Remote node od, this does not change
	sync     *sync.SYNC           // Sync consumer
	emcy     *emergency.EMCY      // Emergency consumer (fake producer for logging internal errors)
}

// ProcessPDO is a no-op : PDO mapping/transmission is not part of this stack.
func (node *RemoteNode) ProcessPDO(syncWas bool, timeDifferenceUs uint32) {}

func (node *RemoteNode) ProcessSYNC(timeDifferenceUs uint32) bool {
	syncWas := false
	if node.sync != nil {
		event := node.sync.Process(true, timeDifferenceUs, nil)

		switch event {
		case sync.EventRxOrTx:
			syncWas = true
		case sync.EventPassedWindow:
		}
	}
	return syncWas
}

func (node *RemoteNode) ProcessMain(enableGateway bool, timeDifferenceUs uint32) uint8 {
	return nmt.ResetNot
}

func (node *RemoteNode) Reset() error {
	return nil
}

func (node *RemoteNode) Servers() []*sdo.SDOServer {
	return nil
}

// Client returns the SDO client used for reading/writing remote objects.
func (node *RemoteNode) Client() *sdo.SDOClient {
	return node.SDOClient
}

// Create a remote node
func NewRemoteNode(
	bm *canopen.BusManager,
	logger *slog.Logger,
	remoteOd *od.ObjectDictionary,
	remoteNodeId uint8,
) (*RemoteNode, error) {
	if bm == nil {
		return nil, errors.New("need at least busManager")
	}
	if remoteOd == nil {
		remoteOd = od.NewObjectDictionary(logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("id", remoteNodeId)
	base, err := newBaseNode(bm, logger, remoteOd, remoteNodeId)
	if err != nil {
		return nil, err
	}
	node := &RemoteNode{BaseNode: base}
	node.remoteOd = remoteOd

	// Ensure the remote OD carries the SYNC-related objects, then create a
	// local SYNC consumer bound to them
	node.od.AddSYNC()
	node.sync, err = sync.NewSYNC(
		bm,
		logger,
		nil,
		node.od.Index(od.EntryCobIdSYNC),
		node.od.Index(od.EntryCommunicationCyclePeriod),
		node.od.Index(od.EntrySynchronousWindowLength),
		node.od.Index(od.EntrySynchronousCounterOverflow),
	)
	if err != nil {
		logger.Warn("no SYNC consumer initialized for remote node", "error", err)
	}

	// Add empty EMCY, only used for logging for now
	node.emcy = emergency.NewEMCYForLogging(logger)

	return node, nil
}
