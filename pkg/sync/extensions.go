package sync

import (
	"encoding/binary"

	canopen "github.com/samsamfire/opencanopen"
	"github.com/samsamfire/opencanopen/pkg/od"
)

// [SYNC] update cob id & if should be producer
func writeEntry1005(stream *od.Stream, data []byte, countWritten *uint16) error {
	if stream == nil || data == nil || countWritten == nil || stream.Subindex != 0 || len(data) != 4 {
		return od.ErrDevIncompat
	}
	sync, ok := stream.Object.(*SYNC)
	if !ok {
		return od.ErrDevIncompat
	}
	sync.mu.Lock()
	defer sync.mu.Unlock()

	cobIdSync := binary.LittleEndian.Uint32(data)
	canId := uint16(cobIdSync & 0x7FF)
	isProducer := (cobIdSync & 0x40000000) != 0
	if (cobIdSync&0xBFFFF800) != 0 || canopen.IsIDRestricted(canId) || (sync.isProducer && isProducer && canId != uint16(sync.cobId)) {
		return od.ErrInvalidValue
	}
	// Reconfigure the receive and transmit buffers only if changed
	if canId != uint16(sync.cobId) {
		_, err := sync.Subscribe(uint32(canId), 0x7FF, false, sync)
		if err != nil {
			return od.ErrDevIncompat
		}
		var frameSize uint8 = 0
		if sync.counterOverflow != 0 {
			frameSize = 1
		}
		sync.logger.Info("updating COB-ID", "prev", sync.cobId, "new", canId)
		sync.txBuffer = canopen.NewFrame(uint32(canId), 0, frameSize)
		sync.cobId = uint32(canId)
	}
	// Reset in case sync is producer, since producer / consumer role changed
	sync.isProducer = isProducer
	sync.rxNew = false
	sync.timer = 0
	sync.timeoutError = 0
	sync.logger.Info("sync type", "isProducer", isProducer)
	return od.WriteEntryDefault(stream, data, countWritten)
}

// [SYNC] update communication cycle period
func writeEntry1006(stream *od.Stream, data []byte, countWritten *uint16) error {
	if stream == nil || data == nil || countWritten == nil || stream.Subindex != 0 || len(data) != 4 {
		return od.ErrDevIncompat
	}
	sync, ok := stream.Object.(*SYNC)
	if !ok {
		return od.ErrDevIncompat
	}
	sync.mu.Lock()
	defer sync.mu.Unlock()

	sync.rawCommunicationCyclePeriod = data
	sync.timer = 0
	sync.logger.Info("updating communication cycle", "cyclePeriodUs", binary.LittleEndian.Uint32(data))
	return od.WriteEntryDefault(stream, data, countWritten)
}

// [SYNC] update pdo synchronous window length
func writeEntry1007(stream *od.Stream, data []byte, countWritten *uint16) error {
	if stream == nil || data == nil || countWritten == nil || stream.Subindex != 0 || len(data) != 4 {
		return od.ErrDevIncompat
	}
	sync, ok := stream.Object.(*SYNC)
	if !ok {
		return od.ErrDevIncompat
	}
	sync.mu.Lock()
	defer sync.mu.Unlock()

	sync.rawSynchronousWindowLength = data
	sync.logger.Info("updating synchronous window length", "windowLengthUs", binary.LittleEndian.Uint32(data))
	return od.WriteEntryDefault(stream, data, countWritten)
}

// [SYNC] update synchronous counter overflow
func writeEntry1019(stream *od.Stream, data []byte, countWritten *uint16) error {
	if stream == nil || data == nil || countWritten == nil || len(data) != 1 {
		return od.ErrDevIncompat
	}
	sync, ok := stream.Object.(*SYNC)
	if !ok {
		return od.ErrDevIncompat
	}
	sync.mu.Lock()
	defer sync.mu.Unlock()

	syncCounterOverflow := data[0]
	if syncCounterOverflow == 1 || syncCounterOverflow > 240 {
		return od.ErrInvalidValue
	}

	if binary.LittleEndian.Uint32(sync.rawCommunicationCyclePeriod) != 0 {
		return od.ErrDataDevState
	}

	var nbBytes = uint8(0)
	if syncCounterOverflow != 0 {
		nbBytes = 1
	}
	sync.txBuffer = canopen.NewFrame(sync.cobId, 0, nbBytes)
	sync.counterOverflow = syncCounterOverflow
	sync.logger.Info("updating synchronous counter overflow", "overflow", syncCounterOverflow)
	return od.WriteEntryDefault(stream, data, countWritten)
}
