package sdo

import (
	"encoding/binary"

	"github.com/samsamfire/opencanopen/internal/crc"
)

const (
	// Number of data bytes per segment or block sub-block
	BlockSeqSize = 7
	// Maximum number of sub-blocks per block (also the highest valid node id)
	BlockMaxSize = 127
	// Base CAN ids of the predefined connection set
	ClientServiceId uint16 = 0x600
	ServerServiceId uint16 = 0x580
)

// SDOMessage is a raw 8 byte SDO request as received from a client.
// Accessors decode the command byte & multiplexor fields depending
// on the current transfer type.
type SDOMessage struct {
	raw [8]byte
}

func (m *SDOMessage) GetIndex() uint16 {
	return binary.LittleEndian.Uint16(m.raw[1:3])
}

func (m *SDOMessage) GetSubindex() uint8 {
	return m.raw[3]
}

func (m *SDOMessage) GetToggle() uint8 {
	return m.raw[0] & 0x10
}

// Expedited bit of a download initiate request
func (m *SDOMessage) IsExpedited() bool {
	return (m.raw[0] & 0x02) != 0
}

// Size indicated bit of a download initiate request
func (m *SDOMessage) IsSizeIndicated() bool {
	return (m.raw[0] & 0x01) != 0
}

// Size indicated bit of a block download initiate request
func (m *SDOMessage) IsSizeIndicatedBlock() bool {
	return (m.raw[0] & 0x02) != 0
}

// Full transfer size field, bytes 4..7
func (m *SDOMessage) SizeIndicated() uint32 {
	return binary.LittleEndian.Uint32(m.raw[4:])
}

// CRC enabled bit of a block initiate request
func (m *SDOMessage) IsCRCEnabled() bool {
	return (m.raw[0] & 0x04) != 0
}

// Sequence number of a block download sub-block
func (m *SDOMessage) Seqno() uint8 {
	return m.raw[0] & 0x7F
}

// True if more sub-blocks follow after this one
func (m *SDOMessage) SegmentRemaining() bool {
	return (m.raw[0] & 0x80) == 0
}

// Block size requested by client in a block upload initiate
func (m *SDOMessage) GetBlockSize() uint8 {
	return m.raw[4]
}

// CRC sent by client in a block download end request, bytes 1..2
func (m *SDOMessage) GetCRCClient() crc.CRC16 {
	return crc.CRC16(binary.LittleEndian.Uint16(m.raw[1:3]))
}

func (m *SDOMessage) IsAbort() bool {
	return m.raw[0] == 0x80
}

func (m *SDOMessage) GetAbortCode() SDOAbortCode {
	return SDOAbortCode(binary.LittleEndian.Uint32(m.raw[4:]))
}
