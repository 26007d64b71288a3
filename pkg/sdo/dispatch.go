package sdo

import (
	"fmt"
)

// True if this request starts a new transfer (any of the four
// initiate commands)
func (m *SDOMessage) isInitiate() bool {
	switch m.raw[0] & 0xE0 {
	case 0x20, 0x40:
		return true
	case 0xC0:
		// Block download shares its CS with the end request (bit 0)
		return (m.raw[0] & 0x01) == 0
	case 0xA0:
		// Block upload sub-commands : 0 initiate, 1 end, 2 ack, 3 start
		return (m.raw[0] & 0x03) == 0
	}
	return false
}

// Process a single client request & advance the transfer state machine.
// Returned errors are [SDOAbortCode] values that should be sent back on
// the bus by the caller.
func (s *SDOServer) processIncoming(rx SDOMessage) error {

	// Abort from the client ends the transfer, no response expected
	if rx.IsAbort() {
		abortCode := rx.GetAbortCode()
		s.logger.Warn("[RX] abort from client",
			"index", fmt.Sprintf("x%x", rx.GetIndex()),
			"subindex", fmt.Sprintf("x%x", rx.GetSubindex()),
			"code", uint32(abortCode),
			"description", abortCode.Description(),
		)
		s.state = stateIdle
		return nil
	}

	// A fresh initiate while a transfer is in progress silently cancels
	// it and starts over. During the block download sub-block phase data
	// bytes are raw sequence numbers, never interpreted as commands.
	if s.state != stateIdle && s.state != stateDownloadBlkSubblockReq && rx.isInitiate() {
		s.logger.Debug("[RX] initiate while busy, restarting transfer", "state", s.state)
		s.state = stateIdle
	}

	// Determine the transfer type of a new request & check that the
	// requested entry is accessible
	if s.state == stateIdle {
		switch rx.raw[0] & 0xE0 {
		case 0x20:
			s.state = stateDownloadInitiateReq
		case 0x40:
			s.state = stateUploadInitiateReq
		case 0xC0:
			if (rx.raw[0] & 0x01) != 0 {
				// End request without a transfer in progress
				return AbortCmd
			}
			s.state = stateDownloadBlkInitiateReq
		case 0xA0:
			if (rx.raw[0] & 0x03) != 0 {
				return AbortCmd
			}
			s.state = stateUploadBlkInitiateReq
		default:
			return AbortCmd
		}
		err := s.updateStreamer(rx)
		if err != nil {
			return err
		}
	}

	switch s.state {
	case stateDownloadInitiateReq:
		return s.rxDownloadInitiate(rx)

	case stateDownloadSegmentReq:
		return s.rxDownloadSegment(rx)

	case stateUploadInitiateReq:
		return s.rxUploadInitiate(rx)

	case stateUploadSegmentReq:
		return s.rxUploadSegment(rx)

	case stateDownloadBlkInitiateReq:
		return s.rxDownloadBlockInitiate(rx)

	case stateDownloadBlkSubblockReq:
		return s.rxDownloadBlockSubBlock(rx)

	case stateDownloadBlkEndReq:
		return s.rxDownloadBlockEnd(rx)

	case stateUploadBlkInitiateReq:
		return s.rxUploadBlockInitiate(rx)

	case stateUploadBlkInitiateReq2:
		// Client starts the actual upload with the start sub-command
		if rx.raw[0] != 0xA3 {
			return AbortCmd
		}
		s.blockSequenceNb = 0
		s.state = stateUploadBlkSubblockSreq
		return nil

	case stateUploadBlkSubblockCrsp:
		return s.rxUploadSubBlock(rx)

	case stateUploadBlkEndCrsp:
		// Client confirms the end of a block upload, no response expected
		if rx.raw[0] != 0xA1 {
			return AbortCmd
		}
		s.state = stateIdle
		return nil

	default:
		return AbortCmd
	}
}

// Send the response(s) for the current state, if any is expected
func (s *SDOServer) processOutgoing() error {
	var err error

	s.txBuffer.Data = [8]byte{0}

	switch s.state {
	case stateDownloadInitiateRsp:
		s.txDownloadInitiate()

	case stateDownloadSegmentRsp:
		s.txDownloadSegment()

	case stateUploadInitiateRsp:
		s.txUploadInitiate()

	case stateUploadExpeditedRsp:
		s.txUploadExpedited()

	case stateUploadSegmentRsp:
		err = s.txUploadSegment()

	case stateDownloadBlkInitiateRsp:
		s.txDownloadBlockInitiate()

	case stateDownloadBlkSubblockRsp:
		err = s.txDownloadBlockSubBlock()

	case stateDownloadBlkEndRsp:
		s.txDownloadBlockEnd()

	case stateUploadBlkInitiateRsp:
		s.txUploadBlockInitiate()

	case stateUploadBlkSubblockSreq:
		// Sub-blocks are sent back to back until the block is complete
		err = s.txUploadBlockSubBlock()
		if err != nil {
			return err
		}
		if s.state == stateUploadBlkSubblockSreq {
			return s.processOutgoing()
		}

	case stateUploadBlkEndSreq:
		s.txUploadBlockEnd()
	}
	return err
}

// Send an abort & return to idle, discarding any partial transfer
func (s *SDOServer) txAbort(err error) {
	if sdoAbort, ok := err.(SDOAbortCode); ok {
		s.SendAbort(sdoAbort)
	} else {
		s.logger.Error("[TX] abort internal error, unknown abort code", "err", err)
		s.SendAbort(AbortGeneral)
	}
	s.state = stateIdle
	s.buf.Reset()
}
