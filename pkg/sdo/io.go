package sdo

import (
	"encoding/binary"
	"io"
	"time"

	"github.com/samsamfire/opencanopen/pkg/od"
)

// rawReader adapts an upload in progress to io.Reader : each Read drives
// the client state machine and drains the transfer fifo into b.
type rawReader struct {
	client *SDOClient
}

// rawWriter adapts a download in progress to io.Writer : the payload is
// staged into the transfer fifo and the state machine is driven until the
// server confirms.
type rawWriter struct {
	client *SDOClient
}

// setupRawTransfer points the client at nodeId's default SDO channel from
// the predefined connection set.
func (client *SDOClient) setupRawTransfer(nodeId uint8) error {
	return client.setupServer(
		uint32(ClientServiceId)+uint32(nodeId),
		uint32(ServerServiceId)+uint32(nodeId),
		nodeId,
	)
}

// NewRawReader creates an io.Reader streaming the value at index/subindex
// from a remote node. No object dictionary is needed, so no checks are made
// on the expected data. With blockEnabled the client offers block transfer ;
// a server that does not support it, or a transfer below the protocol switch
// threshold, falls back to expedited/segmented automatically.
func (client *SDOClient) NewRawReader(nodeId uint8, index uint16, subindex uint8, blockEnabled bool, size uint32,
) (io.Reader, error) {
	_ = size // upload size is announced by the server
	if err := client.setupRawTransfer(nodeId); err != nil {
		return nil, err
	}
	if err := client.uploadSetup(index, subindex, blockEnabled); err != nil {
		return nil, err
	}
	return &rawReader{client: client}, nil
}

// NewRawWriter creates an io.Writer streaming a value of the given size to
// index/subindex on a remote node. No object dictionary is needed, so no
// checks are made on the expected data. With blockEnabled the client offers
// block transfer, falling back to expedited/segmented like NewRawReader.
func (client *SDOClient) NewRawWriter(nodeId uint8, index uint16, subindex uint8, blockEnabled bool, size uint32,
) (io.Writer, error) {
	if err := client.setupRawTransfer(nodeId); err != nil {
		return nil, err
	}
	if err := client.downloadSetup(index, subindex, size, blockEnabled); err != nil {
		return nil, err
	}
	return &rawWriter{client: client}, nil
}

// Read implements io.Reader, returning io.EOF once the transfer completed
// and the fifo is fully drained.
func (r *rawReader) Read(b []byte) (n int, err error) {
	client := r.client
	for {
		ret, err := client.upload(DefaultClientProcessPeriodUs, false, nil, nil, nil)
		switch {
		case err != nil:
			return n, err
		case ret == uploadDataFull:
			// Make room before the state machine can continue
			n += client.fifo.Read(b[n:], nil)
		case ret == success:
			n += client.fifo.Read(b[n:], nil)
			return n, io.EOF
		}
		if n >= len(b) {
			return n, nil
		}
		time.Sleep(time.Duration(client.processingPeriodUs) * time.Microsecond)
	}
}

// Write implements io.Writer. Writing in several calls is only possible
// with block transfers : expedited & segmented downloads start consuming
// the fifo on the first state machine run, so those must receive the exact
// transfer size in one call.
func (w *rawWriter) Write(b []byte) (n int, err error) {
	client := w.client

	staged := client.fifo.Write(b, nil)
	sizeTransferred := uint32(0)
	for {
		bufferPartial := staged < len(b)
		ret, err := client.downloadMain(
			DefaultClientProcessPeriodUs,
			false,
			bufferPartial,
			&sizeTransferred,
			nil,
			false,
		)
		switch {
		case err != nil:
			return int(sizeTransferred), err
		case ret == blockDownloadInProgress && bufferPartial:
			// Keep topping the fifo up while the block transfer runs
			staged += client.fifo.Write(b[staged:], nil)
		case ret == success:
			return int(sizeTransferred), nil
		}
		time.Sleep(time.Duration(client.processingPeriodUs) * time.Microsecond)
	}
}

// ReadRaw reads the value at index/subindex on a remote node into data,
// blocking until the transfer ends. Returns the number of bytes received.
func (client *SDOClient) ReadRaw(nodeId uint8, index uint16, subindex uint8, data []byte) (int, error) {
	r, err := client.NewRawReader(nodeId, index, subindex, true, 0)
	if err != nil {
		return 0, err
	}
	n, err := r.Read(data)
	if err != nil && err != io.EOF {
		return n, err
	}
	return n, nil
}

// ReadAll reads the whole value at index/subindex on a remote node,
// whatever its size. Similar to io.ReadAll.
func (client *SDOClient) ReadAll(nodeId uint8, index uint16, subindex uint8) ([]byte, error) {
	r, err := client.NewRawReader(nodeId, index, subindex, true, 0)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

// WriteRaw encodes data (any Go scalar, string or []byte) and writes it to
// index/subindex on a remote node, blocking until the transfer ends.
func (client *SDOClient) WriteRaw(nodeId uint8, index uint16, subindex uint8, data any, forceSegmented bool) error {
	_ = forceSegmented
	encoded, err := od.EncodeFromGeneric(data)
	if err != nil {
		return err
	}
	w, err := client.NewRawWriter(nodeId, index, subindex, true, uint32(len(encoded)))
	if err != nil {
		return err
	}
	_, err = w.Write(encoded)
	return err
}

// readExactly reads a fixed-width value of width bytes, erroring on any
// other received size.
func (client *SDOClient) readExactly(nodeId uint8, index uint16, subindex uint8, width int) ([]byte, error) {
	buf := make([]byte, width)
	n, err := client.ReadRaw(nodeId, index, subindex, buf)
	if err != nil {
		return nil, err
	}
	if n != width {
		return nil, od.ErrTypeMismatch
	}
	return buf, nil
}

// ReadUint8 reads an UNSIGNED8 value from a remote node.
func (client *SDOClient) ReadUint8(nodeId uint8, index uint16, subindex uint8) (uint8, error) {
	buf, err := client.readExactly(nodeId, index, subindex, 1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadUint16 reads an UNSIGNED16 value from a remote node.
func (client *SDOClient) ReadUint16(nodeId uint8, index uint16, subindex uint8) (uint16, error) {
	buf, err := client.readExactly(nodeId, index, subindex, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf), nil
}

// ReadUint32 reads an UNSIGNED32 value from a remote node.
func (client *SDOClient) ReadUint32(nodeId uint8, index uint16, subindex uint8) (uint32, error) {
	buf, err := client.readExactly(nodeId, index, subindex, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// ReadUint64 reads an UNSIGNED64 value from a remote node.
func (client *SDOClient) ReadUint64(nodeId uint8, index uint16, subindex uint8) (uint64, error) {
	buf, err := client.readExactly(nodeId, index, subindex, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}
