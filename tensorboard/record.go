package tensorboard

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// ErrCorruptRecord is returned when a record checksum does not match
var ErrCorruptRecord = errors.New("corrupt record")

// maskedCRC is the TFRecord checksum of data
func maskedCRC(data []byte) uint32 {
	crc := crc32.Checksum(data, castagnoli)
	return ((crc >> 15) | (crc << 17)) + 0xa282ead8
}

// writeRecord frames data as length, length checksum, payload, payload checksum
func writeRecord(w io.Writer, data []byte) error {
	var header [12]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(len(data)))
	binary.LittleEndian.PutUint32(header[8:], maskedCRC(header[:8]))

	var footer [4]byte
	binary.LittleEndian.PutUint32(footer[:], maskedCRC(data))

	for _, chunk := range [][]byte{header[:], data, footer[:]} {
		if _, err := w.Write(chunk); err != nil {
			return err
		}
	}
	return nil
}

// readRecord returns the next payload, or io.EOF at a clean end of stream
func readRecord(r io.Reader) ([]byte, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("truncated record header: %w", err)
		}
		return nil, err
	}
	if binary.LittleEndian.Uint32(header[8:]) != maskedCRC(header[:8]) {
		return nil, fmt.Errorf("length checksum mismatch: %w", ErrCorruptRecord)
	}

	length := binary.LittleEndian.Uint64(header[:8])
	data := make([]byte, length+4)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("truncated record body: %w", err)
	}
	payload := data[:length]
	if binary.LittleEndian.Uint32(data[length:]) != maskedCRC(payload) {
		return nil, fmt.Errorf("payload checksum mismatch: %w", ErrCorruptRecord)
	}
	return payload, nil
}
