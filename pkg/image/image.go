// Package image defines the firmware image layout stored in each slot:
// a fixed 16-byte header followed by the image body.
package image

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/robotalks/miniota/pkg/crc16"
	"github.com/robotalks/miniota/pkg/flash"
)

// Magic identifies a valid header ("BLAP").
const Magic uint32 = 0x424C4150

// HeaderSize is the encoded size of Header.
const HeaderSize = 16

// Header is stored at the beginning of each slot.
type Header struct {
	Magic   uint32
	Size    uint32
	Version uint32
	CRC16   uint16
}

var (
	// ErrBadMagic indicates the header magic mismatches.
	ErrBadMagic = errors.New("bad image magic")
	// ErrBadSize indicates the image size is zero or exceeds the slot.
	ErrBadSize = errors.New("bad image size")
	// ErrTruncated indicates an image file shorter than its header declares.
	ErrTruncated = errors.New("image truncated")
)

// ChecksumError is reported when the body doesn't match the header CRC.
type ChecksumError struct {
	Expected uint16
	Actual   uint16
}

// Error implements error.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("image checksum mismatch: header 0x%04X, body 0x%04X", e.Expected, e.Actual)
}

// MarshalBinary encodes the header, little-endian, reserved bytes 0xFF.
func (h Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, HeaderSize)
	h.encode(b)
	return b, nil
}

func (h Header) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:], h.Magic)
	binary.LittleEndian.PutUint32(b[4:], h.Size)
	binary.LittleEndian.PutUint32(b[8:], h.Version)
	binary.LittleEndian.PutUint16(b[12:], h.CRC16)
	b[14], b[15] = flash.Erased, flash.Erased
}

// UnmarshalBinary decodes the header.
func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) < HeaderSize {
		return ErrTruncated
	}
	h.Magic = binary.LittleEndian.Uint32(b[0:])
	h.Size = binary.LittleEndian.Uint32(b[4:])
	h.Version = binary.LittleEndian.Uint32(b[8:])
	h.CRC16 = binary.LittleEndian.Uint16(b[12:])
	return nil
}

// Check validates the header fields against the slot capacity (the
// number of body bytes the slot can hold).
func (h *Header) Check(capacity uint32) error {
	if h.Magic != Magic {
		return ErrBadMagic
	}
	if h.Size == 0 || h.Size > capacity {
		return ErrBadSize
	}
	return nil
}

// Build creates an image file (header + body).
func Build(body []byte, version uint32) []byte {
	out := make([]byte, HeaderSize+len(body))
	Header{
		Magic:   Magic,
		Size:    uint32(len(body)),
		Version: version,
		CRC16:   crc16.Checksum(body),
	}.encode(out)
	copy(out[HeaderSize:], body)
	return out
}

// Parse decodes and validates an image file held in memory, returning
// the header and the body.
func Parse(file []byte) (*Header, []byte, error) {
	var h Header
	if err := h.UnmarshalBinary(file); err != nil {
		return nil, nil, err
	}
	if h.Magic != Magic {
		return &h, nil, ErrBadMagic
	}
	if h.Size == 0 {
		return &h, nil, ErrBadSize
	}
	if uint64(len(file)) < HeaderSize+uint64(h.Size) {
		return &h, nil, ErrTruncated
	}
	body := file[HeaderSize : HeaderSize+h.Size]
	if sum := crc16.Checksum(body); sum != h.CRC16 {
		return &h, body, &ChecksumError{Expected: h.CRC16, Actual: sum}
	}
	return &h, body, nil
}
