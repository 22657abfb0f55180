package image

import (
	"errors"
	"io"

	"github.com/marcinbor85/gohex"

	"github.com/robotalks/miniota/pkg/flash"
)

// ErrEmptyHex indicates the Intel HEX input has no data.
var ErrEmptyHex = errors.New("no data in hex file")

// BodyFromHex flattens Intel HEX records into a contiguous body starting
// at the lowest address; gaps are filled with the erased value.
// It returns the body and its load address.
func BodyFromHex(r io.Reader) ([]byte, uint32, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, 0, err
	}
	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, 0, ErrEmptyHex
	}
	start, end := segments[0].Address, segments[0].Address
	for _, seg := range segments {
		if seg.Address < start {
			start = seg.Address
		}
		if e := seg.Address + uint32(len(seg.Data)); e > end {
			end = e
		}
	}
	body := mem.ToBinary(start, end-start, flash.Erased)
	return body, start, nil
}

// BuildFromHex builds an image file from Intel HEX input.
func BuildFromHex(r io.Reader, version uint32) ([]byte, uint32, error) {
	body, addr, err := BodyFromHex(r)
	if err != nil {
		return nil, 0, err
	}
	return Build(body, version), addr, nil
}
