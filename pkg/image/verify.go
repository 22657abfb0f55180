package image

import (
	"github.com/robotalks/miniota/pkg/crc16"
	"github.com/robotalks/miniota/pkg/flash"
)

const verifyChunk = 256

// ReadHeader reads the header at slotAddr.
func ReadHeader(r flash.Reader, slotAddr uint32) (*Header, error) {
	var buf [HeaderSize]byte
	if err := r.Read(slotAddr, buf[:]); err != nil {
		return nil, err
	}
	var h Header
	if err := h.UnmarshalBinary(buf[:]); err != nil {
		return nil, err
	}
	return &h, nil
}

// Verify checks the image stored in the slot at slotAddr whose body can
// hold up to capacity bytes. It only reads flash.
func Verify(r flash.Reader, slotAddr, capacity uint32) (*Header, error) {
	h, err := ReadHeader(r, slotAddr)
	if err != nil {
		return nil, err
	}
	if err = h.Check(capacity); err != nil {
		return h, err
	}
	d, buf := crc16.New(), make([]byte, verifyChunk)
	addr, remain := slotAddr+HeaderSize, h.Size
	for remain > 0 {
		n := uint32(len(buf))
		if remain < n {
			n = remain
		}
		if err = r.Read(addr, buf[:n]); err != nil {
			return h, err
		}
		d.Update(buf[:n])
		addr += n
		remain -= n
	}
	if sum := d.Sum16(); sum != h.CRC16 {
		return h, &ChecksumError{Expected: h.CRC16, Actual: sum}
	}
	return h, nil
}

// Valid is the boolean form of Verify.
func Valid(r flash.Reader, slotAddr, capacity uint32) bool {
	_, err := Verify(r, slotAddr, capacity)
	return err == nil
}
