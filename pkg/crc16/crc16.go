// Package crc16 computes the CRC-16/XMODEM checksum shared by the image
// header, the metadata record and the transfer protocol.
package crc16

import (
	"github.com/snksoft/crc"
)

var table *crc.Table

func init() {
	// polynomial 0x1021, init 0, no reflection, no final xor.
	table = crc.NewTable(crc.XMODEM)
}

// Checksum calculates CRC-16/XMODEM over data.
func Checksum(data []byte) uint16 {
	return uint16(table.CalculateCRC(data))
}

// Digest accumulates CRC-16/XMODEM over multiple chunks.
type Digest struct {
	h *crc.Hash
}

// New creates a Digest.
func New() *Digest {
	return &Digest{h: crc.NewHashWithTable(table)}
}

// Update feeds more data.
func (d *Digest) Update(p []byte) {
	d.h.Update(p)
}

// Sum16 returns the checksum of everything fed so far.
func (d *Digest) Sum16() uint16 {
	return uint16(d.h.CRC())
}
