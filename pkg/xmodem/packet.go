package xmodem

import (
	"io"

	"github.com/robotalks/miniota/pkg/crc16"
)

// Control bytes.
const (
	SOH  byte = 0x01
	STX  byte = 0x02
	EOT  byte = 0x04
	ACK  byte = 0x06
	NAK  byte = 0x15
	CAN  byte = 0x18
	CRCC byte = 'C'
)

// Payload sizes.
const (
	BlockSize    = 128
	BlockSize1K  = 1024
	MaxBlockSize = BlockSize1K
)

// Packet is one data packet.
type Packet struct {
	Block byte
	Data  []byte
}

// Start returns the leading control byte by payload size.
func (p *Packet) Start() byte {
	if len(p.Data) == BlockSize1K {
		return STX
	}
	return SOH
}

// Bytes returns encoded bytes for sending. Data must be BlockSize or
// BlockSize1K long.
func (p *Packet) Bytes() []byte {
	b := make([]byte, len(p.Data)+5)
	b[0], b[1], b[2] = p.Start(), p.Block, ^p.Block
	copy(b[3:], p.Data)
	sum := crc16.Checksum(p.Data)
	b[len(b)-2], b[len(b)-1] = byte(sum>>8), byte(sum)
	return b
}

// WriteTo implements io.WriterTo.
func (p *Packet) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(p.Bytes())
	return int64(n), err
}
