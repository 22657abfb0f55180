package crc16

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	require.Equal(t, uint16(0x31C3), Checksum([]byte("123456789")))
	require.Equal(t, uint16(0), Checksum(nil))
}

func TestDigestMatchesChecksum(t *testing.T) {
	data := make([]byte, 3000)
	for i := range data {
		data[i] = byte(i * 7)
	}
	d := New()
	for off := 0; off < len(data); off += 256 {
		end := off + 256
		if end > len(data) {
			end = len(data)
		}
		d.Update(data[off:end])
	}
	require.Equal(t, Checksum(data), d.Sum16())
}
