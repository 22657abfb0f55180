package xmodem

import (
	"errors"
	"fmt"
)

var (
	// ErrBlockComplement indicates block + ^block != 0xFF.
	ErrBlockComplement = errors.New("block number and complement mismatch")
	// ErrCanceled indicates the peer canceled the transfer.
	ErrCanceled = errors.New("transfer canceled by peer")
	// ErrStartTimeout indicates the receiver never asked to start.
	ErrStartTimeout = errors.New("receiver not ready")
	// ErrTooManyRetries indicates a packet was not acknowledged in time.
	ErrTooManyRetries = errors.New("too many retries")
	// ErrBlockSize indicates an unsupported block size.
	ErrBlockSize = errors.New("block size must be 128 or 1024")
)

// ChecksumError is reported when a packet fails the CRC check.
type ChecksumError struct {
	Block    byte
	Expected uint16
	Actual   uint16
}

// Error implements error.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("block %d crc mismatch: sent 0x%04X, calculated 0x%04X", e.Block, e.Expected, e.Actual)
}

// SequenceError is reported for a block which is neither the expected one
// nor a retransmission of the previous one.
type SequenceError struct {
	Block    byte
	Expected byte
}

// Error implements error.
func (e *SequenceError) Error() string {
	return fmt.Sprintf("block %d out of sequence, expect %d", e.Block, e.Expected)
}
