package flash

import (
	"errors"
	"fmt"
)

var (
	// ErrLocked indicates write access was not unlocked.
	ErrLocked = errors.New("flash locked")
	// ErrOutOfRange indicates the address is outside of the device.
	ErrOutOfRange = errors.New("address out of range")
	// ErrUnaligned indicates the address is not aligned to the operation unit.
	ErrUnaligned = errors.New("address unaligned")
	// ErrPageOverflow indicates staged data doesn't fit in the page mirror.
	ErrPageOverflow = errors.New("page mirror overflow")
)

// VerifyError is reported when the programmed page doesn't read back
// as the mirror.
type VerifyError struct {
	Addr uint32
	Want byte
	Got  byte
}

// Error implements error.
func (e *VerifyError) Error() string {
	return fmt.Sprintf("verify failed at 0x%08X: want 0x%02X, got 0x%02X", e.Addr, e.Want, e.Got)
}
