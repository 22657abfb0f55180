package ota

import (
	"errors"
	"fmt"
)

// Configuration faults, wrapped by ConfigError.
var (
	ErrConfigRange    = errors.New("update region outside of flash")
	ErrConfigAlign    = errors.New("update region not page aligned")
	ErrConfigSize     = errors.New("application region smaller than a page")
	ErrConfigPageSize = errors.New("unsupported page size")
)

var (
	// ErrMetaMagic indicates the metadata page was never written.
	ErrMetaMagic = errors.New("metadata magic mismatch")
	// ErrMetaChecksum indicates a torn metadata write.
	ErrMetaChecksum = errors.New("metadata checksum mismatch")
	// ErrStackPointer indicates the initial stack pointer is outside of flash.
	ErrStackPointer = errors.New("initial stack pointer out of range")
	// ErrResetVector indicates the reset handler is not a thumb address.
	ErrResetVector = errors.New("reset handler address is even")
	// ErrHandoffReturned indicates control came back from the application.
	ErrHandoffReturned = errors.New("returned from application")
	// ErrNoBootableImage indicates both slots are unusable and no image was received.
	ErrNoBootableImage = errors.New("no bootable image")
)

// ConfigError is a static misconfiguration. Boot refuses to run on it.
type ConfigError struct {
	Kind   error
	Detail string
}

// Error implements error.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %v: %s", e.Kind, e.Detail)
}

// Unwrap returns the kind.
func (e *ConfigError) Unwrap() error {
	return e.Kind
}
