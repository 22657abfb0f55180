package ota

import (
	"encoding/binary"
	"fmt"

	"github.com/robotalks/miniota/pkg/crc16"
)

// MetaMagic marks a written metadata record.
const MetaMagic uint32 = 0x5A5A0001

// MetaSize is the encoded size of Meta.
const MetaSize = 16

// metaCRCLen is the length covered by the record checksum.
const metaCRCLen = 11

// Slot identifies one of the two image slots.
type Slot uint8

// Slots.
const (
	SlotA Slot = 0
	SlotB Slot = 1
)

// Other returns the other slot.
func (s Slot) Other() Slot {
	if s == SlotA {
		return SlotB
	}
	return SlotA
}

func (s Slot) String() string {
	switch s {
	case SlotA:
		return "A"
	case SlotB:
		return "B"
	}
	return fmt.Sprintf("Slot(%d)", uint8(s))
}

// SlotStatus is the confirmation state of a slot.
type SlotStatus uint8

// Slot states. Empty is the erased value.
const (
	StatusUnconfirmed SlotStatus = 0x00
	StatusValid       SlotStatus = 0x01
	StatusInvalid     SlotStatus = 0x02
	StatusEmpty       SlotStatus = 0xFF
)

func (s SlotStatus) String() string {
	switch s {
	case StatusUnconfirmed:
		return "unconfirmed"
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	case StatusEmpty:
		return "empty"
	}
	return fmt.Sprintf("SlotStatus(0x%02x)", uint8(s))
}

// Bootable indicates a slot in this state may be jumped to once verified.
func (s SlotStatus) Bootable() bool {
	return s == StatusUnconfirmed || s == StatusValid
}

// Meta is the persistent update state.
type Meta struct {
	Seq    uint32
	Active Slot
	Status [2]SlotStatus
}

// DefaultMeta is the factory state: slot A active, both empty.
func DefaultMeta() Meta {
	return Meta{Active: SlotA, Status: [2]SlotStatus{StatusEmpty, StatusEmpty}}
}

// StatusOf returns the status of slot s.
func (m Meta) StatusOf(s Slot) SlotStatus {
	return m.Status[s&1]
}

// SetStatus sets the status of slot s.
func (m *Meta) SetStatus(s Slot, st SlotStatus) {
	m.Status[s&1] = st
}

// Bootstrapping indicates nothing was ever flashed into slot A.
func (m Meta) Bootstrapping() bool {
	return m.Active == SlotA && m.Status[SlotA] == StatusEmpty
}

func (m Meta) String() string {
	return fmt.Sprintf("seq=%d active=%s A=%s B=%s", m.Seq, m.Active, m.Status[SlotA], m.Status[SlotB])
}

// MarshalBinary encodes the record, reserved bytes are erased.
func (m *Meta) MarshalBinary() ([]byte, error) {
	b := make([]byte, MetaSize)
	binary.LittleEndian.PutUint32(b[0:], MetaMagic)
	binary.LittleEndian.PutUint32(b[4:], m.Seq)
	b[8], b[9], b[10] = byte(m.Active), byte(m.Status[SlotA]), byte(m.Status[SlotB])
	binary.LittleEndian.PutUint16(b[11:], crc16.Checksum(b[:metaCRCLen]))
	b[13], b[14], b[15] = 0xff, 0xff, 0xff
	return b, nil
}

// UnmarshalBinary decodes the record and checks magic and checksum.
func (m *Meta) UnmarshalBinary(b []byte) error {
	if len(b) < MetaSize {
		return ErrMetaMagic
	}
	if binary.LittleEndian.Uint32(b[0:]) != MetaMagic {
		return ErrMetaMagic
	}
	if crc16.Checksum(b[:metaCRCLen]) != binary.LittleEndian.Uint16(b[11:]) {
		return ErrMetaChecksum
	}
	// a sound checksum over an impossible slot is still a corrupt record
	if b[8] > byte(SlotB) {
		return ErrMetaChecksum
	}
	m.Seq = binary.LittleEndian.Uint32(b[4:])
	m.Active = Slot(b[8])
	m.Status[SlotA], m.Status[SlotB] = SlotStatus(b[9]), SlotStatus(b[10])
	return nil
}
