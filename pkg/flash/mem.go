package flash

import (
	"encoding/binary"
	"sync"
)

// MemDevice is a NOR-like flash held in memory: erase sets a page to
// Erased, programming can only clear bits, and writes require Unlock.
type MemDevice struct {
	Geometry

	// Fault injection hooks, consulted before the operation is applied.
	FailUnlock  func() error
	FailErase   func(addr uint32) error
	FailProgram func(addr uint32) error

	data   []byte
	locked bool
	lock   sync.Mutex
}

// NewMemDevice creates an erased device.
func NewMemDevice(geo Geometry) *MemDevice {
	d := &MemDevice{Geometry: geo, data: make([]byte, geo.Size), locked: true}
	for i := range d.data {
		d.data[i] = Erased
	}
	return d
}

// newMemDeviceOn wraps existing storage without clearing it.
func newMemDeviceOn(geo Geometry, data []byte) *MemDevice {
	return &MemDevice{Geometry: geo, data: data, locked: true}
}

// Bytes exposes the raw contents.
func (d *MemDevice) Bytes() []byte {
	return d.data
}

// Locked indicates write access is disabled.
func (d *MemDevice) Locked() bool {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.locked
}

// Unlock implements Device.
func (d *MemDevice) Unlock() error {
	if d.FailUnlock != nil {
		if err := d.FailUnlock(); err != nil {
			return err
		}
	}
	d.lock.Lock()
	d.locked = false
	d.lock.Unlock()
	return nil
}

// Lock implements Device.
func (d *MemDevice) Lock() error {
	d.lock.Lock()
	d.locked = true
	d.lock.Unlock()
	return nil
}

// ErasePage implements Device.
func (d *MemDevice) ErasePage(addr uint32) error {
	if d.FailErase != nil {
		if err := d.FailErase(addr); err != nil {
			return err
		}
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.locked {
		return ErrLocked
	}
	if !d.Contains(addr, d.PageSize) {
		return ErrOutOfRange
	}
	if !d.PageAligned(addr) {
		return ErrUnaligned
	}
	off := addr - d.Start
	for i := off; i < off+d.PageSize; i++ {
		d.data[i] = Erased
	}
	return nil
}

// ProgramHalfword implements Device.
func (d *MemDevice) ProgramHalfword(addr uint32, val uint16) error {
	if d.FailProgram != nil {
		if err := d.FailProgram(addr); err != nil {
			return err
		}
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.locked {
		return ErrLocked
	}
	if !d.Contains(addr, 2) {
		return ErrOutOfRange
	}
	if addr&1 != 0 {
		return ErrUnaligned
	}
	off := addr - d.Start
	cur := binary.LittleEndian.Uint16(d.data[off:])
	binary.LittleEndian.PutUint16(d.data[off:], cur&val)
	return nil
}

// Read implements Reader.
func (d *MemDevice) Read(addr uint32, buf []byte) error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if !d.Contains(addr, uint32(len(buf))) {
		return ErrOutOfRange
	}
	copy(buf, d.data[addr-d.Start:])
	return nil
}
