package ota

import (
	"github.com/robotalks/miniota/pkg/flash"
	"github.com/robotalks/miniota/pkg/image"
)

// SlotInfo is the verification result of one slot.
type SlotInfo struct {
	Slot   Slot
	Addr   uint32
	Status SlotStatus
	Header *image.Header
	Err    error
}

// Bootable indicates the slot would be accepted as a jump target.
func (i *SlotInfo) Bootable() bool {
	return i.Err == nil && i.Status.Bootable()
}

// Inspection is a read-only snapshot of the update region.
type Inspection struct {
	Layout  Layout
	Meta    Meta
	MetaErr error
	Slots   [2]SlotInfo
}

// Inspect reads the metadata and verifies both slots without writing.
func Inspect(r flash.Reader, layout Layout) (*Inspection, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	in := &Inspection{Layout: layout}
	in.Meta, in.MetaErr = readMeta(r, layout.MetaAddr())
	for _, s := range []Slot{SlotA, SlotB} {
		info := &in.Slots[s]
		info.Slot, info.Addr = s, layout.SlotAddr(s)
		if in.MetaErr == nil {
			info.Status = in.Meta.StatusOf(s)
		} else {
			info.Status = StatusEmpty
		}
		info.Header, info.Err = image.Verify(r, info.Addr, layout.Capacity())
	}
	return in, nil
}
