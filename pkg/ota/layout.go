package ota

import (
	"fmt"

	"github.com/robotalks/miniota/pkg/flash"
	"github.com/robotalks/miniota/pkg/image"
	"github.com/robotalks/miniota/pkg/xmodem"
)

// Layout is the static flash configuration.
type Layout struct {
	FlashStart  uint32
	FlashSize   uint32
	RegionStart uint32
	PageSize    uint32
}

// DefaultLayout is a 32K part with 1K pages, the updater itself in the
// first 12K.
func DefaultLayout() Layout {
	return Layout{
		FlashStart:  0x08000000,
		FlashSize:   0x8000,
		RegionStart: 0x08003000,
		PageSize:    1024,
	}
}

// Validate checks the layout before any flash access.
func (l Layout) Validate() error {
	if l.PageSize < xmodem.MaxBlockSize || l.PageSize%2 != 0 {
		return &ConfigError{Kind: ErrConfigPageSize,
			Detail: fmt.Sprintf("page size %d, must be even and at least %d", l.PageSize, xmodem.MaxBlockSize)}
	}
	flashEnd := uint64(l.FlashStart) + uint64(l.FlashSize)
	if l.RegionStart < l.FlashStart || uint64(l.RegionStart) >= flashEnd {
		return &ConfigError{Kind: ErrConfigRange,
			Detail: fmt.Sprintf("start 0x%08X, flash 0x%08X-0x%08X", l.RegionStart, l.FlashStart, flashEnd)}
	}
	if (l.RegionStart-l.FlashStart)%l.PageSize != 0 {
		return &ConfigError{Kind: ErrConfigAlign,
			Detail: fmt.Sprintf("start 0x%08X, page size %d", l.RegionStart, l.PageSize)}
	}
	if l.regionSize() < l.PageSize {
		return &ConfigError{Kind: ErrConfigSize,
			Detail: fmt.Sprintf("%d bytes available", l.regionSize())}
	}
	if l.SlotSize() < l.PageSize {
		return &ConfigError{Kind: ErrConfigSize,
			Detail: fmt.Sprintf("slot size %d after the meta page", l.SlotSize())}
	}
	return nil
}

func (l Layout) regionSize() uint32 {
	return l.FlashStart + l.FlashSize - l.RegionStart
}

// Geometry returns the physical flash geometry.
func (l Layout) Geometry() flash.Geometry {
	return flash.Geometry{Start: l.FlashStart, Size: l.FlashSize, PageSize: l.PageSize}
}

// MetaAddr is the address of the metadata page.
func (l Layout) MetaAddr() uint32 {
	return l.RegionStart
}

// SlotSize is the size of one slot, whole pages.
func (l Layout) SlotSize() uint32 {
	size := l.regionSize()
	if size < l.PageSize {
		return 0
	}
	size = (size - l.PageSize) / 2
	return size - size%l.PageSize
}

// Capacity is the maximum image body size.
func (l Layout) Capacity() uint32 {
	if size := l.SlotSize(); size > image.HeaderSize {
		return size - image.HeaderSize
	}
	return 0
}

// SlotAddr returns where the slot header is.
func (l Layout) SlotAddr(s Slot) uint32 {
	addr := l.RegionStart + l.PageSize
	if s == SlotB {
		addr += l.SlotSize()
	}
	return addr
}

// SlotEnd returns the address just past the slot.
func (l Layout) SlotEnd(s Slot) uint32 {
	return l.SlotAddr(s) + l.SlotSize()
}

// EntryAddr returns the vector table address of the image in the slot.
func (l Layout) EntryAddr(s Slot) uint32 {
	return l.SlotAddr(s) + image.HeaderSize
}
