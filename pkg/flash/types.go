package flash

// Erased is the value of every byte after a page erase.
const Erased byte = 0xFF

// Reader reads flash contents.
type Reader interface {
	// Read fills buf with the bytes starting at addr.
	Read(addr uint32, buf []byte) error
}

// Device is the chip specific flash port.
type Device interface {
	Reader

	// Unlock enables write access.
	Unlock() error
	// Lock disables write access.
	Lock() error
	// ErasePage erases the page starting at addr.
	ErasePage(addr uint32) error
	// ProgramHalfword programs 2 bytes at addr (little-endian).
	ProgramHalfword(addr uint32, val uint16) error
}

// Geometry describes the physical flash.
type Geometry struct {
	Start    uint32
	Size     uint32
	PageSize uint32
}

// End returns the address just past the flash.
func (g Geometry) End() uint32 {
	return g.Start + g.Size
}

// Contains indicates the range [addr, addr+n) lies in the flash.
func (g Geometry) Contains(addr, n uint32) bool {
	return addr >= g.Start && addr <= g.End() && n <= g.End()-addr
}

// PageAligned indicates addr is on a page boundary.
func (g Geometry) PageAligned(addr uint32) bool {
	return g.PageSize != 0 && (addr-g.Start)%g.PageSize == 0
}
