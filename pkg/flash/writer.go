package flash

import (
	"bytes"
	"encoding/binary"
	stderrors "errors"

	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// Writer is the page-buffered write engine.
// The mirror always holds the intended final contents of the page at Addr.
// It is not safe for concurrent use.
type Writer struct {
	dev      Device
	addr     uint32
	offset   int
	limit    uint32
	mirror   []byte
	undo     []byte
	readback []byte
}

// NewWriter creates a Writer for pages of pageSize bytes.
func NewWriter(dev Device, pageSize int) *Writer {
	return &Writer{
		dev:      dev,
		mirror:   make([]byte, pageSize),
		undo:     make([]byte, pageSize),
		readback: make([]byte, pageSize),
	}
}

// PageSize returns the size of the mirror.
func (w *Writer) PageSize() int {
	return len(w.mirror)
}

// Addr returns the address of the page being mirrored.
func (w *Writer) Addr() uint32 {
	return w.addr
}

// Offset returns the staging offset inside the mirror.
func (w *Writer) Offset() int {
	return w.offset
}

// Remaining returns the room left in the mirror.
func (w *Writer) Remaining() int {
	return len(w.mirror) - w.offset
}

// Mirror exposes the page mirror, read-only by convention.
func (w *Writer) Mirror() []byte {
	return w.mirror
}

// SetLimit refuses to flush pages reaching beyond end. Zero means no limit.
func (w *Writer) SetLimit(end uint32) {
	w.limit = end
}

// Init targets the page at addr and pre-loads the mirror with its
// current contents so untouched bytes survive the next flush.
func (w *Writer) Init(addr uint32) error {
	w.addr, w.offset = addr, 0
	return w.preload()
}

// Stage copies p into the mirror at the current offset.
func (w *Writer) Stage(p []byte) error {
	if len(p) > w.Remaining() {
		return ErrPageOverflow
	}
	copy(w.undo[w.offset:], w.mirror[w.offset:w.offset+len(p)])
	w.offset += copy(w.mirror[w.offset:], p)
	return nil
}

// Unstage drops the last n staged bytes and restores what the mirror held
// before they were staged.
func (w *Writer) Unstage(n int) {
	if n > w.offset {
		n = w.offset
	}
	copy(w.mirror[w.offset-n:w.offset], w.undo[w.offset-n:w.offset])
	w.offset -= n
}

// Load replaces the whole mirror with p, padding with the erased value,
// and marks the page as fully staged.
func (w *Writer) Load(p []byte) error {
	if len(p) > len(w.mirror) {
		return ErrPageOverflow
	}
	copy(w.undo, w.mirror)
	n := copy(w.mirror, p)
	for i := n; i < len(w.mirror); i++ {
		w.mirror[i] = Erased
	}
	w.offset = len(w.mirror)
	return nil
}

// Flush erases, programs and verifies the page at Addr from the mirror.
// On success the offset is reset and Addr advances by one page.
// On failure Addr and the mirror are left untouched.
func (w *Writer) Flush() (err error) {
	if w.limit != 0 && uint64(w.addr)+uint64(len(w.mirror)) > uint64(w.limit) {
		return errors.Wrapf(ErrOutOfRange, "page 0x%08X beyond limit 0x%08X", w.addr, w.limit)
	}
	// relock even when unlocking failed half way
	defer func() {
		if lerr := w.dev.Lock(); lerr != nil {
			err = stderrors.Join(err, errors.Wrap(lerr, "lock"))
		}
	}()
	if err = w.dev.Unlock(); err != nil {
		return errors.Wrapf(err, "unlock for page 0x%08X", w.addr)
	}

	if err = w.dev.ErasePage(w.addr); err != nil {
		return errors.Wrapf(err, "erase page 0x%08X", w.addr)
	}
	for i := 0; i+1 < len(w.mirror); i += 2 {
		hw := binary.LittleEndian.Uint16(w.mirror[i:])
		if err = w.dev.ProgramHalfword(w.addr+uint32(i), hw); err != nil {
			return errors.Wrapf(err, "program 0x%08X", w.addr+uint32(i))
		}
	}
	if err = w.verify(); err != nil {
		return err
	}

	glog.V(3).Infof("flash: page 0x%08X committed", w.addr)
	w.addr += uint32(len(w.mirror))
	w.offset = 0
	if perr := w.preload(); perr != nil {
		glog.V(1).Infof("flash: preload page 0x%08X: %v", w.addr, perr)
		for i := range w.mirror {
			w.mirror[i] = Erased
		}
	}
	return nil
}

func (w *Writer) verify() error {
	if err := w.dev.Read(w.addr, w.readback); err != nil {
		return errors.Wrapf(err, "read back page 0x%08X", w.addr)
	}
	if bytes.Equal(w.readback, w.mirror) {
		return nil
	}
	for i := range w.mirror {
		if w.readback[i] != w.mirror[i] {
			return &VerifyError{Addr: w.addr + uint32(i), Want: w.mirror[i], Got: w.readback[i]}
		}
	}
	return nil
}

func (w *Writer) preload() error {
	return w.dev.Read(w.addr, w.mirror)
}
