package sh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/robotalks/miniota/pkg/flash"
	"github.com/robotalks/miniota/pkg/image"
	"github.com/robotalks/miniota/pkg/ota"
	"github.com/robotalks/miniota/pkg/xmodem"
)

// ImageInfo describes an image file.
type ImageInfo struct {
	File     string `json:"file,omitempty"`
	Size     uint32 `json:"size"`
	Version  uint32 `json:"version"`
	CRC16    uint16 `json:"crc16"`
	LoadAddr uint32 `json:"load_addr,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (i *ImageInfo) String() string {
	s := fmt.Sprintf("%s: size=%d version=%d crc=0x%04X", i.File, i.Size, i.Version, i.CRC16)
	if i.LoadAddr != 0 {
		s += fmt.Sprintf(" load=0x%08X", i.LoadAddr)
	}
	if i.Error != "" {
		s += " error: " + i.Error
	}
	return s
}

func newImageInfo(file string, h *image.Header, err error) *ImageInfo {
	info := &ImageInfo{File: file}
	if h != nil {
		info.Size, info.Version, info.CRC16 = h.Size, h.Version, h.CRC16
	}
	if err != nil {
		info.Error = err.Error()
	}
	return info
}

// BuildImage builds an image file from a raw binary or Intel HEX (.hex)
// body. The load address is only known for Intel HEX input.
func BuildImage(in string, version uint32) ([]byte, uint32, error) {
	f, err := os.Open(in)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()
	if strings.EqualFold(filepath.Ext(in), ".hex") {
		out, addr, err := image.BuildFromHex(f, version)
		return out, addr, errors.Wrapf(err, "parse %s", in)
	}
	body, err := io.ReadAll(f)
	if err != nil {
		return nil, 0, err
	}
	if len(body) == 0 {
		return nil, 0, errors.Wrapf(image.ErrBadSize, "%s is empty", in)
	}
	return image.Build(body, version), 0, nil
}

// LoadFlash reads a flash file into memory, so inspecting it never
// modifies it.
func LoadFlash(path string, layout ota.Layout) (*flash.MemDevice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dev := flash.NewMemDevice(layout.Geometry())
	if len(data) > len(dev.Bytes()) {
		return nil, errors.Errorf("%s: %d bytes exceeds flash size %d", path, len(data), len(dev.Bytes()))
	}
	copy(dev.Bytes(), data)
	return dev, nil
}

// SlotReport is one slot of FlashReport.
type SlotReport struct {
	Slot     string `json:"slot"`
	Addr     uint32 `json:"addr"`
	Status   string `json:"status"`
	Bootable bool   `json:"bootable"`
	Version  uint32 `json:"version,omitempty"`
	Size     uint32 `json:"size,omitempty"`
	Error    string `json:"error,omitempty"`
}

// FlashReport is the printable form of ota.Inspection.
type FlashReport struct {
	Meta      string       `json:"meta"`
	MetaError string       `json:"meta_error,omitempty"`
	Slots     []SlotReport `json:"slots"`
}

// NewFlashReport converts an inspection.
func NewFlashReport(in *ota.Inspection) *FlashReport {
	r := &FlashReport{Meta: in.Meta.String()}
	if in.MetaErr != nil {
		r.MetaError = in.MetaErr.Error()
	}
	for n := range in.Slots {
		s := &in.Slots[n]
		sr := SlotReport{
			Slot:     s.Slot.String(),
			Addr:     s.Addr,
			Status:   s.Status.String(),
			Bootable: s.Bootable(),
		}
		if s.Header != nil {
			sr.Version, sr.Size = s.Header.Version, s.Header.Size
		}
		if s.Err != nil {
			sr.Error = s.Err.Error()
		}
		r.Slots = append(r.Slots, sr)
	}
	return r
}

func (r *FlashReport) String() string {
	var w bytes.Buffer
	if r.MetaError != "" {
		fmt.Fprintf(&w, "meta: %s\n", r.MetaError)
	} else {
		fmt.Fprintf(&w, "meta: %s\n", r.Meta)
	}
	for _, s := range r.Slots {
		fmt.Fprintf(&w, "slot %s 0x%08X %s", s.Slot, s.Addr, s.Status)
		if s.Error != "" {
			fmt.Fprintf(&w, " (%s)", s.Error)
		} else {
			fmt.Fprintf(&w, " version=%d size=%d", s.Version, s.Size)
		}
		if s.Bootable {
			w.WriteString(" bootable")
		}
		w.WriteString("\n")
	}
	return strings.TrimSuffix(w.String(), "\n")
}

// SendImage checks the image file and transfers it to a waiting device.
func SendImage(ctx context.Context, rw io.ReadWriter, file []byte, opts ...xmodem.SendOption) error {
	if _, _, err := image.Parse(file); err != nil {
		return errors.Wrap(err, "refuse to send")
	}
	return xmodem.Send(ctx, rw, file, opts...)
}
