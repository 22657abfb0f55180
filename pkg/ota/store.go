package ota

import (
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/robotalks/miniota/pkg/flash"
)

// Store persists Meta in its own page.
type Store struct {
	dev    flash.Device
	addr   uint32
	writer *flash.Writer
}

// NewStore creates a Store for the meta page of layout.
func NewStore(dev flash.Device, layout Layout) *Store {
	w := flash.NewWriter(dev, int(layout.PageSize))
	w.SetLimit(layout.MetaAddr() + layout.PageSize)
	return &Store{dev: dev, addr: layout.MetaAddr(), writer: w}
}

// Load reads and decodes the record. A decoding failure is returned as
// ErrMetaMagic or ErrMetaChecksum.
func (s *Store) Load() (Meta, error) {
	return readMeta(s.dev, s.addr)
}

func readMeta(r flash.Reader, addr uint32) (Meta, error) {
	var m Meta
	buf := make([]byte, MetaSize)
	if err := r.Read(addr, buf); err != nil {
		return m, errors.Wrapf(err, "read meta 0x%08X", addr)
	}
	err := m.UnmarshalBinary(buf)
	return m, err
}

// Save bumps the sequence and rewrites the whole page, padded with the
// erased value.
func (s *Store) Save(m *Meta) error {
	next := *m
	next.Seq++
	if err := s.write(&next); err != nil {
		return err
	}
	*m = next
	glog.V(1).Infof("ota: meta saved %s", m)
	return nil
}

// Reset writes the default record, sequence 0.
func (s *Store) Reset() (Meta, error) {
	m := DefaultMeta()
	if err := s.write(&m); err != nil {
		return m, err
	}
	glog.V(1).Infof("ota: meta reset %s", m)
	return m, nil
}

func (s *Store) write(m *Meta) error {
	b, _ := m.MarshalBinary()
	if err := s.writer.Init(s.addr); err != nil {
		return errors.Wrapf(err, "meta page 0x%08X", s.addr)
	}
	if err := s.writer.Load(b); err != nil {
		return err
	}
	if err := s.writer.Flush(); err != nil {
		return errors.Wrap(err, "save meta")
	}
	return nil
}
