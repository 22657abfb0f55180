//go:build unix

package flash

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// FileDevice is a MemDevice whose contents are mapped from a file, so
// the flash image survives restarts of the process using it.
type FileDevice struct {
	*MemDevice

	file *os.File
}

// OpenFile maps path as a flash device. A missing or short file is
// created/extended and the new area is erased.
func OpenFile(path string, geo Geometry) (*FileDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	oldSize := info.Size()
	if oldSize != int64(geo.Size) {
		if err = f.Truncate(int64(geo.Size)); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "resize %s", path)
		}
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(geo.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "mmap %s", path)
	}
	for i := oldSize; i < int64(len(data)); i++ {
		data[i] = Erased
	}
	return &FileDevice{MemDevice: newMemDeviceOn(geo, data), file: f}, nil
}

// Sync flushes the mapping to the file.
func (d *FileDevice) Sync() error {
	return unix.Msync(d.data, unix.MS_SYNC)
}

// Close implements io.Closer.
func (d *FileDevice) Close() error {
	err := d.Sync()
	if uerr := unix.Munmap(d.data); err == nil {
		err = uerr
	}
	if cerr := d.file.Close(); err == nil {
		err = cerr
	}
	return err
}
