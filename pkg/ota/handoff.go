package ota

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/glog"
	"github.com/pkg/errors"

	"github.com/robotalks/miniota/pkg/flash"
)

// VectorTable is the head of an application vector table.
type VectorTable struct {
	StackPointer uint32
	ResetHandler uint32
}

// ReadVectorTable reads the first two words at addr.
func ReadVectorTable(r flash.Reader, addr uint32) (VectorTable, error) {
	var buf [8]byte
	if err := r.Read(addr, buf[:]); err != nil {
		return VectorTable{}, errors.Wrapf(err, "read vector table 0x%08X", addr)
	}
	return VectorTable{
		StackPointer: binary.LittleEndian.Uint32(buf[0:]),
		ResetHandler: binary.LittleEndian.Uint32(buf[4:]),
	}, nil
}

// Check is the sanity check: the stack pointer lies in the flash address
// range and the reset handler is a thumb address. Passing it does not mean
// the image is runnable.
func (v VectorTable) Check(geo flash.Geometry) error {
	if v.StackPointer < geo.Start || v.StackPointer > geo.End() {
		return errors.Wrapf(ErrStackPointer, "sp 0x%08X", v.StackPointer)
	}
	if v.ResetHandler&1 == 0 {
		return errors.Wrapf(ErrResetVector, "reset 0x%08X", v.ResetHandler)
	}
	return nil
}

func (v VectorTable) String() string {
	return fmt.Sprintf("sp=0x%08X reset=0x%08X", v.StackPointer, v.ResetHandler)
}

// Handoff transfers control to an application.
type Handoff struct {
	Reader   flash.Reader
	Geometry flash.Geometry
	Port     Port
	CPU      CPU
	// Strict refuses to jump when the vector table check fails.
	Strict bool
}

// Jump hands control to the vector table at addr. It only returns on
// failure: a rejected vector table in Strict mode, a read error, or
// ErrHandoffReturned if the CPU came back.
func (h *Handoff) Jump(addr uint32) error {
	vt, err := ReadVectorTable(h.Reader, addr)
	if err != nil {
		return err
	}
	if err := vt.Check(h.Geometry); err != nil {
		if h.Strict {
			glog.Errorf("ota: refuse to jump to 0x%08X: %v", addr, err)
			return err
		}
		glog.Warningf("ota: vector table at 0x%08X: %v", addr, err)
	}
	glog.Infof("ota: jump to 0x%08X %s", addr, vt)
	glog.Flush()
	h.CPU.DisableInterrupts()
	h.Port.DeinitPeripherals()
	h.CPU.StopSysTick()
	h.CPU.RelocateVectors(addr)
	h.CPU.Call(vt.StackPointer, vt.ResetHandler)
	return ErrHandoffReturned
}
