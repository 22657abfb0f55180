package ota

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/miniota/pkg/flash"
	"github.com/robotalks/miniota/pkg/image"
	"github.com/robotalks/miniota/pkg/xmodem"
)

// DefaultProbeInterval is the cadence of the 'C' probe while waiting for a
// sender.
const DefaultProbeInterval = 100 * time.Millisecond

// Decision is where Boot handed control to.
type Decision struct {
	Slot Slot
	Addr uint32
	Meta Meta
	// Rollback is set when the active slot was skipped.
	Rollback bool
	// Received is set when the image arrived during this boot.
	Received bool
}

// Updater runs the boot sequence.
type Updater struct {
	Layout        Layout
	Device        flash.Device
	Port          Port
	Link          io.ReadWriter
	Handoff       *Handoff
	Reporter      Reporter
	ProbeInterval time.Duration

	store   *Store
	unsaved bool
	byteCh  chan byte
	errCh  chan error
}

// NewUpdater creates an Updater with a strict handoff.
func NewUpdater(layout Layout, dev flash.Device, port Port, link io.ReadWriter, cpu CPU) *Updater {
	return &Updater{
		Layout: layout,
		Device: dev,
		Port:   port,
		Link:   link,
		Handoff: &Handoff{
			Reader:   dev,
			Geometry: layout.Geometry(),
			Port:     port,
			CPU:      cpu,
			Strict:   true,
		},
		ProbeInterval: DefaultProbeInterval,
	}
}

// Run implements framework.Runnable.
func (u *Updater) Run(ctx context.Context) error {
	_, err := u.Boot(ctx)
	return err
}

// Boot decides between the installed images and a new transfer, and hands
// control to the selected image. It returns only when no handoff happened:
// a configuration fault, ErrNoBootableImage, a link failure, ctx done, or
// ErrHandoffReturned along with the Decision.
func (u *Updater) Boot(ctx context.Context) (Decision, error) {
	if err := u.Layout.Validate(); err != nil {
		glog.Errorf("ota: %v", err)
		u.report(Event{Kind: EventConfigFault, Err: err})
		return Decision{}, err
	}
	u.store = NewStore(u.Device, u.Layout)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	u.byteCh, u.errCh = make(chan byte, 16), make(chan error, 1)
	go u.readLoop(ctx)

	var meta Meta
	u.unsaved = false
	for {
		if err := ctx.Err(); err != nil {
			return Decision{}, err
		}
		// the record on flash is stale while the last save failed
		if !u.unsaved {
			var err error
			if meta, err = u.loadMeta(); err != nil {
				return Decision{}, err
			}
		}
		u.reclassify(&meta)

		if u.Port.ShouldEnterUpdate() {
			slot := meta.Active.Other()
			if meta.Bootstrapping() {
				slot = SlotA
			}
			status, err := u.receive(ctx, slot, meta)
			if err != nil {
				return Decision{}, err
			}
			if status != xmodem.StatusFinished {
				continue
			}
			if !meta.Bootstrapping() {
				meta.Active = slot
			}
			meta.SetStatus(slot, StatusUnconfirmed)
			u.save(&meta)
			if d, done, err := u.handoffReceived(slot, &meta); done {
				return d, err
			}
			continue
		}

		if slot, rollback, ok := u.jumpTarget(&meta); ok {
			d, err := u.jump(slot, meta)
			d.Rollback = rollback
			if errors.Is(err, ErrHandoffReturned) {
				return d, err
			}
			u.reject(slot, &meta, err)
			continue
		}

		glog.Warning("ota: no bootable image")
		u.report(Event{Kind: EventNoImage, Meta: meta})
		status, err := u.receive(ctx, SlotA, meta)
		if err != nil {
			return Decision{}, err
		}
		if status == xmodem.StatusFinished {
			meta.Active = SlotA
			meta.SetStatus(SlotA, StatusUnconfirmed)
			meta.SetStatus(SlotB, StatusEmpty)
			u.save(&meta)
			if d, done, err := u.handoffReceived(SlotA, &meta); done {
				return d, err
			}
			continue
		}
		return Decision{}, ErrNoBootableImage
	}
}

func (u *Updater) loadMeta() (Meta, error) {
	meta, err := u.store.Load()
	switch {
	case err == nil:
		glog.V(1).Infof("ota: meta %s", meta)
		return meta, nil
	case errors.Is(err, ErrMetaMagic), errors.Is(err, ErrMetaChecksum):
		glog.Warningf("ota: %v, reset meta", err)
		var rerr error
		meta, rerr = u.store.Reset()
		u.unsaved = rerr != nil
		if rerr != nil {
			glog.Errorf("ota: %v", rerr)
		}
		u.report(Event{Kind: EventMetaReset, Meta: meta, Err: err})
		return meta, nil
	}
	glog.Errorf("ota: load meta: %v", err)
	return meta, err
}

// save persists meta. A failed save is logged, the boot carries on with the
// state in memory and the next boot starts from the last good record.
func (u *Updater) save(m *Meta) {
	err := u.store.Save(m)
	u.unsaved = err != nil
	if err != nil {
		glog.Errorf("ota: %v", err)
	}
}

func (u *Updater) verify(s Slot) error {
	_, err := image.Verify(u.Device, u.Layout.SlotAddr(s), u.Layout.Capacity())
	return err
}

// reclassify confirms or rejects unconfirmed slots and always persists.
func (u *Updater) reclassify(m *Meta) {
	for _, s := range []Slot{SlotA, SlotB} {
		if m.StatusOf(s) != StatusUnconfirmed {
			continue
		}
		if err := u.verify(s); err != nil {
			m.SetStatus(s, StatusInvalid)
			glog.Warningf("ota: slot %s rejected: %v", s, err)
			u.report(Event{Kind: EventSlotRejected, Slot: s, Addr: u.Layout.SlotAddr(s), Meta: *m, Err: err})
			continue
		}
		m.SetStatus(s, StatusValid)
		glog.Infof("ota: slot %s confirmed", s)
		u.report(Event{Kind: EventSlotConfirmed, Slot: s, Addr: u.Layout.SlotAddr(s), Meta: *m})
	}
	u.save(m)
}

// jumpTarget picks the active slot if bootable and intact, otherwise a
// valid and intact other slot.
func (u *Updater) jumpTarget(m *Meta) (slot Slot, rollback bool, ok bool) {
	active := m.Active
	if m.StatusOf(active).Bootable() {
		err := u.verify(active)
		if err == nil {
			return active, false, true
		}
		glog.Warningf("ota: active slot %s: %v", active, err)
	}
	other := active.Other()
	if m.StatusOf(other) == StatusValid {
		if err := u.verify(other); err != nil {
			glog.Warningf("ota: backup slot %s: %v", other, err)
			return 0, false, false
		}
		glog.Warningf("ota: roll back to slot %s", other)
		u.report(Event{Kind: EventRollback, Slot: other, Addr: u.Layout.SlotAddr(other), Meta: *m})
		return other, true, true
	}
	return 0, false, false
}

// handoffReceived verifies the freshly received slot and jumps into it.
// done is false when the boot sequence should run again.
func (u *Updater) handoffReceived(slot Slot, m *Meta) (d Decision, done bool, err error) {
	if err := u.verify(slot); err != nil {
		glog.Errorf("ota: received image in slot %s: %v", slot, err)
		u.report(Event{Kind: EventSlotRejected, Slot: slot, Addr: u.Layout.SlotAddr(slot), Meta: *m, Err: err})
		return Decision{}, false, nil
	}
	d, err = u.jump(slot, *m)
	d.Received = true
	if errors.Is(err, ErrHandoffReturned) {
		return d, true, err
	}
	u.reject(slot, m, err)
	return Decision{}, false, nil
}

func (u *Updater) jump(slot Slot, m Meta) (Decision, error) {
	d := Decision{Slot: slot, Addr: u.Layout.EntryAddr(slot), Meta: m}
	u.report(Event{Kind: EventJump, Slot: slot, Addr: d.Addr, Meta: m})
	return d, u.Handoff.Jump(d.Addr)
}

// reject marks a slot whose handoff was refused.
func (u *Updater) reject(slot Slot, m *Meta, err error) {
	glog.Errorf("ota: handoff to slot %s refused: %v", slot, err)
	m.SetStatus(slot, StatusInvalid)
	u.save(m)
	u.report(Event{Kind: EventSlotRejected, Slot: slot, Addr: u.Layout.EntryAddr(slot), Meta: *m, Err: err})
}

func (u *Updater) report(e Event) {
	if u.Reporter != nil {
		u.Reporter.Report(e)
	}
}
