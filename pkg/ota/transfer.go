package ota

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/miniota/pkg/flash"
	"github.com/robotalks/miniota/pkg/xmodem"
)

// receive runs one XMODEM transfer into slot. The Receiver and its Writer
// are owned by this loop; bytes arrive from readLoop through byteCh so one
// byte is fully handled, flash flush included, before the next.
func (u *Updater) receive(ctx context.Context, slot Slot, meta Meta) (xmodem.Status, error) {
	addr := u.Layout.SlotAddr(slot)
	w := flash.NewWriter(u.Device, int(u.Layout.PageSize))
	w.SetLimit(u.Layout.SlotEnd(slot))
	if err := w.Init(addr); err != nil {
		return xmodem.StatusIdle, err
	}
	r := xmodem.NewReceiver(w)

	entry := u.Layout.EntryAddr(slot)
	glog.Infof("ota: ready to receive into slot %s, set the image address to 0x%08X", slot, entry)
	u.report(Event{Kind: EventTransferReady, Slot: slot, Addr: entry, Meta: meta})

	interval := u.ProbeInterval
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	if err := u.probe(r); err != nil {
		return r.Status(), err
	}

	for {
		select {
		case b := <-u.byteCh:
			res := r.Receive(b)
			if res.Err != nil {
				glog.Warningf("ota: xmodem %s: %v", res.State, res.Err)
			}
			if res.Reply != 0 {
				if _, err := u.Link.Write([]byte{res.Reply}); err != nil {
					return res.Status, err
				}
			}
			switch res.Status {
			case xmodem.StatusFinished:
				glog.Infof("ota: received %d blocks into slot %s", r.Accepted(), slot)
				u.report(Event{Kind: EventTransferFinished, Slot: slot, Addr: entry, Meta: meta})
				return res.Status, nil
			case xmodem.StatusInterrupted:
				glog.Warningf("ota: transfer into slot %s interrupted", slot)
				u.report(Event{Kind: EventTransferInterrupted, Slot: slot, Addr: entry, Meta: meta})
				return res.Status, nil
			}
		case <-ticker.C:
			if err := u.probe(r); err != nil {
				return r.Status(), err
			}
		case err := <-u.errCh:
			glog.Errorf("ota: link: %v", err)
			return r.Status(), err
		case <-ctx.Done():
			return r.Status(), ctx.Err()
		}
	}
}

// probe asks the sender to start while nothing was received.
func (u *Updater) probe(r *xmodem.Receiver) error {
	if !r.ShouldProbe() {
		return nil
	}
	_, err := u.Link.Write([]byte{xmodem.CRCC})
	return err
}

func (u *Updater) readLoop(ctx context.Context) {
	buf := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			n, err := u.Link.Read(buf)
			if err != nil {
				u.errCh <- err
				return
			}
			if n == 0 {
				continue
			}
			select {
			case u.byteCh <- buf[0]:
			case <-ctx.Done():
				return
			}
		}
	}
}
