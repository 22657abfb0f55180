package ota

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/miniota/pkg/flash"
	"github.com/robotalks/miniota/pkg/image"
	"github.com/robotalks/miniota/pkg/xmodem"
)

const testProbeInterval = 10 * time.Millisecond

// testLink is a device link whose writes never block.
type testLink struct {
	readCh    chan byte
	lock      sync.Mutex
	written   []byte
	closeOnce sync.Once
}

func newTestLink(in ...byte) *testLink {
	l := &testLink{readCh: make(chan byte, 16)}
	for _, b := range in {
		l.readCh <- b
	}
	return l
}

func (l *testLink) Read(p []byte) (int, error) {
	b, ok := <-l.readCh
	if !ok {
		return 0, io.EOF
	}
	p[0] = b
	return 1, nil
}

func (l *testLink) Write(p []byte) (int, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.written = append(l.written, p...)
	return len(p), nil
}

func (l *testLink) Written() []byte {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]byte{}, l.written...)
}

func (l *testLink) Close() error {
	l.closeOnce.Do(func() { close(l.readCh) })
	return nil
}

type pipeLink struct {
	io.Reader
	io.Writer
}

// newPipeLinks connects the device and the host.
func newPipeLinks(t *testing.T) (dev, host *pipeLink) {
	toDevR, toDevW := io.Pipe()
	toHostR, toHostW := io.Pipe()
	t.Cleanup(func() {
		toDevW.Close()
		toHostW.Close()
	})
	return &pipeLink{Reader: toDevR, Writer: toHostW}, &pipeLink{Reader: toHostR, Writer: toDevW}
}

// seqPort answers ShouldEnterUpdate from a script, false when exhausted.
type seqPort struct {
	StaticPort
	answers []bool
}

func (p *seqPort) ShouldEnterUpdate() bool {
	if len(p.answers) == 0 {
		return false
	}
	v := p.answers[0]
	p.answers = p.answers[1:]
	return v
}

// countingDevice counts every flash access.
type countingDevice struct {
	flash.Device
	ops int
}

func (d *countingDevice) Read(addr uint32, buf []byte) error {
	d.ops++
	return d.Device.Read(addr, buf)
}

func (d *countingDevice) Unlock() error {
	d.ops++
	return d.Device.Unlock()
}

func (d *countingDevice) ErasePage(addr uint32) error {
	d.ops++
	return d.Device.ErasePage(addr)
}

type testBoard struct {
	t      *testing.T
	layout Layout
	dev    *flash.MemDevice
	cpu    *fakeCPU
	events []Event
}

func newTestBoard(t *testing.T) *testBoard {
	layout := DefaultLayout()
	return &testBoard{t: t, layout: layout, dev: flash.NewMemDevice(layout.Geometry()), cpu: &fakeCPU{}}
}

func (b *testBoard) updater(port Port, link io.ReadWriter) *Updater {
	u := NewUpdater(b.layout, b.dev, port, link, b.cpu)
	u.ProbeInterval = testProbeInterval
	u.Reporter = ReporterFunc(func(e Event) { b.events = append(b.events, e) })
	return u
}

func (b *testBoard) port(answers ...bool) *seqPort {
	p := &seqPort{answers: answers}
	p.OnDeinit = func() { b.cpu.trace = append(b.cpu.trace, "deinit") }
	return p
}

// imageFile builds a bootable image, seed makes bodies differ.
func (b *testBoard) imageFile(slot Slot, size int, seed byte) []byte {
	body := make([]byte, size)
	binary.LittleEndian.PutUint32(body[0:], b.layout.FlashStart+b.layout.FlashSize)
	binary.LittleEndian.PutUint32(body[4:], b.layout.EntryAddr(slot)+0x101)
	for i := 8; i < size; i++ {
		body[i] = seed + byte(i*13)
	}
	return image.Build(body, uint32(seed))
}

func (b *testBoard) install(slot Slot, img []byte) {
	copy(b.dev.Bytes()[b.layout.SlotAddr(slot)-b.layout.FlashStart:], img)
}

func (b *testBoard) corrupt(slot Slot) {
	b.dev.Bytes()[b.layout.EntryAddr(slot)-b.layout.FlashStart+100] ^= 0xff
}

func (b *testBoard) setMeta(m Meta) {
	require.NoError(b.t, NewStore(b.dev, b.layout).Save(&m))
}

func (b *testBoard) meta() Meta {
	m, err := NewStore(b.dev, b.layout).Load()
	require.NoError(b.t, err)
	return m
}

func (b *testBoard) slotBytes(slot Slot, n int) []byte {
	return b.dev.Bytes()[b.layout.SlotAddr(slot)-b.layout.FlashStart:][:n]
}

func (b *testBoard) eventKinds() []EventKind {
	var kinds []EventKind
	for _, e := range b.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (b *testBoard) findEvent(kind EventKind) *Event {
	for i := range b.events {
		if b.events[i].Kind == kind {
			return &b.events[i]
		}
	}
	return nil
}

func status(a, b SlotStatus) [2]SlotStatus {
	return [2]SlotStatus{a, b}
}

type bootResult struct {
	d   Decision
	err error
}

func bootAsync(ctx context.Context, u *Updater) <-chan bootResult {
	ch := make(chan bootResult, 1)
	go func() {
		d, err := u.Boot(ctx)
		ch <- bootResult{d: d, err: err}
	}()
	return ch
}

func timeoutContext(t *testing.T, d time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

func TestBootConfigFault(t *testing.T) {
	b := newTestBoard(t)
	b.layout.RegionStart += 0x100
	dev := &countingDevice{Device: b.dev}
	link := newTestLink()
	defer link.Close()
	u := NewUpdater(b.layout, dev, b.port(true), link, b.cpu)
	u.Reporter = ReporterFunc(func(e Event) { b.events = append(b.events, e) })

	_, err := u.Boot(context.Background())
	require.ErrorIs(t, err, ErrConfigAlign)
	require.Zero(t, dev.ops)
	require.Empty(t, link.Written())
	require.False(t, b.cpu.called())
	require.Equal(t, []EventKind{EventConfigFault}, b.eventKinds())
}

func TestBootConfirmsUnconfirmed(t *testing.T) {
	b := newTestBoard(t)
	b.install(SlotA, b.imageFile(SlotA, 2000, 1))
	b.setMeta(Meta{Active: SlotA, Status: status(StatusUnconfirmed, StatusEmpty)})
	link := newTestLink()
	defer link.Close()

	d, err := b.updater(b.port(), link).Boot(context.Background())
	require.ErrorIs(t, err, ErrHandoffReturned)
	require.Equal(t, SlotA, d.Slot)
	require.False(t, d.Rollback)
	require.Equal(t, b.layout.EntryAddr(SlotA), d.Addr)
	require.Equal(t, b.layout.EntryAddr(SlotA)+0x101, b.cpu.entry)
	require.Equal(t, status(StatusValid, StatusEmpty), b.meta().Status)
	require.Equal(t, []EventKind{EventSlotConfirmed, EventJump}, b.eventKinds())
}

func TestBootResetsCorruptMeta(t *testing.T) {
	testCases := []struct {
		name   string
		offset uint32
	}{
		{"magic", 0},
		{"torn", 9},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestBoard(t)
			b.install(SlotB, b.imageFile(SlotB, 500, 2))
			b.setMeta(Meta{Active: SlotB, Status: status(StatusInvalid, StatusValid)})
			b.dev.Bytes()[b.layout.MetaAddr()-b.layout.FlashStart+tc.offset] ^= 0x5a
			link := newTestLink()
			defer link.Close()

			_, err := b.updater(b.port(), link).Boot(timeoutContext(t, 100*time.Millisecond))
			require.ErrorIs(t, err, context.DeadlineExceeded)
			m := b.meta()
			require.Equal(t, SlotA, m.Active)
			require.Equal(t, status(StatusEmpty, StatusEmpty), m.Status)
			require.NotNil(t, b.findEvent(EventMetaReset))
			require.False(t, b.cpu.called())
		})
	}
}

func TestBootRollback(t *testing.T) {
	b := newTestBoard(t)
	b.install(SlotA, b.imageFile(SlotA, 3000, 1))
	b.install(SlotB, b.imageFile(SlotB, 1500, 2))
	b.corrupt(SlotA)
	b.setMeta(Meta{Active: SlotA, Status: status(StatusUnconfirmed, StatusValid)})
	link := newTestLink()
	defer link.Close()

	d, err := b.updater(b.port(), link).Boot(context.Background())
	require.ErrorIs(t, err, ErrHandoffReturned)
	require.Equal(t, SlotB, d.Slot)
	require.True(t, d.Rollback)
	require.Equal(t, b.layout.EntryAddr(SlotB), b.cpu.vtor)
	m := b.meta()
	require.Equal(t, SlotA, m.Active)
	require.Equal(t, status(StatusInvalid, StatusValid), m.Status)
	require.Equal(t, []EventKind{EventSlotRejected, EventRollback, EventJump}, b.eventKinds())
}

func TestBootActiveCorruptedAfterConfirm(t *testing.T) {
	b := newTestBoard(t)
	b.install(SlotA, b.imageFile(SlotA, 3000, 1))
	b.install(SlotB, b.imageFile(SlotB, 1500, 2))
	b.corrupt(SlotB)
	b.setMeta(Meta{Active: SlotB, Status: status(StatusValid, StatusValid)})
	link := newTestLink()
	defer link.Close()

	d, err := b.updater(b.port(), link).Boot(context.Background())
	require.ErrorIs(t, err, ErrHandoffReturned)
	require.Equal(t, SlotA, d.Slot)
	require.True(t, d.Rollback)
}

func TestBootBothInvalidOffersTransfer(t *testing.T) {
	b := newTestBoard(t)
	b.install(SlotA, b.imageFile(SlotA, 3000, 1))
	b.install(SlotB, b.imageFile(SlotB, 1500, 2))
	b.corrupt(SlotA)
	b.corrupt(SlotB)
	b.setMeta(Meta{Active: SlotB, Status: status(StatusValid, StatusUnconfirmed)})
	link := newTestLink()
	defer link.Close()

	_, err := b.updater(b.port(), link).Boot(timeoutContext(t, 100*time.Millisecond))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, b.cpu.called())
	ready := b.findEvent(EventTransferReady)
	require.NotNil(t, ready)
	require.Equal(t, SlotA, ready.Slot)
	require.Equal(t, b.layout.EntryAddr(SlotA), ready.Addr)
	require.NotNil(t, b.findEvent(EventNoImage))
	require.Contains(t, string(link.Written()), "C")
	require.Equal(t, status(StatusValid, StatusInvalid), b.meta().Status)
}

func TestBootFallbackCanceled(t *testing.T) {
	b := newTestBoard(t)
	link := newTestLink(xmodem.CAN)
	defer link.Close()

	_, err := b.updater(b.port(), link).Boot(timeoutContext(t, 5*time.Second))
	require.ErrorIs(t, err, ErrNoBootableImage)
	require.NotNil(t, b.findEvent(EventTransferInterrupted))
	require.False(t, b.cpu.called())
}

func TestBootBootstrapTransfer(t *testing.T) {
	b := newTestBoard(t)
	devLink, hostLink := newPipeLinks(t)
	ctx := timeoutContext(t, 10*time.Second)
	resCh := bootAsync(ctx, b.updater(b.port(true), devLink))

	img := b.imageFile(SlotA, 2500, 3)
	require.NoError(t, xmodem.Send(ctx, hostLink, img, xmodem.WithAckTimeout(time.Second)))
	res := <-resCh
	require.ErrorIs(t, res.err, ErrHandoffReturned)
	require.Equal(t, SlotA, res.d.Slot)
	require.True(t, res.d.Received)

	require.Equal(t, img, b.slotBytes(SlotA, len(img)))
	m := b.meta()
	require.Equal(t, SlotA, m.Active)
	require.Equal(t, status(StatusUnconfirmed, StatusEmpty), m.Status)
	ready := b.findEvent(EventTransferReady)
	require.NotNil(t, ready)
	require.Equal(t, SlotA, ready.Slot)
	require.Equal(t, b.layout.EntryAddr(SlotA), b.cpu.vtor)
}

func TestBootUpdateFlipsActive(t *testing.T) {
	testCases := []struct {
		name   string
		active Slot
		target Slot
	}{
		{"A to B", SlotA, SlotB},
		{"B to A", SlotB, SlotA},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestBoard(t)
			b.install(tc.active, b.imageFile(tc.active, 1200, 1))
			st := status(StatusEmpty, StatusEmpty)
			st[tc.active] = StatusValid
			b.setMeta(Meta{Active: tc.active, Status: st})

			devLink, hostLink := newPipeLinks(t)
			ctx := timeoutContext(t, 10*time.Second)
			resCh := bootAsync(ctx, b.updater(b.port(true), devLink))

			img := b.imageFile(tc.target, 4100, 7)
			require.NoError(t, xmodem.Send(ctx, hostLink, img,
				xmodem.WithBlockSize(xmodem.BlockSize), xmodem.WithAckTimeout(time.Second)))
			res := <-resCh
			require.ErrorIs(t, res.err, ErrHandoffReturned)
			require.Equal(t, tc.target, res.d.Slot)

			require.Equal(t, img, b.slotBytes(tc.target, len(img)))
			m := b.meta()
			require.Equal(t, tc.target, m.Active)
			require.Equal(t, StatusUnconfirmed, m.StatusOf(tc.target))
			require.Equal(t, StatusValid, m.StatusOf(tc.active))
			require.Equal(t, b.layout.EntryAddr(tc.target)+0x101, b.cpu.entry)
		})
	}
}

func TestBootInterruptedTransferKeepsMeta(t *testing.T) {
	b := newTestBoard(t)
	b.install(SlotA, b.imageFile(SlotA, 1200, 1))
	b.setMeta(Meta{Active: SlotA, Status: status(StatusValid, StatusEmpty)})
	link := newTestLink(xmodem.CAN)
	defer link.Close()

	d, err := b.updater(b.port(true), link).Boot(timeoutContext(t, 5*time.Second))
	require.ErrorIs(t, err, ErrHandoffReturned)
	require.Equal(t, SlotA, d.Slot)
	require.False(t, d.Received)
	m := b.meta()
	require.Equal(t, SlotA, m.Active)
	require.Equal(t, status(StatusValid, StatusEmpty), m.Status)
	require.NotNil(t, b.findEvent(EventTransferInterrupted))
}

func TestBootReceivedImageRejected(t *testing.T) {
	b := newTestBoard(t)
	b.install(SlotA, b.imageFile(SlotA, 1200, 1))
	b.setMeta(Meta{Active: SlotA, Status: status(StatusValid, StatusEmpty)})

	devLink, hostLink := newPipeLinks(t)
	ctx := timeoutContext(t, 10*time.Second)
	resCh := bootAsync(ctx, b.updater(b.port(true), devLink))

	img := b.imageFile(SlotB, 1500, 4)
	img[12] ^= 0xff // header crc
	require.NoError(t, xmodem.Send(ctx, hostLink, img, xmodem.WithAckTimeout(time.Second)))
	res := <-resCh
	require.ErrorIs(t, res.err, ErrHandoffReturned)
	// B is demoted on the next pass and A is still active
	require.Equal(t, SlotA, res.d.Slot)
	require.True(t, res.d.Rollback)
	m := b.meta()
	require.Equal(t, SlotB, m.Active)
	require.Equal(t, status(StatusValid, StatusInvalid), m.Status)
}

func TestBootStrictHandoff(t *testing.T) {
	testCases := []struct {
		name   string
		strict bool
	}{
		{"strict", true},
		{"diagnostic", false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestBoard(t)
			img := b.imageFile(SlotA, 1200, 1)
			binary.LittleEndian.PutUint32(img[image.HeaderSize:], 0x20005000)
			img = image.Build(img[image.HeaderSize:], 1)
			b.install(SlotA, img)
			b.setMeta(Meta{Active: SlotA, Status: status(StatusValid, StatusEmpty)})
			link := newTestLink()
			defer link.Close()

			u := b.updater(b.port(), link)
			u.Handoff.Strict = tc.strict
			_, err := u.Boot(timeoutContext(t, 100*time.Millisecond))
			if !tc.strict {
				require.ErrorIs(t, err, ErrHandoffReturned)
				require.True(t, b.cpu.called())
				return
			}
			require.ErrorIs(t, err, context.DeadlineExceeded)
			require.False(t, b.cpu.called())
			require.Equal(t, StatusInvalid, b.meta().StatusOf(SlotA))
			rejected := b.findEvent(EventSlotRejected)
			require.NotNil(t, rejected)
			require.ErrorIs(t, rejected.Err, ErrStackPointer)
		})
	}
}

func TestBootRefusedSlotWithBrokenMetaPage(t *testing.T) {
	b := newTestBoard(t)
	img := b.imageFile(SlotA, 1200, 1)
	binary.LittleEndian.PutUint32(img[image.HeaderSize:], 0x20005000)
	b.install(SlotA, image.Build(img[image.HeaderSize:], 1))
	b.setMeta(Meta{Active: SlotA, Status: status(StatusValid, StatusEmpty)})
	erased := errors.New("erase failed")
	b.dev.FailErase = func(addr uint32) error {
		if addr == b.layout.MetaAddr() {
			return erased
		}
		return nil
	}
	link := newTestLink()
	defer link.Close()

	start := time.Now()
	_, err := b.updater(b.port(), link).Boot(timeoutContext(t, 200*time.Millisecond))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
	require.False(t, b.cpu.called())

	var rejected int
	for _, kind := range b.eventKinds() {
		if kind == EventSlotRejected {
			rejected++
		}
	}
	require.Equal(t, 1, rejected)
	require.NotNil(t, b.findEvent(EventNoImage))
	require.Equal(t, StatusValid, b.meta().StatusOf(SlotA))
}

func TestBootStopsWhenCanceled(t *testing.T) {
	b := newTestBoard(t)
	b.install(SlotA, b.imageFile(SlotA, 1200, 1))
	b.setMeta(Meta{Active: SlotA, Status: status(StatusValid, StatusEmpty)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	link := newTestLink()
	defer link.Close()

	_, err := b.updater(b.port(), link).Boot(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, b.cpu.called())
}

func TestInspect(t *testing.T) {
	b := newTestBoard(t)
	b.install(SlotA, b.imageFile(SlotA, 1200, 1))
	b.install(SlotB, b.imageFile(SlotB, 1500, 2))
	b.corrupt(SlotB)
	b.setMeta(Meta{Active: SlotB, Status: status(StatusValid, StatusUnconfirmed)})
	before := append([]byte{}, b.dev.Bytes()...)

	in, err := Inspect(b.dev, b.layout)
	require.NoError(t, err)
	require.NoError(t, in.MetaErr)
	require.Equal(t, SlotB, in.Meta.Active)
	require.True(t, in.Slots[SlotA].Bootable())
	require.Equal(t, uint32(1200), in.Slots[SlotA].Header.Size)
	require.False(t, in.Slots[SlotB].Bootable())
	var cerr *image.ChecksumError
	require.ErrorAs(t, in.Slots[SlotB].Err, &cerr)
	require.Equal(t, before, b.dev.Bytes())

	_, err = Inspect(b.dev, Layout{FlashStart: 0x08000000, FlashSize: 0x8000, RegionStart: 0x08003001, PageSize: 1024})
	require.ErrorIs(t, err, ErrConfigAlign)
}
