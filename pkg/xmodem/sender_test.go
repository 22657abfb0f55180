package xmodem

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type testLink struct {
	io.Reader
	io.Writer
}

// testDevice runs a Receiver at the other end of a pair of pipes.
type testDevice struct {
	recv     *Receiver
	host     *testLink
	toDevR   *io.PipeReader
	toDevW   *io.PipeWriter
	toHostR  *io.PipeReader
	toHostW  *io.PipeWriter
	statusCh chan Status
}

func newTestDevice(r *Receiver) *testDevice {
	d := &testDevice{recv: r, statusCh: make(chan Status, 1)}
	d.toDevR, d.toDevW = io.Pipe()
	d.toHostR, d.toHostW = io.Pipe()
	d.host = &testLink{Reader: d.toHostR, Writer: d.toDevW}
	return d
}

func (d *testDevice) run(probe byte) {
	if probe != 0 {
		d.toHostW.Write([]byte{probe})
	}
	buf := make([]byte, 1)
	done := false
	for {
		if _, err := d.toDevR.Read(buf); err != nil {
			return
		}
		if done {
			continue
		}
		res := d.recv.Receive(buf[0])
		if res.Reply != 0 {
			d.toHostW.Write([]byte{res.Reply})
		}
		if res.Status.Done() {
			done = true
			d.statusCh <- res.Status
		}
	}
}

func (d *testDevice) close() {
	d.toDevW.Close()
	d.toHostW.Close()
}

// corruptingWriter flips a byte of the nth write.
type corruptingWriter struct {
	io.Writer
	nth   int
	count int
	lock  sync.Mutex
}

func (w *corruptingWriter) Write(p []byte) (int, error) {
	w.lock.Lock()
	w.count++
	hit := w.count == w.nth
	w.lock.Unlock()
	if hit && len(p) > 10 {
		c := append([]byte{}, p...)
		c[10] ^= 0xff
		return w.Writer.Write(c)
	}
	return w.Writer.Write(p)
}

func TestSendToReceiver(t *testing.T) {
	testCases := []struct {
		name      string
		size      int
		blockSize int
		corrupt   int
	}{
		{name: "1k blocks", size: 3000, blockSize: BlockSize1K},
		{name: "128 blocks", size: 1000, blockSize: BlockSize},
		{name: "exact blocks", size: 2 * BlockSize1K, blockSize: BlockSize1K},
		{name: "retransmit corrupted", size: 3000, blockSize: BlockSize1K, corrupt: 2},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, _, dev := newTestReceiver(t)
			d := newTestDevice(r)
			defer d.close()
			go d.run(CRCC)

			var link io.ReadWriter = d.host
			if tc.corrupt > 0 {
				link = &testLink{Reader: d.host.Reader, Writer: &corruptingWriter{Writer: d.host.Writer, nth: tc.corrupt}}
			}
			data := testPayload(tc.size, 5)
			var progress []Progress
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := Send(ctx, link, data,
				WithBlockSize(tc.blockSize),
				WithAckTimeout(time.Second),
				WithProgress(func(p Progress) { progress = append(progress, p) }))
			require.NoError(t, err)
			require.Equal(t, StatusFinished, <-d.statusCh)

			require.Equal(t, data, dev.Bytes()[:len(data)])
			blocks := (tc.size + tc.blockSize - 1) / tc.blockSize
			padded := dev.Bytes()[len(data) : blocks*tc.blockSize]
			for _, b := range padded {
				require.Equal(t, byte(0xff), b)
			}
			require.Len(t, progress, blocks)
			require.Equal(t, tc.size, progress[len(progress)-1].Sent)
		})
	}
}

func TestSendCanceledByReceiver(t *testing.T) {
	r, _, _ := newTestReceiver(t)
	d := newTestDevice(r)
	defer d.close()
	go d.run(CAN)
	err := Send(context.Background(), d.host, testPayload(100, 1), WithStartTimeout(5*time.Second))
	require.ErrorIs(t, err, ErrCanceled)
}

func TestSendStartTimeout(t *testing.T) {
	r, _, _ := newTestReceiver(t)
	d := newTestDevice(r)
	defer d.close()
	go d.run(0)
	err := Send(context.Background(), d.host, testPayload(100, 1), WithStartTimeout(50*time.Millisecond))
	require.ErrorIs(t, err, ErrStartTimeout)
}

func TestSendContextCancelSendsCAN(t *testing.T) {
	r, _, _ := newTestReceiver(t)
	d := newTestDevice(r)
	defer d.close()
	go d.run(CRCC)

	ctx, cancel := context.WithCancel(context.Background())
	err := Send(ctx, d.host, testPayload(4*BlockSize1K, 1),
		WithProgress(func(p Progress) {
			if p.Block == 2 {
				cancel()
			}
		}))
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, StatusInterrupted, <-d.statusCh)
}

func TestSendBlockSize(t *testing.T) {
	err := Send(context.Background(), &testLink{}, nil, WithBlockSize(512))
	require.ErrorIs(t, err, ErrBlockSize)
}

// nakLink starts the transfer and rejects every packet.
type nakLink struct {
	lock    sync.Mutex
	written []byte
	replies chan byte
}

func newNakLink() *nakLink {
	l := &nakLink{replies: make(chan byte, 64)}
	l.replies <- CRCC
	return l
}

func (l *nakLink) Read(p []byte) (int, error) {
	p[0] = <-l.replies
	return 1, nil
}

func (l *nakLink) Write(p []byte) (int, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.written = append(l.written, p...)
	if len(p) > 0 && (p[0] == STX || p[0] == SOH) {
		select {
		case l.replies <- NAK:
		default:
		}
	}
	return len(p), nil
}

func (l *nakLink) Written() []byte {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]byte{}, l.written...)
}

func TestSendTooManyRetriesSendsCAN(t *testing.T) {
	link := newNakLink()
	err := Send(context.Background(), link, testPayload(BlockSize, 1),
		WithBlockSize(BlockSize), WithRetries(2), WithAckTimeout(time.Second))
	require.ErrorIs(t, err, ErrTooManyRetries)
	written := link.Written()
	require.Len(t, written, 3*(3+BlockSize+2)+2)
	require.Equal(t, []byte{CAN, CAN}, written[len(written)-2:])
}
