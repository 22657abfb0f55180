package xmodem

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/golang/glog"
)

// Progress reports how much of the payload is acknowledged.
type Progress struct {
	Block int
	Sent  int
	Total int
}

// SendConfig holds the sender configuration.
type SendConfig struct {
	// BlockSize is BlockSize or BlockSize1K.
	BlockSize int
	// Retries is the number of retransmissions per packet.
	Retries int
	// StartTimeout bounds the wait for the receiver probe.
	StartTimeout time.Duration
	// AckTimeout bounds the wait for a reply to a packet.
	AckTimeout time.Duration
	// Padding fills the last block.
	Padding byte
	// Progress is called after each acknowledged block (optional).
	Progress func(Progress)
}

func defaultSendConfig() SendConfig {
	return SendConfig{
		BlockSize:    BlockSize1K,
		Retries:      10,
		StartTimeout: 60 * time.Second,
		AckTimeout:   3 * time.Second,
		Padding:      0xff,
	}
}

// SendOption is a functional option for Send.
type SendOption func(*SendConfig)

// WithBlockSize sets the payload size per packet.
func WithBlockSize(size int) SendOption {
	return func(c *SendConfig) {
		c.BlockSize = size
	}
}

// WithRetries sets the retransmission count per packet.
func WithRetries(n int) SendOption {
	return func(c *SendConfig) {
		if n >= 0 {
			c.Retries = n
		}
	}
}

// WithStartTimeout sets how long to wait for the receiver.
func WithStartTimeout(d time.Duration) SendOption {
	return func(c *SendConfig) {
		c.StartTimeout = d
	}
}

// WithAckTimeout sets how long to wait for a reply.
func WithAckTimeout(d time.Duration) SendOption {
	return func(c *SendConfig) {
		c.AckTimeout = d
	}
}

// WithProgress sets the progress callback.
func WithProgress(fn func(Progress)) SendOption {
	return func(c *SendConfig) {
		c.Progress = fn
	}
}

type sender struct {
	rw     io.ReadWriter
	config SendConfig
	byteCh chan byte
	errCh  chan error
}

// Send transfers data to a receiver over rw.
// It waits for the receiver probe 'C', sends the packets and ends with EOT.
// Canceling ctx sends CAN. A goroutine reads from rw until Read fails, so
// the caller should close rw when done with it.
func Send(ctx context.Context, rw io.ReadWriter, data []byte, opts ...SendOption) error {
	s := &sender{
		rw:     rw,
		config: defaultSendConfig(),
		byteCh: make(chan byte, 64),
		errCh:  make(chan error, 1),
	}
	for _, opt := range opts {
		opt(&s.config)
	}
	if s.config.BlockSize != BlockSize && s.config.BlockSize != BlockSize1K {
		return ErrBlockSize
	}
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.readLoop(subCtx)

	err := s.send(ctx, data)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTooManyRetries) {
		if _, werr := s.rw.Write([]byte{CAN, CAN}); werr != nil {
			glog.V(2).Infof("xmodem: send CAN: %v", werr)
		}
	}
	return err
}

func (s *sender) send(ctx context.Context, data []byte) error {
	if err := s.waitStart(ctx); err != nil {
		return err
	}
	s.drain()
	var block byte = 1
	buf := make([]byte, s.config.BlockSize)
	for off, seq := 0, 1; off < len(data); off, seq = off+len(buf), seq+1 {
		n := copy(buf, data[off:])
		for i := n; i < len(buf); i++ {
			buf[i] = s.config.Padding
		}
		pkt := &Packet{Block: block, Data: buf}
		if err := s.transmit(ctx, pkt.Bytes()); err != nil {
			return err
		}
		block++
		if fn := s.config.Progress; fn != nil {
			fn(Progress{Block: seq, Sent: off + n, Total: len(data)})
		}
	}
	return s.transmit(ctx, []byte{EOT})
}

func (s *sender) readLoop(ctx context.Context) {
	buf := make([]byte, 1)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			n, err := s.rw.Read(buf)
			if err != nil {
				s.errCh <- err
				return
			}
			if n == 0 {
				continue
			}
			select {
			case s.byteCh <- buf[0]:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *sender) waitStart(ctx context.Context) error {
	timer := time.NewTimer(s.config.StartTimeout)
	defer timer.Stop()
	for {
		select {
		case b := <-s.byteCh:
			switch b {
			case CRCC:
				return nil
			case CAN:
				return ErrCanceled
			}
			glog.V(4).Infof("xmodem: ignore 0x%02x before start", b)
		case err := <-s.errCh:
			return err
		case <-timer.C:
			return ErrStartTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// drain discards queued probes.
func (s *sender) drain() {
	for {
		select {
		case <-s.byteCh:
		default:
			return
		}
	}
}

func (s *sender) transmit(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for attempt := 0; attempt <= s.config.Retries; attempt++ {
		if attempt > 0 {
			glog.V(2).Infof("xmodem: retransmit 0x%02x block %d, attempt %d", p[0], blockOf(p), attempt)
		}
		if _, err := s.rw.Write(p); err != nil {
			return err
		}
		reply, err := s.waitReply(ctx)
		if err != nil {
			return err
		}
		if reply == ACK {
			return nil
		}
	}
	return ErrTooManyRetries
}

// waitReply returns ACK or NAK. A timeout counts as NAK. Probes which
// crossed the first packet on the line are ignored.
func (s *sender) waitReply(ctx context.Context) (byte, error) {
	timer := time.NewTimer(s.config.AckTimeout)
	defer timer.Stop()
	for {
		select {
		case b := <-s.byteCh:
			switch b {
			case ACK, NAK:
				return b, nil
			case CAN:
				return 0, ErrCanceled
			}
		case err := <-s.errCh:
			return 0, err
		case <-timer.C:
			return NAK, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func blockOf(p []byte) byte {
	if len(p) > 1 {
		return p[1]
	}
	return 0
}
