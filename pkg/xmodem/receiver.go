package xmodem

import (
	"github.com/golang/glog"

	"github.com/robotalks/miniota/pkg/crc16"
)

// State is the framing state of Receiver.
type State int

const (
	// StateWaitStart expects SOH, STX, EOT or CAN.
	StateWaitStart State = iota
	// StateWaitBlockNum expects the block number.
	StateWaitBlockNum
	// StateWaitBlockInv expects the complement of the block number.
	StateWaitBlockInv
	// StateWaitData expects payload bytes.
	StateWaitData
	// StateWaitCRCHigh expects the high byte of CRC.
	StateWaitCRCHigh
	// StateWaitCRCLow expects the low byte of CRC.
	StateWaitCRCLow
)

func (s State) String() string {
	switch s {
	case StateWaitStart:
		return "wait-start"
	case StateWaitBlockNum:
		return "wait-block"
	case StateWaitBlockInv:
		return "wait-block-inv"
	case StateWaitData:
		return "wait-data"
	case StateWaitCRCHigh:
		return "wait-crc-hi"
	case StateWaitCRCLow:
		return "wait-crc-lo"
	}
	return "unknown"
}

// Status is the transfer progress.
type Status int

const (
	// StatusIdle means nothing received yet.
	StatusIdle Status = iota
	// StatusInProgress means at least one packet started.
	StatusInProgress
	// StatusFinished means EOT was accepted.
	StatusFinished
	// StatusInterrupted means the sender canceled.
	StatusInterrupted
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusInProgress:
		return "in-progress"
	case StatusFinished:
		return "finished"
	case StatusInterrupted:
		return "interrupted"
	}
	return "unknown"
}

// Done indicates the transfer is over, either way.
func (s Status) Done() bool {
	return s == StatusFinished || s == StatusInterrupted
}

// PageWriter commits accepted payload. flash.Writer implements it.
type PageWriter interface {
	Offset() int
	Remaining() int
	Stage(p []byte) error
	Unstage(n int)
	Flush() error
}

// Result indicates the result after one receiving step.
type Result struct {
	// Reply is the byte to send back, 0 for none.
	Reply  byte
	State  State
	Status Status
	// Err describes why a packet was rejected or a commit failed.
	Err error
}

// Receiver is the device side XMODEM state machine.
// The writer must be initialized to the start of the destination and its
// page size must be at least MaxBlockSize.
type Receiver struct {
	w        PageWriter
	state    State
	status   Status
	expected byte
	block    byte
	dataLen  int
	recvLen  int
	crc      uint16
	accepted int
	data     [MaxBlockSize]byte
}

// NewReceiver creates a Receiver committing to w.
func NewReceiver(w PageWriter) *Receiver {
	r := &Receiver{w: w}
	r.Reset()
	return r
}

// Reset restarts at block 1.
func (r *Receiver) Reset() {
	r.state, r.status = StateWaitStart, StatusIdle
	r.expected, r.block = 1, 0
	r.dataLen, r.recvLen, r.crc = 0, 0, 0
	r.accepted = 0
}

// State gets the framing state.
func (r *Receiver) State() State {
	return r.state
}

// Status gets the transfer status.
func (r *Receiver) Status() Status {
	return r.status
}

// Expected gets the next block number to accept.
func (r *Receiver) Expected() byte {
	return r.expected
}

// Accepted gets the number of committed blocks.
func (r *Receiver) Accepted() int {
	return r.accepted
}

// ShouldProbe indicates the sender should be asked to start.
func (r *Receiver) ShouldProbe() bool {
	return r.state == StateWaitStart && r.status == StatusIdle
}

// Receive consumes one byte.
func (r *Receiver) Receive(b byte) (res Result) {
	res.Reply, res.Err = r.receiveByte(b)
	res.State, res.Status = r.state, r.status
	return
}

func (r *Receiver) receiveByte(b byte) (byte, error) {
	switch r.state {
	case StateWaitStart:
		switch b {
		case SOH:
			r.startPacket(BlockSize)
		case STX:
			r.startPacket(BlockSize1K)
		case EOT:
			return r.finish()
		case CAN:
			r.status = StatusInterrupted
			glog.Warningf("xmodem: canceled by sender at block %d", r.expected)
		default:
			glog.V(4).Infof("xmodem: ignore 0x%02x", b)
		}
	case StateWaitBlockNum:
		r.block, r.state = b, StateWaitBlockInv
	case StateWaitBlockInv:
		if r.block+b != 0xff {
			r.state = StateWaitStart
			return NAK, ErrBlockComplement
		}
		r.recvLen, r.state = 0, StateWaitData
	case StateWaitData:
		r.data[r.recvLen] = b
		r.recvLen++
		if r.recvLen >= r.dataLen {
			r.state = StateWaitCRCHigh
		}
	case StateWaitCRCHigh:
		r.crc, r.state = uint16(b)<<8, StateWaitCRCLow
	case StateWaitCRCLow:
		r.crc |= uint16(b)
		r.state = StateWaitStart
		return r.packetReady()
	}
	return 0, nil
}

func (r *Receiver) startPacket(size int) {
	r.dataLen, r.state, r.status = size, StateWaitBlockNum, StatusInProgress
}

func (r *Receiver) packetReady() (byte, error) {
	payload := r.data[:r.dataLen]
	if sum := crc16.Checksum(payload); sum != r.crc {
		return NAK, &ChecksumError{Block: r.block, Expected: r.crc, Actual: sum}
	}
	switch r.block {
	case r.expected:
		if err := r.commit(payload); err != nil {
			glog.Errorf("xmodem: commit block %d: %v", r.block, err)
			return 0, err
		}
		glog.V(3).Infof("xmodem: block %d accepted (%d bytes)", r.block, r.dataLen)
		r.expected++
		r.accepted++
		return ACK, nil
	case r.expected - 1:
		glog.V(2).Infof("xmodem: duplicated block %d", r.block)
		return ACK, nil
	}
	return NAK, &SequenceError{Block: r.block, Expected: r.expected}
}

// commit stages the payload right after the previous one. A payload
// crossing the page end fills the page, flushes it, then continues on the
// next page. If the flush fails, the partial staging is undone so the
// retransmitted packet lands at the same offset.
func (r *Receiver) commit(p []byte) error {
	n := r.w.Remaining()
	if n > len(p) {
		n = len(p)
	}
	if err := r.w.Stage(p[:n]); err != nil {
		return err
	}
	if n == len(p) {
		return nil
	}
	if err := r.w.Flush(); err != nil {
		r.w.Unstage(n)
		return err
	}
	return r.w.Stage(p[n:])
}

func (r *Receiver) finish() (byte, error) {
	if r.w.Offset() > 0 {
		if err := r.w.Flush(); err != nil {
			glog.Errorf("xmodem: flush on EOT: %v", err)
			return NAK, err
		}
	}
	r.status = StatusFinished
	glog.Infof("xmodem: transfer complete, %d blocks", r.accepted)
	return ACK, nil
}
