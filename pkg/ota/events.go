package ota

import (
	"fmt"
)

// EventKind classifies Event.
type EventKind int

// Event kinds.
const (
	EventConfigFault EventKind = iota
	EventMetaReset
	EventSlotConfirmed
	EventSlotRejected
	EventTransferReady
	EventTransferFinished
	EventTransferInterrupted
	EventRollback
	EventJump
	EventNoImage
)

var eventKindNames = map[EventKind]string{
	EventConfigFault:         "config-fault",
	EventMetaReset:           "meta-reset",
	EventSlotConfirmed:       "slot-confirmed",
	EventSlotRejected:        "slot-rejected",
	EventTransferReady:       "transfer-ready",
	EventTransferFinished:    "transfer-finished",
	EventTransferInterrupted: "transfer-interrupted",
	EventRollback:            "rollback",
	EventJump:                "jump",
	EventNoImage:             "no-image",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is a boot milestone.
type Event struct {
	Kind EventKind
	Slot Slot
	Addr uint32
	Meta Meta
	Err  error
}

func (e Event) String() string {
	s := fmt.Sprintf("%s slot=%s addr=0x%08X meta={%s}", e.Kind, e.Slot, e.Addr, e.Meta)
	if e.Err != nil {
		s += " err=" + e.Err.Error()
	}
	return s
}

// Reporter receives events. It must not block the boot.
type Reporter interface {
	Report(Event)
}

// ReporterFunc is func form of Reporter.
type ReporterFunc func(Event)

// Report implements Reporter.
func (f ReporterFunc) Report(e Event) {
	f(e)
}

// ReporterMux fans out to multiple Reporters.
type ReporterMux struct {
	Reporters []Reporter
}

// Report implements Reporter.
func (r *ReporterMux) Report(e Event) {
	for _, rep := range r.Reporters {
		rep.Report(e)
	}
}

// Add adds more reporters.
func (r *ReporterMux) Add(reps ...Reporter) {
	r.Reporters = append(r.Reporters, reps...)
}
