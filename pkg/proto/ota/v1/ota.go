// Package v1 holds the telemetry messages of ota.proto.
//
// The types are maintained by hand, field tags follow ota.proto and are
// encoded by github.com/golang/protobuf through reflection.
package v1

import (
	"github.com/golang/protobuf/proto"
)

// SlotStatus mirrors the persisted slot state.
type SlotStatus int32

// SlotStatus values.
const (
	SlotStatus_SLOT_STATUS_UNSPECIFIED SlotStatus = 0
	SlotStatus_SLOT_STATUS_EMPTY       SlotStatus = 1
	SlotStatus_SLOT_STATUS_UNCONFIRMED SlotStatus = 2
	SlotStatus_SLOT_STATUS_VALID       SlotStatus = 3
	SlotStatus_SLOT_STATUS_INVALID     SlotStatus = 4
)

var SlotStatus_name = map[int32]string{
	0: "SLOT_STATUS_UNSPECIFIED",
	1: "SLOT_STATUS_EMPTY",
	2: "SLOT_STATUS_UNCONFIRMED",
	3: "SLOT_STATUS_VALID",
	4: "SLOT_STATUS_INVALID",
}

var SlotStatus_value = map[string]int32{
	"SLOT_STATUS_UNSPECIFIED": 0,
	"SLOT_STATUS_EMPTY":       1,
	"SLOT_STATUS_UNCONFIRMED": 2,
	"SLOT_STATUS_VALID":       3,
	"SLOT_STATUS_INVALID":     4,
}

func (x SlotStatus) String() string {
	return proto.EnumName(SlotStatus_name, int32(x))
}

// EventKind is the boot milestone.
type EventKind int32

// EventKind values.
const (
	EventKind_EVENT_KIND_UNSPECIFIED          EventKind = 0
	EventKind_EVENT_KIND_CONFIG_FAULT         EventKind = 1
	EventKind_EVENT_KIND_META_RESET           EventKind = 2
	EventKind_EVENT_KIND_SLOT_CONFIRMED       EventKind = 3
	EventKind_EVENT_KIND_SLOT_REJECTED        EventKind = 4
	EventKind_EVENT_KIND_TRANSFER_READY       EventKind = 5
	EventKind_EVENT_KIND_TRANSFER_FINISHED    EventKind = 6
	EventKind_EVENT_KIND_TRANSFER_INTERRUPTED EventKind = 7
	EventKind_EVENT_KIND_ROLLBACK             EventKind = 8
	EventKind_EVENT_KIND_JUMP                 EventKind = 9
	EventKind_EVENT_KIND_NO_IMAGE             EventKind = 10
)

var EventKind_name = map[int32]string{
	0:  "EVENT_KIND_UNSPECIFIED",
	1:  "EVENT_KIND_CONFIG_FAULT",
	2:  "EVENT_KIND_META_RESET",
	3:  "EVENT_KIND_SLOT_CONFIRMED",
	4:  "EVENT_KIND_SLOT_REJECTED",
	5:  "EVENT_KIND_TRANSFER_READY",
	6:  "EVENT_KIND_TRANSFER_FINISHED",
	7:  "EVENT_KIND_TRANSFER_INTERRUPTED",
	8:  "EVENT_KIND_ROLLBACK",
	9:  "EVENT_KIND_JUMP",
	10: "EVENT_KIND_NO_IMAGE",
}

var EventKind_value = map[string]int32{
	"EVENT_KIND_UNSPECIFIED":          0,
	"EVENT_KIND_CONFIG_FAULT":         1,
	"EVENT_KIND_META_RESET":           2,
	"EVENT_KIND_SLOT_CONFIRMED":       3,
	"EVENT_KIND_SLOT_REJECTED":        4,
	"EVENT_KIND_TRANSFER_READY":       5,
	"EVENT_KIND_TRANSFER_FINISHED":    6,
	"EVENT_KIND_TRANSFER_INTERRUPTED": 7,
	"EVENT_KIND_ROLLBACK":             8,
	"EVENT_KIND_JUMP":                 9,
	"EVENT_KIND_NO_IMAGE":             10,
}

func (x EventKind) String() string {
	return proto.EnumName(EventKind_name, int32(x))
}

// Meta is the persisted update state.
type Meta struct {
	Seq                  uint32     `protobuf:"varint,1,opt,name=seq,proto3" json:"seq,omitempty"`
	Active               string     `protobuf:"bytes,2,opt,name=active,proto3" json:"active,omitempty"`
	StatusA              SlotStatus `protobuf:"varint,3,opt,name=status_a,json=statusA,proto3,enum=miniota.ota.v1.SlotStatus" json:"status_a,omitempty"`
	StatusB              SlotStatus `protobuf:"varint,4,opt,name=status_b,json=statusB,proto3,enum=miniota.ota.v1.SlotStatus" json:"status_b,omitempty"`
	XXX_NoUnkeyedLiteral struct{}   `json:"-"`
	XXX_unrecognized     []byte     `json:"-"`
	XXX_sizecache        int32      `json:"-"`
}

func (m *Meta) Reset()         { *m = Meta{} }
func (m *Meta) String() string { return proto.CompactTextString(m) }
func (*Meta) ProtoMessage()    {}

// Event is one boot milestone of a device.
type Event struct {
	Kind                 EventKind `protobuf:"varint,1,opt,name=kind,proto3,enum=miniota.ota.v1.EventKind" json:"kind,omitempty"`
	DeviceId             string    `protobuf:"bytes,2,opt,name=device_id,json=deviceId,proto3" json:"device_id,omitempty"`
	Slot                 string    `protobuf:"bytes,3,opt,name=slot,proto3" json:"slot,omitempty"`
	Addr                 uint32    `protobuf:"varint,4,opt,name=addr,proto3" json:"addr,omitempty"`
	Meta                 *Meta     `protobuf:"bytes,5,opt,name=meta,proto3" json:"meta,omitempty"`
	Error                string    `protobuf:"bytes,6,opt,name=error,proto3" json:"error,omitempty"`
	Timestamp            int64     `protobuf:"varint,7,opt,name=timestamp,proto3" json:"timestamp,omitempty"`
	XXX_NoUnkeyedLiteral struct{}  `json:"-"`
	XXX_unrecognized     []byte    `json:"-"`
	XXX_sizecache        int32     `json:"-"`
}

func (m *Event) Reset()         { *m = Event{} }
func (m *Event) String() string { return proto.CompactTextString(m) }
func (*Event) ProtoMessage()    {}

func init() {
	proto.RegisterEnum("miniota.ota.v1.SlotStatus", SlotStatus_name, SlotStatus_value)
	proto.RegisterEnum("miniota.ota.v1.EventKind", EventKind_name, EventKind_value)
	proto.RegisterType((*Meta)(nil), "miniota.ota.v1.Meta")
	proto.RegisterType((*Event)(nil), "miniota.ota.v1.Event")
}
