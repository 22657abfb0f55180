package mqtt

import (
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
	"github.com/golang/protobuf/proto"

	"github.com/robotalks/miniota/pkg/ota"
	pb "github.com/robotalks/miniota/pkg/proto/ota/v1"
)

// Topic suffixes under the device id.
const (
	TopicEvents      = "events"
	TopicMeta        = "meta"
	TopicEnterUpdate = "enter-update"
)

// Publisher is the publishing side of Queue.
type Publisher interface {
	PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token
}

// Reporter publishes boot events of one device.
// Events go to <id>/events, the latest Meta is retained on <id>/meta.
// Report never waits for the broker.
type Reporter struct {
	Publisher Publisher
	DeviceID  string

	now func() time.Time
}

// NewReporter creates a Reporter.
func NewReporter(pub Publisher, deviceID string) *Reporter {
	return &Reporter{Publisher: pub, DeviceID: deviceID, now: time.Now}
}

// Topic returns the full topic of suffix for this device.
func (r *Reporter) Topic(suffix string) string {
	return r.DeviceID + "/" + suffix
}

// Report implements ota.Reporter.
func (r *Reporter) Report(e ota.Event) {
	msg := EventMessage(e)
	msg.DeviceId = r.DeviceID
	if r.now != nil {
		msg.Timestamp = r.now().UnixNano()
	}
	r.publish(TopicEvents, msg, false)
	if e.Kind != ota.EventConfigFault {
		r.publish(TopicMeta, msg.Meta, true)
	}
}

func (r *Reporter) publish(suffix string, msg proto.Message, retain bool) {
	payload, err := proto.Marshal(msg)
	if err != nil {
		glog.Errorf("mqtt: encode %s: %v", suffix, err)
		return
	}
	r.Publisher.PubWith(r.Topic(suffix), payload, 1, retain)
}

// EventMessage converts an event into its wire message.
func EventMessage(e ota.Event) *pb.Event {
	msg := &pb.Event{
		Kind: pb.EventKind(int32(e.Kind) + 1),
		Addr: e.Addr,
		Meta: MetaMessage(e.Meta),
	}
	switch e.Kind {
	case ota.EventConfigFault, ota.EventMetaReset, ota.EventNoImage:
	default:
		msg.Slot = e.Slot.String()
	}
	if e.Err != nil {
		msg.Error = e.Err.Error()
	}
	return msg
}

// MetaMessage converts Meta into its wire message.
func MetaMessage(m ota.Meta) *pb.Meta {
	return &pb.Meta{
		Seq:     m.Seq,
		Active:  m.Active.String(),
		StatusA: statusMessage(m.StatusOf(ota.SlotA)),
		StatusB: statusMessage(m.StatusOf(ota.SlotB)),
	}
}

func statusMessage(s ota.SlotStatus) pb.SlotStatus {
	switch s {
	case ota.StatusEmpty:
		return pb.SlotStatus_SLOT_STATUS_EMPTY
	case ota.StatusUnconfirmed:
		return pb.SlotStatus_SLOT_STATUS_UNCONFIRMED
	case ota.StatusValid:
		return pb.SlotStatus_SLOT_STATUS_VALID
	case ota.StatusInvalid:
		return pb.SlotStatus_SLOT_STATUS_INVALID
	}
	return pb.SlotStatus_SLOT_STATUS_UNSPECIFIED
}
