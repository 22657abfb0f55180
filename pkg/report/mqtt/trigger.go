package mqtt

import (
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/miniota/pkg/ota"
)

// Trigger is an ota.Port which also enters update mode when requested on
// <id>/enter-update. A request holds until it is consumed by one boot.
type Trigger struct {
	ota.Port

	requested atomic.Bool
}

// NewTrigger subscribes to the enter-update topic of deviceID.
func NewTrigger(q *Queue, deviceID string, port ota.Port) *Trigger {
	t := &Trigger{Port: port}
	q.Sub(deviceID+"/"+TopicEnterUpdate, t.handle)
	return t
}

func (t *Trigger) handle(topic string, payload []byte) {
	glog.Infof("mqtt: update requested on %s", topic)
	t.Request()
}

// Request asks the next boot to enter update mode.
func (t *Trigger) Request() {
	t.requested.Store(true)
}

// ShouldEnterUpdate implements ota.Port.
func (t *Trigger) ShouldEnterUpdate() bool {
	if t.requested.Swap(false) {
		return true
	}
	return t.Port.ShouldEnterUpdate()
}
