// Package env provides what a device needs from the host it runs on.
package env

import (
	"os"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
)

// AppID salts the machine ID so the device ID does not leak it.
const AppID = "miniota"

// DeviceID retrieves the unique ID identifying this device. It falls back
// to the host name when the machine ID is not available.
func DeviceID() string {
	id, err := machineid.ProtectedID(AppID)
	if err == nil {
		return id[:16]
	}
	glog.Warningf("machine id: %v", err)
	if host, herr := os.Hostname(); herr == nil {
		return host
	}
	return AppID
}
