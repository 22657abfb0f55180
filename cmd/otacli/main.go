package main

//go-build: CGO_ENABLED=0

import (
	"github.com/golang/glog"

	"github.com/robotalks/miniota/pkg/cli/sh"
	"github.com/robotalks/miniota/pkg/env/device"
)

func init() {
	device.SetupFlags()
}

func main() {
	defer glog.Flush()
	sh.Main()
}
