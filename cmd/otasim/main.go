package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	"github.com/golang/glog"

	"github.com/robotalks/miniota/pkg/env/device"
	"github.com/robotalks/miniota/pkg/framework"
)

func init() {
	device.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	env := device.NewConfig().MustNewEnv()
	if err := framework.Run(framework.NamedRun("otasim", env)); err != nil {
		glog.Flush()
		log.Fatalln(err)
	}
}
