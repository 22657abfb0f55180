// Package device assembles a simulated device: file backed flash, a serial
// link and the updater running the boot sequence.
package device

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/albenik/go-serial/v2"
	"github.com/golang/glog"

	fx "github.com/robotalks/miniota/pkg/framework"
	"github.com/robotalks/miniota/pkg/env"
	"github.com/robotalks/miniota/pkg/flash"
	"github.com/robotalks/miniota/pkg/ota"
	"github.com/robotalks/miniota/pkg/report/mqtt"
)

// Config provides the options to setup a simulated device.
type Config struct {
	DeviceID string

	// FlashFile persists the flash contents between runs.
	FlashFile   string
	FlashStart  uint
	FlashSize   uint
	RegionStart uint
	PageSize    uint

	// SerialPort is the link the image arrives on, empty for stdin/stdout.
	SerialPort string
	BaudRate   int

	EnterUpdate   bool
	StrictHandoff bool
	ProbeInterval time.Duration

	// MQTTBrokerURL specifies the MQTT broker for telemetry.
	// e.g. mqtt://host:port/topic-prefix/
	MQTTBrokerURL string
}

var defaultConfig = Config{
	FlashFile:     "flash.bin",
	FlashStart:    0x08000000,
	FlashSize:     0x8000,
	RegionStart:   0x08003000,
	PageSize:      1024,
	BaudRate:      115200,
	StrictHandoff: true,
	ProbeInterval: ota.DefaultProbeInterval,
}

func init() {
	if val := os.Getenv("MINIOTA_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("MINIOTA_SERIAL"); val != "" {
		defaultConfig.SerialPort = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.DeviceID, "id", defaultConfig.DeviceID, "Device ID, machine ID by default")
	flag.StringVar(&defaultConfig.FlashFile, "flash", defaultConfig.FlashFile, "Flash image file")
	flag.UintVar(&defaultConfig.FlashStart, "flash-start", defaultConfig.FlashStart, "Flash start address")
	flag.UintVar(&defaultConfig.FlashSize, "flash-size", defaultConfig.FlashSize, "Flash size in bytes")
	flag.UintVar(&defaultConfig.RegionStart, "region", defaultConfig.RegionStart, "Start address of the update region")
	flag.UintVar(&defaultConfig.PageSize, "page-size", defaultConfig.PageSize, "Flash page size")
	flag.StringVar(&defaultConfig.SerialPort, "serial", defaultConfig.SerialPort, "Serial port, stdin/stdout if empty")
	flag.IntVar(&defaultConfig.BaudRate, "baud", defaultConfig.BaudRate, "Serial baud rate")
	flag.BoolVar(&defaultConfig.EnterUpdate, "update", defaultConfig.EnterUpdate, "Enter update mode")
	flag.BoolVar(&defaultConfig.StrictHandoff, "strict", defaultConfig.StrictHandoff, "Refuse to jump on a bad vector table")
	flag.DurationVar(&defaultConfig.ProbeInterval, "probe", defaultConfig.ProbeInterval, "Transfer probe interval")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL for telemetry")
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Layout converts the flash options.
func (c *Config) Layout() ota.Layout {
	return ota.Layout{
		FlashStart:  uint32(c.FlashStart),
		FlashSize:   uint32(c.FlashSize),
		RegionStart: uint32(c.RegionStart),
		PageSize:    uint32(c.PageSize),
	}
}

// Env is a simulated device ready to boot.
type Env struct {
	Config   *Config
	Flash    *flash.FileDevice
	Link     io.ReadWriteCloser
	Updater  *ota.Updater
	Reporter *ota.ReporterMux
	Queue    *mqtt.Queue
}

// NewEnv creates Env from config.
func (c *Config) NewEnv() (*Env, error) {
	layout := c.Layout()
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	id := c.DeviceID
	if id == "" {
		id = env.DeviceID()
	}
	dev, err := flash.OpenFile(c.FlashFile, layout.Geometry())
	if err != nil {
		return nil, fmt.Errorf("open flash %s error: %v", c.FlashFile, err)
	}
	e := &Env{
		Config:   c,
		Flash:    dev,
		Reporter: &ota.ReporterMux{},
	}
	if e.Link, err = c.openLink(); err != nil {
		dev.Close()
		return nil, fmt.Errorf("open serial %s error: %v", c.SerialPort, err)
	}

	var port ota.Port = &ota.StaticPort{
		EnterUpdate: c.EnterUpdate,
		OnDeinit: func() {
			if err := dev.Sync(); err != nil {
				glog.Errorf("flash sync: %v", err)
			}
		},
	}
	e.Reporter.Add(ota.ReporterFunc(logEvent))
	if c.MQTTBrokerURL != "" {
		q, err := mqtt.NewQueueFromURL(c.MQTTBrokerURL)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("create MQTT queue error: %v", err)
		}
		e.Queue = q
		e.Reporter.Add(mqtt.NewReporter(q, id))
		port = mqtt.NewTrigger(q, id, port)
	}

	e.Updater = ota.NewUpdater(layout, dev, port, e.Link, &SimCPU{Exit: os.Exit})
	e.Updater.Handoff.Strict = c.StrictHandoff
	e.Updater.ProbeInterval = c.ProbeInterval
	e.Updater.Reporter = e.Reporter
	return e, nil
}

// MustNewEnv creates Env and fails on error.
func (c *Config) MustNewEnv() *Env {
	e, err := c.NewEnv()
	if err != nil {
		log.Fatalln(err)
	}
	return e
}

func (c *Config) openLink() (io.ReadWriteCloser, error) {
	if c.SerialPort == "" {
		return stdioLink{}, nil
	}
	conn, err := serial.Open(c.SerialPort,
		serial.WithBaudrate(c.BaudRate),
		serial.WithDataBits(8),
		serial.WithParity(serial.NoParity),
		serial.WithStopBits(serial.OneStopBit),
		serial.WithReadTimeout(100),
	)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Run implements framework.Runnable. It boots the device, the process
// exits inside the handoff so a return is always a failure or a stop.
func (e *Env) Run(ctx context.Context) error {
	if e.Queue != nil {
		if tok := e.Queue.Connect(); tok.WaitTimeout(3*time.Second) && tok.Error() != nil {
			glog.Warningf("mqtt: %v", tok.Error())
		}
	}
	defer e.Close()
	return fx.RunWithContextCloser(ctx, e.Link, func() error {
		_, err := e.Updater.Boot(ctx)
		return err
	})
}

// Close implements io.Closer. The link is closed by Run.
func (e *Env) Close() error {
	var errs fx.AggregatedError
	if e.Queue != nil {
		errs.Add(e.Queue.Close())
	}
	errs.Add(e.Flash.Close())
	return errs.Aggregate()
}

func logEvent(ev ota.Event) {
	glog.V(1).Infof("event %s", ev)
}

type stdioLink struct{}

func (stdioLink) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioLink) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdioLink) Close() error                { return nil }
