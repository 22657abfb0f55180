package sh

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/abiosoft/ishell"
	"github.com/albenik/go-serial/v2"

	"github.com/robotalks/miniota/pkg/image"
	"github.com/robotalks/miniota/pkg/ota"
	"github.com/robotalks/miniota/pkg/xmodem"
)

var (
	// BuildCmd builds an image file.
	BuildCmd = ishell.Cmd{
		Name:    "build",
		Aliases: []string{"b"},
		Help:    "INPUT OUTPUT [VERSION]",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("input and output files expected"))
				return
			}
			var version uint64
			if len(c.Args) > 2 {
				var err error
				if version, err = strconv.ParseUint(c.Args[2], 0, 32); err != nil {
					c.Err(err)
					return
				}
			}
			out, addr, err := BuildImage(c.Args[0], uint32(version))
			if err != nil {
				c.Err(err)
				return
			}
			if err := os.WriteFile(c.Args[1], out, 0644); err != nil {
				c.Err(err)
				return
			}
			h, _, err := image.Parse(out)
			info := newImageInfo(c.Args[1], h, err)
			info.LoadAddr = addr
			Print(c, info)
		},
	}

	// InfoCmd shows the header of an image file.
	InfoCmd = ishell.Cmd{
		Name:    "info",
		Aliases: []string{"i"},
		Help:    "FILE",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("image file expected"))
				return
			}
			data, err := os.ReadFile(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			h, _, err := image.Parse(data)
			Print(c, newImageInfo(c.Args[0], h, err))
		},
	}

	// InspectCmd shows the update state of a flash file.
	InspectCmd = ishell.Cmd{
		Name:    "inspect",
		Aliases: []string{"st"},
		Help:    "[FLASH-FILE]",
		Func: func(c *ishell.Context) {
			conf := ShellFrom(c).Config
			path := conf.FlashFile
			if len(c.Args) > 0 {
				path = c.Args[0]
			}
			layout := conf.Layout()
			if err := layout.Validate(); err != nil {
				c.Err(err)
				return
			}
			dev, err := LoadFlash(path, layout)
			if err != nil {
				c.Err(err)
				return
			}
			in, err := ota.Inspect(dev, layout)
			if err != nil {
				c.Err(err)
				return
			}
			Print(c, NewFlashReport(in))
		},
	}

	// SendCmd sends an image file over the serial port.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    "FILE [PORT]",
		Func: func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("image file expected"))
				return
			}
			conf := ShellFrom(c).Config
			port := conf.SerialPort
			if len(c.Args) > 1 {
				port = c.Args[1]
			}
			if port == "" {
				c.Err(fmt.Errorf("serial port expected"))
				return
			}
			data, err := os.ReadFile(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			conn, err := serial.Open(port,
				serial.WithBaudrate(conf.BaudRate),
				serial.WithDataBits(8),
				serial.WithParity(serial.NoParity),
				serial.WithStopBits(serial.OneStopBit),
				serial.WithReadTimeout(100),
			)
			if err != nil {
				c.Err(err)
				return
			}
			defer conn.Close()

			c.Printf("Waiting for the device on %s ...\n", port)
			bar := c.ProgressBar()
			bar.Prefix("sending ")
			bar.Start()
			err = SendImage(context.Background(), conn, data, xmodem.WithProgress(func(p xmodem.Progress) {
				bar.Progress(p.Sent * 100 / p.Total)
			}))
			bar.Stop()
			if err != nil {
				c.Err(err)
				return
			}
			c.Printf("Sent %d bytes\n", len(data))
		},
	}
)
