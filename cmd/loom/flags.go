package main

import "github.com/urfave/cli/v3"

var (
	deviceName string
	logLevel   string
	logFormat  string
)

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "device",
			Usage:       "compute device (auto, cpu, cuda)",
			Value:       "auto",
			Destination: &deviceName,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (text, json)",
			Value:       "text",
			Destination: &logFormat,
		},
	}
}
