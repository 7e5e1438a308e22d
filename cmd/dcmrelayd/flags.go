package main

import (
	"flag"
	"io"

	"dcmrelay/internal/daemonrun"
)

type daemonFlags struct {
	configPath string
	socketPath string
	logLevel   string
}

func parseFlags(args []string) (daemonFlags, error) {
	var flags daemonFlags
	fs := flag.NewFlagSet("dcmrelayd", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&flags.configPath, "config", "", "configuration file path")
	fs.StringVar(&flags.socketPath, "socket", "", "control socket path override")
	fs.StringVar(&flags.logLevel, "log-level", "", "log level override (debug|info|warn|error)")
	if err := fs.Parse(args); err != nil {
		return daemonFlags{}, err
	}
	return flags, nil
}

func (f daemonFlags) options() daemonrun.Options {
	return daemonrun.Options{
		LogLevel:   f.logLevel,
		SocketPath: f.socketPath,
	}
}
