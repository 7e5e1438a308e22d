// dcmrelayd runs the relay daemon in the foreground. It is the
// supervisor-friendly entry point: `dcmrelay start` forks the same daemon
// loop into the background, while this binary stays attached so systemd or
// runit can own the process.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"dcmrelay/internal/config"
	"dcmrelay/internal/daemonrun"
)

func main() {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, _, _, err := config.Load(flags.configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, flags.options()); err != nil {
		log.Fatalf("dcmrelayd: %v", err)
	}
}
