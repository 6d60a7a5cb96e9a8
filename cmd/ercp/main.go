// Command ercp sends commands to a device speaking ERCP Basic over a serial port.
//
//	ercp --basic --port /dev/ttyACM0 ping
//	ercp -b -p /dev/ttyACM0 -t 1s version firmware
//	ercp -b -p /dev/ttyACM0 log
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/arloliu/go-ercp/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()

	os.Exit(code)
}
