package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/avstrong/checkin/internal/cli"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGHUP,
	)

	var exitCode int

	if err := cli.Execute(ctx, version); err != nil {
		exitCode = 1
	}

	cancel()
	os.Exit(exitCode)
}
