package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"alert-autoconf/internal/cli"
)

// main runs one alert-autoconf command; SIGINT/SIGTERM cancel in-flight backend calls.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
