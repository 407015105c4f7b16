package testutil

import (
	"strconv"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

// StartLocalNATSServer starts nats-server with JetStream for ownership store tests.
// Params: test handle for lifecycle and failure reporting.
// Returns: server URL and stop callback.
func StartLocalNATSServer(tb testing.TB) (string, func()) {
	tb.Helper()

	port, stop := startServer(tb, "nats-server", func(port int, dir string) []string {
		return []string{"-js", "-p", strconv.Itoa(port), "-sd", dir}
	})
	url := "nats://127.0.0.1:" + strconv.Itoa(port)
	WaitForNATSReady(tb, url, 8*time.Second)
	return url, stop
}

// WaitForNATSReady waits until a NATS endpoint accepts connections.
func WaitForNATSReady(tb testing.TB, url string, timeout time.Duration) {
	tb.Helper()

	waitReady(tb, "nats at "+url, timeout, func() error {
		nc, err := nats.Connect(url)
		if err != nil {
			return err
		}
		nc.Close()
		return nil
	})
}
