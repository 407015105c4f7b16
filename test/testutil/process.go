package testutil

import (
	"fmt"
	"net"
	"os/exec"
	"sync"
	"syscall"
	"testing"
	"time"
)

// FreePort reserves a local TCP port and returns it to the caller.
func FreePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer listener.Close()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// startServer launches a helper server binary on a free port.
// The test is skipped when the binary is not installed.
// Params: test handle, binary name, and args builder receiving the port and a temp dir.
// Returns: port, stop callback (also registered as cleanup).
func startServer(tb testing.TB, binary string, args func(port int, dir string) []string) (int, func()) {
	tb.Helper()

	if _, err := exec.LookPath(binary); err != nil {
		tb.Skipf("%s is required for integration test: %v", binary, err)
	}
	port, err := FreePort()
	if err != nil {
		tb.Fatalf("free port: %v", err)
	}
	cmd := exec.Command(binary, args(port, tb.TempDir())...)
	if err := cmd.Start(); err != nil {
		tb.Fatalf("start %s: %v", binary, err)
	}
	stop := stopProcess(cmd)
	tb.Cleanup(stop)
	return port, stop
}

// stopProcess builds idempotent SIGTERM-then-kill stopper for helper servers.
func stopProcess(cmd *exec.Cmd) func() {
	var stopOnce sync.Once
	return func() {
		stopOnce.Do(func() {
			if cmd.Process == nil {
				return
			}
			_ = cmd.Process.Signal(syscall.SIGTERM)
			done := make(chan struct{})
			go func() {
				_, _ = cmd.Process.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				_ = cmd.Process.Kill()
				<-done
			}
		})
	}
}

// waitReady polls probe until it succeeds or timeout expires.
// Params: test handle, endpoint label, timeout, and probe.
// Returns: nothing; fails the test on timeout.
func waitReady(tb testing.TB, label string, timeout time.Duration, probe func() error) {
	tb.Helper()

	var lastErr error
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if lastErr = probe(); lastErr == nil {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	tb.Fatalf("%s did not become ready: %v", label, fmt.Errorf("last probe: %w", lastErr))
}
