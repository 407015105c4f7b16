package testutil

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// StartLocalRedisServer starts ephemeral redis-server without persistence for tests.
// Params: test handle for lifecycle and failure reporting.
// Returns: redis URL and stop callback.
func StartLocalRedisServer(tb testing.TB) (string, func()) {
	tb.Helper()

	port, stop := startServer(tb, "redis-server", func(port int, dir string) []string {
		return []string{
			"--port", strconv.Itoa(port),
			"--bind", "127.0.0.1",
			"--save", "",
			"--appendonly", "no",
			"--dir", dir,
		}
	})
	url := "redis://127.0.0.1:" + strconv.Itoa(port) + "/0"
	WaitForRedisReady(tb, url, 8*time.Second)
	return url, stop
}

// WaitForRedisReady waits until redis answers PING.
func WaitForRedisReady(tb testing.TB, url string, timeout time.Duration) {
	tb.Helper()

	opts, err := redis.ParseURL(url)
	if err != nil {
		tb.Fatalf("parse redis url: %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	waitReady(tb, "redis at "+url, timeout, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return client.Ping(ctx).Err()
	})
}
