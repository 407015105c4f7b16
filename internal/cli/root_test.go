package cli

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alert-autoconf/internal/app"
	"alert-autoconf/internal/logging"
	"alert-autoconf/internal/ownership"
)

const cliDocument = `version: 1
triggers:
  - name: cpu
    tags: [svc]
    targets: ["servers.*.cpu", "servers.*.mem"]
    expression: "t1 > t2"
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args []string, opts ...app.Option) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	opts = append([]app.Option{app.WithLogger(logging.Discard())}, opts...)
	code := Execute(context.Background(), args, &stdout, &stderr, opts...)
	return code, stdout.String(), stderr.String()
}

func TestUnknownFlagIsUsageError(t *testing.T) {
	t.Parallel()

	code, _, stderr := run(t, []string{"--bogus"})
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, stderr, "bogus")
}

func TestApplyWithoutTokenOrClusterIsUsageError(t *testing.T) {
	t.Parallel()

	code, _, stderr := run(t, []string{"apply", "-s", "memory://"})
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, stderr, "service.token or service.cluster is required")
}

func TestApplyMissingDocumentFails(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "absent.yaml")
	code, _, stderr := run(t, []string{"-t", "svc", "-s", "memory://", "-c", missing})
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stderr, "load document")
}

func TestSetDefaultsRequiresFile(t *testing.T) {
	t.Parallel()

	code, _, stderr := run(t, []string{"set-defaults", "-s", "memory://"})
	assert.Equal(t, ExitUsage, code)
	assert.Contains(t, stderr, "requires -c/--config")
}

func TestSetDefaultsStoresRules(t *testing.T) {
	t.Parallel()

	store := ownership.NewMemoryStore()
	path := writeFile(t, "defaults.yaml", `defaults:
  - condition:
      tags: [MONAD]
    values:
      parents:
        - name: cluster-alive
          tags: [infra]
`)
	code, stdout, stderr := run(t, []string{"set-defaults", "-c", path, "-s", "memory://"}, app.WithStore(store))
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, "stored 1 default rule(s)")

	_, err := store.Get(context.Background(), ownership.NewKeys("").TriggerDefaults())
	assert.NoError(t, err)
}

func TestValidateReportsTargets(t *testing.T) {
	t.Parallel()

	graphite := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("target") == "servers.*.mem" {
			_, _ = w.Write([]byte("not json"))
			return
		}
		_, _ = w.Write([]byte("[]"))
	}))
	t.Cleanup(graphite.Close)

	doc := writeFile(t, "alert.yaml", cliDocument)
	code, stdout, _ := run(t, []string{"validate", "-c", doc, "--render-url", graphite.URL})
	assert.Equal(t, ExitError, code)
	assert.Contains(t, stdout, `trigger "cpu" target 0: OK`)
	assert.Contains(t, stdout, `trigger "cpu" target 1: ERROR`)
}
