package ownership

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alert-autoconf/internal/config"
	"alert-autoconf/test/testutil"
)

// runStoreContract checks behavior every backend must share.
func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	keys := NewKeys("contract")

	exists, err := store.Exists(ctx, keys.Triggers("team-a"))
	require.NoError(t, err)
	assert.False(t, exists)

	members, err := store.Members(ctx, keys.Triggers("team-a"))
	require.NoError(t, err)
	assert.Empty(t, members)

	require.NoError(t, store.Add(ctx, keys.Triggers("team-a"), "t2"))
	require.NoError(t, store.Add(ctx, keys.Triggers("team-a"), "t1"))
	require.NoError(t, store.Add(ctx, keys.Triggers("team-a"), "t1"))

	members, err = store.Members(ctx, keys.Triggers("team-a"))
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, members)

	require.NoError(t, store.Add(ctx, keys.Subscriptions("team-a"), "s1"))
	require.NoError(t, store.Add(ctx, keys.Subscriptions("team-b"), "s2"))
	require.NoError(t, store.Add(ctx, keys.Subscriptions("kubernetes:prod*1"), "s3"))

	subKeys, err := store.KeysWithPrefix(ctx, keys.SubscriptionPrefix())
	require.NoError(t, err)
	assert.Equal(t, []string{
		keys.Subscriptions("kubernetes:prod*1"),
		keys.Subscriptions("team-a"),
		keys.Subscriptions("team-b"),
	}, subKeys)
	assert.Equal(t, "team-b", keys.TokenOf(subKeys[2]))

	unicode := NewKeys("мониторинг")
	require.NoError(t, store.Add(ctx, unicode.Subscriptions("équipe"), "s4"))
	unicodeKeys, err := store.KeysWithPrefix(ctx, unicode.SubscriptionPrefix())
	require.NoError(t, err)
	assert.Equal(t, []string{unicode.Subscriptions("équipe")}, unicodeKeys)
	assert.Equal(t, "équipe", unicode.TokenOf(unicodeKeys[0]))

	require.NoError(t, store.Remove(ctx, keys.Triggers("team-a"), "t1"))
	require.NoError(t, store.Remove(ctx, keys.Triggers("team-a"), "t2"))
	require.NoError(t, store.Remove(ctx, keys.Triggers("team-a"), "missing"))
	exists, err = store.Exists(ctx, keys.Triggers("team-a"))
	require.NoError(t, err)
	assert.False(t, exists, "removing the last member drops the key")

	_, err = store.Get(ctx, keys.TriggerDefaults())
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, store.Put(ctx, keys.TriggerDefaults(), []byte("defaults: []\n")))
	require.NoError(t, store.Put(ctx, keys.TriggerDefaults(), []byte("defaults: [x]\n")))
	body, err := store.Get(ctx, keys.TriggerDefaults())
	require.NoError(t, err)
	assert.Equal(t, "defaults: [x]\n", string(body))

	blobAsSet, err := store.KeysWithPrefix(ctx, "contract:defaults")
	require.NoError(t, err)
	assert.Empty(t, blobAsSet)
}

func TestMemoryStoreContract(t *testing.T) {
	t.Parallel()
	runStoreContract(t, NewMemoryStore())
}

func TestSQLiteStoreContract(t *testing.T) {
	t.Parallel()
	store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "state", "ownership.db"))
	require.NoError(t, err)
	defer store.Close()
	runStoreContract(t, store)
}

func TestNATSStoreContractIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skip integration test in short mode")
	}
	url, stopNATS := testutil.StartLocalNATSServer(t)
	defer stopNATS()

	store, err := NewNATSStore(NATSSettings{URL: []string{url}, Bucket: "ownership_test", AllowCreateBucket: true})
	require.NoError(t, err)
	defer store.Close()
	runStoreContract(t, store)
}

func TestRedisStoreContractIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skip integration test in short mode")
	}
	url, stopRedis := testutil.StartLocalRedisServer(t)
	defer stopRedis()

	store, err := NewRedisStore(context.Background(), url)
	require.NoError(t, err)
	defer store.Close()
	runStoreContract(t, store)
}

func TestOpenSelectsBackend(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store, err := Open(ctx, config.StorageConfig{URL: "memory://"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	store, err = Open(ctx, config.StorageConfig{URL: "sqlite://" + filepath.Join(t.TempDir(), "a.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, store.Close())

	_, err = Open(ctx, config.StorageConfig{URL: "ftp://x"})
	assert.Error(t, err)
}

func TestNATSKeyEncodingRoundTrip(t *testing.T) {
	t.Parallel()
	raw := encodeNATSKey(natsSetKeyPrefix, "autoconf:token-alerting:kubernetes:prod")
	key, ok := decodeNATSKey(raw)
	require.True(t, ok)
	assert.Equal(t, "autoconf:token-alerting:kubernetes:prod", key)

	_, ok = decodeNATSKey(encodeNATSKey(natsBlobKeyPrefix, "x"))
	assert.False(t, ok)
}

func TestEscapeGlob(t *testing.T) {
	t.Parallel()
	assert.Equal(t, `a\*b\?\[c\]`, escapeGlob("a*b?[c]"))
}
