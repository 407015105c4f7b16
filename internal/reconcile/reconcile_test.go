package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alert-autoconf/internal/domain"
	"alert-autoconf/internal/logging"
	"alert-autoconf/internal/ownership"
)

type fakeBackend struct {
	mu       sync.Mutex
	triggers map[string]domain.Trigger
	subs     map[string]domain.SubscriptionRecord
	contacts []domain.Contact
	seq      int
	calls    map[string]int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		triggers: make(map[string]domain.Trigger),
		subs:     make(map[string]domain.SubscriptionRecord),
		calls:    make(map[string]int),
	}
}

func (f *fakeBackend) nextID(kind string) string {
	f.seq++
	return fmt.Sprintf("%s-%03d", kind, f.seq)
}

func (f *fakeBackend) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[call]
}

func (f *fakeBackend) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *fakeBackend) seedTrigger(t domain.Trigger) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	t = t.Clone()
	if t.ID == "" {
		t.ID = f.nextID("t")
	}
	f.triggers[t.ID] = t
	return t.ID
}

func (f *fakeBackend) seedContact(c domain.Contact) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contacts = append(f.contacts, c)
}

func (f *fakeBackend) trigger(id string) (domain.Trigger, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.triggers[id]
	return t, ok
}

func (f *fakeBackend) subscription(id string) (domain.SubscriptionRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[id]
	return s, ok
}

func (f *fakeBackend) FetchTrigger(_ context.Context, id string) (domain.Trigger, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["FetchTrigger"]++
	t, ok := f.triggers[id]
	return t.Clone(), ok, nil
}

func (f *fakeBackend) FetchAllTriggers(_ context.Context) ([]domain.Trigger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["FetchAllTriggers"]++
	out := make([]domain.Trigger, 0, len(f.triggers))
	for _, t := range f.triggers {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeBackend) FetchTriggerIDsByTags(_ context.Context, tags []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["FetchTriggerIDsByTags"]++
	var ids []string
	for id, t := range f.triggers {
		for _, tag := range t.Tags {
			if domain.ContainsTag(tags, tag) {
				ids = append(ids, id)
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeBackend) CreateTrigger(_ context.Context, t domain.Trigger) (domain.Trigger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CreateTrigger"]++
	t = t.Clone()
	t.ID = f.nextID("t")
	f.triggers[t.ID] = t
	return t.Clone(), nil
}

func (f *fakeBackend) UpdateTrigger(_ context.Context, id string, t domain.Trigger) (domain.Trigger, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["UpdateTrigger"]++
	t = t.Clone()
	t.ID = id
	f.triggers[id] = t
	return t.Clone(), nil
}

func (f *fakeBackend) DeleteTrigger(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["DeleteTrigger"]++
	_, ok := f.triggers[id]
	delete(f.triggers, id)
	return ok, nil
}

func (f *fakeBackend) FetchAllSubscriptions(_ context.Context) ([]domain.SubscriptionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["FetchAllSubscriptions"]++
	out := make([]domain.SubscriptionRecord, 0, len(f.subs))
	for _, s := range f.subs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeBackend) CreateSubscription(_ context.Context, rec domain.SubscriptionRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CreateSubscription"]++
	rec.ID = f.nextID("s")
	f.subs[rec.ID] = rec
	return rec.ID, nil
}

func (f *fakeBackend) DeleteSubscription(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["DeleteSubscription"]++
	_, ok := f.subs[id]
	delete(f.subs, id)
	return ok, nil
}

func (f *fakeBackend) FetchUserContacts(_ context.Context) ([]domain.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["FetchUserContacts"]++
	return append([]domain.Contact(nil), f.contacts...), nil
}

func (f *fakeBackend) CreateContact(_ context.Context, c domain.Contact) (domain.Contact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["CreateContact"]++
	c.ID = f.nextID("c")
	f.contacts = append(f.contacts, c)
	return c, nil
}

func float(v float64) *float64 { return &v }

func cpuTrigger(name string, tags ...string) domain.TriggerSpec {
	return domain.TriggerSpec{Trigger: domain.Trigger{
		Name:       name,
		Tags:       tags,
		Targets:    []string{"servers.*.cpu.load", "servers.*.cpu.count"},
		WarnValue:  float(0.8),
		ErrorValue: float(0.95),
		TTL:        domain.DefaultTTL,
		TTLState:   domain.DefaultTTLState,
		TimeEnd:    domain.DefaultWindowEnd,
	}}
}

func mailSubscription(value string, tags ...string) domain.Subscription {
	return domain.Subscription{
		Tags:     tags,
		Contacts: []domain.Contact{{Type: domain.ContactMail, Value: value}},
		TimeEnd:  domain.DefaultWindowEnd,
	}
}

func newTestEngine(backend Backend, store ownership.Store, token string) *Engine {
	return New(backend, store, Options{Token: token}, logging.Discard())
}

func members(t *testing.T, store ownership.Store, key string) []string {
	t.Helper()
	ids, err := store.Members(context.Background(), key)
	require.NoError(t, err)
	return ids
}

func TestApplyRejectsEmptyToken(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(newFakeBackend(), ownership.NewMemoryStore(), "")
	_, err := engine.Apply(context.Background(), domain.Document{})
	require.Error(t, err)
}

func TestApplyEmptyDocumentUntrackedTokenDoesNothing(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	engine := newTestEngine(backend, ownership.NewMemoryStore(), "svc")

	report, err := engine.Apply(context.Background(), domain.Document{Version: 1})
	require.NoError(t, err)
	assert.Equal(t, Report{}, report)
	assert.Zero(t, backend.totalCalls())
}

func TestApplyFirstRunCreatesAndTracksTrigger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFakeBackend()
	store := ownership.NewMemoryStore()
	engine := newTestEngine(backend, store, "svc")
	doc := domain.Document{Version: 1, Triggers: []domain.TriggerSpec{cpuTrigger("cpu", "svc", "ERROR")}}

	report, err := engine.Apply(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Triggers.Created)
	assert.Equal(t, 1, backend.count("CreateTrigger"))

	ids := members(t, store, ownership.NewKeys("").Triggers("svc"))
	require.Len(t, ids, 1)
	created, ok := backend.trigger(ids[0])
	require.True(t, ok)
	assert.Equal(t, "cpu", created.Name)

	report, err = engine.Apply(ctx, doc)
	require.NoError(t, err)
	assert.Zero(t, report.Triggers.Mutations())
	assert.Equal(t, 1, backend.count("CreateTrigger"))
}

func TestApplyParentChildIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFakeBackend()
	store := ownership.NewMemoryStore()
	engine := newTestEngine(backend, store, "svc")

	child := cpuTrigger("disk", "svc")
	child.ParentRefs = []domain.ParentRef{{Name: "host-alive", Tags: []string{"svc", "infra"}}}
	doc := domain.Document{
		Version: 1,
		Triggers: []domain.TriggerSpec{
			cpuTrigger("host-alive", "infra", "svc"),
			child,
		},
		Alerting: []domain.Subscription{mailSubscription("ops@example.com", "svc")},
	}

	report, err := engine.Apply(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Triggers.Created)
	assert.Equal(t, 1, report.Triggers.Updated, "linked pass sets parents on the child")
	assert.Equal(t, 1, report.Subscriptions.Created)

	var parentID, childID string
	for _, id := range members(t, store, ownership.NewKeys("").Triggers("svc")) {
		tr, ok := backend.trigger(id)
		require.True(t, ok)
		if tr.Name == "host-alive" {
			parentID = id
		} else {
			childID = id
		}
	}
	require.NotEmpty(t, parentID)
	stored, _ := backend.trigger(childID)
	assert.Equal(t, []string{parentID}, stored.Parents)

	report, err = engine.Apply(ctx, doc)
	require.NoError(t, err)
	assert.Zero(t, report.Triggers.Mutations())
	assert.Zero(t, report.Subscriptions.Mutations())
	assert.Equal(t, 1, backend.count("UpdateTrigger"))
	assert.Equal(t, 1, backend.count("CreateSubscription"))
}

func TestApplyTagOrderDoesNotMatterTargetOrderDoes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFakeBackend()
	store := ownership.NewMemoryStore()
	engine := newTestEngine(backend, store, "svc")

	_, err := engine.Apply(ctx, domain.Document{Version: 1, Triggers: []domain.TriggerSpec{cpuTrigger("cpu", "a", "b")}})
	require.NoError(t, err)

	report, err := engine.Apply(ctx, domain.Document{Version: 1, Triggers: []domain.TriggerSpec{cpuTrigger("cpu", "b", "a")}})
	require.NoError(t, err)
	assert.Zero(t, report.Triggers.Mutations())

	reordered := cpuTrigger("cpu", "a", "b")
	reordered.Targets = []string{"servers.*.cpu.count", "servers.*.cpu.load"}
	report, err = engine.Apply(ctx, domain.Document{Version: 1, Triggers: []domain.TriggerSpec{reordered}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Triggers.Deleted)
	assert.Equal(t, 1, report.Triggers.Created)
	assert.Len(t, members(t, store, ownership.NewKeys("").Triggers("svc")), 1)
}

func TestApplyUpdatesChangedThresholdInPlace(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFakeBackend()
	store := ownership.NewMemoryStore()
	engine := newTestEngine(backend, store, "svc")

	spec := cpuTrigger("cpu", "svc")
	_, err := engine.Apply(ctx, domain.Document{Version: 1, Triggers: []domain.TriggerSpec{spec}})
	require.NoError(t, err)
	ids := members(t, store, ownership.NewKeys("").Triggers("svc"))
	require.Len(t, ids, 1)

	spec.ErrorValue = float(0.99)
	report, err := engine.Apply(ctx, domain.Document{Version: 1, Triggers: []domain.TriggerSpec{spec}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Triggers.Updated)
	assert.Zero(t, report.Triggers.Created)
	assert.Equal(t, ids, members(t, store, ownership.NewKeys("").Triggers("svc")))
	updated, _ := backend.trigger(ids[0])
	assert.InDelta(t, 0.99, *updated.ErrorValue, 1e-9)
}

func TestApplyMalformedDashboardQueryIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFakeBackend()
	engine := newTestEngine(backend, ownership.NewMemoryStore(), "svc")

	spec := cpuTrigger("cpu", "svc")
	spec.Dashboard = "https://grafana.example.com/d/abc?panelId=4&var-host=50%zz"
	doc := domain.Document{Version: 1, Triggers: []domain.TriggerSpec{spec}}

	report, err := engine.Apply(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Triggers.Created)

	for run := 0; run < 2; run++ {
		report, err = engine.Apply(ctx, doc)
		require.NoError(t, err)
		assert.Zero(t, report.Triggers.Mutations())
	}
	assert.Zero(t, backend.count("UpdateTrigger"))
}

func TestApplyComparisonErrorUpdatesInsteadOfFailing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFakeBackend()
	store := ownership.NewMemoryStore()
	key := ownership.NewKeys("").Triggers("svc")

	spec := cpuTrigger("cpu", "svc")
	spec.Dashboard = "https://grafana.example.com/d/abc?panelId=4"
	broken := spec.Trigger.Clone()
	broken.Dashboard = "http://[::1/d/abc?panelId=4"
	id := backend.seedTrigger(broken)
	require.NoError(t, store.Add(ctx, key, id))

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	engine := New(backend, store, Options{Token: "svc"}, logger)
	doc := domain.Document{Version: 1, Triggers: []domain.TriggerSpec{spec}}

	report, err := engine.Apply(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Triggers.Updated)
	assert.Zero(t, report.Triggers.Created)
	assert.Zero(t, report.Triggers.Deleted)
	assert.Equal(t, 1, backend.count("UpdateTrigger"))
	assert.Contains(t, logs.String(), "trigger comparison failed, treating as changed")
	assert.Contains(t, logs.String(), `"id":"`+id+`"`)

	stored, ok := backend.trigger(id)
	require.True(t, ok)
	assert.Equal(t, spec.Dashboard, stored.Dashboard)
	assert.Equal(t, []string{id}, members(t, store, key))

	report, err = engine.Apply(ctx, doc)
	require.NoError(t, err)
	assert.Zero(t, report.Triggers.Mutations())
}

func TestApplyDeletesTriggersRemovedFromDocument(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFakeBackend()
	store := ownership.NewMemoryStore()
	engine := newTestEngine(backend, store, "svc")

	_, err := engine.Apply(ctx, domain.Document{Version: 1, Triggers: []domain.TriggerSpec{
		cpuTrigger("cpu", "svc"), cpuTrigger("mem", "svc"),
	}})
	require.NoError(t, err)

	report, err := engine.Apply(ctx, domain.Document{Version: 1, Triggers: []domain.TriggerSpec{cpuTrigger("cpu", "svc")}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Triggers.Deleted)

	ids := members(t, store, ownership.NewKeys("").Triggers("svc"))
	require.Len(t, ids, 1)
	kept, _ := backend.trigger(ids[0])
	assert.Equal(t, "cpu", kept.Name)
}

func TestApplyHealsStaleTrackedTrigger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFakeBackend()
	store := ownership.NewMemoryStore()
	key := ownership.NewKeys("").Triggers("svc")
	require.NoError(t, store.Add(ctx, key, "dead-1"))

	engine := newTestEngine(backend, store, "svc")
	report, err := engine.Apply(ctx, domain.Document{Version: 1, Triggers: []domain.TriggerSpec{cpuTrigger("cpu", "svc")}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Triggers.Healed)
	assert.Equal(t, 1, report.Triggers.Created)

	ids := members(t, store, key)
	require.Len(t, ids, 1)
	assert.NotEqual(t, "dead-1", ids[0])
}

func TestApplyAmbiguousParentFailsBeforeUpdatingChild(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFakeBackend()
	backend.seedTrigger(cpuTrigger("host-alive", "infra").Trigger)
	backend.seedTrigger(cpuTrigger("host-alive", "infra").Trigger)

	child := cpuTrigger("disk", "svc")
	child.ParentRefs = []domain.ParentRef{{Name: "host-alive", Tags: []string{"infra"}}}
	engine := newTestEngine(backend, ownership.NewMemoryStore(), "svc")

	_, err := engine.Apply(ctx, domain.Document{Version: 1, Triggers: []domain.TriggerSpec{child}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAmbiguousParent))
	assert.Contains(t, err.Error(), "found 2 > 1 triggers with name=host-alive")
	assert.Zero(t, backend.count("UpdateTrigger"))
	assert.Zero(t, backend.count("FetchAllSubscriptions"), "subscriptions are not touched after a fatal trigger error")
}

func TestApplyMissingParentFails(t *testing.T) {
	t.Parallel()

	child := cpuTrigger("disk", "svc")
	child.ParentRefs = []domain.ParentRef{{Name: "nowhere", Tags: []string{"infra"}}}
	engine := newTestEngine(newFakeBackend(), ownership.NewMemoryStore(), "svc")

	_, err := engine.Apply(context.Background(), domain.Document{Version: 1, Triggers: []domain.TriggerSpec{child}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrParentNotFound))

	var resolution *ParentResolutionError
	require.True(t, errors.As(err, &resolution))
	assert.Equal(t, "disk", resolution.Child)
}

func TestApplyDiscoversUntrackedTriggersByPrefixedTags(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFakeBackend()
	store := ownership.NewMemoryStore()

	existing := cpuTrigger("team_cpu", "team_svc", "ERROR")
	existingID := backend.seedTrigger(existing.Trigger)
	orphanID := backend.seedTrigger(cpuTrigger("team_old", "team_svc").Trigger)
	foreignID := backend.seedTrigger(cpuTrigger("other_cpu", "other_svc").Trigger)

	engine := newTestEngine(backend, store, "team")
	report, err := engine.Apply(ctx, domain.Document{Version: 1.1, Prefix: "team", Triggers: []domain.TriggerSpec{existing}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Triggers.Deleted)
	assert.Zero(t, report.Triggers.Created)

	assert.Equal(t, []string{existingID}, members(t, store, ownership.NewKeys("").Triggers("team")))
	_, ok := backend.trigger(orphanID)
	assert.False(t, ok)
	_, ok = backend.trigger(foreignID)
	assert.True(t, ok)
}

func TestApplyWithoutPrefixDoesNotDiscover(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	backend.seedTrigger(cpuTrigger("old", "svc").Trigger)
	engine := newTestEngine(backend, ownership.NewMemoryStore(), "svc")

	report, err := engine.Apply(context.Background(), domain.Document{Version: 1, Triggers: []domain.TriggerSpec{cpuTrigger("cpu", "svc")}})
	require.NoError(t, err)
	assert.Zero(t, report.Triggers.Deleted)
	assert.Zero(t, backend.count("FetchTriggerIDsByTags"))
}

func TestApplyProtectsSubscriptionsOfOtherTokens(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFakeBackend()
	store := ownership.NewMemoryStore()
	keys := ownership.NewKeys("")

	_, err := newTestEngine(backend, store, "A").Apply(ctx, domain.Document{
		Version:  1,
		Alerting: []domain.Subscription{mailSubscription("a@example.com", "shared")},
	})
	require.NoError(t, err)
	ownedByA := members(t, store, keys.Subscriptions("A"))
	require.Len(t, ownedByA, 1)

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	engineB := New(backend, store, Options{Token: "B"}, logger)
	report, err := engineB.Apply(ctx, domain.Document{
		Version:  1,
		Alerting: []domain.Subscription{mailSubscription("b@example.com", "shared")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Subscriptions.Protected)
	assert.Equal(t, 1, report.Subscriptions.Created)
	assert.Zero(t, report.Subscriptions.Deleted)

	_, ok := backend.subscription(ownedByA[0])
	assert.True(t, ok)
	assert.Equal(t, ownedByA, members(t, store, keys.Subscriptions("A")))
	assert.NotContains(t, members(t, store, keys.Subscriptions("B")), ownedByA[0])
	assert.Contains(t, logs.String(), "subscription skipped, protected")
	assert.Contains(t, logs.String(), `"protected_by":"A"`)
}

func TestApplyAdoptsUnchangedUntrackedSubscription(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFakeBackend()
	store := ownership.NewMemoryStore()
	backend.seedContact(domain.Contact{ID: "c-ops", Type: domain.ContactMail, Value: "ops@example.com"})

	sub := mailSubscription("ops@example.com", "svc")
	backend.subs["s-legacy"] = domain.SubscriptionRecord{
		ID:       "s-legacy",
		Enabled:  true,
		Tags:     []string{"svc"},
		Contacts: []string{"c-ops"},
		Sched:    sub.Schedule(),
	}

	report, err := newTestEngine(backend, store, "svc").Apply(ctx, domain.Document{Version: 1, Alerting: []domain.Subscription{sub}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Subscriptions.Unchanged)
	assert.Zero(t, report.Subscriptions.Mutations())
	assert.Equal(t, []string{"s-legacy"}, members(t, store, ownership.NewKeys("").Subscriptions("svc")))
}

func TestApplyReusesAndCreatesContacts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFakeBackend()
	backend.seedContact(domain.Contact{ID: "c-ops", Type: domain.ContactMail, Value: "ops@example.com"})
	store := ownership.NewMemoryStore()

	slack := domain.Contact{Type: domain.ContactSlack, Value: "#alerts"}
	sub := domain.Subscription{
		Tags:        []string{"svc"},
		Contacts:    []domain.Contact{{Type: domain.ContactMail, Value: "ops@example.com"}, slack},
		Escalations: []domain.Escalation{{Contacts: []domain.Contact{slack}, OffsetInMinutes: 30}},
		TimeEnd:     domain.DefaultWindowEnd,
	}

	report, err := newTestEngine(backend, store, "svc").Apply(ctx, domain.Document{Version: 1, Alerting: []domain.Subscription{sub}})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Subscriptions.Created)
	assert.Equal(t, 1, backend.count("CreateContact"), "contact created for escalation is reused for main list")

	ids := members(t, store, ownership.NewKeys("").Subscriptions("svc"))
	require.Len(t, ids, 1)
	rec, ok := backend.subscription(ids[0])
	require.True(t, ok)
	require.Len(t, rec.Contacts, 2)
	assert.Equal(t, "c-ops", rec.Contacts[0])
	require.Len(t, rec.Escalations, 1)
	assert.Equal(t, []string{rec.Contacts[1]}, rec.Escalations[0].Contacts)

	report, err = newTestEngine(backend, store, "svc").Apply(ctx, domain.Document{Version: 1, Alerting: []domain.Subscription{sub}})
	require.NoError(t, err)
	assert.Zero(t, report.Subscriptions.Mutations())
	assert.Equal(t, 1, backend.count("CreateContact"))
}

func TestApplySkipsSubscriptionsWithoutUsableContacts(t *testing.T) {
	t.Parallel()

	backend := newFakeBackend()
	placeholder := mailSubscription("{owner_email}", "svc")
	empty := mailSubscription("", "db")
	none := domain.Subscription{Tags: []string{"cache"}}

	report, err := newTestEngine(backend, ownership.NewMemoryStore(), "svc").Apply(context.Background(), domain.Document{
		Version:  1,
		Alerting: []domain.Subscription{placeholder, empty, none},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Subscriptions.Skipped)
	assert.Zero(t, backend.count("CreateSubscription"))
	assert.Zero(t, backend.count("CreateContact"))
}

func TestApplyRemovesSubscriptionDroppedFromDocument(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	backend := newFakeBackend()
	store := ownership.NewMemoryStore()
	engine := newTestEngine(backend, store, "svc")

	_, err := engine.Apply(ctx, domain.Document{Version: 1, Alerting: []domain.Subscription{mailSubscription("ops@example.com", "svc")}})
	require.NoError(t, err)
	ids := members(t, store, ownership.NewKeys("").Subscriptions("svc"))
	require.Len(t, ids, 1)

	report, err := engine.Apply(ctx, domain.Document{Version: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Subscriptions.Deleted)
	_, ok := backend.subscription(ids[0])
	assert.False(t, ok)
	assert.Empty(t, members(t, store, ownership.NewKeys("").Subscriptions("svc")))
}

func TestCompareTriggers(t *testing.T) {
	t.Parallel()

	base := cpuTrigger("cpu", "a", "b").Trigger
	base.Dashboard = "https://grafana.example.com/d/abc?orgId=1&panelId=4"
	base.Parents = []string{"p1", "p2"}
	base.Saturation = []domain.Saturation{{Type: "take-worst"}, {Type: "check-disk", Fallback: "ERROR"}}

	tests := []struct {
		name   string
		mutate func(*domain.Trigger)
		phase  Phase
		field  string
	}{
		{name: "identical", mutate: func(*domain.Trigger) {}, phase: PhaseLinked},
		{name: "tags reordered", mutate: func(tr *domain.Trigger) { tr.Tags = []string{"b", "a"} }, phase: PhaseLinked},
		{name: "targets reordered", mutate: func(tr *domain.Trigger) {
			tr.Targets = []string{tr.Targets[1], tr.Targets[0]}
		}, phase: PhaseLinked, field: "targets"},
		{name: "dashboard other host same panel", mutate: func(tr *domain.Trigger) {
			tr.Dashboard = "http://other/d/xyz?panelId=4"
		}, phase: PhaseLinked},
		{name: "dashboard other panel", mutate: func(tr *domain.Trigger) {
			tr.Dashboard = "https://grafana.example.com/d/abc?panelId=5"
		}, phase: PhaseLinked, field: "dashboard"},
		{name: "dashboard malformed query same panel", mutate: func(tr *domain.Trigger) {
			tr.Dashboard = "https://grafana.example.com/d/abc?panelId=4&var-host=50%zz"
		}, phase: PhaseLinked},
		{name: "dashboard malformed query other panel", mutate: func(tr *domain.Trigger) {
			tr.Dashboard = "https://grafana.example.com/d/abc?panelId=5;orgId=1"
		}, phase: PhaseLinked, field: "dashboard"},
		{name: "parents reordered", mutate: func(tr *domain.Trigger) { tr.Parents = []string{"p2", "p1"} }, phase: PhaseLinked},
		{name: "parents differ linked", mutate: func(tr *domain.Trigger) { tr.Parents = nil }, phase: PhaseLinked, field: "parents"},
		{name: "parents differ detached", mutate: func(tr *domain.Trigger) { tr.Parents = nil }, phase: PhaseDetached},
		{name: "saturation reordered", mutate: func(tr *domain.Trigger) {
			tr.Saturation = []domain.Saturation{tr.Saturation[1], tr.Saturation[0]}
		}, phase: PhaseLinked},
		{name: "warn value", mutate: func(tr *domain.Trigger) { tr.WarnValue = nil }, phase: PhaseLinked, field: "warn_value"},
		{name: "ttl state", mutate: func(tr *domain.Trigger) { tr.TTLState = domain.TTLStateOK }, phase: PhaseLinked, field: "ttl_state"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			observed := base.Clone()
			tt.mutate(&observed)
			diff, err := compareTriggers(base, observed, tt.phase)
			require.NoError(t, err)
			if tt.field == "" {
				assert.Nil(t, diff)
				return
			}
			require.NotNil(t, diff)
			assert.Equal(t, tt.field, diff.Field)
		})
	}
}

func TestSubscriptionNotChanged(t *testing.T) {
	t.Parallel()

	sched := domain.NewSchedule(nil, domain.TimeOfDay{}, domain.DefaultWindowEnd)
	base := domain.SubscriptionRecord{
		Tags:     []string{"a", "b"},
		Contacts: []string{"c1", "c2"},
		Escalations: []domain.EscalationRecord{
			{Contacts: []string{"c3", "c4"}, OffsetInMinutes: 10},
			{Contacts: []string{"c5"}, OffsetInMinutes: 30},
		},
		Sched: sched,
	}

	reordered := domain.SubscriptionRecord{
		Tags:     []string{"b", "a"},
		Contacts: []string{"c2", "c1"},
		Escalations: []domain.EscalationRecord{
			{Contacts: []string{"c5"}, OffsetInMinutes: 30},
			{Contacts: []string{"c4", "c3"}, OffsetInMinutes: 10},
		},
		Sched: sched,
	}
	assert.True(t, subscriptionNotChanged(base, reordered))

	otherOffset := reordered
	otherOffset.Escalations = []domain.EscalationRecord{
		{Contacts: []string{"c5"}, OffsetInMinutes: 31},
		{Contacts: []string{"c4", "c3"}, OffsetInMinutes: 10},
	}
	assert.False(t, subscriptionNotChanged(base, otherOffset))

	otherWindow := reordered
	otherWindow.Sched = domain.NewSchedule([]domain.Weekday{domain.Sunday}, domain.TimeOfDay{}, domain.DefaultWindowEnd)
	assert.False(t, subscriptionNotChanged(base, otherWindow))
}
