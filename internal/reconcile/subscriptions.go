package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"alert-autoconf/internal/domain"
)

// ReconcileSubscriptions converges subscriptions owned by the token.
// Subscriptions tracked by other tokens are never deleted.
// Params: context and desired subscriptions.
// Returns: counts and first fatal error.
func (e *Engine) ReconcileSubscriptions(ctx context.Context, desired []domain.Subscription) (Counts, error) {
	var counts Counts
	logger := e.logger.With("kind", KindSubscription)
	key := e.keys.Subscriptions(e.opts.Token)

	tracked, err := e.store.Exists(ctx, key)
	if err != nil {
		return counts, fmt.Errorf("check tracked subscriptions: %w", err)
	}
	if len(desired) == 0 && !tracked {
		logger.Info("no subscriptions desired or tracked, nothing to do")
		return counts, nil
	}

	observed, discovered, err := e.observeSubscriptions(ctx, key, tracked, desired, &counts)
	if err != nil {
		return counts, err
	}

	protected, err := e.protectedSubscriptions(ctx, key)
	if err != nil {
		return counts, err
	}

	known, err := e.backend.FetchUserContacts(ctx)
	if err != nil {
		return counts, err
	}
	resolver := &contactResolver{backend: e.backend, known: known, logger: logger}

	var toCreate []domain.SubscriptionRecord
	for _, sub := range desired {
		if len(sub.Contacts) == 0 {
			counts.Skipped++
			logger.Debug("subscription skipped, no contacts", "tags", sub.Tags)
			continue
		}
		if strings.Contains(sub.Contacts[0].Value, "{") {
			counts.Skipped++
			logger.Debug("subscription skipped, unresolved contact placeholder", "tags", sub.Tags, "value", sub.Contacts[0].Value)
			continue
		}

		escalations := make([]domain.EscalationRecord, 0, len(sub.Escalations))
		for _, esc := range sub.Escalations {
			ids, err := resolver.resolve(ctx, esc.Contacts)
			if err != nil {
				return counts, err
			}
			escalations = append(escalations, domain.EscalationRecord{Contacts: ids, OffsetInMinutes: esc.OffsetInMinutes})
		}
		contactIDs, err := resolver.resolve(ctx, sub.Contacts)
		if err != nil {
			return counts, err
		}
		if len(contactIDs) == 0 {
			counts.Skipped++
			logger.Debug("subscription skipped, all contacts empty", "tags", sub.Tags)
			continue
		}

		want := domain.SubscriptionRecord{
			Tags:        append([]string(nil), sub.Tags...),
			Contacts:    contactIDs,
			Escalations: escalations,
			Sched:       sub.Schedule(),
		}
		idx := -1
		for i, have := range observed {
			if subscriptionNotChanged(want, have) {
				idx = i
				break
			}
		}
		if idx < 0 {
			toCreate = append(toCreate, want)
			continue
		}
		match := observed[idx]
		observed = append(observed[:idx], observed[idx+1:]...)
		counts.Unchanged++
		logger.Debug("subscription unchanged", "id", match.ID, "tags", match.Tags, "contacts", match.Contacts)
		if _, isProtected := protected[match.ID]; discovered && !isProtected {
			if err := e.store.Add(ctx, key, match.ID); err != nil {
				return counts, fmt.Errorf("track subscription %s: %w", match.ID, err)
			}
		}
	}

	for _, have := range observed {
		if owner, ok := protected[have.ID]; ok {
			counts.Protected++
			logger.Info("subscription skipped, protected", "id", have.ID, "tags", have.Tags, "protected_by", owner)
			continue
		}
		deleted, err := e.backend.DeleteSubscription(ctx, have.ID)
		if err != nil {
			return counts, err
		}
		if err := e.store.Remove(ctx, key, have.ID); err != nil {
			return counts, fmt.Errorf("untrack subscription %s: %w", have.ID, err)
		}
		if deleted {
			counts.Deleted++
			logger.Info("subscription deleted", "id", have.ID, "tags", have.Tags, "contacts", have.Contacts)
		} else {
			logger.Info("subscription already absent, untracked", "id", have.ID)
		}
	}

	for _, want := range toCreate {
		id, err := e.backend.CreateSubscription(ctx, want)
		if err != nil {
			return counts, err
		}
		if err := e.store.Add(ctx, key, id); err != nil {
			return counts, fmt.Errorf("track subscription %s: %w", id, err)
		}
		counts.Created++
		logger.Info("subscription created", "id", id, "tags", want.Tags, "contacts", want.Contacts)
	}
	return counts, nil
}

// observeSubscriptions loads subscriptions this token owns.
// Tracked ids are looked up among all subscriptions and stale ids are dropped.
// Untracked tokens (or tokens whose tracked ids were all stale) take
// subscriptions sharing a desired tag outside the exclusion list.
// Returns: observed subscriptions and whether they came from discovery.
func (e *Engine) observeSubscriptions(ctx context.Context, key string, tracked bool, desired []domain.Subscription, counts *Counts) ([]domain.SubscriptionRecord, bool, error) {
	all, err := e.backend.FetchAllSubscriptions(ctx)
	if err != nil {
		return nil, false, err
	}

	if tracked {
		byID := make(map[string]domain.SubscriptionRecord, len(all))
		for _, rec := range all {
			byID[rec.ID] = rec
		}
		ids, err := e.store.Members(ctx, key)
		if err != nil {
			return nil, false, fmt.Errorf("read tracked subscriptions: %w", err)
		}
		observed := make([]domain.SubscriptionRecord, 0, len(ids))
		for _, id := range ids {
			rec, ok := byID[id]
			if !ok {
				e.logger.Info("tracked subscription absent in backend, untracking", "kind", KindSubscription, "id", id)
				if err := e.store.Remove(ctx, key, id); err != nil {
					return nil, false, fmt.Errorf("untrack subscription %s: %w", id, err)
				}
				counts.Healed++
				continue
			}
			observed = append(observed, rec)
		}
		if len(observed) > 0 {
			return observed, false, nil
		}
	}

	universe := make(map[string]struct{})
	for _, sub := range desired {
		for _, tag := range sub.Tags {
			universe[tag] = struct{}{}
		}
	}
	observed := make([]domain.SubscriptionRecord, 0)
	for _, rec := range all {
		for _, tag := range rec.Tags {
			if _, ok := universe[tag]; ok && !domain.ContainsTag(e.opts.SubscriptionExcludedTags, tag) {
				observed = append(observed, rec)
				break
			}
		}
	}
	return observed, true, nil
}

// protectedSubscriptions unions subscription ids tracked by every other token.
// Params: context and this token's key (excluded from the scan).
// Returns: subscription id to owning token.
func (e *Engine) protectedSubscriptions(ctx context.Context, ownKey string) (map[string]string, error) {
	keys, err := e.store.KeysWithPrefix(ctx, e.keys.SubscriptionPrefix())
	if err != nil {
		return nil, fmt.Errorf("list subscription owners: %w", err)
	}
	protected := make(map[string]string)
	for _, key := range keys {
		if key == ownKey {
			continue
		}
		ids, err := e.store.Members(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read subscriptions of %s: %w", key, err)
		}
		for _, id := range ids {
			protected[id] = e.keys.TokenOf(key)
		}
	}
	return protected, nil
}

// contactResolver maps desired contacts to backend contact ids.
type contactResolver struct {
	backend SubscriptionBackend
	known   []domain.Contact
	logger  *slog.Logger
}

// resolve reuses interchangeable known contacts and creates the rest.
// Contacts with empty value are skipped.
// Params: context and desired contacts.
// Returns: contact ids in declaration order.
func (r *contactResolver) resolve(ctx context.Context, contacts []domain.Contact) ([]string, error) {
	ids := make([]string, 0, len(contacts))
	for _, contact := range contacts {
		if contact.Value == "" {
			continue
		}
		id := ""
		for _, existing := range r.known {
			if existing.Interchangeable(contact) {
				id = existing.ID
				break
			}
		}
		if id == "" {
			created, err := r.backend.CreateContact(ctx, contact)
			if err != nil {
				return nil, err
			}
			r.known = append(r.known, created)
			r.logger.Info("contact created", "id", created.ID, "type", string(created.Type), "value", created.Value)
			id = created.ID
		}
		ids = append(ids, id)
	}
	return ids, nil
}
