package moira

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"alert-autoconf/internal/domain"
)

// FetchTrigger loads one trigger.
// Params: context and trigger id.
// Returns: trigger, false when backend answers 404, or request error.
func (c *Client) FetchTrigger(ctx context.Context, id string) (domain.Trigger, bool, error) {
	var answer wireTrigger
	err := c.do(ctx, http.MethodGet, "/trigger/"+url.PathEscape(id), nil, nil, &answer)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return domain.Trigger{}, false, nil
		}
		return domain.Trigger{}, false, fmt.Errorf("fetch trigger %s: %w", id, err)
	}
	trigger := triggerFromWire(answer)
	if trigger.ID == "" {
		trigger.ID = id
	}
	return trigger, true, nil
}

// FetchAllTriggers loads every trigger visible to the user.
func (c *Client) FetchAllTriggers(ctx context.Context) ([]domain.Trigger, error) {
	var answer wireTriggerList
	if err := c.do(ctx, http.MethodGet, "/trigger", nil, nil, &answer); err != nil {
		return nil, fmt.Errorf("fetch triggers: %w", err)
	}
	out := make([]domain.Trigger, 0, len(answer.List))
	for _, w := range answer.List {
		out = append(out, triggerFromWire(w))
	}
	return out, nil
}

// FetchTriggerIDsByTags lists ids of triggers carrying any of tags.
// Params: context and tags.
// Returns: unique ids in tag-stats order.
func (c *Client) FetchTriggerIDsByTags(ctx context.Context, tags []string) ([]string, error) {
	var answer wireTagStats
	if err := c.do(ctx, http.MethodGet, "/tag/stats", nil, nil, &answer); err != nil {
		return nil, fmt.Errorf("fetch tag stats: %w", err)
	}
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	for _, stat := range answer.List {
		if !domain.ContainsTag(tags, stat.Name) {
			continue
		}
		for _, id := range stat.Triggers {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// CreateTrigger saves new trigger; backend assigns id.
// Params: context and trigger (its ID is ignored).
// Returns: trigger with assigned id.
func (c *Client) CreateTrigger(ctx context.Context, trigger domain.Trigger) (domain.Trigger, error) {
	var answer wireSaveAnswer
	if err := c.create(ctx, "/trigger", triggerToWire(trigger), &answer); err != nil {
		return domain.Trigger{}, fmt.Errorf("create trigger %q: %w", trigger.Name, err)
	}
	if answer.ID == "" {
		return domain.Trigger{}, fmt.Errorf("create trigger %q: backend returned empty id", trigger.Name)
	}
	created := trigger.Clone()
	created.ID = answer.ID
	return created, nil
}

// UpdateTrigger replaces fields of existing trigger.
// Params: context, trigger id, and desired fields.
// Returns: trigger carrying id.
func (c *Client) UpdateTrigger(ctx context.Context, id string, trigger domain.Trigger) (domain.Trigger, error) {
	var answer wireSaveAnswer
	if err := c.do(ctx, http.MethodPut, "/trigger/"+url.PathEscape(id), nil, triggerToWire(trigger), &answer); err != nil {
		return domain.Trigger{}, fmt.Errorf("update trigger %s: %w", id, err)
	}
	updated := trigger.Clone()
	updated.ID = id
	return updated, nil
}

// DeleteTrigger removes trigger.
// Params: context and trigger id.
// Returns: false when the trigger was already gone.
func (c *Client) DeleteTrigger(ctx context.Context, id string) (bool, error) {
	return c.delete(ctx, "/trigger/"+url.PathEscape(id))
}

// FetchAllSubscriptions loads subscriptions of the current user.
func (c *Client) FetchAllSubscriptions(ctx context.Context) ([]domain.SubscriptionRecord, error) {
	var answer wireSubscriptionList
	if err := c.do(ctx, http.MethodGet, "/subscription", nil, nil, &answer); err != nil {
		return nil, fmt.Errorf("fetch subscriptions: %w", err)
	}
	out := make([]domain.SubscriptionRecord, 0, len(answer.List))
	for _, w := range answer.List {
		out = append(out, subscriptionFromWire(w))
	}
	return out, nil
}

// CreateSubscription saves new subscription.
// Params: context and record with resolved contact ids.
// Returns: backend-assigned id.
func (c *Client) CreateSubscription(ctx context.Context, rec domain.SubscriptionRecord) (string, error) {
	var answer wireSubscription
	if err := c.create(ctx, "/subscription", subscriptionToWire(rec), &answer); err != nil {
		return "", fmt.Errorf("create subscription %v: %w", rec.Tags, err)
	}
	if answer.ID == "" {
		return "", fmt.Errorf("create subscription %v: backend returned empty id", rec.Tags)
	}
	return answer.ID, nil
}

// DeleteSubscription removes subscription.
// Params: context and subscription id.
// Returns: false when the subscription was already gone.
func (c *Client) DeleteSubscription(ctx context.Context, id string) (bool, error) {
	return c.delete(ctx, "/subscription/"+url.PathEscape(id))
}

// FetchUserContacts lists contacts of the current user.
func (c *Client) FetchUserContacts(ctx context.Context) ([]domain.Contact, error) {
	var answer wireUserSettings
	if err := c.do(ctx, http.MethodGet, "/user/settings", nil, nil, &answer); err != nil {
		return nil, fmt.Errorf("fetch user settings: %w", err)
	}
	out := make([]domain.Contact, 0, len(answer.Contacts))
	for _, w := range answer.Contacts {
		out = append(out, contactFromWire(w))
	}
	return out, nil
}

// CreateContact registers contact for the current user.
// Params: context and contact (its ID is ignored).
// Returns: contact with assigned id.
func (c *Client) CreateContact(ctx context.Context, contact domain.Contact) (domain.Contact, error) {
	request := wireContact{Type: string(contact.Type), Value: contact.Value, FallbackValue: contact.FallbackValue}
	var answer wireContact
	if err := c.create(ctx, "/contact", request, &answer); err != nil {
		return domain.Contact{}, fmt.Errorf("create contact %s %q: %w", contact.Type, contact.Value, err)
	}
	if answer.ID == "" {
		return domain.Contact{}, fmt.Errorf("create contact %s %q: backend returned empty id", contact.Type, contact.Value)
	}
	created := contact
	created.ID = answer.ID
	return created, nil
}

func (c *Client) delete(ctx context.Context, path string) (bool, error) {
	if err := c.do(ctx, http.MethodDelete, path, nil, nil, nil); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("delete %s: %w", path, err)
	}
	return true, nil
}
