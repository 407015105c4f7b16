package reconcile

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"alert-autoconf/internal/domain"
)

// fieldDiff names the first field where two triggers disagree.
type fieldDiff struct {
	Field    string
	Desired  any
	Observed any
}

// sameTriggerEntity pairs a desired trigger with the observed one it replaces.
// Tags compare as a set, targets in order.
func sameTriggerEntity(desired, observed domain.Trigger) bool {
	return desired.Name == observed.Name &&
		domain.SameSet(desired.Tags, observed.Tags) &&
		equalOrdered(desired.Targets, observed.Targets)
}

// compareTriggers walks fields in fixed order and stops at the first difference.
// Params: desired and observed trigger, and phase (parents are skipped when detached).
// Returns: nil diff when fully equal, or error when a field cannot be compared.
func compareTriggers(desired, observed domain.Trigger, phase Phase) (*fieldDiff, error) {
	type check struct {
		field    string
		equal    func() (bool, error)
		desired  any
		observed any
	}
	plain := func(ok bool) func() (bool, error) {
		return func() (bool, error) { return ok, nil }
	}

	checks := []check{
		{"name", plain(desired.Name == observed.Name), desired.Name, observed.Name},
		{"tags", plain(domain.SameSet(desired.Tags, observed.Tags)), desired.Tags, observed.Tags},
		{"targets", plain(equalOrdered(desired.Targets, observed.Targets)), desired.Targets, observed.Targets},
		{"warn_value", plain(equalFloatPtr(desired.WarnValue, observed.WarnValue)), floatText(desired.WarnValue), floatText(observed.WarnValue)},
		{"error_value", plain(equalFloatPtr(desired.ErrorValue, observed.ErrorValue)), floatText(desired.ErrorValue), floatText(observed.ErrorValue)},
		{"desc", plain(desired.Desc == observed.Desc), desired.Desc, observed.Desc},
		{"ttl", plain(desired.TTL == observed.TTL), desired.TTL, observed.TTL},
		{"ttl_state", plain(desired.TTLState == observed.TTLState), desired.TTLState, observed.TTLState},
		{"expression", plain(desired.Expression == observed.Expression), desired.Expression, observed.Expression},
		{"is_pull_type", plain(desired.IsPullType == observed.IsPullType), desired.IsPullType, observed.IsPullType},
		{"dashboard", func() (bool, error) { return sameDashboardPanel(desired.Dashboard, observed.Dashboard) }, desired.Dashboard, observed.Dashboard},
		{"pending_interval", plain(desired.PendingInterval == observed.PendingInterval), desired.PendingInterval, observed.PendingInterval},
		{"day_disable", plain(domain.SameSet(weekdayStrings(desired.DisabledDays), weekdayStrings(observed.DisabledDays))), desired.DisabledDays, observed.DisabledDays},
		{"time_start", plain(desired.TimeStart == observed.TimeStart), desired.TimeStart.String(), observed.TimeStart.String()},
		{"time_end", plain(desired.TimeEnd == observed.TimeEnd), desired.TimeEnd.String(), observed.TimeEnd.String()},
	}
	if !phase.ignoresInheritance() {
		checks = append(checks, check{"parents", plain(domain.SameSet(desired.Parents, observed.Parents)), desired.Parents, observed.Parents})
	}
	checks = append(checks, check{"saturation", func() (bool, error) { return sameSaturation(desired.Saturation, observed.Saturation) }, len(desired.Saturation), len(observed.Saturation)})

	for _, c := range checks {
		ok, err := c.equal()
		if err != nil {
			return nil, fmt.Errorf("compare %s: %w", c.field, err)
		}
		if !ok {
			return &fieldDiff{Field: c.field, Desired: c.desired, Observed: c.observed}, nil
		}
	}
	return nil, nil
}

func equalOrdered(left, right []string) bool {
	if len(left) != len(right) {
		return false
	}
	for i := range left {
		if left[i] != right[i] {
			return false
		}
	}
	return true
}

func equalFloatPtr(left, right *float64) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}
	return *left == *right
}

func floatText(value *float64) string {
	if value == nil {
		return "null"
	}
	return strconv.FormatFloat(*value, 'g', -1, 64)
}

func weekdayStrings(days []domain.Weekday) []string {
	out := make([]string, 0, len(days))
	for _, day := range days {
		out = append(out, string(day))
	}
	return out
}

// sameDashboardPanel compares only the panelId query parameter.
func sameDashboardPanel(left, right string) (bool, error) {
	l, err := panelIDs(left)
	if err != nil {
		return false, err
	}
	r, err := panelIDs(right)
	if err != nil {
		return false, err
	}
	return equalOrdered(l, r), nil
}

func panelIDs(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	// Malformed pairs are dropped; the rest of the query still counts.
	query, _ := url.ParseQuery(parsed.RawQuery)
	return query["panelId"], nil
}

// canonicalSaturation renders rule as JSON with sorted keys.
func canonicalSaturation(rule domain.Saturation) (string, error) {
	payload := map[string]any{"type": rule.Type}
	if rule.Fallback != "" {
		payload["fallback"] = rule.Fallback
	}
	if rule.Parameters != nil {
		payload["extra_parameters"] = rule.Parameters
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// sameSaturation compares rules as sets of canonical forms.
func sameSaturation(left, right []domain.Saturation) (bool, error) {
	l, err := canonicalSaturations(left)
	if err != nil {
		return false, err
	}
	r, err := canonicalSaturations(right)
	if err != nil {
		return false, err
	}
	return domain.SameSet(l, r), nil
}

func canonicalSaturations(rules []domain.Saturation) ([]string, error) {
	out := make([]string, 0, len(rules))
	for _, rule := range rules {
		canonical, err := canonicalSaturation(rule)
		if err != nil {
			return nil, err
		}
		out = append(out, canonical)
	}
	return out, nil
}

// escalationKey normalizes escalation to offset plus sorted contact ids.
func escalationKey(e domain.EscalationRecord) string {
	ids := append([]string(nil), e.Contacts...)
	sort.Strings(ids)
	return strconv.Itoa(e.OffsetInMinutes) + "|" + strings.Join(ids, ",")
}

func escalationKeys(escalations []domain.EscalationRecord) []string {
	out := make([]string, 0, len(escalations))
	for _, e := range escalations {
		out = append(out, escalationKey(e))
	}
	return out
}

// subscriptionNotChanged compares tags and contact ids as sets, the schedule
// field by field with days in fixed order, and escalations as a set.
func subscriptionNotChanged(desired, observed domain.SubscriptionRecord) bool {
	if !domain.SameSet(desired.Tags, observed.Tags) || !domain.SameSet(desired.Contacts, observed.Contacts) {
		return false
	}
	ds, ob := desired.Sched, observed.Sched
	if ds.StartOffset != ob.StartOffset || ds.EndOffset != ob.EndOffset || ds.TZOffset != ob.TZOffset {
		return false
	}
	if len(ds.Days) != len(ob.Days) {
		return false
	}
	for i := range ds.Days {
		if ds.Days[i] != ob.Days[i] {
			return false
		}
	}
	return domain.SameSet(escalationKeys(desired.Escalations), escalationKeys(observed.Escalations))
}
