package document

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"alert-autoconf/internal/domain"
)

const defaultVersion = 1

// normalize applies defaults and validates raw document.
// Params: decoded YAML document.
// Returns: domain document or validation error naming the field path.
func normalize(raw rawDocument) (domain.Document, error) {
	doc := domain.Document{
		Version: defaultVersion,
		Prefix:  raw.Prefix,
	}
	if raw.Version != nil {
		doc.Version = *raw.Version
	}

	doc.Triggers = make([]domain.TriggerSpec, 0, len(raw.Triggers))
	for i, rt := range raw.Triggers {
		spec, err := normalizeTrigger(rt)
		if err != nil {
			return domain.Document{}, fmt.Errorf("triggers[%d]: %w", i, err)
		}
		doc.Triggers = append(doc.Triggers, spec)
	}

	doc.Alerting = make([]domain.Subscription, 0, len(raw.Alerting))
	for i, rs := range raw.Alerting {
		sub, err := normalizeSubscription(rs)
		if err != nil {
			return domain.Document{}, fmt.Errorf("alerting[%d]: %w", i, err)
		}
		doc.Alerting = append(doc.Alerting, sub)
	}
	return doc, nil
}

func normalizeTrigger(rt rawTrigger) (domain.TriggerSpec, error) {
	name := strings.TrimSpace(rt.Name)
	if name == "" {
		return domain.TriggerSpec{}, fmt.Errorf("name is required")
	}
	if len(rt.Targets) == 0 {
		return domain.TriggerSpec{}, fmt.Errorf("trigger %q: targets are required", name)
	}
	if rt.ID != "" {
		if _, err := uuid.Parse(rt.ID); err != nil {
			return domain.TriggerSpec{}, fmt.Errorf("trigger %q: id %q is not a UUID: %w", name, rt.ID, err)
		}
	}
	if (rt.WarnValue == nil) != (rt.ErrorValue == nil) {
		return domain.TriggerSpec{}, fmt.Errorf("trigger %q: must provide warn_value and error_value", name)
	}
	if rt.WarnValue != nil && len(rt.Targets) > 1 && strings.TrimSpace(rt.Expression) == "" {
		return domain.TriggerSpec{}, fmt.Errorf("trigger %q: must use single target with warn_value and error_value", name)
	}

	ttl := domain.DefaultTTL
	if rt.TTL != nil {
		ttl = *rt.TTL
	}
	ttlState := domain.DefaultTTLState
	if rt.TTLState != "" {
		ttlState = domain.TTLState(strings.ToUpper(strings.TrimSpace(rt.TTLState)))
		if !ttlState.Valid() {
			return domain.TriggerSpec{}, fmt.Errorf("trigger %q: unsupported ttl_state %q", name, rt.TTLState)
		}
	}
	if rt.Dashboard != "" {
		if err := validateDashboard(rt.Dashboard); err != nil {
			return domain.TriggerSpec{}, fmt.Errorf("trigger %q: %w", name, err)
		}
	}
	days, err := parseDays(rt.DayDisable)
	if err != nil {
		return domain.TriggerSpec{}, fmt.Errorf("trigger %q: %w", name, err)
	}
	start, end, err := parseWindow(rt.TimeStart, rt.TimeEnd)
	if err != nil {
		return domain.TriggerSpec{}, fmt.Errorf("trigger %q: %w", name, err)
	}

	spec := domain.TriggerSpec{
		Trigger: domain.Trigger{
			ID:              rt.ID,
			Name:            name,
			Tags:            append([]string(nil), rt.Tags...),
			Targets:         append([]string(nil), rt.Targets...),
			WarnValue:       rt.WarnValue,
			ErrorValue:      rt.ErrorValue,
			Desc:            rt.Desc,
			TTL:             ttl,
			TTLState:        ttlState,
			Expression:      rt.Expression,
			IsPullType:      rt.IsPullType,
			Dashboard:       rt.Dashboard,
			PendingInterval: rt.PendingInterval,
			DisabledDays:    days,
			TimeStart:       start,
			TimeEnd:         end,
		},
	}
	if rt.Parents != nil {
		spec.ParentRefs = make([]domain.ParentRef, 0, len(rt.Parents))
		for j, rp := range rt.Parents {
			if strings.TrimSpace(rp.Name) == "" {
				return domain.TriggerSpec{}, fmt.Errorf("trigger %q: parents[%d].name is required", name, j)
			}
			spec.ParentRefs = append(spec.ParentRefs, domain.ParentRef{
				Name: rp.Name,
				Tags: append([]string(nil), rp.Tags...),
			})
		}
	}
	for j, rs := range rt.Saturation {
		if strings.TrimSpace(rs.Type) == "" {
			return domain.TriggerSpec{}, fmt.Errorf("trigger %q: saturation[%d].type is required", name, j)
		}
		spec.Saturation = append(spec.Saturation, domain.Saturation{
			Type:       rs.Type,
			Fallback:   rs.Fallback,
			Parameters: stringKeyed(rs.Parameters),
		})
	}
	return spec, nil
}

func normalizeSubscription(rs rawSubscription) (domain.Subscription, error) {
	if len(rs.Tags) == 0 {
		return domain.Subscription{}, fmt.Errorf("tags are required")
	}
	contacts, err := normalizeContacts(rs.Contacts)
	if err != nil {
		return domain.Subscription{}, err
	}
	sub := domain.Subscription{
		Tags:     append([]string(nil), rs.Tags...),
		Contacts: contacts,
	}
	for j, re := range rs.Escalations {
		if re.OffsetInMinutes < 0 {
			return domain.Subscription{}, fmt.Errorf("escalations[%d].offset_in_minutes must be >= 0", j)
		}
		escContacts, err := normalizeContacts(re.Contacts)
		if err != nil {
			return domain.Subscription{}, fmt.Errorf("escalations[%d]: %w", j, err)
		}
		sub.Escalations = append(sub.Escalations, domain.Escalation{
			Contacts:        escContacts,
			OffsetInMinutes: re.OffsetInMinutes,
		})
	}
	if sub.DisabledDays, err = parseDays(rs.DayDisable); err != nil {
		return domain.Subscription{}, err
	}
	if sub.TimeStart, sub.TimeEnd, err = parseWindow(rs.TimeStart, rs.TimeEnd); err != nil {
		return domain.Subscription{}, err
	}
	return sub, nil
}

func normalizeContacts(raw []rawContact) ([]domain.Contact, error) {
	out := make([]domain.Contact, 0, len(raw))
	for i, rc := range raw {
		contactType := domain.ContactType(strings.TrimSpace(rc.Type))
		if !contactType.Valid() {
			return nil, fmt.Errorf("contacts[%d]: unsupported type %q", i, rc.Type)
		}
		out = append(out, domain.Contact{
			ID:            rc.ID,
			Type:          contactType,
			Value:         rc.Value,
			FallbackValue: rc.FallbackValue,
		})
	}
	return out, nil
}

// parseDays validates day_disable entries.
// Params: raw day names.
// Returns: typed days or error for unknown names.
func parseDays(raw []string) ([]domain.Weekday, error) {
	var out []domain.Weekday
	for _, value := range raw {
		day := domain.Weekday(strings.TrimSpace(value))
		if !day.Valid() {
			return nil, fmt.Errorf("day_disable has unsupported day %q", value)
		}
		out = append(out, day)
	}
	return out, nil
}

// parseWindow parses active window bounds with 00:00-23:59 defaults.
// Params: raw time_start and time_end.
// Returns: window bounds or parse error.
func parseWindow(rawStart, rawEnd string) (domain.TimeOfDay, domain.TimeOfDay, error) {
	start := domain.TimeOfDay{}
	end := domain.DefaultWindowEnd
	var err error
	if strings.TrimSpace(rawStart) != "" {
		if start, err = domain.ParseTimeOfDay(rawStart); err != nil {
			return start, end, fmt.Errorf("time_start: %w", err)
		}
	}
	if strings.TrimSpace(rawEnd) != "" {
		if end, err = domain.ParseTimeOfDay(rawEnd); err != nil {
			return start, end, fmt.Errorf("time_end: %w", err)
		}
	}
	return start, end, nil
}

func validateDashboard(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	if (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("dashboard %q must be an http(s) URL", raw)
	}
	return nil
}

// stringKeyed rewrites nested maps decoded with non-string keys so the
// parameters stay JSON encodable.
func stringKeyed(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for key, value := range params {
		out[key] = stringKeyedValue(value)
	}
	return out
}

func stringKeyedValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return stringKeyed(v)
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[fmt.Sprint(key)] = stringKeyedValue(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = stringKeyedValue(item)
		}
		return out
	default:
		return value
	}
}
