package moira

import (
	"alert-autoconf/internal/domain"
)

type wireSchedDay struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

type wireSched struct {
	StartOffset int            `json:"startOffset"`
	EndOffset   int            `json:"endOffset"`
	TZOffset    int            `json:"tzOffset"`
	Days        []wireSchedDay `json:"days"`
}

type wireSaturation struct {
	Type            string         `json:"type"`
	Fallback        string         `json:"fallback,omitempty"`
	ExtraParameters map[string]any `json:"extra_parameters,omitempty"`
}

type wireTrigger struct {
	ID              string           `json:"id,omitempty"`
	Name            string           `json:"name"`
	Desc            string           `json:"desc"`
	Targets         []string         `json:"targets"`
	WarnValue       *float64         `json:"warn_value"`
	ErrorValue      *float64         `json:"error_value"`
	Tags            []string         `json:"tags"`
	TTLState        string           `json:"ttl_state"`
	TTL             int              `json:"ttl"`
	Sched           *wireSched       `json:"sched,omitempty"`
	Expression      string           `json:"expression"`
	IsPullType      bool             `json:"is_pull_type"`
	Dashboard       string           `json:"dashboard,omitempty"`
	PendingInterval int              `json:"pending_interval"`
	Parents         []string         `json:"parents"`
	Saturation      []wireSaturation `json:"saturation"`
}

type wireTriggerList struct {
	List []wireTrigger `json:"list"`
}

type wireSaveAnswer struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type wireTagStat struct {
	Name     string   `json:"name"`
	Triggers []string `json:"triggers"`
}

type wireTagStats struct {
	List []wireTagStat `json:"list"`
}

type wireContact struct {
	ID            string `json:"id,omitempty"`
	Type          string `json:"type"`
	Value         string `json:"value"`
	FallbackValue string `json:"fallback_value,omitempty"`
	User          string `json:"user,omitempty"`
}

type wireUserSettings struct {
	Login    string        `json:"login"`
	Contacts []wireContact `json:"contacts"`
}

type wireEscalation struct {
	Contacts        []string `json:"contacts"`
	OffsetInMinutes int      `json:"offset_in_minutes"`
}

type wireSubscription struct {
	ID                string           `json:"id,omitempty"`
	User              string           `json:"user,omitempty"`
	Enabled           bool             `json:"enabled"`
	ThrottlingEnabled bool             `json:"throttling"`
	IgnoreWarnings    bool             `json:"ignore_warnings"`
	IgnoreRecoverings bool             `json:"ignore_recoverings"`
	AnyTags           bool             `json:"any_tags"`
	Tags              []string         `json:"tags"`
	Contacts          []string         `json:"contacts"`
	Escalations       []wireEscalation `json:"escalations"`
	Sched             *wireSched       `json:"sched,omitempty"`
}

type wireSubscriptionList struct {
	List []wireSubscription `json:"list"`
}

func scheduleToWire(s domain.Schedule) *wireSched {
	days := make([]wireSchedDay, 0, len(s.Days))
	for _, day := range s.Days {
		days = append(days, wireSchedDay{Name: string(day.Name), Enabled: day.Enabled})
	}
	return &wireSched{StartOffset: s.StartOffset, EndOffset: s.EndOffset, TZOffset: s.TZOffset, Days: days}
}

// scheduleFromWire decodes backend schedule; a missing schedule means always active.
func scheduleFromWire(w *wireSched) domain.Schedule {
	if w == nil {
		return domain.NewSchedule(nil, domain.TimeOfDay{}, domain.DefaultWindowEnd)
	}
	days := make([]domain.ScheduleDay, 0, len(w.Days))
	for _, day := range w.Days {
		days = append(days, domain.ScheduleDay{Name: domain.Weekday(day.Name), Enabled: day.Enabled})
	}
	return domain.Schedule{StartOffset: w.StartOffset, EndOffset: w.EndOffset, TZOffset: w.TZOffset, Days: days}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func triggerToWire(t domain.Trigger) wireTrigger {
	saturation := make([]wireSaturation, 0, len(t.Saturation))
	for _, s := range t.Saturation {
		saturation = append(saturation, wireSaturation{Type: s.Type, Fallback: s.Fallback, ExtraParameters: s.Parameters})
	}
	return wireTrigger{
		Name:            t.Name,
		Desc:            t.Desc,
		Targets:         nonNil(t.Targets),
		WarnValue:       t.WarnValue,
		ErrorValue:      t.ErrorValue,
		Tags:            nonNil(t.Tags),
		TTLState:        string(t.TTLState),
		TTL:             t.TTL,
		Sched:           scheduleToWire(t.Schedule()),
		Expression:      t.Expression,
		IsPullType:      t.IsPullType,
		Dashboard:       t.Dashboard,
		PendingInterval: t.PendingInterval,
		Parents:         nonNil(t.Parents),
		Saturation:      saturation,
	}
}

// triggerFromWire normalizes backend record into the shape of a desired trigger.
func triggerFromWire(w wireTrigger) domain.Trigger {
	sched := scheduleFromWire(w.Sched)
	start, end := sched.Window()
	var saturation []domain.Saturation
	for _, s := range w.Saturation {
		saturation = append(saturation, domain.Saturation{Type: s.Type, Fallback: s.Fallback, Parameters: s.ExtraParameters})
	}
	ttlState := domain.TTLState(w.TTLState)
	if ttlState == "" {
		ttlState = domain.DefaultTTLState
	}
	return domain.Trigger{
		ID:              w.ID,
		Name:            w.Name,
		Tags:            w.Tags,
		Targets:         w.Targets,
		WarnValue:       w.WarnValue,
		ErrorValue:      w.ErrorValue,
		Desc:            w.Desc,
		TTL:             w.TTL,
		TTLState:        ttlState,
		Expression:      w.Expression,
		IsPullType:      w.IsPullType,
		Dashboard:       w.Dashboard,
		PendingInterval: w.PendingInterval,
		DisabledDays:    sched.DisabledDays(),
		TimeStart:       start,
		TimeEnd:         end,
		Parents:         w.Parents,
		Saturation:      saturation,
	}
}

func contactFromWire(w wireContact) domain.Contact {
	return domain.Contact{ID: w.ID, Type: domain.ContactType(w.Type), Value: w.Value, FallbackValue: w.FallbackValue}
}

func subscriptionToWire(rec domain.SubscriptionRecord) wireSubscription {
	escalations := make([]wireEscalation, 0, len(rec.Escalations))
	for _, e := range rec.Escalations {
		escalations = append(escalations, wireEscalation{Contacts: nonNil(e.Contacts), OffsetInMinutes: e.OffsetInMinutes})
	}
	return wireSubscription{
		Enabled:           true,
		ThrottlingEnabled: true,
		Tags:              nonNil(rec.Tags),
		Contacts:          nonNil(rec.Contacts),
		Escalations:       escalations,
		Sched:             scheduleToWire(rec.Sched),
	}
}

func subscriptionFromWire(w wireSubscription) domain.SubscriptionRecord {
	rec := domain.SubscriptionRecord{
		ID:       w.ID,
		User:     w.User,
		Enabled:  w.Enabled,
		Tags:     w.Tags,
		Contacts: w.Contacts,
		Sched:    scheduleFromWire(w.Sched),
	}
	for _, e := range w.Escalations {
		rec.Escalations = append(rec.Escalations, domain.EscalationRecord{Contacts: e.Contacts, OffsetInMinutes: e.OffsetInMinutes})
	}
	return rec
}
