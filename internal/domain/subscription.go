package domain

// ContactType names a delivery channel known to the backend.
type ContactType string

const (
	ContactJira        ContactType = "jira"
	ContactMail        ContactType = "mail"
	ContactPushover    ContactType = "pushover"
	ContactSendSMS     ContactType = "send-sms"
	ContactSlack       ContactType = "slack"
	ContactTelegram    ContactType = "telegram"
	ContactTwilioSMS   ContactType = "twilio sms"
	ContactTwilioVoice ContactType = "twilio voice"
)

// Valid reports whether type is a supported contact type.
// Params: none.
// Returns: true for known channels.
func (t ContactType) Valid() bool {
	switch t {
	case ContactJira, ContactMail, ContactPushover, ContactSendSMS,
		ContactSlack, ContactTelegram, ContactTwilioSMS, ContactTwilioVoice:
		return true
	default:
		return false
	}
}

// Contact is a notification target. ID is backend-assigned.
type Contact struct {
	ID            string
	Type          ContactType
	Value         string
	FallbackValue string
}

// Interchangeable reports whether two contacts deliver to the same place.
// Params: other contact.
// Returns: true when type, value, and fallback value all match.
func (c Contact) Interchangeable(other Contact) bool {
	return c.Type == other.Type && c.Value == other.Value && c.FallbackValue == other.FallbackValue
}

// Escalation notifies extra contacts after an offset.
type Escalation struct {
	Contacts        []Contact
	OffsetInMinutes int
}

// Subscription is a desired notification subscription.
type Subscription struct {
	Tags         []string
	Contacts     []Contact
	Escalations  []Escalation
	DisabledDays []Weekday
	TimeStart    TimeOfDay
	TimeEnd      TimeOfDay
}

// Schedule encodes disabled days and window for the backend.
// Params: none.
// Returns: encoded schedule.
func (s Subscription) Schedule() Schedule {
	return NewSchedule(s.DisabledDays, s.TimeStart, s.TimeEnd)
}

// EscalationRecord is an escalation with contacts resolved to IDs.
type EscalationRecord struct {
	Contacts        []string
	OffsetInMinutes int
}

// SubscriptionRecord is the backend form of a subscription.
type SubscriptionRecord struct {
	ID          string
	User        string
	Enabled     bool
	Tags        []string
	Contacts    []string
	Escalations []EscalationRecord
	Sched       Schedule
}
