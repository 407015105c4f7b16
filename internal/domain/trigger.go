package domain

import "strings"

// TTLState is the state a trigger switches to when data stops arriving.
type TTLState string

const (
	TTLStateDel    TTLState = "DEL"
	TTLStateError  TTLState = "ERROR"
	TTLStateNoData TTLState = "NODATA"
	TTLStateOK     TTLState = "OK"
	TTLStateWarn   TTLState = "WARN"
)

const (
	// DefaultTTL is the trigger TTL in seconds when the document omits it.
	DefaultTTL = 600
	// DefaultTTLState is the TTL state when the document omits it.
	DefaultTTLState = TTLStateNoData
)

// Valid reports whether state is a supported TTL state.
// Params: none.
// Returns: true for DEL/ERROR/NODATA/OK/WARN.
func (s TTLState) Valid() bool {
	switch s {
	case TTLStateDel, TTLStateError, TTLStateNoData, TTLStateOK, TTLStateWarn:
		return true
	default:
		return false
	}
}

// ParentRef references another trigger by exact name and tag set.
type ParentRef struct {
	Name string
	Tags []string
}

// Equal compares name and tag set; tag order is irrelevant.
// Params: other reference.
// Returns: true when both point at the same trigger identity.
func (p ParentRef) Equal(other ParentRef) bool {
	return p.Name == other.Name && SameSet(p.Tags, other.Tags)
}

// String renders reference for logs and errors.
// Params: none.
// Returns: name{tag,...}.
func (p ParentRef) String() string {
	return p.Name + "{" + strings.Join(SortedSet(p.Tags), ",") + "}"
}

// Saturation is an opaque saturation rule passed through to the backend.
// Empty Fallback and nil Parameters mean absent.
type Saturation struct {
	Type       string
	Fallback   string
	Parameters map[string]any
}

// Trigger is the backend form of a monitoring trigger.
// Parents holds resolved backend IDs of parent triggers.
type Trigger struct {
	ID              string
	Name            string
	Tags            []string
	Targets         []string
	WarnValue       *float64
	ErrorValue      *float64
	Desc            string
	TTL             int
	TTLState        TTLState
	Expression      string
	IsPullType      bool
	Dashboard       string
	PendingInterval int
	DisabledDays    []Weekday
	TimeStart       TimeOfDay
	TimeEnd         TimeOfDay
	Parents         []string
	Saturation      []Saturation
}

// Schedule encodes disabled days and window for the backend.
// Params: none.
// Returns: encoded schedule.
func (t Trigger) Schedule() Schedule {
	return NewSchedule(t.DisabledDays, t.TimeStart, t.TimeEnd)
}

// Clone returns a copy that shares no slices with t.
// Params: none.
// Returns: deep-enough copy for independent mutation.
func (t Trigger) Clone() Trigger {
	out := t
	out.Tags = append([]string(nil), t.Tags...)
	out.Targets = append([]string(nil), t.Targets...)
	out.DisabledDays = append([]Weekday(nil), t.DisabledDays...)
	out.Parents = append([]string(nil), t.Parents...)
	if t.WarnValue != nil {
		value := *t.WarnValue
		out.WarnValue = &value
	}
	if t.ErrorValue != nil {
		value := *t.ErrorValue
		out.ErrorValue = &value
	}
	if t.Saturation != nil {
		out.Saturation = make([]Saturation, len(t.Saturation))
		copy(out.Saturation, t.Saturation)
	}
	return out
}

// TriggerSpec is a desired trigger as declared in the document.
// ParentRefs is nil when the document declares no parents.
type TriggerSpec struct {
	Trigger
	ParentRefs []ParentRef
}
