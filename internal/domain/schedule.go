package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Weekday is a short day name used by backend schedules.
// Params: one of Mon..Sun.
// Returns: typed day name.
type Weekday string

const (
	Monday    Weekday = "Mon"
	Tuesday   Weekday = "Tue"
	Wednesday Weekday = "Wed"
	Thursday  Weekday = "Thu"
	Friday    Weekday = "Fri"
	Saturday  Weekday = "Sat"
	Sunday    Weekday = "Sun"
)

var weekdayOrder = []Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

// Weekdays returns days in the fixed schedule ordering.
// Params: none.
// Returns: fresh Mon..Sun slice.
func Weekdays() []Weekday {
	out := make([]Weekday, len(weekdayOrder))
	copy(out, weekdayOrder)
	return out
}

// Valid reports whether day is a known short day name.
// Params: none.
// Returns: true for Mon..Sun.
func (d Weekday) Valid() bool {
	for _, day := range weekdayOrder {
		if day == d {
			return true
		}
	}
	return false
}

// TimeOfDay is a wall-clock time with minute precision.
// Params: hour 0-23 and minute 0-59.
// Returns: value used for schedule windows.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// DefaultWindowEnd is the end of the default active window.
var DefaultWindowEnd = TimeOfDay{Hour: 23, Minute: 59}

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS" (seconds are ignored).
// Params: raw time string.
// Returns: parsed time or format error.
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", raw)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", raw)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", raw)
	}
	if len(parts) == 3 {
		if second, err := strconv.Atoi(parts[2]); err != nil || second < 0 || second > 59 {
			return TimeOfDay{}, fmt.Errorf("invalid second in %q", raw)
		}
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// TimeOfDayFromOffset converts minutes since midnight into time of day.
// Params: offset in minutes, wrapped into one day.
// Returns: time of day.
func TimeOfDayFromOffset(offset int) TimeOfDay {
	offset %= 24 * 60
	if offset < 0 {
		offset += 24 * 60
	}
	return TimeOfDay{Hour: offset / 60, Minute: offset % 60}
}

// Offset returns minutes since midnight.
// Params: none.
// Returns: schedule offset.
func (t TimeOfDay) Offset() int {
	return t.Hour*60 + t.Minute
}

// String renders time as HH:MM.
// Params: none.
// Returns: formatted time.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// UnmarshalText decodes HH:MM text from YAML/TOML scalars.
// Params: raw text.
// Returns: parse error.
func (t *TimeOfDay) UnmarshalText(text []byte) error {
	parsed, err := ParseTimeOfDay(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MarshalText encodes time as HH:MM.
// Params: none.
// Returns: text form.
func (t TimeOfDay) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ScheduleDay is one per-day flag of an encoded schedule.
type ScheduleDay struct {
	Name    Weekday
	Enabled bool
}

// Schedule is the backend encoding of disabled days and active window.
// Params: start/end offsets in minutes, timezone offset, per-day flags.
// Returns: value compared field by field for subscriptions.
type Schedule struct {
	StartOffset int
	EndOffset   int
	TZOffset    int
	Days        []ScheduleDay
}

// NewSchedule encodes disabled days and active window.
// Params: disabled days and window bounds.
// Returns: schedule with all seven days in fixed order and zero tz offset.
func NewSchedule(disabled []Weekday, start, end TimeOfDay) Schedule {
	off := make(map[Weekday]struct{}, len(disabled))
	for _, day := range disabled {
		off[day] = struct{}{}
	}
	days := make([]ScheduleDay, 0, len(weekdayOrder))
	for _, day := range weekdayOrder {
		_, disabledDay := off[day]
		days = append(days, ScheduleDay{Name: day, Enabled: !disabledDay})
	}
	return Schedule{
		StartOffset: start.Offset(),
		EndOffset:   end.Offset(),
		TZOffset:    0,
		Days:        days,
	}
}

// DisabledDays decodes days whose flag is off, in schedule order.
// Params: none.
// Returns: disabled day names.
func (s Schedule) DisabledDays() []Weekday {
	var out []Weekday
	for _, day := range s.Days {
		if !day.Enabled {
			out = append(out, day.Name)
		}
	}
	return out
}

// Window decodes the active window bounds.
// Params: none.
// Returns: start and end time of day.
func (s Schedule) Window() (TimeOfDay, TimeOfDay) {
	return TimeOfDayFromOffset(s.StartOffset), TimeOfDayFromOffset(s.EndOffset)
}
