package zone

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	hoursPerDay   = 24
	minutesPerDay = 24 * 60
	daysPerWeek   = 7
)

// Weekdays is a set of weekdays, stored as a bitmask keyed by
// time.Weekday (Sunday = bit 0).
type Weekdays uint8

// Has reports whether the set contains the given weekday.
func (w Weekdays) Has(day time.Weekday) bool {
	return w&(1<<uint(day)) != 0
}

// Add returns the set with the given weekday included.
func (w Weekdays) Add(day time.Weekday) Weekdays {
	return w | 1<<uint(day)
}

// Count returns the number of weekdays in the set.
func (w Weekdays) Count() int {
	n := 0
	for day := time.Sunday; day <= time.Saturday; day++ {
		if w.Has(day) {
			n++
		}
	}
	return n
}

// Names returns the contained weekdays as lowercase three-letter
// abbreviations, Sunday first.
func (w Weekdays) Names() []string {
	var names []string
	for day := time.Sunday; day <= time.Saturday; day++ {
		if w.Has(day) {
			names = append(names, strings.ToLower(day.String()[:3]))
		}
	}
	return names
}

// weekdayNames maps accepted day spellings to time.Weekday.
// Full names and three-letter abbreviations are both accepted.
var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekdays parses a list of day names into a Weekdays set.
//
// Returns:
//   - Weekdays: the parsed set
//   - error: if the list is empty or contains an unknown day name
func ParseWeekdays(days []string) (Weekdays, error) {
	var set Weekdays
	for _, raw := range days {
		name := strings.ToLower(strings.TrimSpace(raw))
		day, ok := weekdayNames[name]
		if !ok {
			return 0, fmt.Errorf("unknown weekday %q", raw)
		}
		set = set.Add(day)
	}
	if set == 0 {
		return 0, fmt.Errorf("at least one weekday is required")
	}
	return set, nil
}

// Schedule is a weekly firing rule: a minute-of-day plus a weekday set.
//
// It is a pure value type. Matching is minute-exact so the scheduler's
// once-per-minute tick either hits the scheduled minute or misses it
// permanently (no catch-up).
type Schedule struct {
	Hour   int
	Minute int
	Days   Weekdays
}

// ParseSchedule parses a 24h "HH:MM" time-of-day and a weekday list.
//
// Returns:
//   - Schedule: the parsed schedule
//   - error: if the time is malformed/out of range or the day set is invalid
func ParseSchedule(timeOfDay string, days []string) (Schedule, error) {
	hour, minute, err := parseTimeOfDay(timeOfDay)
	if err != nil {
		return Schedule{}, err
	}

	set, err := ParseWeekdays(days)
	if err != nil {
		return Schedule{}, err
	}

	return Schedule{Hour: hour, Minute: minute, Days: set}, nil
}

// parseTimeOfDay parses "HH:MM" into hour and minute components.
func parseTimeOfDay(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("schedule time %q is not in HH:MM form", s)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour >= hoursPerDay {
		return 0, 0, fmt.Errorf("schedule time %q has an invalid hour", s)
	}

	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute >= 60 {
		return 0, 0, fmt.Errorf("schedule time %q has an invalid minute", s)
	}

	return hour, minute, nil
}

// Matches reports whether the schedule fires at the given instant.
// Seconds and sub-second components are ignored: the schedule matches
// the whole wall-clock minute.
func (s Schedule) Matches(t time.Time) bool {
	return s.Days.Has(t.Weekday()) && t.Hour() == s.Hour && t.Minute() == s.Minute
}

// NextFire returns the first instant strictly after the given time at
// which the schedule fires, in the same location as the input.
func (s Schedule) NextFire(after time.Time) time.Time {
	candidate := time.Date(after.Year(), after.Month(), after.Day(),
		s.Hour, s.Minute, 0, 0, after.Location())

	for i := 0; i < daysPerWeek+1; i++ {
		if candidate.After(after) && s.Days.Has(candidate.Weekday()) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

// String renders the schedule as "HH:MM [days]" for logs.
func (s Schedule) String() string {
	return fmt.Sprintf("%02d:%02d %v", s.Hour, s.Minute, s.Days.Names())
}
