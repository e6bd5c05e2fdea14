// Package window decides whether outbound contact is permitted at a given
// instant for a campaign's weekly schedule.
package window

import (
	"time"
)

// Default window bounds, local wall-clock time
const (
	DefaultSaturdayStart = "10:00"
	DefaultSaturdayEnd   = "13:00"
	DefaultWindow1Start  = "12:00"
	DefaultWindow1End    = "15:00"
	DefaultWindow2Start  = "18:00"
	DefaultWindow2End    = "20:30"
)

// Policy classifies what a weekday allows
type Policy string

const (
	PolicyClosed     Policy = "closed"      // no contact at all
	PolicyOneWindow  Policy = "one_window"  // Saturday, and Sunday when opted in
	PolicyTwoWindows Policy = "two_windows" // Monday to Friday
)

// Interval is a half-open [Start, End) range of local wall-clock time.
// Start and End are "HH:MM" or "HH:MM:SS"; empty or malformed values fall
// back to the defaults of the slot they fill.
type Interval struct {
	Start string
	End   string
}

// Schedule is the contact configuration of one campaign
type Schedule struct {
	Location      *time.Location
	ContactSunday bool
	Saturday      Interval // also used for Sunday when ContactSunday is set
	Window1       Interval
	Window2       Interval
}

// Policy returns the day-of-week policy for the instant in the schedule's timezone
func (s Schedule) Policy(t time.Time) Policy {
	switch t.In(s.location()).Weekday() {
	case time.Sunday:
		if s.ContactSunday {
			return PolicyOneWindow
		}
		return PolicyClosed
	case time.Saturday:
		return PolicyOneWindow
	default:
		return PolicyTwoWindows
	}
}

// Allows reports whether contact is permitted at t
func (s Schedule) Allows(t time.Time) bool {
	local := t.In(s.location())
	now := local.Hour()*60 + local.Minute()

	switch s.Policy(t) {
	case PolicyOneWindow:
		return within(now, s.Saturday, DefaultSaturdayStart, DefaultSaturdayEnd)
	case PolicyTwoWindows:
		return within(now, s.Window1, DefaultWindow1Start, DefaultWindow1End) ||
			within(now, s.Window2, DefaultWindow2Start, DefaultWindow2End)
	default:
		return false
	}
}

// IsWithinContactWindow is the functional form of Schedule.Allows
func IsWithinContactWindow(s Schedule, t time.Time) bool {
	return s.Allows(t)
}

func (s Schedule) location() *time.Location {
	if s.Location == nil {
		return time.UTC
	}
	return s.Location
}

func within(now int, iv Interval, defStart, defEnd string) bool {
	start := minutesOr(iv.Start, defStart)
	end := minutesOr(iv.End, defEnd)
	return start <= now && now < end
}

// minutesOr converts a clock string to minutes since midnight
func minutesOr(v, def string) int {
	if m, ok := ParseClock(v); ok {
		return m
	}
	m, _ := ParseClock(def)
	return m
}

// ParseClock parses "HH:MM" or "HH:MM:SS" into minutes since midnight.
// Seconds are ignored.
func ParseClock(v string) (int, bool) {
	if v == "" {
		return 0, false
	}
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Hour()*60 + t.Minute(), true
		}
	}
	return 0, false
}

// DateLayout is the calendar-date format used for commitment and cutoff dates
const DateLayout = "2006-01-02"

// LocalDate returns t's calendar date in loc as YYYY-MM-DD
func LocalDate(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateLayout)
}
