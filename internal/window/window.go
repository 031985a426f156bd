// Package window holds the pure local-time arithmetic behind reminder
// triggering: tolerance-window membership, local-day and explicit-window UTC
// bounds, and local-calendar-date differencing. All functions are stateless;
// the caller supplies "now" already converted to the configured timezone.
package window

import (
	"fmt"
	"strconv"
	"time"
)

const minutesPerDay = 24 * 60

// Clock is a local wall-clock time of day (no date, no zone).
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses a 24-hour "HH:MM" string.
func ParseClock(s string) (Clock, error) {
	if len(s) != 5 || s[2] != ':' {
		return Clock{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, errH := strconv.Atoi(s[:2])
	m, errM := strconv.Atoi(s[3:])
	if errH != nil || errM != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// Minutes returns minutes since local midnight.
func (c Clock) Minutes() int { return c.Hour*60 + c.Minute }

// Within reports whether now falls in [trigger, trigger+toleranceMinutes),
// computed in minutes since local midnight. When the interval crosses
// midnight it wraps: the test becomes now >= trigger OR now < overflow.
func Within(now time.Time, trigger Clock, toleranceMinutes int) bool {
	nowMin := now.Hour()*60 + now.Minute()
	start := trigger.Minutes()
	end := start + toleranceMinutes
	if end >= minutesPerDay {
		return nowMin >= start || nowMin < end-minutesPerDay
	}
	return start <= nowMin && nowMin < end
}

// DayBounds returns the UTC instants covering the full local calendar day
// containing now, as a half-open [start, end) pair.
func DayBounds(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	end := start.AddDate(0, 0, 1)
	return start.UTC(), end.UTC()
}

// Bounds resolves an explicit [start, end) local time-of-day window for the
// local day containing now into UTC instants. If end <= start the window
// crosses midnight and the end instant is advanced by one calendar day.
func Bounds(now time.Time, start, end Clock) (time.Time, time.Time) {
	loc := now.Location()
	s := time.Date(now.Year(), now.Month(), now.Day(), start.Hour, start.Minute, 0, 0, loc)
	e := time.Date(now.Year(), now.Month(), now.Day(), end.Hour, end.Minute, 0, 0, loc)
	if !e.After(s) {
		e = e.AddDate(0, 0, 1)
	}
	return s.UTC(), e.UTC()
}

// DaysSince returns the difference between nowLocal's calendar date and the
// calendar date of lastUTC converted to nowLocal's zone. The result counts
// local date rollovers, not 24h multiples: 23:30 on day D to 01:00 on day
// D+1 is one day.
func DaysSince(lastUTC time.Time, nowLocal time.Time) int {
	last := lastUTC.In(nowLocal.Location())
	a := civilDate(nowLocal)
	b := civilDate(last)
	return int(a.Sub(b).Hours() / 24)
}

// civilDate strips a timestamp to its calendar date, re-anchored in UTC so
// date subtraction is exact regardless of the original zone or DST.
func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
