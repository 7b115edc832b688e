// Package calendar does the date arithmetic of the training program in one fixed civil time zone.
//
// Every user shares the same zone and unlock hour so that days unlock at the same instant
// regardless of the device locale. The zone is an explicit value, never the process local zone.
package calendar

import (
	"errors"
	"fmt"
	"time"
)

// Default settings of the program schedule.
const (
	DefaultTimezone   = "America/New_York"
	DefaultUnlockHour = 5
)

const hoursPerDay = 24

// ErrInvalidCalendar is returned when a Calendar is constructed with invalid settings.
var ErrInvalidCalendar = errors.New("invalid calendar")

// Calendar converts instants into civil dates of the program zone.
type Calendar struct {
	loc        *time.Location
	unlockHour int
}

// New creates a Calendar for loc where new program days unlock at unlockHour (0-23).
func New(loc *time.Location, unlockHour int) (Calendar, error) {
	if loc == nil {
		return Calendar{}, fmt.Errorf("%w: nil location", ErrInvalidCalendar)
	}
	if unlockHour < 0 || unlockHour >= hoursPerDay {
		return Calendar{}, fmt.Errorf("%w: unlock hour %d outside 0-23", ErrInvalidCalendar, unlockHour)
	}
	return Calendar{loc: loc, unlockHour: unlockHour}, nil
}

// Load creates a Calendar from an IANA zone name.
func Load(zone string, unlockHour int) (Calendar, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Calendar{}, fmt.Errorf("load location %q: %w", zone, err)
	}
	return New(loc, unlockHour)
}

// Location returns the program zone.
func (c Calendar) Location() *time.Location {
	return c.loc
}

// UnlockHour returns the local hour at which due days unlock.
func (c Calendar) UnlockHour() int {
	return c.unlockHour
}

// Date returns the civil midnight of t in the program zone.
func (c Calendar) Date(t time.Time) time.Time {
	local := t.In(c.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
}

// SameDay reports whether a and b fall on the same civil date.
func (c Calendar) SameDay(a, b time.Time) bool {
	return c.Date(a).Equal(c.Date(b))
}

// IsWeekend reports whether t falls on a Saturday or Sunday.
func (c Calendar) IsWeekend(t time.Time) bool {
	switch t.In(c.loc).Weekday() {
	case time.Saturday, time.Sunday:
		return true
	case time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday:
		return false
	default:
		return false
	}
}

// IsAfterUnlockTime reports whether the local clock of t is at or past the unlock hour.
func (c Calendar) IsAfterUnlockTime(t time.Time) bool {
	return t.In(c.loc).Hour() >= c.unlockHour
}

// WeekdayOffset counts the weekday dates d with from <= d < to.
//
// Both instants are reduced to civil dates first. The result is negative when to precedes from.
func (c Calendar) WeekdayOffset(from, to time.Time) int {
	start, end := c.Date(from), c.Date(to)
	if end.Before(start) {
		return -c.WeekdayOffset(to, from)
	}

	days := c.daysBetween(start, end)
	weeks, rest := days/7, days%7 //nolint:mnd // days in a week
	count := weeks * 5            //nolint:mnd // weekdays in a week
	d := start
	for range rest {
		if !c.IsWeekend(d) {
			count++
		}
		d = d.AddDate(0, 0, 1)
	}
	return count
}

// daysBetween counts civil days from start to end. AddDate keeps DST transitions out of the count.
func (c Calendar) daysBetween(start, end time.Time) int {
	approx := int(end.Sub(start).Hours() / hoursPerDay)
	for start.AddDate(0, 0, approx).After(end) {
		approx--
	}
	for !start.AddDate(0, 0, approx+1).After(end) {
		approx++
	}
	return approx
}

// MostRecentWeekday returns the civil date of t, or the Friday before it when t is on a weekend.
func (c Calendar) MostRecentWeekday(t time.Time) time.Time {
	d := c.Date(t)
	for c.IsWeekend(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// PreviousWeekday returns the weekday strictly before the civil date of t.
func (c Calendar) PreviousWeekday(t time.Time) time.Time {
	return c.MostRecentWeekday(c.Date(t).AddDate(0, 0, -1))
}

// AddWeekdays moves n weekdays forward from the civil date of t, skipping weekends.
//
// A weekend t is first moved to the following Monday, so with n == 0 the result is the
// first weekday on or after t.
func (c Calendar) AddWeekdays(t time.Time, n int) time.Time {
	d := c.Date(t)
	for c.IsWeekend(d) {
		d = d.AddDate(0, 0, 1)
	}
	for n > 0 {
		d = d.AddDate(0, 0, 1)
		if !c.IsWeekend(d) {
			n--
		}
	}
	return d
}
