// Package program derives the unlock, completion and streak state of a repeating training program
// from its start reference and the append-only log of day completions.
//
// A program is a sequence of 20-day cycles played on weekdays only. Day N of cycle C is due on the
// (C*20 + N)th weekday counted from the start reference and unlocks at the unlock hour of that
// weekday. Weekends never consume a day number; they offer a mindfulness session instead.
package program

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/myrjola/trainengine/internal/calendar"
)

// CycleLengthDays is the number of weekday sessions in one cycle.
const CycleLengthDays = 20

var (
	// ErrInvalidDay is returned for completions of day numbers outside the cycle.
	ErrInvalidDay = errors.New("invalid program day")
	// ErrDayLocked is returned when completing a day that has not unlocked yet.
	ErrDayLocked = errors.New("program day is locked")
)

// Completion is one day-completion event.
type Completion struct {
	DayNumber   int
	CompletedAt time.Time
}

// Cycle locates the user within the infinitely repeating program.
type Cycle struct {
	StartReference     time.Time
	CycleLengthDays    int
	CurrentCycleNumber int
	DayInCycle         int
}

// DayRecord is the derived state of one numbered day of the current cycle.
type DayRecord struct {
	DayNumber int
	// CalendarDate is the weekday on which the day becomes due.
	CalendarDate time.Time
	IsWeekend    bool
	IsUnlocked   bool
	IsCompleted  bool
}

// State is everything derived from the completion log at one instant.
type State struct {
	Started bool
	Cycle   Cycle
	// Current is the lowest-numbered incomplete day of the current cycle.
	Current DayRecord
	Days    []DayRecord
	// RestDay is true on weekends, when the always-available mindfulness session replaces training.
	RestDay bool
	// UnlocksAt is when Current unlocks. Zero when it is already unlocked or the program has not started.
	UnlocksAt time.Time
	Streak    int
}

// Resolve derives the program state at now. A nil anchor means the program has not been started.
//
// Completions of days that had not unlocked at their CompletedAt are ignored.
func Resolve(cal calendar.Calendar, anchor *time.Time, completions []Completion, now time.Time) (State, error) {
	sched := newSchedule(cal, anchor, now)
	cycleNumber, completed, accepted, err := replay(sched, completions)
	if err != nil {
		return State{}, err
	}

	state := State{
		Started: sched.started,
		Cycle: Cycle{
			StartReference:     sched.anchor,
			CycleLengthDays:    CycleLengthDays,
			CurrentCycleNumber: cycleNumber,
			DayInCycle:         firstIncomplete(completed),
		},
		Current:   DayRecord{}, //nolint:exhaustruct // set below.
		Days:      make([]DayRecord, 0, CycleLengthDays),
		RestDay:   cal.IsWeekend(now),
		UnlocksAt: time.Time{},
		Streak:    Streak(cal, accepted, now),
	}

	for day := 1; day <= CycleLengthDays; day++ {
		index := cycleNumber*CycleLengthDays + day
		record := DayRecord{
			DayNumber:    day,
			CalendarDate: sched.dueDate(index),
			IsWeekend:    false,
			IsCompleted:  completed[day],
			// Completion is sticky: a completed day stays unlocked whatever the clock says.
			IsUnlocked: completed[day] || sched.unlocked(index),
		}
		state.Days = append(state.Days, record)
	}

	state.Current = state.Days[state.Cycle.DayInCycle-1]
	if state.Started && !state.Current.IsUnlocked {
		unlock := state.Current.CalendarDate
		state.UnlocksAt = time.Date(unlock.Year(), unlock.Month(), unlock.Day(), cal.UnlockHour(), 0, 0, 0,
			cal.Location())
	}
	return state, nil
}

// CheckCompletion reports whether dayNumber may be completed at `at`, given the completions logged
// so far. It returns ErrInvalidDay for day numbers outside the cycle and ErrDayLocked for days of
// the current cycle that are still locked, including every day of a program that has not started.
func CheckCompletion(
	cal calendar.Calendar,
	anchor *time.Time,
	completions []Completion,
	dayNumber int,
	at time.Time,
) error {
	if dayNumber < 1 || dayNumber > CycleLengthDays {
		return fmt.Errorf("%w: day %d outside 1-%d", ErrInvalidDay, dayNumber, CycleLengthDays)
	}
	state, err := Resolve(cal, anchor, completions, at)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	if !state.Days[dayNumber-1].IsUnlocked {
		return fmt.Errorf("%w: day %d of cycle %d", ErrDayLocked, dayNumber, state.Cycle.CurrentCycleNumber)
	}
	return nil
}

// replay walks the completions in time order and returns the cycle number, the completed days of
// that cycle and the times of the completions it accepted. Completing day 20 closes the cycle.
func replay(sched schedule, completions []Completion) (int, map[int]bool, []time.Time, error) {
	ordered := slices.Clone(completions)
	slices.SortStableFunc(ordered, func(a, b Completion) int {
		return a.CompletedAt.Compare(b.CompletedAt)
	})

	var (
		cycle     = 0
		completed = make(map[int]bool, CycleLengthDays)
		accepted  = make([]time.Time, 0, len(ordered))
	)
	for _, c := range ordered {
		if c.DayNumber < 1 || c.DayNumber > CycleLengthDays {
			return 0, nil, nil, fmt.Errorf("%w: day %d outside 1-%d", ErrInvalidDay, c.DayNumber, CycleLengthDays)
		}
		if !sched.at(c.CompletedAt).unlocked(cycle*CycleLengthDays + c.DayNumber) {
			continue
		}
		accepted = append(accepted, c.CompletedAt)
		if completed[c.DayNumber] {
			continue
		}
		completed[c.DayNumber] = true
		if c.DayNumber == CycleLengthDays {
			cycle++
			clear(completed)
		}
	}
	return cycle, completed, accepted, nil
}

func firstIncomplete(completed map[int]bool) int {
	for day := 1; day <= CycleLengthDays; day++ {
		if !completed[day] {
			return day
		}
	}
	// Unreachable: completing the last day starts a new cycle.
	return 1
}

// schedule answers when the day with a given absolute index is due.
type schedule struct {
	cal     calendar.Calendar
	anchor  time.Time
	started bool
	now     time.Time
	// elapsed is the number of weekdays from the anchor up to, not including, today.
	elapsed int
}

func newSchedule(cal calendar.Calendar, anchor *time.Time, now time.Time) schedule {
	if anchor == nil {
		return schedule{cal: cal, anchor: time.Time{}, started: false, now: now, elapsed: 0}
	}
	start := cal.Date(*anchor)
	return schedule{cal: cal, anchor: start, started: true, now: now, elapsed: cal.WeekdayOffset(start, now)}
}

// at returns the schedule as seen at t.
func (s schedule) at(t time.Time) schedule {
	if !s.started {
		return schedule{cal: s.cal, anchor: s.anchor, started: false, now: t, elapsed: 0}
	}
	return newSchedule(s.cal, &s.anchor, t)
}

func (s schedule) dueDate(index int) time.Time {
	if !s.started {
		return time.Time{}
	}
	return s.cal.AddWeekdays(s.anchor, index-1)
}

// unlocked reports whether the locked to unlocked transition of the day has happened.
//
// Days due on an earlier weekday transitioned in the past. The day due today transitions once the
// clock passes the unlock hour, and never on a weekend.
func (s schedule) unlocked(index int) bool {
	if !s.started {
		return false
	}
	due := s.elapsed + 1
	switch {
	case index < due:
		return true
	case index == due:
		return !s.cal.IsWeekend(s.now) && s.cal.IsAfterUnlockTime(s.now)
	default:
		return false
	}
}
