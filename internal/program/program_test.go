package program_test

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/trainengine/internal/calendar"
	"github.com/myrjola/trainengine/internal/program"
	"github.com/myrjola/trainengine/internal/ptr"
)

func newCalendar(t *testing.T) calendar.Calendar {
	t.Helper()
	cal, err := calendar.Load("America/New_York", 5)
	if err != nil {
		t.Fatalf("load calendar: %v", err)
	}
	return cal
}

func at(cal calendar.Calendar, month time.Month, day, hour int) time.Time {
	return time.Date(2026, month, day, hour, 0, 0, 0, cal.Location())
}

// unlockedDays returns the day numbers that are unlocked.
func unlockedDays(s program.State) []int {
	var days []int
	for _, d := range s.Days {
		if d.IsUnlocked {
			days = append(days, d.DayNumber)
		}
	}
	return days
}

func TestResolve(t *testing.T) {
	t.Parallel()
	cal := newCalendar(t)
	monday := at(cal, time.October, 12, 0)

	tests := []struct {
		name         string
		anchor       *time.Time
		completions  []program.Completion
		now          time.Time
		wantCycle    int
		wantCurrent  int
		wantUnlocked []int
		wantRestDay  bool
	}{
		{
			name:         "not started",
			anchor:       nil,
			now:          at(cal, time.October, 14, 12),
			wantCycle:    0,
			wantCurrent:  1,
			wantUnlocked: nil,
		},
		{
			name:         "start day before unlock hour",
			anchor:       &monday,
			now:          at(cal, time.October, 12, 4),
			wantCurrent:  1,
			wantUnlocked: nil,
		},
		{
			name:         "start day after unlock hour",
			anchor:       &monday,
			now:          at(cal, time.October, 12, 6),
			wantCurrent:  1,
			wantUnlocked: []int{1},
		},
		{
			name:   "days due on earlier weekdays stay unlocked",
			anchor: &monday,
			completions: []program.Completion{
				{DayNumber: 1, CompletedAt: at(cal, time.October, 12, 18)},
			},
			now:          at(cal, time.October, 14, 6),
			wantCurrent:  2,
			wantUnlocked: []int{1, 2, 3},
		},
		{
			name:         "weekend hosts no transition",
			anchor:       &monday,
			now:          at(cal, time.October, 17, 10),
			wantCurrent:  1,
			wantUnlocked: []int{1, 2, 3, 4, 5},
			wantRestDay:  true,
		},
		{
			name:         "monday after weekend",
			anchor:       &monday,
			now:          at(cal, time.October, 19, 7),
			wantCurrent:  1,
			wantUnlocked: []int{1, 2, 3, 4, 5, 6},
		},
		{
			name:         "weekend anchor waits for monday",
			anchor:       ptr.Ref(at(cal, time.October, 17, 9)),
			now:          at(cal, time.October, 18, 12),
			wantCurrent:  1,
			wantUnlocked: nil,
			wantRestDay:  true,
		},
		{
			name:   "duplicate completions count once",
			anchor: &monday,
			completions: []program.Completion{
				{DayNumber: 1, CompletedAt: at(cal, time.October, 12, 8)},
				{DayNumber: 1, CompletedAt: at(cal, time.October, 12, 9)},
			},
			now:          at(cal, time.October, 12, 10),
			wantCurrent:  2,
			wantUnlocked: []int{1},
		},
		{
			name:         "anchor in the future",
			anchor:       ptr.Ref(at(cal, time.October, 26, 0)),
			now:          at(cal, time.October, 20, 12),
			wantCurrent:  1,
			wantUnlocked: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := program.Resolve(cal, tt.anchor, tt.completions, tt.now)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got.Started != (tt.anchor != nil) {
				t.Errorf("Started = %v, want %v", got.Started, tt.anchor != nil)
			}
			if got.Cycle.CurrentCycleNumber != tt.wantCycle {
				t.Errorf("CurrentCycleNumber = %d, want %d", got.Cycle.CurrentCycleNumber, tt.wantCycle)
			}
			if got.Cycle.DayInCycle != tt.wantCurrent || got.Current.DayNumber != tt.wantCurrent {
				t.Errorf("current day = %d/%d, want %d", got.Cycle.DayInCycle, got.Current.DayNumber, tt.wantCurrent)
			}
			if diff := cmp.Diff(tt.wantUnlocked, unlockedDays(got)); diff != "" {
				t.Errorf("unlocked days mismatch (-want +got):\n%s", diff)
			}
			if got.RestDay != tt.wantRestDay {
				t.Errorf("RestDay = %v, want %v", got.RestDay, tt.wantRestDay)
			}
			if len(got.Days) != program.CycleLengthDays {
				t.Errorf("len(Days) = %d, want %d", len(got.Days), program.CycleLengthDays)
			}
		})
	}
}

func TestResolve_NoHistoryDefaults(t *testing.T) {
	t.Parallel()
	cal := newCalendar(t)
	got, err := program.Resolve(cal, nil, nil, at(cal, time.October, 15, 12))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	want := program.DayRecord{
		DayNumber: 1, CalendarDate: time.Time{}, IsWeekend: false, IsUnlocked: false, IsCompleted: false,
	}
	if diff := cmp.Diff(want, got.Current); diff != "" {
		t.Errorf("Current mismatch (-want +got):\n%s", diff)
	}
	if got.Streak != 0 || !got.UnlocksAt.IsZero() {
		t.Errorf("Streak = %d, UnlocksAt = %v, want zero values", got.Streak, got.UnlocksAt)
	}
}

func TestResolve_UnlocksAt(t *testing.T) {
	t.Parallel()
	cal := newCalendar(t)
	monday := at(cal, time.October, 12, 0)
	completions := []program.Completion{
		{DayNumber: 1, CompletedAt: at(cal, time.October, 16, 7)},
		{DayNumber: 2, CompletedAt: at(cal, time.October, 16, 7)},
		{DayNumber: 3, CompletedAt: at(cal, time.October, 16, 8)},
		{DayNumber: 4, CompletedAt: at(cal, time.October, 16, 8)},
		{DayNumber: 5, CompletedAt: at(cal, time.October, 16, 9)},
	}
	got, err := program.Resolve(cal, &monday, completions, at(cal, time.October, 17, 12))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Current.DayNumber != 6 || got.Current.IsUnlocked {
		t.Fatalf("Current = %+v, want locked day 6", got.Current)
	}
	if want := at(cal, time.October, 19, 0); !got.Current.CalendarDate.Equal(want) {
		t.Errorf("CalendarDate = %v, want %v", got.Current.CalendarDate, want)
	}
	if want := at(cal, time.October, 19, 5); !got.UnlocksAt.Equal(want) {
		t.Errorf("UnlocksAt = %v, want %v", got.UnlocksAt, want)
	}
}

// A completed day remains unlocked even when the clock moves back before the unlock hour.
func TestResolve_CompletedDayIsStickyUnlocked(t *testing.T) {
	t.Parallel()
	cal := newCalendar(t)
	monday := at(cal, time.October, 12, 0)
	completions := []program.Completion{{DayNumber: 1, CompletedAt: at(cal, time.October, 12, 6)}}

	for _, now := range []time.Time{at(cal, time.October, 12, 7), at(cal, time.October, 12, 3), monday} {
		got, err := program.Resolve(cal, &monday, completions, now)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		first := got.Days[0]
		if !first.IsCompleted || !first.IsUnlocked {
			t.Errorf("at %v day 1 = %+v, want completed and unlocked", now, first)
		}
	}
}

func TestResolve_CycleWraparound(t *testing.T) {
	t.Parallel()
	cal := newCalendar(t)
	monday := at(cal, time.October, 12, 0)

	var completions []program.Completion
	for i := range program.CycleLengthDays {
		completions = append(completions, program.Completion{
			DayNumber:   i + 1,
			CompletedAt: cal.AddWeekdays(monday, i).Add(7 * time.Hour),
		})
	}
	nextWeekday := cal.AddWeekdays(monday, program.CycleLengthDays)

	got, err := program.Resolve(cal, &monday, completions, nextWeekday.Add(6*time.Hour))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Cycle.CurrentCycleNumber != 1 || got.Cycle.DayInCycle != 1 {
		t.Fatalf("Cycle = %+v, want cycle 1 day 1", got.Cycle)
	}
	if !got.Current.IsUnlocked || got.Current.IsCompleted {
		t.Errorf("Current = %+v, want unlocked and not completed", got.Current)
	}
	if !got.Current.CalendarDate.Equal(nextWeekday) {
		t.Errorf("CalendarDate = %v, want %v", got.Current.CalendarDate, nextWeekday)
	}
	if got.Streak != 0 {
		t.Errorf("Streak = %d, want 0 before today's session", got.Streak)
	}

	// Completing day 1 of the new cycle continues the streak of the previous cycle.
	completions = append(completions, program.Completion{DayNumber: 1, CompletedAt: nextWeekday.Add(8 * time.Hour)})
	got, err = program.Resolve(cal, &monday, completions, nextWeekday.Add(9*time.Hour))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Cycle.DayInCycle != 2 || got.Streak != program.CycleLengthDays+1 {
		t.Errorf("DayInCycle = %d, Streak = %d, want 2 and %d", got.Cycle.DayInCycle, got.Streak, program.CycleLengthDays+1)
	}
}

func TestResolve_InvalidDay(t *testing.T) {
	t.Parallel()
	cal := newCalendar(t)
	monday := at(cal, time.October, 12, 0)
	for _, day := range []int{0, -1, program.CycleLengthDays + 1} {
		_, err := program.Resolve(cal, &monday, []program.Completion{
			{DayNumber: day, CompletedAt: monday.Add(8 * time.Hour)},
		}, monday.Add(9*time.Hour))
		if !errors.Is(err, program.ErrInvalidDay) {
			t.Errorf("day %d: error = %v, want ErrInvalidDay", day, err)
		}
	}
}

// Completions logged before their day unlocked do not advance the program.
func TestResolve_IgnoresCompletionsOfLockedDays(t *testing.T) {
	t.Parallel()
	cal := newCalendar(t)
	monday := at(cal, time.October, 12, 9)
	completions := []program.Completion{
		{DayNumber: 20, CompletedAt: at(cal, time.October, 12, 10)},
		{DayNumber: 2, CompletedAt: at(cal, time.October, 12, 10)},
		{DayNumber: 1, CompletedAt: at(cal, time.October, 12, 4)},
	}

	got, err := program.Resolve(cal, &monday, completions, at(cal, time.October, 12, 11))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Cycle.CurrentCycleNumber != 0 || got.Cycle.DayInCycle != 1 {
		t.Errorf("Cycle = %+v, want cycle 0 day 1", got.Cycle)
	}
	for _, d := range got.Days {
		if d.IsCompleted {
			t.Errorf("day %d completed, want no completed days", d.DayNumber)
		}
	}
	if got.Streak != 0 {
		t.Errorf("Streak = %d, want 0", got.Streak)
	}

	// The same day 2 completion counts once it is logged after Tuesday's unlock.
	completions = append(completions,
		program.Completion{DayNumber: 1, CompletedAt: at(cal, time.October, 12, 12)},
		program.Completion{DayNumber: 2, CompletedAt: at(cal, time.October, 13, 6)},
	)
	got, err = program.Resolve(cal, &monday, completions, at(cal, time.October, 13, 7))
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Cycle.DayInCycle != 3 || got.Days[19].IsCompleted {
		t.Errorf("DayInCycle = %d, day 20 completed = %v, want 3 and false", got.Cycle.DayInCycle, got.Days[19].IsCompleted)
	}
}

func TestCheckCompletion(t *testing.T) {
	t.Parallel()
	cal := newCalendar(t)
	monday := at(cal, time.October, 12, 9)
	dayOne := []program.Completion{{DayNumber: 1, CompletedAt: at(cal, time.October, 12, 10)}}

	tests := []struct {
		name        string
		anchor      *time.Time
		completions []program.Completion
		day         int
		at          time.Time
		wantErr     error
	}{
		{name: "today's day", anchor: &monday, day: 1, at: at(cal, time.October, 12, 10)},
		{name: "last day on the start day", anchor: &monday, day: 20, at: at(cal, time.October, 12, 10), wantErr: program.ErrDayLocked},
		{name: "tomorrow's day", anchor: &monday, completions: dayOne, day: 2, at: at(cal, time.October, 12, 11), wantErr: program.ErrDayLocked},
		{name: "before the unlock hour", anchor: &monday, completions: dayOne, day: 2, at: at(cal, time.October, 13, 4), wantErr: program.ErrDayLocked},
		{name: "after the unlock hour", anchor: &monday, completions: dayOne, day: 2, at: at(cal, time.October, 13, 5)},
		{name: "catching up on a missed day", anchor: &monday, day: 1, at: at(cal, time.October, 14, 20)},
		{name: "weekend unlocks nothing new", anchor: &monday, day: 6, at: at(cal, time.October, 17, 12), wantErr: program.ErrDayLocked},
		{name: "repeating a completed day", anchor: &monday, completions: dayOne, day: 1, at: at(cal, time.October, 12, 11)},
		{name: "not started", anchor: nil, day: 1, at: at(cal, time.October, 12, 10), wantErr: program.ErrDayLocked},
		{name: "day outside the cycle", anchor: &monday, day: 21, at: at(cal, time.October, 12, 10), wantErr: program.ErrInvalidDay},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := program.CheckCompletion(cal, tt.anchor, tt.completions, tt.day, tt.at)
			if tt.wantErr == nil && err != nil {
				t.Errorf("CheckCompletion() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("CheckCompletion() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
