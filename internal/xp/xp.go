// Package xp derives experience points, level and tier from a user's activity history.
//
// Nothing is stored: the state is recomputed from the append-only history on every call, so the
// same history always yields the same state.
package xp

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/trainengine/internal/calendar"
)

// Award rules.
const (
	WorkoutXP          = 30
	RecoveryXP         = 15
	HabitBonusXP       = 5
	DailyCapXP         = 60
	MaxTotalXP         = 5000
	MinWorkoutDuration = 8 * time.Minute
	// HabitBonusCount is the exact number of active habits that earns the habit bonus.
	HabitBonusCount = 4
)

// WorkoutSession is a finished training session.
type WorkoutSession struct {
	ID          uuid.UUID
	StartedAt   time.Time
	CompletedAt time.Time
}

// Duration returns the session length.
func (w WorkoutSession) Duration() time.Duration {
	return w.CompletedAt.Sub(w.StartedAt)
}

// RecoveryCompletion is one completed recovery routine.
type RecoveryCompletion struct {
	CompletedAt time.Time
}

// HabitLog marks a custom habit as done on a civil date. Only the year, month and day of Date are used.
type HabitLog struct {
	HabitID int
	Date    time.Time
}

// History is everything a user did that can earn XP.
type History struct {
	Workouts   []WorkoutSession
	Recoveries []RecoveryCompletion
	HabitLogs  []HabitLog
	// ActiveHabits are the ids of the user's currently active custom habits.
	ActiveHabits []int
}

// DaySummary is the XP earned on one civil date.
type DaySummary struct {
	Date            time.Time
	Workouts        int
	RecoveryDone    bool
	HabitsCompleted bool
	// Subtotal is the XP before the daily cap, Awarded after it.
	Subtotal int
	Awarded  int
}

// State is the derived progression of a user.
type State struct {
	TotalXP         int
	Level           int
	Tier            Tier
	ProgressPercent float64
	// CurrentLevelXP and NextLevelXP are the cumulative requirements bracketing TotalXP.
	// Both equal TotalXP at the max level.
	CurrentLevelXP int
	NextLevelXP    int
	Days           []DaySummary
}

// Compute derives the XP state from h, grouping activity by civil date in the calendar zone.
func Compute(cal calendar.Calendar, h History) State {
	days := make(map[string]*DaySummary)
	habitsLogged := make(map[string]map[int]struct{})
	day := func(date time.Time) *DaySummary {
		key := date.Format(time.DateOnly)
		if d, ok := days[key]; ok {
			return d
		}
		d := &DaySummary{
			Date:            date,
			Workouts:        0,
			RecoveryDone:    false,
			HabitsCompleted: false,
			Subtotal:        0,
			Awarded:         0,
		}
		days[key] = d
		habitsLogged[key] = make(map[int]struct{})
		return d
	}

	for _, w := range h.Workouts {
		if w.Duration() < MinWorkoutDuration {
			continue
		}
		day(cal.Date(w.CompletedAt)).Workouts++
	}
	for _, r := range h.Recoveries {
		day(cal.Date(r.CompletedAt)).RecoveryDone = true
	}

	active := make(map[int]struct{}, len(h.ActiveHabits))
	for _, id := range h.ActiveHabits {
		active[id] = struct{}{}
	}
	if len(active) == HabitBonusCount {
		for _, l := range h.HabitLogs {
			if _, ok := active[l.HabitID]; !ok {
				continue
			}
			date := time.Date(l.Date.Year(), l.Date.Month(), l.Date.Day(), 0, 0, 0, 0, cal.Location())
			day(date)
			habitsLogged[date.Format(time.DateOnly)][l.HabitID] = struct{}{}
		}
	}

	state := State{
		TotalXP:         0,
		Level:           MinLevel,
		Tier:            TierRookie,
		ProgressPercent: 0,
		CurrentLevelXP:  0,
		NextLevelXP:     0,
		Days:            make([]DaySummary, 0, len(days)),
	}
	for key, d := range days {
		d.HabitsCompleted = len(habitsLogged[key]) == HabitBonusCount
		d.Subtotal = d.Workouts * WorkoutXP
		if d.RecoveryDone {
			d.Subtotal += RecoveryXP
		}
		if d.HabitsCompleted {
			d.Subtotal += HabitBonusXP
		}
		d.Awarded = min(d.Subtotal, DailyCapXP)
		state.TotalXP += d.Awarded
		state.Days = append(state.Days, *d)
	}
	slices.SortFunc(state.Days, func(a, b DaySummary) int {
		return a.Date.Compare(b.Date)
	})

	state.TotalXP = min(state.TotalXP, MaxTotalXP)
	state.Level = LevelFor(state.TotalXP)
	state.Tier = TierFor(state.Level)
	state.CurrentLevelXP, state.NextLevelXP, state.ProgressPercent = progress(state.TotalXP, state.Level)
	return state
}
