package program

import (
	"time"

	"github.com/myrjola/trainengine/internal/calendar"
)

// Streak counts consecutive weekdays with at least one completion, walking back from today.
//
// On a weekend the walk starts at the preceding Friday. Weekends are skipped, so they neither
// break nor extend a streak. A weekday without a completion, today included, ends the walk.
func Streak(cal calendar.Calendar, completions []time.Time, now time.Time) int {
	days := make(map[string]struct{}, len(completions))
	for _, c := range completions {
		days[dateKey(cal, c)] = struct{}{}
	}

	streak := 0
	for d := cal.MostRecentWeekday(now); ; d = cal.PreviousWeekday(d) {
		if _, ok := days[dateKey(cal, d)]; !ok {
			return streak
		}
		streak++
	}
}

func dateKey(cal calendar.Calendar, t time.Time) string {
	return cal.Date(t).Format(time.DateOnly)
}
