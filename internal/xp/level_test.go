package xp_test

import (
	"math"
	"testing"
	"time"

	"github.com/myrjola/trainengine/internal/xp"
)

func TestRequiredXP(t *testing.T) {
	t.Parallel()
	tests := []struct {
		level int
		want  int
	}{
		{level: 0, want: 0},
		{level: 1, want: 0},
		{level: 2, want: 15},
		{level: 3, want: 30},
		{level: 4, want: 46},
		{level: 10, want: 170},
		{level: 27, want: 796},
		{level: 71, want: 4881},
		{level: 99, want: 9730},
		{level: 120, want: 9730},
	}
	for _, tt := range tests {
		if got := xp.RequiredXP(tt.level); got != tt.want {
			t.Errorf("RequiredXP(%d) = %d, want %d", tt.level, got, tt.want)
		}
	}
}

func TestLevelFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		total int
		want  int
	}{
		{total: 0, want: 1},
		{total: 14, want: 1},
		{total: 15, want: 2},
		{total: 45, want: 3},
		{total: 46, want: 4},
		{total: 4999, want: 71},
		// The raw curve only reaches level 71 at the ceiling.
		{total: 5000, want: 99},
	}
	for _, tt := range tests {
		if got := xp.LevelFor(tt.total); got != tt.want {
			t.Errorf("LevelFor(%d) = %d, want %d", tt.total, got, tt.want)
		}
	}
}

func TestLevelFor_Monotonic(t *testing.T) {
	t.Parallel()
	prev := xp.LevelFor(0)
	for total := 1; total <= xp.MaxTotalXP; total++ {
		level := xp.LevelFor(total)
		if level < prev {
			t.Fatalf("LevelFor(%d) = %d, lower than %d", total, level, prev)
		}
		if xp.RequiredXP(level) > total && total < xp.MaxTotalXP {
			t.Fatalf("LevelFor(%d) = %d requires %d", total, level, xp.RequiredXP(level))
		}
		prev = level
	}
}

func TestTierFor(t *testing.T) {
	t.Parallel()
	tests := []struct {
		level int
		want  xp.Tier
	}{
		{level: 1, want: xp.TierRookie},
		{level: 9, want: xp.TierRookie},
		{level: 10, want: xp.TierBronze},
		{level: 24, want: xp.TierBronze},
		{level: 25, want: xp.TierSilver},
		{level: 40, want: xp.TierGold},
		{level: 55, want: xp.TierPlatinum},
		{level: 69, want: xp.TierPlatinum},
		{level: 70, want: xp.TierDiamond},
		{level: 84, want: xp.TierDiamond},
		{level: 85, want: xp.TierLegend},
		{level: 99, want: xp.TierLegend},
	}
	for _, tt := range tests {
		if got := xp.TierFor(tt.level); got != tt.want {
			t.Errorf("TierFor(%d) = %s, want %s", tt.level, got, tt.want)
		}
	}
}

func TestCompute_Progress(t *testing.T) {
	t.Parallel()
	cal := newCalendar(t)
	morning := time.Date(2026, time.October, 13, 9, 0, 0, 0, cal.Location())
	// One 45 XP day: level 3 spans 30 to 46.
	got := xp.Compute(cal, xp.History{
		Workouts:   []xp.WorkoutSession{workout(morning, 10*time.Minute)},
		Recoveries: []xp.RecoveryCompletion{{CompletedAt: morning.Add(time.Hour)}},
	})
	if got.Level != 3 || got.CurrentLevelXP != 30 || got.NextLevelXP != 46 {
		t.Fatalf("got level %d spanning %d-%d, want 3 spanning 30-46", got.Level, got.CurrentLevelXP, got.NextLevelXP)
	}
	if math.Abs(got.ProgressPercent-93.75) > 1e-9 {
		t.Errorf("ProgressPercent = %v, want 93.75", got.ProgressPercent)
	}
}
