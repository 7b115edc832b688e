// Package engine recomputes a user's training state from the activity log and applies feedback
// through the progression rules.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/myrjola/trainengine/internal/adjustment"
	"github.com/myrjola/trainengine/internal/calendar"
	"github.com/myrjola/trainengine/internal/logging"
	"github.com/myrjola/trainengine/internal/program"
	"github.com/myrjola/trainengine/internal/progression"
	"github.com/myrjola/trainengine/internal/ptr"
	"github.com/myrjola/trainengine/internal/xp"
	"golang.org/x/sync/errgroup"
)

// HistoryReader returns the activity that earns XP.
type HistoryReader interface {
	History(ctx context.Context, userID int) (xp.History, error)
}

// CompletionReader returns the program day completions.
type CompletionReader interface {
	DayCompletions(ctx context.Context, userID int) ([]program.Completion, error)
}

// AnchorReader returns when the program was started. The boolean is false when it has not been.
type AnchorReader interface {
	ProgramAnchor(ctx context.Context, userID int) (time.Time, bool, error)
}

// DayCompleter appends program day completions. checkFn runs in the same transaction as the append
// and vetoes it by returning an error.
type DayCompleter interface {
	RecordDayCompletion(
		ctx context.Context,
		userID, dayNumber int,
		completedAt time.Time,
		checkFn func(anchor time.Time, completions []program.Completion) error,
	) error
}

// ExerciseStore holds the working weights that feedback updates.
type ExerciseStore interface {
	GetExerciseState(ctx context.Context, userID int, exerciseKey string) (progression.ExerciseState, error)
	UpdateExerciseState(
		ctx context.Context,
		userID int,
		exerciseKey string,
		at time.Time,
		updateFn func(state *progression.ExerciseState) (bool, error),
	) error
}

// Store is everything the Service reads and writes.
type Store interface {
	HistoryReader
	CompletionReader
	AnchorReader
	DayCompleter
	ExerciseStore
}

// Snapshot is the derived state of a user at one instant.
type Snapshot struct {
	UserID  int
	At      time.Time
	Program program.State
	XP      xp.State
}

// Service wires the store to the pure calculators.
type Service struct {
	store      Store
	cal        calendar.Calendar
	clock      calendar.Clock
	calculator *progression.Calculator
	logger     *slog.Logger
}

// NewService creates a Service.
func NewService(
	logger *slog.Logger,
	store Store,
	cal calendar.Calendar,
	clock calendar.Clock,
	calculator *progression.Calculator,
) *Service {
	return &Service{
		store:      store,
		cal:        cal,
		clock:      clock,
		calculator: calculator,
		logger:     logger,
	}
}

// Snapshot recomputes the program and XP state of userID from the activity visible right now.
func (s *Service) Snapshot(ctx context.Context, userID int) (Snapshot, error) {
	ctx = logging.WithUser(ctx, userID)
	now := s.clock.Now()

	var (
		history     xp.History
		completions []program.Completion
		anchor      time.Time
		started     bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if history, err = s.store.History(gctx, userID); err != nil {
			return fmt.Errorf("read history: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if completions, err = s.store.DayCompletions(gctx, userID); err != nil {
			return fmt.Errorf("read day completions: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if anchor, started, err = s.store.ProgramAnchor(gctx, userID); err != nil {
			return fmt.Errorf("read program anchor: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	var anchorRef *time.Time
	if started {
		anchorRef = ptr.Ref(anchor)
	}
	programState, err := program.Resolve(s.cal, anchorRef, completions, now)
	if err != nil {
		return Snapshot{}, fmt.Errorf("resolve program: %w", err)
	}
	xpState := xp.Compute(s.cal, history)

	s.logger.LogAttrs(ctx, slog.LevelDebug, "recomputed snapshot",
		slog.Int("cycle", programState.Cycle.CurrentCycleNumber),
		slog.Int("day", programState.Cycle.DayInCycle),
		slog.Bool("unlocked", programState.Current.IsUnlocked),
		slog.Int("streak", programState.Streak),
		slog.Int("totalXP", xpState.TotalXP),
		slog.Int("level", xpState.Level))

	return Snapshot{
		UserID:  userID,
		At:      now,
		Program: programState,
		XP:      xpState,
	}, nil
}

// CompleteDay records that userID finished dayNumber of the current cycle now. Days that have not
// unlocked yet are rejected with program.ErrDayLocked.
func (s *Service) CompleteDay(ctx context.Context, userID, dayNumber int) error {
	ctx = logging.WithUser(ctx, userID)
	now := s.clock.Now()
	err := s.store.RecordDayCompletion(ctx, userID, dayNumber, now,
		func(anchor time.Time, completions []program.Completion) error {
			return program.CheckCompletion(s.cal, &anchor, completions, dayNumber, now)
		})
	if err != nil {
		return fmt.Errorf("complete day %d: %w", dayNumber, err)
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "completed program day", slog.Int("day", dayNumber))
	return nil
}

// ApplyFeedback moves the working weight of exerciseKey according to feedback and returns the decision.
func (s *Service) ApplyFeedback(
	ctx context.Context,
	userID int,
	exerciseKey string,
	feedback progression.Feedback,
) (progression.Result, error) {
	ctx = logging.WithUser(ctx, userID)
	var result progression.Result
	err := s.store.UpdateExerciseState(ctx, userID, exerciseKey, s.clock.Now(),
		func(state *progression.ExerciseState) (bool, error) {
			var err error
			result, err = s.calculator.Calculate(progression.Input{
				Feedback:      feedback,
				CurrentWeight: state.CurrentWeight,
				Category:      state.Category,
				ExerciseKey:   state.ExerciseKey,
			})
			if err != nil {
				return false, fmt.Errorf("calculate progression: %w", err)
			}
			*state = state.Apply(result)
			return result.Change != 0, nil
		})
	if err != nil {
		return progression.Result{}, fmt.Errorf("apply feedback to %s: %w", exerciseKey, err)
	}

	s.logger.LogAttrs(ctx, slog.LevelInfo, "applied feedback",
		slog.String("exerciseKey", exerciseKey),
		slog.String("feedback", string(feedback)),
		slog.String("direction", string(result.Direction)),
		slog.Float64("newWeight", result.NewWeight))
	return result, nil
}

// PreviewEffort estimates the next weight of exerciseKey from RPE and RIR without persisting it.
func (s *Service) PreviewEffort(
	ctx context.Context,
	userID int,
	exerciseKey string,
	rpe, rir int,
) (progression.Estimate, error) {
	ctx = logging.WithUser(ctx, userID)
	state, err := s.store.GetExerciseState(ctx, userID, exerciseKey)
	if err != nil {
		return progression.Estimate{}, fmt.Errorf("get exercise state %s: %w", exerciseKey, err)
	}
	estimate, err := progression.EstimateFromEffort(rpe, rir, state.CurrentWeight)
	if err != nil {
		return progression.Estimate{}, fmt.Errorf("estimate from effort: %w", err)
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "previewed effort",
		slog.String("exerciseKey", exerciseKey),
		slog.String("feedback", string(estimate.Feedback)),
		slog.Float64("newWeight", estimate.NewWeight))
	return estimate, nil
}

// AdjustWorkout turns the post-workout survey of userID into multipliers for the next session.
func (s *Service) AdjustWorkout(
	ctx context.Context,
	userID int,
	survey adjustment.Survey,
) (adjustment.Adjustment, error) {
	ctx = logging.WithUser(ctx, userID)
	adj, err := adjustment.Calculate(survey)
	if err != nil {
		return adjustment.Adjustment{}, fmt.Errorf("calculate adjustment: %w", err)
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "adjusted workout",
		slog.Float64("volume", adj.VolumeMultiplier),
		slog.Float64("intensity", adj.IntensityMultiplier),
		slog.Int("rules", len(adj.Recommendations)))
	return adj, nil
}
