// Command stresstest fills a database with months of activity for many users and then recomputes
// their snapshots and applies feedback concurrently.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
	_ "time/tzdata"

	"github.com/myrjola/trainengine/internal/calendar"
	"github.com/myrjola/trainengine/internal/engine"
	"github.com/myrjola/trainengine/internal/envstruct"
	"github.com/myrjola/trainengine/internal/errors"
	"github.com/myrjola/trainengine/internal/flightrecorder"
	"github.com/myrjola/trainengine/internal/history"
	"github.com/myrjola/trainengine/internal/logging"
	"github.com/myrjola/trainengine/internal/program"
	"github.com/myrjola/trainengine/internal/progression"
	"github.com/myrjola/trainengine/internal/sqlite"
	"golang.org/x/sync/errgroup"
)

const (
	historyTimeout          = 5 * time.Minute
	scenarioTimeout         = 30 * time.Second
	maxConcurrentHistories  = 10
	maxConcurrentOperations = 20
	historyWeeks            = 26
	daysPerWeek             = 7
	trainingHour            = 18
	workoutDuration         = 35 * time.Minute
	successRateThreshold    = 95.0
	percentageMultiplier    = 100
)

type config struct {
	SqliteURL  string `env:"TRAINENGINE_SQLITE_URL" envDefault:":memory:"`
	Timezone   string `env:"TRAINENGINE_TIMEZONE" envDefault:"America/New_York"`
	UnlockHour int    `env:"TRAINENGINE_UNLOCK_HOUR" envDefault:"5"`
	Users      int    `env:"TRAINENGINE_STRESS_USERS" envDefault:"50"`
	// TracesDir enables the flight recorder. Scenarios slower than SlowMillis dump a trace there.
	TracesDir  string `env:"TRAINENGINE_TRACES_DIR" envDefault:""`
	SlowMillis int    `env:"TRAINENGINE_SLOW_MILLIS" envDefault:"500"`
}

// loadTest is one stress run against a single database.
type loadTest struct {
	repo     *history.Repository
	cal      calendar.Calendar
	now      time.Time
	logger   *slog.Logger
	recorder *flightrecorder.Recorder
	slow     time.Duration
}

var exercises = []progression.ExerciseState{ //nolint:gochecknoglobals // seed data
	{ExerciseKey: "barbell_back_squat", Category: progression.CategoryCompound, CurrentWeight: 60},
	{ExerciseKey: "barbell_bench_press", Category: progression.CategoryCompound, CurrentWeight: 50},
	{ExerciseKey: "dumbbell_lateral_raise", Category: progression.CategoryIsolation, CurrentWeight: 8},
}

// generateHistory records historyWeeks of weekday training ending yesterday for userID. Every
// third week skips Wednesday so that streaks break.
func (lt loadTest) generateHistory(ctx context.Context, userID int) error {
	first := lt.cal.MostRecentWeekday(lt.now.AddDate(0, 0, -historyWeeks*daysPerWeek))
	if err := lt.repo.StartProgram(ctx, userID, first); err != nil {
		return fmt.Errorf("start program: %w", err)
	}
	for _, ex := range exercises {
		if err := lt.repo.SeedExerciseState(ctx, userID, ex, first); err != nil {
			return fmt.Errorf("seed exercise: %w", err)
		}
	}
	habitID, err := lt.repo.CreateHabit(ctx, userID, "mobility", first)
	if err != nil {
		return fmt.Errorf("create habit: %w", err)
	}

	dayNumber := 1
	today := lt.cal.Date(lt.now)
	for i := 0; ; i++ {
		date := first.AddDate(0, 0, i)
		if !date.Before(today) {
			break
		}
		at := date.Add(trainingHour * time.Hour)
		if lt.cal.IsWeekend(date) {
			if err = lt.repo.RecordRecovery(ctx, userID, at); err != nil {
				return fmt.Errorf("record recovery: %w", err)
			}
			continue
		}
		if week := i / daysPerWeek; week%3 == 2 && date.Weekday() == time.Wednesday {
			continue
		}
		if _, err = lt.repo.RecordWorkout(ctx, userID, at, at.Add(workoutDuration)); err != nil {
			return fmt.Errorf("record workout: %w", err)
		}
		if err = lt.completeDay(ctx, userID, dayNumber, at.Add(workoutDuration)); err != nil {
			return fmt.Errorf("record day completion: %w", err)
		}
		if err = lt.repo.LogHabit(ctx, userID, habitID, date); err != nil {
			return fmt.Errorf("log habit: %w", err)
		}
		dayNumber = dayNumber%program.CycleLengthDays + 1
	}
	return nil
}

// completeDay logs a day completion in the past, checked against the program as it was at completedAt.
func (lt loadTest) completeDay(ctx context.Context, userID, dayNumber int, completedAt time.Time) error {
	return lt.repo.RecordDayCompletion(ctx, userID, dayNumber, completedAt,
		func(anchor time.Time, completions []program.Completion) error {
			return program.CheckCompletion(lt.cal, &anchor, completions, dayNumber, completedAt)
		})
}

// generateHistories runs generateHistory for users 1 to numUsers.
func (lt loadTest) generateHistories(ctx context.Context, numUsers int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentHistories)
	for userID := 1; userID <= numUsers; userID++ {
		g.Go(func() error {
			historyCtx, cancel := context.WithTimeout(ctx, historyTimeout)
			defer cancel()
			if err := lt.generateHistory(logging.WithUser(historyCtx, userID), userID); err != nil {
				return fmt.Errorf("user %d: %w", userID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("generate histories: %w", err)
	}
	return nil
}

// scenario recomputes the snapshot of userID and applies one round of feedback. A panic counts as a
// failed scenario.
func scenario(ctx context.Context, svc *engine.Service, userID int) (err error) {
	defer func() {
		if excp := recover(); excp != nil {
			err = errors.DecoratePanic(excp)
		}
	}()
	if _, err = svc.Snapshot(ctx, userID); err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	feedback := []progression.Feedback{
		progression.FeedbackTooEasy,
		progression.FeedbackJustRight,
		progression.FeedbackTooHard,
	}
	for i, ex := range exercises {
		if _, err = svc.ApplyFeedback(ctx, userID, ex.ExerciseKey, feedback[(userID+i)%len(feedback)]); err != nil {
			return fmt.Errorf("apply feedback: %w", err)
		}
	}
	return nil
}

// runScenarios runs scenario once per user and fails when too many of them fail.
func (lt loadTest) runScenarios(ctx context.Context, svc *engine.Service, numUsers int) error {
	var successCount, failureCount atomic.Int64

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentOperations)
	for userID := 1; userID <= numUsers; userID++ {
		g.Go(func() error {
			scenarioCtx, cancel := context.WithTimeout(ctx, scenarioTimeout)
			defer cancel()
			started := time.Now()
			err := scenario(scenarioCtx, svc, userID)
			if took := time.Since(started); lt.recorder != nil && took >= lt.slow {
				lt.recorder.CaptureSlow(scenarioCtx, "scenario", took)
			}
			if err != nil {
				failureCount.Add(1)
				lt.logger.LogAttrs(scenarioCtx, slog.LevelWarn, "scenario failed",
					slog.Int("userID", userID), errors.SlogError(err))
				return nil
			}
			successCount.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("run scenarios: %w", err)
	}

	successRate := float64(successCount.Load()) / float64(numUsers) * percentageMultiplier
	lt.logger.LogAttrs(ctx, slog.LevelInfo, "scenarios completed",
		slog.Int64("successful", successCount.Load()),
		slog.Int64("failed", failureCount.Load()),
		slog.Float64("successRate", successRate))
	if successRate < successRateThreshold {
		return fmt.Errorf("success rate %.1f%% below threshold", successRate)
	}
	return nil
}

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool)) error {
	var cfg config
	if err := envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "populate config")
	}
	if cfg.Users < 1 {
		return fmt.Errorf("need at least one user, got %d", cfg.Users)
	}
	cal, err := calendar.Load(cfg.Timezone, cfg.UnlockHour)
	if err != nil {
		return errors.Wrap(err, "load calendar")
	}

	db, err := sqlite.NewDatabase(ctx, cfg.SqliteURL, logger)
	if err != nil {
		return errors.Wrap(err, "open db", slog.String("url", cfg.SqliteURL))
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelError, "failed to close db", errors.SlogError(closeErr))
		}
	}()

	var (
		start = time.Now()
		now   = start.In(cal.Location())
		lt    = loadTest{
			repo:     history.NewRepository(db, logger),
			cal:      cal,
			now:      now,
			logger:   logger,
			recorder: nil,
			slow:     time.Duration(cfg.SlowMillis) * time.Millisecond,
		}
	)
	if cfg.TracesDir != "" {
		if lt.recorder, err = flightrecorder.New(logger, flightrecorder.Config{Directory: cfg.TracesDir}); err != nil {
			return errors.Wrap(err, "new flight recorder")
		}
		if err = lt.recorder.Start(ctx); err != nil {
			return errors.Wrap(err, "start flight recorder")
		}
		defer lt.recorder.Stop()
	}
	if err = lt.generateHistories(ctx, cfg.Users); err != nil {
		return errors.Wrap(err, "generate histories")
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "history generation completed",
		slog.Duration("duration", time.Since(start)),
		slog.Int("users", cfg.Users),
		slog.Int("weeks", historyWeeks))

	scenarioStart := time.Now()
	svc := engine.NewService(logger, lt.repo, cal, calendar.FixedClock(now),
		progression.NewCalculator(progression.DefaultIncrements()))
	if err = lt.runScenarios(ctx, svc, cfg.Users); err != nil {
		return errors.Wrap(err, "run scenarios")
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "stress test completed",
		slog.Duration("totalDuration", time.Since(start)),
		slog.Duration("scenarioDuration", time.Since(scenarioStart)))
	return nil
}

func main() {
	ctx := context.Background()
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelInfo,
		ReplaceAttr: nil,
	})))
	if err := run(ctx, logger, os.LookupEnv); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "stress test failed", errors.SlogError(err))
		os.Exit(1)
	}
}
