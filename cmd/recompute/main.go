// Command recompute prints the training state of one user, derived from the activity log.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	_ "time/tzdata"

	"github.com/myrjola/trainengine/internal/calendar"
	"github.com/myrjola/trainengine/internal/engine"
	"github.com/myrjola/trainengine/internal/envstruct"
	"github.com/myrjola/trainengine/internal/errors"
	"github.com/myrjola/trainengine/internal/history"
	"github.com/myrjola/trainengine/internal/logging"
	"github.com/myrjola/trainengine/internal/progression"
	"github.com/myrjola/trainengine/internal/sqlite"
)

type config struct {
	// SqliteURL is the URL to the SQLite database. You can use ":memory:" for an ethereal in-memory database.
	SqliteURL string `env:"TRAINENGINE_SQLITE_URL" envDefault:"./trainengine.sqlite3"`
	// Timezone is the IANA zone shared by every user.
	Timezone string `env:"TRAINENGINE_TIMEZONE" envDefault:"America/New_York"`
	// UnlockHour is the local hour at which due program days unlock.
	UnlockHour int `env:"TRAINENGINE_UNLOCK_HOUR" envDefault:"5"`
	// UnlockCopy is the user facing description of the unlock time. Keep it in sync with UnlockHour.
	UnlockCopy string `env:"TRAINENGINE_UNLOCK_COPY" envDefault:"New training days unlock at 5 AM Eastern."`
	// IncrementsPath optionally points to a TOML file overriding the minimum weight increments.
	IncrementsPath string `env:"TRAINENGINE_INCREMENTS_PATH" envDefault:""`
	// UserID selects the user to recompute.
	UserID int `env:"TRAINENGINE_USER_ID"`
	// ExportDir optionally receives a standalone SQLite copy of the user's activity log.
	ExportDir string `env:"TRAINENGINE_EXPORT_DIR" envDefault:""`
}

func loadIncrements(path string) (_ progression.Increments, err error) {
	if path == "" {
		return progression.DefaultIncrements(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return progression.Increments{}, fmt.Errorf("open increments: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close increments: %w", closeErr))
		}
	}()
	incs, err := progression.LoadIncrements(f)
	if err != nil {
		return progression.Increments{}, fmt.Errorf("load increments: %w", err)
	}
	return incs, nil
}

func run(ctx context.Context, logger *slog.Logger, lookupEnv func(string) (string, bool), out io.Writer) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	var cfg config
	if err := envstruct.Populate(&cfg, lookupEnv); err != nil {
		return errors.Wrap(err, "populate config")
	}

	cal, err := calendar.Load(cfg.Timezone, cfg.UnlockHour)
	if err != nil {
		return errors.Wrap(err, "load calendar",
			slog.String("timezone", cfg.Timezone), slog.Int("unlockHour", cfg.UnlockHour))
	}
	incs, err := loadIncrements(cfg.IncrementsPath)
	if err != nil {
		return errors.Wrap(err, "increments", slog.String("path", cfg.IncrementsPath))
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

	svc := engine.NewService(logger, history.NewRepository(db, logger), cal, calendar.SystemClock{},
		progression.NewCalculator(incs))
	snap, err := svc.Snapshot(ctx, cfg.UserID)
	if err != nil {
		return errors.Wrap(err, "snapshot", slog.Int("userID", cfg.UserID))
	}

	if err = printSnapshot(out, snap, cfg.UnlockCopy); err != nil {
		return errors.Wrap(err, "print snapshot")
	}

	if cfg.ExportDir == "" {
		return nil
	}
	path, err := db.ExportUser(ctx, cfg.UserID, cfg.ExportDir)
	if err != nil {
		return errors.Wrap(err, "export user", slog.String("dir", cfg.ExportDir))
	}
	if _, err = fmt.Fprintf(out, "export: %s\n", path); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func printSnapshot(w io.Writer, snap engine.Snapshot, unlockCopy string) error {
	p := snap.Program
	status := "locked"
	if p.Current.IsUnlocked {
		status = "unlocked"
	}
	lines := []string{
		fmt.Sprintf("user %d at %s", snap.UserID, snap.At.Format("2006-01-02 15:04 MST")),
	}
	switch {
	case !p.Started:
		lines = append(lines, "program: not started")
	case p.RestDay:
		lines = append(lines, fmt.Sprintf("program: cycle %d day %d %s, rest day: mindfulness session available",
			p.Cycle.CurrentCycleNumber, p.Cycle.DayInCycle, status))
	default:
		lines = append(lines, fmt.Sprintf("program: cycle %d day %d %s",
			p.Cycle.CurrentCycleNumber, p.Cycle.DayInCycle, status))
	}
	if !p.UnlocksAt.IsZero() {
		lines = append(lines, fmt.Sprintf("unlocks: %s (%s)", p.UnlocksAt.Format("Mon 2006-01-02 15:04 MST"), unlockCopy))
	}
	lines = append(lines,
		fmt.Sprintf("streak: %d", p.Streak),
		fmt.Sprintf("xp: %d, level %d %s, %.1f%% to next level",
			snap.XP.TotalXP, snap.XP.Level, snap.XP.Tier, snap.XP.ProgressPercent),
	)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}
	return nil
}

func main() {
	ctx := context.Background()
	loggerHandler := logging.NewContextHandler(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		AddSource:   false,
		Level:       slog.LevelInfo,
		ReplaceAttr: nil,
	}))
	logger := slog.New(loggerHandler)
	if err := run(ctx, logger, os.LookupEnv, os.Stdout); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "failure recomputing snapshot", errors.SlogError(err))
		os.Exit(1)
	}
}
