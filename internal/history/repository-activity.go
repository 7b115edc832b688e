package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/trainengine/internal/errors"
	"github.com/myrjola/trainengine/internal/xp"
)

// MaxActiveHabits is the number of custom habits a user may track at once.
const MaxActiveHabits = 4

// ErrHabitLimit is returned when creating a habit would exceed MaxActiveHabits.
var ErrHabitLimit = errors.NewSentinel("active habit limit reached")

// RecordWorkout appends a finished workout session and returns its id.
func (r *Repository) RecordWorkout(ctx context.Context, userID int, startedAt, completedAt time.Time) (uuid.UUID, error) {
	if completedAt.Before(startedAt) {
		return uuid.Nil, fmt.Errorf("%w: workout completed at %s before it started at %s",
			ErrInvalidEvent, completedAt.Format(time.RFC3339), startedAt.Format(time.RFC3339))
	}
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generate session id: %w", err)
	}
	if _, err = r.db.ReadWrite.ExecContext(ctx, `
		INSERT INTO workout_sessions (id, user_id, started_at, completed_at)
		VALUES (?, ?, ?, ?)`,
		id.String(), userID, formatTimestamp(startedAt), formatTimestamp(completedAt)); err != nil {
		return uuid.Nil, fmt.Errorf("insert workout session: %w", err)
	}
	r.logger.LogAttrs(ctx, slog.LevelDebug, "recorded workout",
		slog.String("sessionID", id.String()), slog.Duration("duration", completedAt.Sub(startedAt)))
	return id, nil
}

// RecordRecovery appends a completed recovery routine.
func (r *Repository) RecordRecovery(ctx context.Context, userID int, completedAt time.Time) error {
	if _, err := r.db.ReadWrite.ExecContext(ctx, `
		INSERT INTO recovery_completions (user_id, completed_at)
		VALUES (?, ?)`, userID, formatTimestamp(completedAt)); err != nil {
		return fmt.Errorf("insert recovery completion: %w", err)
	}
	return nil
}

// CreateHabit adds an active custom habit and returns its id.
func (r *Repository) CreateHabit(ctx context.Context, userID int, name string, createdAt time.Time) (int, error) {
	var id int
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var active int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM habits
			WHERE user_id = ? AND archived_at IS NULL`, userID).Scan(&active); err != nil {
			return fmt.Errorf("count active habits: %w", err)
		}
		if active >= MaxActiveHabits {
			return fmt.Errorf("%w: %d active habits", ErrHabitLimit, active)
		}
		if err := tx.QueryRowContext(ctx, `
			INSERT INTO habits (user_id, name, created_at)
			VALUES (?, ?, ?)
			RETURNING id`, userID, name, formatTimestamp(createdAt)).Scan(&id); err != nil {
			return fmt.Errorf("insert habit: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ArchiveHabit deactivates a habit. Its logs are kept but no longer count.
func (r *Repository) ArchiveHabit(ctx context.Context, userID, habitID int, archivedAt time.Time) error {
	res, err := r.db.ReadWrite.ExecContext(ctx, `
		UPDATE habits
		SET archived_at = ?
		WHERE id = ? AND user_id = ? AND archived_at IS NULL`, formatTimestamp(archivedAt), habitID, userID)
	if err != nil {
		return fmt.Errorf("archive habit %d: %w", habitID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("active habit %d: %w", habitID, ErrNotFound)
	}
	return nil
}

// LogHabit marks an active habit done on the civil date of date. Logging the same date twice is a no-op.
func (r *Repository) LogHabit(ctx context.Context, userID, habitID int, date time.Time) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		var active int
		if err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM habits
			WHERE id = ? AND user_id = ? AND archived_at IS NULL`, habitID, userID).Scan(&active); err != nil {
			return fmt.Errorf("query habit: %w", err)
		}
		if active == 0 {
			return fmt.Errorf("active habit %d: %w", habitID, ErrNotFound)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO habit_logs (habit_id, log_date)
			VALUES (?, ?)
			ON CONFLICT (habit_id, log_date) DO NOTHING`, habitID, formatDate(date)); err != nil {
			return fmt.Errorf("insert habit log: %w", err)
		}
		return nil
	})
}

// History returns everything userID did that can earn XP.
func (r *Repository) History(ctx context.Context, userID int) (xp.History, error) {
	var (
		h   xp.History
		err error
	)
	if h.Workouts, err = r.workouts(ctx, userID); err != nil {
		return xp.History{}, err
	}
	var recoveries []time.Time
	if recoveries, err = r.queryTimestamps(ctx, `
		SELECT completed_at
		FROM recovery_completions
		WHERE user_id = ?
		ORDER BY completed_at`, userID); err != nil {
		return xp.History{}, fmt.Errorf("query recovery completions: %w", err)
	}
	for _, t := range recoveries {
		h.Recoveries = append(h.Recoveries, xp.RecoveryCompletion{CompletedAt: t})
	}
	if h.HabitLogs, err = r.habitLogs(ctx, userID); err != nil {
		return xp.History{}, err
	}
	if h.ActiveHabits, err = r.activeHabits(ctx, userID); err != nil {
		return xp.History{}, err
	}
	return h, nil
}

func (r *Repository) workouts(ctx context.Context, userID int) (_ []xp.WorkoutSession, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT id, started_at, completed_at
		FROM workout_sessions
		WHERE user_id = ?
		ORDER BY completed_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("query workout sessions: %w", err)
	}
	defer closeRows(rows, &err)

	var sessions []xp.WorkoutSession
	for rows.Next() {
		var (
			s                  xp.WorkoutSession
			started, completed string
		)
		if err = rows.Scan(&s.ID, &started, &completed); err != nil {
			return nil, fmt.Errorf("scan workout session: %w", err)
		}
		if s.StartedAt, err = parseTimestamp(started); err != nil {
			return nil, err
		}
		if s.CompletedAt, err = parseTimestamp(completed); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workout sessions: %w", err)
	}
	return sessions, nil
}

// habitLogs returns the logs of every habit of the user, archived ones included.
func (r *Repository) habitLogs(ctx context.Context, userID int) (_ []xp.HabitLog, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT l.habit_id, l.log_date
		FROM habit_logs l
		JOIN habits h ON h.id = l.habit_id
		WHERE h.user_id = ?
		ORDER BY l.log_date, l.habit_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query habit logs: %w", err)
	}
	defer closeRows(rows, &err)

	var logs []xp.HabitLog
	for rows.Next() {
		var (
			l   xp.HabitLog
			raw string
		)
		if err = rows.Scan(&l.HabitID, &raw); err != nil {
			return nil, fmt.Errorf("scan habit log: %w", err)
		}
		if l.Date, err = time.Parse(time.DateOnly, raw); err != nil {
			return nil, fmt.Errorf("parse habit log date %q: %w", raw, err)
		}
		logs = append(logs, l)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate habit logs: %w", err)
	}
	return logs, nil
}

func (r *Repository) activeHabits(ctx context.Context, userID int) (_ []int, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, `
		SELECT id
		FROM habits
		WHERE user_id = ? AND archived_at IS NULL
		ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query active habits: %w", err)
	}
	defer closeRows(rows, &err)

	var ids []int
	for rows.Next() {
		var id int
		if err = rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan habit id: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active habits: %w", err)
	}
	return ids, nil
}
