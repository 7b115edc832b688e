package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/myrjola/trainengine/internal/errors"
	"github.com/myrjola/trainengine/internal/program"
)

// StartProgram anchors the program of userID at startedAt. Starting an already started program
// keeps the original anchor.
func (r *Repository) StartProgram(ctx context.Context, userID int, startedAt time.Time) error {
	res, err := r.db.ReadWrite.ExecContext(ctx, `
		INSERT INTO programs (user_id, started_at)
		VALUES (?, ?)
		ON CONFLICT (user_id) DO NOTHING`, userID, formatTimestamp(startedAt))
	if err != nil {
		return fmt.Errorf("insert program: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		r.logger.LogAttrs(ctx, slog.LevelInfo, "program started", slog.Time("startedAt", startedAt))
	}
	return nil
}

// ProgramAnchor returns when the program of userID was started. The boolean is false when it
// has not been started.
func (r *Repository) ProgramAnchor(ctx context.Context, userID int) (time.Time, bool, error) {
	return programAnchor(ctx, r.db.ReadOnly, userID)
}

// RecordDayCompletion appends the completion of a program day. The program must have been started.
//
// checkFn sees the anchor and the completions logged so far in the same transaction as the insert
// and vetoes the completion by returning an error.
func (r *Repository) RecordDayCompletion(
	ctx context.Context,
	userID, dayNumber int,
	completedAt time.Time,
	checkFn func(anchor time.Time, completions []program.Completion) error,
) error {
	if dayNumber < 1 || dayNumber > program.CycleLengthDays {
		return fmt.Errorf("%w: day %d", program.ErrInvalidDay, dayNumber)
	}
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		anchor, started, err := programAnchor(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !started {
			return fmt.Errorf("program of user %d: %w", userID, ErrNotFound)
		}
		completions, err := dayCompletions(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err = checkFn(anchor, completions); err != nil {
			return fmt.Errorf("check day %d: %w", dayNumber, err)
		}
		if _, err = tx.ExecContext(ctx, `
			INSERT INTO day_completions (user_id, day_number, completed_at)
			VALUES (?, ?, ?)`, userID, dayNumber, formatTimestamp(completedAt)); err != nil {
			return fmt.Errorf("insert day completion: %w", err)
		}
		return nil
	})
}

// DayCompletions returns every day completion of userID in the order they happened.
func (r *Repository) DayCompletions(ctx context.Context, userID int) ([]program.Completion, error) {
	return dayCompletions(ctx, r.db.ReadOnly, userID)
}

// querier is implemented by *sql.DB and *sql.Tx.
type querier interface {
	queryRower
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func programAnchor(ctx context.Context, q queryRower, userID int) (time.Time, bool, error) {
	var raw string
	err := q.QueryRowContext(ctx, `
		SELECT started_at
		FROM programs
		WHERE user_id = ?`, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query program anchor: %w", err)
	}
	anchor, err := parseTimestamp(raw)
	if err != nil {
		return time.Time{}, false, err
	}
	return anchor, true, nil
}

func dayCompletions(ctx context.Context, q querier, userID int) (_ []program.Completion, err error) {
	rows, err := q.QueryContext(ctx, `
		SELECT day_number, completed_at
		FROM day_completions
		WHERE user_id = ?
		ORDER BY completed_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("query day completions: %w", err)
	}
	defer closeRows(rows, &err)

	var completions []program.Completion
	for rows.Next() {
		var (
			c   program.Completion
			raw string
		)
		if err = rows.Scan(&c.DayNumber, &raw); err != nil {
			return nil, fmt.Errorf("scan day completion: %w", err)
		}
		if c.CompletedAt, err = parseTimestamp(raw); err != nil {
			return nil, err
		}
		completions = append(completions, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate day completions: %w", err)
	}
	return completions, nil
}
