// Package history persists the append-only activity log of users in SQLite and reads it back in
// the shapes the pure calculators consume.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/myrjola/trainengine/internal/errors"
	"github.com/myrjola/trainengine/internal/sqlite"
)

const timestampFormat = "2006-01-02T15:04:05.000Z"

var (
	// ErrNotFound is returned when the requested record does not exist for the user.
	ErrNotFound = errors.NewSentinel("not found")
	// ErrInvalidEvent is returned for events that contradict themselves, such as a session ending before it started.
	ErrInvalidEvent = errors.NewSentinel("invalid event")
)

// Repository reads and appends the activity log of users.
type Repository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

// NewRepository creates a Repository on db.
func NewRepository(db *sqlite.Database, logger *slog.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampFormat)
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(timestampFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func formatDate(t time.Time) string {
	return t.Format(time.DateOnly)
}

// closeRows joins the error of closing rows into err.
func closeRows(rows *sql.Rows, err *error) {
	if closeErr := rows.Close(); closeErr != nil {
		*err = errors.Join(*err, fmt.Errorf("close rows: %w", closeErr))
	}
}

// queryTimestamps returns the single timestamp column selected by query.
func (r *Repository) queryTimestamps(ctx context.Context, query string, args ...any) (_ []time.Time, err error) {
	rows, err := r.db.ReadOnly.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer closeRows(rows, &err)

	var timestamps []time.Time
	for rows.Next() {
		var raw string
		if err = rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		var t time.Time
		if t, err = parseTimestamp(raw); err != nil {
			return nil, err
		}
		timestamps = append(timestamps, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return timestamps, nil
}
