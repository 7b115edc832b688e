package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/myrjola/trainengine/internal/errors"
	"github.com/myrjola/trainengine/internal/progression"
)

// SeedExerciseState creates the state of an exercise on its first logged set. An existing state is
// left untouched so that later weights only come from the progression calculator.
func (r *Repository) SeedExerciseState(
	ctx context.Context,
	userID int,
	state progression.ExerciseState,
	at time.Time,
) error {
	if err := state.Validate(); err != nil {
		return fmt.Errorf("seed %s: %w", state.ExerciseKey, err)
	}
	if _, err := r.db.ReadWrite.ExecContext(ctx, `
		INSERT INTO exercise_states (user_id, exercise_key, category, current_weight, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id, exercise_key) DO NOTHING`,
		userID, state.ExerciseKey, string(state.Category), state.CurrentWeight, formatTimestamp(at)); err != nil {
		return fmt.Errorf("insert exercise state %s: %w", state.ExerciseKey, err)
	}
	return nil
}

// GetExerciseState returns the state of exerciseKey for userID.
func (r *Repository) GetExerciseState(
	ctx context.Context,
	userID int,
	exerciseKey string,
) (progression.ExerciseState, error) {
	return getExerciseState(ctx, r.db.ReadOnly, userID, exerciseKey)
}

// UpdateExerciseState reads the state of exerciseKey, lets updateFn modify it and saves it when
// updateFn reports a change. The read and the write happen in one transaction.
func (r *Repository) UpdateExerciseState(
	ctx context.Context,
	userID int,
	exerciseKey string,
	at time.Time,
	updateFn func(state *progression.ExerciseState) (bool, error),
) error {
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		state, err := getExerciseState(ctx, tx, userID, exerciseKey)
		if err != nil {
			return err
		}
		before := state.CurrentWeight
		updated, err := updateFn(&state)
		if err != nil {
			return fmt.Errorf("update function: %w", err)
		}
		if !updated {
			return nil
		}
		if err = state.Validate(); err != nil {
			return fmt.Errorf("update %s: %w", exerciseKey, err)
		}
		if _, err = tx.ExecContext(ctx, `
			UPDATE exercise_states
			SET current_weight = ?, updated_at = ?
			WHERE user_id = ? AND exercise_key = ?`,
			state.CurrentWeight, formatTimestamp(at), userID, exerciseKey); err != nil {
			return fmt.Errorf("update exercise state %s: %w", exerciseKey, err)
		}
		r.logger.LogAttrs(ctx, slog.LevelDebug, "updated exercise state",
			slog.String("exerciseKey", exerciseKey),
			slog.Float64("from", before), slog.Float64("to", state.CurrentWeight))
		return nil
	})
}

// queryRower is implemented by *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getExerciseState(
	ctx context.Context,
	q queryRower,
	userID int,
	exerciseKey string,
) (progression.ExerciseState, error) {
	var (
		state    progression.ExerciseState
		category string
	)
	err := q.QueryRowContext(ctx, `
		SELECT exercise_key, category, current_weight
		FROM exercise_states
		WHERE user_id = ? AND exercise_key = ?`, userID, exerciseKey).
		Scan(&state.ExerciseKey, &category, &state.CurrentWeight)
	if errors.Is(err, sql.ErrNoRows) {
		return progression.ExerciseState{}, fmt.Errorf("exercise state %s: %w", exerciseKey, ErrNotFound)
	}
	if err != nil {
		return progression.ExerciseState{}, fmt.Errorf("query exercise state %s: %w", exerciseKey, err)
	}
	state.Category = progression.Category(category)
	return state, nil
}
