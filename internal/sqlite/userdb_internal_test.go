package sqlite

import (
	"database/sql"
	"errors"
	"io/fs"
	"testing"

	"github.com/myrjola/trainengine/internal/testhelpers"
)

func TestDatabase_ExportUser(t *testing.T) {
	t.Parallel()
	const ts = "2026-10-12T22:00:00.000Z"
	tests := []struct {
		name       string
		schema     string
		setupData  []string
		userID     int
		wantCounts map[string]int
	}{
		{
			name:   "event log",
			schema: schemaDefinition,
			setupData: []string{
				"INSERT INTO programs (user_id, started_at) VALUES (1, '" + ts + "'), (2, '" + ts + "')",
				"INSERT INTO day_completions (user_id, day_number, completed_at) VALUES (1, 1, '" + ts + "'), (1, 2, '" + ts + "'), (2, 1, '" + ts + "')",
				"INSERT INTO workout_sessions (id, user_id, started_at, completed_at) VALUES ('0199d5e0-0000-7000-8000-000000000001', 1, '" + ts + "', '" + ts + "')",
				"INSERT INTO recovery_completions (user_id, completed_at) VALUES (2, '" + ts + "')",
				"INSERT INTO habits (id, user_id, name, created_at) VALUES (1, 1, 'mobility', '" + ts + "'), (2, 2, 'reading', '" + ts + "')",
				"INSERT INTO habit_logs (habit_id, log_date) VALUES (1, '2026-10-12'), (1, '2026-10-13'), (2, '2026-10-12')",
				"INSERT INTO exercise_states (user_id, exercise_key, category, current_weight, updated_at) VALUES (1, 'barbell_back_squat', 'compound', 60, '" + ts + "')",
			},
			userID: 1,
			wantCounts: map[string]int{
				"programs":             1,
				"day_completions":      2,
				"workout_sessions":     1,
				"recovery_completions": 0,
				"habits":               1,
				"habit_logs":           2,
				"exercise_states":      1,
			},
		},
		{
			name:   "user without activity",
			schema: schemaDefinition,
			setupData: []string{
				"INSERT INTO programs (user_id, started_at) VALUES (1, '" + ts + "')",
			},
			userID:     999,
			wantCounts: map[string]int{"programs": 0, "day_completions": 0, "habit_logs": 0},
		},
		{
			name: "tables unrelated to users are left out",
			schema: `CREATE TABLE events (id INTEGER PRIMARY KEY, user_id INTEGER NOT NULL);
				CREATE TABLE feature_flags (id INTEGER PRIMARY KEY, enabled INTEGER);`,
			setupData: []string{
				"INSERT INTO events (user_id) VALUES (1), (1), (2)",
				"INSERT INTO feature_flags (enabled) VALUES (1)",
			},
			userID:     1,
			wantCounts: map[string]int{"events": 2, "feature_flags": -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := t.Context()
			db, err := connect(ctx, ":memory:", testhelpers.NewLogger(testhelpers.NewWriter(t)))
			if err != nil {
				t.Fatalf("Failed to connect to database: %v", err)
			}
			t.Cleanup(func() {
				if err = db.Close(); err != nil {
					t.Errorf("Failed to close database: %v", err)
				}
			})
			if err = db.migrateTo(ctx, tt.schema); err != nil {
				t.Fatalf("migrate: %v", err)
			}
			for _, query := range tt.setupData {
				if _, err = db.ReadWrite.ExecContext(ctx, query); err != nil {
					t.Fatalf("setup %q: %v", query, err)
				}
			}

			dir := t.TempDir()
			path, err := db.ExportUser(ctx, tt.userID, dir)
			if err != nil {
				t.Fatalf("ExportUser() error = %v", err)
			}
			if _, err = db.ExportUser(ctx, tt.userID, dir); !errors.Is(err, fs.ErrExist) {
				t.Errorf("ExportUser() again error = %v, want %v", err, fs.ErrExist)
			}

			exported, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
			if err != nil {
				t.Fatalf("open export: %v", err)
			}
			t.Cleanup(func() { _ = exported.Close() })
			for table, want := range tt.wantCounts {
				var count int
				err = exported.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
				if want < 0 {
					if err == nil {
						t.Errorf("table %s was exported", table)
					}
					continue
				}
				if err != nil {
					t.Errorf("count %s: %v", table, err)
					continue
				}
				if count != want {
					t.Errorf("%s has %d rows, want %d", table, count, want)
				}
			}
		})
	}
}
