package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

//go:embed schema.sql
var schemaDefinition string

// migrateTo brings the live schema in line with schemaDefinition.
//
// The migration is declarative. The target schema is created in an attached scratch database and
// diffed against the live one:
//
// 1. Tables missing from the target are dropped.
// 2. Tables missing from the live schema are created.
// 3. Changed tables are rebuilt with the 12-step procedure https://www.sqlite.org/lang_altertable.html#otheralter,
// keeping the columns both versions share.
// 4. Indexes and triggers are synchronised.
//
// See https://david.rothlis.net/declarative-schema-migration-for-sqlite/.
func (db *Database) migrateTo(ctx context.Context, schema string) (err error) {
	start := time.Now()

	detach, err := db.attachTargetSchema(ctx, schema)
	if err != nil {
		return fmt.Errorf("attach target schema: %w", err)
	}
	defer detach()

	// Rebuilding a table would trip foreign keys that reference it.
	if _, err = db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return fmt.Errorf("disable foreign keys: %w", err)
	}
	defer func() {
		if _, fkErr := db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = ON"); fkErr != nil {
			err = errors.Join(err, fmt.Errorf("enable foreign keys: %w", fkErr))
		}
	}()

	tx, err := db.ReadWrite.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer db.rollback(ctx, tx)

	if err = db.migrateTables(ctx, tx); err != nil {
		return fmt.Errorf("migrate tables: %w", err)
	}
	for _, typ := range []schemaType{schemaTypeIndex, schemaTypeTrigger} {
		if err = db.migrateSchema(ctx, tx, typ); err != nil {
			return fmt.Errorf("migrate %ss: %w", typ, err)
		}
	}
	violations, err := db.queryStrings(ctx, tx, `SELECT "table" FROM pragma_foreign_key_check`)
	if err != nil {
		return fmt.Errorf("foreign key check: %w", err)
	}
	if len(violations) > 0 {
		return fmt.Errorf("foreign key violations in %v", violations)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	db.logger.LogAttrs(ctx, slog.LevelDebug, "migrated database", slog.Duration("duration", time.Since(start)))
	return nil
}

// attachTargetSchema creates schema in a scratch in-memory database attached as schemaTarget. The
// returned function detaches it.
func (db *Database) attachTargetSchema(ctx context.Context, schema string) (func(), error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", rand.Text())
	target, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open target database: %w", err)
	}
	// The shared cache keeps the in-memory database alive until the live connection detaches it.
	defer func() {
		if closeErr := target.Close(); closeErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to close target database", slog.Any("error", closeErr))
		}
	}()
	if _, err = target.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create target schema: %w", err)
	}
	if _, err = db.ReadWrite.ExecContext(ctx, "ATTACH DATABASE ? AS schemaTarget", dsn); err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}
	return func() {
		if _, detachErr := db.ReadWrite.ExecContext(ctx, "DETACH DATABASE schemaTarget"); detachErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to detach target database", slog.Any("error", detachErr))
		}
	}, nil
}

func (db *Database) rollback(ctx context.Context, tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		db.logger.LogAttrs(ctx, slog.LevelError, "failed to roll back transaction", slog.Any("error", err))
	}
}

// migrateTables drops, creates and rebuilds tables until they match schemaTarget.
func (db *Database) migrateTables(ctx context.Context, tx *sql.Tx) error {
	dropped, err := db.queryStrings(ctx, tx, `
		SELECT live.name
		FROM sqlite_schema AS live
		         LEFT JOIN schemaTarget.sqlite_schema AS target ON live.name = target.name AND live.type = target.type
		WHERE live.type = 'table'
		  AND target.type IS NULL
		  AND live.name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return fmt.Errorf("query dropped tables: %w", err)
	}
	for _, table := range dropped {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "dropping table", slog.String("table", table))
		if _, err = tx.ExecContext(ctx, "DROP TABLE "+table); err != nil {
			return fmt.Errorf("drop table %s: %w", table, err)
		}
	}

	created, err := db.queryStrings(ctx, tx, `
		SELECT target.sql
		FROM schemaTarget.sqlite_schema AS target
		         LEFT JOIN sqlite_schema AS live ON live.name = target.name AND live.type = target.type
		WHERE target.type = 'table'
		  AND live.type IS NULL
		  AND target.name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return fmt.Errorf("query created tables: %w", err)
	}
	for _, createSQL := range created {
		db.logger.LogAttrs(ctx, slog.LevelInfo, "creating table", slog.String("query", createSQL))
		if _, err = tx.ExecContext(ctx, createSQL); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	// Renaming a table quotes its name in the stored SQL, so quotes are ignored in the comparison.
	changed, err := db.queryChanged(ctx, tx, `
		SELECT live.name, live.sql, target.sql
		FROM sqlite_schema AS live
		         JOIN schemaTarget.sqlite_schema AS target ON live.name = target.name AND live.type = target.type
		WHERE live.type = 'table'
		  AND live.name NOT LIKE 'sqlite_%'
		  AND REPLACE(live.sql, '"', '') <> REPLACE(target.sql, '"', '')`)
	if err != nil {
		return fmt.Errorf("query changed tables: %w", err)
	}
	for _, table := range changed {
		if err = db.rebuildTable(ctx, tx, table); err != nil {
			return fmt.Errorf("rebuild table %s: %w", table.name, err)
		}
	}
	return nil
}

// rebuildTable creates the new definition under a temporary name, copies the shared columns over
// and swaps the tables.
func (db *Database) rebuildTable(ctx context.Context, tx *sql.Tx, table changedSchema) error {
	db.logger.LogAttrs(ctx, slog.LevelInfo, "rebuilding table",
		slog.String("table", table.name),
		slog.String("liveSQL", table.liveSQL),
		slog.String("newSQL", table.newSQL))

	tempName := table.name + "_migration_temp"
	if _, err := tx.ExecContext(ctx, strings.Replace(table.newSQL, table.name, tempName, 1)); err != nil {
		return fmt.Errorf("create %s: %w", tempName, err)
	}

	// Quoting keeps columns named after SQLite keywords working.
	columns, err := db.queryStrings(ctx, tx, `
		SELECT '"' || target.name || '"'
		FROM pragma_table_info(:table) AS live
		         JOIN pragma_table_info(:table, 'schemaTarget') AS target ON target.name = live.name`,
		sql.Named("table", table.name))
	if err != nil {
		return fmt.Errorf("query shared columns: %w", err)
	}
	shared := strings.Join(columns, ", ")
	for _, stmt := range []string{
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", tempName, shared, shared, table.name),
		"DROP TABLE " + table.name,
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", tempName, table.name),
	} {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

type schemaType string

const (
	schemaTypeIndex   schemaType = "index"
	schemaTypeTrigger schemaType = "trigger"
)

// migrateSchema synchronises the indexes or triggers with schemaTarget. Changed entities are
// dropped and recreated.
func (db *Database) migrateSchema(ctx context.Context, tx *sql.Tx, typ schemaType) error {
	logger := db.logger.With(slog.String("schemaType", string(typ)))

	dropped, err := db.queryStrings(ctx, tx, `
		SELECT live.name
		FROM sqlite_schema AS live
		         LEFT JOIN schemaTarget.sqlite_schema AS target ON live.name = target.name AND live.type = target.type
		WHERE live.type = ?
		  AND target.type IS NULL
		  AND live.name NOT LIKE 'sqlite_%'`, typ)
	if err != nil {
		return fmt.Errorf("query dropped: %w", err)
	}
	for _, name := range dropped {
		logger.LogAttrs(ctx, slog.LevelInfo, "dropping", slog.String("name", name))
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP %s %s", strings.ToUpper(string(typ)), name)); err != nil {
			return fmt.Errorf("drop %s: %w", name, err)
		}
	}

	created, err := db.queryStrings(ctx, tx, `
		SELECT target.sql
		FROM schemaTarget.sqlite_schema AS target
		         LEFT JOIN sqlite_schema AS live ON live.name = target.name AND live.type = target.type
		WHERE target.type = ?
		  AND live.type IS NULL
		  AND target.name NOT LIKE 'sqlite_%'`, typ)
	if err != nil {
		return fmt.Errorf("query created: %w", err)
	}
	for _, createSQL := range created {
		logger.LogAttrs(ctx, slog.LevelInfo, "creating", slog.String("query", createSQL))
		if _, err = tx.ExecContext(ctx, createSQL); err != nil {
			return fmt.Errorf("create: %w", err)
		}
	}

	changed, err := db.queryChanged(ctx, tx, `
		SELECT live.name, live.sql, target.sql
		FROM sqlite_schema AS live
		         JOIN schemaTarget.sqlite_schema AS target ON live.name = target.name AND live.type = target.type
		WHERE live.type = ?
		  AND live.name NOT LIKE 'sqlite_%'
		  AND live.sql <> target.sql`, typ)
	if err != nil {
		return fmt.Errorf("query changed: %w", err)
	}
	for _, c := range changed {
		logger.LogAttrs(ctx, slog.LevelInfo, "recreating",
			slog.String("name", c.name), slog.String("liveSQL", c.liveSQL), slog.String("newSQL", c.newSQL))
		if _, err = tx.ExecContext(ctx, fmt.Sprintf("DROP %s %s", strings.ToUpper(string(typ)), c.name)); err != nil {
			return fmt.Errorf("drop %s: %w", c.name, err)
		}
		if _, err = tx.ExecContext(ctx, c.newSQL); err != nil {
			return fmt.Errorf("recreate %s: %w", c.name, err)
		}
	}
	return nil
}

// queryStrings returns the single string column selected by query.
func (db *Database) queryStrings(ctx context.Context, tx *sql.Tx, query string, args ...any) (_ []string, err error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	var results []string
	for rows.Next() {
		var s string
		if err = rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		results = append(results, s)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return results, nil
}

type changedSchema struct {
	name    string
	liveSQL string
	newSQL  string
}

// queryChanged returns the entities whose live definition differs from the target one.
func (db *Database) queryChanged(
	ctx context.Context,
	tx *sql.Tx,
	query string,
	args ...any,
) (_ []changedSchema, err error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	var changed []changedSchema
	for rows.Next() {
		var c changedSchema
		if err = rows.Scan(&c.name, &c.liveSQL, &c.newSQL); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		changed = append(changed, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}
	return changed, nil
}
