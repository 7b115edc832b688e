package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// userColumn marks the tables that belong to a user.
const userColumn = "user_id"

// ExportUser copies the activity log of userID into a new SQLite database file in dir and returns
// its path. It refuses to overwrite an earlier export.
//
// Tables with a user_id column are filtered on it. Tables without one are exported when a foreign
// key points them at rows of such a table, as habit_logs points at habits.
func (db *Database) ExportUser(ctx context.Context, userID int, dir string) (_ string, err error) {
	exportPath := filepath.Join(dir, fmt.Sprintf("user-%d.sqlite3", userID))
	switch _, statErr := os.Stat(exportPath); {
	case statErr == nil:
		return "", fmt.Errorf("export %s: %w", exportPath, fs.ErrExist)
	case !errors.Is(statErr, fs.ErrNotExist):
		return "", fmt.Errorf("stat export: %w", statErr)
	}

	conn, err := db.ReadWrite.Conn(ctx)
	if err != nil {
		return "", fmt.Errorf("get connection: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close connection: %w", closeErr))
		}
	}()

	// ATTACH, DETACH and the foreign_keys pragma have no effect or fail inside a transaction.
	if _, err = conn.ExecContext(ctx, "ATTACH DATABASE ? AS export", "file:"+exportPath+"?mode=rwc"); err != nil {
		return "", fmt.Errorf("attach export database: %w", err)
	}
	defer func() {
		if _, detachErr := conn.ExecContext(ctx, "DETACH DATABASE export"); detachErr != nil {
			err = errors.Join(err, fmt.Errorf("detach export database: %w", detachErr))
		}
	}()
	// Rows are copied table by table, so parents may arrive after their children.
	if _, err = conn.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return "", fmt.Errorf("disable foreign keys: %w", err)
	}
	defer func() {
		if _, fkErr := conn.ExecContext(ctx, "PRAGMA foreign_keys = ON"); fkErr != nil {
			err = errors.Join(err, fmt.Errorf("enable foreign keys: %w", fkErr))
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer db.rollback(ctx, tx)

	tables, err := db.userTables(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("find user tables: %w", err)
	}
	for _, table := range tables {
		if err = db.exportTable(ctx, tx, table, userID); err != nil {
			return "", fmt.Errorf("export %s: %w", table.name, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return "", fmt.Errorf("commit export: %w", err)
	}

	db.logger.LogAttrs(ctx, slog.LevelInfo, "exported user database",
		slog.Int("userID", userID), slog.String("path", exportPath), slog.Int("tables", len(tables)))
	return exportPath, nil
}

// userTable is a table to export and the condition selecting the rows of one user.
type userTable struct {
	name string
	// where takes the user id as its only argument.
	where string
}

// userTables lists the tables with a user_id column followed by the tables that reference them.
func (db *Database) userTables(ctx context.Context, tx *sql.Tx) ([]userTable, error) {
	owners, err := db.queryStrings(ctx, tx, `
		SELECT m.name
		FROM sqlite_schema AS m
		         JOIN pragma_table_info(m.name) AS c
		WHERE m.type = 'table'
		  AND m.name NOT LIKE 'sqlite_%'
		  AND c.name = ?
		ORDER BY m.name`, userColumn)
	if err != nil {
		return nil, fmt.Errorf("query owner tables: %w", err)
	}
	tables := make([]userTable, 0, len(owners))
	owner := make(map[string]bool, len(owners))
	exported := make(map[string]bool, len(owners))
	for _, name := range owners {
		tables = append(tables, userTable{name: name, where: userColumn + " = ?"})
		owner[name] = true
		exported[name] = true
	}

	refs, err := db.queryForeignKeys(ctx, tx)
	if err != nil {
		return nil, err
	}
	for _, ref := range refs {
		if exported[ref.table] || !owner[ref.parent] {
			continue
		}
		tables = append(tables, userTable{
			name: ref.table,
			where: fmt.Sprintf(`"%s" IN (SELECT "%s" FROM main.%s WHERE %s = ?)`,
				ref.from, ref.to, ref.parent, userColumn),
		})
		// A table referencing two owner tables is exported once.
		exported[ref.table] = true
	}
	return tables, nil
}

type foreignKey struct {
	table  string
	from   string
	parent string
	to     string
}

func (db *Database) queryForeignKeys(ctx context.Context, tx *sql.Tx) (_ []foreignKey, err error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT m.name, fk."from", fk."table", fk."to"
		FROM sqlite_schema AS m
		         JOIN pragma_foreign_key_list(m.name) AS fk
		WHERE m.type = 'table'
		  AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name, fk.id, fk.seq`)
	if err != nil {
		return nil, fmt.Errorf("query foreign keys: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close rows: %w", closeErr))
		}
	}()

	var keys []foreignKey
	for rows.Next() {
		var k foreignKey
		if err = rows.Scan(&k.table, &k.from, &k.parent, &k.to); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		keys = append(keys, k)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate foreign keys: %w", err)
	}
	return keys, nil
}

// exportTable recreates table in the export database and copies the rows of userID into it.
func (db *Database) exportTable(ctx context.Context, tx *sql.Tx, table userTable, userID int) error {
	var createSQL string
	if err := tx.QueryRowContext(ctx, `SELECT sql FROM main.sqlite_schema WHERE type = 'table' AND name = ?`,
		table.name).Scan(&createSQL); err != nil {
		return fmt.Errorf("query schema: %w", err)
	}
	// A table rebuilt by migrateTo keeps its name quoted.
	var definition string
	for _, prefix := range []string{"CREATE TABLE " + table.name, `CREATE TABLE "` + table.name + `"`} {
		if rest, ok := strings.CutPrefix(createSQL, prefix); ok {
			definition = rest
			break
		}
	}
	if definition == "" {
		return fmt.Errorf("unexpected table definition %q", createSQL)
	}
	if _, err := tx.ExecContext(ctx, "CREATE TABLE export."+table.name+definition); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	//nolint:gosec // table names and conditions come from the schema, not from input.
	copySQL := fmt.Sprintf("INSERT INTO export.%s SELECT * FROM main.%s WHERE %s", table.name, table.name, table.where)
	if _, err := tx.ExecContext(ctx, copySQL, userID); err != nil {
		return fmt.Errorf("copy rows: %w", err)
	}
	return nil
}
