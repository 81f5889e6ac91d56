// Package config manages the _zstd_config registry: the durable mapping of
// which (table, column) pairs are currently compressed. It is the single
// source of truth for that mapping, consulted at enable/disable/columns/
// stats time, and once when the vtab module connects (to read the
// legacy_fallback flags) — never from the vtab module's read/write hot
// paths, whose per-instance compressed-column set is captured once at
// connect time.
package config

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// TableName is the name of the registry table itself.
const TableName = "_zstd_config"

// EnsureSchema creates the registry table if it doesn't already exist. Safe
// to call on every Enable; never drops or migrates an existing registry.
// legacy_fallback defaults off: it is the opt-in, per-column decode-fallback
// mode toggled by SetLegacyFallback.
func EnsureSchema(ctx context.Context, db Execer) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS `+TableName+` (
			table_name      TEXT NOT NULL,
			column_name     TEXT NOT NULL,
			legacy_fallback INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (table_name, column_name)
		)
	`)
	return errors.WithMessage(err, "creating "+TableName)
}

// Execer is satisfied by *sql.DB and *sql.Tx, letting callers run registry
// operations either standalone or nested in an enable/disable transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Mark records that column of table is compressed. Idempotent: re-marking
// an already-marked column is a no-op, matching insert-or-ignore semantics.
func Mark(ctx context.Context, db Execer, table, column string) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO `+TableName+` (table_name, column_name) VALUES (?, ?)
	`, table, column)
	if err != nil {
		return errors.WithMessagef(err, "marking %s.%s compressed", table, column)
	}
	log.WithFields(log.Fields{"table": table, "column": column}).Debug("marked column compressed")
	return nil
}

// Unmark removes the (table, column) registry entry. Idempotent.
func Unmark(ctx context.Context, db Execer, table, column string) error {
	_, err := db.ExecContext(ctx, `
		DELETE FROM `+TableName+` WHERE table_name = ? AND column_name = ?
	`, table, column)
	if err != nil {
		return errors.WithMessagef(err, "unmarking %s.%s", table, column)
	}
	log.WithFields(log.Fields{"table": table, "column": column}).Debug("unmarked column compressed")
	return nil
}

// ColumnsOf returns the compressed columns of table, in the order they
// appear in the user's schema (i.e. ordered by the backing table's column
// position, not alphabetically).
func ColumnsOf(ctx context.Context, db Execer, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.column_name
		FROM `+TableName+` c
		JOIN pragma_table_info(?) t ON t.name = c.column_name
		WHERE c.table_name = ?
		ORDER BY t.cid
	`, backingTableName(table), table)
	if err != nil {
		return nil, errors.WithMessagef(err, "listing compressed columns of %s", table)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.WithMessage(err, "scanning column_name")
		}
		columns = append(columns, name)
	}
	return columns, errors.WithMessage(rows.Err(), "iterating compressed columns")
}

// IsCompressed reports whether column of table is currently registered as
// compressed.
func IsCompressed(ctx context.Context, db Execer, table, column string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `
		SELECT 1 FROM `+TableName+` WHERE table_name = ? AND column_name = ? LIMIT 1
	`, table, column).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, errors.WithMessagef(err, "checking %s.%s", table, column)
	default:
		return true, nil
	}
}

// HasAny reports whether table has at least one registered compressed
// column, i.e. whether compression is currently enabled on it at all.
func HasAny(ctx context.Context, db Execer, table string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `
		SELECT 1 FROM `+TableName+` WHERE table_name = ? LIMIT 1
	`, table).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case err != nil:
		return false, errors.WithMessagef(err, "checking whether %s is enabled", table)
	default:
		return true, nil
	}
}

// SetLegacyFallback toggles the opt-in decode-fallback mode for column of
// table. When enabled, a read that can't decode a stored blob as a
// marker-framed frame falls back to interpreting it as raw UTF-8 text, then
// as an opaque blob, instead of failing the query outright. It exists for
// rows written before compression was enabled on the column (Enable only
// encodes rows that exist at the time it runs, but a column can carry rows
// written by a writer unaware of the marker framing too); it has no effect
// on frames that do carry a marker byte, which still decode and fail the
// same way regardless of this flag.
func SetLegacyFallback(ctx context.Context, db Execer, table, column string, enabled bool) error {
	flag := 0
	if enabled {
		flag = 1
	}
	res, err := db.ExecContext(ctx, `
		UPDATE `+TableName+` SET legacy_fallback = ? WHERE table_name = ? AND column_name = ?
	`, flag, table, column)
	if err != nil {
		return errors.WithMessagef(err, "setting legacy fallback for %s.%s", table, column)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Errorf("zstd: %s.%s is not a registered compressed column", table, column)
	}
	log.WithFields(log.Fields{"table": table, "column": column, "enabled": enabled}).Debug("set legacy fallback mode")
	return nil
}

// LegacyFallbackColumns returns the names of table's compressed columns
// that currently have the opt-in decode-fallback mode enabled.
func LegacyFallbackColumns(ctx context.Context, db Execer, table string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT column_name FROM `+TableName+` WHERE table_name = ? AND legacy_fallback != 0
	`, table)
	if err != nil {
		return nil, errors.WithMessagef(err, "listing legacy fallback columns of %s", table)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.WithMessage(err, "scanning column_name")
		}
		columns = append(columns, name)
	}
	return columns, errors.WithMessage(rows.Err(), "iterating legacy fallback columns")
}

func backingTableName(table string) string {
	return "_zstd_" + table
}
