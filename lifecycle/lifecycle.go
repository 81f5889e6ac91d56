// Package lifecycle implements enable/disable/columns/stats: the four
// operations that turn an ordinary table into one with compressed TEXT
// columns (and back), and that report on the current compressed-column set.
// Enable and Disable each run as a single transaction that keeps the
// registry, the backing table and the virtual table in sync, or rolls the
// whole thing back; Columns and Stats only read, outside a transaction.
package lifecycle

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/sqlite-zstd/zstd-vtab/config"
)

// Sentinel errors distinguishing the LifecycleError kinds named in §7's
// error-kind table (plus InvalidName, supplemented per original_source).
var (
	ErrAlreadyEnabled = errors.New("zstd: table already has compression enabled")
	ErrNotEnabled     = errors.New("zstd: compression not enabled on table")
	ErrNoSuchTable    = errors.New("zstd: no such table")
	ErrInvalidName    = errors.New("zstd: invalid identifier")
	ErrNoTextColumns  = errors.New("zstd: table has no TEXT/CLOB columns to compress")
)

var identRE = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// validateName rejects anything that isn't a bare identifier, since table
// and column names are interpolated directly into DDL that SQLite cannot
// parameter-bind.
func validateName(name string) error {
	if !identRE.MatchString(name) {
		return errors.WithMessagef(ErrInvalidName, "%q", name)
	}
	return nil
}

func backingTableName(table string) string {
	return "_zstd_" + table
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WithMessage(err, "beginning transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.WithMessage(tx.Commit(), "committing transaction")
}

type tableColumn struct {
	name string
	typ  string
}

func isTextType(typ string) bool {
	upper := strings.ToUpper(typ)
	return upper == "TEXT" || upper == "CLOB" || strings.HasPrefix(upper, "CLOB(")
}

// allColumns reads table's declared schema via pragma_table_info, ordered by
// declaration position, failing with ErrNoSuchTable if it has no columns.
func allColumns(ctx context.Context, tx config.Execer, table string) ([]tableColumn, error) {
	rows, err := tx.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, errors.WithMessagef(err, "reading schema of %s", table)
	}
	defer rows.Close()

	var cols []tableColumn
	for rows.Next() {
		var c tableColumn
		if err := rows.Scan(&c.name, &c.typ); err != nil {
			return nil, errors.WithMessage(err, "scanning table_info")
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithMessage(err, "iterating table_info")
	}
	if len(cols) == 0 {
		return nil, errors.WithMessagef(ErrNoSuchTable, "%q", table)
	}
	return cols, nil
}

// Enable turns table into a compressed table: it renames the user's table
// to its backing name, encodes existing values in the target columns in
// place, records them in the registry, and creates the zstd virtual table
// over the backing table under the original name. columns, if non-empty,
// names the columns to compress; otherwise every TEXT/CLOB column is used.
func Enable(ctx context.Context, db *sql.DB, table string, columns ...string) error {
	id := uuid.New()
	log.WithFields(log.Fields{"op": "enable", "table": table, "id": id}).Info("enabling compression")

	if err := validateName(table); err != nil {
		return err
	}
	for _, c := range columns {
		if err := validateName(c); err != nil {
			return err
		}
	}

	return withTx(ctx, db, func(tx *sql.Tx) error {
		if err := config.EnsureSchema(ctx, tx); err != nil {
			return err
		}

		already, err := config.HasAny(ctx, tx, table)
		if err != nil {
			return err
		}
		if already {
			return errors.WithMessagef(ErrAlreadyEnabled, "%q", table)
		}

		var exists int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM sqlite_master WHERE type IN ('table') AND name = ?`, table).Scan(&exists)
		if err == sql.ErrNoRows {
			return errors.WithMessagef(ErrNoSuchTable, "%q", table)
		}
		if err != nil {
			return errors.WithMessagef(err, "checking existence of %s", table)
		}

		cols, err := allColumns(ctx, tx, table)
		if err != nil {
			return err
		}

		target := columns
		if len(target) == 0 {
			for _, c := range cols {
				if isTextType(c.typ) {
					target = append(target, c.name)
				}
			}
			if len(target) == 0 {
				return errors.WithMessagef(ErrNoTextColumns, "%q", table)
			}
		} else {
			byName := map[string]string{}
			for _, c := range cols {
				byName[c.name] = c.typ
			}
			for _, c := range target {
				typ, ok := byName[c]
				if !ok {
					return errors.WithMessagef(ErrNoSuchTable, "column %q not found in %q", c, table)
				}
				if !isTextType(typ) {
					return errors.Errorf("zstd: column %q.%q is type %q, not TEXT/CLOB", table, c, typ)
				}
			}
		}

		for _, c := range target {
			if err := config.Mark(ctx, tx, table, c); err != nil {
				return err
			}
		}

		backing := backingTableName(table)
		if _, err := tx.ExecContext(ctx, `ALTER TABLE `+quoteIdent(table)+` RENAME TO `+quoteIdent(backing)); err != nil {
			return errors.WithMessagef(err, "renaming %s to %s", table, backing)
		}

		for _, c := range target {
			_, err := tx.ExecContext(ctx,
				`UPDATE `+quoteIdent(backing)+` SET `+quoteIdent(c)+` = _zstd_compress_marked(`+quoteIdent(c)+`) WHERE `+quoteIdent(c)+` IS NOT NULL`)
			if err != nil {
				return errors.WithMessagef(err, "encoding existing values of %s.%s", table, c)
			}
		}

		createVTab := `CREATE VIRTUAL TABLE ` + quoteIdent(table) + ` USING zstd(` + quoteIdent(backing)
		for _, c := range target {
			createVTab += ", " + quoteIdent(c)
		}
		createVTab += ")"
		if _, err := tx.ExecContext(ctx, createVTab); err != nil {
			return errors.WithMessagef(err, "creating zstd virtual table %s", table)
		}

		log.WithFields(log.Fields{"table": table, "columns": target, "id": id}).Info("compression enabled")
		return nil
	})
}

// Disable reverses Enable for one column, or for the whole table when
// column is empty: it drops the virtual table, decodes the affected
// column(s) back to plain text, and either restores the plain table (if no
// compressed columns remain) or recreates the virtual table over the
// remaining compressed columns.
func Disable(ctx context.Context, db *sql.DB, table, column string) error {
	id := uuid.New()
	log.WithFields(log.Fields{"op": "disable", "table": table, "column": column, "id": id}).Info("disabling compression")

	if err := validateName(table); err != nil {
		return err
	}
	if column != "" {
		if err := validateName(column); err != nil {
			return err
		}
	}

	return withTx(ctx, db, func(tx *sql.Tx) error {
		enabled, err := config.HasAny(ctx, tx, table)
		if err != nil {
			return err
		}
		if !enabled {
			return errors.WithMessagef(ErrNotEnabled, "%q", table)
		}

		current, err := config.ColumnsOf(ctx, tx, table)
		if err != nil {
			return err
		}

		var toDisable []string
		if column == "" {
			toDisable = current
		} else {
			found := false
			for _, c := range current {
				if c == column {
					found = true
					break
				}
			}
			if !found {
				return errors.WithMessagef(ErrNotEnabled, "column %q of %q is not compressed", column, table)
			}
			toDisable = []string{column}
		}

		backing := backingTableName(table)

		if _, err := tx.ExecContext(ctx, `DROP TABLE `+quoteIdent(table)); err != nil {
			return errors.WithMessagef(err, "dropping virtual table %s", table)
		}

		for _, c := range toDisable {
			_, err := tx.ExecContext(ctx,
				`UPDATE `+quoteIdent(backing)+` SET `+quoteIdent(c)+` = _zstd_decompress_marked(`+quoteIdent(c)+`) WHERE `+quoteIdent(c)+` IS NOT NULL`)
			if err != nil {
				return errors.WithMessagef(err, "decoding %s.%s", table, c)
			}
			if err := config.Unmark(ctx, tx, table, c); err != nil {
				return err
			}
		}

		remaining := make([]string, 0, len(current))
		disabled := map[string]bool{}
		for _, c := range toDisable {
			disabled[c] = true
		}
		for _, c := range current {
			if !disabled[c] {
				remaining = append(remaining, c)
			}
		}

		if len(remaining) == 0 {
			if _, err := tx.ExecContext(ctx, `ALTER TABLE `+quoteIdent(backing)+` RENAME TO `+quoteIdent(table)); err != nil {
				return errors.WithMessagef(err, "restoring %s from %s", table, backing)
			}
		} else {
			createVTab := `CREATE VIRTUAL TABLE ` + quoteIdent(table) + ` USING zstd(` + quoteIdent(backing)
			for _, c := range remaining {
				createVTab += ", " + quoteIdent(c)
			}
			createVTab += ")"
			if _, err := tx.ExecContext(ctx, createVTab); err != nil {
				return errors.WithMessagef(err, "recreating zstd virtual table %s", table)
			}
		}

		log.WithFields(log.Fields{"table": table, "disabled": toDisable, "id": id}).Info("compression disabled")
		return nil
	})
}

// Columns returns a comma-separated list of table's compressed columns, in
// schema order.
func Columns(ctx context.Context, db *sql.DB, table string) (string, error) {
	if err := validateName(table); err != nil {
		return "", err
	}
	cols, err := config.ColumnsOf(ctx, db, table)
	if err != nil {
		return "", err
	}
	return strings.Join(cols, ", "), nil
}

// Stats reports, for each compressed column of table, the stored byte size
// and the decoded byte size, computed entirely in SQL via LENGTH(...) and
// LENGTH(_zstd_decompress_marked(...)) over the backing table, matching
// the SQL-side approach original_source's stats function used.
func Stats(ctx context.Context, db *sql.DB, table string) (string, error) {
	if err := validateName(table); err != nil {
		return "", err
	}
	cols, err := config.ColumnsOf(ctx, db, table)
	if err != nil {
		return "", err
	}
	if len(cols) == 0 {
		return "", errors.WithMessagef(ErrNotEnabled, "%q", table)
	}

	backing := backingTableName(table)
	var parts []string
	for _, c := range cols {
		var stored, decoded int64
		row := db.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(LENGTH(`+quoteIdent(c)+`)), 0),
			        COALESCE(SUM(LENGTH(_zstd_decompress_marked(`+quoteIdent(c)+`))), 0)
			 FROM `+quoteIdent(backing))
		if err := row.Scan(&stored, &decoded); err != nil {
			return "", errors.WithMessagef(err, "computing stats for %s.%s", table, c)
		}
		ratio := 0.0
		if decoded > 0 {
			ratio = float64(stored) / float64(decoded) * 100
		}
		parts = append(parts, fmt.Sprintf("%s: %d -> %d (%.1f%%)", c, decoded, stored, ratio))
	}
	return strings.Join(parts, "; "), nil
}

// SetLegacyFallback toggles the opt-in decode-fallback mode on a compressed
// column: a read that can't parse a stored blob as a marker-framed frame
// falls back to raw UTF-8 text, then to an opaque blob, instead of failing
// the query. It's meant for a column carrying rows written before the
// marker framing existed on it; it has no effect on rows that do carry a
// marker byte, which decode (or fail to) exactly as before.
func SetLegacyFallback(ctx context.Context, db *sql.DB, table, column string, enabled bool) error {
	if err := validateName(table); err != nil {
		return err
	}
	if err := validateName(column); err != nil {
		return err
	}
	return withTx(ctx, db, func(tx *sql.Tx) error {
		current, err := config.ColumnsOf(ctx, tx, table)
		if err != nil {
			return err
		}
		found := false
		for _, c := range current {
			if c == column {
				found = true
				break
			}
		}
		if !found {
			return errors.WithMessagef(ErrNotEnabled, "column %q of %q is not compressed", column, table)
		}
		return config.SetLegacyFallback(ctx, tx, table, column, enabled)
	})
}

func quoteIdent(s string) string {
	return `"` + s + `"`
}
