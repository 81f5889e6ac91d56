package vtab

/*
#cgo LDFLAGS: -lsqlite3

#include "module.h"
#include <stdlib.h>
*/
import "C"

import (
	"regexp"
	"strings"
)

// readUniqueGroups reports the column-name groups covered by each UNIQUE
// constraint declared on backing (an inline "col UNIQUE" or a table-level
// "UNIQUE(a, b)"), via pragma_index_list/pragma_index_info. Indexes with
// origin 'c' were created separately with CREATE INDEX and aren't part of
// the table's own DDL, so they're excluded; the primary key's implicit
// index (origin 'pk') is already reflected via pragma_table_info's pk
// column and handled there.
func readUniqueGroups(db *C.sqlite3, backing string) ([][]string, error) {
	stmt, err := prepare(db, `SELECT name FROM pragma_index_list(?) WHERE origin = 'u'`)
	if err != nil {
		return nil, err
	}
	defer finalize(stmt)
	bindText(stmt, 1, backing)

	var indexNames []string
	for {
		row, err := step(db, stmt)
		if err != nil {
			return nil, err
		}
		if !row {
			break
		}
		indexNames = append(indexNames, columnText(stmt, 0))
	}

	var groups [][]string
	for _, name := range indexNames {
		cols, err := readIndexColumns(db, name)
		if err != nil {
			return nil, err
		}
		if len(cols) > 0 {
			groups = append(groups, cols)
		}
	}
	return groups, nil
}

func readIndexColumns(db *C.sqlite3, index string) ([]string, error) {
	stmt, err := prepare(db, `SELECT name FROM pragma_index_info(?) ORDER BY seqno`)
	if err != nil {
		return nil, err
	}
	defer finalize(stmt)
	bindText(stmt, 1, index)

	var cols []string
	for {
		row, err := step(db, stmt)
		if err != nil {
			return nil, err
		}
		if !row {
			break
		}
		cols = append(cols, columnText(stmt, 0))
	}
	return cols, nil
}

// readLegacyFallbackColumns returns the names of vtabName's columns that
// have the opt-in decode-fallback mode enabled in the _zstd_config
// registry. The registry may not exist yet (a bare CREATE VIRTUAL TABLE
// issued without ever going through Enable), which isn't an error here:
// it just means no column has the mode on.
func readLegacyFallbackColumns(db *C.sqlite3, vtabName string) ([]string, error) {
	exists, err := tableExists(db, "_zstd_config")
	if err != nil || !exists {
		return nil, err
	}

	stmt, err := prepare(db, `SELECT column_name FROM _zstd_config WHERE table_name = ? AND legacy_fallback != 0`)
	if err != nil {
		return nil, err
	}
	defer finalize(stmt)
	bindText(stmt, 1, vtabName)

	var cols []string
	for {
		row, err := step(db, stmt)
		if err != nil {
			return nil, err
		}
		if !row {
			break
		}
		cols = append(cols, columnText(stmt, 0))
	}
	return cols, nil
}

func tableExists(db *C.sqlite3, name string) (bool, error) {
	stmt, err := prepare(db, `SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`)
	if err != nil {
		return false, err
	}
	defer finalize(stmt)
	bindText(stmt, 1, name)

	row, err := step(db, stmt)
	if err != nil {
		return false, err
	}
	return row, nil
}

// readCheckConstraints returns backing's CHECK(...) clauses, recovered from
// its CREATE TABLE text in sqlite_master. There's no PRAGMA that reports
// CHECK constraints, so the catalog's own stored DDL text is the only
// source for them.
func readCheckConstraints(db *C.sqlite3, backing string) ([]string, error) {
	stmt, err := prepare(db, `SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`)
	if err != nil {
		return nil, err
	}
	defer finalize(stmt)
	bindText(stmt, 1, backing)

	row, err := step(db, stmt)
	if err != nil {
		return nil, err
	}
	if !row {
		return nil, nil
	}
	return extractCheckConstraints(columnText(stmt, 0)), nil
}

var checkKeywordRE = regexp.MustCompile(`(?i)\bCHECK\s*\(`)

// extractCheckConstraints scans a CREATE TABLE statement's text for
// CHECK(...) clauses, column-level or table-level (the two are semantically
// identical once declared), and returns each clause's expression text with
// the enclosing parens stripped.
func extractCheckConstraints(createTableSQL string) []string {
	var out []string
	for _, loc := range checkKeywordRE.FindAllStringIndex(createTableSQL, -1) {
		open := loc[1] - 1 // index of the '('
		if expr, ok := matchedParen(createTableSQL, open); ok {
			out = append(out, strings.TrimSpace(expr))
		}
	}
	return out
}

// matchedParen returns the text strictly between the paren at open and its
// matching close, tracking single- and double-quoted string literals so a
// paren inside a literal isn't counted against the depth.
func matchedParen(s string, open int) (string, bool) {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return s[open+1 : i], true
			}
		}
	}
	return "", false
}
