package vtab

/*
#include "module.h"
*/
import "C"

// ConflictMode is the host's ON CONFLICT resolution signal for the
// statement currently driving xUpdate, read once via
// sqlite3_vtab_on_conflict and translated into the mutation's SQL clause
// against the backing table.
type ConflictMode int

const (
	ConflictRollback ConflictMode = iota
	ConflictAbort
	ConflictFail
	ConflictIgnore
	ConflictReplace
)

// conflictModeFromC maps the raw sqlite3_vtab_on_conflict result (a
// SQLITE_ROLLBACK/ABORT/FAIL/IGNORE/REPLACE code) to a ConflictMode,
// defaulting to ABORT for any value the host hasn't documented.
func conflictModeFromC(code C.int) ConflictMode {
	switch code {
	case C.SQLITE_ROLLBACK:
		return ConflictRollback
	case C.SQLITE_FAIL:
		return ConflictFail
	case C.SQLITE_IGNORE:
		return ConflictIgnore
	case C.SQLITE_REPLACE:
		return ConflictReplace
	default:
		return ConflictAbort
	}
}

// clause returns the OR-clause text to splice into INSERT/UPDATE against
// the backing table, empty for the default ABORT mode.
func (m ConflictMode) clause() string {
	switch m {
	case ConflictRollback:
		return "OR ROLLBACK"
	case ConflictFail:
		return "OR FAIL"
	case ConflictIgnore:
		return "OR IGNORE"
	case ConflictReplace:
		return "OR REPLACE"
	default:
		return ""
	}
}
