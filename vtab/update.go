package vtab

/*
#cgo LDFLAGS: -lsqlite3

#include "module.h"
*/
import "C"

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/sqlite-zstd/zstd-vtab/codec"
)

// ErrConstraint is returned when a mutation against the backing table
// violates a primary-key or NOT NULL constraint the host's conflict clause
// didn't absorb.
var ErrConstraint = errors.New("zstd: constraint violation")

//export goZstdUpdate
func goZstdUpdate(handle C.sqlite3_int64, db *C.sqlite3, argv **C.sqlite3_value, argc C.int, conflict C.int, outRowid *C.sqlite3_int64, outErr **C.char) C.int {
	in := getInstance(handle)
	if in == nil {
		*outErr = zstdMsg("zstd: update on unknown vtab handle")
		return C.SQLITE_ERROR
	}
	mode := conflictModeFromC(conflict)
	args := argvSlice(argv, int(argc))

	var err error
	switch {
	case len(args) == 1:
		err = deleteRow(db, in, args[0])
	case valueType(args[0]) == C.SQLITE_NULL:
		err = insertRow(db, in, mode, args, outRowid)
	default:
		err = updateRow(db, in, mode, args)
	}
	if err != nil {
		*outErr = zstdMsg(err.Error())
		return C.SQLITE_ERROR
	}
	return C.SQLITE_OK
}

func deleteRow(db *C.sqlite3, in *instance, rowidArg *C.sqlite3_value) error {
	stmt, err := prepare(db, `DELETE FROM "`+in.backing+`" WHERE rowid = ?`)
	if err != nil {
		return errors.WithMessage(err, "preparing delete")
	}
	defer finalize(stmt)
	bindInt64(stmt, 1, valueInt64(rowidArg))
	if _, err := step(db, stmt); err != nil {
		return errors.WithMessage(classify(err), "deleting row")
	}
	return nil
}

func insertRow(db *C.sqlite3, in *instance, mode ConflictMode, args []*C.sqlite3_value, outRowid *C.sqlite3_int64) error {
	cols := in.quotedColumns()
	placeholders := strings.Repeat("?, ", len(cols))
	placeholders = strings.TrimSuffix(placeholders, ", ")

	explicitRowid := len(args) > 1 && valueType(args[1]) != C.SQLITE_NULL
	if explicitRowid {
		cols = append([]string{"rowid"}, cols...)
		placeholders = "?, " + placeholders
	}

	sql := "INSERT " + withSpace(mode.clause()) + `INTO "` + in.backing + `" (` + strings.Join(cols, ", ") + ") VALUES (" + placeholders + ")"

	stmt, err := prepare(db, sql)
	if err != nil {
		return errors.WithMessage(err, "preparing insert")
	}
	defer finalize(stmt)

	slot := 1
	if explicitRowid {
		bindInt64(stmt, slot, valueInt64(args[1]))
		slot++
	}
	for i, col := range in.columns {
		if err := bindColumn(stmt, slot, col, args[i+2]); err != nil {
			return err
		}
		slot++
	}

	if _, err := step(db, stmt); err != nil {
		return errors.WithMessage(classify(err), "inserting row")
	}
	*outRowid = C.sqlite3_last_insert_rowid(db)
	return nil
}

func updateRow(db *C.sqlite3, in *instance, mode ConflictMode, args []*C.sqlite3_value) error {
	oldRowid := valueInt64(args[0])
	newRowid := valueInt64(args[1])

	var sets []string
	for _, col := range in.columns {
		sets = append(sets, quoteIdent(col.name)+" = ?")
	}
	if oldRowid != newRowid {
		sets = append(sets, "rowid = ?")
	}

	sql := "UPDATE " + withSpace(mode.clause()) + `"` + in.backing + `" SET ` + strings.Join(sets, ", ") + " WHERE rowid = ?"

	stmt, err := prepare(db, sql)
	if err != nil {
		return errors.WithMessage(err, "preparing update")
	}
	defer finalize(stmt)

	slot := 1
	for i, col := range in.columns {
		if err := bindColumn(stmt, slot, col, args[i+2]); err != nil {
			return err
		}
		slot++
	}
	if oldRowid != newRowid {
		bindInt64(stmt, slot, newRowid)
		slot++
	}
	bindInt64(stmt, slot, oldRowid)

	if _, err := step(db, stmt); err != nil {
		return errors.WithMessage(classify(err), "updating row")
	}
	return nil
}

// bindColumn binds one new-row value, compressing it first if col is
// compressed and the value is non-null text; other types and null pass
// through unchanged.
func bindColumn(stmt *C.sqlite3_stmt, slot int, col columnDef, v *C.sqlite3_value) error {
	if valueType(v) == C.SQLITE_NULL {
		bindNull(stmt, slot)
		return nil
	}
	if col.compressed && valueType(v) == C.SQLITE_TEXT {
		encoded, err := codec.Encode(valueText(v), codec.DefaultLevel)
		if err != nil {
			return errors.WithMessagef(err, "encoding %s", col.name)
		}
		bindBlob(stmt, slot, encoded)
		return nil
	}
	bindValueFromSQLite(stmt, slot, v)
	return nil
}

// classify tags a raw sqlite3 error as ErrConstraint when the backing
// table reports SQLITE_CONSTRAINT, so callers can distinguish it from
// other storage failures by error kind rather than by message text.
func classify(err error) error {
	if se, ok := err.(*sqliteError); ok && se.Code == sqliteConstraint {
		return errors.WithMessage(ErrConstraint, se.Msg)
	}
	return err
}

const sqliteConstraint = 19 // SQLITE_CONSTRAINT

func withSpace(clause string) string {
	if clause == "" {
		return ""
	}
	return clause + " "
}

