package vtab

/*
#cgo LDFLAGS: -lsqlite3

#include "module.h"
#include <stdlib.h>
*/
import "C"

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/sqlite-zstd/zstd-vtab/codec"
)

// scan is the per-open-cursor state: a row-iteration handle against the
// backing table, positioned on the statement's current row. It does not
// cache decompressed column values across rows (§4.4); each Column call
// recomputes from the statement's current blob.
type scan struct {
	vt   *instance
	db   *C.sqlite3
	stmt *C.sqlite3_stmt
	rowid int64
	eof   bool
}

//export goZstdOpen
func goZstdOpen(vtabHandle C.sqlite3_int64, db *C.sqlite3, outHandle *C.sqlite3_int64) C.int {
	in := getInstance(vtabHandle)
	if in == nil {
		return C.SQLITE_ERROR
	}
	*outHandle = putHandle(&scan{vt: in, db: db, eof: true})
	return C.SQLITE_OK
}

//export goZstdClose
func goZstdClose(handle C.sqlite3_int64) {
	if s := getScan(handle); s != nil {
		finalize(s.stmt)
		s.stmt = nil
	}
}

//export goZstdFilter
func goZstdFilter(handle C.sqlite3_int64, idxNum C.int, idxStr *C.char, argv **C.sqlite3_value, argc C.int, outErr **C.char) C.int {
	s := getScan(handle)
	if s == nil {
		*outErr = zstdMsg("zstd: filter on unknown cursor handle")
		return C.SQLITE_ERROR
	}
	finalize(s.stmt)
	s.stmt = nil

	var pushed []pushedConstraint
	if idxNum != 0 && idxStr != nil {
		if err := json.Unmarshal([]byte(C.GoString(idxStr)), &pushed); err != nil {
			*outErr = zstdMsg(errors.WithMessage(err, "decoding best-index plan").Error())
			return C.SQLITE_ERROR
		}
	}

	colList := append([]string{"rowid"}, s.vt.quotedColumns()...)
	query := "SELECT " + strings.Join(colList, ", ") + ` FROM "` + s.vt.backing + `"`
	if len(pushed) > 0 {
		var clauses []string
		for _, p := range pushed {
			clauses = append(clauses, quoteIdent(s.vt.columns[p.Column].name)+" "+opSQL(p.Op)+" ?")
		}
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	stmt, err := prepare(s.db, query)
	if err != nil {
		*outErr = zstdMsg(errors.WithMessagef(err, "preparing scan of %q", s.vt.backing).Error())
		return C.SQLITE_ERROR
	}
	s.stmt = stmt

	args := argvSlice(argv, int(argc))
	for _, p := range pushed {
		bindValueFromSQLite(stmt, p.Arg, args[p.Arg-1])
	}

	return advance(s)
}

//export goZstdNext
func goZstdNext(handle C.sqlite3_int64, outErr **C.char) C.int {
	s := getScan(handle)
	if s == nil {
		*outErr = zstdMsg("zstd: next on unknown cursor handle")
		return C.SQLITE_ERROR
	}
	return advance(s)
}

func advance(s *scan) C.int {
	row, err := step(s.db, s.stmt)
	if err != nil {
		return C.SQLITE_ERROR
	}
	if !row {
		s.eof = true
		return C.SQLITE_OK
	}
	s.eof = false
	s.rowid = columnInt64(s.stmt, 0)
	return C.SQLITE_OK
}

//export goZstdEof
func goZstdEof(handle C.sqlite3_int64) C.int {
	s := getScan(handle)
	if s == nil || s.eof {
		return 1
	}
	return 0
}

//export goZstdRowid
func goZstdRowid(handle C.sqlite3_int64, outRowid *C.sqlite3_int64) C.int {
	s := getScan(handle)
	if s == nil {
		return C.SQLITE_ERROR
	}
	*outRowid = C.sqlite3_int64(s.rowid)
	return C.SQLITE_OK
}

//export goZstdColumn
func goZstdColumn(handle C.sqlite3_int64, ctx *C.sqlite3_context, i C.int) C.int {
	s := getScan(handle)
	if s == nil {
		resultError(ctx, "zstd: column on unknown cursor handle")
		return C.SQLITE_ERROR
	}
	col := int(i)
	// Result column 0 of the SELECT this scan issued is rowid; column i of
	// the virtual table is statement column i+1.
	stmtCol := col + 1

	if columnType(s.stmt, stmtCol) == C.SQLITE_NULL {
		resultNull(ctx)
		return C.SQLITE_OK
	}

	if !s.vt.isCompressed(col) {
		copyRawColumn(ctx, s.stmt, stmtCol)
		return C.SQLITE_OK
	}

	blob := columnBlob(s.stmt, stmtCol)
	text, err := codec.Decode(blob)
	if err != nil {
		unmarked := errors.Is(err, codec.ErrBadMarker) || errors.Is(err, codec.ErrEmptyFrame)
		if unmarked && s.vt.isLegacyFallback(col) {
			decodeLegacyBlob(ctx, blob)
			return C.SQLITE_OK
		}
		resultError(ctx, errors.WithMessagef(err, "decoding %s", s.vt.columns[col].name).Error())
		return C.SQLITE_ERROR
	}
	resultText(ctx, text)
	return C.SQLITE_OK
}

// decodeLegacyBlob handles a stored value with no marker byte (empty, or a
// leading byte other than 0x00/0x01) on a column with the opt-in fallback
// mode enabled: it's interpreted as raw UTF-8 text if valid, otherwise
// returned as an opaque blob, rather than failing the read.
func decodeLegacyBlob(ctx *C.sqlite3_context, blob []byte) {
	if utf8.Valid(blob) {
		resultText(ctx, string(blob))
		return
	}
	resultBlob(ctx, blob)
}

// copyRawColumn forwards a non-compressed column's value verbatim, matching
// its storage type rather than coercing everything to text or blob.
func copyRawColumn(ctx *C.sqlite3_context, stmt *C.sqlite3_stmt, i int) {
	switch columnType(stmt, i) {
	case C.SQLITE_INTEGER:
		resultInt64(ctx, columnInt64(stmt, i))
	case C.SQLITE_FLOAT:
		resultDouble(ctx, float64(C.sqlite3_column_double(stmt, C.int(i))))
	case C.SQLITE_TEXT:
		resultText(ctx, columnText(stmt, i))
	default:
		resultBlob(ctx, columnBlob(stmt, i))
	}
}

func bindValueFromSQLite(stmt *C.sqlite3_stmt, i int, v *C.sqlite3_value) {
	switch valueType(v) {
	case C.SQLITE_INTEGER:
		bindInt64(stmt, i, valueInt64(v))
	case C.SQLITE_FLOAT:
		bindDouble(stmt, i, valueDouble(v))
	case C.SQLITE_TEXT:
		bindText(stmt, i, valueText(v))
	case C.SQLITE_BLOB:
		bindBlob(stmt, i, valueBlob(v))
	default:
		bindNull(stmt, i)
	}
}

func opSQL(op int) string {
	switch C.int(op) {
	case opEQ:
		return "="
	case opGT:
		return ">"
	case opLE:
		return "<="
	case opLT:
		return "<"
	case opGE:
		return ">="
	default:
		return "="
	}
}
