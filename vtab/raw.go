package vtab

/*
#cgo LDFLAGS: -lsqlite3

#include "module.h"
#include <stdlib.h>
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/pkg/errors"
)

// sqliteError carries the host's raw result code alongside its error text,
// so callers can classify failures (e.g. constraint violations) by code
// rather than by matching against the message string.
type sqliteError struct {
	Code int
	Msg  string
}

func (e *sqliteError) Error() string {
	return fmt.Sprintf("sqlite3 error %d: %s", e.Code, e.Msg)
}

// sqliteErr turns a non-OK result code into a Go error carrying the host's
// own error text for db, matching the information a caller would get from
// the host's own error-reporting API.
func sqliteErr(db *C.sqlite3, rc C.int) error {
	return &sqliteError{Code: int(rc) & 0xff, Msg: C.GoString(C.sqlite3_errmsg(db))}
}

// prepare wraps sqlite3_prepare_v2 for the raw queries the module issues
// against the host's catalog and against backing tables.
func prepare(db *C.sqlite3, query string) (*C.sqlite3_stmt, error) {
	cq := C.CString(query)
	defer C.free(unsafe.Pointer(cq))

	var stmt *C.sqlite3_stmt
	rc := C.sqlite3_prepare_v2(db, cq, -1, &stmt, nil)
	if rc != C.SQLITE_OK {
		return nil, errors.WithMessagef(sqliteErr(db, rc), "preparing %q", query)
	}
	return stmt, nil
}

// step advances stmt one row and reports whether a row is available.
func step(db *C.sqlite3, stmt *C.sqlite3_stmt) (bool, error) {
	switch rc := C.sqlite3_step(stmt); rc {
	case C.SQLITE_ROW:
		return true, nil
	case C.SQLITE_DONE:
		return false, nil
	default:
		return false, sqliteErr(db, rc)
	}
}

func finalize(stmt *C.sqlite3_stmt) {
	if stmt != nil {
		C.sqlite3_finalize(stmt)
	}
}

func columnText(stmt *C.sqlite3_stmt, i int) string {
	ptr := C.sqlite3_column_text(stmt, C.int(i))
	n := C.sqlite3_column_bytes(stmt, C.int(i))
	if ptr == nil || n == 0 {
		return ""
	}
	return C.GoStringN((*C.char)(unsafe.Pointer(ptr)), n)
}

func columnBlob(stmt *C.sqlite3_stmt, i int) []byte {
	ptr := C.sqlite3_column_blob(stmt, C.int(i))
	n := C.sqlite3_column_bytes(stmt, C.int(i))
	if ptr == nil || n == 0 {
		return nil
	}
	return C.GoBytes(ptr, n)
}

func columnInt64(stmt *C.sqlite3_stmt, i int) int64 {
	return int64(C.sqlite3_column_int64(stmt, C.int(i)))
}

func columnType(stmt *C.sqlite3_stmt, i int) C.int {
	return C.sqlite3_column_type(stmt, C.int(i))
}

// bindText/bindBlob/bindInt64/bindNull bind outgoing parameters on stmt,
// used by the cursor's filter SELECT and by Update's INSERT/UPDATE/DELETE.
func bindText(stmt *C.sqlite3_stmt, i int, v string) C.int {
	cv := C.CString(v)
	defer C.free(unsafe.Pointer(cv))
	return C.zstdBindText(stmt, C.int(i), cv, C.int(len(v)))
}

func bindBlob(stmt *C.sqlite3_stmt, i int, v []byte) C.int {
	if len(v) == 0 {
		return C.sqlite3_bind_zeroblob(stmt, C.int(i), 0)
	}
	return C.zstdBindBlob(stmt, C.int(i), unsafe.Pointer(&v[0]), C.int(len(v)))
}

func bindInt64(stmt *C.sqlite3_stmt, i int, v int64) C.int {
	return C.sqlite3_bind_int64(stmt, C.int(i), C.sqlite3_int64(v))
}

func bindDouble(stmt *C.sqlite3_stmt, i int, v float64) C.int {
	return C.sqlite3_bind_double(stmt, C.int(i), C.double(v))
}

func bindNull(stmt *C.sqlite3_stmt, i int) C.int {
	return C.sqlite3_bind_null(stmt, C.int(i))
}

// valueType/valueText/... read an incoming sqlite3_value* from argv, as
// passed into xFilter (WHERE-clause arguments) and xUpdate (new row values).
func valueType(v *C.sqlite3_value) C.int { return C.sqlite3_value_type(v) }

func valueText(v *C.sqlite3_value) string {
	ptr := C.sqlite3_value_text(v)
	n := C.sqlite3_value_bytes(v)
	if ptr == nil || n == 0 {
		return ""
	}
	return C.GoStringN((*C.char)(unsafe.Pointer(ptr)), n)
}

func valueBlob(v *C.sqlite3_value) []byte {
	ptr := C.sqlite3_value_blob(v)
	n := C.sqlite3_value_bytes(v)
	if ptr == nil || n == 0 {
		return nil
	}
	return C.GoBytes(ptr, n)
}

func valueInt64(v *C.sqlite3_value) int64 { return int64(C.sqlite3_value_int64(v)) }

func valueDouble(v *C.sqlite3_value) float64 { return float64(C.sqlite3_value_double(v)) }

// resultText/resultBlob/... set the outgoing value on a column-read context,
// used by Column to hand a decoded value back to the host.
func resultText(ctx *C.sqlite3_context, v string) {
	cv := C.CString(v)
	defer C.free(unsafe.Pointer(cv))
	C.zstdResultText(ctx, cv, C.int(len(v)))
}

func resultBlob(ctx *C.sqlite3_context, v []byte) {
	if len(v) == 0 {
		C.sqlite3_result_zeroblob(ctx, 0)
		return
	}
	C.zstdResultBlob(ctx, unsafe.Pointer(&v[0]), C.int(len(v)))
}

func resultInt64(ctx *C.sqlite3_context, v int64) { C.sqlite3_result_int64(ctx, C.sqlite3_int64(v)) }

func resultDouble(ctx *C.sqlite3_context, v float64) { C.sqlite3_result_double(ctx, C.double(v)) }

func resultNull(ctx *C.sqlite3_context) { C.sqlite3_result_null(ctx) }

func resultError(ctx *C.sqlite3_context, msg string) {
	cv := C.CString(msg)
	defer C.free(unsafe.Pointer(cv))
	C.sqlite3_result_error(ctx, cv, C.int(len(msg)))
}

// zstdMsg hands msg to the C-side zstdMsg helper, which copies it into a
// sqlite3_malloc'd buffer the host owns; the CString backing it is freed
// once that synchronous copy returns.
func zstdMsg(msg string) *C.char {
	cv := C.CString(msg)
	defer C.free(unsafe.Pointer(cv))
	return C.zstdMsg(cv)
}

// argvSlice recovers a Go slice over a C array of sqlite3_value* pointers,
// the shape xFilter and xUpdate receive their arguments in.
func argvSlice(argv **C.sqlite3_value, argc int) []*C.sqlite3_value {
	if argc == 0 {
		return nil
	}
	return (*[1 << 20]*C.sqlite3_value)(unsafe.Pointer(argv))[:argc:argc]
}

// cStringSlice recovers a Go []string from a C array of char* pointers, the
// shape xCreate/xConnect receive their module arguments in.
func cStringSlice(argv **C.char, argc int) []string {
	if argc == 0 {
		return nil
	}
	raw := (*[1 << 20]*C.char)(unsafe.Pointer(argv))[:argc:argc]
	out := make([]string, argc)
	for i, p := range raw {
		out[i] = C.GoString(p)
	}
	return out
}
