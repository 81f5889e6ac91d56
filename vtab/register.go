// Package vtab implements the "zstd" SQLite virtual-table module: the
// writable polymorphic table type that routes reads through on-the-fly
// decompression and writes through the codec, while pushing constraints on
// non-compressed columns down to the backing table's own scan.
//
// The module is implemented in raw cgo against libsqlite3 rather than
// through github.com/mattn/go-sqlite3's Go vtab API, which is documented
// as read-only and exposes no xUpdate hook. module.c is the thin C shim
// (xCreate/xConnect/xBestIndex/xOpen/xClose/xFilter/xNext/xEof/xColumn/
// xRowid/xUpdate/xDisconnect/xDestroy) that unpacks host primitives and
// calls back into the exported Go functions in this package; all actual
// decision-making (schema reflection, constraint push-down, codec
// invocation, conflict translation) happens on the Go side.
//
// Register must be called once, before any connection that needs the
// module is opened; it arranges, via sqlite3_auto_extension, for every
// subsequently opened sqlite3 connection in the process — including ones
// opened through database/sql with github.com/mattn/go-sqlite3 built with
// the sqlite_libsqlite3 tag — to have the module available.
package vtab

/*
#cgo LDFLAGS: -lsqlite3

#include "module.h"
*/
import "C"

import "github.com/pkg/errors"

// Register installs the zstd virtual table module as a process-wide
// sqlite3_auto_extension. Safe to call more than once; sqlite3_auto_extension
// itself de-duplicates identical entry points.
func Register() error {
	if rc := C.zstdRegisterAutoExtension(); rc != C.SQLITE_OK {
		return errors.Errorf("registering zstd vtab auto extension: sqlite3 rc=%d", int(rc))
	}
	return nil
}
