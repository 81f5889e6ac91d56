// Package extension is the loader entry point: it registers the compress/
// decompress scalar functions, their internal marker-framed counterparts,
// and the zstd virtual-table module on every new connection, the SQLite
// analogue of a C extension's sqlite3_extension_init.
package extension

import (
	"database/sql"
	"sync"

	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/sqlite-zstd/zstd-vtab/codec"
	"github.com/sqlite-zstd/zstd-vtab/vtab"
)

// DriverName is the database/sql driver name registered by Open/init, distinct
// from "sqlite3" so this package can coexist with an application that also
// imports github.com/mattn/go-sqlite3 directly under its default name.
const DriverName = "sqlite3_zstd"

var registerOnce sync.Once
var registerErr error

// register installs the zstd vtab module as a process-wide auto-extension
// and registers DriverName with a ConnectHook that wires the scalar
// functions into every connection opened through it. Safe to call more than
// once; only the first call takes effect.
func register() error {
	registerOnce.Do(func() {
		if err := vtab.Register(); err != nil {
			registerErr = err
			return
		}
		sql.Register(DriverName, &sqlite3.SQLiteDriver{
			ConnectHook: connectHook,
		})
	})
	return registerErr
}

// Open opens a database/sql connection pool through the zstd-aware driver,
// equivalent to sql.Open("sqlite3", dsn) on a connection that has also run
// the loader's entry point.
func Open(dsn string) (*sql.DB, error) {
	if err := register(); err != nil {
		return nil, errors.WithMessage(err, "registering zstd extension")
	}
	db, err := sql.Open(DriverName, dsn)
	return db, errors.WithMessage(err, "opening database")
}

// connectHook registers the compress/decompress SQL surface on a freshly
// opened connection. The zstd virtual-table module itself is wired in by
// vtab.Register's sqlite3_auto_extension, which fires before this hook runs.
func connectHook(conn *sqlite3.SQLiteConn) error {
	fns := []struct {
		name string
		fn   interface{}
	}{
		{"compress", compressFn},
		{"decompress", decompressFn},
		{"_zstd_compress_marked", compressMarkedFn},
		{"_zstd_decompress_marked", decompressMarkedFn},
	}
	for _, f := range fns {
		if err := conn.RegisterFunc(f.name, f.fn, true); err != nil {
			return errors.WithMessagef(err, "registering %s", f.name)
		}
	}
	return nil
}

// compressFn implements compress(text) / compress(text, level). RegisterFunc
// registers a variadic Go function with variable arity, so the two forms are
// exposed as one function taking a variadic trailing level.
func compressFn(text *string, level ...int) ([]byte, error) {
	if text == nil {
		return nil, nil
	}
	lvl := codec.DefaultLevel
	if len(level) > 0 {
		lvl = level[0]
	}
	out, err := codec.CompressRaw(*text, lvl)
	return out, errors.WithMessage(err, "compress")
}

func decompressFn(data []byte) (*string, error) {
	if data == nil {
		return nil, nil
	}
	text, err := codec.DecompressRaw(data)
	if err != nil {
		return nil, errors.WithMessage(err, "decompress")
	}
	return &text, nil
}

func compressMarkedFn(text *string) ([]byte, error) {
	if text == nil {
		return nil, nil
	}
	out, err := codec.Encode(*text, codec.DefaultLevel)
	return out, errors.WithMessage(err, "_zstd_compress_marked")
}

func decompressMarkedFn(data []byte) (*string, error) {
	if data == nil {
		return nil, nil
	}
	text, err := codec.Decode(data)
	if err != nil {
		return nil, errors.WithMessage(err, "_zstd_decompress_marked")
	}
	return &text, nil
}
