// Package zstdvtab implements a loadable SQLite extension that transparently
// compresses TEXT columns using Zstandard, while preserving ordinary SQL
// semantics against the compressed table.
//
// # Architecture
//
// A user table is "enabled" (see package lifecycle) by renaming it to
// "_zstd_<table>" and registering a virtual table named "<table>" backed by
// it, using the "zstd" virtual table module implemented in package vtab.
// Thereafter SQL against "<table>" is routed through the module: reads
// decompress on the fly (package vtab's cursor), writes compress on the way
// in (package vtab's update path), and constraint push-down lets equality
// and range predicates on non-compressed columns reach the backing table's
// own indices unmodified.
//
// Compressed values are framed with a marker byte (package codec) so that a
// stored value is self-describing: 0x00 means "raw text follows", 0x01 means
// "a zstd frame follows". Small values are never compressed, bounding worst
// case storage growth to one byte and keeping decode cost off the hot path
// for values too small to benefit.
//
// # Wiring into a host connection
//
// The virtual table module is registered process-wide via
// sqlite3_auto_extension, so that every new sqlite3 connection opened by the
// process — including ones opened through database/sql with the
// github.com/mattn/go-sqlite3 driver — picks it up automatically. This
// requires go-sqlite3 to be built with the sqlite_libsqlite3 tag so its cgo
// layer links the same system libsqlite3 this package links directly; the
// two pieces do not share state if they link separate copies of SQLite.
// See package vtab's doc comment for the registration sequence.
package zstdvtab
