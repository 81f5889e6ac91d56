package vtab

/*
#cgo LDFLAGS: -lsqlite3

#include "module.h"
#include <stdlib.h>
*/
import "C"

import (
	"strings"
	"unsafe"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrSchemaMismatch is returned by create/connect when the backing table
// does not exist or its schema cannot be reflected.
var ErrSchemaMismatch = errors.New("zstd: schema mismatch")

//export goZstdCreate
func goZstdCreate(db *C.sqlite3, argv **C.char, argc C.int, outHandle *C.sqlite3_int64, outSchema **C.char, outErr **C.char) C.int {
	return createOrConnect(db, argv, argc, outHandle, outSchema, outErr)
}

func createOrConnect(db *C.sqlite3, argv **C.char, argc C.int, outHandle *C.sqlite3_int64, outSchema **C.char, outErr **C.char) C.int {
	args := cStringSlice(argv, int(argc))
	// args[0..2] are the module name, database name and virtual table name
	// SQLite always supplies; args[3] is the backing table name and
	// args[4:] are the explicit compressed-column list from
	// `CREATE VIRTUAL TABLE T USING zstd(backing [, col, …])`.
	if len(args) < 4 {
		*outErr = zstdMsg("zstd: USING zstd(backing_table [, col, …]) requires a backing table argument")
		return C.SQLITE_ERROR
	}
	vtabName := args[2]
	backing := args[3]
	explicit := args[4:]

	in, err := reflectSchema(db, vtabName, backing, explicit)
	if err != nil {
		*outErr = zstdMsg(errors.WithMessagef(err, "connecting zstd vtab to %q", backing).Error())
		return C.SQLITE_ERROR
	}

	schema := declareSchema(in)
	*outSchema = C.CString(schema)
	*outHandle = putHandle(in)
	log.WithFields(log.Fields{"backing": backing, "columns": len(in.columns)}).Debug("zstd vtab connected")
	return C.SQLITE_OK
}

//export goZstdDestroy
func goZstdDestroy(handle C.sqlite3_int64, outErr **C.char) C.int {
	in := getInstance(handle)
	if in == nil {
		*outErr = zstdMsg("zstd: destroy on unknown vtab handle")
		return C.SQLITE_ERROR
	}
	// DROP TABLE on the virtual table is issued by lifecycle.Disable, which
	// also decodes and renames the backing table; the module itself has
	// nothing further to do here beyond releasing its own state, which the
	// C shim does immediately after this call returns SQLITE_OK.
	return C.SQLITE_OK
}

//export goZstdRelease
func goZstdRelease(handle C.sqlite3_int64) {
	releaseHandle(handle)
}

// reflectSchema reads the backing table's column list, affinities,
// NOT NULL flags and primary key via PRAGMA table_info, its UNIQUE and
// CHECK constraints, and marks the requested columns (or every TEXT column,
// if none were named) compressed. vtabName is the virtual table's own name
// (not the backing table's), used to look up per-column decode-fallback
// flags in the registry, which is keyed on the user-facing name.
func reflectSchema(db *C.sqlite3, vtabName, backing string, explicit []string) (*instance, error) {
	stmt, err := prepare(db, `SELECT cid, name, type, "notnull", pk FROM pragma_table_info(?) ORDER BY cid`)
	if err != nil {
		return nil, errors.WithMessage(err, ErrSchemaMismatch.Error())
	}
	defer finalize(stmt)

	cv := C.CString(backing)
	defer C.free(unsafe.Pointer(cv))
	C.zstdBindText(stmt, 1, cv, C.int(len(backing)))

	var columns []columnDef
	var pkOrder []int
	pkCols := map[int]int{} // pk order -> column index

	explicitSet := map[string]bool{}
	for _, c := range explicit {
		explicitSet[strings.TrimSpace(c)] = true
	}

	for {
		row, err := step(db, stmt)
		if err != nil {
			return nil, errors.WithMessage(err, ErrSchemaMismatch.Error())
		}
		if !row {
			break
		}
		name := columnText(stmt, 1)
		typ := strings.ToUpper(columnText(stmt, 2))
		notNull := columnInt64(stmt, 3) != 0
		pkRank := int(columnInt64(stmt, 4))

		compressed := false
		if len(explicitSet) > 0 {
			compressed = explicitSet[name]
		} else {
			compressed = strings.Contains(typ, "TEXT") || strings.Contains(typ, "CHAR") || strings.Contains(typ, "CLOB")
		}

		idx := len(columns)
		columns = append(columns, columnDef{name: name, affinity: typ, notNull: notNull, pk: pkRank > 0, compressed: compressed})
		if pkRank > 0 {
			pkCols[pkRank] = idx
		}
	}

	if len(columns) == 0 {
		return nil, errors.WithMessagef(ErrSchemaMismatch, "backing table %q has no columns or does not exist", backing)
	}

	for rank := 1; rank <= len(pkCols); rank++ {
		if idx, ok := pkCols[rank]; ok {
			pkOrder = append(pkOrder, idx)
		}
	}

	compressed := map[int]bool{}
	for i, c := range columns {
		if c.compressed {
			columns[i].affinity = "BLOB"
			compressed[i] = true
		}
	}

	nameIndex := make(map[string]int, len(columns))
	for i, c := range columns {
		nameIndex[c.name] = i
	}

	rawUnique, err := readUniqueGroups(db, backing)
	if err != nil {
		return nil, errors.WithMessage(err, ErrSchemaMismatch.Error())
	}
	var uniqueGroups [][]int
	for _, group := range rawUnique {
		var idxs []int
		for _, name := range group {
			if idx, ok := nameIndex[name]; ok {
				idxs = append(idxs, idx)
			}
		}
		switch len(idxs) {
		case 0:
			// unrelated index whose columns weren't reflected; skip it
		case 1:
			columns[idxs[0]].unique = true
		default:
			uniqueGroups = append(uniqueGroups, idxs)
		}
	}

	checks, err := readCheckConstraints(db, backing)
	if err != nil {
		return nil, errors.WithMessage(err, ErrSchemaMismatch.Error())
	}

	fallbackNames, err := readLegacyFallbackColumns(db, vtabName)
	if err != nil {
		return nil, errors.WithMessage(err, ErrSchemaMismatch.Error())
	}
	legacyFallback := map[int]bool{}
	for _, name := range fallbackNames {
		if idx, ok := nameIndex[name]; ok {
			legacyFallback[idx] = true
		}
	}

	return &instance{
		backing:        backing,
		columns:        columns,
		pkIndices:      pkOrder,
		compressed:     compressed,
		uniqueGroups:   uniqueGroups,
		checks:         checks,
		legacyFallback: legacyFallback,
	}, nil
}

// declareSchema builds the CREATE TABLE DDL handed to sqlite3_declare_vtab,
// reproducing the backing table's columns, affinities, primary key (single
// or composite), UNIQUE constraints and CHECK constraints verbatim, with
// compressed columns declared BLOB.
func declareSchema(in *instance) string {
	var defs []string
	for i, c := range in.columns {
		def := quoteIdent(c.name) + " " + c.affinity
		if len(in.pkIndices) == 1 && in.pkIndices[0] == i {
			def += " PRIMARY KEY"
		}
		if c.notNull {
			def += " NOT NULL"
		}
		if c.unique {
			def += " UNIQUE"
		}
		defs = append(defs, def)
	}
	if len(in.pkIndices) > 1 {
		var names []string
		for _, idx := range in.pkIndices {
			names = append(names, quoteIdent(in.columns[idx].name))
		}
		defs = append(defs, "PRIMARY KEY ("+strings.Join(names, ", ")+")")
	}
	for _, group := range in.uniqueGroups {
		var names []string
		for _, idx := range group {
			names = append(names, quoteIdent(in.columns[idx].name))
		}
		defs = append(defs, "UNIQUE ("+strings.Join(names, ", ")+")")
	}
	for _, check := range in.checks {
		defs = append(defs, "CHECK ("+check+")")
	}
	return "CREATE TABLE x (" + strings.Join(defs, ", ") + ")"
}
