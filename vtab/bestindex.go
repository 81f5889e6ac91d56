package vtab

/*
#include "module.h"
*/
import "C"

import (
	"encoding/json"
	"unsafe"
)

// pushedConstraint is one constraint best_index chose to delegate to the
// backing table's own scan; idxStr is the JSON encoding of the ordered list
// of these, consumed by filter to build its SELECT's WHERE clause.
type pushedConstraint struct {
	Column int    `json:"c"`
	Op     int    `json:"o"`
	Arg    int    `json:"a"`
}

//export goZstdBestIndex
func goZstdBestIndex(handle C.sqlite3_int64, columns, ops, usable *C.int, n C.int,
	argvIndex, omit *C.int, outIdxNum *C.int, outIdxStr **C.char, outCost *C.double, outRows *C.sqlite3_int64) C.int {

	in := getInstance(handle)
	if in == nil {
		return C.SQLITE_ERROR
	}

	nc := int(n)
	cols := (*[1 << 16]C.int)(unsafe.Pointer(columns))[:nc:nc]
	opsSlice := (*[1 << 16]C.int)(unsafe.Pointer(ops))[:nc:nc]
	usableSlice := (*[1 << 16]C.int)(unsafe.Pointer(usable))[:nc:nc]
	argvOut := (*[1 << 16]C.int)(unsafe.Pointer(argvIndex))[:nc:nc]
	omitOut := (*[1 << 16]C.int)(unsafe.Pointer(omit))[:nc:nc]

	var pushed []pushedConstraint
	argSlot := 1
	for i := 0; i < nc; i++ {
		if usableSlice[i] == 0 {
			continue
		}
		col := int(cols[i])
		op := int(opsSlice[i])
		if col < 0 || col >= len(in.columns) || in.isCompressed(col) || !isPushableOp(op) {
			continue
		}
		argvOut[i] = C.int(argSlot)
		omitOut[i] = 1
		pushed = append(pushed, pushedConstraint{Column: col, Op: op, Arg: argSlot})
		argSlot++
	}

	if len(pushed) == 0 {
		*outIdxNum = 0
		*outIdxStr = nil
		*outCost = 1000.0
		*outRows = 10000
		return C.SQLITE_OK
	}

	*outIdxNum = 1
	encoded, _ := json.Marshal(pushed)
	*outIdxStr = C.CString(string(encoded))

	// A single equality constraint approximates a point lookup; anything
	// else (ranges, multiple predicates) is a narrowed but non-unique scan.
	if len(pushed) == 1 && pushed[0].Op == int(opEQ) {
		*outCost = 10.0
		*outRows = 1
	} else {
		*outCost = 100.0
		*outRows = 100
	}
	return C.SQLITE_OK
}

// SQLite's index constraint operator codes (sqlite3.h), reproduced here so
// bestindex.go and cursor.go agree on their meaning without re-deriving
// them from C for every comparison.
const (
	opEQ C.int = 2
	opGT C.int = 4
	opLE C.int = 8
	opLT C.int = 16
	opGE C.int = 32
)

func isPushableOp(op int) bool {
	switch C.int(op) {
	case opEQ, opGT, opLE, opLT, opGE:
		return true
	default:
		return false
	}
}
