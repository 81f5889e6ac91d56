package vtab

/*
#include "module.h"
*/
import "C"

import "sync"

// handles maps the opaque int64 ids the C shim passes back and forth into
// the Go-side *instance / *scan values they stand for. A C struct never
// holds a Go pointer directly (cgo's pointer-passing rules forbid it), so
// zstd_vtab/zstd_cursor carry this handle instead, mirroring the
// pointer-keyed registry gazette's VFS shim uses for the same reason.
var handles = struct {
	sync.Mutex
	m    map[C.sqlite3_int64]interface{}
	next C.sqlite3_int64
}{m: make(map[C.sqlite3_int64]interface{})}

func putHandle(v interface{}) C.sqlite3_int64 {
	handles.Lock()
	defer handles.Unlock()
	handles.next++
	h := handles.next
	handles.m[h] = v
	return h
}

func getInstance(h C.sqlite3_int64) *instance {
	handles.Lock()
	defer handles.Unlock()
	v, _ := handles.m[h].(*instance)
	return v
}

func getScan(h C.sqlite3_int64) *scan {
	handles.Lock()
	defer handles.Unlock()
	v, _ := handles.m[h].(*scan)
	return v
}

func releaseHandle(h C.sqlite3_int64) {
	handles.Lock()
	defer handles.Unlock()
	delete(handles.m, h)
}
