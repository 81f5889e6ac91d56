package lifecycle_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sqlite-zstd/zstd-vtab/extension"
	"github.com/sqlite-zstd/zstd-vtab/lifecycle"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := extension.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestEnableRenamesAndCreatesVTab(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.ExecContext(ctx, `CREATE TABLE docs (id INTEGER PRIMARY KEY, title TEXT, content TEXT)`)
	require.NoError(t, err)

	require.NoError(t, lifecycle.Enable(ctx, db, "docs", "content"))

	var typ string
	err = db.QueryRowContext(ctx, `SELECT type FROM sqlite_master WHERE name = 'docs'`).Scan(&typ)
	require.NoError(t, err)
	require.Equal(t, "table", typ) // virtual tables register with type 'table'

	var backingExists int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE name = '_zstd_docs'`).Scan(&backingExists)
	require.NoError(t, err)
	require.Equal(t, 1, backingExists)

	cols, err := lifecycle.Columns(ctx, db, "docs")
	require.NoError(t, err)
	require.Equal(t, "content", cols)
}

func TestEnableAlreadyEnabledFails(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.ExecContext(ctx, `CREATE TABLE docs (id INTEGER PRIMARY KEY, content TEXT)`)
	require.NoError(t, err)
	require.NoError(t, lifecycle.Enable(ctx, db, "docs", "content"))

	err = lifecycle.Enable(ctx, db, "docs", "content")
	require.ErrorIs(t, err, lifecycle.ErrAlreadyEnabled)
}

func TestEnableNoSuchTableFails(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	err := lifecycle.Enable(ctx, db, "missing")
	require.ErrorIs(t, err, lifecycle.ErrNoSuchTable)
}

func TestEnableInvalidNameRejected(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	err := lifecycle.Enable(ctx, db, "bad; drop table docs")
	require.ErrorIs(t, err, lifecycle.ErrInvalidName)
}

func TestEnableDefaultsToAllTextColumns(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.ExecContext(ctx, `CREATE TABLE notes (id INTEGER PRIMARY KEY, title TEXT, body TEXT, n INTEGER)`)
	require.NoError(t, err)

	require.NoError(t, lifecycle.Enable(ctx, db, "notes"))

	cols, err := lifecycle.Columns(ctx, db, "notes")
	require.NoError(t, err)
	require.Equal(t, "title, body", cols)
}

func TestDisableRestoresOriginalDataByteForByte(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.ExecContext(ctx, `CREATE TABLE docs (id INTEGER PRIMARY KEY, content TEXT)`)
	require.NoError(t, err)
	require.NoError(t, lifecycle.Enable(ctx, db, "docs", "content"))

	large := strings.Repeat("hello world ", 100)
	_, err = db.ExecContext(ctx, `INSERT INTO docs (id, content) VALUES (1, ?)`, large)
	require.NoError(t, err)

	require.NoError(t, lifecycle.Disable(ctx, db, "docs", ""))

	var typ string
	err = db.QueryRowContext(ctx, `SELECT type FROM sqlite_master WHERE name = 'docs'`).Scan(&typ)
	require.NoError(t, err)
	require.Equal(t, "table", typ)

	var content string
	err = db.QueryRowContext(ctx, `SELECT content FROM docs WHERE id = 1`).Scan(&content)
	require.NoError(t, err)
	require.Equal(t, large, content)

	cols, err := lifecycle.Columns(ctx, db, "docs")
	require.NoError(t, err)
	require.Equal(t, "", cols)
}

func TestDisableSingleColumnKeepsVTabOverRemaining(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.ExecContext(ctx, `CREATE TABLE docs (id INTEGER PRIMARY KEY, content TEXT, metadata TEXT)`)
	require.NoError(t, err)
	require.NoError(t, lifecycle.Enable(ctx, db, "docs", "content", "metadata"))

	_, err = db.ExecContext(ctx, `INSERT INTO docs (id, content, metadata) VALUES (1, 'c', 'm')`)
	require.NoError(t, err)

	require.NoError(t, lifecycle.Disable(ctx, db, "docs", "content"))

	cols, err := lifecycle.Columns(ctx, db, "docs")
	require.NoError(t, err)
	require.Equal(t, "metadata", cols)

	var content, metadata string
	err = db.QueryRowContext(ctx, `SELECT content, metadata FROM docs WHERE id = 1`).Scan(&content, &metadata)
	require.NoError(t, err)
	require.Equal(t, "c", content)
	require.Equal(t, "m", metadata)
}

func TestDisableNotEnabledFails(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.ExecContext(ctx, `CREATE TABLE docs (id INTEGER PRIMARY KEY, content TEXT)`)
	require.NoError(t, err)

	err = lifecycle.Disable(ctx, db, "docs", "")
	require.ErrorIs(t, err, lifecycle.ErrNotEnabled)
}

func TestStatsReportsNonZeroForCompressedColumn(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.ExecContext(ctx, `CREATE TABLE docs (id INTEGER PRIMARY KEY, content TEXT)`)
	require.NoError(t, err)
	require.NoError(t, lifecycle.Enable(ctx, db, "docs", "content"))

	large := strings.Repeat("x", 10000)
	_, err = db.ExecContext(ctx, `INSERT INTO docs (id, content) VALUES (1, ?)`, large)
	require.NoError(t, err)

	stats, err := lifecycle.Stats(ctx, db, "docs")
	require.NoError(t, err)
	require.Contains(t, stats, "content: 10000 -> ")
}

func TestSetLegacyFallbackRequiresCompressedColumn(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.ExecContext(ctx, `CREATE TABLE docs (id INTEGER PRIMARY KEY, content TEXT)`)
	require.NoError(t, err)
	require.NoError(t, lifecycle.Enable(ctx, db, "docs", "content"))

	require.NoError(t, lifecycle.SetLegacyFallback(ctx, db, "docs", "content", true))

	err = lifecycle.SetLegacyFallback(ctx, db, "docs", "nope", true)
	require.ErrorIs(t, err, lifecycle.ErrNotEnabled)
}

func TestEnableEncodesExistingRows(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	_, err := db.ExecContext(ctx, `CREATE TABLE docs (id INTEGER PRIMARY KEY, content TEXT)`)
	require.NoError(t, err)

	large := strings.Repeat("preexisting ", 100)
	_, err = db.ExecContext(ctx, `INSERT INTO docs (id, content) VALUES (1, ?)`, large)
	require.NoError(t, err)

	require.NoError(t, lifecycle.Enable(ctx, db, "docs", "content"))

	var content string
	err = db.QueryRowContext(ctx, `SELECT content FROM docs WHERE id = 1`).Scan(&content)
	require.NoError(t, err)
	require.Equal(t, large, content)

	var raw []byte
	err = db.QueryRowContext(ctx, `SELECT content FROM _zstd_docs WHERE id = 1`).Scan(&raw)
	require.NoError(t, err)
	require.Equal(t, byte(0x01), raw[0])
}
