package config

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMarkUnmarkIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, EnsureSchema(ctx, db))

	require.NoError(t, Mark(ctx, db, "docs", "content"))
	require.NoError(t, Mark(ctx, db, "docs", "content"))

	ok, err := IsCompressed(ctx, db, "docs", "content")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, Unmark(ctx, db, "docs", "content"))
	require.NoError(t, Unmark(ctx, db, "docs", "content"))

	ok, err = IsCompressed(ctx, db, "docs", "content")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestColumnsOfOrderedBySchemaPosition(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, EnsureSchema(ctx, db))

	_, err := db.ExecContext(ctx, `CREATE TABLE _zstd_docs (id INTEGER PRIMARY KEY, title TEXT, content TEXT, metadata TEXT)`)
	require.NoError(t, err)

	require.NoError(t, Mark(ctx, db, "docs", "metadata"))
	require.NoError(t, Mark(ctx, db, "docs", "content"))

	cols, err := ColumnsOf(ctx, db, "docs")
	require.NoError(t, err)
	require.Equal(t, []string{"content", "metadata"}, cols)
}

func TestLegacyFallbackDefaultsOffAndIsToggleable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, EnsureSchema(ctx, db))
	require.NoError(t, Mark(ctx, db, "docs", "content"))
	require.NoError(t, Mark(ctx, db, "docs", "metadata"))

	cols, err := LegacyFallbackColumns(ctx, db, "docs")
	require.NoError(t, err)
	require.Empty(t, cols)

	require.NoError(t, SetLegacyFallback(ctx, db, "docs", "content", true))
	cols, err = LegacyFallbackColumns(ctx, db, "docs")
	require.NoError(t, err)
	require.Equal(t, []string{"content"}, cols)

	require.NoError(t, SetLegacyFallback(ctx, db, "docs", "content", false))
	cols, err = LegacyFallbackColumns(ctx, db, "docs")
	require.NoError(t, err)
	require.Empty(t, cols)
}

func TestSetLegacyFallbackOnUnregisteredColumnFails(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, EnsureSchema(ctx, db))

	err := SetLegacyFallback(ctx, db, "docs", "content", true)
	require.Error(t, err)
}

func TestHasAny(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	require.NoError(t, EnsureSchema(ctx, db))

	ok, err := HasAny(ctx, db, "docs")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, Mark(ctx, db, "docs", "content"))
	ok, err = HasAny(ctx, db, "docs")
	require.NoError(t, err)
	require.True(t, ok)
}
