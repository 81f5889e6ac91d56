package extension_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sqlite-zstd/zstd-vtab/extension"
)

func TestCompressDecompressRoundtrip(t *testing.T) {
	db, err := extension.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	large := strings.Repeat("z", 1000)
	var out string
	err = db.QueryRow(`SELECT decompress(compress(?))`, large).Scan(&out)
	require.NoError(t, err)
	require.Equal(t, large, out)
}

func TestCompressWithExplicitLevel(t *testing.T) {
	db, err := extension.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	large := strings.Repeat("z", 1000)
	var out string
	err = db.QueryRow(`SELECT decompress(compress(?, 19))`, large).Scan(&out)
	require.NoError(t, err)
	require.Equal(t, large, out)
}

func TestCompressNullIsNull(t *testing.T) {
	db, err := extension.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var out []byte
	err = db.QueryRow(`SELECT compress(NULL)`).Scan(&out)
	require.NoError(t, err)
	require.Nil(t, out)
}

func TestMarkedFunctionsSmallStringStaysRaw(t *testing.T) {
	db, err := extension.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var raw []byte
	err = db.QueryRow(`SELECT _zstd_compress_marked('hi')`).Scan(&raw)
	require.NoError(t, err)
	require.Equal(t, byte(0x00), raw[0])
	require.Equal(t, "hi", string(raw[1:]))

	var text string
	err = db.QueryRow(`SELECT _zstd_decompress_marked(_zstd_compress_marked('hi'))`).Scan(&text)
	require.NoError(t, err)
	require.Equal(t, "hi", text)
}

func TestVTabModuleAvailableOnExtensionConnection(t *testing.T) {
	db, err := extension.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE _zstd_docs (id INTEGER PRIMARY KEY, content TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE VIRTUAL TABLE docs USING zstd(_zstd_docs, content)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO docs (content) VALUES ('hello')`)
	require.NoError(t, err)

	var content string
	err = db.QueryRow(`SELECT content FROM docs`).Scan(&content)
	require.NoError(t, err)
	require.Equal(t, "hello", content)
}
