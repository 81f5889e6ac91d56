package codec

import (
	"strings"
	"testing"

	kzstd "github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// decodeWithKlauspost decompresses a raw zstd frame (no marker byte) using
// the pure-Go decoder, independent of the cgo-backed DataDog/zstd encoder
// Encode uses, so a corrupted cgo build can't silently pass its own
// round-trip test against itself.
func decodeWithKlauspost(t *testing.T, frame []byte) string {
	t.Helper()
	dec, err := kzstd.NewReader(nil)
	require.NoError(t, err)
	defer dec.Close()
	out, err := dec.DecodeAll(frame, nil)
	require.NoError(t, err)
	return string(out)
}

func TestCompressedFrameDecodesWithIndependentDecoder(t *testing.T) {
	text := strings.Repeat("cross-decoder verification ", 50)
	out, err := Encode(text, DefaultLevel)
	require.NoError(t, err)
	require.Equal(t, MarkerCompressed, out[0])
	require.Equal(t, text, decodeWithKlauspost(t, out[1:]))
}

func TestEncodeSmallStringIsRaw(t *testing.T) {
	out, err := Encode("Hi", DefaultLevel)
	require.NoError(t, err)
	assert.Equal(t, MarkerRaw, out[0])
	assert.Equal(t, []byte("Hi"), out[1:])
}

func TestEncodeLargeRepetitiveStringIsCompressed(t *testing.T) {
	text := strings.Repeat("x", 1000)
	out, err := Encode(text, DefaultLevel)
	require.NoError(t, err)
	assert.Equal(t, MarkerCompressed, out[0])
	assert.Less(t, len(out), len(text))
}

func TestEncodeEmptyString(t *testing.T) {
	out, err := Encode("", DefaultLevel)
	require.NoError(t, err)
	assert.Equal(t, []byte{MarkerRaw}, out)
}

func TestDecodeEmptyFrame(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrEmptyFrame)
}

func TestDecodeBadMarker(t *testing.T) {
	_, err := Decode([]byte{0x02, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrBadMarker)
}

func TestRoundTripAcrossLevels(t *testing.T) {
	texts := []string{"", "Hi", "Hello, World!", strings.Repeat("x", 1000), "Hello, 世界! 🎉 Привет мир!"}
	for level := MinLevel; level <= MaxLevel; level += 7 {
		for _, text := range texts {
			out, err := Encode(text, level)
			require.NoError(t, err)
			got, err := Decode(out)
			require.NoError(t, err)
			assert.Equal(t, text, got)
		}
	}
}

func TestEncodeLengthNeverExceedsInputPlusOne(t *testing.T) {
	for _, text := range []string{"", "a", strings.Repeat("ab", 40), strings.Repeat("random-ish-but-not-quite", 10)} {
		out, err := Encode(text, DefaultLevel)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(out), len(text)+1)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	text := strings.Repeat("determinism matters ", 50)
	a, err := Encode(text, 9)
	require.NoError(t, err)
	b, err := Encode(text, 9)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestThresholdBoundary(t *testing.T) {
	below, err := Encode(strings.Repeat("x", MinCompressSize-1), DefaultLevel)
	require.NoError(t, err)
	assert.Equal(t, MarkerRaw, below[0])

	at, err := Encode(strings.Repeat("x", MinCompressSize), DefaultLevel)
	require.NoError(t, err)
	assert.Equal(t, MarkerCompressed, at[0])
	assert.Less(t, len(at), MinCompressSize+1)
}

func TestEncodeBadLevel(t *testing.T) {
	_, err := Encode("anything", 0)
	assert.ErrorIs(t, err, ErrBadLevel)
	_, err = Encode("anything", 23)
	assert.ErrorIs(t, err, ErrBadLevel)
}

func TestIsCompressed(t *testing.T) {
	assert.False(t, IsCompressed(nil))
	raw, _ := Encode("Hi", DefaultLevel)
	assert.False(t, IsCompressed(raw))
	compressed, _ := Encode(strings.Repeat("x", 1000), DefaultLevel)
	assert.True(t, IsCompressed(compressed))
}

func TestCompressedNotSmallerThanRawTakesRawBranch(t *testing.T) {
	// Incompressible data whose zstd frame is no smaller than the input
	// must still take the raw branch per the encode policy's "≥" comparison.
	// Every printable ASCII byte once, in order: no repeated sequences and a
	// flat byte distribution, so the frame is the input plus frame overhead.
	var b strings.Builder
	for c := byte('!'); c <= '~'; c++ {
		b.WriteByte(c)
	}
	text := b.String()
	require.GreaterOrEqual(t, len(text), MinCompressSize)
	out, err := Encode(text, DefaultLevel)
	require.NoError(t, err)
	assert.Equal(t, MarkerRaw, out[0])
	assert.Equal(t, []byte(text), out[1:])
}

func TestCompressRawDecompressRawRoundTrip(t *testing.T) {
	text := "administrative compress() has no marker byte"
	blob, err := CompressRaw(text, DefaultLevel)
	require.NoError(t, err)
	got, err := DecompressRaw(blob)
	require.NoError(t, err)
	assert.Equal(t, text, got)
}
