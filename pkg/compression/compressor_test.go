package compression

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat(`{"type":"RECORD","stream":"forms","record":{"id":"1"}}`+"\n", 200))

	for _, algo := range []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2, Deflate} {
		for _, level := range []Level{Fastest, Default, Best} {
			compressed, err := Compress(payload, algo, level)
			require.NoError(t, err, "%s/%d", algo, level)
			if algo != None {
				assert.Less(t, len(compressed), len(payload), "%s/%d", algo, level)
			}

			out, err := Decompress(compressed, algo)
			require.NoError(t, err, "%s/%d", algo, level)
			assert.True(t, bytes.Equal(payload, out), "%s/%d", algo, level)
		}
	}
}

func TestNewWriter_DoesNotCloseUnderlying(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, None, Default)
	require.NoError(t, err)
	_, err = w.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, "abc", buf.String())
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, Zstd, a)

	a, err = ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, None, a)

	_, err = ParseAlgorithm("brotli")
	assert.Error(t, err)

	_, err = NewWriter(&bytes.Buffer{}, Algorithm("brotli"), Default)
	assert.Error(t, err)
}

func TestFromExtension(t *testing.T) {
	assert.Equal(t, Gzip, FromExtension("out.jsonl.gz"))
	assert.Equal(t, Zstd, FromExtension("out.ZST"))
	assert.Equal(t, LZ4, FromExtension("/tmp/out.lz4"))
	assert.Equal(t, None, FromExtension("out.jsonl"))
	assert.Equal(t, None, FromExtension("-"))
}
