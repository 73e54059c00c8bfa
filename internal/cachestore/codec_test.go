package cachestore

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgecache/internal/core"
)

func TestCodecRoundTrip(t *testing.T) {
	resp := &core.Response{
		StatusCode: http.StatusOK,
		Header: http.Header{
			"Content-Type":  []string{"text/css"},
			"Cache-Control": []string{"max-age=3600"},
		},
		Body: []byte("body { margin: 0 }"),
	}

	data, err := encodeEntry(resp, true)
	require.NoError(t, err)

	decoded, err := decodeEntry(data)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, decoded.StatusCode)
	assert.Equal(t, "text/css", decoded.Header.Get("Content-Type"))
	assert.Equal(t, resp.Body, decoded.Body)
	assert.Equal(t, core.SourceCache, decoded.Source)
	assert.False(t, decoded.StoredAt.IsZero(), "StoredAt should be stamped at encode time")
}

func TestCodecCompressesLargeBodies(t *testing.T) {
	// Highly compressible body over the threshold
	body := []byte(strings.Repeat("edgecache ", 1000))
	resp := &core.Response{StatusCode: http.StatusOK, Body: body}

	compressed, err := encodeEntry(resp, true)
	require.NoError(t, err)
	plain, err := encodeEntry(resp, false)
	require.NoError(t, err)

	assert.Less(t, len(compressed), len(plain), "compression should shrink the envelope")

	decoded, err := decodeEntry(compressed)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(body, decoded.Body))
}

func TestCodecSkipsSmallBodies(t *testing.T) {
	resp := &core.Response{StatusCode: http.StatusOK, Body: []byte("tiny")}

	data, err := encodeEntry(resp, true)
	require.NoError(t, err)

	decoded, err := decodeEntry(data)
	require.NoError(t, err)
	assert.Equal(t, []byte("tiny"), decoded.Body)
}

func TestEntryKeyIsStable(t *testing.T) {
	a := entryKey("https://example.org/a.css")
	b := entryKey("https://example.org/a.css")
	c := entryKey("https://example.org/b.css")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 16)
}

func TestDecodeEntryRejectsGarbage(t *testing.T) {
	_, err := decodeEntry([]byte("not json"))
	assert.Error(t, err)
}
