package cachestore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/cespare/xxhash/v2"

	"edgecache/internal/core"
)

// compressThreshold is the minimum body size worth compressing.
const compressThreshold = 1024

// envelope is the serialized form of a cached response snapshot.
type envelope struct {
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header,omitempty"`
	Body       []byte      `json:"body,omitempty"`
	StoredAt   time.Time   `json:"stored_at"`
	Compressed bool        `json:"compressed,omitempty"`
}

// entryKey derives a stable storage key from a request URL. URLs can be
// arbitrarily long and contain characters some backends dislike, so keys
// are a 64-bit hash rendered as hex.
func entryKey(url string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(url))
}

// encodeEntry serializes a snapshot, optionally compressing the body with
// brotli when that actually shrinks it.
func encodeEntry(resp *core.Response, compress bool) ([]byte, error) {
	env := envelope{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
		StoredAt:   resp.StoredAt,
	}
	if env.StoredAt.IsZero() {
		env.StoredAt = time.Now().UTC()
	}

	if compress && len(resp.Body) > compressThreshold {
		if packed, err := compressBody(resp.Body); err == nil && len(packed) < len(resp.Body) {
			env.Body = packed
			env.Compressed = true
		}
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return data, nil
}

// decodeEntry deserializes a snapshot produced by encodeEntry.
func decodeEntry(data []byte) (*core.Response, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse cache entry: %w", err)
	}

	body := env.Body
	if env.Compressed {
		unpacked, err := decompressBody(body)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress cache entry: %w", err)
		}
		body = unpacked
	}

	return &core.Response{
		StatusCode: env.StatusCode,
		Header:     env.Header,
		Body:       body,
		StoredAt:   env.StoredAt,
		Source:     core.SourceCache,
	}, nil
}

func compressBody(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriter(&buf)
	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompressBody(packed []byte) ([]byte, error) {
	return io.ReadAll(brotli.NewReader(bytes.NewReader(packed)))
}
