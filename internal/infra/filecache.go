package infra

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileCache persists JSON-serialisable values with a TTL, one file per key.
// Keys are hashed so arbitrary strings stay filesystem-safe. It backs the
// filings pipeline, where re-fetching a document set is expensive.
type FileCache struct {
	base string
}

type fileCachePayload struct {
	ExpiresAt int64           `json:"expires_at"`
	Value     json.RawMessage `json:"value"`
}

// NewFileCache creates the cache directory if needed.
func NewFileCache(base string) (*FileCache, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileCache{base: base}, nil
}

func (fc *FileCache) pathForKey(key string) string {
	digest := sha256.Sum256([]byte(key))
	return filepath.Join(fc.base, hex.EncodeToString(digest[:])+".json")
}

// Get unmarshals the cached value for key into dest. It returns false when
// the entry is missing, unreadable, or expired; expired entries are lazily
// removed.
func (fc *FileCache) Get(key string, dest any) bool {
	path := fc.pathForKey(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}

	var payload fileCachePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return false
	}
	if payload.ExpiresAt != 0 && payload.ExpiresAt < time.Now().Unix() {
		os.Remove(path) //nolint:errcheck
		return false
	}
	return json.Unmarshal(payload.Value, dest) == nil
}

// Set stores value under key with the given TTL. The write goes through a
// temp file and rename so readers never observe a partial entry.
func (fc *FileCache) Set(key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}
	payload, err := json.Marshal(fileCachePayload{
		ExpiresAt: time.Now().Add(ttl).Unix(),
		Value:     raw,
	})
	if err != nil {
		return err
	}

	path := fc.pathForKey(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return os.Rename(tmp, path)
}
