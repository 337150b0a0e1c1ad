// Package cache provides file-based caches under the user cache directory.
//
// Store keeps one JSON document per resource and host (the product name
// index). Blobs keeps raw bytes per key (downloaded thumbnails).
// Default TTL is 5 minutes for JSON documents. Disable with OPENMARKET_NO_CACHE=1.
package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultTTL     = 5 * time.Minute
	DefaultBlobTTL = 24 * time.Hour

	blobPrefix = "blob_"
	blobExt    = ".bin"
)

type entry struct {
	CachedAt time.Time       `json:"cached_at"`
	Items    json.RawMessage `json:"items"`
}

// Store reads and writes a single cache key (resource+host).
type Store struct {
	path string
	ttl  time.Duration
}

// NewStore creates a Store with the default 5-minute TTL.
// dir is the cache directory (typically from DefaultDir).
// key is the resource type (e.g. "products").
// host is the OpenMarket API host.
func NewStore(dir, key, host string) *Store {
	return NewStoreWithTTL(dir, key, host, DefaultTTL)
}

// NewStoreWithTTL creates a Store with a custom TTL.
func NewStoreWithTTL(dir, key, host string, ttl time.Duration) *Store {
	key = sanitizeKey(key)
	filename := fmt.Sprintf("%s_%s.json", key, shortHash(host))
	return &Store{
		path: filepath.Join(dir, filename),
		ttl:  ttl,
	}
}

// Get loads cached items into dst. Returns false on miss (no file, expired, disabled).
func (s *Store) Get(dst any) bool {
	if disabled() {
		return false
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return false
	}
	if time.Since(e.CachedAt) > s.ttl {
		return false
	}
	return json.Unmarshal(e.Items, dst) == nil
}

// Put writes items to the cache. Silently no-ops on error or when disabled.
func (s *Store) Put(items any) {
	if disabled() {
		return
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return
	}
	data, err := json.Marshal(entry{
		CachedAt: time.Now(),
		Items:    raw,
	})
	if err != nil {
		return
	}
	_ = writeAtomic(s.path, data)
}

// Clear removes this cache file.
func (s *Store) Clear() {
	_ = os.Remove(s.path)
}

// Blobs stores opaque byte payloads, one file per key. Freshness is the
// file modification time.
type Blobs struct {
	dir string
	ttl time.Duration
}

// NewBlobs creates a blob cache in dir. A zero ttl means DefaultBlobTTL.
func NewBlobs(dir string, ttl time.Duration) *Blobs {
	if ttl <= 0 {
		ttl = DefaultBlobTTL
	}
	return &Blobs{dir: dir, ttl: ttl}
}

// Dir returns the directory blobs are written to.
func (b *Blobs) Dir() string {
	return b.dir
}

// Get returns the bytes stored for key. A missing or expired file is a
// miss, not an error.
func (b *Blobs) Get(key string) ([]byte, bool, error) {
	if disabled() {
		return nil, false, nil
	}
	path := b.path(key)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if time.Since(info.ModTime()) > b.ttl {
		_ = os.Remove(path)
		return nil, false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// Put stores data under key.
func (b *Blobs) Put(key string, data []byte) error {
	if disabled() {
		return nil
	}
	return writeAtomic(b.path(key), data)
}

// Clear removes every blob in the directory.
func (b *Blobs) Clear() error {
	entries, err := os.ReadDir(b.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() && isBlobFilename(e.Name()) {
			if err := os.Remove(filepath.Join(b.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
	}
	return nil
}

func (b *Blobs) path(key string) string {
	sum := sha1.Sum([]byte(key))
	return filepath.Join(b.dir, blobPrefix+hex.EncodeToString(sum[:])+blobExt)
}

// ClearAll removes all cache files from the directory and returns how many
// were removed. For safety, it only removes files matching this project's
// cache filename schemes.
func ClearAll(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !isCacheFilename(name) && !isBlobFilename(name) {
			continue
		}
		if os.Remove(filepath.Join(dir, name)) == nil {
			removed++
		}
	}
	return removed
}

// DefaultDir returns the platform-appropriate cache directory.
// Returns "$XDG_CACHE_HOME/openmarket-cli" or equivalent.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "openmarket-cli"), nil
}

func disabled() bool {
	return os.Getenv("OPENMARKET_NO_CACHE") != ""
}

// writeAtomic writes to a temp file then renames it over path.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func shortHash(s string) string {
	hash := sha1.Sum([]byte(s))
	return hex.EncodeToString(hash[:6])
}

func sanitizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "cache"
	}
	key = strings.ReplaceAll(key, "/", "-")
	key = strings.ReplaceAll(key, "\\", "-")
	key = strings.ReplaceAll(key, "_", "-")
	return key
}

func isCacheFilename(name string) bool {
	// Expected: "<key>_<12hex>.json"
	if filepath.Ext(name) != ".json" {
		return false
	}
	base := strings.TrimSuffix(name, ".json")
	key, hash, ok := strings.Cut(base, "_")
	if !ok || key == "" || strings.HasPrefix(base, blobPrefix) {
		return false
	}
	return len(hash) == 12 && isHex(hash)
}

func isBlobFilename(name string) bool {
	// Expected: "blob_<40hex>.bin"
	if !strings.HasPrefix(name, blobPrefix) || filepath.Ext(name) != blobExt {
		return false
	}
	hash := strings.TrimSuffix(strings.TrimPrefix(name, blobPrefix), blobExt)
	return len(hash) == 40 && isHex(hash)
}

func isHex(s string) bool {
	_, err := hex.DecodeString(s)
	return err == nil && len(s)%2 == 0
}
