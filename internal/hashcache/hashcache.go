// Package hashcache persists (path, size, mtime) -> digest so unchanged files
// are not rehashed on every scan.
package hashcache

import (
	"crypto/sha1"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/openmined/assetsync/internal/db"
	"github.com/openmined/assetsync/internal/utils"
)

const schema = `
CREATE TABLE IF NOT EXISTS hash_cache (
    path TEXT PRIMARY KEY,
    size INTEGER NOT NULL,
    mod_time INTEGER NOT NULL, -- unix nanoseconds
    digest BLOB NOT NULL
);
`

// DigestSize is the length of every digest produced by the cache.
const DigestSize = sha1.Size

// Entry is one cached digest together with the file identity it was computed for.
type Entry struct {
	Path    string `db:"path"`
	Size    int64  `db:"size"`
	ModTime int64  `db:"mod_time"`
	Digest  []byte `db:"digest"`
}

// Stats counts cache hits and misses since the last Load, and the entries
// currently held.
type Stats struct {
	Entries int
	Hits    int
	Misses  int
}

// HashCache is a single-writer table; it is not safe for concurrent use.
type HashCache struct {
	entries map[string]*Entry
	touched map[string]struct{}
	stats   Stats
}

func New() *HashCache {
	return &HashCache{
		entries: make(map[string]*Entry),
		touched: make(map[string]struct{}),
	}
}

// Load replaces the table with the contents of the sidecar at path. A missing
// sidecar yields an empty cache; an unreadable one is removed and the cache
// starts empty.
func (h *HashCache) Load(path string) {
	h.reset()

	if !utils.FileExists(path) {
		return
	}

	entries, err := readEntries(path)
	if err != nil {
		slog.Warn("hash cache unreadable, starting empty", "path", path, "error", err)
		if rmErr := os.Remove(path); rmErr != nil {
			slog.Warn("hash cache remove", "path", path, "error", rmErr)
		}
		return
	}

	for _, e := range entries {
		if len(e.Digest) != DigestSize {
			continue
		}
		h.entries[e.Path] = e
	}
	slog.Debug("hash cache loaded", "path", path, "entries", len(h.entries))
}

// GetDigest returns the digest of the file at absPath, keyed by relPath. The
// cached digest is reused only when both size and modification time match.
func (h *HashCache) GetDigest(relPath string, absPath string) ([]byte, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, err
	}

	size, modTime := info.Size(), info.ModTime().UnixNano()
	h.touched[relPath] = struct{}{}

	if e, ok := h.entries[relPath]; ok && e.Size == size && e.ModTime == modTime {
		h.stats.Hits++
		return e.Digest, nil
	}

	digest, err := FileDigest(absPath)
	if err != nil {
		return nil, err
	}

	h.stats.Misses++
	h.entries[relPath] = &Entry{Path: relPath, Size: size, ModTime: modTime, Digest: digest}
	return digest, nil
}

// Save writes every entry used since Load to the sidecar at path. Entries for
// files that were not seen are dropped.
func (h *HashCache) Save(path string) error {
	conn, err := db.Open(path)
	if err != nil {
		return fmt.Errorf("hash cache save: %w", err)
	}
	defer conn.Close()

	if _, err := conn.Exec(schema); err != nil {
		return fmt.Errorf("hash cache schema: %w", err)
	}

	tx, err := conn.Beginx()
	if err != nil {
		return fmt.Errorf("hash cache begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM hash_cache"); err != nil {
		return fmt.Errorf("hash cache clear: %w", err)
	}

	stmt, err := tx.PrepareNamed(`INSERT INTO hash_cache (path, size, mod_time, digest)
	          VALUES (:path, :size, :mod_time, :digest)`)
	if err != nil {
		return fmt.Errorf("hash cache prepare: %w", err)
	}
	defer stmt.Close()

	for relPath := range h.touched {
		e, ok := h.entries[relPath]
		if !ok {
			continue
		}
		if _, err := stmt.Exec(e); err != nil {
			return fmt.Errorf("hash cache write %q: %w", relPath, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("hash cache commit: %w", err)
	}
	return nil
}

func (h *HashCache) Stats() Stats {
	s := h.stats
	s.Entries = len(h.entries)
	return s
}

func (h *HashCache) reset() {
	h.entries = make(map[string]*Entry)
	h.touched = make(map[string]struct{})
	h.stats = Stats{}
}

func readEntries(path string) ([]*Entry, error) {
	conn, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	var entries []*Entry
	if err := conn.Select(&entries, "SELECT path, size, mod_time, digest FROM hash_cache"); err != nil {
		return nil, err
	}
	return entries, nil
}

// FileDigest streams the file at path through SHA-1.
func FileDigest(path string) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	h := sha1.New()
	if _, err := io.Copy(h, file); err != nil {
		return nil, fmt.Errorf("hash %q: %w", path, err)
	}
	return h.Sum(nil), nil
}
