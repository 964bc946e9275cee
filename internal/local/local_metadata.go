// Package local scans the managed asset directory into comparable metadata.
package local

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"time"

	"github.com/gofrs/flock"
	"github.com/openmined/assetsync/internal/diff"
	"github.com/openmined/assetsync/internal/hashcache"
	"github.com/openmined/assetsync/internal/transform"
	"github.com/openmined/assetsync/internal/utils"
)

// HashCacheFileName is the sidecar kept at the root of the managed directory.
// It and its companions (see sidecarSuffixes) are excluded from scans.
const HashCacheFileName = "updater_hash_cache.bin"

var sidecarSuffixes = []string{"", "-journal", "-wal", "-shm", ".lock"}

var ErrScanInProgress = errors.New("local: scan already in progress")

// Metadata is the local side of a sync pass. It is rebuilt in full by ScanDir.
type Metadata struct {
	BaseDir string
	Dirs    []string
	Files   map[string][]byte

	hashCache *hashcache.HashCache
}

func New(baseDir string) *Metadata {
	return &Metadata{
		BaseDir:   baseDir,
		Files:     make(map[string][]byte),
		hashCache: hashcache.New(),
	}
}

// HashCachePath is the absolute location of the sidecar.
func (m *Metadata) HashCachePath() string {
	return filepath.Join(m.BaseDir, HashCacheFileName)
}

// IsSidecar reports whether a forward-slash relative path belongs to the
// hash cache rather than the managed tree.
func IsSidecar(relPath string) bool {
	for _, suffix := range sidecarSuffixes {
		if relPath == HashCacheFileName+suffix {
			return true
		}
	}
	return false
}

// ScanDir walks BaseDir, bringing every file into its at-rest form with t and
// digesting it through the hash cache. The base directory is created if absent.
func (m *Metadata) ScanDir(ctx context.Context, t transform.Transform) error {
	m.Dirs = nil
	m.Files = make(map[string][]byte)
	if t == nil {
		t = transform.Nop{}
	}

	if err := utils.EnsureDir(m.BaseDir); err != nil {
		return fmt.Errorf("local: create base dir: %w", err)
	}

	lock := flock.New(m.HashCachePath() + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("local: lock: %w", err)
	}
	if !locked {
		return ErrScanInProgress
	}
	defer lock.Unlock()

	tStart := time.Now()
	m.hashCache.Load(m.HashCachePath())

	err = filepath.WalkDir(m.BaseDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == m.BaseDir {
			return nil
		}

		rel, err := filepath.Rel(m.BaseDir, path)
		if err != nil {
			return fmt.Errorf("rel path: %w", err)
		}
		relPath := utils.NormPath(rel)

		if d.IsDir() {
			m.Dirs = append(m.Dirs, relPath)
			return nil
		}
		if IsSidecar(relPath) {
			return nil
		}

		if err := t.EnsureAtRest(path); err != nil {
			return fmt.Errorf("transform %q: %w", relPath, err)
		}

		digest, err := m.hashCache.GetDigest(relPath, path)
		if err != nil {
			return fmt.Errorf("digest %q: %w", relPath, err)
		}
		m.Files[relPath] = digest
		return nil
	})
	if err != nil {
		return fmt.Errorf("local: scan %q: %w", m.BaseDir, err)
	}

	if err := m.hashCache.Save(m.HashCachePath()); err != nil {
		slog.Warn("hash cache save failed", "error", err)
	}

	stats := m.hashCache.Stats()
	slog.Debug("local scan",
		"dirs", len(m.Dirs),
		"files", len(m.Files),
		"cacheHits", stats.Hits,
		"cacheMisses", stats.Misses,
		"tsScan", time.Since(tStart),
	)
	return nil
}

// CacheStats exposes hit/miss counters of the last scan.
func (m *Metadata) CacheStats() hashcache.Stats {
	return m.hashCache.Stats()
}

// DirChecksum is the aggregate fingerprint of the tree.
func (m *Metadata) DirChecksum() []byte {
	return DirChecksum(m.Dirs, m.Files)
}

func (m *Metadata) Snapshot() diff.Snapshot {
	return diff.Snapshot{Dirs: m.Dirs, Files: m.Files}
}

// DirChecksum hashes every directory path in sorted order, then every file
// path followed by its raw digest in sorted key order. The servers compute
// the same value; changing the order breaks the protocol.
func DirChecksum(dirs []string, files map[string][]byte) []byte {
	h := sha1.New()

	sortedDirs := slices.Clone(dirs)
	slices.Sort(sortedDirs)
	for _, dir := range sortedDirs {
		h.Write([]byte(dir))
	}

	for _, path := range slices.Sorted(maps.Keys(files)) {
		h.Write([]byte(path))
		h.Write(files[path])
	}

	return h.Sum(nil)
}
