package local

import (
	"bytes"
	"context"
	"crypto/sha1"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/openmined/assetsync/internal/transform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sum(b []byte) []byte {
	s := sha1.Sum(b)
	return s[:]
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestScanDir(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"assets/textures/a.png": "png",
		"assets/sounds.json":    "{}",
		"pack.mcmeta":           "meta",
	})
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	m := New(root)
	require.NoError(t, m.ScanDir(context.Background(), nil))

	assert.ElementsMatch(t, []string{"assets", "assets/textures", "empty"}, m.Dirs)
	assert.Equal(t, map[string][]byte{
		"assets/textures/a.png": sum([]byte("png")),
		"assets/sounds.json":    sum([]byte("{}")),
		"pack.mcmeta":           sum([]byte("meta")),
	}, m.Files)

	// the sidecar and its lock exist but are never part of the tree
	assert.FileExists(t, m.HashCachePath())
	for path := range m.Files {
		assert.False(t, IsSidecar(path), path)
	}
}

func TestScanDir_CreatesMissingBase(t *testing.T) {
	root := filepath.Join(t.TempDir(), "not", "yet")

	m := New(root)
	require.NoError(t, m.ScanDir(context.Background(), transform.Nop{}))

	assert.DirExists(t, root)
	assert.Empty(t, m.Dirs)
	assert.Empty(t, m.Files)
}

func TestScanDir_RescanReusesCache(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a/1.txt": "one", "a/2.txt": "two", "3.txt": "three"})

	m := New(root)
	require.NoError(t, m.ScanDir(context.Background(), nil))
	assert.Equal(t, 3, m.CacheStats().Misses)
	first := m.DirChecksum()

	// a fresh scanner only has the persisted sidecar to go on
	again := New(root)
	require.NoError(t, again.ScanDir(context.Background(), nil))
	assert.Equal(t, 3, again.CacheStats().Hits)
	assert.Equal(t, 0, again.CacheStats().Misses)
	assert.Equal(t, first, again.DirChecksum())
}

func TestScanDir_BaseDirWithHash(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "packs#1")
	writeTree(t, root, map[string]string{"a.txt": "a"})

	require.NoError(t, New(root).ScanDir(context.Background(), nil))
	assert.FileExists(t, filepath.Join(root, HashCacheFileName))

	again := New(root)
	require.NoError(t, again.ScanDir(context.Background(), nil))
	assert.Equal(t, 1, again.CacheStats().Hits)
	assert.Equal(t, 0, again.CacheStats().Misses)

	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "packs#1", entries[0].Name())
}

func TestScanDir_AppliesTransformBeforeHashing(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.bin": "plain"})

	marker := []byte("ENC:")
	protect := transform.Func(func(path string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if bytes.HasPrefix(data, marker) {
			return nil
		}
		return os.WriteFile(path, append(append([]byte{}, marker...), data...), 0o644)
	})

	m := New(root)
	require.NoError(t, m.ScanDir(context.Background(), transform.Select(true, protect)))
	assert.Equal(t, sum([]byte("ENC:plain")), m.Files["a.bin"])

	// idempotent on rescan
	require.NoError(t, m.ScanDir(context.Background(), transform.Select(true, protect)))
	assert.Equal(t, sum([]byte("ENC:plain")), m.Files["a.bin"])
}

func TestScanDir_TransformErrorAborts(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.bin": "plain"})

	m := New(root)
	err := m.ScanDir(context.Background(), transform.Func(func(string) error { return os.ErrPermission }))
	assert.ErrorIs(t, err, os.ErrPermission)
}

func TestScanDir_ConcurrentScanRejected(t *testing.T) {
	root := t.TempDir()
	m := New(root)

	held := flock.New(m.HashCachePath() + ".lock")
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer held.Unlock()

	err = m.ScanDir(context.Background(), nil)
	assert.ErrorIs(t, err, ErrScanInProgress)
}

func TestScanDir_CanceledContext(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.txt": "a"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := New(root).ScanDir(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDirChecksum_FixedInput(t *testing.T) {
	d1 := sum([]byte("x"))
	d2 := sum([]byte("y"))

	got := DirChecksum([]string{"b", "a"}, map[string][]byte{"b/y": d2, "a/x": d1})

	var buf bytes.Buffer
	buf.WriteString("a")
	buf.WriteString("b")
	buf.WriteString("a/x")
	buf.Write(d1)
	buf.WriteString("b/y")
	buf.Write(d2)
	assert.Equal(t, sum(buf.Bytes()), got)
}

func TestDirChecksum_EmptyTree(t *testing.T) {
	assert.Equal(t, sum(nil), DirChecksum(nil, nil))
}

func TestDirChecksum_DeterministicAcrossTrees(t *testing.T) {
	files := map[string]string{
		"z/last.txt":  "z",
		"a/first.txt": "a",
		"m/mid/x.txt": "m",
		"root.txt":    "r",
	}

	rootA, rootB := t.TempDir(), t.TempDir()
	writeTree(t, rootA, files)
	// create the second tree in a different order
	for _, rel := range []string{"root.txt", "m/mid/x.txt", "z/last.txt", "a/first.txt"} {
		writeTree(t, rootB, map[string]string{rel: files[rel]})
	}

	a, b := New(rootA), New(rootB)
	require.NoError(t, a.ScanDir(context.Background(), nil))
	require.NoError(t, b.ScanDir(context.Background(), nil))

	assert.Equal(t, a.DirChecksum(), b.DirChecksum())

	// a single changed byte changes the fingerprint
	writeTree(t, rootB, map[string]string{"root.txt": "R"})
	require.NoError(t, b.ScanDir(context.Background(), nil))
	assert.NotEqual(t, a.DirChecksum(), b.DirChecksum())
}

func TestIsSidecar(t *testing.T) {
	assert.True(t, IsSidecar(HashCacheFileName))
	assert.True(t, IsSidecar(HashCacheFileName+".lock"))
	assert.True(t, IsSidecar(HashCacheFileName+"-journal"))
	assert.False(t, IsSidecar("sub/"+HashCacheFileName))
	assert.True(t, IsSidecar(HashCacheFileName+"-wal"))
	assert.True(t, IsSidecar(HashCacheFileName+"-shm"))
	assert.False(t, IsSidecar("sub/"+HashCacheFileName))
	assert.False(t, IsSidecar(HashCacheFileName+".txt"))
	assert.False(t, IsSidecar(HashCacheFileName+".lock.bak"))
	assert.False(t, IsSidecar("pack.mcmeta"))
}

func TestScanDir_KeepsFilesNamedLikeSidecar(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{HashCacheFileName + ".txt": "not a cache"})

	m := New(root)
	require.NoError(t, m.ScanDir(context.Background(), nil))

	assert.Contains(t, m.Files, HashCacheFileName+".txt")
	assert.NotContains(t, m.Files, HashCacheFileName)
}
