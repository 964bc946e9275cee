package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePath(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantError bool
	}{
		{name: "empty path", input: "", wantError: true},
		{name: "relative path", input: "./test", wantError: false},
		{name: "absolute path", input: "/tmp/test", wantError: false},
		{name: "home path", input: "~/assets", wantError: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ResolvePath(tt.input)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.True(t, filepath.IsAbs(result), "expected absolute path, got %q", result)
		})
	}
}

func TestEnsureDirAndParent(t *testing.T) {
	tmp := t.TempDir()

	dir := filepath.Join(tmp, "a", "b")
	require.NoError(t, EnsureDir(dir))
	assert.True(t, DirExists(dir))
	require.NoError(t, EnsureDir(dir)) // idempotent

	file := filepath.Join(tmp, "c", "d", "file.txt")
	require.NoError(t, EnsureParent(file))
	assert.True(t, DirExists(filepath.Dir(file)))
	assert.False(t, FileExists(file))

	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	assert.True(t, FileExists(file))
	assert.False(t, DirExists(file))
}

func TestNormPath(t *testing.T) {
	assert.Equal(t, "a/b/c.txt", NormPath(filepath.Join("a", "b", "c.txt")))
	assert.Equal(t, "a/c.txt", NormPath(filepath.Join("a", "b", "..", "c.txt")))
}

func TestRemoveIfExists(t *testing.T) {
	tmp := t.TempDir()
	assert.NoError(t, RemoveIfExists(filepath.Join(tmp, "missing")))

	dir := filepath.Join(tmp, "tree", "nested")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, RemoveIfExists(filepath.Join(tmp, "tree")))
	assert.False(t, DirExists(filepath.Join(tmp, "tree")))
}

func TestSafeJoin(t *testing.T) {
	base := t.TempDir()

	got, err := SafeJoin(base, "assets/textures/a.png")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "assets", "textures", "a.png"), got)

	for _, rel := range []string{"../x", "a/../../x", "", "."} {
		_, err := SafeJoin(base, rel)
		assert.Error(t, err, rel)
	}
}
