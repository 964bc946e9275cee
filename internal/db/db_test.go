package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_CreatesParent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.bin")

	conn, err := Open(path)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT);")
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestOpen_SingleConnection(t *testing.T) {
	conn, err := Open(filepath.Join(t.TempDir(), "state.bin"))
	require.NoError(t, err)
	defer conn.Close()

	assert.Equal(t, 1, conn.Stats().MaxOpenConnections)

	var timeout int
	require.NoError(t, conn.Get(&timeout, "PRAGMA busy_timeout"))
	assert.Equal(t, 5000, timeout)
}

func TestOpen_SidecarLeavesNoJournal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.bin")

	conn, err := Open(path)
	require.NoError(t, err)

	tx, err := conn.Beginx()
	require.NoError(t, err)
	_, err = tx.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY);")
	require.NoError(t, err)
	_, err = tx.Exec("INSERT INTO t (id) VALUES (1), (2);")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, conn.Close())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.bin", entries[0].Name())

	// and the data survived
	conn, err = Open(path)
	require.NoError(t, err)
	defer conn.Close()
	var n int
	require.NoError(t, conn.Get(&n, "SELECT COUNT(*) FROM t"))
	assert.Equal(t, 2, n)
}

func TestOpen_URLCharactersInPath(t *testing.T) {
	for _, name := range []string{"packs#1", "100%"} {
		t.Run(name, func(t *testing.T) {
			parent := t.TempDir()
			dir := filepath.Join(parent, name)
			path := filepath.Join(dir, "state.bin")

			conn, err := Open(path)
			require.NoError(t, err)
			_, err = conn.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY);")
			require.NoError(t, err)
			require.NoError(t, conn.Close())

			assert.FileExists(t, path)

			// nothing leaked next to the directory
			entries, err := os.ReadDir(parent)
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, name, entries[0].Name())
		})
	}
}

func TestFileURI(t *testing.T) {
	uri, err := fileURI(filepath.Join(t.TempDir(), "a#b", "state.bin"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(uri, "file:///"), uri)
	assert.Contains(t, uri, "a%23b/state.bin")
	assert.True(t, strings.HasSuffix(uri, "?_txlock=immediate&mode=rwc"), uri)
}
