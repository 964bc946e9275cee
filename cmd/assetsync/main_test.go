package main

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/assetsync/internal/config"
	"github.com/openmined/assetsync/internal/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigEnv(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "pack")
	configPath := filepath.Join(t.TempDir(), "config.test.json")

	t.Setenv("ASSETSYNC_SERVER_URL", "https://assets.example.com/pack")
	t.Setenv("ASSETSYNC_DATA_DIR", dataDir)
	t.Setenv("ASSETSYNC_BOOTSTRAP_ARCHIVE", "bootstrap.zip")
	t.Setenv("ASSETSYNC_WORKERS", "3")
	t.Setenv("ASSETSYNC_TIMEOUT", "7")
	t.Setenv(configPathEnv, configPath)

	cfg, err := loadConfig(rootCmd)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://assets.example.com/pack", cfg.ServerURL)
	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, "bootstrap.zip", cfg.BootstrapArchive)
	assert.Equal(t, config.DefaultFilesPath, cfg.FilesPath)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, 7*time.Second, cfg.HTTPTimeout())
}

func TestRunSync(t *testing.T) {
	content := "hello"
	d := sha1.Sum([]byte(content))
	checksum := local.DirChecksum([]string{"docs"}, map[string][]byte{"docs/a.txt": d[:]})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/metadata.sha1":
			w.Write([]byte(hex.EncodeToString(checksum)))
		case "/metadata.json":
			w.Write([]byte(`{"dirs": {"docs": {}}, "files": {"docs/a.txt": {"sha1": "` + hex.EncodeToString(d[:]) + `"}}}`))
		case "/dist/docs/a.txt":
			w.Write([]byte(content))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	cfg := &config.Config{DataDir: t.TempDir(), ServerURL: srv.URL}
	require.NoError(t, cfg.Validate())

	var out bytes.Buffer
	require.NoError(t, runSync(context.Background(), cfg, &out))
	assert.Contains(t, out.String(), "1 created")
	assert.Contains(t, out.String(), "Assets updated")

	got, err := os.ReadFile(filepath.Join(cfg.DataDir, "docs", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, content, string(got))

	out.Reset()
	require.NoError(t, runSync(context.Background(), cfg, &out))
	assert.Contains(t, out.String(), "up to date")
}
