package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/openmined/assetsync/internal/utils"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigPath  = filepath.Join(home, ".assetsync", "config.json")
	DefaultLogFilePath = filepath.Join(home, ".assetsync", "logs", "assetsync.log")
	DefaultDataDir     = filepath.Join(home, "AssetSync")
	DefaultFilesPath   = "dist"
	DefaultWorkers     = 4
	DefaultTimeout     = 20
)

var (
	ErrNoServerURL = errors.New("config: server url missing")
	ErrNoDataDir   = errors.New("config: data dir missing")
)

type Config struct {
	DataDir          string `json:"data_dir"`
	ServerURL        string `json:"server_url"`
	FilesPath        string `json:"files_path,omitempty"`
	BootstrapArchive string `json:"bootstrap_archive,omitempty"`
	Workers          int    `json:"workers,omitempty"`
	Timeout          int    `json:"timeout,omitempty"` // seconds, per connect and per read
	Path             string `json:"-"`
}

// Validate normalizes paths and fills defaults. It must be called before the
// config is used.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return ErrNoDataDir
	}
	dataDir, err := utils.ResolvePath(c.DataDir)
	if err != nil {
		return fmt.Errorf("config: data dir: %w", err)
	}
	c.DataDir = dataDir

	if c.ServerURL == "" {
		return ErrNoServerURL
	}
	if err := validateURL(c.ServerURL); err != nil {
		return fmt.Errorf("config: invalid server url %q: %w", c.ServerURL, err)
	}
	c.ServerURL = strings.TrimRight(c.ServerURL, "/")

	if c.Path != "" {
		path, err := utils.ResolvePath(c.Path)
		if err != nil {
			return fmt.Errorf("config: path: %w", err)
		}
		c.Path = path
	}

	if c.FilesPath == "" {
		c.FilesPath = DefaultFilesPath
	}
	c.FilesPath = strings.Trim(c.FilesPath, "/")

	if strings.Contains(c.BootstrapArchive, "..") {
		return fmt.Errorf("config: invalid bootstrap archive %q", c.BootstrapArchive)
	}

	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}

	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}

	return nil
}

// HTTPTimeout is Timeout as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.Path = path

	return &cfg, nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
