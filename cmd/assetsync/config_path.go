package main

import (
	"os"
	"path/filepath"

	"github.com/openmined/assetsync/internal/config"
	"github.com/openmined/assetsync/internal/utils"
	"github.com/spf13/cobra"
)

const configPathEnv = "ASSETSYNC_CONFIG_PATH"

// configSearchPaths lists the locations checked when neither the flag nor
// the env var names a config file.
func configSearchPaths() []string {
	return []string{
		filepath.Join(home, ".assetsync", "config.json"),
		filepath.Join(home, ".config", "assetsync", "config.json"),
	}
}

// resolveConfigPath picks the config file: the --config flag, then
// ASSETSYNC_CONFIG_PATH, then the first existing search path, then the default.
func resolveConfigPath(cmd *cobra.Command) string {
	if f := cmd.Flag("config"); f != nil && f.Changed {
		return f.Value.String()
	}

	if p := os.Getenv(configPathEnv); p != "" {
		return p
	}

	for _, p := range configSearchPaths() {
		if utils.FileExists(p) {
			return p
		}
	}

	return config.DefaultConfigPath
}
