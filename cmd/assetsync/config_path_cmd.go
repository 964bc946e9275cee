package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/openmined/assetsync/internal/config"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newConfigPathCmd())
}

func newConfigPathCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "config-path",
		Short: "Print the resolved config file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath(cmd)
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), path); err != nil {
				return err
			}
			if !check {
				return nil
			}

			cfg, err := config.LoadFromFile(path)
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("config file %s does not exist", path)
			} else if err != nil {
				return err
			}
			return cfg.Validate()
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "also load and validate the config file")
	return cmd
}
