package main

import (
	"encoding/hex"
	"fmt"

	"github.com/openmined/assetsync/internal/local"
	"github.com/openmined/assetsync/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newScanCmd())
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan <dir>",
		Short: "Print the aggregate checksum of a local asset directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := utils.ResolvePath(args[0])
			if err != nil {
				return err
			}

			m := local.New(dir)
			if err := m.ScanDir(cmd.Context(), nil); err != nil {
				return err
			}

			stats := m.CacheStats()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, hex.EncodeToString(m.DirChecksum()))
			fmt.Fprintln(out, gray.Render(fmt.Sprintf("%d dirs, %d files (%d cached, %d hashed, %d cache entries)",
				len(m.Dirs), len(m.Files), stats.Hits, stats.Misses, stats.Entries)))
			return nil
		},
	}
}
