package main

import (
	"fmt"

	"github.com/openmined/assetsync/internal/archive"
	"github.com/openmined/assetsync/internal/utils"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newExtractCmd())
}

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <archive.zip> <dir>",
		Short: "Unpack a zip archive into an asset directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest, err := utils.ResolvePath(args[1])
			if err != nil {
				return err
			}

			receiver, done := newReceiver(cmd.OutOrStdout())
			err = archive.ExtractZip(args[0], dest, receiver)
			done()
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), green.Render("Extracted to "+dest))
			return nil
		},
	}
}
