package main

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/openmined/assetsync/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newVersionCmd())
}

func newVersionCmd() *cobra.Command {
	var short, asJSON bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print AssetSync version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch {
			case asJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(version.Current())
			case short:
				_, err := fmt.Fprintln(out, version.Short())
				return err
			default:
				_, err := fmt.Fprintf(out, "%s %s\n", version.AppName, version.Detailed())
				return err
			}
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "print only the version and revision")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print build metadata as JSON")
	cmd.MarkFlagsMutuallyExclusive("short", "json")
	return cmd
}
