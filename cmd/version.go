package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/luma/ramis/internal/meta"
)

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	RunE: func(cmd *cobra.Command, args []string) error {
		info := meta.GetInfo()

		version := info.Version
		if version == "" {
			version = "dev"
		}

		_, err := fmt.Fprintf(cmd.OutOrStdout(), "ramis %s (%s, %s) built %s on %s with %s\n",
			version, info.Build, info.Branch, info.BuildTime, info.Platform, info.GoVersion)
		return err
	},
}
