package gen

import (
	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate documentation for the ramis command",
	Long:  `Generate documentation for the ramis command`,
}

func init() {
	RootCmd.AddCommand(ManPagesCmd)
}
