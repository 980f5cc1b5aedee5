package gen

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/luma/ramis/internal/meta"
)

var (
	manDir     string
	manSection string
)

var ManPagesCmd = &cobra.Command{
	Use:   "man",
	Short: "Generate man pages for the ramis command",
	Long: `Generate up-to-date man pages for ramis and every subcommand. By
default the files are written to the "man" directory under the current
directory.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		version := meta.Version
		if version == "" {
			version = "dev"
		}

		header := &doc.GenManHeader{
			Section: manSection,
			Manual:  "Ramis Client Manual",
			Source:  fmt.Sprintf("%s %s", cmd.Root().Name(), version),
		}

		if !strings.HasSuffix(manDir, string(filepath.Separator)) {
			manDir += string(filepath.Separator)
		}

		out := cmd.OutOrStdout()

		if _, err := os.Stat(manDir); err != nil && os.IsNotExist(err) {
			fmt.Fprintln(out, "Directory", manDir, "does not exist, creating...")
			if err := os.MkdirAll(manDir, 0750); err != nil {
				return err
			}
		}

		cmd.Root().DisableAutoGenTag = true

		fmt.Fprintln(out, "Generating ramis man pages in", manDir, "...")

		if err := doc.GenManTree(cmd.Root(), header, manDir); err != nil {
			return err
		}

		fmt.Fprintln(out, "Done.")

		return nil
	},
}

func init() {
	flags := ManPagesCmd.PersistentFlags()

	flags.StringVar(&manDir, "dir", "man/", "the directory to write the man pages.")
	flags.StringVar(&manSection, "section", "1", "the man section the pages belong to.")

	// For bash-completion
	if err := flags.SetAnnotation("dir", cobra.BashCompSubdirsInDir, []string{}); err != nil {
		panic(err)
	}
}
