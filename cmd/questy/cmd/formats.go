package cmd

import (
	"github.com/nfrund/questy/cmd/questy/internal/report"
	"github.com/spf13/cobra"
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List the configured authoring formats",
	Long: `List the authoring formats enabled through QUESTY_FORMATS, in the order
their loaders are consulted, with the file suffixes each one picks up.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := newDependencies()
		if err != nil {
			return err
		}
		defer deps.Close()

		report.DisplayFormats(cmd.OutOrStdout(), deps.Catalog.Formats(), deps.Catalog.SuffixesByFormat())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(formatsCmd)
}
