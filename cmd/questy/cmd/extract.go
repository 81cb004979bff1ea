package cmd

import (
	"github.com/nfrund/questy/internal/samples"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var extractForce bool

var extractCmd = &cobra.Command{
	Use:   "extract [dir]",
	Short: "Write the bundled sample quests to a directory",
	Long: `Write one sample quest per authoring format to dir, or to the quest
directory when dir is omitted. An existing directory is only written to
with --force.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := cfg.Dir
		if len(args) == 1 {
			dir = args[0]
		}
		_, err := samples.NewExtractor(afero.NewOsFs(), cmd.OutOrStdout(), extractForce).Extract(dir)
		return err
	},
}

func init() {
	extractCmd.Flags().BoolVar(&extractForce, "force", false, "overwrite files in an existing directory")
	rootCmd.AddCommand(extractCmd)
}
