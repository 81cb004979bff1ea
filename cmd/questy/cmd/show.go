package cmd

import (
	"fmt"

	"github.com/nfrund/questy/cmd/questy/internal/report"
	"github.com/spf13/cobra"
)

var showOutputFormat string

var showCmd = &cobra.Command{
	Use:   "show <quest>",
	Short: "Print a single quest",
	Long: `Load the quest directory and print one quest, looked up by name
(case-insensitively).

Examples:
  questy show "The Wolf Problem"
  questy show arrival --output yaml    # Render the quest as a YAML quest file`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	if err := report.ValidOutput(showOutputFormat, report.OutputTable, report.OutputJSON, report.OutputYAML); err != nil {
		return err
	}

	deps, err := newDependencies()
	if err != nil {
		return err
	}
	defer deps.Close()

	if _, err := deps.Catalog.Load(cmd.Context(), cfg.Dir); err != nil {
		return err
	}

	q, ok := deps.Catalog.Quest(args[0])
	if !ok {
		return fmt.Errorf("quest %q not found in %s", args[0], cfg.Dir)
	}
	return report.DisplayQuestDetails(cmd.OutOrStdout(), q, showOutputFormat)
}

func init() {
	showCmd.Flags().StringVarP(&showOutputFormat, "output", "o", report.OutputTable, "output format: table, json or yaml")
	rootCmd.AddCommand(showCmd)
}
