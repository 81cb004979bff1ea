package cmd

import (
	"fmt"

	"github.com/nfrund/questy/cmd/questy/internal/report"
	"github.com/spf13/cobra"
)

var (
	loadOutputFormat string
	loadFormatFilter string
	loadStrict       bool
)

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load the quest directory once and print the result",
	Long: `Load every quest file in the quest directory with the configured loaders
and print the quests that loaded together with the files that did not.

Examples:
  questy load                          # Table of quests and failures
  questy load --dir ./quests --output json
  questy load --format lua             # Only quests authored in Lua
  questy load --strict                 # Exit non-zero when any file fails`,
	RunE: runLoad,
}

func runLoad(cmd *cobra.Command, args []string) error {
	if err := report.ValidOutput(loadOutputFormat, report.OutputTable, report.OutputJSON); err != nil {
		return err
	}

	deps, err := newDependencies()
	if err != nil {
		return err
	}
	defer deps.Close()

	snap, err := deps.Catalog.Load(cmd.Context(), cfg.Dir)
	if err != nil {
		return err
	}

	quests := report.FilterByFormat(snap.Quests.Sorted(), loadFormatFilter)
	out := cmd.OutOrStdout()
	if loadOutputFormat == report.OutputJSON {
		if err := report.DisplayLoadJSON(out, snap, quests); err != nil {
			return err
		}
	} else {
		report.DisplayLoadTable(out, snap, quests)
	}

	if loadStrict && len(snap.Failures) > 0 {
		return fmt.Errorf("%d quest file(s) failed to load", len(snap.Failures))
	}
	return nil
}

func init() {
	loadCmd.Flags().StringVarP(&loadOutputFormat, "output", "o", report.OutputTable, "output format: table or json")
	loadCmd.Flags().StringVarP(&loadFormatFilter, "format", "f", "", "only show quests of this authoring format")
	loadCmd.Flags().BoolVar(&loadStrict, "strict", false, "fail when any quest file could not be loaded")
	rootCmd.AddCommand(loadCmd)
}
