package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/nfrund/questy/internal/app"
	"github.com/nfrund/questy/internal/pubsub"
	"github.com/nfrund/questy/internal/quest"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep reloading the quest directory as files change",
	Long: `Load the quest directory and reload it whenever a quest file is created,
changed or removed. Every reload is summarized on stdout; press Ctrl+C to stop.`,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	deps, err := newDependencies()
	if err != nil {
		return err
	}
	defer deps.Close()

	ctx := cmd.Context()
	if err := printReloads(ctx, deps, cmd.OutOrStdout()); err != nil {
		return err
	}
	if err := deps.Catalog.Watch(ctx, cfg.Dir); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

// printReloads writes a line for every catalog reload and failed file
// published on the bus.
func printReloads(ctx context.Context, deps *app.Dependencies, w io.Writer) error {
	err := deps.Bus.Subscribe(ctx, quest.EventCatalogReloaded.Name(), func(ctx context.Context, msg pubsub.Message) error {
		reloaded, err := quest.EventCatalogReloaded.Decode(msg)
		if err != nil {
			slog.Warn("Discarding malformed reload event", "error", err)
			return nil
		}
		fmt.Fprintf(w, "reloaded %s: %d quest(s), %d failure(s)\n", reloaded.Dir, reloaded.Quests, reloaded.Failures)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to reload events: %w", err)
	}

	err = deps.Bus.Subscribe(ctx, quest.EventLoadFailed.Name(), func(ctx context.Context, msg pubsub.Message) error {
		failed, err := quest.EventLoadFailed.Decode(msg)
		if err != nil {
			slog.Warn("Discarding malformed failure event", "error", err)
			return nil
		}
		fmt.Fprintf(w, "  %s [%s] %s\n", failed.Path, failed.Kind, failed.Message)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to failure events: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
