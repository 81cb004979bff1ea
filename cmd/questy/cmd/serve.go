package cmd

import (
	"log/slog"

	"github.com/nfrund/questy/internal/server"
	"github.com/spf13/cobra"
)

var (
	serveAddr  string
	serveWatch bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the loaded quests over HTTP",
	Long: `Load the quest directory and serve the result as JSON.

Endpoints:
  GET  /quests          All quests, ?format= filters by authoring format
  GET  /quests/:name    A single quest
  GET  /formats         Configured authoring formats
  GET  /failures        Files skipped by the last load
  POST /reload          Reload the quest directory
  GET  /health          Liveness probe

With --watch (or QUESTY_HOT_RELOAD=true) the directory is reloaded whenever
a quest file changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		deps, err := newDependencies()
		if err != nil {
			return err
		}
		defer deps.Close()

		ctx := cmd.Context()
		addr := cfg.HTTPAddr
		if cmd.Flags().Changed("addr") {
			addr = serveAddr
		}

		if serveWatch || cfg.HotReload {
			err = deps.Catalog.Watch(ctx, cfg.Dir)
		} else {
			_, err = deps.Catalog.Load(ctx, cfg.Dir)
		}
		if err != nil {
			return err
		}

		slog.Info("Starting quest server", "addr", addr, "dir", cfg.Dir, "hot_reload", serveWatch || cfg.HotReload)
		return server.New(deps.Catalog).Start(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address (overrides QUESTY_HTTP_ADDR)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "reload the quest directory when files change")
	rootCmd.AddCommand(serveCmd)
}
