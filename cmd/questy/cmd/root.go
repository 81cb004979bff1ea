package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nfrund/questy/internal/app"
	"github.com/nfrund/questy/internal/config"
	"github.com/nfrund/questy/internal/logging"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var (
	// cfg is loaded before any command runs.
	cfg *config.Config

	dirFlag       string
	logFormatFlag string
	logLevelFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "questy",
	Short: "Load quests authored in Tengo, Lua and YAML",
	Long: `Questy loads quest definitions from a directory of quest files and
serves them to the rest of a game.

Every authoring format has its own loader. Script quests (Tengo, Lua) define
a quest() function returning the quest; YAML quests are plain documents.
Files that fail to load are reported and skipped.

Available commands:
  load       Load a quest directory once and print the result
  show       Print a single quest
  formats    List the configured authoring formats
  watch      Keep reloading a quest directory as files change
  serve      Serve the loaded quests over HTTP
  extract    Write the bundled sample quests to a directory

Use "questy [command] --help" for more information about a specific command.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute executes the root command. SIGINT and SIGTERM cancel the
// command's context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dirFlag, "dir", "d", "", "quest directory (overrides QUESTY_DIR)")
	rootCmd.PersistentFlags().StringVar(&logFormatFlag, "log-format", "", "log format: text or json (overrides LOG_FORMAT)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "log level: debug, info, warn or error (overrides LOG_LEVEL)")
}

// setup reads the configuration, applies flag overrides and installs the
// default logger.
func setup(cmd *cobra.Command, args []string) error {
	c, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("dir") {
		c.Dir = dirFlag
	}
	if flags.Changed("log-format") {
		c.LogFormat = strings.ToLower(strings.TrimSpace(logFormatFlag))
	}
	if flags.Changed("log-level") {
		c.LogLevel = strings.ToLower(strings.TrimSpace(logLevelFlag))
	}
	if err := c.Validate(); err != nil {
		return err
	}

	if err := logging.New(os.Stderr, c.LogFormat, c.LogLevel); err != nil {
		return err
	}
	cfg = c
	return nil
}

// newDependencies wires the loaders for the configured formats over the OS
// filesystem.
func newDependencies() (*app.Dependencies, error) {
	deps, err := app.New(cfg, afero.NewOsFs())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize questy: %w", err)
	}
	return deps, nil
}
