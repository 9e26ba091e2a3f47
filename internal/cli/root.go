// Package cli wires the taskcanvas commands: the API server, the terminal
// viewer, and token minting for authenticated deployments.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var version = "dev"

type App struct {
	DataDir string
	Verbose bool

	logger *zap.Logger
}

func (a *App) Logger() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "taskcanvas",
		Short:        "AI-assisted project decomposition on a task canvas",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the server with a local SQLite store
  taskcanvas serve --addr :8080

  # Browse a running server from the terminal
  taskcanvas tui --server http://localhost:8080

  # Mint a bearer token for a user (token auth mode)
  taskcanvas token --user alice
`),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := zap.NewProductionConfig()
			cfg.Encoding = "console"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
			if app.Verbose {
				cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			logger, err := cfg.Build()
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			app.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if app.logger != nil {
				_ = app.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&app.DataDir, "data-dir", defaultDataDir(), "directory for the database and saved state")
	cmd.PersistentFlags().BoolVarP(&app.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newServeCmd(app))
	cmd.AddCommand(newTUICmd(app))
	cmd.AddCommand(newExportCmd(app))
	cmd.AddCommand(newDocsCmd(app))
	cmd.AddCommand(newTokenCmd(app))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "taskcanvas", version)
			return err
		},
	}
}
