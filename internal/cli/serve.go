package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"taskcanvas/internal/backup"
	"taskcanvas/internal/events"
	"taskcanvas/internal/hierarchy"
	"taskcanvas/internal/store"
	"taskcanvas/internal/taskops"
	"taskcanvas/internal/textgen"
	"taskcanvas/internal/uiflags"
	"taskcanvas/internal/web"
)

func defaultDataDir() string {
	// Test/advanced override (keeps unit tests from touching ~/.taskcanvas).
	if v := os.Getenv("TASKCANVAS_DATA_DIR"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskcanvas"
	}
	return filepath.Join(home, ".taskcanvas")
}

func newServeCmd(app *App) *cobra.Command {
	var (
		addr     string
		authMode string
		userID   string
		readOnly bool
		genModel string
		autosync bool
		autoPush bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the taskcanvas API server",
		Long: `Run the HTTP server: project and task CRUD, AI-assisted decomposition
when a Gemini API key is configured, per-user saved workspace state, and a
server-sent event stream of workspace changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := app.Logger()
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := store.Open(ctx, app.DataDir)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			counter := hierarchy.NewCounter(st, log)
			bus := events.NewBus()
			flags := uiflags.New()

			var gen textgen.Generator
			if key := textgen.APIKeyFromEnv(); key != "" {
				client, err := textgen.NewClient(ctx, textgen.Config{
					APIKey: key,
					Model:  genModel,
					Logger: log,
				})
				if err != nil {
					return fmt.Errorf("init generator: %w", err)
				}
				gen = client
				log.Info("task generation enabled", zap.String("model", genModel))
			} else {
				log.Warn("no Gemini API key set; decompose/split/regenerate are disabled")
			}

			if autosync {
				if err := backup.EnsureRepo(ctx, app.DataDir, nil); err != nil {
					return fmt.Errorf("init backup repo: %w", err)
				}
				committer := backup.NewCommitter(backup.Options{
					DataDir:  app.DataDir,
					AutoPush: autoPush,
					Logger:   log,
				})
				ch, cancel := bus.SubscribeAll()
				defer cancel()
				go func() {
					for ev := range ch {
						switch ev.Type {
						case events.ProjectStateUpdated, events.WorkspaceStateSaved:
							committer.Notify(string(ev.Type))
						}
					}
				}()
			}

			ops := taskops.New(taskops.Options{
				API:       &taskops.Local{Store: st, Counter: counter},
				Generator: gen,
				Bus:       bus,
				Logger:    log,
			})

			srv, err := web.NewServer(web.Options{
				Config: web.ServerConfig{
					Addr:          addr,
					DataDir:       app.DataDir,
					AuthMode:      authMode,
					DefaultUserID: userID,
					ReadOnly:      readOnly,
				},
				Store:   st,
				Counter: counter,
				Ops:     ops,
				Bus:     bus,
				Flags:   flags,
				Logger:  log,
			})
			if err != nil {
				return fmt.Errorf("init server: %w", err)
			}
			return srv.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&authMode, "auth", "none", "auth mode: none or token")
	cmd.Flags().StringVar(&userID, "user", "local", "user id for unauthenticated requests")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "reject all write requests")
	cmd.Flags().StringVar(&genModel, "model", "gemini-2.5-flash", "Gemini model for task generation")
	cmd.Flags().BoolVar(&autosync, "autosync", false, "commit the data dir to git after changes")
	cmd.Flags().BoolVar(&autoPush, "auto-push", false, "push backup commits when an upstream exists")
	return cmd
}
