package cli

import (
	"os"

	"github.com/spf13/cobra"

	"taskcanvas/internal/apiclient"
	"taskcanvas/internal/tui"
)

func newTUICmd(app *App) *cobra.Command {
	var (
		server string
		token  string
	)

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Browse projects and tasks in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("TASKCANVAS_TOKEN")
			}
			var opts []apiclient.Option
			if token != "" {
				opts = append(opts, apiclient.WithToken(token))
			}
			client := apiclient.New(server, opts...)
			return tui.Run(client)
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "taskcanvas server URL")
	cmd.Flags().StringVar(&token, "token", "", "bearer token (or TASKCANVAS_TOKEN)")
	return cmd
}
