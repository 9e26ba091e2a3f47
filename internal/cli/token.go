package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"taskcanvas/internal/web"
)

func newTokenCmd(app *App) *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user",
		Long: `Mint a signed bearer token against the server's key in the data
directory. Only useful when the server runs with --auth token.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return fmt.Errorf("--user is required")
			}
			secret, err := web.SecretKey(app.DataDir)
			if err != nil {
				return fmt.Errorf("load signing key: %w", err)
			}
			tok, err := web.NewSessionToken(secret, userID, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
			return err
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id the token authenticates as")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}
