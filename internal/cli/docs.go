package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"taskcanvas/internal/docs"
)

func newDocsCmd(app *App) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "docs [topic]",
		Short: "Show on-demand documentation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				fmt.Fprintln(out, "Topics:")
				for _, t := range docs.Topics() {
					fmt.Fprintln(out, "  "+t)
				}
				return nil
			}

			topic := args[0]
			body, ok := docs.Get(topic)
			if !ok {
				return fmt.Errorf("unknown docs topic: %q (run `taskcanvas docs` to list topics)", topic)
			}
			if raw {
				_, err := fmt.Fprint(out, body)
				return err
			}

			r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
			if err != nil {
				_, err := fmt.Fprint(out, body)
				return err
			}
			rendered, err := r.Render(body)
			if err != nil {
				rendered = body
			}
			_, err = fmt.Fprint(out, strings.TrimLeft(rendered, "\n"))
			return err
		},
	}

	cmd.Flags().BoolVar(&raw, "raw", false, "print raw markdown")
	return cmd
}
