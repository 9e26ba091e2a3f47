package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"taskcanvas/internal/export"
	"taskcanvas/internal/store"
)

func newExportCmd(app *App) *cobra.Command {
	var (
		outPath string
		terse   bool
	)

	cmd := &cobra.Command{
		Use:   "export <project-id>",
		Short: "Render a project's task tree as markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			st, err := store.Open(ctx, app.DataDir)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			project, err := st.GetProject(ctx, args[0])
			if err != nil {
				return err
			}
			tasks, err := st.ListTasks(ctx, project.ID)
			if err != nil {
				return err
			}
			doc, err := export.RenderProjectMarkdown(project, tasks, export.Options{
				IncludeDescriptions: !terse,
				IncludeCounts:       !terse,
			})
			if err != nil {
				return err
			}

			if outPath == "" {
				_, err := fmt.Fprint(cmd.OutOrStdout(), doc)
				return err
			}
			return os.WriteFile(outPath, []byte(doc), 0o644)
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write to file instead of stdout")
	cmd.Flags().BoolVar(&terse, "terse", false, "omit descriptions and counts")
	return cmd
}
