package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/playperu/storyline/internal/content"
)

func (a *app) contentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content",
		Short: "Inspect chapter content",
	}

	var dir string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate chapter content",
		Long: `Load catalog.yaml and chapters/*.yaml and run every content check.

Without --dir the content embedded in the binary is validated; CONTENT_DIR
is used when set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				dir = a.cfg.ContentDir
			}
			var (
				cat *content.Catalog
				err error
			)
			if dir == "" {
				cat, err = content.Default()
			} else {
				cat, err = content.Load(os.DirFS(dir))
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, ch := range cat.Chapters() {
				fmt.Fprintf(out, "chapter %d  %-32s %2d scenes  %d questions\n",
					ch.ID, ch.Title, len(ch.Scenes), len(ch.Quiz))
			}
			fmt.Fprintf(out, "%d achievements, %d gallery items, %d library entries, endings %v\n",
				len(cat.Achievements), len(cat.Gallery), len(cat.Library), cat.Endings())
			fmt.Fprintln(out, "content OK")
			return nil
		},
	}
	validate.Flags().StringVar(&dir, "dir", "", "content directory (default: embedded content)")

	cmd.AddCommand(validate)
	return cmd
}
