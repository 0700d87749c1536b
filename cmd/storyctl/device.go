package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/playperu/storyline/internal/store"
)

func (a *app) deviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "device",
		Short: "Manage registered devices",
	}

	var dir string
	register := &cobra.Command{
		Use:   "register",
		Short: "Register a device in the local index and print its key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dir == "" {
				dir = a.cfg.DBDir
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("creating data dir: %w", err)
			}
			db, err := store.IndexDB(cmd.Context(), dir)
			if err != nil {
				return err
			}
			defer db.Close()

			id, key, err := store.NewDevices(db).Register(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "device %s\nkey    %s\n", id, key)
			return nil
		},
	}
	register.Flags().StringVar(&dir, "db-dir", "", "data directory (default: DB_DIR)")

	cmd.AddCommand(register)
	return cmd
}
