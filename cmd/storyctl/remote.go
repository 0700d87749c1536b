package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/playperu/storyline/internal/migrations"
)

func (a *app) remoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage the remote account database",
	}

	var dsn string
	resolve := func() (string, error) {
		if dsn == "" {
			dsn = a.cfg.RemoteDSN
		}
		if dsn == "" {
			return "", errors.New("no database: pass --dsn or set REMOTE_DSN")
		}
		return dsn, nil
	}

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending remote schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dsn, err := resolve()
			if err != nil {
				return err
			}
			if err := migrations.RunRemote(dsn); err != nil {
				return err
			}
			v, _, err := migrations.RemoteVersion(dsn)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "remote schema at version %d\n", v)
			return nil
		},
	}

	version := &cobra.Command{
		Use:   "version",
		Short: "Show the applied remote schema version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			dsn, err := resolve()
			if err != nil {
				return err
			}
			v, dirty, err := migrations.RemoteVersion(dsn)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%t\n", v, dirty)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&dsn, "dsn", "", "postgres URL (default: REMOTE_DSN)")
	cmd.AddCommand(migrate, version)
	return cmd
}
