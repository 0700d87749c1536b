package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/playperu/storyline/internal/session"
)

func (a *app) sessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Simulate identity provider events",
	}

	var (
		redisURL string
		channel  string
		device   string
		user     string
	)
	publish := func(event string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			if redisURL == "" {
				redisURL = a.cfg.RedisURL
			}
			if channel == "" {
				channel = a.cfg.SessionChannel
			}
			if redisURL == "" || device == "" {
				return errors.New("--redis (or REDIS_URL) and --device are required")
			}

			e := session.ProviderEvent{Event: event, Device: device, At: time.Now().UTC()}
			if event == session.EventSignedIn {
				id, err := uuid.Parse(user)
				if err != nil {
					return fmt.Errorf("parsing --user: %w", err)
				}
				e.UserID = id
			}

			opt, err := redis.ParseURL(redisURL)
			if err != nil {
				return fmt.Errorf("parsing redis url: %w", err)
			}
			rdb := redis.NewClient(opt)
			defer rdb.Close()

			if err := session.Publish(cmd.Context(), rdb, channel, e); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s published for device %s\n", strings.ToLower(event), device)
			return nil
		}
	}

	signIn := &cobra.Command{
		Use:   "sign-in",
		Short: "Publish a sign-in for a device",
		RunE:  publish(session.EventSignedIn),
	}
	signIn.Flags().StringVar(&user, "user", "", "user id (uuid)")
	signIn.MarkFlagRequired("user")

	signOut := &cobra.Command{
		Use:   "sign-out",
		Short: "Publish a sign-out for a device",
		RunE:  publish(session.EventSignedOut),
	}

	cmd.PersistentFlags().StringVar(&redisURL, "redis", "", "redis URL (default: REDIS_URL)")
	cmd.PersistentFlags().StringVar(&channel, "channel", "", "pub/sub channel (default: SESSION_CHANNEL)")
	cmd.PersistentFlags().StringVar(&device, "device", "", "device id")
	cmd.AddCommand(signIn, signOut)
	return cmd
}
