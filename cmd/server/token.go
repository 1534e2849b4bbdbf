package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/skypro1111/stream-diarizer/internal/server"
)

func newTokenCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.HTTP.AuthSecret == "" {
				return fmt.Errorf("http auth is disabled: set http.auth_secret or HTTP_AUTH_SECRET")
			}

			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			token, err := server.IssueToken([]byte(cfg.HTTP.AuthSecret), subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	c.Flags().String("subject", "operator", "Token subject")
	c.Flags().Duration("ttl", 24*time.Hour, "Token lifetime, 0 for no expiry")
	return c
}
