// cmd/dispatch/templates.go
// templates 與 token 命令

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mail-dispatch/internal/api/middlewares"
	"mail-dispatch/internal/config"
	"mail-dispatch/internal/loader"
)

func newTemplatesCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List the HTML templates available for sending",
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := loader.ListTemplates(cfg.TemplatesDir)
			if err != nil {
				return err
			}
			for i, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.TemplatesDir, "templates-dir", cfg.TemplatesDir, "template directory")
	return cmd
}

func newTokenCmd(cfg *config.Config) *cobra.Command {
	var (
		client      string
		permissions []string
		ttl         time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the status API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := middlewares.IssueToken(cfg.JWTSecret, client, permissions, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&client, "client", "operator", "client id stored in the token")
	cmd.Flags().StringSliceVar(&permissions, "permissions", []string{middlewares.PermissionStatusRead}, "granted permissions")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")

	return cmd
}
