package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/weft-api/weft/internal/config"
	"github.com/weft-api/weft/internal/web/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue and inspect API credentials",
}

var (
	tokenSubject string
	tokenRoles   string
	tokenTTL     time.Duration
)

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a bearer token signed with the configured secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(".")
		if err != nil {
			return err
		}
		if cfg.Auth.Secret == "" {
			return fmt.Errorf("auth.secret is not configured")
		}

		ttl := tokenTTL
		if ttl == 0 {
			ttl = cfg.Auth.TokenTTL
		}
		var roles []string
		if tokenRoles != "" {
			roles = strings.Split(tokenRoles, ",")
		}

		token, err := auth.NewService(cfg.Auth.Secret, ttl).GenerateToken(tokenSubject, roles)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var tokenHashCmd = &cobra.Command{
	Use:   "hash <password>",
	Short: "Hash a password with bcrypt for seeding credentials",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	tokenIssueCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "token subject")
	tokenIssueCmd.Flags().StringVar(&tokenRoles, "roles", "", "comma-separated roles")
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (default from config)")

	tokenCmd.AddCommand(tokenIssueCmd)
	tokenCmd.AddCommand(tokenHashCmd)
}
