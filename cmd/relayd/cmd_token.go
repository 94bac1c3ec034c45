package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/serdar/relayd/internal/identity"
)

//nolint:gochecknoglobals // Cobra commands are wired up once at startup.
var (
	tokenUserID string
	tokenEmail  string
	tokenTTL    time.Duration

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user.",
		Long: `Mint a signed bearer token resolving to the given user id and email.
When no id is supplied a fresh one is generated, which is handy for
creating a new test user in one step.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			userID := tokenUserID
			if userID == "" {
				userID = uuid.NewString()
			}

			token, err := identity.NewTokenResolver(cfg.JWTSecret).Sign(userID, tokenEmail, tokenTTL)
			if err != nil {
				return fmt.Errorf("failed to mint token: %w", err)
			}

			fmt.Printf("user id: %s\n", userID)
			fmt.Printf("token:   %s\n", token)

			return nil
		},
	}
)

//nolint:gochecknoinits // Cobra requires flag setup before command execution.
func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "id", "", "user id to embed (default: generate a new one)")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email to embed in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", identity.DefaultTokenTTL, "token lifetime")
}
