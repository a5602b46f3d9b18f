package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/passagekit/passage/internal/auth"
	"github.com/passagekit/passage/internal/config"
)

func newTokenCmd() *cobra.Command {
	var (
		name   string
		expiry time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Mint a JWT for API access",
		Long: "Token signs a JWT with the configured JWT_SECRET. Pass the result\n" +
			"as a bearer credential in the Authorization header.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET must be set to mint tokens")
			}

			jwtCfg := auth.DefaultJWTConfig(cfg.JWTSecret)
			jwtCfg.Expiry = cfg.JWTExpiry
			if expiry > 0 {
				jwtCfg.Expiry = expiry
			}

			token, err := auth.NewJWTManager(jwtCfg).GenerateToken(args[0], name)
			if err != nil {
				return fmt.Errorf("failed to generate token: %w", err)
			}

			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name embedded in the token")
	cmd.Flags().DurationVar(&expiry, "expiry", 0, "token lifetime (default from JWT_EXPIRY)")

	return cmd
}
