package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dustPool/internal/auth"
	"dustPool/internal/config"
)

func runToken(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadToken(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.Identity == "" {
		return fmt.Errorf("identity is required")
	}

	issuer, err := auth.NewIssuer([]byte(cfg.TokenSecret), cfg.Issuer, cfg.TTL)
	if err != nil {
		return err
	}
	token, err := issuer.Issue(auth.Session{Identity: cfg.Identity, DID: cfg.DID, Tier: cfg.Tier})
	if err != nil {
		return err
	}

	logger.Debug("token issued",
		zap.String("identity", cfg.Identity),
		zap.Int("tier", cfg.Tier),
		zap.Duration("ttl", cfg.TTL),
	)
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
