package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dustPool/internal/config"
	"dustPool/internal/storage/postgres"
)

func runHistory(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadHistory(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}

	since, err := config.ParseTimestamp(cfg.Since)
	if err != nil {
		return fmt.Errorf("parse since: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer store.Close()

	records, err := store.RecentSettlements(ctx, since, cfg.Limit)
	if err != nil {
		return fmt.Errorf("query settlements: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}

	logger.Debug("history listed", zap.Int("records", len(records)), zap.Time("since", since))
	return nil
}
