package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dustPool/internal/api"
	"dustPool/internal/auth"
	"dustPool/internal/config"
	"dustPool/internal/metrics"
	"dustPool/internal/pool"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.TokenSecret == "" {
		return fmt.Errorf("token secret is required")
	}

	params, err := cfg.Pool.Params()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settler, cleanup, err := buildSettler(ctx, cfg.Settlement, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	p, err := pool.New(params, settler, logger)
	if err != nil {
		return err
	}

	verifier, err := auth.NewVerifier([]byte(cfg.TokenSecret), cfg.Issuer)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	poolMetrics, err := metrics.New(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}
	poolMetrics.SetState(p.State())

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: api.NewRouter(api.Config{
			Pool:     auth.NewGuard(p, logger),
			Verifier: verifier,
			Metrics:  poolMetrics,
			Gatherer: reg,
			Logger:   logger,
			Timeout:  cfg.OpTimeout,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("serve start",
		zap.String("addr", cfg.Addr),
		zap.String("loan_amount", params.LoanAmount.String()),
		zap.Bool("deduct_fee", params.DeductFee),
		zap.Bool("settlement_endpoint", cfg.Settlement.Endpoint != ""),
		zap.String("journal", cfg.Settlement.Journal),
		zap.Bool("postgres", cfg.Settlement.PGDSN != ""),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.OpTimeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	state := p.State()
	logger.Info("serve stopped",
		zap.Uint64("seq", state.Seq),
		zap.String("liquidity", state.Liquidity.String()),
		zap.String("loss_reserve", state.LossReserve.String()),
	)
	return nil
}
