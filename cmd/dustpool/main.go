package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dustPool/internal/pool"
)

func main() {
	root := &cobra.Command{
		Use:          "dustpool",
		Short:        "Single-asset constant-product lending pool",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the pool over HTTP",
		RunE:  runServe,
	}

	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().String("token-secret", "", "HMAC secret for session tokens")
	serveCmd.Flags().String("issuer", "dustpool", "session token issuer")
	serveCmd.Flags().Duration("op-timeout", 30*time.Second, "upper bound on one operation including settlement")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	addPoolFlags(serveCmd.Flags())
	addSettlementFlags(serveCmd.Flags())

	root.AddCommand(serveCmd)

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a JSONL operation script against a fresh pool",
		RunE:  runSimulate,
	}

	simulateCmd.Flags().String("in", "", "input operations JSONL")
	simulateCmd.Flags().String("out", "./data/results.jsonl", "output results JSONL")
	simulateCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	addPoolFlags(simulateCmd.Flags())
	addSettlementFlags(simulateCmd.Flags())

	root.AddCommand(simulateCmd)

	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a session token",
		RunE:  runToken,
	}

	tokenCmd.Flags().String("identity", "", "session identity (wallet address)")
	tokenCmd.Flags().String("did", "", "decentralized identifier")
	tokenCmd.Flags().Int("tier", 1, "verification tier")
	tokenCmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	tokenCmd.Flags().String("token-secret", "", "HMAC secret for session tokens")
	tokenCmd.Flags().String("issuer", "dustpool", "session token issuer")
	tokenCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(tokenCmd)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded settlements from Postgres",
		RunE:  runHistory,
	}

	historyCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	historyCmd.Flags().String("since", "", "only records at or after this time (unix seconds or RFC3339)")
	historyCmd.Flags().Int("limit", 50, "maximum records to list")
	historyCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(historyCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addPoolFlags(flags *pflag.FlagSet) {
	p := pool.DefaultParams()
	flags.String("loan-amount", p.LoanAmount.String(), "principal of one loan")
	flags.String("fee-rate", p.FeeRate.String(), "origination fee rate")
	flags.String("interest-rate", p.InterestRate.String(), "interest share of each installment")
	flags.String("default-severity", p.DefaultSeverity.String(), "reserve drawn per default")
	flags.String("reserve-contribution", p.ReserveContribution.String(), "reserve added per loan")
	flags.String("installment-size", p.InstallmentSize.String(), "required repayment installment")
	flags.String("min-deposit", p.MinDeposit.String(), "smallest accepted deposit")
	flags.String("max-deposit", p.MaxDeposit.String(), "largest accepted deposit")
	flags.Bool("deduct-fee", p.DeductFee, "withhold the origination fee from liquidity on borrow")
	flags.String("invariant-tolerance", p.InvariantTolerance.String(), "rounding tolerance for the constant-product check")
}

func addSettlementFlags(flags *pflag.FlagSet) {
	flags.String("settlement-endpoint", "", "contract execution endpoint; empty records locally only")
	flags.String("signing-key", "", "hex secp256k1 key for settlement bodies; empty generates one")
	flags.Duration("settlement-timeout", 10*time.Second, "per-attempt settlement HTTP timeout")
	flags.Int("max-retries", 5, "maximum settlement retry attempts")
	flags.Duration("retry-backoff", 500*time.Millisecond, "initial settlement retry backoff")
	flags.Uint32("breaker-failures", 5, "consecutive failed settlements that open the breaker")
	flags.Duration("breaker-cooldown", 30*time.Second, "time the breaker stays open")
	flags.String("journal", "", "settlement journal JSONL path")
	flags.String("pg-dsn", "", "Postgres DSN for the settlement ledger")
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
