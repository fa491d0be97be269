package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dustPool/internal/auth"
	"dustPool/internal/config"
	"dustPool/internal/model"
	"dustPool/internal/pool"
)

const defaultIdentity = "simulator"

func runSimulate(cmd *cobra.Command, _ []string) (err error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadSimulate(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.In == "" {
		return fmt.Errorf("input path is required")
	}
	if cfg.Out == "" {
		return fmt.Errorf("output path is required")
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

	inputFile, err := os.Open(cfg.In)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer inputFile.Close()

	results, err := createResultFile(cfg.Out)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := results.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	logger.Info("simulate start",
		zap.String("in", cfg.In),
		zap.String("out", cfg.Out),
	)

	stats, err := simulate(ctx, inputFile, results, auth.NewGuard(p, logger))
	if err != nil {
		return err
	}

	state := p.State()
	logger.Info("simulate complete",
		zap.Int("total", stats.total),
		zap.Int("ok", stats.ok),
		zap.Int("failed", stats.failed),
		zap.Uint64("seq", state.Seq),
		zap.String("liquidity", state.Liquidity.String()),
		zap.String("loan_tokens", state.LoanTokens.String()),
		zap.String("loss_reserve", state.LossReserve.String()),
		zap.String("total_deposits", state.TotalDeposits.String()),
	)

	return nil
}

type simulateStats struct {
	total, ok, failed int
}

type resultWriter interface {
	Write(value interface{}) error
}

// simulate applies one operation per input line and writes one result per
// operation. Malformed lines are reported and skipped.
func simulate(ctx context.Context, in io.Reader, out resultWriter, op auth.Operator) (simulateStats, error) {
	var stats simulateStats

	scanner := bufio.NewScanner(in)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.total++

		var operation model.Operation
		if err := json.Unmarshal(line, &operation); err != nil {
			stats.failed++
			if err := out.Write(model.OperationResult{Line: lineNo, Error: fmt.Sprintf("decode operation: %v", err)}); err != nil {
				return stats, err
			}
			continue
		}

		receipt, err := apply(withOperationSession(ctx, operation), op, operation)
		if err != nil {
			stats.failed++
		} else {
			stats.ok++
		}
		if err := out.Write(model.NewOperationResult(lineNo, receipt, err)); err != nil {
			return stats, err
		}
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("scan input: %w", err)
	}
	return stats, nil
}

func withOperationSession(ctx context.Context, operation model.Operation) context.Context {
	s := auth.Session{Identity: operation.Identity, Tier: auth.MinTier}
	if s.Identity == "" {
		s.Identity = defaultIdentity
	}
	if operation.Tier != nil {
		s.Tier = *operation.Tier
	}
	return auth.WithSession(ctx, s)
}

func apply(ctx context.Context, op auth.Operator, operation model.Operation) (pool.Receipt, error) {
	switch operation.Op {
	case pool.OpDeposit:
		return op.Deposit(ctx, operation.Amount)
	case pool.OpBorrow:
		return op.Borrow(ctx)
	case pool.OpRepay:
		return op.Repay(ctx, operation.Amount)
	case pool.OpDefault, "default":
		return op.HandleDefault(ctx)
	default:
		return pool.Receipt{Op: operation.Op, State: op.State()}, fmt.Errorf("unknown op %q", operation.Op)
	}
}

// resultFile buffers result lines into a file; Close reports any write the
// buffer still held.
type resultFile struct {
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

func createResultFile(path string) (*resultFile, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create results: %w", err)
	}
	buf := bufio.NewWriter(file)
	return &resultFile{file: file, buf: buf, enc: json.NewEncoder(buf)}, nil
}

func (f *resultFile) Write(value interface{}) error {
	if err := f.enc.Encode(value); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

func (f *resultFile) Close() error {
	flushErr := f.buf.Flush()
	closeErr := f.file.Close()
	if flushErr != nil {
		return fmt.Errorf("flush results: %w", flushErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close results: %w", closeErr)
	}
	return nil
}
