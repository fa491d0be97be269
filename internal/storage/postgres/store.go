package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"dustPool/internal/model"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS settlements (
	instance       TEXT        NOT NULL,
	seq            BIGINT      NOT NULL,
	tag            TEXT        NOT NULL,
	payload        JSONB       NOT NULL,
	status         TEXT        NOT NULL,
	error          TEXT        NOT NULL DEFAULT '',
	liquidity      NUMERIC     NOT NULL,
	loan_tokens    NUMERIC     NOT NULL,
	loss_reserve   NUMERIC     NOT NULL,
	total_deposits NUMERIC     NOT NULL,
	recorded_at    TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (instance, seq, tag)
)`

// Store provides Postgres persistence for the settlement ledger.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the settlements table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// PutSettlements inserts settlement records, updating the outcome of an
// (instance, seq, tag) key already present.
func (s *Store) PutSettlements(ctx context.Context, records []model.SettlementRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range records {
		if r.Instance == "" {
			return fmt.Errorf("settlement seq %d %s: instance is required", r.Seq, r.Tag)
		}
		payload, err := json.Marshal(r.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		recordedAt, err := parseRecordedAt(r.RecordedAt)
		if err != nil {
			return err
		}
		batch.Queue(`
			INSERT INTO settlements (
				instance, seq, tag, payload, status, error, liquidity, loan_tokens, loss_reserve, total_deposits,
				recorded_at, created_at, updated_at
			) VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7::numeric, $8::numeric, $9::numeric, $10::numeric, $11, now(), now())
			ON CONFLICT (instance, seq, tag)
			DO UPDATE SET
				status = EXCLUDED.status,
				error = EXCLUDED.error,
				recorded_at = EXCLUDED.recorded_at,
				updated_at = now()
		`,
			r.Instance,
			int64(r.Seq),
			r.Tag,
			string(payload),
			r.Status,
			r.Error,
			r.Liquidity.String(),
			r.LoanTokens.String(),
			r.LossReserve.String(),
			r.TotalDeposits.String(),
			recordedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// RecentSettlements returns up to limit records recorded at or after since,
// newest first.
func (s *Store) RecentSettlements(ctx context.Context, since time.Time, limit int) ([]model.SettlementRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	rows, err := s.pool.Query(ctx, `
		SELECT instance, seq, tag, payload::text, status, error,
			liquidity::text, loan_tokens::text, loss_reserve::text, total_deposits::text, recorded_at
		FROM settlements
		WHERE recorded_at >= $1
		ORDER BY recorded_at DESC, seq DESC
		LIMIT $2
	`, since.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SettlementRecord
	for rows.Next() {
		var (
			seq                                   int64
			payload                               string
			liquidity, loanTokens, loss, deposits string
			recordedAt                            time.Time
			r                                     model.SettlementRecord
		)
		if err := rows.Scan(&r.Instance, &seq, &r.Tag, &payload, &r.Status, &r.Error,
			&liquidity, &loanTokens, &loss, &deposits, &recordedAt); err != nil {
			return nil, err
		}
		r.Seq = uint64(seq)
		r.RecordedAt = recordedAt.UTC().Format(time.RFC3339Nano)
		if err := json.Unmarshal([]byte(payload), &r.Payload); err != nil {
			return nil, fmt.Errorf("decode payload seq %d: %w", seq, err)
		}
		if r.Liquidity, err = decimal.NewFromString(liquidity); err != nil {
			return nil, fmt.Errorf("decode liquidity seq %d: %w", seq, err)
		}
		if r.LoanTokens, err = decimal.NewFromString(loanTokens); err != nil {
			return nil, fmt.Errorf("decode loan tokens seq %d: %w", seq, err)
		}
		if r.LossReserve, err = decimal.NewFromString(loss); err != nil {
			return nil, fmt.Errorf("decode loss reserve seq %d: %w", seq, err)
		}
		if r.TotalDeposits, err = decimal.NewFromString(deposits); err != nil {
			return nil, fmt.Errorf("decode total deposits seq %d: %w", seq, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func parseRecordedAt(value string) (time.Time, error) {
	if value == "" {
		return time.Now().UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse recorded_at: %w", err)
	}
	return ts, nil
}
