package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dustPool/internal/model"
	"dustPool/internal/pool"
	"dustPool/internal/storage"
)

// Recorder persists every settlement request and its outcome. With a nil
// next settler the sink itself is the ledger; otherwise a failed write is
// logged and the settlement outcome stands.
type Recorder struct {
	next     pool.Settler
	sink     storage.Storage
	logger   *zap.Logger
	instance string
	now      func() time.Time
}

func NewRecorder(next pool.Settler, sink storage.Storage, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		next:     next,
		sink:     sink,
		logger:   logger,
		instance: uuid.NewString(),
		now:      time.Now,
	}
}

// Instance identifies the pool lifetime this recorder writes for.
func (r *Recorder) Instance() string {
	return r.instance
}

func (r *Recorder) Settle(ctx context.Context, req pool.Request) error {
	status := model.StatusRecorded
	var settleErr error
	if r.next != nil {
		settleErr = r.next.Settle(ctx, req)
		status = model.StatusSettled
		if settleErr != nil {
			status = model.StatusFailed
		}
	}

	record := model.SettlementRecord{
		Instance:      r.instance,
		Seq:           req.Seq,
		Tag:           req.Tag,
		Payload:       req.Payload,
		Status:        status,
		Liquidity:     req.State.Liquidity,
		LoanTokens:    req.State.LoanTokens,
		LossReserve:   req.State.LossReserve,
		TotalDeposits: req.State.TotalDeposits,
		RecordedAt:    r.now().UTC().Format(time.RFC3339Nano),
	}
	if settleErr != nil {
		record.Error = settleErr.Error()
	}

	if r.sink == nil {
		return settleErr
	}
	if err := r.sink.PutSettlements(ctx, []model.SettlementRecord{record}); err != nil {
		r.logger.Warn("record settlement",
			zap.String("instance", r.instance),
			zap.String("tag", req.Tag),
			zap.Uint64("seq", req.Seq),
			zap.String("status", status),
			zap.Error(err),
		)
		if r.next == nil {
			return fmt.Errorf("record settlement: %w", err)
		}
	}
	return settleErr
}
