package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"dustPool/internal/auth"
	"dustPool/internal/metrics"
	"dustPool/internal/model"
	"dustPool/internal/pool"
)

type handlers struct {
	pool    auth.Operator
	metrics *metrics.PoolMetrics
	logger  *zap.Logger
	timeout time.Duration
}

type depositRequest struct {
	Amount *decimal.Decimal `json:"amount"`
}

type repayRequest struct {
	Payment *decimal.Decimal `json:"payment"`
}

func (h *handlers) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.pool.State())
}

func (h *handlers) deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if req.Amount == nil {
		writeJSONError(w, http.StatusBadRequest, errors.New("amount is required"))
		return
	}
	h.run(w, r, func(ctx context.Context) (pool.Receipt, error) {
		return h.pool.Deposit(ctx, *req.Amount)
	})
}

func (h *handlers) borrow(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.pool.Borrow)
}

func (h *handlers) repay(w http.ResponseWriter, r *http.Request) {
	var req repayRequest
	if err := decodeRequest(r, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, err)
		return
	}
	if req.Payment == nil {
		writeJSONError(w, http.StatusBadRequest, errors.New("payment is required"))
		return
	}
	h.run(w, r, func(ctx context.Context) (pool.Receipt, error) {
		return h.pool.Repay(ctx, *req.Payment)
	})
}

func (h *handlers) handleDefault(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, h.pool.HandleDefault)
}

// run executes op detached from client cancellation: once an operation
// starts, its settlement calls finish or time out on their own.
func (h *handlers) run(w http.ResponseWriter, r *http.Request, op func(context.Context) (pool.Receipt, error)) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.timeout)
	defer cancel()

	receipt, err := op(ctx)
	h.metrics.Observe(receipt, err)

	status := statusFor(r.Context(), err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("pool operation failed", zap.String("op", receipt.Op), zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, model.NewOperationResult(0, receipt, err))
}

func statusFor(ctx context.Context, err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, auth.ErrAuthorizationRequired):
		if _, ok := auth.SessionFrom(ctx); ok {
			return http.StatusForbidden
		}
		return http.StatusUnauthorized
	case errors.Is(err, pool.ErrInvalidAmount), errors.Is(err, pool.ErrInvalidPayment):
		return http.StatusBadRequest
	case errors.Is(err, pool.ErrInsufficientLiquidity), errors.Is(err, pool.ErrInsufficientLossReserve):
		return http.StatusConflict
	case errors.Is(err, pool.ErrInvariantViolation):
		return http.StatusServiceUnavailable
	case errors.Is(err, pool.ErrSettlementFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeRequest(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, requestLimit))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
