package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"dustPool/internal/pool"
)

// HTTPConfig controls delivery to the contract execution endpoint.
type HTTPConfig struct {
	Endpoint     string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	// BreakerFailures consecutive failed deliveries open the breaker for
	// BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// StatusError is a non-2xx response from the endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("contract call failed: status %d: %s", e.Code, e.Body)
}

// HTTPSettler posts signed settlement requests to a contract execution
// endpoint.
type HTTPSettler struct {
	cfg     HTTPConfig
	client  *http.Client
	signer  *Signer
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
	newID   func() string
}

func NewHTTPSettler(cfg HTTPConfig, signer *Signer, logger *zap.Logger) (*HTTPSettler, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("settlement endpoint is required")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "settlement",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("settlement breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})

	return &HTTPSettler{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		signer:  signer,
		breaker: breaker,
		logger:  logger,
		newID:   uuid.NewString,
	}, nil
}

// Settle delivers req, retrying transient failures under one request id.
func (s *HTTPSettler) Settle(ctx context.Context, req pool.Request) error {
	requestID := s.newID()
	body, err := s.signedBody(req, requestID)
	if err != nil {
		return err
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, withRetry(ctx, s.cfg.MaxRetries, s.cfg.RetryBackoff, func(ctx context.Context) error {
			err := s.post(ctx, body, requestID)
			if err != nil {
				s.logger.Warn("settlement attempt failed",
					zap.String("tag", req.Tag),
					zap.Uint64("seq", req.Seq),
					zap.String("request_id", requestID),
					zap.Error(err),
				)
			}
			return err
		})
	})
	if err != nil {
		return fmt.Errorf("settle %s seq %d: %w", req.Tag, req.Seq, err)
	}

	s.logger.Debug("settled",
		zap.String("tag", req.Tag),
		zap.Uint64("seq", req.Seq),
		zap.String("request_id", requestID),
	)
	return nil
}

// signedBody encodes {action, request_id, seq, ...payload} and appends a
// signature over that encoding.
func (s *HTTPSettler) signedBody(req pool.Request, requestID string) ([]byte, error) {
	fields := unsignedFields(req, requestID)
	unsigned, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal settlement body: %w", err)
	}
	sig, err := s.signer.Sign(unsigned)
	if err != nil {
		return nil, err
	}
	fields["signature"] = sig
	body, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal signed body: %w", err)
	}
	return body, nil
}

func unsignedFields(req pool.Request, requestID string) map[string]interface{} {
	fields := make(map[string]interface{}, len(req.Payload)+3)
	for k, v := range req.Payload {
		fields[k] = v
	}
	fields["action"] = req.Tag
	fields["request_id"] = requestID
	fields["seq"] = req.Seq
	return fields
}

func (s *HTTPSettler) post(ctx context.Context, body []byte, requestID string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return permanent(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", requestID)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	statusErr := &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return permanent(statusErr)
	}
	return statusErr
}
