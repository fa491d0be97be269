package storage

import (
	"context"
	"errors"

	"dustPool/internal/model"
)

// Storage defines a sink for settlement records.
type Storage interface {
	PutSettlements(ctx context.Context, records []model.SettlementRecord) error
}

// Multi writes every batch to each sink in order. All sinks are attempted;
// their errors are joined.
type Multi []Storage

func (m Multi) PutSettlements(ctx context.Context, records []model.SettlementRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.PutSettlements(ctx, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
