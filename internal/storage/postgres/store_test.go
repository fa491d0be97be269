package postgres

import (
	"context"
	"strings"
	"testing"

	"dustPool/internal/model"
)

func TestPutSettlementsRequiresInstance(t *testing.T) {
	store := &Store{}
	err := store.PutSettlements(context.Background(), []model.SettlementRecord{{Seq: 1, Tag: "deposit"}})
	if err == nil {
		t.Fatalf("expected error for record without instance")
	}
	if !strings.Contains(err.Error(), "instance is required") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPutSettlementsEmptyBatch(t *testing.T) {
	store := &Store{}
	if err := store.PutSettlements(context.Background(), nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}

func TestSchemaKeysByInstance(t *testing.T) {
	if !strings.Contains(schemaSQL, "PRIMARY KEY (instance, seq, tag)") {
		t.Fatalf("settlements must be keyed by pool instance")
	}
}
