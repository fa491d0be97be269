package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"dustPool/internal/model"
)

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settlements.jsonl")
	store := NewJsonlStorage(path)
	defer store.Close()
	ctx := context.Background()

	first := model.SettlementRecord{
		Seq:     1,
		Tag:     "borrow",
		Payload: map[string]decimal.Decimal{"amount": decimal.NewFromInt(100)},
		Status:  model.StatusSettled,
	}
	second := model.SettlementRecord{
		Seq:    2,
		Tag:    "deposit",
		Status: model.StatusFailed,
		Error:  "ledger unreachable",
	}

	if err := store.PutSettlements(ctx, []model.SettlementRecord{first}); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := store.PutSettlements(ctx, []model.SettlementRecord{second}); err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if err := store.PutSettlements(ctx, nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer file.Close()

	var got []model.SettlementRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record model.SettlementRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		got = append(got, record)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if got[0].Seq != 1 || got[0].Tag != "borrow" || !got[0].Payload["amount"].Equal(decimal.NewFromInt(100)) {
		t.Fatalf("first record mismatch: %+v", got[0])
	}
	if got[1].Status != model.StatusFailed || got[1].Error != "ledger unreachable" {
		t.Fatalf("second record mismatch: %+v", got[1])
	}
}

type failingStorage struct {
	err   error
	calls int
}

func (f *failingStorage) PutSettlements(context.Context, []model.SettlementRecord) error {
	f.calls++
	return f.err
}

func TestMultiWritesEverySink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settlements.jsonl")
	broken := &failingStorage{err: errors.New("postgres down")}
	journal := NewJsonlStorage(path)
	defer journal.Close()
	multi := Multi{broken, journal}

	err := multi.PutSettlements(context.Background(), []model.SettlementRecord{{Seq: 1, Tag: "repay", Status: model.StatusSettled}})
	if !errors.Is(err, broken.err) {
		t.Fatalf("expected joined sink error, got %v", err)
	}
	if broken.calls != 1 {
		t.Fatalf("expected 1 call, got %d", broken.calls)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("journal should still be written")
	}
}
