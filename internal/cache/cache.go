package cache

import (
	"context"
	"time"

	"basreng/backend/internal/domain"
)

// ReceiptCache stores rendered receipts by transaction code. Transactions are
// immutable once written, so an entry only goes stale on delete.
type ReceiptCache interface {
	Get(ctx context.Context, code string) (*domain.Receipt, bool, error)
	Set(ctx context.Context, code string, value *domain.Receipt, ttl time.Duration) error
	Delete(ctx context.Context, code string) error
}

func ReceiptKey(code string) string {
	return "receipt:" + code
}

type NoopReceiptCache struct{}

func (NoopReceiptCache) Get(_ context.Context, _ string) (*domain.Receipt, bool, error) {
	return nil, false, nil
}

func (NoopReceiptCache) Set(_ context.Context, _ string, _ *domain.Receipt, _ time.Duration) error {
	return nil
}

func (NoopReceiptCache) Delete(_ context.Context, _ string) error {
	return nil
}
