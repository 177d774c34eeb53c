package store

import (
	"context"

	"github.com/ephemera-box/catalog/internal/model"
)

// BatchReader provides read access to batches.
type BatchReader interface {
	GetBatch(ctx context.Context, batchID string) (*model.Batch, error)
	GetBatchWithItems(ctx context.Context, batchID string) (*model.BatchWithItems, error)
}

// BatchWriter provides write access to batch rows. Every mutation bumps
// updated_at.
type BatchWriter interface {
	CreateBatch(ctx context.Context, boxID string) (*model.Batch, error)
	MarkBatchProcessing(ctx context.Context, batchID string) error
	RecountBatch(ctx context.Context, batchID string) (processed, failed int, err error)
}

// ItemReader provides read access to items.
type ItemReader interface {
	GetItem(ctx context.Context, id int64) (*model.Item, error)
	ListItems(ctx context.Context, batchID string) ([]model.Item, error)
	CountItemsByStatus(ctx context.Context, batchID, status string) (int, error)
}

// ItemWriter provides item creation and the status transitions used by the
// background jobs. Status transitions are atomic at single-item granularity;
// CreateItem also bumps the owning batch's total in the same transaction.
type ItemWriter interface {
	CreateItem(ctx context.Context, item model.Item) (int64, error)
	SetItemProcessing(ctx context.Context, id int64) error
	SetItemCompleted(ctx context.Context, id int64, meta model.Metadata) error
	SetItemFailed(ctx context.Context, id int64, errorMessage string) error
	ResetItemForRetry(ctx context.Context, id int64) error
	ResetStaleProcessing(ctx context.Context) (int64, error)
}

// Repository combines all catalog operations for the API layer.
type Repository interface {
	BatchReader
	BatchWriter
	ItemReader
	ItemWriter
}
