// Package process drives items through their lifecycle: it marks the owning
// batch and the item as processing, runs classification, commits the terminal
// status, and recomputes the batch's rollup counters.
package process

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ephemera-box/catalog/internal/classify"
	"github.com/ephemera-box/catalog/internal/model"
)

// ItemStore is the item-level access the state machine needs.
type ItemStore interface {
	SetItemProcessing(ctx context.Context, id int64) error
	SetItemCompleted(ctx context.Context, id int64, meta model.Metadata) error
	SetItemFailed(ctx context.Context, id int64, errorMessage string) error
}

// BatchStore is the batch-level access the state machine needs.
type BatchStore interface {
	MarkBatchProcessing(ctx context.Context, batchID string) error
	RecountBatch(ctx context.Context, batchID string) (processed, failed int, err error)
}

// Job identifies one item to process, with its ordered image paths (first is
// primary).
type Job struct {
	ItemID     int64
	BatchID    string
	BoxID      string
	ImagePaths []string
}

// Processor runs the per-item state machine.
type Processor struct {
	items      ItemStore
	batches    BatchStore
	classifier classify.Classifier
}

// NewProcessor creates a Processor with the given dependencies.
func NewProcessor(items ItemStore, batches BatchStore, c classify.Classifier) *Processor {
	return &Processor{items: items, batches: batches, classifier: c}
}

// Process drives one item from pending to a terminal status.
//
// The processing transitions commit before the (potentially slow)
// classification call, so status readers never observe pending while work is
// underway. A classification failure is terminal for the item and never
// propagates to the caller; only store failures return an error, leaving the
// item in its last committed state for the startup sweep to recover.
func (p *Processor) Process(ctx context.Context, job Job) (err error) {
	// An unexpected panic anywhere in the job must not take down sibling
	// jobs; convert it to a failed item.
	defer func() {
		if r := recover(); r != nil {
			slog.Error("item job panicked", "item_id", job.ItemID, "panic", r)
			err = p.failItem(ctx, job, fmt.Sprintf("internal error: %v", r))
		}
	}()

	if err := p.batches.MarkBatchProcessing(ctx, job.BatchID); err != nil {
		return fmt.Errorf("mark batch processing: %w", err)
	}
	if err := p.items.SetItemProcessing(ctx, job.ItemID); err != nil {
		return fmt.Errorf("set item processing: %w", err)
	}

	result, cerr := p.classifier.Classify(ctx, job.ImagePaths, job.BoxID)
	if cerr != nil {
		if ctx.Err() != nil {
			// Shutdown, not a classification verdict. Leave the item
			// processing; the startup sweep resets it to pending.
			return ctx.Err()
		}
		slog.Warn("classification failed", "item_id", job.ItemID, "error", cerr)
		return p.failItem(ctx, job, cerr.Error())
	}

	meta := model.Metadata{
		Title:      result.Title,
		Type:       result.Type,
		Year:       result.Year,
		Notes:      result.Notes,
		Confidence: result.Confidence,
	}
	if err := p.items.SetItemCompleted(ctx, job.ItemID, meta); err != nil {
		return fmt.Errorf("set item completed: %w", err)
	}
	slog.Info("item completed", "item_id", job.ItemID, "title", meta.Title, "type", meta.Type)

	return p.recount(ctx, job.BatchID)
}

// failItem commits the failed status and recounts. A handled classification
// failure is not an error of the job itself.
func (p *Processor) failItem(ctx context.Context, job Job, message string) error {
	if err := p.items.SetItemFailed(ctx, job.ItemID, message); err != nil {
		return fmt.Errorf("set item failed: %w", err)
	}
	return p.recount(ctx, job.BatchID)
}

// recount recomputes the batch's processed/failed counters from the item
// rows. Scanning instead of incrementing makes the counters self-healing: a
// missed update is corrected by the next completion's recount.
func (p *Processor) recount(ctx context.Context, batchID string) error {
	processed, failed, err := p.batches.RecountBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("recount batch: %w", err)
	}
	slog.Debug("batch counters recomputed", "batch_id", batchID, "processed", processed, "failed", failed)
	return nil
}
