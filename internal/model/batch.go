package model

import "time"

// Batch status constants. A batch never stores a terminal status; "done" is
// derived from its counters (see Batch.Done).
const (
	BatchPending    = "pending"
	BatchProcessing = "processing"
)

// Batch groups the items catalogued from one physical storage box.
// The processed/failed counters are rollups recomputed from the batch's
// items; they are reconcilable against the item rows at any time.
type Batch struct {
	BatchID           string `json:"batch_id"`
	BoxID             string `json:"box_id"`
	TotalImages       int    `json:"total_images"`
	Processed         int    `json:"processed"`
	Failed            int    `json:"failed"`
	Status            string `json:"status"`
	CurrentImageIndex int    `json:"current_image_index"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

// Done reports whether every item of the batch has reached a terminal status.
// An empty batch is never done.
func (b Batch) Done() bool {
	return b.TotalImages > 0 && b.Processed+b.Failed >= b.TotalImages
}

// BatchWithItems is a Batch together with its items.
type BatchWithItems struct {
	Batch
	Done  bool   `json:"done"`
	Items []Item `json:"items"`
}

// NewBatch creates an empty pending Batch for the given box.
func NewBatch(batchID, boxID string) Batch {
	now := time.Now().UTC().Format(time.RFC3339)
	return Batch{
		BatchID:   batchID,
		BoxID:     boxID,
		Status:    BatchPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
