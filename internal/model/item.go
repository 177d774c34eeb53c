package model

import "time"

// Item status constants. Within one processing attempt an item only moves
// forward: pending → processing → completed|failed.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// TypeOther is the sentinel item type used until classification assigns one.
const TypeOther = "other"

// Item is a single catalog entry derived from one or more uploaded images.
// Only the primary (first) image is tracked on the item itself.
type Item struct {
	ID           int64    `json:"id"`
	BatchID      string   `json:"batch_id"`
	BoxID        string   `json:"box_id"`
	Filename     string   `json:"filename"`
	ImagePath    string   `json:"image_path"`
	Title        string   `json:"title"`
	Type         string   `json:"type"`
	Year         string   `json:"year"`
	Notes        string   `json:"notes"`
	Confidence   *float64 `json:"confidence,omitempty"`
	Status       string   `json:"status"`
	ErrorMessage *string  `json:"error_message,omitempty"`
	ProcessedAt  *string  `json:"processed_at,omitempty"`
	CreatedAt    string   `json:"created_at"`
	UpdatedAt    string   `json:"updated_at"`
}

// Metadata holds the AI-extracted fields written when an item completes.
type Metadata struct {
	Title      string
	Type       string
	Year       string
	Notes      string
	Confidence float64
}

// NewItem creates a pending Item with blank metadata.
func NewItem(batchID, boxID, filename, imagePath string) Item {
	now := time.Now().UTC().Format(time.RFC3339)
	return Item{
		BatchID:   batchID,
		BoxID:     boxID,
		Filename:  filename,
		ImagePath: imagePath,
		Type:      TypeOther,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
