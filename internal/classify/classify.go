// Package classify wraps the external AI service that extracts catalog
// metadata from item photographs. The rest of the system treats it as an
// opaque call that either returns a Result or fails with a
// *ClassificationError.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Classifier extracts metadata from an item's images. imagePaths is ordered;
// the first path is the item's primary image. Implementations own their
// timeout and retry policy.
type Classifier interface {
	Classify(ctx context.Context, imagePaths []string, boxID string) (*Result, error)
}

// Result is the structured output of a successful classification.
type Result struct {
	Title      string  `json:"title"`
	Type       string  `json:"type"`
	Year       string  `json:"year,omitempty"`
	Notes      string  `json:"notes,omitempty"`
	Confidence float64 `json:"confidence"`
}

// ClassificationError is the uniform failure type for the adapter: timeouts,
// network failures, and malformed responses all surface as one of these.
type ClassificationError struct {
	Cause string
}

func (e *ClassificationError) Error() string { return e.Cause }

func failf(format string, args ...any) *ClassificationError {
	return &ClassificationError{Cause: fmt.Sprintf(format, args...)}
}

// parseResult decodes a model response into a Result. Models occasionally
// wrap the JSON in a markdown code fence despite instructions; strip it.
func parseResult(raw string) (*Result, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
		raw = strings.TrimSpace(raw)
	}

	var result Result
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, failf("malformed classifier response: %v", err)
	}
	if result.Title == "" {
		return nil, failf("classifier returned no title")
	}
	if result.Type == "" {
		result.Type = "other"
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
	return &result, nil
}
