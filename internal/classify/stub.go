package classify

import (
	"context"
	"path/filepath"
	"strings"
)

// StubClassifier returns deterministic results without calling any external
// service (for development and testing when no API key is configured).
type StubClassifier struct{}

func (s *StubClassifier) Classify(_ context.Context, imagePaths []string, boxID string) (*Result, error) {
	name := "item"
	if len(imagePaths) > 0 {
		base := filepath.Base(imagePaths[0])
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return &Result{
		Title:      "[Stub] " + name,
		Type:       "other",
		Notes:      "stub classification for box " + boxID,
		Confidence: 0.5,
	}, nil
}
