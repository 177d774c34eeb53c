// Package images persists uploaded item photographs to durable storage.
package images

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// maxFilenameLength caps the sanitized part of a stored filename.
const maxFilenameLength = 200

// Store writes uploaded images under a base directory.
type Store struct {
	dir string
}

// New creates the storage directory if needed and returns a Store.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Save writes one uploaded image to disk under a unique name derived from the
// batch id and the sanitized original filename, and returns the stored path.
func (s *Store) Save(batchID, filename string, r io.Reader) (string, error) {
	name := fmt.Sprintf("%s_%s_%s", batchID, uuid.New().String(), SanitizeFilename(filename))
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create image file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write image file: %w", err)
	}

	if w, h, err := Dimensions(path); err != nil {
		// Probe failure is not fatal; the classifier sees the raw bytes.
		slog.Warn("could not read image dimensions", "filename", filename, "error", err)
	} else {
		slog.Info("image saved", "path", name, "width", w, "height", h)
	}

	return path, nil
}

// SanitizeFilename keeps only characters safe for the local filesystem,
// matching the allowed set used for camera uploads: letters, digits, and
// "._- ".
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, c := range name {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '.' || c == '_' || c == '-' || c == ' ':
			b.WriteRune(c)
		}
	}
	safe := b.String()
	if len(safe) > maxFilenameLength {
		safe = safe[:maxFilenameLength]
	}
	if safe == "" {
		safe = "image"
	}
	return safe
}

// Dimensions decodes just the image header and returns width and height.
func Dimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
