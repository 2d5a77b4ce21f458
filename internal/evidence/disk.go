// Package evidence stores raw submission proof. The disk store is the
// engine's primary evidence sink; the Cloudinary client mirrors committed
// evidence off-site for audit retention.
package evidence

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Disk writes evidence files under a base directory and hands back paths
// relative to it. Filenames are random, so the handle says nothing about the
// submission it belongs to.
type Disk struct {
	base string
}

// NewDisk creates the base directory when missing.
func NewDisk(base string) (*Disk, error) {
	if base == "" {
		base = "assets/attendance_images"
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("create evidence dir: %w", err)
	}
	return &Disk{base: base}, nil
}

// Save writes the payload and returns its relative path.
func (d *Disk) Save(_ context.Context, data []byte) (string, error) {
	name := uuid.NewString() + extensionFor(data)
	full := filepath.Join(d.base, name)
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", fmt.Errorf("write evidence: %w", err)
	}
	return name, nil
}

// Load reads back a previously saved payload by its handle.
func (d *Disk) Load(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.base, filepath.Base(name)))
	if err != nil {
		return nil, fmt.Errorf("read evidence: %w", err)
	}
	return data, nil
}

func extensionFor(data []byte) string {
	switch http.DetectContentType(data) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	default:
		return ".bin"
	}
}
