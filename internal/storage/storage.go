// Package storage holds image bytes outside the relational rows.
// Events carry only an opaque reference; the backend behind it is
// swappable between local disk and S3-compatible object storage.
package storage

import (
	"context"
	"io"

	"acara/internal/apperrors"
)

// MaxImageSize is the upload size ceiling.
const MaxImageSize = 5 << 20 // 5 MiB

// allowedTypes is the MIME allow-list for uploaded images.
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Upload describes an incoming image file.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
}

// ImageStore persists uploaded images and resolves references back to
// retrievable URLs. Release is best-effort: callers log failures and
// carry on.
type ImageStore interface {
	// Save validates and persists the upload, returning an opaque
	// reference to store alongside the event.
	Save(ctx context.Context, up Upload) (string, error)
	// Release deletes the stored object behind a reference.
	Release(ctx context.Context, ref string) error
	// URLFor builds a retrievable URL for a reference. References
	// that are already absolute URLs pass through unchanged.
	URLFor(ref string) string
}

// checkUpload enforces the MIME allow-list and size ceiling, returning
// the canonical file extension for the content type.
func checkUpload(up Upload) (string, error) {
	ext, ok := allowedTypes[up.ContentType]
	if !ok {
		return "", apperrors.ErrUnsupportedMediaType
	}
	if up.Size > MaxImageSize {
		return "", apperrors.ErrPayloadTooLarge
	}
	return ext, nil
}
