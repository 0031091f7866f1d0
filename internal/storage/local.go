package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"acara/internal/apperrors"
)

// LocalStore writes images to a directory on disk. The app serves the
// directory under baseURL (e.g. "/images"), so references are plain
// filenames.
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates the target directory if needed and returns a
// disk-backed image store.
func NewLocalStore(dir, baseURL string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory %s: %w", dir, err)
	}
	return &LocalStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Save validates the upload and writes it under a generated
// collision-resistant name, returning the filename as the reference.
func (s *LocalStore) Save(_ context.Context, up Upload) (string, error) {
	ext, err := checkUpload(up)
	if err != nil {
		return "", err
	}

	name := fmt.Sprintf("event-%s%s", uuid.New().String(), ext)
	path := filepath.Join(s.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create image file: %w", err)
	}
	defer f.Close()

	// LimitReader guards against clients lying about Size.
	written, err := io.Copy(f, io.LimitReader(up.Reader, MaxImageSize+1))
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write image file: %w", err)
	}
	if written > MaxImageSize {
		os.Remove(path)
		return "", apperrors.ErrPayloadTooLarge
	}

	return name, nil
}

// Release unlinks the file behind a reference. A reference that is an
// absolute URL belongs to another backend and is skipped.
func (s *LocalStore) Release(_ context.Context, ref string) error {
	if ref == "" || isAbsoluteURL(ref) {
		return nil
	}
	// Base guards against path traversal in stored references.
	path := filepath.Join(s.dir, filepath.Base(ref))
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove image %s: %w", ref, err)
	}
	return nil
}

// URLFor maps a filename reference onto the public images mount.
func (s *LocalStore) URLFor(ref string) string {
	if ref == "" || isAbsoluteURL(ref) {
		return ref
	}
	return s.baseURL + "/" + filepath.Base(ref)
}

func isAbsoluteURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}
