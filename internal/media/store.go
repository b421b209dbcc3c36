// Package media keeps uploaded campaign attachments on local disk.
package media

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	appErrors "github.com/HugoP8/whazaaa/internal/errors"
)

// Reader is what a dispatch run needs from storage.
type Reader interface {
	Read(path string) ([]byte, error)
	Extension(path string) string
}

var allowedExtensions = map[string]bool{
	"jpeg": true, "jpg": true, "png": true, "mp4": true, "pdf": true, "doc": true, "docx": true,
}

var allowedMIME = []string{
	"image/jpeg",
	"image/png",
	"video/mp4",
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

type Store struct {
	Dir      string
	MaxBytes int64
}

func NewStore(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Store{Dir: dir, MaxBytes: maxBytes}, nil
}

func (s *Store) Read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read media %s: %w", filepath.Base(path), err)
	}
	return data, nil
}

// Extension returns the lower-cased extension without the dot.
func (s *Store) Extension(path string) string {
	return Extension(path)
}

func Extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Save writes an upload under a unique name that keeps the original
// extension, and returns its path. Unsupported files are rejected with a
// validation error.
func (s *Store) Save(name string, r io.Reader) (string, error) {
	ext := Extension(name)
	if !allowedExtensions[ext] {
		return "", appErrors.NewValidationError("media", "unsupported file type: only images, videos and documents are allowed")
	}

	limit := s.MaxBytes
	if limit <= 0 {
		limit = 10 << 20
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return "", appErrors.NewValidationError("media", fmt.Sprintf("file exceeds %d bytes", limit))
	}
	if !allowedContent(data) {
		return "", appErrors.NewValidationError("media", "file content does not match an allowed type")
	}

	path := filepath.Join(s.Dir, fmt.Sprintf("%s.%s", uuid.NewString(), ext))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0640)
	if err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	return path, f.Close()
}

// Remove deletes an upload written by Save. Paths outside Dir are refused.
func (s *Store) Remove(path string) error {
	rel, err := filepath.Rel(s.Dir, path)
	if err != nil || rel != filepath.Base(rel) || rel == "." {
		return fmt.Errorf("refusing to remove %s outside upload dir", path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove media %s: %w", filepath.Base(path), err)
	}
	return nil
}

func allowedContent(data []byte) bool {
	mtype := mimetype.Detect(data)
	for _, m := range allowedMIME {
		if mtype.Is(m) {
			return true
		}
	}
	return false
}

var _ Reader = (*Store)(nil)
