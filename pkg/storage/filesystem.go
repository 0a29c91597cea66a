package storage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Well-known scopes under the uploads base directory.
const (
	ScopeMaterials   = "materials"
	ScopeSubmissions = "submissions"
	ScopeThumbnails  = "thumbnails"
)

// LocalStorage persists uploaded files on disk under a base directory.
// Stored names are UUID-based so concurrent uploads never collide; the
// original filename is kept by callers for display only.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory and scope subdirectories exist.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	for _, scope := range []string{ScopeMaterials, ScopeSubmissions, ScopeThumbnails} {
		if err := os.MkdirAll(filepath.Join(baseDir, scope), 0o755); err != nil {
			return nil, fmt.Errorf("create uploads directory: %w", err)
		}
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// SaveUpload streams a multipart file into the given scope and returns the
// relative stored path.
func (s *LocalStorage) SaveUpload(scope string, header *multipart.FileHeader) (string, error) {
	src, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("open uploaded file: %w", err)
	}
	defer src.Close() //nolint:errcheck

	name := uuid.NewString() + sanitizeExt(header.Filename)
	rel := filepath.Join(scope, name)

	dst, err := os.Create(s.resolve(rel))
	if err != nil {
		return "", fmt.Errorf("create stored file: %w", err)
	}
	defer dst.Close() //nolint:errcheck

	if _, err := io.Copy(dst, src); err != nil {
		_ = os.Remove(s.resolve(rel))
		return "", fmt.Errorf("write stored file: %w", err)
	}
	return rel, nil
}

// Open returns a read-only handle for the stored file.
func (s *LocalStorage) Open(relPath string) (*os.File, error) {
	file, err := os.Open(s.resolve(relPath))
	if err != nil {
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	return file, nil
}

// Exists reports whether the stored file is present on disk.
func (s *LocalStorage) Exists(relPath string) bool {
	info, err := os.Stat(s.resolve(relPath))
	return err == nil && !info.IsDir()
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(relPath string) error {
	if err := os.Remove(s.resolve(relPath)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete stored file: %w", err)
	}
	return nil
}

// PublicDir exposes the base directory for read-only static serving.
func (s *LocalStorage) PublicDir() string {
	return s.baseDir
}

func (s *LocalStorage) resolve(relPath string) string {
	return filepath.Join(s.baseDir, filepath.Clean("/"+relPath))
}

func sanitizeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 10 || strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}
