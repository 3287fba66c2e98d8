// Package blob provides content-addressed storage for edition PDFs and
// rendered page images, spread across named backends so archived editions can
// live on separate storage while file serving stays backend-agnostic.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PrimaryBackend is the backend new uploads are written to.
const PrimaryBackend = "local"

// Store manages blobs across named filesystem backends.
type Store struct {
	backends map[string]string // name -> root dir
}

// New creates a blob store rooted at dataDir with the default backends:
// "local" (dataDir/blobs) and "archive" (dataDir/archive).
func New(dataDir string) (*Store, error) {
	s := &Store{backends: map[string]string{
		PrimaryBackend: filepath.Join(dataDir, "blobs"),
		"archive":      filepath.Join(dataDir, "archive"),
	}}
	for name, root := range s.backends {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s backend root: %w", name, err)
		}
	}
	return s, nil
}

// Backends returns the configured backend names.
func (s *Store) Backends() []string {
	names := make([]string, 0, len(s.backends))
	for name := range s.backends {
		names = append(names, name)
	}
	return names
}

// HashBytes returns the content hash used as the dedup key for uploads.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// PDFKey is the blob key for an edition's original PDF.
func PDFKey(contentHash string) string {
	return filepath.Join("sha256", contentHash[:2], contentHash+".pdf")
}

// PageImageKey is the blob key for a rendered page image.
func PageImageKey(editionID string, pageNumber int) string {
	return filepath.Join("editions", editionID, "pages", fmt.Sprintf("page-%04d.png", pageNumber))
}

func (s *Store) path(backend, key string) (string, error) {
	root, ok := s.backends[backend]
	if !ok {
		return "", fmt.Errorf("unknown blob backend: %s", backend)
	}
	return filepath.Join(root, key), nil
}

// Put writes data under key in the given backend.
func (s *Store) Put(backend, key string, data []byte) error {
	p, err := s.path(backend, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}
	// Write-then-rename so readers never observe a partial blob.
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	return os.Rename(tmp, p)
}

// Get reads the blob stored under key in the given backend.
func (s *Store) Get(backend, key string) ([]byte, error) {
	p, err := s.path(backend, key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s/%s: %w", backend, key, err)
	}
	return data, nil
}

// Open returns a reader for the blob; callers stream large PDFs through it.
func (s *Store) Open(backend, key string) (io.ReadCloser, error) {
	p, err := s.path(backend, key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s/%s: %w", backend, key, err)
	}
	return f, nil
}

// Path returns the filesystem path of a blob, for tools that need a file on
// disk (the PDF renderer).
func (s *Store) Path(backend, key string) (string, error) {
	p, err := s.path(backend, key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("blob %s/%s: %w", backend, key, err)
	}
	return p, nil
}

// Exists reports whether a blob is present.
func (s *Store) Exists(backend, key string) bool {
	p, err := s.path(backend, key)
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// Copy duplicates a blob from one backend to another, preserving the key.
func (s *Store) Copy(fromBackend, toBackend, key string) error {
	src, err := s.Open(fromBackend, key)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := s.path(toBackend, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}
	tmp := dst + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create blob: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to copy blob: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

// CopyPrefix duplicates every blob under the key prefix to another backend.
// Used by archival to move an edition's page images alongside its PDF.
func (s *Store) CopyPrefix(fromBackend, toBackend, prefix string) error {
	root, ok := s.backends[fromBackend]
	if !ok {
		return fmt.Errorf("unknown blob backend: %s", fromBackend)
	}
	base := filepath.Join(root, prefix)
	return filepath.Walk(base, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil // nothing under the prefix
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		return s.Copy(fromBackend, toBackend, rel)
	})
}
