// Package upload stores support documents and the page markup in the upload
// directory that knowledge base builds read from.
package upload

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"qaforge/internal/failure"
	"qaforge/internal/parser"
)

// MarkupFilename is the fixed name the page markup is stored under.
const MarkupFilename = "checkout.html"

var ErrInvalidName = errors.New("invalid filename")

type StoredFile struct {
	Filename string `json:"filename"`
	Path     string `json:"file_path"`
	Size     int64  `json:"size"`
	SHA256   string `json:"sha256"`
}

type Service struct {
	dir string
}

func NewService(dir string) *Service {
	return &Service{dir: dir}
}

func (s *Service) Dir() string {
	return s.dir
}

// SaveDocument writes a support document under its own base name,
// overwriting any earlier upload of the same name.
func (s *Service) SaveDocument(name string, r io.Reader) (*StoredFile, error) {
	base, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	if !parser.Supported(base) {
		return nil, failure.Unsupported(filepath.Ext(base))
	}
	return s.write(base, r)
}

// SaveMarkup stores the page markup as MarkupFilename regardless of the
// uploaded name.
func (s *Service) SaveMarkup(r io.Reader) (*StoredFile, error) {
	return s.write(MarkupFilename, r)
}

// List returns the visible upload names, sorted.
func (s *Service) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}

	names := []string{}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Clear removes every visible upload and reports how many were removed.
func (s *Service) Clear() (int, error) {
	names, err := s.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, name := range names {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil { // #nosec G304 -- name comes from reading dir
			return removed, fmt.Errorf("failed to remove %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}

func (s *Service) write(name string, r io.Reader) (*StoredFile, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil { // #nosec G703 -- dir comes from config
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}

	path := filepath.Clean(filepath.Join(s.dir, name))
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after rename

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hash), r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil { // #nosec G703 -- path is a cleaned base name inside dir
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	return &StoredFile{
		Filename: name,
		Path:     path,
		Size:     size,
		SHA256:   fmt.Sprintf("%x", hash.Sum(nil)),
	}, nil
}

func cleanName(name string) (string, error) {
	base := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(name, "\\", "/")))
	if base == "/" || base == "." || strings.HasPrefix(base, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return base, nil
}
