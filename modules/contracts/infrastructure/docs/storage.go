package docs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Storage owns the on-disk layout of rendered contract documents:
// <base>/contracts/<contract-id>/contract.md with signature assets in a
// signatures/ subdirectory beside the document.
type Storage struct {
	base string
}

func NewStorage(base string) *Storage {
	return &Storage{base: base}
}

func (s *Storage) DocumentPath(contractID uuid.UUID) string {
	return filepath.Join(s.base, "contracts", contractID.String(), "contract.md")
}

func (s *Storage) AssetPath(docPath, name string) string {
	return filepath.Join(filepath.Dir(docPath), "signatures", name)
}

func (s *Storage) Read(path string) ([]byte, error) {
	return os.ReadFile(filepath.Clean(path))
}

// Write persists data via a same-directory temp file and rename, so
// readers never observe a partially written document.
func (s *Storage) Write(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("docs: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".contract-*")
	if err != nil {
		return fmt.Errorf("docs: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("docs: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("docs: close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("docs: rename %s: %w", path, err)
	}
	return nil
}
