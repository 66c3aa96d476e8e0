// Package artifacts stores downloaded case documents on the local
// filesystem and derives their public references.
package artifacts

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/juridigo/pjefetch/pkg/config"
)

// ErrInvalidName is returned for empty names or names that would escape
// the storage root.
var ErrInvalidName = errors.New("invalid artifact name")

// Store writes artifacts under a single base directory. Writes are
// atomic (temp file plus rename) so a crashed run never leaves a partial
// document behind a completed-looking name.
type Store struct {
	baseDir       string
	publicBaseURL string
	log           *slog.Logger
}

// New creates a store rooted at the configured data directory, creating
// it if needed.
func New(cfg *config.StorageConfig, log *slog.Logger) (*Store, error) {
	if cfg.DataDir == "" {
		return nil, errors.New("data_dir required")
	}

	absPath, err := filepath.Abs(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolve data_dir: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("create data_dir: %w", err)
	}

	return &Store{
		baseDir:       absPath,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		log:           log.With("component", "artifacts"),
	}, nil
}

// FileName derives the deterministic artifact name for a case number:
// the digits of the identifier under a fixed prefix. Two runs for the
// same case always produce the same name, which is what makes a
// redundant concurrent download harmless.
func FileName(caseNumber string) string {
	var b strings.Builder
	for _, r := range caseNumber {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return "processo_" + b.String() + ".pdf"
}

// Write persists data under name and returns the absolute path.
func (s *Store) Write(name string, data []byte) (string, error) {
	path, err := s.Path(name)
	if err != nil {
		return "", err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("rename temp file: %w", err)
	}

	s.log.Info("artifact stored", "file", name, "bytes", len(data))
	return path, nil
}

// Exists reports whether the named artifact is present on disk.
func (s *Store) Exists(name string) bool {
	path, err := s.Path(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Path resolves the absolute path of a named artifact, rejecting names
// that contain separators or traverse out of the base directory.
func (s *Store) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.baseDir, name), nil
}

// PublicURL joins the configured base URL with the artifact name.
func (s *Store) PublicURL(name string) string {
	return s.publicBaseURL + "/static/" + name
}

// WritePDF validates data as a PDF and persists it under name. The
// validation sits on the write path so an HTML error page served from
// the document host can never land in the store.
func (s *Store) WritePDF(name string, data []byte) (string, error) {
	if err := ValidatePDF(data); err != nil {
		return "", err
	}
	return s.Write(name, data)
}

// ValidatePDF checks that data is a readable PDF with at least one page.
// The portal occasionally serves an HTML error page from the document
// host; catching that here keeps garbage out of the store.
func ValidatePDF(data []byte) error {
	count, err := api.PageCount(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return fmt.Errorf("not a readable PDF: %w", err)
	}
	if count < 1 {
		return errors.New("PDF has no pages")
	}
	return nil
}
