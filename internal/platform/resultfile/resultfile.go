// Package resultfile persists the latest extraction to disk for consumers
// that read parameters.json directly, and optionally archives the raw tag
// documents it was computed from.
package resultfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store writes the results file and the raw-document archive. The zero
// archive directory disables archiving.
type Store struct {
	path       string
	archiveDir string
}

func New(path, archiveDir string) *Store {
	return &Store{path: path, archiveDir: archiveDir}
}

// Path returns the results file location.
func (s *Store) Path() string { return s.path }

// Write replaces the results file atomically, so readers never observe a
// partially written document.
func (s *Store) Write(values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return writeAtomic(s.path, append(data, '\n'))
}

// Read loads the results file. A missing file yields an error satisfying
// errors.Is(err, os.ErrNotExist).
func (s *Store) Read() (map[string]string, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	var values map[string]string
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return values, nil
}

// Remove deletes the results file. It is not an error if the file is gone.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Archive saves the raw tag document as {instanceID}.json under the archive
// directory. It returns the written path, or "" when archiving is disabled.
func (s *Store) Archive(instanceID string, raw []byte) (string, error) {
	if s.archiveDir == "" {
		return "", nil
	}
	name, err := archiveName(instanceID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.archiveDir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		// Keep the document as received.
		buf.Reset()
		buf.Write(raw)
	}
	path := filepath.Join(s.archiveDir, name)
	if err := writeAtomic(path, buf.Bytes()); err != nil {
		return "", err
	}
	return path, nil
}

func archiveName(instanceID string) (string, error) {
	if instanceID == "" || strings.ContainsAny(instanceID, `/\`) || instanceID == "." || instanceID == ".." {
		return "", fmt.Errorf("invalid instance id %q", instanceID)
	}
	return instanceID + ".json", nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
