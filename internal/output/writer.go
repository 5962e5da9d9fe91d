// Package output writes a run's solutions to disk as a single JSON
// document, atomically so a reader never observes a partially written
// file.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rawblock/jm-disentangle/pkg/models"
)

// WriteSummary marshals summary as indented JSON and installs it at
// path via write-to-temp-then-rename, so a crash mid-write never
// leaves a truncated file at the destination.
func WriteSummary(path string, summary *models.RunSummary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("output.WriteSummary: marshal: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".summary-*.tmp")
	if err != nil {
		return fmt.Errorf("output.WriteSummary: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("output.WriteSummary: write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("output.WriteSummary: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("output.WriteSummary: close: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("output.WriteSummary: rename: %w", err)
	}
	return nil
}
