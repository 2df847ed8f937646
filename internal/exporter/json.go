package exporter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// JSONWriter persists machine-readable artifacts such as the run report.
type JSONWriter struct {
	logger *slog.Logger
}

// NewJSONWriter creates a JSON writer.
func NewJSONWriter(logger *slog.Logger) *JSONWriter {
	return &JSONWriter{logger: logger}
}

// Write marshals v with indentation and writes it to path, creating
// parent directories as needed.
func (w *JSONWriter) Write(path string, v interface{}) error {
	w.logger.Info("writing JSON artifact", slog.String("path", path))

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
