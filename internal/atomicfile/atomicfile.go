// Package atomicfile replaces files atomically: content goes to a temporary file
// in the target directory which is then renamed over the target.
// Readers see either the previous or the new content, never a partial write.
package atomicfile

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Write copies r into path atomically with the given permissions.
func Write(path string, r io.Reader, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	// Remove the temp file on any failure below
	ok := false
	defer func() {
		if !ok {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}

	ok = true
	return nil
}

// WriteJSON encodes v as indented JSON and writes it to path atomically.
func WriteJSON(path string, v any, perm os.FileMode) error {
	pr, pw := io.Pipe()

	go func() {
		enc := json.NewEncoder(pw)
		enc.SetIndent("", "  ")
		pw.CloseWithError(enc.Encode(v))
	}()

	err := Write(path, pr, perm)
	_ = pr.Close()
	return err
}

// ReadJSON decodes the JSON file at path into v.
// A missing file is reported as an error satisfying os.IsNotExist.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, v)
}
