// Package docstore persists JSON documents with an all-or-nothing contract.
//
// Writers hold an advisory lock on "<path>.lock", write a temp file in the
// destination directory, fsync it, and rename it over the target. Readers take
// no lock: rename is atomic, so they always observe a complete snapshot.
// Loading never modifies the file. An unreadable document is moved aside only
// by the Save that replaces it.
package docstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"newsagent/internal/logging"
)

// LoadResult describes what Load found on disk.
type LoadResult struct {
	Found bool
	// Unreadable is the decode error of a file that exists but could not be
	// decoded. The file is left in place.
	Unreadable error
}

// SaveResult describes what Save did on disk.
type SaveResult struct {
	Changed     bool
	Quarantined string
}

// Load decodes the document at path into a fresh value. Missing, empty and
// undecodable files all yield a nil value, so a failed decode never leaks a
// partially filled document to the caller.
func Load[T any](path string, logger *slog.Logger) (*T, LoadResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, LoadResult{}, nil
		}
		return nil, LoadResult{}, fmt.Errorf("read %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, LoadResult{}, nil
	}
	value := new(T)
	if err := json.Unmarshal(data, value); err != nil {
		logging.WarnWithContext(logger, "document unreadable; using an empty document", "document_unreadable",
			logging.String("path", path),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "inspect the file; the next save moves it aside as <path>.corrupt.<timestamp>"),
			logging.String(logging.FieldImpact, "previously recorded entries are ignored for this run"),
		)
		return nil, LoadResult{Unreadable: err}, nil
	}
	return value, LoadResult{Found: true}, nil
}

// Marshal renders v as indented JSON with a trailing newline. Map keys are
// sorted by encoding/json, so equal documents produce equal bytes.
func Marshal(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Save atomically replaces the document at path with v. Identical content is
// left untouched. When prior reports an unreadable file, that file is moved
// aside under the same lock before the new content is written.
func Save(path string, v any, prior LoadResult) (SaveResult, error) {
	data, err := Marshal(v)
	if err != nil {
		return SaveResult{}, fmt.Errorf("marshal %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return SaveResult{}, fmt.Errorf("create document directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return SaveResult{}, fmt.Errorf("lock %s: %w", path, err)
	}
	defer lock.Unlock() //nolint:errcheck

	var result SaveResult
	if prior.Unreadable != nil {
		target, err := Quarantine(path, time.Now())
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return SaveResult{}, err
		}
		result.Quarantined = target
	} else if existing, err := os.ReadFile(path); err == nil && bytes.Equal(existing, data) {
		return result, nil
	}
	if err := writeAtomic(dir, path, data); err != nil {
		return result, err
	}
	result.Changed = true
	return result, nil
}

func writeAtomic(dir, path string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		cleanup()
		return fmt.Errorf("rename temp file: %w", err)
	}
	syncDir(dir)
	return nil
}

// syncDir flushes the rename. Some filesystems do not support directory
// fsync; the rename itself is already durable enough there.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// Quarantine renames path aside and returns the new location.
func Quarantine(path string, now time.Time) (string, error) {
	target := fmt.Sprintf("%s.corrupt.%s", path, now.UTC().Format("20060102T150405Z"))
	if err := os.Rename(path, target); err != nil {
		return "", fmt.Errorf("quarantine %s: %w", path, err)
	}
	return target, nil
}
