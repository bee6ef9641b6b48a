// Package history persists chat exchanges to a JSON log file. The whole
// array is rewritten on each append, mirroring the store's whole-file
// persistence model.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/kestrelworks/raglet/internal/domain"
)

// Log appends chat exchanges to a JSON array file.
type Log struct {
	path   string
	logger *zap.Logger
}

// New creates a history log bound to a file path.
func New(path string, logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{path: path, logger: logger}
}

// Append records one exchange. Read failures degrade to starting a fresh
// log; only the final write can fail.
func (l *Log) Append(user string, status int, raw string) error {
	entries := l.Entries()
	entries = append(entries, domain.HistoryEntry{
		TS:     time.Now().UTC(),
		User:   user,
		Status: status,
		Raw:    raw,
	})

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".history-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp history file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close history: %w", err)
	}
	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename history: %w", err)
	}
	return nil
}

// Entries returns the logged exchanges, oldest first. Missing or malformed
// files yield an empty log.
func (l *Log) Entries() []domain.HistoryEntry {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("history file unreadable", zap.String("path", l.path), zap.Error(err))
		}
		return nil
	}
	var entries []domain.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		l.logger.Warn("history file malformed, starting fresh",
			zap.String("path", l.path), zap.Error(err))
		return nil
	}
	return entries
}
