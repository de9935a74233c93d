package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// backupStamp names rotated audit files, newest sorts last.
const backupStamp = "20060102T150405.000"

// auditFileWriter appends audit records to a single file and rotates it
// once it would exceed the size limit. Rotated files carry a timestamp
// suffix and are pruned by count and by age.
type auditFileWriter struct {
	mu      sync.Mutex
	path    string
	limit   int64
	keep    int
	maxAge  time.Duration
	file    *os.File
	written int64
}

func newAuditFileWriter(path string, maxSizeMB, maxBackups, maxAgeDays int) (*auditFileWriter, error) {
	if path == "" {
		return nil, errors.New("audit log path is required")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 100
	}
	if maxBackups <= 0 {
		maxBackups = 7
	}
	if maxAgeDays <= 0 {
		maxAgeDays = 30
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	return &auditFileWriter{
		path:   path,
		limit:  int64(maxSizeMB) * 1024 * 1024,
		keep:   maxBackups,
		maxAge: time.Duration(maxAgeDays) * 24 * time.Hour,
	}, nil
}

func (w *auditFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.open(); err != nil {
		return 0, err
	}
	if w.written+int64(len(p)) > w.limit {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := w.file.Write(p)
	w.written += int64(n)
	return n, err
}

func (w *auditFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.written = 0
	return err
}

// open lazily creates or reopens the active audit file.
func (w *auditFileWriter) open() error {
	if w.file != nil {
		return nil
	}
	file, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	w.file = file
	w.written = info.Size()
	return nil
}

// rotate renames the active file to a timestamped backup, prunes old
// backups, and reopens a fresh active file.
func (w *auditFileWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close audit log: %w", err)
	}
	w.file = nil
	w.written = 0

	backup := fmt.Sprintf("%s.%s", w.path, time.Now().UTC().Format(backupStamp))
	if err := os.Rename(w.path, backup); err != nil {
		return fmt.Errorf("rotate audit log: %w", err)
	}
	w.prune()
	return w.open()
}

// prune removes backups beyond the retention count or older than maxAge.
func (w *auditFileWriter) prune() {
	backups, err := filepath.Glob(w.path + ".*")
	if err != nil {
		return
	}
	sort.Strings(backups)

	if w.keep > 0 && len(backups) > w.keep {
		for _, stale := range backups[:len(backups)-w.keep] {
			_ = os.Remove(stale)
		}
		backups = backups[len(backups)-w.keep:]
	}
	if w.maxAge <= 0 {
		return
	}
	cutoff := time.Now().Add(-w.maxAge)
	for _, backup := range backups {
		info, err := os.Stat(backup)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(backup)
		}
	}
}
