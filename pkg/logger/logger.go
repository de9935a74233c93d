// Package logger wires process-wide structured logging for the Sofia
// service on top of log/slog. Besides the application logger it exposes
// a dedicated audit channel that records API access events as JSON lines
// in a size-rotated file.
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// defaultAuditPath is used when auditing is enabled without a path.
const defaultAuditPath = "logs/sofia_audit.log"

// Config describes how the application logger should behave.
type Config struct {
	Level       string
	Format      string
	OutputPaths []string
	Audit       AuditConfig
}

// AuditConfig controls audit log output behaviour.
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	setup    sync.Once
	setupErr error
	appLog   *slog.Logger
	auditLog *slog.Logger
	files    []io.Closer
)

// Init configures the global application and audit loggers. Only the
// first call takes effect; later calls return the first call's result.
func Init(cfg Config) error {
	setup.Do(func() { setupErr = configure(cfg) })
	return setupErr
}

// L returns the application logger, initialising defaults on demand.
func L() *slog.Logger {
	if appLog == nil {
		_ = Init(Config{})
	}
	return appLog
}

// Audit returns the audit logger. Without an audit sink it aliases the
// application logger so audit events are never dropped silently.
func Audit() *slog.Logger {
	if auditLog == nil {
		return L()
	}
	return auditLog
}

// Sync closes every file-backed log output.
func Sync() error {
	var err error
	for _, f := range files {
		err = errors.Join(err, f.Close())
	}
	files = nil
	return err
}

func configure(cfg Config) error {
	out, err := combineOutputs(cfg.OutputPaths)
	if err != nil {
		return err
	}
	opts := &slog.HandlerOptions{Level: levelFor(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		appLog = slog.New(slog.NewTextHandler(out, opts))
	} else {
		appLog = slog.New(slog.NewJSONHandler(out, opts))
	}

	auditLog = appLog
	if !cfg.Audit.Enabled {
		return nil
	}

	path := cfg.Audit.Path
	if path == "" {
		path = defaultAuditPath
	}
	audit, err := newAuditFileWriter(path, cfg.Audit.MaxSizeMB, cfg.Audit.MaxBackups, cfg.Audit.MaxAgeDays)
	if err != nil {
		return err
	}
	files = append(files, audit)
	// 审计日志固定输出 JSON，方便离线检索。
	auditLog = slog.New(slog.NewJSONHandler(audit, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return nil
}

// combineOutputs resolves the configured output paths into one writer.
// An empty list means stdout.
func combineOutputs(paths []string) (io.Writer, error) {
	if len(paths) == 0 {
		return os.Stdout, nil
	}
	writers := make([]io.Writer, 0, len(paths))
	for _, path := range paths {
		switch strings.ToLower(path) {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("create log directory: %w", err)
			}
			file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("open log file %s: %w", path, err)
			}
			files = append(files, file)
			writers = append(writers, file)
		}
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func levelFor(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
