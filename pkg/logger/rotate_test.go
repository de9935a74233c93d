package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestNewAuditFileWriterRequiresPath(t *testing.T) {
	if _, err := newAuditFileWriter("", 0, 0, 0); err == nil {
		t.Fatalf("empty path should be rejected")
	}
}

func TestAuditFileWriterRotatesBySize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	w := &auditFileWriter{path: path, limit: 32, keep: 2, maxAge: time.Hour}
	defer w.Close()

	record := []byte(strings.Repeat("x", 20) + "\n")
	for i := 0; i < 4; i++ {
		if _, err := w.Write(record); err != nil {
			t.Fatalf("write %d failed: %v", i, err)
		}
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("active audit file missing: %v", err)
	}
	backups, err := filepath.Glob(path + ".*")
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	if len(backups) == 0 {
		t.Fatalf("expected at least one rotated backup")
	}
	if len(backups) > 2 {
		t.Fatalf("retention should keep at most 2 backups, got %d", len(backups))
	}
}

func TestAuditFileWriterPrunesByCount(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")
	for _, stamp := range []string{"20240101T000000.000", "20240102T000000.000", "20240103T000000.000"} {
		if err := os.WriteFile(path+"."+stamp, []byte("old"), 0o644); err != nil {
			t.Fatalf("seed backup failed: %v", err)
		}
	}

	w := &auditFileWriter{path: path, limit: 1024, keep: 1, maxAge: time.Hour}
	w.prune()

	backups, _ := filepath.Glob(path + ".*")
	if len(backups) != 1 {
		t.Fatalf("expected a single surviving backup, got %v", backups)
	}
	if !strings.HasSuffix(backups[0], "20240103T000000.000") {
		t.Fatalf("newest backup should survive: %v", backups)
	}
}
