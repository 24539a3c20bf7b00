package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBackupConfigFile_NoFileReturnsEmptyPath(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "corpuscore.yaml")

	backupPath, err := BackupConfigFile(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backupPath != "" {
		t.Errorf("expected empty backup path for non-existent config, got %s", backupPath)
	}
}

func TestBackupConfigFile_CreatesTimestampedCopy(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "corpuscore.yaml")
	content := "search:\n  default_mode: fuzzy\n"
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	backupPath, err := BackupConfigFile(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backupPath == "" {
		t.Fatal("expected a non-empty backup path")
	}

	data, err := os.ReadFile(backupPath)
	if err != nil {
		t.Fatalf("failed to read backup: %v", err)
	}
	if string(data) != content {
		t.Errorf("backup content mismatch: got %q, want %q", string(data), content)
	}
}

func TestBackupConfigFile_KeepsOnlyMaxBackups(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "corpuscore.yaml")

	for i := 0; i < MaxBackups+2; i++ {
		if err := os.WriteFile(configPath, []byte("search:\n  default_mode: fuzzy\n"), 0o644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}
		if _, err := BackupConfigFile(configPath); err != nil {
			t.Fatalf("unexpected error on backup %d: %v", i, err)
		}
	}

	backups, err := ListConfigBackups(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(backups) > MaxBackups {
		t.Errorf("expected at most %d backups, got %d", MaxBackups, len(backups))
	}
}

func TestRestoreConfigFile_RestoresPriorContent(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "corpuscore.yaml")

	original := "search:\n  default_mode: exact\n"
	if err := os.WriteFile(configPath, []byte(original), 0o644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	backupPath, err := BackupConfigFile(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := os.WriteFile(configPath, []byte("search:\n  default_mode: fuzzy\n"), 0o644); err != nil {
		t.Fatalf("failed to overwrite config: %v", err)
	}

	if err := RestoreConfigFile(configPath, backupPath); err != nil {
		t.Fatalf("unexpected error restoring: %v", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read restored config: %v", err)
	}
	if string(data) != original {
		t.Errorf("restored content mismatch: got %q, want %q", string(data), original)
	}
}

func TestRestoreConfigFile_MissingBackupErrors(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "corpuscore.yaml")
	err := RestoreConfigFile(configPath, filepath.Join(t.TempDir(), "missing.bak"))
	if err == nil {
		t.Error("expected an error for a missing backup file")
	}
}
