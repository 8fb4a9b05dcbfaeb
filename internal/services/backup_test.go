package services

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "empty falls back to device", input: "", expected: "device"},
		{name: "alphanumeric untouched", input: "Register1", expected: "Register1"},
		{name: "spaces become underscores", input: "Front Counter", expected: "Front_Counter"},
		{name: "path separators neutralized", input: "../../etc/passwd", expected: "______etc_passwd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeName(tt.input); got != tt.expected {
				t.Errorf("sanitizeName(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestWriteWithChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.enc")

	data := []byte("encrypted-backup-payload")
	written, checksum, err := writeWithChecksum(path, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("writeWithChecksum() error = %v", err)
	}
	if written != int64(len(data)) {
		t.Errorf("written = %d, want %d", written, int64(len(data)))
	}
	if checksum == "" {
		t.Error("expected a non-empty checksum")
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written blob: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("written blob content mismatch")
	}
}

func TestWriteWithChecksum_RejectsOversizedPayload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blob.enc")

	data := bytes.Repeat([]byte("x"), 100)
	_, _, err := writeWithChecksum(path, bytes.NewReader(data), 10)
	if err != ErrPayloadTooLarge {
		t.Errorf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestNewBackupIngestor(t *testing.T) {
	b := NewBackupIngestor(nil, "./backups", 500*1024*1024)
	if b == nil {
		t.Fatal("expected non-nil BackupIngestor")
	}
}
