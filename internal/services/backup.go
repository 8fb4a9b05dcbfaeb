package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ralfizdigital/retailease-license/internal/models"
	"github.com/ralfizdigital/retailease-license/internal/repository"
)

var (
	ErrBackupNotFound   = errors.New("backup not found")
	ErrChecksumMismatch = errors.New("uploaded checksum does not match computed checksum")
	ErrPayloadTooLarge  = errors.New("backup payload exceeds the configured size limit")
)

// BackupIngestor is the BackupIngestor of SPEC_FULL.md §4.G: persists
// opaque, already-encrypted backup blobs to the local filesystem under
// backups/<business_id>/<filename>, verifying integrity via SHA-256.
type BackupIngestor struct {
	db         *repository.PostgresDB
	storageDir string
	maxBytes   int64
	businesses *keyedMutex
}

// NewBackupIngestor creates a new BackupIngestor rooted at storageDir.
func NewBackupIngestor(db *repository.PostgresDB, storageDir string, maxBytes int64) *BackupIngestor {
	return &BackupIngestor{db: db, storageDir: storageDir, maxBytes: maxBytes, businesses: newKeyedMutex()}
}

// UploadArgs carries the multipart metadata fields of §4.G's upload contract.
type UploadArgs struct {
	BusinessID   uuid.UUID
	CounterID    *uuid.UUID
	CounterName  string
	BackupType   string
	AppVersion   string
	DBVersion    int
	RecordCounts map[string]int64
	Notes        string
	Checksum     string // optional, client-supplied; verified if present
}

// Ingest streams src (already size-capped by the caller) to a per-business
// directory, computing SHA-256 as it writes. If args.Checksum is supplied
// it must match the computed digest or the row is marked failed and the
// partial blob is removed.
func (b *BackupIngestor) Ingest(ctx context.Context, args UploadArgs, src io.Reader) (*models.Backup, error) {
	unlock := b.businesses.Lock(args.BusinessID.String())
	defer unlock()

	if args.BackupType == "" {
		args.BackupType = models.BackupTypeManual
	}

	now := time.Now().UTC()
	filename := fmt.Sprintf("backup_%s_%s_%s.enc", args.BusinessID.String(), sanitizeName(args.CounterName), now.Format("20060102_150405"))

	dir := filepath.Join(b.storageDir, args.BusinessID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	finalPath := filepath.Join(dir, filename)
	tmpPath := finalPath + ".tmp"

	row := &models.Backup{
		ID:           uuid.New(),
		BusinessID:   args.BusinessID,
		CounterID:    args.CounterID,
		StoragePath:  filepath.Join(args.BusinessID.String(), filename),
		Filename:     filename,
		BackupType:   args.BackupType,
		Status:       models.BackupStatusUploading,
		AppVersion:   args.AppVersion,
		DBVersion:    args.DBVersion,
		RecordCounts: args.RecordCounts,
		Notes:        args.Notes,
		CreatedAt:    now,
	}

	written, checksum, err := writeWithChecksum(tmpPath, src, b.maxBytes)
	if err != nil {
		os.Remove(tmpPath)
		if errors.Is(err, ErrPayloadTooLarge) {
			return nil, ErrPayloadTooLarge
		}
		row.Status = models.BackupStatusFailed
		row.ErrorMessage = err.Error()
		_ = b.persist(ctx, row)
		return nil, fmt.Errorf("failed to write backup blob: %w", err)
	}

	if args.Checksum != "" && args.Checksum != checksum {
		os.Remove(tmpPath)
		row.Status = models.BackupStatusFailed
		row.ErrorMessage = "checksum mismatch"
		_ = b.persist(ctx, row)
		return nil, ErrChecksumMismatch
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		row.Status = models.BackupStatusFailed
		row.ErrorMessage = err.Error()
		_ = b.persist(ctx, row)
		return nil, fmt.Errorf("failed to finalize backup blob: %w", err)
	}

	row.FileSize = written
	row.Checksum = checksum
	row.Status = models.BackupStatusCompleted
	uploadedAt := time.Now().UTC()
	row.UploadedAt = &uploadedAt

	if err := b.persist(ctx, row); err != nil {
		return nil, err
	}

	if args.CounterID != nil {
		_, _ = b.db.Pool().Exec(ctx, `UPDATE counters SET last_sync_at=$1 WHERE id=$2`, uploadedAt, *args.CounterID)
	}

	return row, nil
}

// writeWithChecksum streams src to path while hashing, aborting if more
// than maxBytes is written (so oversized uploads never buffer fully).
func writeWithChecksum(path string, src io.Reader, maxBytes int64) (int64, string, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, "", err
	}
	defer f.Close()

	h := sha256.New()
	limited := io.LimitReader(src, maxBytes+1)
	written, err := io.Copy(io.MultiWriter(f, h), limited)
	if err != nil {
		return 0, "", err
	}
	if written > maxBytes {
		return 0, "", ErrPayloadTooLarge
	}
	return written, hex.EncodeToString(h.Sum(nil)), nil
}

func sanitizeName(name string) string {
	if name == "" {
		return "device"
	}
	out := make([]rune, 0, len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			out = append(out, r)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

func (b *BackupIngestor) persist(ctx context.Context, row *models.Backup) error {
	_, err := b.db.Pool().Exec(ctx, `
		INSERT INTO backups (id, business_id, counter_id, storage_path, filename, file_size, checksum,
			is_encrypted, backup_type, status, app_version, db_version, record_counts, notes, error_message,
			created_at, uploaded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`, row.ID, row.BusinessID, row.CounterID, row.StoragePath, row.Filename, row.FileSize, row.Checksum,
		true, row.BackupType, row.Status, row.AppVersion, row.DBVersion, row.RecordCounts, row.Notes,
		row.ErrorMessage, row.CreatedAt, row.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to persist backup record: %w", err)
	}
	return nil
}

// Get loads a Backup by id.
func (b *BackupIngestor) Get(ctx context.Context, id uuid.UUID) (*models.Backup, error) {
	var row models.Backup
	err := b.db.Pool().QueryRow(ctx, `
		SELECT id, business_id, counter_id, storage_path, filename, file_size, checksum, is_encrypted,
			backup_type, status, app_version, db_version, record_counts, notes, error_message, created_at, uploaded_at
		FROM backups WHERE id = $1
	`, id).Scan(&row.ID, &row.BusinessID, &row.CounterID, &row.StoragePath, &row.Filename, &row.FileSize,
		&row.Checksum, &row.IsEncrypted, &row.BackupType, &row.Status, &row.AppVersion, &row.DBVersion,
		&row.RecordCounts, &row.Notes, &row.ErrorMessage, &row.CreatedAt, &row.UploadedAt)
	if err != nil {
		return nil, ErrBackupNotFound
	}
	return &row, nil
}

// MaxBytes returns the configured per-upload size cap so callers can reject
// oversized requests before any multipart parsing begins.
func (b *BackupIngestor) MaxBytes() int64 {
	return b.maxBytes
}

// Open opens the stored blob for download streaming.
func (b *BackupIngestor) Open(backup *models.Backup) (*os.File, error) {
	return os.Open(filepath.Join(b.storageDir, backup.StoragePath))
}

// List returns backups for a business, newest first, optionally filtered by
// type, paginated by limit/offset.
func (b *BackupIngestor) List(ctx context.Context, businessID uuid.UUID, backupType string, limit, offset int) ([]*models.Backup, error) {
	query := `
		SELECT id, business_id, counter_id, storage_path, filename, file_size, checksum, is_encrypted,
			backup_type, status, app_version, db_version, record_counts, notes, error_message, created_at, uploaded_at
		FROM backups WHERE business_id = $1`
	args := []interface{}{businessID}
	if backupType != "" {
		query += ` AND backup_type = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`
		args = append(args, backupType, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}

	rows, err := b.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	defer rows.Close()

	var backups []*models.Backup
	for rows.Next() {
		var row models.Backup
		if err := rows.Scan(&row.ID, &row.BusinessID, &row.CounterID, &row.StoragePath, &row.Filename,
			&row.FileSize, &row.Checksum, &row.IsEncrypted, &row.BackupType, &row.Status, &row.AppVersion,
			&row.DBVersion, &row.RecordCounts, &row.Notes, &row.ErrorMessage, &row.CreatedAt, &row.UploadedAt); err != nil {
			return nil, err
		}
		backups = append(backups, &row)
	}
	return backups, rows.Err()
}

// Delete removes a single backup's blob and row.
func (b *BackupIngestor) Delete(ctx context.Context, id uuid.UUID) error {
	row, err := b.Get(ctx, id)
	if err != nil {
		return err
	}

	unlock := b.businesses.Lock(row.BusinessID.String())
	defer unlock()

	path := filepath.Join(b.storageDir, row.StoragePath)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove backup blob: %w", err)
	}

	if _, err := b.db.Pool().Exec(ctx, `DELETE FROM backups WHERE id=$1`, id); err != nil {
		return fmt.Errorf("failed to delete backup record: %w", err)
	}
	return nil
}

// Cleanup deletes all but the keepCount newest backups for a business
// (optionally filtered by type), blob before metadata row. Snapshots the
// ids-to-keep before deleting so it is safe against concurrent uploads.
func (b *BackupIngestor) Cleanup(ctx context.Context, businessID uuid.UUID, keepCount int, backupType string) (int, error) {
	unlock := b.businesses.Lock(businessID.String())
	defer unlock()

	all, err := b.List(ctx, businessID, backupType, 10000, 0)
	if err != nil {
		return 0, err
	}
	if len(all) <= keepCount {
		return 0, nil
	}

	toDelete := all[keepCount:]
	deleted := 0
	for _, row := range toDelete {
		path := filepath.Join(b.storageDir, row.StoragePath)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			continue
		}
		if _, err := b.db.Pool().Exec(ctx, `DELETE FROM backups WHERE id=$1`, row.ID); err != nil {
			continue
		}
		deleted++
	}
	return deleted, nil
}
