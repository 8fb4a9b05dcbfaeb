package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ralfizdigital/retailease-license/internal/models"
	"github.com/ralfizdigital/retailease-license/internal/repository"
)

var ErrSyncLogNotFound = errors.New("sync session not found")

// SyncSessionLog is the SyncSessionLog of SPEC_FULL.md §4.H. It is pure
// bookkeeping: conflict resolution happens device-side. Grounded on the
// teacher's telemetry pattern (Postgres insert for durable history + a
// Redis cache of the most recent state per device for fast dashboards).
type SyncSessionLog struct {
	db    *repository.PostgresDB
	redis *repository.RedisClient
}

// NewSyncSessionLog creates a new SyncSessionLog.
func NewSyncSessionLog(db *repository.PostgresDB, redis *repository.RedisClient) *SyncSessionLog {
	return &SyncSessionLog{db: db, redis: redis}
}

// Start records the beginning of a sync session.
func (s *SyncSessionLog) Start(ctx context.Context, businessID, counterID uuid.UUID, syncType, direction string) (*models.SyncLog, error) {
	log := &models.SyncLog{
		ID:            uuid.New(),
		BusinessID:    businessID,
		CounterID:     counterID,
		SyncType:      syncType,
		SyncDirection: direction,
		Status:        models.SyncStatusStarted,
		StartedAt:     time.Now().UTC(),
	}

	_, err := s.db.Pool().Exec(ctx, `
		INSERT INTO sync_logs (id, business_id, counter_id, sync_type, sync_direction, status, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, log.ID, log.BusinessID, log.CounterID, log.SyncType, log.SyncDirection, log.Status, log.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to persist sync session: %w", err)
	}

	s.cacheLatest(ctx, counterID, log)

	return log, nil
}

// CompleteStats carries the record counters Complete persists.
type CompleteStats struct {
	RecordsUploaded   int
	RecordsDownloaded int
	ConflictsDetected int
	ConflictsResolved int
	Details           map[string]interface{}
}

// Complete finalizes a sync session: sets counters, details, status,
// completed_at, and the computed duration_seconds, then stamps the
// Counter's last_sync_at.
func (s *SyncSessionLog) Complete(ctx context.Context, syncID uuid.UUID, stats CompleteStats, status, errorMessage string) (*models.SyncLog, error) {
	log, err := s.Get(ctx, syncID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	duration := now.Sub(log.StartedAt).Seconds()

	log.RecordsUploaded = stats.RecordsUploaded
	log.RecordsDownloaded = stats.RecordsDownloaded
	log.ConflictsDetected = stats.ConflictsDetected
	log.ConflictsResolved = stats.ConflictsResolved
	log.Details = stats.Details
	log.Status = status
	log.ErrorMessage = errorMessage
	log.CompletedAt = &now
	log.DurationSeconds = &duration

	detailsJSON, _ := json.Marshal(log.Details)
	_, err = s.db.Pool().Exec(ctx, `
		UPDATE sync_logs SET records_uploaded=$1, records_downloaded=$2, conflicts_detected=$3,
			conflicts_resolved=$4, details=$5, status=$6, error_message=$7, completed_at=$8, duration_seconds=$9
		WHERE id=$10
	`, log.RecordsUploaded, log.RecordsDownloaded, log.ConflictsDetected, log.ConflictsResolved,
		detailsJSON, log.Status, log.ErrorMessage, log.CompletedAt, log.DurationSeconds, log.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to persist sync completion: %w", err)
	}

	_, _ = s.db.Pool().Exec(ctx, `UPDATE counters SET last_sync_at=$1 WHERE id=$2`, now, log.CounterID)
	s.cacheLatest(ctx, log.CounterID, log)

	return log, nil
}

// Get loads a SyncLog by id.
func (s *SyncSessionLog) Get(ctx context.Context, id uuid.UUID) (*models.SyncLog, error) {
	var log models.SyncLog
	var detailsJSON []byte
	err := s.db.Pool().QueryRow(ctx, `
		SELECT id, business_id, counter_id, sync_type, sync_direction, status, records_uploaded,
			records_downloaded, conflicts_detected, conflicts_resolved, started_at, completed_at,
			duration_seconds, details, error_message
		FROM sync_logs WHERE id = $1
	`, id).Scan(&log.ID, &log.BusinessID, &log.CounterID, &log.SyncType, &log.SyncDirection, &log.Status,
		&log.RecordsUploaded, &log.RecordsDownloaded, &log.ConflictsDetected, &log.ConflictsResolved,
		&log.StartedAt, &log.CompletedAt, &log.DurationSeconds, &detailsJSON, &log.ErrorMessage)
	if err != nil {
		return nil, ErrSyncLogNotFound
	}
	if len(detailsJSON) > 0 {
		_ = json.Unmarshal(detailsJSON, &log.Details)
	}
	return &log, nil
}

// History lists a business's sync sessions newest-first, optionally
// filtered to one counter.
func (s *SyncSessionLog) History(ctx context.Context, businessID uuid.UUID, counterID *uuid.UUID, limit int) ([]*models.SyncLog, error) {
	query := `
		SELECT id, business_id, counter_id, sync_type, sync_direction, status, records_uploaded,
			records_downloaded, conflicts_detected, conflicts_resolved, started_at, completed_at,
			duration_seconds, details, error_message
		FROM sync_logs WHERE business_id = $1`
	args := []interface{}{businessID}
	if counterID != nil {
		query += ` AND counter_id = $2 ORDER BY started_at DESC LIMIT $3`
		args = append(args, *counterID, limit)
	} else {
		query += ` ORDER BY started_at DESC LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync history: %w", err)
	}
	defer rows.Close()

	var logs []*models.SyncLog
	for rows.Next() {
		var log models.SyncLog
		var detailsJSON []byte
		if err := rows.Scan(&log.ID, &log.BusinessID, &log.CounterID, &log.SyncType, &log.SyncDirection,
			&log.Status, &log.RecordsUploaded, &log.RecordsDownloaded, &log.ConflictsDetected,
			&log.ConflictsResolved, &log.StartedAt, &log.CompletedAt, &log.DurationSeconds, &detailsJSON,
			&log.ErrorMessage); err != nil {
			return nil, err
		}
		if len(detailsJSON) > 0 {
			_ = json.Unmarshal(detailsJSON, &log.Details)
		}
		logs = append(logs, &log)
	}
	return logs, rows.Err()
}

// cacheLatest stores the most recent sync state per counter in Redis for
// fast dashboard reads, mirroring the teacher's telemetry:<id> cache key
// idiom. Best-effort: cache misses never fail the request.
func (s *SyncSessionLog) cacheLatest(ctx context.Context, counterID uuid.UUID, log *models.SyncLog) {
	state, err := json.Marshal(log)
	if err != nil {
		return
	}
	key := fmt.Sprintf("sync:latest:%s", counterID)
	s.redis.Client().Set(ctx, key, state, 24*time.Hour)
}
