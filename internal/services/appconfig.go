package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ralfizdigital/retailease-license/internal/models"
	"github.com/ralfizdigital/retailease-license/internal/repository"
)

// AppConfigStore is the AppConfigStore of SPEC_FULL.md §4.J: a singleton,
// publicly-readable configuration blob served to POS clients before they
// necessarily hold a valid license.
type AppConfigStore struct {
	db *repository.PostgresDB
}

// NewAppConfigStore creates a new AppConfigStore.
func NewAppConfigStore(db *repository.PostgresDB) *AppConfigStore {
	return &AppConfigStore{db: db}
}

// Get fetches the singleton row, creating it on first access with server and
// local backups enabled and every other field empty or false.
func (s *AppConfigStore) Get(ctx context.Context) (*models.AppConfig, error) {
	cfg, err := s.find(ctx)
	if err == nil {
		return cfg, nil
	}

	cfg = &models.AppConfig{
		ID:        uuid.New(),
		Key:       models.AppConfigDefaultKey,
		UpdatedAt: time.Now().UTC(),
	}
	_, err = s.db.Pool().Exec(ctx, `
		INSERT INTO app_configs (id, key, google_drive_enabled, server_backup_enabled, local_backup_enabled,
			force_update, maintenance_mode, updated_at)
		VALUES ($1,$2,false,true,true,false,false,$3)
		ON CONFLICT (key) DO NOTHING
	`, cfg.ID, cfg.Key, cfg.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create default app config: %w", err)
	}

	return s.find(ctx)
}

func (s *AppConfigStore) find(ctx context.Context) (*models.AppConfig, error) {
	var cfg models.AppConfig
	err := s.db.Pool().QueryRow(ctx, `
		SELECT id, key, google_client_id_windows, google_client_id_android, google_client_id_web,
			google_drive_enabled, server_backup_enabled, local_backup_enabled, min_app_version,
			latest_app_version, app_update_url, force_update, maintenance_mode, maintenance_message,
			support_email, support_phone, terms_url, privacy_url, updated_at
		FROM app_configs WHERE key = $1
	`, models.AppConfigDefaultKey).Scan(&cfg.ID, &cfg.Key, &cfg.GoogleClientIDWindows, &cfg.GoogleClientIDAndroid,
		&cfg.GoogleClientIDWeb, &cfg.GoogleDriveEnabled, &cfg.ServerBackupEnabled, &cfg.LocalBackupEnabled,
		&cfg.MinAppVersion, &cfg.LatestAppVersion, &cfg.AppUpdateURL, &cfg.ForceUpdate, &cfg.MaintenanceMode,
		&cfg.MaintenanceMessage, &cfg.SupportEmail, &cfg.SupportPhone, &cfg.TermsURL, &cfg.PrivacyURL, &cfg.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("app config not found: %w", err)
	}
	return &cfg, nil
}

// ConfigFields is the allowlisted set of fields Update accepts, same idiom
// as TenantStore's field-update functions.
type ConfigFields struct {
	GoogleClientIDWindows *string
	GoogleClientIDAndroid *string
	GoogleClientIDWeb     *string
	GoogleDriveEnabled    *bool
	ServerBackupEnabled   *bool
	LocalBackupEnabled    *bool
	MinAppVersion         *string
	LatestAppVersion      *string
	AppUpdateURL          *string
	ForceUpdate           *bool
	MaintenanceMode       *bool
	MaintenanceMessage    *string
	SupportEmail          *string
	SupportPhone          *string
	TermsURL              *string
	PrivacyURL            *string
}

// Update applies allowlisted fields to the singleton config. Operator-only,
// gated by the same admin key as /license/renew.
func (s *AppConfigStore) Update(ctx context.Context, fields ConfigFields) (*models.AppConfig, error) {
	cfg, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}

	if fields.GoogleClientIDWindows != nil {
		cfg.GoogleClientIDWindows = *fields.GoogleClientIDWindows
	}
	if fields.GoogleClientIDAndroid != nil {
		cfg.GoogleClientIDAndroid = *fields.GoogleClientIDAndroid
	}
	if fields.GoogleClientIDWeb != nil {
		cfg.GoogleClientIDWeb = *fields.GoogleClientIDWeb
	}
	if fields.GoogleDriveEnabled != nil {
		cfg.GoogleDriveEnabled = *fields.GoogleDriveEnabled
	}
	if fields.ServerBackupEnabled != nil {
		cfg.ServerBackupEnabled = *fields.ServerBackupEnabled
	}
	if fields.LocalBackupEnabled != nil {
		cfg.LocalBackupEnabled = *fields.LocalBackupEnabled
	}
	if fields.MinAppVersion != nil {
		cfg.MinAppVersion = *fields.MinAppVersion
	}
	if fields.LatestAppVersion != nil {
		cfg.LatestAppVersion = *fields.LatestAppVersion
	}
	if fields.AppUpdateURL != nil {
		cfg.AppUpdateURL = *fields.AppUpdateURL
	}
	if fields.ForceUpdate != nil {
		cfg.ForceUpdate = *fields.ForceUpdate
	}
	if fields.MaintenanceMode != nil {
		cfg.MaintenanceMode = *fields.MaintenanceMode
	}
	if fields.MaintenanceMessage != nil {
		cfg.MaintenanceMessage = *fields.MaintenanceMessage
	}
	if fields.SupportEmail != nil {
		cfg.SupportEmail = *fields.SupportEmail
	}
	if fields.SupportPhone != nil {
		cfg.SupportPhone = *fields.SupportPhone
	}
	if fields.TermsURL != nil {
		cfg.TermsURL = *fields.TermsURL
	}
	if fields.PrivacyURL != nil {
		cfg.PrivacyURL = *fields.PrivacyURL
	}
	cfg.UpdatedAt = time.Now().UTC()

	_, err = s.db.Pool().Exec(ctx, `
		UPDATE app_configs SET google_client_id_windows=$1, google_client_id_android=$2, google_client_id_web=$3,
			google_drive_enabled=$4, server_backup_enabled=$5, local_backup_enabled=$6, min_app_version=$7,
			latest_app_version=$8, app_update_url=$9, force_update=$10, maintenance_mode=$11,
			maintenance_message=$12, support_email=$13, support_phone=$14, terms_url=$15, privacy_url=$16,
			updated_at=$17
		WHERE key=$18
	`, cfg.GoogleClientIDWindows, cfg.GoogleClientIDAndroid, cfg.GoogleClientIDWeb, cfg.GoogleDriveEnabled,
		cfg.ServerBackupEnabled, cfg.LocalBackupEnabled, cfg.MinAppVersion, cfg.LatestAppVersion, cfg.AppUpdateURL,
		cfg.ForceUpdate, cfg.MaintenanceMode, cfg.MaintenanceMessage, cfg.SupportEmail, cfg.SupportPhone,
		cfg.TermsURL, cfg.PrivacyURL, cfg.UpdatedAt, cfg.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to update app config: %w", err)
	}

	return cfg, nil
}
