package models

import (
	"time"

	"github.com/google/uuid"
)

// KeyPair is an RSA key pair used to sign and verify license codes.
type KeyPair struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	PrivateKey string    `json:"-" db:"private_key"` // PEM, PKCS8, never serialized to clients
	PublicKey  string    `json:"public_key" db:"public_key"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// License types, statuses and billing cycles.
const (
	LicenseTypeTrial        = "trial"
	LicenseTypeBasic        = "basic"
	LicenseTypeProfessional = "professional"
	LicenseTypeEnterprise   = "enterprise"
	LicenseTypeLifetime     = "lifetime"

	LicenseStatusActive    = "active"
	LicenseStatusExpired   = "expired"
	LicenseStatusRevoked   = "revoked"
	LicenseStatusSuspended = "suspended"

	BillingCycleMonthly  = "monthly"
	BillingCycleYearly   = "yearly"
	BillingCycleLifetime = "lifetime"
)

// License is a signed entitlement issued to one customer.
type License struct {
	ID                 uuid.UUID  `json:"id" db:"id"`
	KeyPairID          uuid.UUID  `json:"key_pair_id" db:"key_pair_id"`
	CustomerName       string     `json:"customer_name" db:"customer_name"`
	CustomerEmail      string     `json:"customer_email" db:"customer_email"`
	CustomerCompany    string     `json:"customer_company,omitempty" db:"customer_company"`
	CustomerPhone      string     `json:"customer_phone,omitempty" db:"customer_phone"`
	LicenseType        string     `json:"license_type" db:"license_type"`
	Status             string     `json:"status" db:"status"`
	MaxActivations     int        `json:"max_activations" db:"max_activations"`
	CurrentActivations int        `json:"current_activations" db:"current_activations"`
	ValidFrom          time.Time  `json:"valid_from" db:"valid_from"`
	ValidUntil         time.Time  `json:"valid_until" db:"valid_until"`
	BillingCycle       string     `json:"billing_cycle" db:"billing_cycle"`
	RenewalCount       int        `json:"renewal_count" db:"renewal_count"`
	LastRenewedAt      *time.Time `json:"last_renewed_at,omitempty" db:"last_renewed_at"`
	Notes              string     `json:"notes,omitempty" db:"notes"`
	LicenseCode        string     `json:"license_code" db:"license_code"`
	ClientID           *uuid.UUID `json:"client_id,omitempty" db:"client_id"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// Activation records that a specific machine fingerprint claimed a slot
// against a License.
type Activation struct {
	ID          uuid.UUID `json:"id" db:"id"`
	LicenseID   uuid.UUID `json:"license_id" db:"license_id"`
	MachineID   string    `json:"machine_id" db:"machine_id"`
	MachineName string    `json:"machine_name,omitempty" db:"machine_name"`
	ActivatedAt time.Time `json:"activated_at" db:"activated_at"`
	LastCheck   time.Time `json:"last_check" db:"last_check"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	IPAddress   string    `json:"ip_address,omitempty" db:"ip_address"`
}

// Business is a tenant: one storefront operating RetailEase.
type Business struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	LicenseID      uuid.UUID  `json:"license_id" db:"license_id"`
	Name           string     `json:"name" db:"name"`
	LegalName      string     `json:"legal_name,omitempty" db:"legal_name"`
	BusinessType   string     `json:"business_type,omitempty" db:"business_type"`
	Email          string     `json:"email,omitempty" db:"email"`
	Phone          string     `json:"phone,omitempty" db:"phone"`
	Website        string     `json:"website,omitempty" db:"website"`
	AddressLine1   string     `json:"address_line1,omitempty" db:"address_line1"`
	AddressLine2   string     `json:"address_line2,omitempty" db:"address_line2"`
	City           string     `json:"city,omitempty" db:"city"`
	State          string     `json:"state,omitempty" db:"state"`
	Country        string     `json:"country" db:"country"`
	PostalCode     string     `json:"postal_code,omitempty" db:"postal_code"`
	GSTNumber      string     `json:"gst_number,omitempty" db:"gst_number"`
	PANNumber      string     `json:"pan_number,omitempty" db:"pan_number"`
	CurrencyCode   string     `json:"currency_code" db:"currency_code"`
	CurrencySymbol string     `json:"currency_symbol" db:"currency_symbol"`
	DateFormat     string     `json:"date_format" db:"date_format"`
	LogoPath       string     `json:"logo_path,omitempty" db:"logo_path"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty" db:"last_synced_at"`
}

// Counter statuses.
const (
	CounterStatusActive    = "active"
	CounterStatusInactive  = "inactive"
	CounterStatusSuspended = "suspended"
)

// Counter is a provisioned POS terminal at a Business, bound 1:1 to a live
// Activation.
type Counter struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	BusinessID   uuid.UUID  `json:"business_id" db:"business_id"`
	ActivationID uuid.UUID  `json:"activation_id" db:"activation_id"`
	Name         string     `json:"name" db:"name"`
	Description  string     `json:"description,omitempty" db:"description"`
	DeviceName   string     `json:"device_name,omitempty" db:"device_name"`
	DeviceType   string     `json:"device_type,omitempty" db:"device_type"`
	OSInfo       string     `json:"os_info,omitempty" db:"os_info"`
	AppVersion   string     `json:"app_version,omitempty" db:"app_version"`
	IsPrimary    bool       `json:"is_primary" db:"is_primary"`
	Status       string     `json:"status" db:"status"`
	SyncEnabled  bool       `json:"sync_enabled" db:"sync_enabled"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty" db:"last_sync_at"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
}

// APIToken is an opaque bearer credential bound to one (License, Counter).
type APIToken struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Token      string     `json:"token,omitempty" db:"token"`
	LicenseID  uuid.UUID  `json:"license_id" db:"license_id"`
	CounterID  *uuid.UUID `json:"counter_id,omitempty" db:"counter_id"`
	Name       string     `json:"name,omitempty" db:"name"`
	IsActive   bool       `json:"is_active" db:"is_active"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// Backup types and statuses.
const (
	BackupTypeManual     = "manual"
	BackupTypeAuto       = "auto"
	BackupTypePreRestore = "pre_restore"

	BackupStatusPending   = "pending"
	BackupStatusUploading = "uploading"
	BackupStatusCompleted = "completed"
	BackupStatusFailed    = "failed"
)

// Backup is an opaque, already-encrypted blob uploaded by a Counter.
type Backup struct {
	ID           uuid.UUID        `json:"id" db:"id"`
	BusinessID   uuid.UUID        `json:"business_id" db:"business_id"`
	CounterID    *uuid.UUID       `json:"counter_id,omitempty" db:"counter_id"`
	StoragePath  string           `json:"-" db:"storage_path"`
	Filename     string           `json:"filename" db:"filename"`
	FileSize     int64            `json:"file_size" db:"file_size"`
	Checksum     string           `json:"checksum" db:"checksum"`
	IsEncrypted  bool             `json:"is_encrypted" db:"is_encrypted"`
	BackupType   string           `json:"backup_type" db:"backup_type"`
	Status       string           `json:"status" db:"status"`
	AppVersion   string           `json:"app_version,omitempty" db:"app_version"`
	DBVersion    int              `json:"db_version" db:"db_version"`
	RecordCounts map[string]int64 `json:"record_counts,omitempty" db:"record_counts"`
	Notes        string           `json:"notes,omitempty" db:"notes"`
	ErrorMessage string           `json:"error_message,omitempty" db:"error_message"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	UploadedAt   *time.Time       `json:"uploaded_at,omitempty" db:"uploaded_at"`
}

// Sync session types, directions, statuses.
const (
	SyncTypeFull               = "full"
	SyncTypeIncremental        = "incremental"
	SyncTypeConflictResolution = "conflict_resolution"

	SyncDirectionUpload        = "upload"
	SyncDirectionDownload      = "download"
	SyncDirectionBidirectional = "bidirectional"

	SyncStatusStarted    = "started"
	SyncStatusInProgress = "in_progress"
	SyncStatusCompleted  = "completed"
	SyncStatusFailed     = "failed"
	SyncStatusPartial    = "partial"
)

// SyncLog records one sync session between a Counter and the server.
type SyncLog struct {
	ID                uuid.UUID              `json:"id" db:"id"`
	BusinessID        uuid.UUID              `json:"business_id" db:"business_id"`
	CounterID         uuid.UUID              `json:"counter_id" db:"counter_id"`
	SyncType          string                 `json:"sync_type" db:"sync_type"`
	SyncDirection     string                 `json:"sync_direction" db:"sync_direction"`
	Status            string                 `json:"status" db:"status"`
	RecordsUploaded   int                    `json:"records_uploaded" db:"records_uploaded"`
	RecordsDownloaded int                    `json:"records_downloaded" db:"records_downloaded"`
	ConflictsDetected int                    `json:"conflicts_detected" db:"conflicts_detected"`
	ConflictsResolved int                    `json:"conflicts_resolved" db:"conflicts_resolved"`
	StartedAt         time.Time              `json:"started_at" db:"started_at"`
	CompletedAt       *time.Time             `json:"completed_at,omitempty" db:"completed_at"`
	DurationSeconds   *float64               `json:"duration_seconds,omitempty" db:"duration_seconds"`
	Details           map[string]interface{} `json:"details,omitempty" db:"details"`
	ErrorMessage      string                 `json:"error_message,omitempty" db:"error_message"`
}

// AppConfigDefaultKey is the sole row key for the AppConfig singleton,
// mirroring the get-or-create-by-constant-key idiom of the original Django
// AppConfig.get_config() classmethod.
const AppConfigDefaultKey = "default"

// AppConfig is the singleton, publicly-readable configuration blob served to
// POS clients before they necessarily hold a valid license.
type AppConfig struct {
	ID                    uuid.UUID `json:"-" db:"id"`
	Key                   string    `json:"-" db:"key"`
	GoogleClientIDWindows string    `json:"google_client_id_windows,omitempty" db:"google_client_id_windows"`
	GoogleClientIDAndroid string    `json:"google_client_id_android,omitempty" db:"google_client_id_android"`
	GoogleClientIDWeb     string    `json:"google_client_id_web,omitempty" db:"google_client_id_web"`
	GoogleDriveEnabled    bool      `json:"google_drive_enabled" db:"google_drive_enabled"`
	ServerBackupEnabled   bool      `json:"server_backup_enabled" db:"server_backup_enabled"`
	LocalBackupEnabled    bool      `json:"local_backup_enabled" db:"local_backup_enabled"`
	MinAppVersion         string    `json:"min_app_version,omitempty" db:"min_app_version"`
	LatestAppVersion      string    `json:"latest_app_version,omitempty" db:"latest_app_version"`
	AppUpdateURL          string    `json:"app_update_url,omitempty" db:"app_update_url"`
	ForceUpdate           bool      `json:"force_update" db:"force_update"`
	MaintenanceMode       bool      `json:"maintenance_mode" db:"maintenance_mode"`
	MaintenanceMessage    string    `json:"maintenance_message,omitempty" db:"maintenance_message"`
	SupportEmail          string    `json:"support_email,omitempty" db:"support_email"`
	SupportPhone          string    `json:"support_phone,omitempty" db:"support_phone"`
	TermsURL              string    `json:"terms_url,omitempty" db:"terms_url"`
	PrivacyURL            string    `json:"privacy_url,omitempty" db:"privacy_url"`
	UpdatedAt             time.Time `json:"updated_at" db:"updated_at"`
}
