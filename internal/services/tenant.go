package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ralfizdigital/retailease-license/internal/models"
	"github.com/ralfizdigital/retailease-license/internal/repository"
)

var (
	ErrBusinessNotFound = errors.New("business not found")
	ErrCounterNotFound  = errors.New("counter not found")
)

// TenantStore is the TenantStore of SPEC_FULL.md §4.F: provisions the
// Business on first register and manages Counters bound to Activations,
// including the single-primary-counter invariant.
type TenantStore struct {
	db         *repository.PostgresDB
	businesses *keyedMutex
}

// NewTenantStore creates a new TenantStore.
func NewTenantStore(db *repository.PostgresDB) *TenantStore {
	return &TenantStore{db: db, businesses: newKeyedMutex()}
}

// BusinessFields is the allowlisted set of fields RegisterOrUpdateBusiness
// accepts, per §4.F.
type BusinessFields struct {
	Name           string
	LegalName      string
	BusinessType   string
	Email          string
	Phone          string
	Website        string
	AddressLine1   string
	AddressLine2   string
	City           string
	State          string
	Country        string
	PostalCode     string
	GSTNumber      string
	PANNumber      string
	CurrencyCode   string
	CurrencySymbol string
	DateFormat     string
}

// RegisterOrUpdateBusiness upserts a Business keyed by License, applying
// the allowlisted fields and stamping last_synced_at. On first creation, if
// the caller's Activation has no bound Counter yet, that Counter is
// provisioned as primary.
func (s *TenantStore) RegisterOrUpdateBusiness(ctx context.Context, licenseID uuid.UUID, fields BusinessFields, callerActivationID *uuid.UUID) (*models.Business, *models.Counter, error) {
	unlock := s.businesses.Lock(licenseID.String())
	defer unlock()

	now := time.Now().UTC()

	existing, err := s.findByLicense(ctx, licenseID)
	if err == nil {
		s.applyFields(existing, fields)
		existing.LastSyncedAt = &now
		existing.UpdatedAt = now
		if err := s.updateBusiness(ctx, existing); err != nil {
			return nil, nil, err
		}
		return existing, nil, nil
	}

	b := &models.Business{
		ID:        uuid.New(),
		LicenseID: licenseID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.applyFields(b, fields)
	if b.CurrencyCode == "" {
		b.CurrencyCode = "INR"
	}
	if b.CurrencySymbol == "" {
		b.CurrencySymbol = "₹"
	}
	if b.DateFormat == "" {
		b.DateFormat = "DD/MM/YYYY"
	}
	if b.Country == "" {
		b.Country = "India"
	}
	b.LastSyncedAt = &now

	_, err = s.db.Pool().Exec(ctx, `
		INSERT INTO businesses (id, license_id, name, legal_name, business_type, email, phone, website,
			address_line1, address_line2, city, state, country, postal_code, gst_number, pan_number,
			currency_code, currency_symbol, date_format, logo_path, created_at, updated_at, last_synced_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)
	`, b.ID, b.LicenseID, b.Name, b.LegalName, b.BusinessType, b.Email, b.Phone, b.Website,
		b.AddressLine1, b.AddressLine2, b.City, b.State, b.Country, b.PostalCode, b.GSTNumber, b.PANNumber,
		b.CurrencyCode, b.CurrencySymbol, b.DateFormat, b.LogoPath, b.CreatedAt, b.UpdatedAt, b.LastSyncedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to persist business: %w", err)
	}

	var counter *models.Counter
	if callerActivationID != nil {
		var activationHasCounter bool
		err := s.db.Pool().QueryRow(ctx, `SELECT exists(SELECT 1 FROM counters WHERE activation_id = $1)`, *callerActivationID).Scan(&activationHasCounter)
		if err == nil && !activationHasCounter {
			counter = &models.Counter{
				ID:           uuid.New(),
				BusinessID:   b.ID,
				ActivationID: *callerActivationID,
				Name:         "Main Counter",
				IsPrimary:    true,
				Status:       models.CounterStatusActive,
				SyncEnabled:  true,
				CreatedAt:    now,
			}
			_, err = s.db.Pool().Exec(ctx, `
				INSERT INTO counters (id, business_id, activation_id, name, is_primary, status, sync_enabled, created_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			`, counter.ID, counter.BusinessID, counter.ActivationID, counter.Name, counter.IsPrimary, counter.Status, counter.SyncEnabled, counter.CreatedAt)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to persist provisioned counter: %w", err)
			}
		}
	}

	return b, counter, nil
}

func (s *TenantStore) applyFields(b *models.Business, f BusinessFields) {
	if f.Name != "" {
		b.Name = f.Name
	}
	if f.LegalName != "" {
		b.LegalName = f.LegalName
	}
	if f.BusinessType != "" {
		b.BusinessType = f.BusinessType
	}
	if f.Email != "" {
		b.Email = f.Email
	}
	if f.Phone != "" {
		b.Phone = f.Phone
	}
	if f.Website != "" {
		b.Website = f.Website
	}
	if f.AddressLine1 != "" {
		b.AddressLine1 = f.AddressLine1
	}
	if f.AddressLine2 != "" {
		b.AddressLine2 = f.AddressLine2
	}
	if f.City != "" {
		b.City = f.City
	}
	if f.State != "" {
		b.State = f.State
	}
	if f.Country != "" {
		b.Country = f.Country
	}
	if f.PostalCode != "" {
		b.PostalCode = f.PostalCode
	}
	if f.GSTNumber != "" {
		b.GSTNumber = f.GSTNumber
	}
	if f.PANNumber != "" {
		b.PANNumber = f.PANNumber
	}
	if f.CurrencyCode != "" {
		b.CurrencyCode = f.CurrencyCode
	}
	if f.CurrencySymbol != "" {
		b.CurrencySymbol = f.CurrencySymbol
	}
	if f.DateFormat != "" {
		b.DateFormat = f.DateFormat
	}
}

func (s *TenantStore) findByLicense(ctx context.Context, licenseID uuid.UUID) (*models.Business, error) {
	var b models.Business
	err := s.db.Pool().QueryRow(ctx, `
		SELECT id, license_id, name, legal_name, business_type, email, phone, website,
			address_line1, address_line2, city, state, country, postal_code, gst_number, pan_number,
			currency_code, currency_symbol, date_format, logo_path, created_at, updated_at, last_synced_at
		FROM businesses WHERE license_id = $1
	`, licenseID).Scan(&b.ID, &b.LicenseID, &b.Name, &b.LegalName, &b.BusinessType, &b.Email, &b.Phone, &b.Website,
		&b.AddressLine1, &b.AddressLine2, &b.City, &b.State, &b.Country, &b.PostalCode, &b.GSTNumber, &b.PANNumber,
		&b.CurrencyCode, &b.CurrencySymbol, &b.DateFormat, &b.LogoPath, &b.CreatedAt, &b.UpdatedAt, &b.LastSyncedAt)
	if err != nil {
		return nil, ErrBusinessNotFound
	}
	return &b, nil
}

// GetByLicense loads the Business owned by a License.
func (s *TenantStore) GetByLicense(ctx context.Context, licenseID uuid.UUID) (*models.Business, error) {
	return s.findByLicense(ctx, licenseID)
}

func (s *TenantStore) updateBusiness(ctx context.Context, b *models.Business) error {
	_, err := s.db.Pool().Exec(ctx, `
		UPDATE businesses SET name=$1, legal_name=$2, business_type=$3, email=$4, phone=$5, website=$6,
			address_line1=$7, address_line2=$8, city=$9, state=$10, country=$11, postal_code=$12,
			gst_number=$13, pan_number=$14, currency_code=$15, currency_symbol=$16, date_format=$17,
			updated_at=$18, last_synced_at=$19
		WHERE id=$20
	`, b.Name, b.LegalName, b.BusinessType, b.Email, b.Phone, b.Website, b.AddressLine1, b.AddressLine2,
		b.City, b.State, b.Country, b.PostalCode, b.GSTNumber, b.PANNumber, b.CurrencyCode, b.CurrencySymbol,
		b.DateFormat, b.UpdatedAt, b.LastSyncedAt, b.ID)
	return err
}

// CounterFields is the allowlisted set of fields UpdateCounter accepts.
type CounterFields struct {
	Name        string
	Description string
	DeviceName  string
	DeviceType  string
	OSInfo      string
	AppVersion  string
	SyncEnabled *bool
}

// UpdateCounter applies the allowlisted fields to a Counter.
func (s *TenantStore) UpdateCounter(ctx context.Context, counterID uuid.UUID, f CounterFields) (*models.Counter, error) {
	c, err := s.getCounter(ctx, counterID)
	if err != nil {
		return nil, err
	}

	if f.Name != "" {
		c.Name = f.Name
	}
	if f.Description != "" {
		c.Description = f.Description
	}
	if f.DeviceName != "" {
		c.DeviceName = f.DeviceName
	}
	if f.DeviceType != "" {
		c.DeviceType = f.DeviceType
	}
	if f.OSInfo != "" {
		c.OSInfo = f.OSInfo
	}
	if f.AppVersion != "" {
		c.AppVersion = f.AppVersion
	}
	if f.SyncEnabled != nil {
		c.SyncEnabled = *f.SyncEnabled
	}

	_, err = s.db.Pool().Exec(ctx, `
		UPDATE counters SET name=$1, description=$2, device_name=$3, device_type=$4, os_info=$5,
			app_version=$6, sync_enabled=$7 WHERE id=$8
	`, c.Name, c.Description, c.DeviceName, c.DeviceType, c.OSInfo, c.AppVersion, c.SyncEnabled, c.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update counter: %w", err)
	}
	return c, nil
}

func (s *TenantStore) getCounter(ctx context.Context, id uuid.UUID) (*models.Counter, error) {
	var c models.Counter
	err := s.db.Pool().QueryRow(ctx, `
		SELECT id, business_id, activation_id, name, description, device_name, device_type, os_info,
			app_version, is_primary, status, sync_enabled, last_sync_at, created_at
		FROM counters WHERE id = $1
	`, id).Scan(&c.ID, &c.BusinessID, &c.ActivationID, &c.Name, &c.Description, &c.DeviceName, &c.DeviceType,
		&c.OSInfo, &c.AppVersion, &c.IsPrimary, &c.Status, &c.SyncEnabled, &c.LastSyncAt, &c.CreatedAt)
	if err != nil {
		return nil, ErrCounterNotFound
	}
	return &c, nil
}

// CounterView adds the is_current flag computed against the caller's token.
type CounterView struct {
	models.Counter
	IsCurrent bool `json:"is_current"`
}

// ListCounters lists every Counter for a Business, flagging the one bound
// to callerCounterID as is_current.
func (s *TenantStore) ListCounters(ctx context.Context, businessID uuid.UUID, callerCounterID *uuid.UUID) ([]CounterView, error) {
	rows, err := s.db.Pool().Query(ctx, `
		SELECT id, business_id, activation_id, name, description, device_name, device_type, os_info,
			app_version, is_primary, status, sync_enabled, last_sync_at, created_at
		FROM counters WHERE business_id = $1 ORDER BY created_at ASC
	`, businessID)
	if err != nil {
		return nil, fmt.Errorf("failed to list counters: %w", err)
	}
	defer rows.Close()

	var views []CounterView
	for rows.Next() {
		var c models.Counter
		if err := rows.Scan(&c.ID, &c.BusinessID, &c.ActivationID, &c.Name, &c.Description, &c.DeviceName,
			&c.DeviceType, &c.OSInfo, &c.AppVersion, &c.IsPrimary, &c.Status, &c.SyncEnabled, &c.LastSyncAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		view := CounterView{Counter: c, IsCurrent: callerCounterID != nil && c.ID == *callerCounterID}
		views = append(views, view)
	}
	return views, rows.Err()
}

// DeactivateCounter sets status=inactive and, if the counter was primary,
// promotes the eldest remaining active counter (none if none active), per
// the primary invariant in §4.F.
func (s *TenantStore) DeactivateCounter(ctx context.Context, counterID uuid.UUID) error {
	c, err := s.getCounter(ctx, counterID)
	if err != nil {
		return err
	}

	unlock := s.businesses.Lock(c.BusinessID.String())
	defer unlock()

	_, err = s.db.Pool().Exec(ctx, `UPDATE counters SET status=$1, is_primary=false WHERE id=$2`,
		models.CounterStatusInactive, counterID)
	if err != nil {
		return fmt.Errorf("failed to deactivate counter: %w", err)
	}

	if !c.IsPrimary {
		return nil
	}

	var nextID uuid.UUID
	err = s.db.Pool().QueryRow(ctx, `
		SELECT id FROM counters WHERE business_id = $1 AND status = $2 ORDER BY created_at ASC LIMIT 1
	`, c.BusinessID, models.CounterStatusActive).Scan(&nextID)
	if err != nil {
		return nil // no active counter remains; none promoted
	}

	_, err = s.db.Pool().Exec(ctx, `UPDATE counters SET is_primary=true WHERE id=$1`, nextID)
	if err != nil {
		return fmt.Errorf("failed to promote primary counter: %w", err)
	}
	return nil
}
