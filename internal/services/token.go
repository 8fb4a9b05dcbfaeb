package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ralfizdigital/retailease-license/internal/models"
	"github.com/ralfizdigital/retailease-license/internal/repository"
)

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token is expired or inactive")
)

// TokenAuthenticator is the TokenAuthenticator of SPEC_FULL.md §4.E: mints
// opaque bearer tokens bound to (license, counter) and authenticates
// subsequent device traffic.
type TokenAuthenticator struct {
	db         *repository.PostgresDB
	licenses   *LicenseService
	activation *ActivationManager
}

// NewTokenAuthenticator creates a new TokenAuthenticator.
func NewTokenAuthenticator(db *repository.PostgresDB, licenses *LicenseService, activation *ActivationManager) *TokenAuthenticator {
	return &TokenAuthenticator{db: db, licenses: licenses, activation: activation}
}

// AuthResult is the response shape of /authenticate.
type AuthResult struct {
	Token    string
	Business *models.Business
	Counter  *models.Counter
}

// generateTokenBytes mints 32 cryptographically random bytes, hex-encoded
// to a 64-char opaque bearer token. Never parsed, per §4.E.
func generateTokenBytes() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Authenticate implements the five-step contract of §4.E.
func (a *TokenAuthenticator) Authenticate(ctx context.Context, licenseID uuid.UUID, machineID, machineName, deviceType, osInfo, appVersion string) (*AuthResult, error) {
	lic, err := a.licenses.Get(ctx, licenseID)
	if err != nil {
		return nil, ErrLicenseNotFound
	}
	if !a.licenses.IsValid(lic, time.Now().UTC()) {
		return nil, ErrLicenseInvalidForDevice
	}

	unlock := a.licenses.LockLicense(lic.ID)

	activation, created, err := a.activation.getOrCreateActivation(ctx, lic.ID, machineID, machineName, "")
	if err != nil {
		unlock()
		return nil, err
	}
	if created {
		count, err := a.activation.countActive(ctx, lic.ID)
		if err != nil {
			unlock()
			return nil, err
		}
		if count > lic.MaxActivations {
			_ = a.activation.setActivationActive(ctx, activation.ID, false)
			unlock()
			return nil, ErrMaxActivationsReached
		}
		_ = a.licenses.SetCurrentActivations(ctx, lic.ID, count)
	}
	unlock()

	business, err := a.findBusinessByLicense(ctx, lic.ID)
	if err != nil && !errors.Is(err, ErrBusinessNotFound) {
		return nil, err
	}

	var counter *models.Counter
	if business != nil {
		counter, err = a.findCounterByActivation(ctx, activation.ID)
		if err != nil && !errors.Is(err, ErrCounterNotFound) {
			return nil, err
		}
		if counter == nil {
			primaryCount, err := a.countCounters(ctx, business.ID)
			if err != nil {
				return nil, err
			}
			counter, err = a.createCounter(ctx, business.ID, activation.ID, deviceType, osInfo, appVersion, primaryCount == 0)
			if err != nil {
				return nil, err
			}
		}
	}

	token, err := a.getOrCreateToken(ctx, lic.ID, counter)
	if err != nil {
		return nil, err
	}

	return &AuthResult{Token: token, Business: business, Counter: counter}, nil
}

func (a *TokenAuthenticator) findBusinessByLicense(ctx context.Context, licenseID uuid.UUID) (*models.Business, error) {
	var b models.Business
	err := a.db.Pool().QueryRow(ctx, `
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

func (a *TokenAuthenticator) findCounterByActivation(ctx context.Context, activationID uuid.UUID) (*models.Counter, error) {
	var c models.Counter
	err := a.db.Pool().QueryRow(ctx, `
		SELECT id, business_id, activation_id, name, description, device_name, device_type, os_info,
			app_version, is_primary, status, sync_enabled, last_sync_at, created_at
		FROM counters WHERE activation_id = $1
	`, activationID).Scan(&c.ID, &c.BusinessID, &c.ActivationID, &c.Name, &c.Description, &c.DeviceName, &c.DeviceType,
		&c.OSInfo, &c.AppVersion, &c.IsPrimary, &c.Status, &c.SyncEnabled, &c.LastSyncAt, &c.CreatedAt)
	if err != nil {
		return nil, ErrCounterNotFound
	}
	return &c, nil
}

func (a *TokenAuthenticator) countCounters(ctx context.Context, businessID uuid.UUID) (int, error) {
	var count int
	err := a.db.Pool().QueryRow(ctx, `SELECT count(*) FROM counters WHERE business_id = $1`, businessID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count counters: %w", err)
	}
	return count, nil
}

func (a *TokenAuthenticator) createCounter(ctx context.Context, businessID, activationID uuid.UUID, deviceType, osInfo, appVersion string, primary bool) (*models.Counter, error) {
	c := &models.Counter{
		ID:           uuid.New(),
		BusinessID:   businessID,
		ActivationID: activationID,
		Name:         fmt.Sprintf("Counter %s", activationID.String()[:8]),
		DeviceType:   deviceType,
		OSInfo:       osInfo,
		AppVersion:   appVersion,
		IsPrimary:    primary,
		Status:       models.CounterStatusActive,
		SyncEnabled:  true,
		CreatedAt:    time.Now().UTC(),
	}
	_, err := a.db.Pool().Exec(ctx, `
		INSERT INTO counters (id, business_id, activation_id, name, device_type, os_info, app_version,
			is_primary, status, sync_enabled, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, c.ID, c.BusinessID, c.ActivationID, c.Name, c.DeviceType, c.OSInfo, c.AppVersion, c.IsPrimary, c.Status, c.SyncEnabled, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to persist counter: %w", err)
	}
	return c, nil
}

// getOrCreateToken loads the active APIToken for (license, counter),
// regenerating its bytes if it was previously disabled.
func (a *TokenAuthenticator) getOrCreateToken(ctx context.Context, licenseID uuid.UUID, counter *models.Counter) (string, error) {
	var counterID *uuid.UUID
	if counter != nil {
		counterID = &counter.ID
	}

	var existing models.APIToken
	query := `SELECT id, token, is_active FROM api_tokens WHERE license_id = $1 AND counter_id IS NOT DISTINCT FROM $2`
	err := a.db.Pool().QueryRow(ctx, query, licenseID, counterID).Scan(&existing.ID, &existing.Token, &existing.IsActive)
	if err == nil {
		if existing.IsActive {
			_, _ = a.db.Pool().Exec(ctx, `UPDATE api_tokens SET last_used_at=$1 WHERE id=$2`, time.Now().UTC(), existing.ID)
			return existing.Token, nil
		}
		newToken, err := generateTokenBytes()
		if err != nil {
			return "", err
		}
		_, err = a.db.Pool().Exec(ctx, `UPDATE api_tokens SET token=$1, is_active=true WHERE id=$2`, newToken, existing.ID)
		if err != nil {
			return "", fmt.Errorf("failed to regenerate token: %w", err)
		}
		return newToken, nil
	}

	token, err := generateTokenBytes()
	if err != nil {
		return "", err
	}
	id := uuid.New()
	now := time.Now().UTC()
	_, err = a.db.Pool().Exec(ctx, `
		INSERT INTO api_tokens (id, token, license_id, counter_id, is_active, created_at)
		VALUES ($1,$2,$3,$4,true,$5)
	`, id, token, licenseID, counterID, now)
	if err != nil {
		return "", fmt.Errorf("failed to persist token: %w", err)
	}
	return token, nil
}

// AuthContext is what middleware.TokenRequired resolves from a bearer token and
// injects into the request context.
type AuthContext struct {
	Token   *models.APIToken
	License *models.License
	Counter *models.Counter
}

// Resolve looks up an APIToken by its raw bearer value, validating
// `is_valid() ⇔ is_active ∧ (expires_at = ∅ ∨ expires_at > now) ∧
// License.IsValid()` and stamping last_used_at best-effort.
func (a *TokenAuthenticator) Resolve(ctx context.Context, rawToken string) (*AuthContext, error) {
	var t models.APIToken
	err := a.db.Pool().QueryRow(ctx, `
		SELECT id, token, license_id, counter_id, name, is_active, expires_at, created_at, last_used_at
		FROM api_tokens WHERE token = $1
	`, rawToken).Scan(&t.ID, &t.Token, &t.LicenseID, &t.CounterID, &t.Name, &t.IsActive, &t.ExpiresAt, &t.CreatedAt, &t.LastUsedAt)
	if err != nil {
		return nil, ErrTokenNotFound
	}

	if !t.IsActive {
		return nil, ErrTokenExpired
	}
	if t.ExpiresAt != nil && t.ExpiresAt.Before(time.Now().UTC()) {
		return nil, ErrTokenExpired
	}

	lic, err := a.licenses.Get(ctx, t.LicenseID)
	if err != nil {
		return nil, ErrTokenExpired
	}
	if !a.licenses.IsValid(lic, time.Now().UTC()) {
		return nil, ErrTokenExpired
	}

	var counter *models.Counter
	if t.CounterID != nil {
		counter, err = a.findCounterByID(ctx, *t.CounterID)
		if err != nil {
			counter = nil
		}
	}

	go func() {
		_, _ = a.db.Pool().Exec(context.Background(), `UPDATE api_tokens SET last_used_at=$1 WHERE id=$2`, time.Now().UTC(), t.ID)
	}()

	return &AuthContext{Token: &t, License: lic, Counter: counter}, nil
}

func (a *TokenAuthenticator) findCounterByID(ctx context.Context, id uuid.UUID) (*models.Counter, error) {
	var c models.Counter
	err := a.db.Pool().QueryRow(ctx, `
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

// Logout disables the caller's token.
func (a *TokenAuthenticator) Logout(ctx context.Context, tokenID uuid.UUID) error {
	_, err := a.db.Pool().Exec(ctx, `UPDATE api_tokens SET is_active=false WHERE id=$1`, tokenID)
	return err
}
