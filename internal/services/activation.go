package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ralfizdigital/retailease-license/internal/models"
	"github.com/ralfizdigital/retailease-license/internal/repository"
	pkglicense "github.com/ralfizdigital/retailease-license/pkg/license"
)

var (
	ErrActivationNotFound      = errors.New("activation not found")
	ErrMaxActivationsReached   = errors.New("maximum activations reached for this license")
	ErrDeviceDeactivated       = errors.New("this device has been deactivated")
	ErrLicenseInvalidForDevice = errors.New("license is not valid")
)

// ActivationManager is the ActivationManager of SPEC_FULL.md §4.D: it owns
// the per-(license, machine) activation slot state machine and enforces the
// activation-slot cap as one linearizable step per license.
type ActivationManager struct {
	db        *repository.PostgresDB
	keys      *KeyStore
	licenses  *LicenseService
	graceDays int
}

// NewActivationManager creates a new ActivationManager.
func NewActivationManager(db *repository.PostgresDB, keys *KeyStore, licenses *LicenseService, graceDays int) *ActivationManager {
	return &ActivationManager{db: db, keys: keys, licenses: licenses, graceDays: graceDays}
}

// RefreshSnapshot is the server-authoritative state returned by Refresh;
// the device mirrors `Status` into its local license cache.
type RefreshSnapshot struct {
	License    *models.License
	Activation *models.Activation
	Status     string
	InGrace    bool
}

// ValidateAndActivate implements the five-step contract of §4.D: verify the
// signed code, load the License, check its state, and allocate an
// Activation slot under the per-license critical section.
func (m *ActivationManager) ValidateAndActivate(ctx context.Context, code, machineID, machineName, ip string) (*models.License, *models.Activation, error) {
	kp, err := m.keys.ActiveKeyPair(ctx)
	if err != nil {
		return nil, nil, err
	}
	pub, err := pkglicense.LoadPublicKeyPEM(kp.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load active public key: %w", err)
	}

	payload, err := pkglicense.Verify(code, pub)
	if err != nil {
		return nil, nil, err
	}

	licenseID, err := uuid.Parse(payload.LicenseID)
	if err != nil {
		return nil, nil, pkglicense.ErrMalformed
	}

	lic, err := m.licenses.Get(ctx, licenseID)
	if err != nil {
		return nil, nil, ErrLicenseNotFound
	}

	switch lic.Status {
	case models.LicenseStatusRevoked:
		return lic, nil, ErrLicenseRevoked
	case models.LicenseStatusSuspended:
		return lic, nil, ErrLicenseSuspended
	}

	now := time.Now().UTC()
	if !m.licenses.IsValid(lic, now) && !m.licenses.InGracePeriod(lic, now, m.graceDays) {
		if lic.Status != models.LicenseStatusExpired {
			_ = m.licenses.MarkExpired(ctx, lic.ID)
			lic.Status = models.LicenseStatusExpired
		}
		return lic, nil, ErrLicenseExpired
	}

	unlock := m.licenses.LockLicense(lic.ID)
	defer unlock()

	activation, created, err := m.getOrCreateActivation(ctx, lic.ID, machineID, machineName, ip)
	if err != nil {
		return lic, nil, err
	}

	if created {
		count, err := m.countActive(ctx, lic.ID)
		if err != nil {
			return lic, nil, err
		}
		if count > lic.MaxActivations {
			if err := m.setActivationActive(ctx, activation.ID, false); err != nil {
				return lic, nil, err
			}
			return lic, nil, ErrMaxActivationsReached
		}
		if err := m.licenses.SetCurrentActivations(ctx, lic.ID, count); err != nil {
			return lic, nil, err
		}
		lic.CurrentActivations = count
	} else if !activation.IsActive {
		return lic, nil, ErrDeviceDeactivated
	} else {
		if err := m.touchActivation(ctx, activation.ID, ip, machineName); err != nil {
			return lic, nil, err
		}
	}

	return lic, activation, nil
}

// getOrCreateActivation loads the (license_id, machine_id) Activation row,
// creating it if absent. The second return reports whether it was created.
func (m *ActivationManager) getOrCreateActivation(ctx context.Context, licenseID uuid.UUID, machineID, machineName, ip string) (*models.Activation, bool, error) {
	existing, err := m.findActivation(ctx, licenseID, machineID)
	if err == nil {
		return existing, false, nil
	}

	now := time.Now().UTC()
	a := &models.Activation{
		ID:          uuid.New(),
		LicenseID:   licenseID,
		MachineID:   machineID,
		MachineName: machineName,
		ActivatedAt: now,
		LastCheck:   now,
		IsActive:    true,
		IPAddress:   ip,
	}
	_, err = m.db.Pool().Exec(ctx, `
		INSERT INTO activations (id, license_id, machine_id, machine_name, activated_at, last_check, is_active, ip_address)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, a.ID, a.LicenseID, a.MachineID, a.MachineName, a.ActivatedAt, a.LastCheck, a.IsActive, a.IPAddress)
	if err != nil {
		return nil, false, fmt.Errorf("failed to persist activation: %w", err)
	}
	return a, true, nil
}

func (m *ActivationManager) findActivation(ctx context.Context, licenseID uuid.UUID, machineID string) (*models.Activation, error) {
	var a models.Activation
	err := m.db.Pool().QueryRow(ctx, `
		SELECT id, license_id, machine_id, machine_name, activated_at, last_check, is_active, ip_address
		FROM activations WHERE license_id = $1 AND machine_id = $2
	`, licenseID, machineID).Scan(&a.ID, &a.LicenseID, &a.MachineID, &a.MachineName, &a.ActivatedAt, &a.LastCheck, &a.IsActive, &a.IPAddress)
	if err != nil {
		return nil, ErrActivationNotFound
	}
	return &a, nil
}

func (m *ActivationManager) countActive(ctx context.Context, licenseID uuid.UUID) (int, error) {
	var count int
	err := m.db.Pool().QueryRow(ctx, `SELECT count(*) FROM activations WHERE license_id = $1 AND is_active = true`, licenseID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active activations: %w", err)
	}
	return count, nil
}

func (m *ActivationManager) setActivationActive(ctx context.Context, activationID uuid.UUID, active bool) error {
	_, err := m.db.Pool().Exec(ctx, `UPDATE activations SET is_active=$1 WHERE id=$2`, active, activationID)
	return err
}

func (m *ActivationManager) touchActivation(ctx context.Context, activationID uuid.UUID, ip, machineName string) error {
	now := time.Now().UTC()
	if machineName != "" {
		_, err := m.db.Pool().Exec(ctx, `UPDATE activations SET last_check=$1, ip_address=$2, machine_name=$3 WHERE id=$4`,
			now, ip, machineName, activationID)
		return err
	}
	_, err := m.db.Pool().Exec(ctx, `UPDATE activations SET last_check=$1, ip_address=$2 WHERE id=$3`, now, ip, activationID)
	return err
}

// Deactivate sets the Activation's is_active=false and recomputes
// current_activations. Idempotent.
func (m *ActivationManager) Deactivate(ctx context.Context, licenseID uuid.UUID, machineID string) error {
	unlock := m.licenses.LockLicense(licenseID)
	defer unlock()

	a, err := m.findActivation(ctx, licenseID, machineID)
	if err != nil {
		return err
	}

	if a.IsActive {
		if err := m.setActivationActive(ctx, a.ID, false); err != nil {
			return err
		}
	}

	count, err := m.countActive(ctx, licenseID)
	if err != nil {
		return err
	}
	return m.licenses.SetCurrentActivations(ctx, licenseID, count)
}

// Refresh returns the server-authoritative snapshot for (licenseId,
// machineId). Decision order taken verbatim from
// original_source/licensing/views.py::refresh_license: revoked/suspended
// checked before activation-existence, which is checked before
// expiry/grace. Returns an error only when the License cannot be loaded;
// every license-state outcome is reported in Status, and that field (not
// the HTTP status) drives the device's locked-state transition.
func (m *ActivationManager) Refresh(ctx context.Context, licenseID uuid.UUID, machineID string) (*RefreshSnapshot, error) {
	lic, err := m.licenses.Get(ctx, licenseID)
	if err != nil {
		return nil, err
	}

	if lic.Status == models.LicenseStatusRevoked {
		return &RefreshSnapshot{License: lic, Status: models.LicenseStatusRevoked}, nil
	}
	if lic.Status == models.LicenseStatusSuspended {
		return &RefreshSnapshot{License: lic, Status: models.LicenseStatusSuspended}, nil
	}

	activation, err := m.findActivation(ctx, licenseID, machineID)
	if err != nil {
		return &RefreshSnapshot{License: lic, Status: "device_deactivated"}, nil
	}
	if !activation.IsActive {
		return &RefreshSnapshot{License: lic, Activation: activation, Status: "device_deactivated"}, nil
	}

	now := time.Now().UTC()
	if m.licenses.IsValid(lic, now) {
		return &RefreshSnapshot{License: lic, Activation: activation, Status: models.LicenseStatusActive}, nil
	}
	if m.licenses.InGracePeriod(lic, now, m.graceDays) {
		return &RefreshSnapshot{License: lic, Activation: activation, Status: models.LicenseStatusActive, InGrace: true}, nil
	}

	if lic.Status != models.LicenseStatusExpired {
		_ = m.licenses.MarkExpired(ctx, lic.ID)
		lic.Status = models.LicenseStatusExpired
	}
	return &RefreshSnapshot{License: lic, Activation: activation, Status: models.LicenseStatusExpired}, nil
}
