package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/ralfizdigital/retailease-license/internal/models"
	"github.com/ralfizdigital/retailease-license/internal/repository"
	pkglicense "github.com/ralfizdigital/retailease-license/pkg/license"
)

var (
	ErrLicenseNotFound  = errors.New("license not found")
	ErrLicenseExpired   = errors.New("license has expired")
	ErrLicenseRevoked   = errors.New("license has been revoked")
	ErrLicenseSuspended = errors.New("license has been suspended")
)

// LicenseService is the LicenseStore of SPEC_FULL.md §4.C: it persists
// License records and computes validity, grace period, days-remaining, and
// renewal.
type LicenseService struct {
	db       *repository.PostgresDB
	keys     *KeyStore
	licenses *keyedMutex
}

// NewLicenseService creates a new LicenseService.
func NewLicenseService(db *repository.PostgresDB, keys *KeyStore) *LicenseService {
	return &LicenseService{db: db, keys: keys, licenses: newKeyedMutex()}
}

// CreateArgs carries the fields an operator supplies when issuing a License.
type CreateArgs struct {
	CustomerName    string
	CustomerEmail   string
	CustomerCompany string
	CustomerPhone   string
	LicenseType     string
	MaxActivations  int
	BillingCycle    string
	ClientID        *uuid.UUID
}

// defaultValidUntil assigns valid_until by license_type, per
// SPEC_FULL.md §3: trial -> +30d, lifetime -> +36500d, else -> +365d.
func defaultValidUntil(licenseType string, from time.Time) time.Time {
	switch licenseType {
	case models.LicenseTypeTrial:
		return from.AddDate(0, 0, 30)
	case models.LicenseTypeLifetime:
		return from.AddDate(0, 0, 36500)
	default:
		return from.AddDate(0, 0, 365)
	}
}

// Create assigns defaults, signs, and persists a new License.
func (s *LicenseService) Create(ctx context.Context, args CreateArgs) (*models.License, error) {
	if args.MaxActivations <= 0 {
		args.MaxActivations = 1
	}
	if args.BillingCycle == "" {
		args.BillingCycle = models.BillingCycleYearly
	}

	activeKey, err := s.keys.ActiveKeyPair(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	lic := &models.License{
		ID:                 uuid.New(),
		KeyPairID:          activeKey.ID,
		CustomerName:       args.CustomerName,
		CustomerEmail:      args.CustomerEmail,
		CustomerCompany:    args.CustomerCompany,
		CustomerPhone:      args.CustomerPhone,
		LicenseType:        args.LicenseType,
		Status:             models.LicenseStatusActive,
		MaxActivations:     args.MaxActivations,
		CurrentActivations: 0,
		ValidFrom:          now,
		ValidUntil:         defaultValidUntil(args.LicenseType, now),
		BillingCycle:       args.BillingCycle,
		ClientID:           args.ClientID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	code, err := s.sign(lic, activeKey.PrivateKey)
	if err != nil {
		return nil, err
	}
	lic.LicenseCode = code

	_, err = s.db.Pool().Exec(ctx, `
		INSERT INTO licenses (id, key_pair_id, customer_name, customer_email, customer_company, customer_phone,
			license_type, status, max_activations, current_activations, valid_from, valid_until, billing_cycle,
			renewal_count, notes, license_code, client_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, lic.ID, lic.KeyPairID, lic.CustomerName, lic.CustomerEmail, lic.CustomerCompany, lic.CustomerPhone,
		lic.LicenseType, lic.Status, lic.MaxActivations, lic.CurrentActivations, lic.ValidFrom, lic.ValidUntil,
		lic.BillingCycle, lic.RenewalCount, lic.Notes, lic.LicenseCode, lic.ClientID, lic.CreatedAt, lic.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to persist license: %w", err)
	}

	return lic, nil
}

// sign builds the canonical payload and signs it with the owning key pair.
func (s *LicenseService) sign(lic *models.License, privatePEM string) (string, error) {
	priv, err := pkglicense.LoadPrivateKeyPEM(privatePEM)
	if err != nil {
		return "", fmt.Errorf("failed to load signing key: %w", err)
	}

	payload := pkglicense.Payload{
		CustomerEmail:  lic.CustomerEmail,
		CustomerName:   lic.CustomerName,
		IssuedAt:       time.Now().UTC(),
		LicenseID:      lic.ID.String(),
		LicenseType:    lic.LicenseType,
		MaxActivations: lic.MaxActivations,
		ValidFrom:      lic.ValidFrom,
		ValidUntil:     lic.ValidUntil,
	}

	code, err := pkglicense.Sign(payload, priv)
	if err != nil {
		return "", fmt.Errorf("failed to sign license: %w", err)
	}
	return code, nil
}

// Get loads a License by id.
func (s *LicenseService) Get(ctx context.Context, id uuid.UUID) (*models.License, error) {
	return s.scanOne(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE id = $1`, id)
}

// FindByEmail loads the most recently created License for a customer email.
func (s *LicenseService) FindByEmail(ctx context.Context, email string) (*models.License, error) {
	return s.scanOne(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE customer_email = $1 ORDER BY created_at DESC LIMIT 1`, email)
}

const licenseColumns = `id, key_pair_id, customer_name, customer_email, customer_company, customer_phone,
	license_type, status, max_activations, current_activations, valid_from, valid_until, billing_cycle,
	renewal_count, last_renewed_at, notes, license_code, client_id, created_at, updated_at`

func (s *LicenseService) scanOne(ctx context.Context, query string, arg interface{}) (*models.License, error) {
	var l models.License
	err := s.db.Pool().QueryRow(ctx, query, arg).Scan(
		&l.ID, &l.KeyPairID, &l.CustomerName, &l.CustomerEmail, &l.CustomerCompany, &l.CustomerPhone,
		&l.LicenseType, &l.Status, &l.MaxActivations, &l.CurrentActivations, &l.ValidFrom, &l.ValidUntil,
		&l.BillingCycle, &l.RenewalCount, &l.LastRenewedAt, &l.Notes, &l.LicenseCode, &l.ClientID,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, ErrLicenseNotFound
	}
	return &l, nil
}

// IsValid reports status=active ∧ valid_from ≤ now ≤ valid_until.
func (s *LicenseService) IsValid(l *models.License, now time.Time) bool {
	return l.Status == models.LicenseStatusActive && !now.Before(l.ValidFrom) && !now.After(l.ValidUntil)
}

// InGracePeriod reports status=active ∧ valid_until < now ≤ valid_until+graceDays.
func (s *LicenseService) InGracePeriod(l *models.License, now time.Time, graceDays int) bool {
	if l.Status != models.LicenseStatusActive {
		return false
	}
	graceEnd := l.ValidUntil.AddDate(0, 0, graceDays)
	return now.After(l.ValidUntil) && !now.After(graceEnd)
}

// DaysRemaining returns max(0, floor((valid_until-now)/24h)) when valid.
func (s *LicenseService) DaysRemaining(l *models.License, now time.Time) int {
	remaining := l.ValidUntil.Sub(now).Hours() / 24
	if remaining < 0 {
		return 0
	}
	return int(math.Floor(remaining))
}

// extensionDaysForCycle maps billing_cycle to the default renewal extension
// when the caller does not supply extend_days explicitly.
func extensionDaysForCycle(cycle string) int {
	switch cycle {
	case models.BillingCycleMonthly:
		return 30
	case models.BillingCycleLifetime:
		return 36500
	default:
		return 365
	}
}

// Renew extends valid_until, re-activates the License, increments
// renewal_count, appends a note, and regenerates license_code. Serialized
// per-license to avoid racing with ActivationManager mutations on the same
// row. extend_days=0 selects the billing_cycle default.
func (s *LicenseService) Renew(ctx context.Context, licenseID uuid.UUID, extendDays int, paymentReference string) (*models.License, error) {
	unlock := s.licenses.Lock(licenseID.String())
	defer unlock()

	lic, err := s.Get(ctx, licenseID)
	if err != nil {
		return nil, err
	}

	if extendDays <= 0 {
		extendDays = extensionDaysForCycle(lic.BillingCycle)
	}

	oldValidUntil := lic.ValidUntil
	now := time.Now().UTC()

	lic.ValidUntil = oldValidUntil.AddDate(0, 0, extendDays)
	lic.Status = models.LicenseStatusActive
	lic.RenewalCount++
	lic.LastRenewedAt = &now
	note := fmt.Sprintf("[%s] Renewed from %s to %s (Payment: %s)",
		now.Format(time.RFC3339), oldValidUntil.Format("2006-01-02"), lic.ValidUntil.Format("2006-01-02"), paymentReference)
	if lic.Notes != "" {
		lic.Notes += "\n" + note
	} else {
		lic.Notes = note
	}
	lic.UpdatedAt = now

	activeKey, err := s.keys.Get(ctx, lic.KeyPairID)
	if err != nil {
		return nil, err
	}
	code, err := s.sign(lic, activeKey.PrivateKey)
	if err != nil {
		return nil, err
	}
	lic.LicenseCode = code

	_, err = s.db.Pool().Exec(ctx, `
		UPDATE licenses SET valid_until=$1, status=$2, renewal_count=$3, last_renewed_at=$4,
			notes=$5, license_code=$6, updated_at=$7
		WHERE id=$8
	`, lic.ValidUntil, lic.Status, lic.RenewalCount, lic.LastRenewedAt, lic.Notes, lic.LicenseCode, lic.UpdatedAt, lic.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to persist renewal: %w", err)
	}

	return lic, nil
}

// Revoke flips status to revoked.
func (s *LicenseService) Revoke(ctx context.Context, licenseID uuid.UUID) error {
	return s.setStatus(ctx, licenseID, models.LicenseStatusRevoked)
}

// Suspend flips status to suspended.
func (s *LicenseService) Suspend(ctx context.Context, licenseID uuid.UUID) error {
	return s.setStatus(ctx, licenseID, models.LicenseStatusSuspended)
}

// Reactivate restores a revoked or suspended License to active, per
// SPEC_FULL.md §4.C's note that revoked is not a terminal state.
func (s *LicenseService) Reactivate(ctx context.Context, licenseID uuid.UUID) error {
	return s.setStatus(ctx, licenseID, models.LicenseStatusActive)
}

func (s *LicenseService) setStatus(ctx context.Context, licenseID uuid.UUID, status string) error {
	_, err := s.db.Pool().Exec(ctx, `UPDATE licenses SET status=$1, updated_at=$2 WHERE id=$3`,
		status, time.Now().UTC(), licenseID)
	return err
}

// MarkExpired transitions a License to expired when it is observed past its
// grace window. Called by ActivationManager during ValidateAndActivate.
func (s *LicenseService) MarkExpired(ctx context.Context, licenseID uuid.UUID) error {
	return s.setStatus(ctx, licenseID, models.LicenseStatusExpired)
}

// SetCurrentActivations persists the cached activation count, keeping
// License.current_activations consistent with ActivationManager's count.
func (s *LicenseService) SetCurrentActivations(ctx context.Context, licenseID uuid.UUID, count int) error {
	_, err := s.db.Pool().Exec(ctx, `UPDATE licenses SET current_activations=$1, updated_at=$2 WHERE id=$3`,
		count, time.Now().UTC(), licenseID)
	return err
}

// LockLicense returns the release func for the per-license critical section,
// shared with ActivationManager so Renew and ValidateAndActivate/Deactivate
// never race on the same License row.
func (s *LicenseService) LockLicense(licenseID uuid.UUID) func() {
	return s.licenses.Lock(licenseID.String())
}
