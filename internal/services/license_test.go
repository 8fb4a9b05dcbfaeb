package services

import (
	"testing"
	"time"

	"github.com/ralfizdigital/retailease-license/internal/models"
)

func TestDefaultValidUntil(t *testing.T) {
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		licenseType string
		wantDays    int
	}{
		{name: "trial grants 30 days", licenseType: models.LicenseTypeTrial, wantDays: 30},
		{name: "lifetime grants 36500 days", licenseType: models.LicenseTypeLifetime, wantDays: 36500},
		{name: "basic defaults to 365 days", licenseType: models.LicenseTypeBasic, wantDays: 365},
		{name: "professional defaults to 365 days", licenseType: models.LicenseTypeProfessional, wantDays: 365},
		{name: "enterprise defaults to 365 days", licenseType: models.LicenseTypeEnterprise, wantDays: 365},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := defaultValidUntil(tt.licenseType, from)
			want := from.AddDate(0, 0, tt.wantDays)
			if !got.Equal(want) {
				t.Errorf("defaultValidUntil(%q) = %v, want %v", tt.licenseType, got, want)
			}
		})
	}
}

func TestLicenseService_IsValid(t *testing.T) {
	s := &LicenseService{}
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		lic  *models.License
		want bool
	}{
		{
			name: "active and within window",
			lic: &models.License{
				Status:     models.LicenseStatusActive,
				ValidFrom:  now.AddDate(0, -1, 0),
				ValidUntil: now.AddDate(0, 1, 0),
			},
			want: true,
		},
		{
			name: "revoked is never valid",
			lic: &models.License{
				Status:     models.LicenseStatusRevoked,
				ValidFrom:  now.AddDate(0, -1, 0),
				ValidUntil: now.AddDate(0, 1, 0),
			},
			want: false,
		},
		{
			name: "active but expired",
			lic: &models.License{
				Status:     models.LicenseStatusActive,
				ValidFrom:  now.AddDate(0, -2, 0),
				ValidUntil: now.AddDate(0, -1, 0),
			},
			want: false,
		},
		{
			name: "active but not yet started",
			lic: &models.License{
				Status:     models.LicenseStatusActive,
				ValidFrom:  now.AddDate(0, 1, 0),
				ValidUntil: now.AddDate(0, 2, 0),
			},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.IsValid(tt.lic, now); got != tt.want {
				t.Errorf("IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLicenseService_InGracePeriod(t *testing.T) {
	s := &LicenseService{}
	validUntil := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		lic  *models.License
		now  time.Time
		want bool
	}{
		{
			name: "within grace window",
			lic:  &models.License{Status: models.LicenseStatusActive, ValidUntil: validUntil},
			now:  validUntil.AddDate(0, 0, 3),
			want: true,
		},
		{
			name: "at the grace boundary",
			lic:  &models.License{Status: models.LicenseStatusActive, ValidUntil: validUntil},
			now:  validUntil.AddDate(0, 0, 7),
			want: true,
		},
		{
			name: "past the grace window",
			lic:  &models.License{Status: models.LicenseStatusActive, ValidUntil: validUntil},
			now:  validUntil.AddDate(0, 0, 8),
			want: false,
		},
		{
			name: "still valid, not yet in grace",
			lic:  &models.License{Status: models.LicenseStatusActive, ValidUntil: validUntil},
			now:  validUntil.AddDate(0, 0, -1),
			want: false,
		},
		{
			name: "suspended licenses never enter grace",
			lic:  &models.License{Status: models.LicenseStatusSuspended, ValidUntil: validUntil},
			now:  validUntil.AddDate(0, 0, 3),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.InGracePeriod(tt.lic, tt.now, 7); got != tt.want {
				t.Errorf("InGracePeriod() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLicenseService_DaysRemaining(t *testing.T) {
	s := &LicenseService{}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		lic  *models.License
		want int
	}{
		{
			name: "one year remaining",
			lic:  &models.License{ValidUntil: now.AddDate(1, 0, 0)},
			want: 365,
		},
		{
			name: "already expired clamps to zero",
			lic:  &models.License{ValidUntil: now.AddDate(0, 0, -5)},
			want: 0,
		},
		{
			name: "partial day floors down",
			lic:  &models.License{ValidUntil: now.Add(36 * time.Hour)},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.DaysRemaining(tt.lic, now); got != tt.want {
				t.Errorf("DaysRemaining() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExtensionDaysForCycle(t *testing.T) {
	tests := []struct {
		cycle string
		want  int
	}{
		{cycle: models.BillingCycleMonthly, want: 30},
		{cycle: models.BillingCycleYearly, want: 365},
		{cycle: models.BillingCycleLifetime, want: 36500},
		{cycle: "unknown", want: 365},
	}

	for _, tt := range tests {
		t.Run(tt.cycle, func(t *testing.T) {
			if got := extensionDaysForCycle(tt.cycle); got != tt.want {
				t.Errorf("extensionDaysForCycle(%q) = %d, want %d", tt.cycle, got, tt.want)
			}
		})
	}
}

func TestLicenseService_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "license not found", err: ErrLicenseNotFound, expected: "license not found"},
		{name: "license expired", err: ErrLicenseExpired, expected: "license has expired"},
		{name: "license revoked", err: ErrLicenseRevoked, expected: "license has been revoked"},
		{name: "license suspended", err: ErrLicenseSuspended, expected: "license has been suspended"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expected {
				t.Errorf("error = %q, want %q", tt.err.Error(), tt.expected)
			}
		})
	}
}
