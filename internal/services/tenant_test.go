package services

import (
	"testing"

	"github.com/ralfizdigital/retailease-license/internal/models"
)

func TestNewTenantStore(t *testing.T) {
	s := NewTenantStore(nil)
	if s == nil {
		t.Fatal("expected non-nil TenantStore")
	}
}

func TestApplyFields_OnlyOverwritesNonEmpty(t *testing.T) {
	s := &TenantStore{}
	b := &models.Business{
		Name:         "Original Store",
		City:         "Mumbai",
		CurrencyCode: "INR",
	}

	s.applyFields(b, BusinessFields{
		Name: "Updated Store",
		City: "", // blank must not clobber the existing value
	})

	if b.Name != "Updated Store" {
		t.Errorf("Name = %q, want %q", b.Name, "Updated Store")
	}
	if b.City != "Mumbai" {
		t.Errorf("City should be left untouched, got %q", b.City)
	}
	if b.CurrencyCode != "INR" {
		t.Errorf("CurrencyCode should be left untouched, got %q", b.CurrencyCode)
	}
}

func TestApplyFields_AllFieldsSettable(t *testing.T) {
	s := &TenantStore{}
	b := &models.Business{}

	fields := BusinessFields{
		Name:           "Store",
		LegalName:      "Store Pvt Ltd",
		BusinessType:   "retail",
		Email:          "store@example.com",
		Phone:          "9999999999",
		Website:        "https://store.example.com",
		AddressLine1:   "1 Main Rd",
		AddressLine2:   "Suite 2",
		City:           "Pune",
		State:          "MH",
		Country:        "India",
		PostalCode:     "411001",
		GSTNumber:      "27AAAAA0000A1Z5",
		PANNumber:      "AAAAA0000A",
		CurrencyCode:   "INR",
		CurrencySymbol: "₹",
		DateFormat:     "DD/MM/YYYY",
	}
	s.applyFields(b, fields)

	if b.Name != fields.Name || b.LegalName != fields.LegalName || b.Email != fields.Email {
		t.Error("applyFields did not apply all expected fields")
	}
	if b.GSTNumber != fields.GSTNumber || b.PANNumber != fields.PANNumber {
		t.Error("applyFields did not apply tax-id fields")
	}
}
