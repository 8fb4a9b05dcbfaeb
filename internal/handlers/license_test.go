package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/license/validate", nil)
	req.RemoteAddr = "10.0.0.1:5555"

	if got := clientIP(req); got != "10.0.0.1:5555" {
		t.Errorf("expected RemoteAddr fallback, got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Errorf("expected X-Forwarded-For to take priority, got %q", got)
	}
}

func TestVerifyAdminKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.DefaultCost)
	if err != nil {
		t.Fatalf("failed to hash test key: %v", err)
	}

	h := &LicenseHandler{adminKeyHash: string(hash)}

	if !h.verifyAdminKey("s3cret") {
		t.Error("expected correct admin key to verify")
	}
	if h.verifyAdminKey("wrong") {
		t.Error("expected incorrect admin key to fail verification")
	}
	if h.verifyAdminKey("") {
		t.Error("expected empty admin key to fail verification")
	}

	empty := &LicenseHandler{adminKeyHash: ""}
	if empty.verifyAdminKey("anything") {
		t.Error("expected empty server-side hash to always reject")
	}
}
