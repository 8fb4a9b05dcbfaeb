package license

import (
	"strings"
	"testing"
	"time"
)

func testPayload() Payload {
	now := time.Now().UTC().Truncate(time.Second)
	return Payload{
		CustomerEmail:  "owner@example.com",
		CustomerName:   "Example Retail",
		IssuedAt:       now,
		LicenseID:      "11111111-1111-1111-1111-111111111111",
		LicenseType:    "basic",
		MaxActivations: 2,
		ValidFrom:      now,
		ValidUntil:     now.Add(365 * 24 * time.Hour),
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair(2048)
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}

	payload := testPayload()
	code, err := Sign(payload, kp.PrivateKey)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if !strings.HasPrefix(code, "REP-") {
		t.Fatalf("code missing REP- prefix: %s", code)
	}

	got, err := Verify(code, kp.PublicKey)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if got.LicenseID != payload.LicenseID || got.CustomerEmail != payload.CustomerEmail {
		t.Fatalf("round-tripped payload mismatch: got %+v, want %+v", got, payload)
	}
}

func TestVerifyWrongKeyFails(t *testing.T) {
	kp1, _ := GenerateKeyPair(2048)
	kp2, _ := GenerateKeyPair(2048)

	code, err := Sign(testPayload(), kp1.PrivateKey)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if _, err := Verify(code, kp2.PublicKey); err != ErrInvalidSignature {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyTamperedSignatureFails(t *testing.T) {
	kp, _ := GenerateKeyPair(2048)
	code, err := Sign(testPayload(), kp.PrivateKey)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	tampered := []byte(code)
	// Flip a byte well inside the base64 envelope tail, away from the
	// "REP-<CHK>-" prefix, so the mutation lands in the envelope payload.
	idx := len(tampered) - 10
	if tampered[idx] == 'A' {
		tampered[idx] = 'B'
	} else {
		tampered[idx] = 'A'
	}

	if _, err := Verify(string(tampered), kp.PublicKey); err == nil {
		t.Fatal("expected tampering to break verification")
	}
}

func TestVerifyExpired(t *testing.T) {
	kp, _ := GenerateKeyPair(2048)
	payload := testPayload()
	payload.ValidFrom = payload.ValidFrom.Add(-48 * time.Hour)
	payload.ValidUntil = payload.IssuedAt.Add(-47 * time.Hour)

	code, err := Sign(payload, kp.PrivateKey)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if _, err := Verify(code, kp.PublicKey); err != ErrExpired {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestVerifyNotYetValid(t *testing.T) {
	kp, _ := GenerateKeyPair(2048)
	payload := testPayload()
	payload.ValidFrom = payload.ValidFrom.Add(48 * time.Hour)
	payload.ValidUntil = payload.ValidUntil.Add(48 * time.Hour)

	code, err := Sign(payload, kp.PrivateKey)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if _, err := Verify(code, kp.PublicKey); err != ErrNotYetValid {
		t.Fatalf("expected ErrNotYetValid, got %v", err)
	}
}

func TestVerifyMalformedCode(t *testing.T) {
	kp, _ := GenerateKeyPair(2048)
	if _, err := Verify("REP-ABCDEF12-not-valid-base64!!", kp.PublicKey); err != ErrMalformed {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}
