package license

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// transportPrefix marks the signed envelope form handed to customers, per
// SPEC_FULL.md §6.1.
const transportPrefix = "REP-"

// Payload is the canonical signed content of a license code. Field order
// here matches the alphabetically-sorted JSON key order the envelope
// requires (cemail, cname, iat, lid, ltype, maxact, vfrom, vuntil) — Go
// marshals struct fields in declaration order, so this order is load
// bearing, not cosmetic.
type Payload struct {
	CustomerEmail  string    `json:"cemail"`
	CustomerName   string    `json:"cname"`
	IssuedAt       time.Time `json:"iat"`
	LicenseID      string    `json:"lid"`
	LicenseType    string    `json:"ltype"`
	MaxActivations int       `json:"maxact"`
	ValidFrom      time.Time `json:"vfrom"`
	ValidUntil     time.Time `json:"vuntil"`
}

type envelope struct {
	P string `json:"p"`
	S string `json:"s"`
	V int    `json:"v"`
}

// Sign encodes payload as canonical JSON, signs it with RSA-PSS-SHA256
// (MGF1-SHA256, maximum salt length), and returns the transport-form
// license code "REP-<CHK>-<ENVELOPE_B64>".
func Sign(payload Payload, priv *rsa.PrivateKey) (string, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	digest := sha256.Sum256(payloadBytes)
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}

	env := envelope{
		P: base64.StdEncoding.EncodeToString(payloadBytes),
		S: base64.StdEncoding.EncodeToString(sig),
		V: 1,
	}
	envBytes, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}
	envB64 := base64.StdEncoding.EncodeToString(envBytes)

	checksum := sha256.Sum256([]byte(envB64))
	chk := strings.ToUpper(hex.EncodeToString(checksum[:]))[:8]

	return transportPrefix + chk + "-" + envB64, nil
}

// Verify strips the transport prefix (its checksum is advisory, never
// authoritative), decodes the envelope, and verifies the RSA-PSS signature.
// On signature success it additionally rejects payloads outside their
// validity window. Any decoding/parsing fault collapses to ErrMalformed.
func Verify(code string, pub *rsa.PublicKey) (Payload, error) {
	envB64 := code
	if strings.HasPrefix(code, transportPrefix) {
		parts := strings.SplitN(code, "-", 3)
		if len(parts) != 3 {
			return Payload{}, ErrMalformed
		}
		envB64 = parts[2]
	}

	envBytes, err := base64.StdEncoding.DecodeString(envB64)
	if err != nil {
		return Payload{}, ErrMalformed
	}

	var env envelope
	if err := json.Unmarshal(envBytes, &env); err != nil {
		return Payload{}, ErrMalformed
	}

	payloadBytes, err := base64.StdEncoding.DecodeString(env.P)
	if err != nil {
		return Payload{}, ErrMalformed
	}
	sig, err := base64.StdEncoding.DecodeString(env.S)
	if err != nil {
		return Payload{}, ErrMalformed
	}

	digest := sha256.Sum256(payloadBytes)
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
		Hash:       crypto.SHA256,
	}); err != nil {
		return Payload{}, ErrInvalidSignature
	}

	var payload Payload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return Payload{}, ErrMalformed
	}

	now := time.Now().UTC()
	if now.Before(payload.ValidFrom) {
		return payload, ErrNotYetValid
	}
	if now.After(payload.ValidUntil) {
		return payload, ErrExpired
	}

	return payload, nil
}
