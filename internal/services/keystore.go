package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ralfizdigital/retailease-license/internal/models"
	"github.com/ralfizdigital/retailease-license/internal/repository"
	"github.com/ralfizdigital/retailease-license/pkg/license"
)

// ErrNoActiveKey is returned when the server has no active signing key pair.
// Treated as a server-misconfiguration error (HTTP 500) by the handler layer.
var ErrNoActiveKey = errors.New("no active signing key pair")

// KeyStore manages RSA key pairs used to sign and verify license codes.
type KeyStore struct {
	db *repository.PostgresDB
}

// NewKeyStore creates a new KeyStore.
func NewKeyStore(db *repository.PostgresDB) *KeyStore {
	return &KeyStore{db: db}
}

// GenerateKeyPair creates a new RSA key pair, persists it, and optionally
// marks it the active signing pair.
func (s *KeyStore) GenerateKeyPair(ctx context.Context, name string, bits int, activate bool) (*models.KeyPair, error) {
	if bits == 0 {
		bits = 4096
	}

	kp, err := license.GenerateKeyPair(bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	privPEM, err := kp.PrivateKeyPEM()
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}
	pubPEM, err := kp.PublicKeyPEM()
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}

	record := &models.KeyPair{
		ID:         uuid.New(),
		Name:       name,
		PrivateKey: privPEM,
		PublicKey:  pubPEM,
		IsActive:   activate,
		CreatedAt:  time.Now().UTC(),
	}

	if activate {
		if _, err := s.db.Pool().Exec(ctx, `UPDATE key_pairs SET is_active = false`); err != nil {
			return nil, fmt.Errorf("failed to deactivate existing key pairs: %w", err)
		}
	}

	_, err = s.db.Pool().Exec(ctx, `
		INSERT INTO key_pairs (id, name, private_key, public_key, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, record.ID, record.Name, record.PrivateKey, record.PublicKey, record.IsActive, record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to persist key pair: %w", err)
	}

	return record, nil
}

// ActiveKeyPair returns the single active key pair, failing if none exists.
func (s *KeyStore) ActiveKeyPair(ctx context.Context) (*models.KeyPair, error) {
	var kp models.KeyPair
	err := s.db.Pool().QueryRow(ctx, `
		SELECT id, name, private_key, public_key, is_active, created_at
		FROM key_pairs WHERE is_active = true LIMIT 1
	`).Scan(&kp.ID, &kp.Name, &kp.PrivateKey, &kp.PublicKey, &kp.IsActive, &kp.CreatedAt)
	if err != nil {
		return nil, ErrNoActiveKey
	}
	return &kp, nil
}

// Get loads a key pair by id (used to verify signatures from older,
// retired key pairs referenced by a License.key_pair_id).
func (s *KeyStore) Get(ctx context.Context, id uuid.UUID) (*models.KeyPair, error) {
	var kp models.KeyPair
	err := s.db.Pool().QueryRow(ctx, `
		SELECT id, name, private_key, public_key, is_active, created_at
		FROM key_pairs WHERE id = $1
	`, id).Scan(&kp.ID, &kp.Name, &kp.PrivateKey, &kp.PublicKey, &kp.IsActive, &kp.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("key pair not found: %w", err)
	}
	return &kp, nil
}

// PublicKeyPEM returns the active key pair's public key for client embedding.
func (s *KeyStore) PublicKeyPEM(ctx context.Context) (string, error) {
	kp, err := s.ActiveKeyPair(ctx)
	if err != nil {
		return "", err
	}
	return kp.PublicKey, nil
}
