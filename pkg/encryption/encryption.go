// Package encryption implements the narrow decrypt/getKey boundary the
// Dispatcher and Reconciler use to see task titles in plaintext. It does
// not own ciphertext-at-rest semantics or credential storage; those are
// external collaborators. It only derives, caches, and applies the
// per-tenant key the field-level encryption layer used to write the
// ciphertext columns it's asked to open.
package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"

	"github.com/developer-mesh/dispatch-core/pkg/keystore"
)

const (
	keySize   = 32
	keyIter   = 100000
	nonceSize = 12
)

// Collaborator is the interface the Dispatcher and Reconciler depend on.
type Collaborator interface {
	// GetKey returns the derived key for tenantID, deriving and caching it
	// on a cache miss.
	GetKey(ctx context.Context, tenantID uuid.UUID) ([]byte, error)
	// Decrypt opens an AEAD envelope written with key, returning plaintext.
	Decrypt(ciphertext []byte, key []byte) (string, error)
}

type service struct {
	passphrase string
	keys       *keystore.Store
}

// NewCollaborator builds the Encryption collaborator. passphrase is the
// deployment-wide write passphrase; keys caches the per-tenant keys derived
// from it.
func NewCollaborator(passphrase string, keys *keystore.Store) Collaborator {
	return &service{passphrase: passphrase, keys: keys}
}

func (s *service) GetKey(ctx context.Context, tenantID uuid.UUID) ([]byte, error) {
	if key, ok, err := s.keys.Get(ctx, tenantID); err != nil {
		return nil, err
	} else if ok {
		return key, nil
	}

	key := s.deriveKey(tenantID)
	if err := s.keys.Put(ctx, tenantID, key); err != nil {
		return nil, err
	}
	return key, nil
}

// deriveKey is deterministic in tenantID so a cache miss always reproduces
// the same key the ciphertext was written with: salt is sha256(tenantID),
// not random, unlike a per-message encryption salt.
func (s *service) deriveKey(tenantID uuid.UUID) []byte {
	salt := sha256.Sum256([]byte(tenantID.String()))
	return pbkdf2.Key([]byte(s.passphrase), salt[:], keyIter, keySize, sha256.New)
}

func (s *service) Decrypt(ciphertext []byte, key []byte) (string, error) {
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("encryption: ciphertext shorter than nonce")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("encryption: new cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("encryption: new gcm: %w", err)
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("encryption: open: %w", err)
	}
	return string(plaintext), nil
}
