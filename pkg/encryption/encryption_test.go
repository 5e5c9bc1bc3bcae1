package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/pbkdf2"

	"github.com/developer-mesh/dispatch-core/pkg/cache"
	"github.com/developer-mesh/dispatch-core/pkg/keystore"
)

func setupCollaborator(t *testing.T) Collaborator {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := cache.NewRedisCache(cache.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)

	return NewCollaborator("test-passphrase", keystore.New(c))
}

// seal reproduces what the external field-level encryption layer writes:
// an AES-GCM envelope under the same tenant-derived key this package would
// compute for passphrase.
func seal(t *testing.T, passphrase string, tenantID uuid.UUID, plaintext string) []byte {
	t.Helper()
	salt := sha256.Sum256([]byte(tenantID.String()))
	key := pbkdf2.Key([]byte(passphrase), salt[:], keyIter, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)

	nonce := make([]byte, nonceSize)
	_, err = rand.Read(nonce)
	require.NoError(t, err)

	return gcm.Seal(nonce, nonce, []byte(plaintext), nil)
}

func TestCollaborator_GetKey_DerivesAndCaches(t *testing.T) {
	c := setupCollaborator(t)
	tenantID := uuid.New()

	key1, err := c.GetKey(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, key1, keySize)

	key2, err := c.GetKey(context.Background(), tenantID)
	require.NoError(t, err)
	require.Equal(t, key1, key2)
}

func TestCollaborator_Decrypt_RoundTrip(t *testing.T) {
	c := setupCollaborator(t)
	tenantID := uuid.New()

	ciphertext := seal(t, "test-passphrase", tenantID, "finish the quarterly report")

	key, err := c.GetKey(context.Background(), tenantID)
	require.NoError(t, err)

	plaintext, err := c.Decrypt(ciphertext, key)
	require.NoError(t, err)
	require.Equal(t, "finish the quarterly report", plaintext)
}

func TestCollaborator_Decrypt_WrongKeyFails(t *testing.T) {
	c := setupCollaborator(t)
	tenantID := uuid.New()
	other := uuid.New()

	ciphertext := seal(t, "test-passphrase", tenantID, "secret title")

	wrongKey, err := c.GetKey(context.Background(), other)
	require.NoError(t, err)

	_, err = c.Decrypt(ciphertext, wrongKey)
	require.Error(t, err)
}

func TestCollaborator_Decrypt_ShortCiphertext(t *testing.T) {
	c := setupCollaborator(t)
	_, err := c.Decrypt([]byte("x"), make([]byte, keySize))
	require.Error(t, err)
}
