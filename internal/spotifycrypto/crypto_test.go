package spotifycrypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyPairPublicValueIsFixedWidth(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)
	require.Len(t, kp.Public, dhKeyLen)
}

func TestSharedSecretDeterministicForFixedKeys(t *testing.T) {
	kp, err := GenerateKeyPair()
	require.NoError(t, err)

	remotePublic := make([]byte, dhKeyLen)
	for i := range remotePublic {
		remotePublic[i] = byte(i)
	}

	secret1, err := kp.SharedSecret(remotePublic)
	require.NoError(t, err)
	secret2, err := kp.SharedSecret(remotePublic)
	require.NoError(t, err)
	require.Equal(t, secret1, secret2)
}

func TestEncryptDecryptBlobRoundTrip(t *testing.T) {
	encKey := []byte("0123456789abcdef")

	blob, err := EncryptBlob(encKey, "alarm_user", "hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, blob)

	plaintext, err := DecryptBlob(encKey, blob)
	require.NoError(t, err)
	require.Equal(t, "alarm_user:hunter2", plaintext)
}

func TestEncryptedBlobWithoutRemotePublicUsesPlaceholder(t *testing.T) {
	blob, clientKey, err := EncryptedBlob("alarm_user", "hunter2", nil)
	require.NoError(t, err)
	require.NotEmpty(t, blob)
	require.NotEmpty(t, clientKey)
}

func TestEncryptedBlobWithRemotePublic(t *testing.T) {
	remotePublic := make([]byte, dhKeyLen)
	remotePublic[dhKeyLen-1] = 7

	blob, clientKey, err := EncryptedBlob("alarm_user", "hunter2", remotePublic)
	require.NoError(t, err)
	require.NotEmpty(t, blob)
	require.NotEmpty(t, clientKey)
}

func TestSimpleBlobReturnsAccessTokenVerbatim(t *testing.T) {
	blob, clientKey := SimpleBlob("token-abc")
	require.Equal(t, "token-abc", blob)
	require.Empty(t, clientKey)
}

func TestDeriveKeysPadsShortBaseKey(t *testing.T) {
	encKey, hmacKey := deriveKeys([]byte("short-secret"), "user")
	require.Len(t, encKey, 16)
	require.Len(t, hmacKey, 16)
}
