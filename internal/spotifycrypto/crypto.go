// Package spotifycrypto implements the Spotify ZeroConf addUser encrypted
// blob: a Diffie-Hellman key agreement over the protocol's fixed 1024-bit
// MODP group, HMAC-SHA1 key derivation, and AES-128-CTR credential
// encryption. See the device activation handshake in internal/orchestrator.
package spotifycrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
)

// dhPrime is Spotify's standard 1024-bit MODP group prime, matching the
// value librespot and the official ZeroConf client embed.
var dhPrime, _ = new(big.Int).SetString(
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD1"+
		"29024E088A67CC74020BBEA63B139B22514A08798E3404DD"+
		"EF9519B3CD3A431B302B0A6DF25F14374FE1356D6D51C245"+
		"E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B7ED"+
		"EE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3D"+
		"C2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F"+
		"83655D23DCA3AD961C62F356208552BB9ED529077096966D"+
		"670C354E4ABC9804F1746C08CA18217C32905E462E36CE3B"+
		"E39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9"+
		"DE2BCBF6955817183995497CEA956AE515D2261898FA0510"+
		"15728E5A8AACAA68FFFFFFFFFFFFFFFF", 16)

const dhGenerator = 2

// dhKeyLen is the fixed serialized width of DH values in this protocol: a
// 1024-bit modulus packs into 128 big-endian bytes.
const dhKeyLen = 128

// ErrCrypto is the single error category the package reports; crypto
// failures never partially produce output (spec §4.1 failure semantics).
var ErrCrypto = errors.New("spotify crypto error")

// KeyPair is an ephemeral Diffie-Hellman keypair over Spotify's fixed group.
type KeyPair struct {
	private *big.Int
	Public  [dhKeyLen]byte
}

// GenerateKeyPair produces a fresh ephemeral DH keypair.
func GenerateKeyPair() (*KeyPair, error) {
	private, err := rand.Int(rand.Reader, dhPrime)
	if err != nil {
		return nil, fmt.Errorf("%w: generate private value: %v", ErrCrypto, err)
	}
	if private.Sign() == 0 {
		private.SetInt64(1)
	}

	public := new(big.Int).Exp(big.NewInt(dhGenerator), private, dhPrime)

	kp := &KeyPair{private: private}
	publicBytes := public.Bytes()
	if len(publicBytes) > dhKeyLen {
		return nil, fmt.Errorf("%w: public value overflowed %d bytes", ErrCrypto, dhKeyLen)
	}
	copy(kp.Public[dhKeyLen-len(publicBytes):], publicBytes)
	return kp, nil
}

// SharedSecret computes the DH shared secret given the remote party's
// serialized public value.
func (kp *KeyPair) SharedSecret(remotePublic []byte) ([]byte, error) {
	if len(remotePublic) == 0 {
		return nil, fmt.Errorf("%w: empty remote public value", ErrCrypto)
	}
	remote := new(big.Int).SetBytes(remotePublic)
	shared := new(big.Int).Exp(remote, kp.private, dhPrime)
	return shared.Bytes(), nil
}

// deriveKeys implements spec §4.1.3: base_key = HMAC-SHA1(shared, username);
// enc_key = base_key[0:16]; hmac_key = base_key[16:32], zero-padded if short.
func deriveKeys(sharedSecret []byte, username string) (encKey, hmacKey []byte) {
	mac := hmac.New(sha1.New, sharedSecret)
	mac.Write([]byte(username))
	baseKey := mac.Sum(nil)

	encKey = make([]byte, 16)
	copy(encKey, baseKey[:min(16, len(baseKey))])

	hmacKey = make([]byte, 16)
	if len(baseKey) > 16 {
		tail := baseKey[16:]
		copy(hmacKey, tail[:min(16, len(tail))])
	}
	return encKey, hmacKey
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// EncryptBlob implements spec §4.1.4: builds "username:password", encrypts it
// under AES-128-CTR with a random 16-byte IV, and returns base64(iv||ciphertext).
func EncryptBlob(encKey []byte, username, password string) (string, error) {
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return "", fmt.Errorf("%w: aes cipher: %v", ErrCrypto, err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("%w: generate iv: %v", ErrCrypto, err)
	}

	plaintext := []byte(username + ":" + password)
	ciphertext := make([]byte, len(plaintext))
	stream := cipher.NewCTR(block, iv)
	stream.XORKeyStream(ciphertext, plaintext)

	blob := append(append([]byte{}, iv...), ciphertext...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// DecryptBlob reverses EncryptBlob given the same enc key; used only by
// tests to assert the round-trip invariant (spec §8 property 6).
func DecryptBlob(encKey []byte, blobBase64 string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(blobBase64)
	if err != nil {
		return "", fmt.Errorf("%w: decode blob: %v", ErrCrypto, err)
	}
	if len(blob) < aes.BlockSize {
		return "", fmt.Errorf("%w: blob shorter than iv", ErrCrypto)
	}
	iv, ciphertext := blob[:aes.BlockSize], blob[aes.BlockSize:]

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return "", fmt.Errorf("%w: aes cipher: %v", ErrCrypto, err)
	}

	plaintext := make([]byte, len(ciphertext))
	stream := cipher.NewCTR(block, iv)
	stream.XORKeyStream(plaintext, ciphertext)
	return string(plaintext), nil
}

// EncryptedBlob implements the full spec §4.1 contract:
// EncryptedBlob(username, password, token) -> (blob_base64, client_key_base64).
//
// remoteDHPublic is the device's DH public value from a live handshake. When
// nil (no live handshake occurred — the common case, since addUser happens
// without a prior key exchange round-trip), a random placeholder of the
// correct length is used instead. This matches the known best-effort nature
// of blob_clientKey documented in spec §9: the resulting blob is not one the
// device can necessarily decrypt, and callers should treat it as a fallback
// behind the access_token auth mode.
func EncryptedBlob(username, password string, remoteDHPublic []byte) (blobBase64, clientKeyBase64 string, err error) {
	kp, err := GenerateKeyPair()
	if err != nil {
		return "", "", err
	}

	devicePublic := remoteDHPublic
	if len(devicePublic) == 0 {
		placeholder := make([]byte, dhKeyLen)
		if _, err := rand.Read(placeholder); err != nil {
			return "", "", fmt.Errorf("%w: generate placeholder public value: %v", ErrCrypto, err)
		}
		devicePublic = placeholder
	}

	shared, err := kp.SharedSecret(devicePublic)
	if err != nil {
		return "", "", err
	}

	encKey, _ := deriveKeys(shared, username)

	blob, err := EncryptBlob(encKey, username, password)
	if err != nil {
		return "", "", err
	}

	return blob, base64.StdEncoding.EncodeToString(kp.Public[:]), nil
}

// SimpleBlob is the fallback blob mode: the OAuth access token is used
// verbatim as the blob, with an empty client key (spec §4.1 Fallback).
func SimpleBlob(accessToken string) (blobBase64, clientKeyBase64 string) {
	return accessToken, ""
}
