package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// credentialKeyLen is the PBKDF2 output size: a 32-byte AES-256 key
	// followed by 16 bytes of additional authenticated data.
	credentialKeyLen = 48

	credentialIterations = 10000

	tokenBytes = 32
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// DeriveCredentialMaterial stretches the shared secret into the AES key
// and authenticated data bound to agentName. Both sides of the relay
// derive the same material independently.
func DeriveCredentialMaterial(secret, agentName string) (key, aad []byte) {
	material := pbkdf2.Key([]byte(secret), []byte(agentName), credentialIterations, credentialKeyLen, sha256.New)
	return material[:32], material[32:]
}

// ComputeCredential seals token under the material derived from
// (secret, agentName) and returns it base64-encoded. Each call
// produces a distinct credential; validation is by decryption, not
// string equality.
func ComputeCredential(secret, agentName, token string) (string, error) {
	key, aad := DeriveCredentialMaterial(secret, agentName)
	sealed, err := Seal(key, aad, []byte(token))
	if err != nil {
		return "", fmt.Errorf("failed to compute credential: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// VerifyCredential reports whether credential proves possession of
// token for (secret, agentName). A credential sealed with a different
// secret or agent name fails authentication inside GCM before the
// token comparison is reached.
func VerifyCredential(secret, agentName, token, credential string) bool {
	sealed, err := base64.StdEncoding.DecodeString(credential)
	if err != nil {
		return false
	}
	key, aad := DeriveCredentialMaterial(secret, agentName)
	plain, err := Open(key, aad, sealed)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(plain, []byte(token)) == 1
}

// Seal encrypts plaintext using AES-256-GCM under key, binding aad.
// Returns encrypted data with nonce prepended.
func Seal(key, aad, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("cannot encrypt empty data")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, aad), nil
}

// Open decrypts data produced by Seal. Expects nonce to be prepended
// to ciphertext.
func Open(key, aad, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("cannot decrypt empty data")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

// GenerateToken returns a fresh random token, base62-encoded.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return EncodeBase62(buf), nil
}

// EncodeBase62 encodes data using the base62 alphabet. Leading zero
// bytes are not preserved; inputs here are fixed-size random tokens.
func EncodeBase62(data []byte) string {
	n := new(big.Int).SetBytes(data)
	base := big.NewInt(int64(len(base62Alphabet)))
	zero := big.NewInt(0)
	rem := new(big.Int)

	var out []byte
	for n.Cmp(zero) > 0 {
		n.DivMod(n, base, rem)
		out = append(out, base62Alphabet[rem.Int64()])
	}
	if len(out) == 0 {
		return string(base62Alphabet[0])
	}

	// The digits come out least-significant first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}
