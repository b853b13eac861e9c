package security

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeAndVerifyCredential(t *testing.T) {
	cred, err := ComputeCredential("shared-secret", "attic", "challenge-token")
	require.NoError(t, err)

	assert.True(t, VerifyCredential("shared-secret", "attic", "challenge-token", cred))
}

func TestVerifyCredentialRejects(t *testing.T) {
	cred, err := ComputeCredential("shared-secret", "attic", "challenge-token")
	require.NoError(t, err)

	tests := []struct {
		name       string
		secret     string
		agent      string
		token      string
		credential string
	}{
		{"wrong secret", "other-secret", "attic", "challenge-token", cred},
		{"wrong agent", "shared-secret", "cellar", "challenge-token", cred},
		{"wrong token", "shared-secret", "attic", "other-token", cred},
		{"not base64", "shared-secret", "attic", "challenge-token", "%%%"},
		{"truncated", "shared-secret", "attic", "challenge-token", cred[:8]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, VerifyCredential(tt.secret, tt.agent, tt.token, tt.credential))
		})
	}
}

func TestCredentialsAreNonDeterministic(t *testing.T) {
	a, err := ComputeCredential("s", "attic", "tok")
	require.NoError(t, err)
	b, err := ComputeCredential("s", "attic", "tok")
	require.NoError(t, err)

	// Random nonce: same inputs, different ciphertexts, both valid.
	assert.NotEqual(t, a, b)
	assert.True(t, VerifyCredential("s", "attic", "tok", a))
	assert.True(t, VerifyCredential("s", "attic", "tok", b))
}

func TestDeriveCredentialMaterialIsStable(t *testing.T) {
	key1, aad1 := DeriveCredentialMaterial("secret", "attic")
	key2, aad2 := DeriveCredentialMaterial("secret", "attic")

	assert.Equal(t, key1, key2)
	assert.Equal(t, aad1, aad2)
	assert.Len(t, key1, 32)
	assert.Len(t, aad1, 16)

	key3, _ := DeriveCredentialMaterial("secret", "cellar")
	assert.NotEqual(t, key1, key3)
}

func TestSealOpenRoundTrip(t *testing.T) {
	key, aad := DeriveCredentialMaterial("secret", "attic")

	sealed, err := Seal(key, aad, []byte("payload"))
	require.NoError(t, err)

	plain, err := Open(key, aad, sealed)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), plain)
}

func TestOpenRejectsWrongAAD(t *testing.T) {
	key, aad := DeriveCredentialMaterial("secret", "attic")
	_, otherAAD := DeriveCredentialMaterial("secret", "cellar")

	sealed, err := Seal(key, aad, []byte("payload"))
	require.NoError(t, err)

	_, err = Open(key, otherAAD, sealed)
	assert.Error(t, err)
}

func TestSealRejectsEmptyPlaintext(t *testing.T) {
	key, aad := DeriveCredentialMaterial("secret", "attic")

	_, err := Seal(key, aad, nil)
	assert.Error(t, err)
}

func TestGenerateTokenProperties(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		tok, err := GenerateToken()
		require.NoError(t, err)
		assert.NotEmpty(t, tok)
		assert.False(t, seen[tok], "token repeated")
		seen[tok] = true

		for _, r := range tok {
			assert.True(t, strings.ContainsRune(base62Alphabet, r))
		}
	}
}

func TestEncodeBase62(t *testing.T) {
	assert.Equal(t, "0", EncodeBase62(nil))
	assert.Equal(t, "0", EncodeBase62([]byte{0}))
	assert.Equal(t, "1", EncodeBase62([]byte{1}))
	assert.Equal(t, "z", EncodeBase62([]byte{61}))
	assert.Equal(t, "10", EncodeBase62([]byte{62}))

	// Deterministic for fixed input.
	assert.Equal(t, EncodeBase62([]byte{0xDE, 0xAD}), EncodeBase62([]byte{0xDE, 0xAD}))
}
