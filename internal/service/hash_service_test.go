package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArgon2HashService_HashAndVerify(t *testing.T) {
	svc := NewArgon2HashService()

	key := "sk_live_S3cretKey!"
	hash, err := svc.Hash(key)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	// Format check
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v="), "hash should start with $argon2id$v=")

	// Verify correct key
	match, err := svc.Verify(key, hash)
	require.NoError(t, err)
	assert.True(t, match, "correct key should verify")
}

func TestArgon2HashService_VerifyWrongKey(t *testing.T) {
	svc := NewArgon2HashService()

	hash, err := svc.Hash("correct-key")
	require.NoError(t, err)

	match, err := svc.Verify("wrong-key", hash)
	require.NoError(t, err)
	assert.False(t, match, "wrong key should not verify")
}

func TestArgon2HashService_UniqueSalts(t *testing.T) {
	svc := NewArgon2HashService()

	hash1, err := svc.Hash("same-key")
	require.NoError(t, err)

	hash2, err := svc.Hash("same-key")
	require.NoError(t, err)

	assert.NotEqual(t, hash1, hash2, "same key should produce different hashes (different salts)")
}

func TestArgon2HashService_EmptyKey(t *testing.T) {
	svc := NewArgon2HashService()

	hash, err := svc.Hash("")
	require.NoError(t, err)

	match, err := svc.Verify("", hash)
	require.NoError(t, err)
	assert.True(t, match)
}

func TestArgon2HashService_VerifyInvalidFormat(t *testing.T) {
	svc := NewArgon2HashService()

	_, err := svc.Verify("key", "not-a-valid-hash")
	assert.Error(t, err)
}

func TestArgon2HashService_HashContainsParams(t *testing.T) {
	svc := NewArgon2HashService()

	hash, err := svc.Hash("test")
	require.NoError(t, err)

	// Verify it contains expected params
	assert.Contains(t, hash, "m=65536,t=1,p=4", "hash should contain Argon2id params")
}

func TestArgon2HashService_LongKey(t *testing.T) {
	svc := NewArgon2HashService()

	longKey := strings.Repeat("a", 1000)
	hash, err := svc.Hash(longKey)
	require.NoError(t, err)

	match, err := svc.Verify(longKey, hash)
	require.NoError(t, err)
	assert.True(t, match)
}
