package secrets

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testVaultKey = "0123456789abcdef0123456789abcdef"

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := NewVault(filepath.Join(t.TempDir(), "vault.db"), testVaultKey)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func TestVaultRoundTrip(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	require.NoError(t, v.Set(ctx, "openai_api_key", []byte("sk-secret-value")))

	got, err := v.Get(ctx, "openai_api_key", "serve")
	require.NoError(t, err)
	assert.Equal(t, []byte("sk-secret-value"), got)

	_, err = v.Get(ctx, "missing", "serve")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestVaultValueIsEncryptedAtRest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.db")
	v, err := NewVault(path, testVaultKey)
	require.NoError(t, err)
	defer v.Close()

	ctx := context.Background()
	require.NoError(t, v.Set(ctx, "k", []byte("plaintext-credential")))

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var stored string
	require.NoError(t, db.QueryRow(`SELECT encrypted_value FROM secrets WHERE name = 'k'`).Scan(&stored))
	assert.NotContains(t, stored, "plaintext-credential")
}

func TestVaultUpsert(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	require.NoError(t, v.Set(ctx, "k", []byte("one")))
	require.NoError(t, v.Set(ctx, "k", []byte("two")))

	got, err := v.Get(ctx, "k", "cli")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)

	metas, err := v.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 1)
}

func TestVaultListAndAccessLog(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	require.NoError(t, v.Set(ctx, "b", []byte("2")))
	require.NoError(t, v.Set(ctx, "a", []byte("1")))

	metas, err := v.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "a", metas[0].Name)
	assert.Equal(t, 0, metas[0].AccessCount)

	_, err = v.Get(ctx, "a", "serve")
	require.NoError(t, err)
	_, err = v.Get(ctx, "a", "cli")
	require.NoError(t, err)

	metas, err = v.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, metas[0].AccessCount)

	log, err := v.AccessLog(ctx, "a", 10)
	require.NoError(t, err)
	require.Len(t, log, 2)
	callers := []string{log[0].Caller, log[1].Caller}
	assert.ElementsMatch(t, []string{"serve", "cli"}, callers)
}

func TestVaultDelete(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	require.NoError(t, v.Set(ctx, "k", []byte("v")))
	require.NoError(t, v.Delete(ctx, "k"))
	assert.ErrorIs(t, v.Delete(ctx, "k"), ErrSecretNotFound)
	_, err := v.Get(ctx, "k", "cli")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestVaultKeyValidation(t *testing.T) {
	dir := t.TempDir()

	_, err := NewVault(filepath.Join(dir, "v1.db"), "short")
	assert.ErrorIs(t, err, ErrInvalidEncryptionKey)

	_, err = NewVault(filepath.Join(dir, "v2.db"),
		"00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")
	assert.NoError(t, err)

	// Wrong key cannot decrypt.
	v1, err := NewVault(filepath.Join(dir, "v3.db"), testVaultKey)
	require.NoError(t, err)
	require.NoError(t, v1.Set(context.Background(), "k", []byte("v")))
	require.NoError(t, v1.Close())

	v2, err := NewVault(filepath.Join(dir, "v3.db"), "abcdef0123456789abcdef0123456789")
	require.NoError(t, err)
	defer v2.Close()
	_, err = v2.Get(context.Background(), "k", "cli")
	assert.ErrorContains(t, err, "decrypting")
}
