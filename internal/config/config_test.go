package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setKey(t *testing.T, key, value string) {
	t.Helper()
	old := viper.GetString(key)
	viper.Set(key, value)
	t.Cleanup(func() { viper.Set(key, old) })
}

func TestLoad_Defaults(t *testing.T) {
	setKey(t, KeyDataDir, t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "pattern", cfg.Detector)
	assert.Equal(t, DefaultSweepInterval, cfg.SweepInterval)
	assert.Equal(t, DefaultMaxInputKB*1024, cfg.MaxInputBytes)
	assert.Equal(t, DefaultFuzzyDistance, cfg.FuzzyDistance)
	assert.True(t, cfg.UsingDefaultKeys())
	assert.Len(t, cfg.SigningKey, 64)
	assert.Len(t, cfg.VaultKey, 64)
}

func TestLoad_DerivedKeysAreDeterministicPerDataDir(t *testing.T) {
	dir := t.TempDir()
	setKey(t, KeyDataDir, dir)

	cfg1, err := Load()
	require.NoError(t, err)
	cfg2, err := Load()
	require.NoError(t, err)

	assert.Equal(t, cfg1.SigningKey, cfg2.SigningKey)
	assert.NotEqual(t, cfg1.SigningKey, cfg1.VaultKey)
}

func TestLoad_InvalidDetector(t *testing.T) {
	setKey(t, KeyDataDir, t.TempDir())
	setKey(t, KeyDetector, "presidio")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detector must be one of")
}

func TestLoad_ExplicitKeys(t *testing.T) {
	setKey(t, KeyDataDir, t.TempDir())
	setKey(t, KeySigningKey, strings.Repeat("s", 32))
	setKey(t, KeyVaultKey, strings.Repeat("v", 32))

	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.UsingDefaultKeys())
}

func TestValidateVaultKey(t *testing.T) {
	assert.NoError(t, validateVaultKey(strings.Repeat("k", 32)))
	assert.NoError(t, validateVaultKey(strings.Repeat("ab", 32)))
	assert.Error(t, validateVaultKey("short"))
	assert.Error(t, validateVaultKey(strings.Repeat("z", 64))) // not hex, not 32 raw
}

func TestDBPaths(t *testing.T) {
	cfg := &Config{DataDir: "/tmp/sl"}
	assert.Equal(t, "/tmp/sl/audit.db", cfg.AuditDBPath())
	assert.Equal(t, "/tmp/sl/vault.db", cfg.VaultDBPath())
}
