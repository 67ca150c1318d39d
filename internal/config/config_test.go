package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
}

func TestFromLookup_Defaults(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultDatabaseURL, cfg.DatabaseURL)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 256, cfg.EventBuffer)
	assert.Empty(t, cfg.PolicyFile)
}

func TestFromLookup_Overrides(t *testing.T) {
	cfg, err := FromLookup(lookupFrom(map[string]string{
		"DATABASE_URL":     "file:/tmp/x.db",
		"PORT":             "9090",
		"EVENT_BUFFER":     "16",
		"RENT_POLICY_FILE": "/etc/rent.cue",
	}))
	require.NoError(t, err)
	assert.Equal(t, "file:/tmp/x.db", cfg.DatabaseURL)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 16, cfg.EventBuffer)
	assert.Equal(t, "/etc/rent.cue", cfg.PolicyFile)
}

func TestFromLookup_BadNumbers(t *testing.T) {
	for _, env := range []map[string]string{
		{"PORT": "http"},
		{"PORT": "-1"},
		{"EVENT_BUFFER": "0"},
	} {
		_, err := FromLookup(lookupFrom(env))
		assert.Error(t, err, "%v", env)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=7070\n"), 0o600))
	t.Setenv("PORT", "")
	os.Unsetenv("PORT")
	t.Setenv("EVENT_BUFFER", "32")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Port)
	assert.Equal(t, 32, cfg.EventBuffer)
}

func TestConfig_Policy(t *testing.T) {
	p, err := Config{}.Policy()
	require.NoError(t, err)
	assert.True(t, p.MonthlyLateFee.Equal(decimal.NewFromInt(45)))

	path := filepath.Join(t.TempDir(), "policy.cue")
	require.NoError(t, os.WriteFile(path, []byte("monthly_late_fee: 50\n"), 0o600))
	p, err = Config{PolicyFile: path}.Policy()
	require.NoError(t, err)
	assert.True(t, p.MonthlyLateFee.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, 5, p.GraceDays)

	_, err = Config{PolicyFile: filepath.Join(t.TempDir(), "missing.cue")}.Policy()
	assert.Error(t, err)
}
