package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := Parse([]string{"-token-secret", "s3cr3t"})
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0:80", cfg.Addr)
		assert.Equal(t, "airform.sqlite", cfg.DBUrl)
		assert.Equal(t, 2*time.Minute, cfg.TokenTTL)
		assert.Equal(t, "@every 5m", cfg.AuditSchedule)
		assert.False(t, cfg.Debug)
	})

	t.Run("flags override", func(t *testing.T) {
		cfg, err := Parse([]string{
			"-token-secret", "s3cr3t",
			"-host", "127.0.0.1",
			"-port", "8080",
			"-pending-after", "1h",
			"-debug",
		})
		require.NoError(t, err)

		assert.Equal(t, "127.0.0.1:8080", cfg.Addr)
		assert.Equal(t, time.Hour, cfg.PendingAfter)
		assert.True(t, cfg.Debug)
	})

	t.Run("environment", func(t *testing.T) {
		t.Setenv("AIRFORM_TOKEN_SECRET", "from-env")
		t.Setenv("AIRTABLE_API_KEY", "pat123")

		cfg, err := Parse(nil)
		require.NoError(t, err)
		assert.Equal(t, "from-env", cfg.TokenSecret)
		assert.Equal(t, "pat123", cfg.AirtableKey)
	})

	t.Run("missing token secret", func(t *testing.T) {
		t.Setenv("AIRFORM_TOKEN_SECRET", "")
		_, err := Parse(nil)
		assert.EqualError(t, err, "missing parameter -token-secret")
	})

	t.Run("admin without password", func(t *testing.T) {
		_, err := Parse([]string{"-token-secret", "x", "-admin-user", "root"})
		assert.EqualError(t, err, "missing parameter -admin-password")
	})
}

func TestUrl(t *testing.T) {
	assert.Equal(t, "http://localhost:80", Config{Addr: "0.0.0.0:80"}.Url())
	assert.Equal(t, "http://10.0.0.1:9000", Config{Addr: "10.0.0.1:9000"}.Url())
}
