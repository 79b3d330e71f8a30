package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		settings, err := loadSettings("", []string{"JWT_SECRET=secret"})
		require.NoError(t, err)

		assert.Equal(t, 8000, settings.Port)
		assert.Equal(t, "secret", settings.JWTSecret)
		assert.Equal(t, 168*time.Hour, settings.TokenTTL)
		assert.Equal(t, "memory", settings.StorageDriver)
		assert.Equal(t, 120*time.Second, settings.HeartbeatTimeout)
		assert.Equal(t, 30*time.Second, settings.SweepInterval)
		assert.Equal(t, "Todo App", settings.SMTPFromName)
		assert.Empty(t, settings.Origins())
	})

	t.Run("missing secret", func(t *testing.T) {
		_, err := loadSettings("", nil)
		assert.Error(t, err)
	})

	t.Run("file with environment override", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "settings.yaml")
		content := `
port: 9000
jwt:
  secret: from-file
  issuer: file-issuer
allowed_origins:
  - https://app.example.com
  - http://localhost:3000
heartbeat_timeout: 90s
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		settings, err := loadSettings(path, []string{"PORT=9100"})
		require.NoError(t, err)

		assert.Equal(t, 9100, settings.Port)
		assert.Equal(t, "from-file", settings.JWTSecret)
		assert.Equal(t, "file-issuer", settings.JWTIssuer)
		assert.Equal(t, 90*time.Second, settings.HeartbeatTimeout)
		assert.Equal(t, []string{"https://app.example.com", "http://localhost:3000"}, settings.Origins())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadSettings(filepath.Join(t.TempDir(), "missing.yaml"), []string{"JWT_SECRET=secret"})
		assert.Error(t, err)
	})
}

func TestBuildZapLogger(t *testing.T) {
	for _, encoding := range []string{"", "console", "json"} {
		logger, err := buildZapLogger(encoding)
		require.NoError(t, err, encoding)
		assert.NotNil(t, logger)
	}

	_, err := buildZapLogger("xml")
	assert.Error(t, err)
}
