package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileThenEnvOverride(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8081
  env: production
database:
  url: postgres://file
jwt:
  secret: from-file
notifications:
  channel_timeout: 3s
  defaults:
    telegram: false
`)
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "production", cfg.Server.Env)
	assert.Equal(t, "postgres://file", cfg.Database.DSN)
	assert.Equal(t, "from-env", cfg.JWT.Secret)
	assert.Equal(t, 3*time.Second, cfg.Notifications.ChannelTimeout)
	assert.False(t, cfg.Notifications.Defaults["telegram"])
	// значения по умолчанию сохраняются
	assert.Equal(t, 30*24*time.Hour, cfg.ReplyBridge.TTL)
	assert.Equal(t, 4000, cfg.Chat.MaxContentLength)
}

func TestLoad_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env", cfg.Database.DSN)
	assert.Equal(t, "0.0.0.0:4000", cfg.Address())
}

func TestValidate_RequiresSecrets(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate())

	cfg.Database.DSN = "postgres://x"
	cfg.JWT.Secret = "s"
	assert.NoError(t, cfg.Validate())

	cfg.Telegram.Enabled = true
	assert.Error(t, cfg.Validate())
}

func TestAttachmentPolicy_Allows(t *testing.T) {
	cfg := Default()
	p := cfg.Attachments()

	assert.True(t, p.Allows("image/png"))
	assert.True(t, p.Allows("text/plain; charset=utf-8"))
	assert.False(t, p.Allows("application/x-msdownload"))
}

func TestAttachmentPolicy_EmptyListAllowsAll(t *testing.T) {
	cfg := Default()
	cfg.Upload.AllowedTypes = nil

	assert.True(t, cfg.Attachments().Allows("application/x-msdownload"))
}
