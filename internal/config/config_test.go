package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", testKeyHex)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, defaultPort, cfg.Server.Port)
	assert.Equal(t, defaultAllowedOrigins, cfg.Server.AllowedOrigins)
	assert.Equal(t, defaultShutdownGracePeriod, cfg.Server.ShutdownGracePeriod)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, defaultMaxOpenConns, cfg.Database.MaxOpenConns)
	assert.Equal(t, ReplaySkip, cfg.Chat.ReplayPolicy)
	assert.Equal(t, defaultStorageTimeout, cfg.Chat.StorageTimeout)
	assert.Equal(t, defaultStorageRetries, cfg.Chat.StorageRetries)
	assert.Equal(t, defaultRedisChannel, cfg.Redis.Channel)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.AuthEnabled())

	want, _ := hex.DecodeString(testKeyHex)
	assert.Equal(t, want, []byte(cfg.Encryption.Key))
	assert.Empty(t, cfg.Encryption.RawKey, "raw key should not be kept after parsing")
}

func TestLoadWithFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
env: production
server:
  port: "8081"
  allowed_origins: ["https://aution.vercel.app"]
db:
  driver: mysql
  host: db.internal
  port: "3306"
chat:
  replay_policy: abort
  storage_timeout: 2s
  storage_retries: 5
encryption:
  algorithm: xchacha20-poly1305
`), 0o644))

	t.Setenv("ENCRYPTION_KEY", testKeyHex)
	t.Setenv("DB_HOST", "override.internal")
	t.Setenv("SERVER_ALLOWED_ORIGINS", "http://localhost:5173, https://aution.vercel.app")
	t.Setenv("AUTH_JWT_SECRET", "s3cret")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "8081", cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:5173", "https://aution.vercel.app"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, "override.internal", cfg.Database.Host)
	assert.Equal(t, ReplayAbort, cfg.Chat.ReplayPolicy)
	assert.Equal(t, 2*time.Second, cfg.Chat.StorageTimeout)
	assert.Equal(t, 5, cfg.Chat.StorageRetries)
	assert.Equal(t, "xchacha20-poly1305", cfg.Encryption.Algorithm)
	assert.True(t, cfg.AuthEnabled())
}

func TestLoad_KeyIsRequired(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", "")

	_, err := Load("")
	assert.ErrorIs(t, err, ErrMissingKey)
}

func TestLoad_MalformedKeyIsFatalAndNotEchoed(t *testing.T) {
	bad := "deadbeef-not-really-a-key"
	t.Setenv("ENCRYPTION_KEY", bad)

	_, err := Load("")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), bad)
}

func TestLoad_RejectsInvalidSettings(t *testing.T) {
	tests := map[string]string{
		"DB_DRIVER":            "oracle",
		"CHAT_REPLAY_POLICY":   "ignore",
		"ENCRYPTION_ALGORITHM": "des",
	}

	for env, value := range tests {
		t.Run(env, func(t *testing.T) {
			t.Setenv("ENCRYPTION_KEY", testKeyHex)
			t.Setenv(env, value)

			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestSecret_NeverPrints(t *testing.T) {
	s := Secret([]byte("super secret key material 123456"))

	for _, out := range []string{
		fmt.Sprintf("%v", s),
		fmt.Sprintf("%s", s),
		fmt.Sprintf("%+v", EncryptionConfig{Key: s}),
		fmt.Sprintf("%#v", s),
	} {
		assert.False(t, strings.Contains(out, "super secret"), out)
	}
}
