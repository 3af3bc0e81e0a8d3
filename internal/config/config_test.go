package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", "")
	t.Setenv("PROFILE_STORE", "")
	t.Setenv("JWT_EXPIRATION", "")

	cfg := Load()

	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, "sqlite", cfg.ProfileStore)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiration)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_ADDRESS", ":9090")
	t.Setenv("PROFILE_STORE", "Mongo")
	t.Setenv("JWT_EXPIRATION", "2h")
	t.Setenv("REQUEST_TIMEOUT", "30")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg := Load()

	assert.Equal(t, ":9090", cfg.ServerAddress)
	assert.Equal(t, "mongo", cfg.ProfileStore)
	assert.Equal(t, 2*time.Hour, cfg.JWTExpiration)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
}

func TestGetDuration_InvalidFallsBack(t *testing.T) {
	t.Setenv("KISANAI_REQUEST_TIMEOUT", "soon")
	assert.Equal(t, 5*time.Second, getDuration("KISANAI_REQUEST_TIMEOUT", 5*time.Second))

	t.Setenv("KISANAI_REQUEST_TIMEOUT", "-3s")
	assert.Equal(t, 5*time.Second, getDuration("KISANAI_REQUEST_TIMEOUT", 5*time.Second))
}

func TestLoadClient_TrimsServerURL(t *testing.T) {
	t.Setenv("KISANAI_SERVER_URL", "https://api.kisanai.example/")
	t.Setenv("KISANAI_DATA_DIR", "/tmp/kisanai-test")

	cfg := LoadClient()

	assert.Equal(t, "https://api.kisanai.example", cfg.ServerURL)
	assert.Equal(t, "/tmp/kisanai-test", cfg.DataDir)
	assert.Equal(t, "en", cfg.DefaultLanguage)
}

func TestValidate_DefaultJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	t.Setenv("LOG_MODE", "development")
	cfg := Load()
	assert.True(t, cfg.UsesDefaultJWTSecret())
	assert.NoError(t, cfg.Validate())

	t.Setenv("LOG_MODE", "production")
	assert.ErrorIs(t, Load().Validate(), ErrDefaultJWTSecret)

	t.Setenv("JWT_SECRET", "a-real-secret")
	cfg = Load()
	assert.False(t, cfg.UsesDefaultJWTSecret())
	assert.NoError(t, cfg.Validate())
}
