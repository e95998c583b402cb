package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("STORAGE_DIR", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, "local", cfg.StorageDriver)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.Equal(t, time.Hour, cfg.SignedURLTTL)
	assert.Equal(t, 240*time.Hour, cfg.DefaultRetention)
	assert.Equal(t, 5, cfg.ShortCodeMaxAttempts)
	assert.Equal(t, "argon2id", cfg.PasswordAlgorithm)
	assert.Equal(t, []string{"dev-api-key-123456"}, cfg.APIKeys)
	assert.Empty(t, cfg.AllowedExtensions)
	assert.Empty(t, cfg.SeedOwners)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STORAGE_DIR", t.TempDir())
	t.Setenv("BASE_URL", "https://share.example.com/")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("STATS_DRIVER", "redis")
	t.Setenv("STORAGE_DRIVER", "S3")
	t.Setenv("API_KEYS", " a , ,b ")
	t.Setenv("ALLOWED_EXTENSIONS", "PNG,.pdf")
	t.Setenv("SIGNED_URL_TTL", "15m")
	t.Setenv("SEED_OWNERS", "dev-user, qa-user")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://share.example.com", cfg.BaseURL)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, "s3", cfg.StorageDriver)
	assert.Equal(t, []string{"a", "b"}, cfg.APIKeys)
	assert.Equal(t, []string{".png", ".pdf"}, cfg.AllowedExtensions)
	assert.Equal(t, 15*time.Minute, cfg.SignedURLTTL)
	assert.Equal(t, []string{"dev-user", "qa-user"}, cfg.SeedOwners)
}

func TestLoad_RejectsInvalidCombinations(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown storage driver", map[string]string{"STORAGE_DRIVER": "ftp"}},
		{"unknown auth mode", map[string]string{"AUTH_MODE": "magic"}},
		{"postgres stats on memory store", map[string]string{"STORE_DRIVER": "memory", "STATS_DRIVER": "postgres"}},
		{"non-positive upload limit", map[string]string{"MAX_UPLOAD_BYTES": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("STORAGE_DIR", t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := &Config{DBHost: "db", DBPort: 5433, DBUser: "u", DBPassword: "p@ss", DBName: "share", DBSSLMode: "disable"}
	assert.Equal(t, "postgres://u:p%40ss@db:5433/share?sslmode=disable", cfg.PostgresDSN())
}
