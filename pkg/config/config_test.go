package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 5*time.Second, cfg.Review.PollInterval)
	assert.Equal(t, StorageDriverLocal, cfg.Storage.Driver)
	assert.Equal(t, int64(20*1024*1024), cfg.Copyright.MaxFileSizeBytes)
	assert.Contains(t, cfg.Copyright.AllowedMIMEs, "application/pdf")
}

func TestOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("REVIEW_POLL_INTERVAL", "10s")
	v.Set("STORAGE_DRIVER", "S3")
	v.Set("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	v.Set("CACHE_TTL", "not-a-duration")
	cfg := fromViper(v)

	assert.Equal(t, 10*time.Second, cfg.Review.PollInterval)
	assert.Equal(t, StorageDriverS3, cfg.Storage.Driver)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 2*time.Minute, cfg.Review.CacheTTL)
}
