package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "does-not-exist.toml")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "coursepilot", cfg.App.Name)
	assert.Equal(t, "document.ingest", cfg.RabbitMQ.IngestJobQueue)
	assert.Equal(t, 50000, cfg.Parser.MaxTextChars)
	assert.Equal(t, 20, cfg.RateLimit.MessageMaxRequests)
	assert.Equal(t, 5, cfg.RateLimit.UploadMaxRequests)
	assert.EqualValues(t, 10<<20, cfg.Upload.MaxSizeBytes)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "does-not-exist.toml")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("LLM_MODEL", "gpt-4o")
	t.Setenv("RATE_LIMIT_MESSAGE_MAX", "3")
	t.Setenv("PARSER_OCR_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 3, cfg.RateLimit.MessageMaxRequests)
	assert.True(t, cfg.Parser.OCREnabled)
}

func TestHTTPAddrAndDSN(t *testing.T) {
	cfg := defaultConfig()
	cfg.App.Host = "127.0.0.1"
	cfg.App.Port = 8081
	assert.Equal(t, "127.0.0.1:8081", cfg.HTTPAddr())

	cfg.MySQL.User = "u"
	cfg.MySQL.Password = "p"
	cfg.MySQL.Host = "db"
	cfg.MySQL.Port = 3307
	cfg.MySQL.DB = "cp"
	cfg.MySQL.Params = "parseTime=true"
	assert.Equal(t, "u:p@tcp(db:3307)/cp?parseTime=true", cfg.MySQLDSN())
}

func TestInvalidEnvValuesFallBack(t *testing.T) {
	t.Setenv("CONFIG_FILE", "does-not-exist.toml")
	t.Setenv("APP_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.App.Port)
}
