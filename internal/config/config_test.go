package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, int64(1<<20), cfg.HTTP.MaxBodyBytes)
	assert.Equal(t, "1/2/2006, 3:04:05 PM", cfg.Export.TimeLayout)
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.yml")
	body := `
http:
  port: "9000"
  webhook_rate_per_sec: 5
  webhook_burst: 10
  read_timeout: 3s
storage:
  driver: sqlite
  dsn: /tmp/leads.db
export:
  time_zone: UTC
log:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.HTTP.Port)
	assert.Equal(t, 5.0, cfg.HTTP.WebhookRate)
	assert.Equal(t, 10, cfg.HTTP.WebhookBurst)
	assert.Equal(t, 3*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.HTTP.WriteTimeout, "unset keys keep defaults")
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "text", cfg.Log.Format)

	loc, err := cfg.Export.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CELERIX_LEADS_HTTP_PORT":      "8088",
		"CELERIX_LEADS_STORAGE":        "file",
		"CELERIX_LEADS_DATA_DIR":       "/var/lib/leads",
		"CELERIX_DISABLE_TLS":          "false",
		"CELERIX_LEADS_WEBHOOK_RATE":   "2.5",
		"CELERIX_LEADS_ENCRYPTION_KEY": "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))

	assert.Equal(t, "8088", cfg.HTTP.Port)
	assert.Equal(t, DriverFile, cfg.Storage.Driver)
	assert.Equal(t, "/var/lib/leads", cfg.Storage.DataDir)
	assert.False(t, cfg.HTTP.DisableTLS)
	assert.Equal(t, 2.5, cfg.HTTP.WebhookRate)
	assert.Empty(t, cfg.Storage.EncryptionKey)
	assert.NoError(t, cfg.Validate())
}

func TestApplyEnv_BadBool(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(func(k string) (string, bool) {
		if k == "CELERIX_DISABLE_TLS" {
			return "maybe", true
		}
		return "", false
	})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown driver":   func(c *Config) { c.Storage.Driver = "mongo" },
		"sqlite no dsn":    func(c *Config) { c.Storage.Driver = DriverSQLite },
		"redis no url":     func(c *Config) { c.Storage.Driver = DriverRedis },
		"short key":        func(c *Config) { c.Storage.EncryptionKey = "short" },
		"bad zone":         func(c *Config) { c.Export.TimeZone = "Mars/Olympus" },
		"bad log format":   func(c *Config) { c.Log.Format = "xml" },
		"no port":          func(c *Config) { c.HTTP.Port = "" },
		"negative burst":   func(c *Config) { c.HTTP.WebhookBurst = -1 },
		"zero body limit":  func(c *Config) { c.HTTP.MaxBodyBytes = 0 },
		"file no data dir": func(c *Config) { c.Storage.Driver = DriverFile; c.Storage.DataDir = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
