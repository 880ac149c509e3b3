package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fullYAML задаёт все секции конфигурации явно.
const fullYAML = `
server:
 host: "127.0.0.1"
 port: 8081
 shutdown_timeout_seconds: 15
merge:
 stream_batch_size: 500
 copier_pool_size: 8
 copier_retry_pause_seconds: 2
 copy_timeout_seconds: 45
 total_timeout_seconds: 3600
storage:
 sqlite_dir: "/var/lib/chatmerge"
 task_ttl_hours: 12
logging:
 level: "debug"
`

func createTempConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
	return path
}

func TestLoadFromYAML(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		path := createTempConfigFile(t, fullYAML)
		cfg := defaultConfig()
		err := loadFromYAML(path, cfg)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, 8081, cfg.Server.Port)
		assert.Equal(t, 15, cfg.Server.ShutdownTimeoutSeconds)
		assert.Equal(t, "127.0.0.1:8081", cfg.Address())

		assert.Equal(t, 500, cfg.Merge.StreamBatchSize)
		assert.Equal(t, 8, cfg.Merge.CopierPoolSize)
		assert.Equal(t, 2, cfg.Merge.CopierRetryPauseSeconds)
		assert.Equal(t, 45, cfg.Merge.CopyTimeoutSeconds)
		assert.Equal(t, 3600, cfg.Merge.TotalTimeoutSeconds)

		assert.Equal(t, "/var/lib/chatmerge", cfg.Storage.SQLiteDir)
		assert.Equal(t, 12, cfg.Storage.TaskTTLHours)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("file not found is not an error", func(t *testing.T) {
		cfg := defaultConfig()
		before := *cfg
		err := loadFromYAML("non_existent_file.yml", cfg)
		assert.NoError(t, err)
		assert.Equal(t, before, *cfg)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := createTempConfigFile(t, "invalid yaml: {")
		cfg := defaultConfig()
		err := loadFromYAML(path, cfg)
		assert.Error(t, err)
	})

	t.Run("partial overrides keep defaults for the rest", func(t *testing.T) {
		path := createTempConfigFile(t, "logging:\n level: \"warn\"\n")
		cfg := defaultConfig()
		err := loadFromYAML(path, cfg)
		require.NoError(t, err)
		assert.Equal(t, "warn", cfg.Logging.Level)
		assert.Equal(t, DefaultServerPort, cfg.Server.Port)
		assert.Equal(t, DefaultStreamBatchSize, cfg.Merge.StreamBatchSize)
	})
}

func TestValidate(t *testing.T) {
	validConfig := func(t *testing.T) *Config {
		cfg := defaultConfig()
		err := loadFromYAML(createTempConfigFile(t, fullYAML), cfg)
		require.NoError(t, err)
		return cfg
	}

	testCases := []struct {
		name    string
		mutator func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"invalid port", func(c *Config) { c.Server.Port = 0 }, true},
		{"invalid shutdown timeout", func(c *Config) { c.Server.ShutdownTimeoutSeconds = 0 }, true},
		{"invalid stream batch size", func(c *Config) { c.Merge.StreamBatchSize = 0 }, true},
		{"invalid copier pool size", func(c *Config) { c.Merge.CopierPoolSize = 0 }, true},
		{"invalid copier retry pause", func(c *Config) { c.Merge.CopierRetryPauseSeconds = 0 }, true},
		{"invalid copy timeout", func(c *Config) { c.Merge.CopyTimeoutSeconds = 0 }, true},
		{"negative total timeout", func(c *Config) { c.Merge.TotalTimeoutSeconds = -1 }, true},
		{"zero total timeout is unlimited, not invalid", func(c *Config) { c.Merge.TotalTimeoutSeconds = 0 }, false},
		{"empty sqlite dir", func(c *Config) { c.Storage.SQLiteDir = "" }, true},
		{"invalid task ttl", func(c *Config) { c.Storage.TaskTTLHours = 0 }, true},
		{"invalid logging level", func(c *Config) { c.Logging.Level = "wrong" }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig(t)
			tc.mutator(cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
