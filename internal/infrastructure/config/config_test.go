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

	assert.Equal(t, "tbag", cfg.App.Name)
	assert.Equal(t, 4200, cfg.Server.Port)
	assert.Equal(t, "http://localhost:4200", cfg.Server.PublicBaseURL)
	assert.Equal(t, "files", cfg.Content.Root)
	assert.Equal(t, "/raw", cfg.Content.RawPrefix)
	assert.Equal(t, []string{"PowerShell", "curl", "Wget"}, cfg.Content.RawUserAgents)
	assert.Equal(t, "PowerShell", cfg.Content.Languages["ps1"])
	assert.Equal(t, "Bash", cfg.Content.Languages["sh"])
	assert.Equal(t, 60*time.Second, cfg.Index.RebuildInterval)
	assert.Equal(t, "last", cfg.Index.CollisionPolicy)
	assert.Equal(t, "memory", cfg.Counter.Backend)
	assert.Equal(t, 1024, cfg.Counter.QueueSize)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "0.0.0.0:4200", cfg.Server.GetAddress())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "8081")
	t.Setenv("PUBLIC_BASE_URL", "https://scripts.example.com")
	t.Setenv("CONTENT_ROOT", "/srv/scripts")
	t.Setenv("CONTENT_RAW_USER_AGENTS", "curl,HTTPie")
	t.Setenv("INDEX_REBUILD_INTERVAL", "5m")
	t.Setenv("INDEX_COLLISION_POLICY", "first")
	t.Setenv("COUNTER_BACKEND", "redis")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "https://scripts.example.com", cfg.Server.PublicBaseURL)
	assert.Equal(t, "/srv/scripts", cfg.Content.Root)
	assert.Equal(t, []string{"curl", "HTTPie"}, cfg.Content.RawUserAgents)
	assert.Equal(t, 5*time.Minute, cfg.Index.RebuildInterval)
	assert.Equal(t, "first", cfg.Index.CollisionPolicy)
	assert.Equal(t, "redis", cfg.Counter.Backend)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tbag.yaml")
	content := []byte(`
content:
  root: /data/scripts
  languages:
    ps1: PowerShell
    py: Python
index:
  collision_policy: error
`)
	require.NoError(t, os.WriteFile(path, content, 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/scripts", cfg.Content.Root)
	assert.Equal(t, "Python", cfg.Content.Languages["py"])
	assert.Equal(t, "error", cfg.Index.CollisionPolicy)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown counter backend", map[string]string{"COUNTER_BACKEND": "mysql"}},
		{"unknown collision policy", map[string]string{"INDEX_COLLISION_POLICY": "random"}},
		{"port out of range", map[string]string{"SERVER_PORT": "70000"}},
		{"relative base url", map[string]string{"PUBLIC_BASE_URL": "/just/a/path"}},
		{"raw prefix without slash", map[string]string{"CONTENT_RAW_PREFIX": "raw"}},
		{"raw prefix with trailing slash", map[string]string{"CONTENT_RAW_PREFIX": "/raw/"}},
		{"rebuild interval too short", map[string]string{"INDEX_REBUILD_INTERVAL": "10ms"}},
		{"file logging without filename", map[string]string{"LOG_OUTPUT": "file"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.Error(t, err)
		})
	}
}

func TestDatabaseConfig_URLs(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db",
		Port:     5432,
		Name:     "tbag",
		User:     "tbag",
		Password: "p@ss",
		SSLMode:  "disable",
	}

	assert.Equal(t, "host=db port=5432 user=tbag password=p@ss dbname=tbag sslmode=disable", cfg.GetDSN())
	assert.Equal(t, "postgres://tbag:p%40ss@db:5432/tbag?sslmode=disable", cfg.GetURL())
}
