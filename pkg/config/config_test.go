package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *Config {
	cfg := NewDefaultConfig()
	cfg.Log.Path = t.TempDir()
	return cfg
}

func TestDefaultConfigValid(t *testing.T) {
	require.NoError(t, testConfig(t).Validate())
}

func TestBarConfigValidate(t *testing.T) {
	cfg := testConfig(t)
	cfg.Bar.MaxTotalHeaderLength = 10
	assert.Error(t, cfg.Validate(), "total below single header length")

	cfg = testConfig(t)
	cfg.Bar.PersistPolicy = "sometimes"
	assert.Error(t, cfg.Validate())

	cfg = testConfig(t)
	cfg.Bar.HeaderName = "debug-"
	assert.Error(t, cfg.Validate())

	cfg = testConfig(t)
	cfg.Bar.OpenHandlerURL = "open"
	assert.Error(t, cfg.Validate())
}

func TestStorageConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		storage StorageConfig
		wantErr bool
	}{
		{"none", StorageConfig{Driver: "none"}, false},
		{"unknown driver", StorageConfig{Driver: "redis"}, true},
		{"file without path", StorageConfig{Driver: "file"}, true},
		{"file", StorageConfig{Driver: "file", Path: "/tmp/x"}, false},
		{"badger in memory", StorageConfig{Driver: "badger", InMemory: true}, false},
		{"badger without path", StorageConfig{Driver: "badger"}, true},
		{"sql without dsn", StorageConfig{Driver: "sql", SQLDriver: "sqlite", Table: "t"}, true},
		{"sql bad table", StorageConfig{Driver: "sql", SQLDriver: "sqlite", DSN: "x.db", Table: "t; drop"}, true},
		{"sql", StorageConfig{Driver: "sql", SQLDriver: "sqlite", DSN: "x.db", Table: "debugbar"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.storage.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfigWithCli(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  read_timeout: 5s
bar:
  header_name: x-debug
  max_header_length: 1024
storage:
  driver: file
  path: ` + filepath.Join(dir, "data") + `
log:
  path: ` + filepath.Join(dir, "logs") + `
`
	require.NoError(t, os.WriteFile(file, []byte(yaml), 0o644))

	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", file, "")
	cmd.Flags().Bool("bar.use_open_handler", false, "")
	require.NoError(t, cmd.Flags().Set("bar.use_open_handler", "true"))

	cfg, err := LoadConfigWithCli(cmd)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "x-debug", cfg.Bar.HeaderName)
	assert.Equal(t, 1024, cfg.Bar.MaxHeaderLength)
	assert.Equal(t, 250000, cfg.Bar.MaxTotalHeaderLength)
	assert.True(t, cfg.Bar.UseOpenHandler)
	assert.Equal(t, "file", cfg.Storage.Driver)
}

func TestLoadConfigWithCliMissingFile(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", filepath.Join(t.TempDir(), "missing.yaml"), "")
	_, err := LoadConfigWithCli(cmd)
	assert.Error(t, err)
}

func TestLogConfigValidate(t *testing.T) {
	cfg := testConfig(t)
	cfg.Log.Level = "verbose"
	assert.Error(t, cfg.Validate())

	cfg = testConfig(t)
	cfg.Log.Level = "fatal"
	assert.NoError(t, cfg.Validate())

	cfg = testConfig(t)
	nested := filepath.Join(cfg.Log.Path, "a", "b")
	cfg.Log.Path = nested
	require.NoError(t, cfg.Validate())
	assert.DirExists(t, nested)

	cfg = testConfig(t)
	file := filepath.Join(cfg.Log.Path, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	cfg.Log.Path = file
	assert.Error(t, cfg.Validate())
}
