package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "tesseract", cfg.Pipeline.OCR.Backend)
	assert.InDelta(t, 0.55, cfg.Routing.Thresholds.Classification, 1e-9)
	assert.InDelta(t, 0.35, cfg.Routing.Thresholds.ClassificationManual, 1e-9)
	assert.InDelta(t, 0.65, cfg.Routing.Thresholds.Field, 1e-9)
	assert.InDelta(t, 0.45, cfg.Routing.Thresholds.FieldManual, 1e-9)
	assert.Equal(t, 30*time.Minute, cfg.Queue.LeaseTTL)
	assert.NoError(t, cfg.Validate())
}

func TestApplyDataDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/var/lib/docflow"
	cfg.ApplyDataDir()
	assert.Equal(t, filepath.Join("/var/lib/docflow", "audit"), cfg.Routing.AuditDir)
	assert.Equal(t, filepath.Join("/var/lib/docflow", "queue"), cfg.Queue.LogDir)
	assert.Equal(t, filepath.Join("/var/lib/docflow", "feedback"), cfg.Feedback.LogDir)

	// Explicit component directories are left alone.
	cfg2 := Default()
	cfg2.Queue.LogDir = "/elsewhere/queue"
	cfg2.ApplyDataDir()
	assert.Equal(t, "/elsewhere/queue", cfg2.Queue.LogDir)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"negative workers", func(c *Config) { c.Pipeline.Workers = -1 }, true},
		{"threshold above one", func(c *Config) { c.Routing.Thresholds.Field = 1.5 }, true},
		{"negative threshold", func(c *Config) { c.Routing.Thresholds.Classification = -0.1 }, true},
		{"manual above general", func(c *Config) {
			c.Routing.Thresholds.ClassificationManual = 0.9
		}, true},
		{"field manual above field", func(c *Config) {
			c.Routing.Thresholds.FieldManual = 0.9
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	loader := NewLoaderWith(viper.New())
	cfg, err := loader.Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.InDelta(t, 0.55, cfg.Routing.Thresholds.Classification, 1e-9)
	// DataDir fans out to the component directories.
	assert.Equal(t, filepath.Join("data", "queue"), cfg.Queue.LogDir)
}

func TestLoadExplicitFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docflow.yaml")
	content := `
log_level: debug
data_dir: ` + dir + `
pipeline:
  workers: 4
routing:
  thresholds:
    classification_threshold: 0.75
  overrides:
    invoice:
      field_threshold: 0.9
queue:
  lease_ttl: 15m
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))

	cfg, err := NewLoaderWith(viper.New()).Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.InDelta(t, 0.75, cfg.Routing.Thresholds.Classification, 1e-9)
	// Unset keys keep the defaults.
	assert.InDelta(t, 0.35, cfg.Routing.Thresholds.ClassificationManual, 1e-9)
	assert.Equal(t, 15*time.Minute, cfg.Queue.LeaseTTL)

	o, ok := cfg.Routing.Overrides["invoice"]
	require.True(t, ok)
	require.NotNil(t, o.Field)
	assert.InDelta(t, 0.9, *o.Field, 1e-9)
	assert.Nil(t, o.Classification)
}

func TestLoadExplicitFileMissing(t *testing.T) {
	_, err := NewLoaderWith(viper.New()).Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadMalformedValuesFallBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docflow.yaml")
	content := `
routing:
  thresholds:
    classification_threshold: "not a number"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))

	cfg, err := NewLoaderWith(viper.New()).Load(path)
	require.NoError(t, err)
	// Undecodable values fall back to the built-in thresholds.
	assert.InDelta(t, 0.55, cfg.Routing.Thresholds.Classification, 1e-9)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("DOCFLOW_LOG_LEVEL", "warn")
	cfg, err := NewLoaderWith(viper.New()).Load("")
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadInvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docflow.yaml")
	content := `
pipeline:
  workers: -2
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
	_, err := NewLoaderWith(viper.New()).Load(path)
	assert.Error(t, err)
}
