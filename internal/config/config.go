// Package config loads the application configuration from files, environment
// variables, and flag bindings, with built-in defaults for every key. Missing
// files and keys fall back silently; only a malformed explicit config file is
// an error.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/MeKo-Tech/docflow/internal/feedback"
	"github.com/MeKo-Tech/docflow/internal/pipeline"
	"github.com/MeKo-Tech/docflow/internal/queue"
	"github.com/MeKo-Tech/docflow/internal/routing"
)

// Config is the complete application configuration.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`
	// DataDir is the root for logs, queue state, and side files when the
	// component-specific directories are unset.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir" json:"data_dir"`

	Pipeline pipeline.Config `mapstructure:"pipeline" yaml:"pipeline" json:"pipeline"`
	Routing  routing.Config  `mapstructure:"routing" yaml:"routing" json:"routing"`
	Queue    queue.Config    `mapstructure:"queue" yaml:"queue" json:"queue"`
	Feedback feedback.Config `mapstructure:"feedback" yaml:"feedback" json:"feedback"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		DataDir:  "data",
		Pipeline: pipeline.DefaultConfig(),
		Routing:  routing.DefaultConfig(),
		Queue:    queue.DefaultConfig(),
		Feedback: feedback.DefaultConfig(),
	}
}

// ApplyDataDir fills unset component directories from DataDir.
func (c *Config) ApplyDataDir() {
	if c.DataDir == "" {
		return
	}
	if c.Routing.AuditDir == "" {
		c.Routing.AuditDir = filepath.Join(c.DataDir, "audit")
	}
	if c.Queue.LogDir == "" {
		c.Queue.LogDir = filepath.Join(c.DataDir, "queue")
	}
	if c.Feedback.LogDir == "" {
		c.Feedback.LogDir = filepath.Join(c.DataDir, "feedback")
	}
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Pipeline.Workers < 0 {
		return fmt.Errorf("pipeline workers must be >= 0, got %d", c.Pipeline.Workers)
	}
	th := c.Routing.Thresholds
	for name, v := range map[string]float64{
		"classification_threshold":        th.Classification,
		"classification_manual_threshold": th.ClassificationManual,
		"field_threshold":                 th.Field,
		"field_manual_threshold":          th.FieldManual,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("routing %s must be in [0,1], got %v", name, v)
		}
	}
	if th.ClassificationManual > th.Classification {
		return fmt.Errorf("classification_manual_threshold %v exceeds classification_threshold %v",
			th.ClassificationManual, th.Classification)
	}
	if th.FieldManual > th.Field {
		return fmt.Errorf("field_manual_threshold %v exceeds field_threshold %v",
			th.FieldManual, th.Field)
	}
	return nil
}
