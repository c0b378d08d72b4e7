package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (no extension).
	ConfigFileName = "docflow"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "DOCFLOW"
)

// Loader resolves configuration from files, environment, and bound flags.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader on the global viper instance so cobra flag
// bindings participate.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWith creates a loader on a private viper instance (tests).
func NewLoaderWith(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load resolves the configuration. explicitFile, when non-empty, must exist
// and parse; otherwise the standard search paths are tried and a missing file
// falls back to defaults and environment.
func (l *Loader) Load(explicitFile string) (*Config, error) {
	l.v.SetConfigType("yaml")
	if explicitFile != "" {
		l.v.SetConfigFile(explicitFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.addConfigPaths()
	}

	l.setupEnvironment()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicitFile != "" || !errors.As(err, &notFound) {
			if explicitFile != "" && os.IsNotExist(underlying(err)) {
				return nil, fmt.Errorf("config file not found: %s", explicitFile)
			}
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	} else {
		slog.Debug("loaded config file", "file", l.v.ConfigFileUsed())
	}

	cfg := Default()
	if err := l.v.Unmarshal(&cfg); err != nil {
		// Malformed threshold config falls back to defaults rather than
		// failing routing.
		slog.Warn("config unmarshal failed, using defaults", "error", err)
		cfg = Default()
	}
	cfg.ApplyDataDir()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func underlying(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
}

func (l *Loader) addConfigPaths() {
	l.v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(filepath.Join(home, ".config", "docflow"))
	}
	l.v.AddConfigPath("/etc/docflow")
}

func (l *Loader) setupEnvironment() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
}

func (l *Loader) setDefaults() {
	def := Default()
	l.v.SetDefault("log_level", def.LogLevel)
	l.v.SetDefault("data_dir", def.DataDir)

	l.v.SetDefault("pipeline.workers", def.Pipeline.Workers)
	l.v.SetDefault("pipeline.ocr.backend", def.Pipeline.OCR.Backend)
	l.v.SetDefault("pipeline.ocr.languages", def.Pipeline.OCR.Languages)
	l.v.SetDefault("pipeline.ocr.timeout", def.Pipeline.OCR.Timeout)
	l.v.SetDefault("pipeline.preprocess.enabled", def.Pipeline.Preprocess.Enabled)
	l.v.SetDefault("pipeline.preprocess.deskew", def.Pipeline.Preprocess.Deskew)
	l.v.SetDefault("pipeline.preprocess.deskew_max_angle", def.Pipeline.Preprocess.DeskewMaxAngle)
	l.v.SetDefault("pipeline.preprocess.deskew_step", def.Pipeline.Preprocess.DeskewStep)
	l.v.SetDefault("pipeline.preprocess.deshadow", def.Pipeline.Preprocess.Deshadow)
	l.v.SetDefault("pipeline.preprocess.deshadow_sigma", def.Pipeline.Preprocess.DeshadowSigma)
	l.v.SetDefault("pipeline.preprocess.contrast_stretch", def.Pipeline.Preprocess.ContrastStretch)
	l.v.SetDefault("pipeline.layout.enabled", def.Pipeline.Layout.Enabled)
	l.v.SetDefault("pipeline.layout.work_width", def.Pipeline.Layout.WorkWidth)
	l.v.SetDefault("pipeline.layout.min_region_width", def.Pipeline.Layout.MinRegionWidth)
	l.v.SetDefault("pipeline.layout.min_region_height", def.Pipeline.Layout.MinRegionHeight)
	l.v.SetDefault("pipeline.layout.table_line_fill", def.Pipeline.Layout.TableLineFill)
	l.v.SetDefault("pipeline.layout.table_min_lines", def.Pipeline.Layout.TableMinLines)
	l.v.SetDefault("pipeline.layout.signature_band", def.Pipeline.Layout.SignatureBand)
	l.v.SetDefault("pipeline.layout.signature_min_aspect", def.Pipeline.Layout.SignatureMinAspect)
	l.v.SetDefault("pipeline.layout.signature_edge_density", def.Pipeline.Layout.SignatureEdgeDensity)

	l.v.SetDefault("routing.thresholds.classification_threshold", def.Routing.Thresholds.Classification)
	l.v.SetDefault("routing.thresholds.classification_manual_threshold", def.Routing.Thresholds.ClassificationManual)
	l.v.SetDefault("routing.thresholds.field_threshold", def.Routing.Thresholds.Field)
	l.v.SetDefault("routing.thresholds.field_manual_threshold", def.Routing.Thresholds.FieldManual)

	l.v.SetDefault("queue.lease_ttl", 30*time.Minute)

	l.v.SetDefault("feedback.stats_window", def.Feedback.StatsWindow)
	l.v.SetDefault("feedback.export_min_confidence", def.Feedback.ExportMinConfidence)
}
