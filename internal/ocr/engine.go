// Package ocr provides the pluggable text-extraction engine abstraction used
// by the pipeline. Backends register themselves by name; construction falls
// back to the no-op stub when the requested backend is unavailable so that a
// missing native dependency degrades a run instead of failing it.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Result is the output of one recognition call.
type Result struct {
	Text          string
	Confidence    float64
	HasConfidence bool
}

// Engine extracts text from a page image.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, imagePath string) (Result, error)
	Close() error
}

// Config selects and parameterizes a backend.
type Config struct {
	Backend   string   `mapstructure:"backend" yaml:"backend" json:"backend"`
	Languages []string `mapstructure:"languages" yaml:"languages" json:"languages"`
	// Timeout bounds a single recognition call; zero means no bound.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Backend:   "tesseract",
		Languages: []string{"eng"},
		Timeout:   2 * time.Minute,
	}
}

// Factory constructs an engine from config. Registered by backend packages.
type Factory func(Config) (Engine, error)

var (
	registryMu sync.Mutex
	registry   = map[string]Factory{}
)

// Register makes a backend available under the given name. Later
// registrations for the same name replace earlier ones.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = f
}

// Backends lists the registered backend names in sorted order.
func Backends() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	names := make([]string, 0, len(registry)+1)
	names = append(names, "stub")
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds the configured engine, degrading to the stub when the backend is
// unknown or fails to initialize.
func New(cfg Config) Engine {
	if cfg.Backend == "" || cfg.Backend == "stub" {
		return NewStub()
	}
	registryMu.Lock()
	factory, ok := registry[cfg.Backend]
	registryMu.Unlock()
	if !ok {
		slog.Warn("ocr backend not registered, using stub", "backend", cfg.Backend)
		return NewStub()
	}
	eng, err := factory(cfg)
	if err != nil {
		slog.Warn("ocr backend unavailable, using stub", "backend", cfg.Backend, "error", err)
		return NewStub()
	}
	return eng
}

// NewStrict builds the configured engine and fails instead of degrading.
func NewStrict(cfg Config) (Engine, error) {
	if cfg.Backend == "" || cfg.Backend == "stub" {
		return NewStub(), nil
	}
	registryMu.Lock()
	factory, ok := registry[cfg.Backend]
	registryMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("ocr backend %q not registered", cfg.Backend)
	}
	return factory(cfg)
}
