// Package pipeline wires the processing stages into an ordered chain with a
// terminal structurer and hands the result to the routing engine. Stage
// failures are recorded in the page annotations and never stop the chain: a
// single page failing one stage must not block the batch.
package pipeline

import (
	"log/slog"

	"github.com/MeKo-Tech/docflow/internal/artifact"
	"github.com/MeKo-Tech/docflow/internal/classify"
	"github.com/MeKo-Tech/docflow/internal/common"
	"github.com/MeKo-Tech/docflow/internal/extract"
	"github.com/MeKo-Tech/docflow/internal/layout"
	"github.com/MeKo-Tech/docflow/internal/metrics"
	"github.com/MeKo-Tech/docflow/internal/ocr"
	"github.com/MeKo-Tech/docflow/internal/preprocess"
	"github.com/MeKo-Tech/docflow/internal/routing"
)

// Stage is one processor in the chain. Stages record their own degraded
// statuses; a returned error is the unexpected case and is annotated by the
// chain before moving on.
type Stage interface {
	Name() string
	Process(page *artifact.Page, pctx *artifact.Context) error
}

// Router is the terminal admission-control hook.
type Router interface {
	Route(doc *artifact.Structured, pctx *artifact.Context) routing.Decision
}

// Config holds pipeline construction settings.
type Config struct {
	OCR        ocr.Config        `mapstructure:"ocr" yaml:"ocr" json:"ocr"`
	Preprocess preprocess.Config `mapstructure:"preprocess" yaml:"preprocess" json:"preprocess"`
	Layout     layout.Config     `mapstructure:"layout" yaml:"layout" json:"layout"`
	// Workers bounds parallel page processing; 0 means sequential.
	Workers int `mapstructure:"workers" yaml:"workers" json:"workers"`
}

// DefaultConfig returns pipeline defaults with component defaults.
func DefaultConfig() Config {
	return Config{
		OCR:        ocr.DefaultConfig(),
		Preprocess: preprocess.DefaultConfig(),
		Layout:     layout.DefaultConfig(),
	}
}

// Pipeline is an ordered list of stages plus the routing hook.
type Pipeline struct {
	cfg    Config
	stages []Stage
	engine ocr.Engine
	router Router
}

// Builder constructs a Pipeline with fluent configuration.
type Builder struct {
	cfg    Config
	engine ocr.Engine
	router Router
}

// NewBuilder creates a pipeline builder with defaults.
func NewBuilder() *Builder { return &Builder{cfg: DefaultConfig()} }

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithOCRBackend selects the OCR backend by name.
func (b *Builder) WithOCRBackend(backend string) *Builder {
	if backend != "" {
		b.cfg.OCR.Backend = backend
	}
	return b
}

// WithEngine injects a pre-built OCR engine (tests).
func (b *Builder) WithEngine(engine ocr.Engine) *Builder {
	b.engine = engine
	return b
}

// WithRouter sets the terminal routing hook.
func (b *Builder) WithRouter(r Router) *Builder {
	b.router = r
	return b
}

// WithWorkers sets the parallel worker count for batch runs.
func (b *Builder) WithWorkers(n int) *Builder {
	if n >= 0 {
		b.cfg.Workers = n
	}
	return b
}

// WithOutputDir routes all side files (cleaned images, OCR text, table rows)
// into one directory.
func (b *Builder) WithOutputDir(dir string) *Builder {
	if dir != "" {
		b.cfg.Preprocess.OutputDir = dir
	}
	return b
}

// Build assembles the standard stage order: preprocess, layout, OCR,
// classify, fields, tables.
func (b *Builder) Build() *Pipeline {
	engine := b.engine
	if engine == nil {
		engine = ocr.New(b.cfg.OCR)
	}
	ocrStage := ocr.NewStage(engine)
	tables := extract.NewTableExtractor(engine)
	if dir := b.cfg.Preprocess.OutputDir; dir != "" {
		ocrStage.OutputDir = dir
		tables.OutputDir = dir
	}
	return &Pipeline{
		cfg:    b.cfg,
		engine: engine,
		router: b.router,
		stages: []Stage{
			preprocess.New(b.cfg.Preprocess),
			layout.New(b.cfg.Layout),
			ocrStage,
			classify.New(),
			extract.NewFieldExtractor(),
			tables,
		},
	}
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Close releases the OCR engine.
func (p *Pipeline) Close() error {
	if p.engine != nil {
		return p.engine.Close()
	}
	return nil
}

// ProcessPage runs the full chain for one page and returns its structured
// artifact. The page is mutated in place; the run is synchronous with no
// internal concurrency.
func (p *Pipeline) ProcessPage(page *artifact.Page, pctx *artifact.Context) *artifact.Structured {
	if page.Annotations == nil {
		page.Annotations = &artifact.Annotations{}
	}
	for _, stage := range p.stages {
		timer := common.StartStage(stage.Name())
		if err := stage.Process(page, pctx); err != nil {
			metrics.StageFailures.WithLabelValues(stage.Name()).Inc()
			slog.Warn("stage failed, continuing", "stage", stage.Name(), "page_id", page.ID, "error", err)
			page.Annotations.Append(artifact.Annotation{
				Stage:   stage.Name(),
				Status:  stage.Name() + "_error",
				Elapsed: timer.Stop(),
				Detail:  map[string]any{"error": err.Error()},
			})
		}
	}
	doc := artifact.Structure(page, pctx)
	if p.router != nil {
		p.router.Route(doc, pctx)
	}
	return doc
}

// Run processes the pages in order and returns their structured artifacts.
func (p *Pipeline) Run(pages []*artifact.Page, pctx *artifact.Context) []*artifact.Structured {
	if p.cfg.Workers > 1 && len(pages) > 1 {
		return p.runParallel(pages, pctx)
	}
	out := make([]*artifact.Structured, len(pages))
	for i, page := range pages {
		out[i] = p.ProcessPage(page, pctx)
	}
	return out
}
