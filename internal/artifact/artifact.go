// Package artifact defines the page artifact that flows through the
// processing pipeline, the typed per-stage annotations accumulated along the
// way, and the structured output handed to the routing engine.
package artifact

import (
	"time"

	"github.com/google/uuid"
)

// RegionKind classifies a detected layout region.
type RegionKind string

const (
	RegionTextBlock RegionKind = "text_block"
	RegionTable     RegionKind = "table"
	RegionSignature RegionKind = "signature"
)

// Region is a rectangular layout region in source-image pixel coordinates.
type Region struct {
	Kind        RegionKind `json:"kind"`
	X           int        `json:"x"`
	Y           int        `json:"y"`
	W           int        `json:"w"`
	H           int        `json:"h"`
	FillRatio   float64    `json:"fill_ratio"`
	EdgeDensity float64    `json:"edge_density"`
}

// AspectRatio returns width over height, or 0 for degenerate regions.
func (r Region) AspectRatio() float64 {
	if r.H <= 0 {
		return 0
	}
	return float64(r.W) / float64(r.H)
}

// Page is one page under processing. Stages mutate it in place; it is created
// once per page and consumed by exactly one pipeline run.
type Page struct {
	ID          string `json:"id"`
	ImagePath   string `json:"image_path"`
	OCRTextPath string `json:"ocr_text_path,omitempty"`

	// Populated by pipeline stages.
	CleanImagePath   string             `json:"clean_image_path,omitempty"`
	Regions          []Region           `json:"regions,omitempty"`
	OCRText          string             `json:"-"`
	DocumentType     string             `json:"document_type,omitempty"`
	Classification   float64            `json:"classification_confidence"`
	Fields           map[string]string  `json:"fields,omitempty"`
	FieldConfidences map[string]float64 `json:"field_confidences,omitempty"`

	Annotations *Annotations `json:"annotations,omitempty"`
}

// NewPage creates a page artifact for a source image. An empty id is replaced
// with a generated UUID.
func NewPage(id, imagePath string) *Page {
	if id == "" {
		id = uuid.NewString()
	}
	return &Page{
		ID:          id,
		ImagePath:   imagePath,
		Annotations: &Annotations{},
	}
}

// RegionCount returns the number of detected regions of the given kind.
func (p *Page) RegionCount(kind RegionKind) int {
	n := 0
	for _, r := range p.Regions {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

// AnalysisImage returns the preferred image for text analysis: the cleaned
// side file when preprocessing produced one, otherwise the original.
func (p *Page) AnalysisImage() string {
	if p.CleanImagePath != "" {
		return p.CleanImagePath
	}
	return p.ImagePath
}

// AvgFieldConfidence returns the arithmetic mean of the per-field confidences
// and whether any were recorded.
func (p *Page) AvgFieldConfidence() (float64, bool) {
	if len(p.FieldConfidences) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, c := range p.FieldConfidences {
		sum += c
	}
	return sum / float64(len(p.FieldConfidences)), true
}

// Context carries batch-level information through a pipeline run.
type Context struct {
	BatchID    string    `json:"batch_id"`
	OperatorID string    `json:"operator_id"`
	StartedAt  time.Time `json:"started_at"`
}

// NewContext creates a processing context for a batch run.
func NewContext(batchID, operatorID string) *Context {
	if batchID == "" {
		batchID = uuid.NewString()
	}
	return &Context{BatchID: batchID, OperatorID: operatorID, StartedAt: time.Now()}
}
