// Package layout finds candidate page regions (text blocks, ruled tables,
// signatures) with geometric heuristics on the binarized image.
package layout

import (
	"image"

	"github.com/disintegration/imaging"
	xdraw "golang.org/x/image/draw"

	"github.com/MeKo-Tech/docflow/internal/artifact"
	"github.com/MeKo-Tech/docflow/internal/common"
)

// StageName identifies the layout stage in page annotations.
const StageName = "layout"

// Config holds layout detection settings.
type Config struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	// WorkWidth is the mask width used for component analysis; the source
	// image is downscaled to it before binarization.
	WorkWidth int `mapstructure:"work_width" yaml:"work_width" json:"work_width"`
	// MinRegionWidth/Height filter tiny components, in source pixels.
	MinRegionWidth  int `mapstructure:"min_region_width" yaml:"min_region_width" json:"min_region_width"`
	MinRegionHeight int `mapstructure:"min_region_height" yaml:"min_region_height" json:"min_region_height"`
	// TableLineFill is the per-row/column ink ratio that counts as a ruled
	// line; a region with at least TableMinLines such rows and columns is a
	// table.
	TableLineFill float64 `mapstructure:"table_line_fill" yaml:"table_line_fill" json:"table_line_fill"`
	TableMinLines int     `mapstructure:"table_min_lines" yaml:"table_min_lines" json:"table_min_lines"`
	// Signature heuristics: region in the bottom band of the page, wide
	// aspect, and edge density above the threshold.
	SignatureBand        float64 `mapstructure:"signature_band" yaml:"signature_band" json:"signature_band"`
	SignatureMinAspect   float64 `mapstructure:"signature_min_aspect" yaml:"signature_min_aspect" json:"signature_min_aspect"`
	SignatureEdgeDensity float64 `mapstructure:"signature_edge_density" yaml:"signature_edge_density" json:"signature_edge_density"`
}

// DefaultConfig returns default layout detection settings.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		WorkWidth:            800,
		MinRegionWidth:       40,
		MinRegionHeight:      20,
		TableLineFill:        0.55,
		TableMinLines:        2,
		SignatureBand:        0.40,
		SignatureMinAspect:   2.5,
		SignatureEdgeDensity: 0.18,
	}
}

// Detector is the pipeline stage.
type Detector struct {
	cfg Config
}

// New creates a layout detector.
func New(cfg Config) *Detector { return &Detector{cfg: cfg} }

func (d *Detector) Name() string { return StageName }

// Process binarizes the analysis image, extracts components above the minimum
// size, classifies each region, and records the counts.
func (d *Detector) Process(page *artifact.Page, _ *artifact.Context) error {
	timer := common.StartStage(StageName)
	annotate := func(status string, detail map[string]any) {
		page.Annotations.Append(artifact.Annotation{
			Stage: StageName, Status: status, Elapsed: timer.Stop(), Detail: detail,
		})
	}

	if !d.cfg.Enabled {
		annotate("skipped_disabled", nil)
		return nil
	}
	src := page.AnalysisImage()
	if src == "" {
		annotate("skipped_no_image", nil)
		return nil
	}
	img, err := imaging.Open(src)
	if err != nil {
		annotate("load_error", map[string]any{"error": err.Error()})
		return nil
	}

	page.Regions = d.Detect(img)
	annotate("ok", map[string]any{
		"regions":     len(page.Regions),
		"text_blocks": page.RegionCount(artifact.RegionTextBlock),
		"tables":      page.RegionCount(artifact.RegionTable),
		"signatures":  page.RegionCount(artifact.RegionSignature),
	})
	return nil
}

// Detect runs region detection on an already-loaded image.
func (d *Detector) Detect(img image.Image) []artifact.Region {
	srcW := img.Bounds().Dx()
	srcH := img.Bounds().Dy()
	if srcW == 0 || srcH == 0 {
		return nil
	}

	gray, scale := d.workImage(img)
	m := binarize(gray, otsuThreshold(gray))
	boxes := connectedComponents(m)

	minW := int(float64(d.cfg.MinRegionWidth) * scale)
	minH := int(float64(d.cfg.MinRegionHeight) * scale)
	if minW < 2 {
		minW = 2
	}
	if minH < 2 {
		minH = 2
	}

	var regions []artifact.Region
	for _, b := range boxes {
		if b.w() < minW || b.h() < minH {
			continue
		}
		region := artifact.Region{
			Kind:        d.classifyRegion(m, b),
			X:           int(float64(b.minX) / scale),
			Y:           int(float64(b.minY) / scale),
			W:           int(float64(b.w()) / scale),
			H:           int(float64(b.h()) / scale),
			FillRatio:   fillRatio(b),
			EdgeDensity: edgeDensity(m, b),
		}
		regions = append(regions, region)
	}
	return regions
}

// workImage grayscales and downscales the source for mask analysis, returning
// the scale factor from source to mask coordinates.
func (d *Detector) workImage(img image.Image) (*image.Gray, float64) {
	b := img.Bounds()
	scale := 1.0
	targetW := b.Dx()
	if d.cfg.WorkWidth > 0 && b.Dx() > d.cfg.WorkWidth {
		scale = float64(d.cfg.WorkWidth) / float64(b.Dx())
		targetW = d.cfg.WorkWidth
	}
	targetH := int(float64(b.Dy()) * scale)
	if targetH < 1 {
		targetH = 1
	}
	gray := image.NewGray(image.Rect(0, 0, targetW, targetH))
	xdraw.BiLinear.Scale(gray, gray.Bounds(), img, b, xdraw.Over, nil)
	return gray, scale
}

func (d *Detector) classifyRegion(m *mask, b box) artifact.RegionKind {
	rows, cols := lineCounts(m, b, d.cfg.TableLineFill)
	if rows >= d.cfg.TableMinLines && cols >= d.cfg.TableMinLines {
		return artifact.RegionTable
	}

	centerY := float64(b.minY+b.maxY) / 2.0
	inBottomBand := centerY >= float64(m.h)*d.cfg.SignatureBand
	aspect := float64(b.w()) / float64(b.h())
	if inBottomBand && aspect > d.cfg.SignatureMinAspect && edgeDensity(m, b) > d.cfg.SignatureEdgeDensity {
		return artifact.RegionSignature
	}
	return artifact.RegionTextBlock
}
