// Package preprocess implements the best-effort page image cleanup stage:
// border crop, deskew, shadow removal, and contrast normalization. Every
// failure degrades to an explicit status; the stage never fails a pipeline.
package preprocess

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/docflow/internal/artifact"
	"github.com/MeKo-Tech/docflow/internal/common"
)

// StageName identifies the preprocessing stage in page annotations.
const StageName = "preprocess"

// Config holds preprocessing settings.
type Config struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	// BorderCrop trims this many pixels from every edge before analysis.
	BorderCrop int `mapstructure:"border_crop" yaml:"border_crop" json:"border_crop"`
	// Deskew enables projection-profile skew estimation and correction.
	Deskew         bool    `mapstructure:"deskew" yaml:"deskew" json:"deskew"`
	DeskewMaxAngle float64 `mapstructure:"deskew_max_angle" yaml:"deskew_max_angle" json:"deskew_max_angle"`
	DeskewStep     float64 `mapstructure:"deskew_step" yaml:"deskew_step" json:"deskew_step"`
	// Deshadow divides out a blurred background estimate.
	Deshadow      bool    `mapstructure:"deshadow" yaml:"deshadow" json:"deshadow"`
	DeshadowSigma float64 `mapstructure:"deshadow_sigma" yaml:"deshadow_sigma" json:"deshadow_sigma"`
	// ContrastStretch remaps the grayscale range to full dynamic range.
	ContrastStretch bool `mapstructure:"contrast_stretch" yaml:"contrast_stretch" json:"contrast_stretch"`
	// OutputDir receives cleaned side files; empty writes next to the source.
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir" json:"output_dir"`
}

// DefaultConfig returns default preprocessing settings.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		BorderCrop:      0,
		Deskew:          true,
		DeskewMaxAngle:  5.0,
		DeskewStep:      0.5,
		Deshadow:        true,
		DeshadowSigma:   25.0,
		ContrastStretch: true,
	}
}

// Preprocessor is the pipeline stage.
type Preprocessor struct {
	cfg Config
}

// New creates a preprocessor with the given config.
func New(cfg Config) *Preprocessor { return &Preprocessor{cfg: cfg} }

func (p *Preprocessor) Name() string { return StageName }

// Process cleans the page image and records a status annotation. The cleaned
// image is written as a "<stem>_clean.png" side file and referenced from the
// page for downstream stages.
func (p *Preprocessor) Process(page *artifact.Page, _ *artifact.Context) error {
	timer := common.StartStage(StageName)
	annotate := func(status string, detail map[string]any) {
		page.Annotations.Append(artifact.Annotation{
			Stage: StageName, Status: status, Elapsed: timer.Stop(), Detail: detail,
		})
	}

	if !p.cfg.Enabled {
		annotate("skipped_disabled", nil)
		return nil
	}
	if page.ImagePath == "" {
		annotate("skipped_no_image", nil)
		return nil
	}
	img, err := imaging.Open(page.ImagePath, imaging.AutoOrientation(true))
	if err != nil {
		annotate("load_error", map[string]any{"error": err.Error()})
		return nil
	}

	detail := map[string]any{}

	if p.cfg.BorderCrop > 0 {
		img = cropBorder(img, p.cfg.BorderCrop)
		detail["border_crop"] = p.cfg.BorderCrop
	}

	gray := imaging.Grayscale(img)

	if p.cfg.Deskew {
		angle := estimateSkew(gray, p.cfg.DeskewMaxAngle, p.cfg.DeskewStep)
		if angle != 0 {
			gray = imaging.Rotate(gray, angle, color.White)
		}
		detail["deskew_angle"] = angle
	}
	if p.cfg.Deshadow {
		gray = removeShadow(gray, p.cfg.DeshadowSigma)
	}
	if p.cfg.ContrastStretch {
		gray = stretchContrast(gray)
	}

	cleanPath, err := p.cleanPath(page.ImagePath)
	if err == nil {
		err = imaging.Save(gray, cleanPath)
	}
	if err != nil {
		annotate("save_error", map[string]any{"error": err.Error()})
		return nil
	}
	page.CleanImagePath = cleanPath
	b := gray.Bounds()
	detail["clean_image"] = cleanPath
	detail["width"] = b.Dx()
	detail["height"] = b.Dy()
	annotate("ok", detail)
	return nil
}

func (p *Preprocessor) cleanPath(imagePath string) (string, error) {
	dir := p.cfg.OutputDir
	if dir == "" {
		dir = filepath.Dir(imagePath)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("preprocess output dir: %w", err)
	}
	stem := strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath))
	return filepath.Join(dir, stem+"_clean.png"), nil
}

func cropBorder(img image.Image, border int) image.Image {
	b := img.Bounds()
	if b.Dx() <= 2*border || b.Dy() <= 2*border {
		return img
	}
	rect := image.Rect(b.Min.X+border, b.Min.Y+border, b.Max.X-border, b.Max.Y-border)
	return imaging.Crop(img, rect)
}
