package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MeKo-Tech/docflow/internal/artifact"
	"github.com/MeKo-Tech/docflow/internal/common"
)

// StageName identifies the OCR stage in page annotations.
const StageName = "ocr"

// Stage runs the engine over the page's analysis image and persists the
// extracted text as a sidecar artifact.
type Stage struct {
	engine Engine
	// OutputDir receives text sidecars; empty writes next to the source image.
	OutputDir string
}

// NewStage wraps an engine as a pipeline stage.
func NewStage(engine Engine) *Stage {
	return &Stage{engine: engine}
}

// Engine returns the wrapped engine.
func (s *Stage) Engine() Engine { return s.engine }

func (s *Stage) Name() string { return StageName }

// Process extracts text for the page. A pre-supplied OCR blob short-circuits
// the engine. Missing images and engine failures degrade with an explicit
// status; they never fail the pipeline.
func (s *Stage) Process(page *artifact.Page, _ *artifact.Context) error {
	timer := common.StartStage(StageName)

	if page.OCRTextPath != "" {
		if data, err := os.ReadFile(page.OCRTextPath); err == nil {
			page.OCRText = string(data)
			page.Annotations.Append(artifact.Annotation{
				Stage:   StageName,
				Status:  "ok",
				Elapsed: timer.Stop(),
				Detail: map[string]any{
					"engine":     "precomputed",
					"text_path":  page.OCRTextPath,
					"char_count": len(page.OCRText),
				},
			})
			return nil
		}
	}

	src := page.AnalysisImage()
	if src == "" {
		page.Annotations.Append(artifact.Annotation{
			Stage: StageName, Status: "skipped_no_image", Elapsed: timer.Stop(),
		})
		return nil
	}
	if _, err := os.Stat(src); err != nil {
		page.Annotations.Append(artifact.Annotation{
			Stage: StageName, Status: "skipped_no_image", Elapsed: timer.Stop(),
			Detail: map[string]any{"image": src},
		})
		return nil
	}

	res, err := s.engine.Recognize(context.Background(), src)
	if err != nil {
		page.Annotations.Append(artifact.Annotation{
			Stage: StageName, Status: "ocr_error", Elapsed: timer.Stop(),
			Detail: map[string]any{"engine": s.engine.Name(), "error": err.Error()},
		})
		return nil
	}
	page.OCRText = res.Text

	detail := map[string]any{
		"engine":     s.engine.Name(),
		"char_count": len(res.Text),
	}
	if res.HasConfidence {
		detail["confidence"] = res.Confidence
	}

	if path, werr := s.writeSidecar(page, res.Text); werr != nil {
		detail["sidecar_error"] = werr.Error()
	} else {
		page.OCRTextPath = path
		detail["text_path"] = path
	}

	page.Annotations.Append(artifact.Annotation{
		Stage: StageName, Status: "ok", Elapsed: timer.Stop(), Detail: detail,
	})
	return nil
}

func (s *Stage) writeSidecar(page *artifact.Page, text string) (string, error) {
	dir := s.OutputDir
	if dir == "" {
		dir = filepath.Dir(page.ImagePath)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("ocr sidecar dir: %w", err)
	}
	stem := strings.TrimSuffix(filepath.Base(page.ImagePath), filepath.Ext(page.ImagePath))
	path := filepath.Join(dir, stem+"_ocr.txt")
	if err := os.WriteFile(path, []byte(text), 0o640); err != nil {
		return "", fmt.Errorf("ocr sidecar write: %w", err)
	}
	return path, nil
}
