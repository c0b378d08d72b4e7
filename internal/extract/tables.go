package extract

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/docflow/internal/artifact"
	"github.com/MeKo-Tech/docflow/internal/common"
	"github.com/MeKo-Tech/docflow/internal/ocr"
)

// TablesStageName identifies the table extraction stage in page annotations.
const TablesStageName = "tables"

var columnSplit = regexp.MustCompile(`\s{2,}`)

// TableExtractor crops detected table regions, re-OCRs them, and writes
// row-delimited side files with tab-separated columns.
type TableExtractor struct {
	engine ocr.Engine
	// OutputDir receives table side files; empty writes next to the source.
	OutputDir string
}

// NewTableExtractor creates the table extraction stage.
func NewTableExtractor(engine ocr.Engine) *TableExtractor {
	return &TableExtractor{engine: engine}
}

func (e *TableExtractor) Name() string { return TablesStageName }

// Process handles every table region independently; a failed crop or OCR for
// one table is recorded and does not stop the others.
func (e *TableExtractor) Process(page *artifact.Page, _ *artifact.Context) error {
	timer := common.StartStage(TablesStageName)
	annotate := func(status string, detail map[string]any) {
		page.Annotations.Append(artifact.Annotation{
			Stage: TablesStageName, Status: status, Elapsed: timer.Stop(), Detail: detail,
		})
	}

	tables := page.RegionCount(artifact.RegionTable)
	if tables == 0 {
		annotate("skipped_no_tables", nil)
		return nil
	}
	src := page.AnalysisImage()
	img, err := imaging.Open(src)
	if err != nil {
		annotate("load_error", map[string]any{"error": err.Error()})
		return nil
	}

	var written []string
	var failures []string
	idx := 0
	for _, region := range page.Regions {
		if region.Kind != artifact.RegionTable {
			continue
		}
		path, err := e.extractTable(page, img, region, idx)
		if err != nil {
			failures = append(failures, err.Error())
		} else {
			written = append(written, path)
		}
		idx++
	}

	detail := map[string]any{"tables": tables, "files": written}
	if len(failures) > 0 {
		detail["errors"] = failures
		annotate("partial_error", detail)
		return nil
	}
	annotate("ok", detail)
	return nil
}

func (e *TableExtractor) extractTable(page *artifact.Page, img image.Image, region artifact.Region, idx int) (string, error) {
	rect := image.Rect(region.X, region.Y, region.X+region.W, region.Y+region.H)
	crop := imaging.Crop(img, rect)

	dir := e.OutputDir
	if dir == "" {
		dir = filepath.Dir(page.ImagePath)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("table output dir: %w", err)
	}
	stem := strings.TrimSuffix(filepath.Base(page.ImagePath), filepath.Ext(page.ImagePath))
	cropPath := filepath.Join(dir, fmt.Sprintf("%s_table_%d.png", stem, idx))
	if err := imaging.Save(crop, cropPath); err != nil {
		return "", fmt.Errorf("table crop save: %w", err)
	}

	res, err := e.engine.Recognize(context.Background(), cropPath)
	if err != nil {
		return "", fmt.Errorf("table ocr: %w", err)
	}

	rowsPath := filepath.Join(dir, fmt.Sprintf("%s_table_%d.txt", stem, idx))
	if err := os.WriteFile(rowsPath, []byte(RowsFromText(res.Text)), 0o640); err != nil {
		return "", fmt.Errorf("table rows write: %w", err)
	}
	return rowsPath, nil
}

// RowsFromText splits OCR output into rows and tab-separated columns; column
// boundaries are runs of two or more whitespace characters.
func RowsFromText(text string) string {
	var rows []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cols := columnSplit.Split(line, -1)
		rows = append(rows, strings.Join(cols, "\t"))
	}
	if len(rows) == 0 {
		return ""
	}
	return strings.Join(rows, "\n") + "\n"
}
