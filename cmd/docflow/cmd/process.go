package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/docflow/internal/artifact"
	"github.com/MeKo-Tech/docflow/internal/pipeline"
	"github.com/MeKo-Tech/docflow/internal/queue"
	"github.com/MeKo-Tech/docflow/internal/routing"
)

var supportedImageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true, ".bmp": true,
}

var (
	processBatchID  string
	processOperator string
	processWorkers  int
	processBackend  string
	processOutDir   string
)

var processCmd = &cobra.Command{
	Use:   "process [image|directory]...",
	Short: "Run the processing pipeline over page images",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runProcess,
}

func init() {
	processCmd.Flags().StringVar(&processBatchID, "batch", "", "batch id (generated when empty)")
	processCmd.Flags().StringVar(&processOperator, "operator", "", "submitting operator id")
	processCmd.Flags().IntVar(&processWorkers, "workers", 0, "parallel workers (0 = sequential)")
	processCmd.Flags().StringVar(&processBackend, "ocr-backend", "", "OCR backend (tesseract, stub)")
	processCmd.Flags().StringVar(&processOutDir, "output-dir", "", "directory for side files")
	rootCmd.AddCommand(processCmd)
}

func runProcess(_ *cobra.Command, args []string) error {
	images, err := discoverImages(args)
	if err != nil {
		return err
	}
	if len(images) == 0 {
		return fmt.Errorf("no supported images found in %s", strings.Join(args, ", "))
	}

	q, err := queue.New(cfg.Queue)
	if err != nil {
		return err
	}
	router := routing.New(cfg.Routing, q)

	pl := pipeline.NewBuilder().
		WithConfig(cfg.Pipeline).
		WithOCRBackend(processBackend).
		WithWorkers(processWorkers).
		WithOutputDir(processOutDir).
		WithRouter(router).
		Build()
	defer pl.Close()

	pctx := artifact.NewContext(processBatchID, processOperator)
	pages := make([]*artifact.Page, len(images))
	for i, img := range images {
		pages[i] = artifact.NewPage("", img)
		if txt := ocrSidechannel(img); txt != "" {
			pages[i].OCRTextPath = txt
		}
	}

	docs := pl.Run(pages, pctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	type summary struct {
		PageID       string  `json:"page_id"`
		Image        string  `json:"image"`
		DocumentType string  `json:"document_type"`
		Confidence   float64 `json:"confidence"`
		Fields       int     `json:"fields"`
		Route        string  `json:"route"`
	}
	out := make([]summary, len(docs))
	for i, doc := range docs {
		route := routing.RouteAuto
		if d, ok := doc.Metadata["routing"].(routing.Decision); ok {
			route = d.Route
		}
		out[i] = summary{
			PageID:       doc.PageID,
			Image:        doc.ImagePath,
			DocumentType: doc.DocumentType,
			Confidence:   doc.Confidence,
			Fields:       len(doc.Fields),
			Route:        route,
		}
	}
	return enc.Encode(out)
}

// discoverImages expands directories and validates extensions.
func discoverImages(args []string) ([]string, error) {
	var images []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", arg, err)
		}
		if !info.IsDir() {
			if supportedImageExts[strings.ToLower(filepath.Ext(arg))] {
				images = append(images, arg)
			}
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, fmt.Errorf("read dir %s: %w", arg, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			name := e.Name()
			if strings.Contains(name, "_clean.") || strings.Contains(name, "_table_") {
				continue
			}
			if supportedImageExts[strings.ToLower(filepath.Ext(name))] {
				images = append(images, filepath.Join(arg, name))
			}
		}
	}
	sort.Strings(images)
	return images, nil
}

// ocrSidechannel returns the path of a pre-produced OCR text blob for the
// image, when one sits next to it.
func ocrSidechannel(imagePath string) string {
	stem := strings.TrimSuffix(imagePath, filepath.Ext(imagePath))
	path := stem + ".txt"
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return ""
}
