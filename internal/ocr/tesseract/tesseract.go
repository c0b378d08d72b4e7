// Package tesseract provides the Tesseract-backed OCR engine via gosseract.
// Importing the package registers the backend under the name "tesseract".
package tesseract

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/MeKo-Tech/docflow/internal/ocr"
)

func init() {
	ocr.Register("tesseract", func(cfg ocr.Config) (ocr.Engine, error) {
		return New(cfg)
	})
}

// Engine wraps a gosseract client factory. A fresh client is created per
// recognition call; gosseract clients are not safe for concurrent use.
type Engine struct {
	cfg           ocr.Config
	clientFactory func() *gosseract.Client
}

// New constructs the Tesseract engine and verifies the installation by
// creating and closing a probe client.
func New(cfg ocr.Config) (*Engine, error) {
	e := &Engine{cfg: cfg, clientFactory: gosseract.NewClient}
	probe := e.clientFactory()
	if probe == nil {
		return nil, fmt.Errorf("tesseract client unavailable")
	}
	if err := probe.Close(); err != nil {
		return nil, fmt.Errorf("tesseract probe close: %w", err)
	}
	return e, nil
}

func (e *Engine) Name() string { return "tesseract" }

// Recognize runs Tesseract on the image and reports the mean word confidence
// when word boxes are available.
func (e *Engine) Recognize(ctx context.Context, imagePath string) (ocr.Result, error) {
	if _, err := os.Stat(imagePath); err != nil {
		return ocr.Result{}, fmt.Errorf("tesseract image: %w", err)
	}
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	// gosseract has no cancellation hook; the context bound abandons the wait
	// and lets the worker goroutine finish into the buffered channel.
	type recOut struct {
		res ocr.Result
		err error
	}
	done := make(chan recOut, 1)
	go func() {
		res, err := e.recognize(imagePath)
		done <- recOut{res: res, err: err}
	}()
	select {
	case out := <-done:
		return out.res, out.err
	case <-ctx.Done():
		return ocr.Result{}, fmt.Errorf("tesseract: %w", ctx.Err())
	}
}

func (e *Engine) recognize(imagePath string) (ocr.Result, error) {
	client := e.clientFactory()
	defer client.Close()
	if len(e.cfg.Languages) > 0 {
		if err := client.SetLanguage(e.cfg.Languages...); err != nil {
			return ocr.Result{}, fmt.Errorf("tesseract language: %w", err)
		}
	}
	if err := client.SetImage(imagePath); err != nil {
		return ocr.Result{}, fmt.Errorf("tesseract set image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return ocr.Result{}, fmt.Errorf("tesseract recognize: %w", err)
	}
	res := ocr.Result{Text: strings.TrimSpace(text)}
	if boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD); err == nil && len(boxes) > 0 {
		sum := 0.0
		for _, b := range boxes {
			sum += b.Confidence
		}
		// gosseract reports word confidence on a 0-100 scale.
		res.Confidence = sum / float64(len(boxes)) / 100.0
		res.HasConfidence = true
	}
	return res, nil
}

func (e *Engine) Close() error { return nil }
