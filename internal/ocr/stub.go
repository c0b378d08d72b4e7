package ocr

import (
	"context"
	"os"
	"strings"
)

// Stub is the no-op engine. It returns text from a ".txt" sidecar next to the
// image when one exists, so pipelines remain exercisable on hosts without a
// native OCR installation, and empty text otherwise.
type Stub struct{}

// NewStub creates the no-op engine.
func NewStub() *Stub { return &Stub{} }

func (s *Stub) Name() string { return "stub" }

// Recognize returns sidecar text when present and never fails.
func (s *Stub) Recognize(_ context.Context, imagePath string) (Result, error) {
	sidecar := sidecarPath(imagePath)
	data, err := os.ReadFile(sidecar)
	if err != nil {
		return Result{}, nil
	}
	return Result{Text: string(data)}, nil
}

func (s *Stub) Close() error { return nil }

func sidecarPath(imagePath string) string {
	if idx := strings.LastIndex(imagePath, "."); idx > strings.LastIndex(imagePath, "/") {
		return imagePath[:idx] + ".txt"
	}
	return imagePath + ".txt"
}
