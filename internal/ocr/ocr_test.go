package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/docflow/internal/artifact"
)

func TestStubReadsSidecar(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "page.png")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "page.txt"), []byte("Invoice Number: INV-1"), 0o640))

	res, err := NewStub().Recognize(context.Background(), img)
	require.NoError(t, err)
	assert.Equal(t, "Invoice Number: INV-1", res.Text)
	assert.False(t, res.HasConfidence)
}

func TestStubWithoutSidecar(t *testing.T) {
	res, err := NewStub().Recognize(context.Background(), filepath.Join(t.TempDir(), "page.png"))
	require.NoError(t, err)
	assert.Empty(t, res.Text)
}

func TestNewFallsBackToStub(t *testing.T) {
	eng := New(Config{Backend: "no-such-backend"})
	assert.Equal(t, "stub", eng.Name())

	eng = New(Config{Backend: ""})
	assert.Equal(t, "stub", eng.Name())
}

func TestNewUsesRegisteredFactory(t *testing.T) {
	Register("test-backend", func(Config) (Engine, error) {
		return &fakeEngine{name: "test-backend"}, nil
	})
	eng := New(Config{Backend: "test-backend"})
	assert.Equal(t, "test-backend", eng.Name())
}

func TestNewFallsBackWhenFactoryFails(t *testing.T) {
	Register("broken", func(Config) (Engine, error) {
		return nil, errors.New("native library missing")
	})
	eng := New(Config{Backend: "broken"})
	assert.Equal(t, "stub", eng.Name())

	_, err := NewStrict(Config{Backend: "broken"})
	assert.Error(t, err)
}

func TestNewStrictUnknownBackend(t *testing.T) {
	_, err := NewStrict(Config{Backend: "missing"})
	assert.Error(t, err)
}

func TestBackendsIncludesStub(t *testing.T) {
	assert.Contains(t, Backends(), "stub")
}

type fakeEngine struct {
	name string
	res  Result
	err  error
}

func (f *fakeEngine) Name() string { return f.name }
func (f *fakeEngine) Recognize(context.Context, string) (Result, error) {
	return f.res, f.err
}
func (f *fakeEngine) Close() error { return nil }

func TestStagePrecomputedText(t *testing.T) {
	dir := t.TempDir()
	textPath := filepath.Join(dir, "page.txt")
	require.NoError(t, os.WriteFile(textPath, []byte("hello"), 0o640))

	page := artifact.NewPage("", filepath.Join(dir, "page.png"))
	page.OCRTextPath = textPath

	stage := NewStage(&fakeEngine{name: "fake", err: errors.New("must not be called")})
	require.NoError(t, stage.Process(page, nil))

	assert.Equal(t, "hello", page.OCRText)
	ann, ok := page.Annotations.Stage(StageName)
	require.True(t, ok)
	assert.Equal(t, "ok", ann.Status)
	assert.Equal(t, "precomputed", ann.Detail["engine"])
}

func TestStageMissingImage(t *testing.T) {
	page := artifact.NewPage("", filepath.Join(t.TempDir(), "absent.png"))
	stage := NewStage(&fakeEngine{name: "fake"})
	require.NoError(t, stage.Process(page, nil))

	ann, ok := page.Annotations.Stage(StageName)
	require.True(t, ok)
	assert.Equal(t, "skipped_no_image", ann.Status)
}

func TestStageEngineError(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "page.png")
	require.NoError(t, os.WriteFile(img, []byte("not really a png"), 0o640))

	page := artifact.NewPage("", img)
	stage := NewStage(&fakeEngine{name: "fake", err: errors.New("boom")})
	require.NoError(t, stage.Process(page, nil))

	ann, ok := page.Annotations.Stage(StageName)
	require.True(t, ok)
	assert.Equal(t, "ocr_error", ann.Status)
}

func TestStageWritesSidecar(t *testing.T) {
	dir := t.TempDir()
	img := filepath.Join(dir, "page.png")
	require.NoError(t, os.WriteFile(img, []byte("png bytes"), 0o640))

	stage := NewStage(&fakeEngine{name: "fake", res: Result{Text: "recognized", Confidence: 0.92, HasConfidence: true}})
	page := artifact.NewPage("", img)
	require.NoError(t, stage.Process(page, nil))

	assert.Equal(t, "recognized", page.OCRText)
	require.NotEmpty(t, page.OCRTextPath)
	data, err := os.ReadFile(page.OCRTextPath)
	require.NoError(t, err)
	assert.Equal(t, "recognized", string(data))

	ann, _ := page.Annotations.Stage(StageName)
	assert.Equal(t, 0.92, ann.Detail["confidence"])
}
