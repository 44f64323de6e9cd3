package workspace_test

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/msomdec/tagbatch/internal/workspace"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := range w {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestPreview_Downscales(t *testing.T) {
	uri, err := workspace.Preview(encodePNG(t, 800, 400), workspace.PreviewSize)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	const prefix = "data:image/jpeg;base64,"
	if !strings.HasPrefix(uri, prefix) {
		t.Fatalf("unexpected preview prefix: %.40s", uri)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, prefix))
	if err != nil {
		t.Fatalf("decode base64: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	if cfg.Width != 160 || cfg.Height != 80 {
		t.Fatalf("expected 160x80, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestPreview_KeepsSmallImages(t *testing.T) {
	uri, err := workspace.Preview(encodePNG(t, 40, 60), workspace.PreviewSize)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	data, _ := base64.StdEncoding.DecodeString(strings.TrimPrefix(uri, "data:image/jpeg;base64,"))
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode jpeg: %v", err)
	}
	if cfg.Width != 40 || cfg.Height != 60 {
		t.Fatalf("expected 40x60, got %dx%d", cfg.Width, cfg.Height)
	}
}

func TestPreview_RejectsNonImage(t *testing.T) {
	if _, err := workspace.Preview([]byte("not an image"), workspace.PreviewSize); err == nil {
		t.Fatal("expected error for non-image data")
	}
}
