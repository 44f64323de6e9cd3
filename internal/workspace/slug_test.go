package workspace_test

import (
	"testing"

	"github.com/msomdec/tagbatch/internal/workspace"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Café Photo.JPG", "cafe-photo.jpg"},
		{"IMG_0042.jpeg", "img-0042.jpeg"},
		{"  spaced out  .png", "spaced-out.png"},
		{"Ünïcödé & Naïve.webp", "unicode-naive.webp"},
		{"no-extension", "no-extension"},
		{"日本語.png", "image.png"},
		{"", "image"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := workspace.Slugify(tt.in); got != tt.want {
				t.Fatalf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
