package capture

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	"testing"

	"github.com/mohammad-safakhou/postshot/internal/browser"
)

func TestCropExactAndContained(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 100, 50))
	tests := []struct {
		name string
		box  browser.Box
		ok   bool
	}{
		{"inside", browser.Box{X: 10, Y: 5, Width: 30, Height: 20}, true},
		{"full raster", browser.Box{X: 0, Y: 0, Width: 100, Height: 50}, true},
		{"touches right edge", browser.Box{X: 70, Y: 0, Width: 30, Height: 10}, true},
		{"overflows right", browser.Box{X: 71, Y: 0, Width: 30, Height: 10}, false},
		{"overflows bottom", browser.Box{X: 0, Y: 45, Width: 10, Height: 6}, false},
		{"negative origin", browser.Box{X: -1, Y: 0, Width: 10, Height: 10}, false},
		{"zero area", browser.Box{X: 1, Y: 1, Width: 0, Height: 10}, false},
	}
	for _, tt := range tests {
		got, err := Crop(src, tt.box)
		if !tt.ok {
			if !errors.Is(err, ErrCropBounds) {
				t.Fatalf("%s: expected ErrCropBounds, got %v", tt.name, err)
			}
			if got != nil {
				t.Fatalf("%s: a rejected crop must not return an image", tt.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: Crop error = %v", tt.name, err)
		}
		if b := got.Bounds(); b.Min != (image.Point{}) || b.Dx() != tt.box.Width || b.Dy() != tt.box.Height {
			t.Fatalf("%s: got bounds %v", tt.name, b)
		}
	}
}

func TestCropHonoursRasterOrigin(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 20, 20)).SubImage(image.Rect(5, 5, 20, 20))
	if _, err := Crop(src, browser.Box{X: 0, Y: 0, Width: 15, Height: 15}); err != nil {
		t.Fatalf("box relative to origin should fit: %v", err)
	}
	if _, err := Crop(src, browser.Box{X: 1, Y: 0, Width: 15, Height: 15}); !errors.Is(err, ErrCropBounds) {
		t.Fatalf("expected ErrCropBounds, got %v", err)
	}
}

func TestEncodeFormats(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	data, err := Encode(img, FormatJPEG, 0)
	if err != nil {
		t.Fatalf("Encode jpeg: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("jpeg output does not decode: %v", err)
	}
	if _, err := Encode(img, Format("webp"), 0); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
	if f, err := ParseFormat("JPG"); err != nil || f != FormatJPEG {
		t.Fatalf("ParseFormat(JPG) = %v, %v", f, err)
	}
}
