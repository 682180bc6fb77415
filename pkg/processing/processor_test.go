package processing

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// createTestPNG creates an encoded PNG with a bright square in the middle
func createTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 && y > height/3 && y < 2*height/3 {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.RGBA{64, 64, 64, 255})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestPrepareDisabledPassesThrough(t *testing.T) {
	p := NewProcessor(0, 85)
	data := []byte("not even an image")

	out, err := p.PrepareForModel(data)
	if err != nil {
		t.Fatalf("PrepareForModel: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("expected bytes to pass through unchanged")
	}
}

func TestPrepareSmallImageUnchanged(t *testing.T) {
	p := NewProcessor(256, 85)
	data := createTestPNG(t, 100, 80)

	out, err := p.PrepareForModel(data)
	if err != nil {
		t.Fatalf("PrepareForModel: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Error("expected image within limits to be sent as stored")
	}
}

func TestPrepareDownscalesLongSide(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		wantW, wantH  int
	}{
		{"landscape", 400, 200, 100, 50},
		{"portrait", 200, 400, 50, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProcessor(100, 90)
			out, err := p.PrepareForModel(createTestPNG(t, tt.width, tt.height))
			if err != nil {
				t.Fatalf("PrepareForModel: %v", err)
			}

			img, format, err := image.Decode(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("decode prepared image: %v", err)
			}
			if format != "jpeg" {
				t.Errorf("expected jpeg, got %s", format)
			}
			b := img.Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("expected %dx%d, got %dx%d", tt.wantW, tt.wantH, b.Dx(), b.Dy())
			}
		})
	}
}

func TestPrepareRejectsGarbage(t *testing.T) {
	p := NewProcessor(100, 90)
	if _, err := p.PrepareForModel([]byte("garbage")); err == nil {
		t.Error("expected decode error")
	}
}

func TestNewProcessorClampsQuality(t *testing.T) {
	if p := NewProcessor(10, 0); p.quality != 85 {
		t.Errorf("expected default quality 85, got %d", p.quality)
	}
	if p := NewProcessor(10, 101); p.quality != 85 {
		t.Errorf("expected default quality 85, got %d", p.quality)
	}
}
