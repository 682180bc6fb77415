package processing

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Processor prepares stored images before they are sent to a vision model
type Processor struct {
	maxDim  int
	quality int
}

// NewProcessor creates a processor that downsizes images whose long side
// exceeds maxDim and re-encodes them as JPEG at quality. maxDim <= 0
// disables preparation.
func NewProcessor(maxDim, quality int) *Processor {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &Processor{maxDim: maxDim, quality: quality}
}

// Enabled reports whether images are rewritten before sending
func (p *Processor) Enabled() bool {
	return p != nil && p.maxDim > 0
}

// PrepareForModel returns the bytes to send for data. Images already within
// the size limit, and all images when preparation is disabled, are returned
// unchanged.
func (p *Processor) PrepareForModel(data []byte) ([]byte, error) {
	if !p.Enabled() {
		return data, nil
	}

	img, err := p.Decode(data)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= p.maxDim && h <= p.maxDim {
		return data, nil
	}
	if w >= h {
		img = imaging.Resize(img, p.maxDim, 0, imaging.Lanczos)
	} else {
		img = imaging.Resize(img, 0, p.maxDim, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(p.quality)); err != nil {
		return nil, fmt.Errorf("failed to encode prepared image: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode decodes an image from byte data with WebP support
func (p *Processor) Decode(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	// Fallback: explicit WebP decode for variants x/image does not handle
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("image: unknown or unsupported format")
}
