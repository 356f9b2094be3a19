// Package codec converts between client image payloads and the RGB buffers sessions operate on.
package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/corpsj/weet-ai/internal/domain"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const dataURIPrefix = "data:image/png;base64,"

// Decoder turns encoded image bytes into RGB buffers.
type Decoder struct {
	maxPixels int
}

// NewDecoder returns a Decoder rejecting images with more than maxPixels pixels.
// maxPixels <= 0 disables the check.
func NewDecoder(maxPixels int) *Decoder {
	return &Decoder{maxPixels: maxPixels}
}

// DecodeBase64 decodes a base64 payload, optionally prefixed with a data URI header.
// Everything up to and including the first comma is discarded.
func DecodeBase64(s string) ([]byte, error) {
	if _, payload, found := strings.Cut(s, ","); found {
		s = payload
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty payload", domain.ErrInvalidImage)
	}

	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		if raw, rawErr := base64.RawStdEncoding.DecodeString(s); rawErr == nil {
			return raw, nil
		}
		return nil, fmt.Errorf("%w: base64: %v", domain.ErrInvalidImage, err)
	}
	return b, nil
}

// Decode parses PNG, JPEG, GIF, BMP or WebP data and returns it as RGB with alpha dropped.
// It also returns the detected format name.
func (d *Decoder) Decode(b []byte) (*domain.ImageBuffer, string, error) {
	if len(b) == 0 {
		return nil, "", fmt.Errorf("%w: empty payload", domain.ErrInvalidImage)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", fmt.Errorf("%w: zero-sized %s image", domain.ErrInvalidImage, format)
	}
	if d.maxPixels > 0 && cfg.Width*cfg.Height > d.maxPixels {
		return nil, "", fmt.Errorf("%w: %dx%d exceeds %d pixels", domain.ErrInvalidImage, cfg.Width, cfg.Height, d.maxPixels)
	}

	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
	}

	return toRGB(img), format, nil
}

func toRGB(img image.Image) *domain.ImageBuffer {
	bounds := img.Bounds()
	buf := domain.NewImageBuffer(bounds.Dx(), bounds.Dy())

	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < buf.Height; y++ {
			row := src.Pix[y*src.Stride:]
			for x := 0; x < buf.Width; x++ {
				o := buf.Offset(x, y)
				copy(buf.Pix[o:o+3], row[x*4:x*4+3])
			}
		}
	default:
		for y := 0; y < buf.Height; y++ {
			for x := 0; x < buf.Width; x++ {
				c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
				o := buf.Offset(x, y)
				buf.Pix[o], buf.Pix[o+1], buf.Pix[o+2] = c.R, c.G, c.B
			}
		}
	}

	return buf
}

// EncodePNG encodes an RGB buffer as an opaque PNG.
func EncodePNG(buf *domain.ImageBuffer) ([]byte, error) {
	img := image.NewNRGBA(image.Rect(0, 0, buf.Width, buf.Height))
	for y := 0; y < buf.Height; y++ {
		for x := 0; x < buf.Width; x++ {
			o := buf.Offset(x, y)
			i := img.PixOffset(x, y)
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = buf.Pix[o], buf.Pix[o+1], buf.Pix[o+2], 0xff
		}
	}

	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return out.Bytes(), nil
}

// DataURI wraps PNG bytes as a data:image/png;base64 URI.
func DataURI(pngBytes []byte) string {
	return dataURIPrefix + base64.StdEncoding.EncodeToString(pngBytes)
}
