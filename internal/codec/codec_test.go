package codec

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/corpsj/weet-ai/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func solidNRGBA(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestDecodeBase64(t *testing.T) {
	payload := []byte("hello image")
	encoded := base64.StdEncoding.EncodeToString(payload)

	tests := []struct {
		name  string
		input string
	}{
		{"plain", encoded},
		{"data uri", "data:image/png;base64," + encoded},
		{"unpadded", strings.TrimRight(encoded, "=")},
		{"any header", "whatever," + encoded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBase64(tt.input)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestDecodeBase64_Invalid(t *testing.T) {
	for _, input := range []string{"", "data:image/png;base64,", "!!!not base64!!!"} {
		_, err := DecodeBase64(input)
		assert.ErrorIs(t, err, domain.ErrInvalidImage, "input %q", input)
	}
}

func TestDecode_PNGDropsAlpha(t *testing.T) {
	src := solidNRGBA(3, 2, color.NRGBA{R: 10, G: 20, B: 30, A: 40})

	buf, format, err := NewDecoder(0).Decode(pngBytes(t, src))
	require.NoError(t, err)

	assert.Equal(t, "png", format)
	assert.Equal(t, 3, buf.Width)
	assert.Equal(t, 2, buf.Height)
	assert.Equal(t, []uint8{10, 20, 30}, buf.Pix[:3])
}

func TestDecode_JPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, solidNRGBA(8, 8, color.NRGBA{R: 200, G: 100, B: 50, A: 255}), nil))

	img, format, err := NewDecoder(0).Decode(buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, "jpeg", format)
	assert.Equal(t, domain.Dimensions{Width: 8, Height: 8}, img.Dimensions())
	assert.InDelta(t, 200, int(img.Pix[0]), 6)
}

func TestDecode_RejectsGarbage(t *testing.T) {
	_, _, err := NewDecoder(0).Decode([]byte("definitely not an image"))
	assert.ErrorIs(t, err, domain.ErrInvalidImage)

	_, _, err = NewDecoder(0).Decode(nil)
	assert.ErrorIs(t, err, domain.ErrInvalidImage)
}

func TestDecode_MaxPixels(t *testing.T) {
	data := pngBytes(t, solidNRGBA(10, 10, color.NRGBA{A: 255}))

	_, _, err := NewDecoder(99).Decode(data)
	assert.ErrorIs(t, err, domain.ErrInvalidImage)

	_, _, err = NewDecoder(100).Decode(data)
	assert.NoError(t, err)
}

func TestEncodePNG(t *testing.T) {
	buf := domain.NewImageBuffer(2, 2)
	copy(buf.Pix, []uint8{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12})

	data, err := EncodePNG(buf)
	require.NoError(t, err)

	decoded, _, err := NewDecoder(0).Decode(data)
	require.NoError(t, err)
	assert.Equal(t, buf.Pix, decoded.Pix)
}

func TestDataURI(t *testing.T) {
	uri := DataURI([]byte{0x89, 'P', 'N', 'G'})

	assert.True(t, strings.HasPrefix(uri, "data:image/png;base64,"))

	back, err := DecodeBase64(uri)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, back)
}
