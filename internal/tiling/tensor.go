package tiling

import (
	"math"

	"github.com/corpsj/weet-ai/internal/domain"
)

// Tensor is a planar CHW float32 image with three channels and values in [0, 1].
type Tensor struct {
	Width  int
	Height int
	Data   []float32
}

func NewTensor(width, height int) *Tensor {
	return &Tensor{
		Width:  width,
		Height: height,
		Data:   make([]float32, 3*width*height),
	}
}

func (t *Tensor) plane(c int) []float32 {
	n := t.Width * t.Height
	return t.Data[c*n : (c+1)*n]
}

// FromImage converts an 8-bit RGB buffer into a normalized tensor.
func FromImage(img *domain.ImageBuffer) *Tensor {
	t := NewTensor(img.Width, img.Height)
	n := img.Width * img.Height
	for i := 0; i < n; i++ {
		t.Data[i] = float32(img.Pix[i*3]) / 255
		t.Data[n+i] = float32(img.Pix[i*3+1]) / 255
		t.Data[2*n+i] = float32(img.Pix[i*3+2]) / 255
	}
	return t
}

// ToImage clamps to [0, 1] and rounds back to 8-bit RGB.
func (t *Tensor) ToImage() *domain.ImageBuffer {
	img := domain.NewImageBuffer(t.Width, t.Height)
	n := t.Width * t.Height
	for i := 0; i < n; i++ {
		img.Pix[i*3] = toByte(t.Data[i])
		img.Pix[i*3+1] = toByte(t.Data[n+i])
		img.Pix[i*3+2] = toByte(t.Data[2*n+i])
	}
	return img
}

func toByte(v float32) uint8 {
	if v <= 0 || math.IsNaN(float64(v)) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(math.Round(float64(v) * 255))
}

// Crop copies the region [x0,x1) x [y0,y1).
func (t *Tensor) Crop(x0, y0, x1, y1 int) *Tensor {
	out := NewTensor(x1-x0, y1-y0)
	for c := 0; c < 3; c++ {
		src, dst := t.plane(c), out.plane(c)
		for y := y0; y < y1; y++ {
			copy(dst[(y-y0)*out.Width:(y-y0+1)*out.Width], src[y*t.Width+x0:y*t.Width+x1])
		}
	}
	return out
}

// Paste writes src into t with its top-left corner at (x, y).
func (t *Tensor) Paste(src *Tensor, x, y int) {
	for c := 0; c < 3; c++ {
		s, d := src.plane(c), t.plane(c)
		for row := 0; row < src.Height; row++ {
			copy(d[(y+row)*t.Width+x:(y+row)*t.Width+x+src.Width], s[row*src.Width:(row+1)*src.Width])
		}
	}
}

// PadReflect extends the right and bottom edges by mirroring, excluding the edge pixel.
func (t *Tensor) PadReflect(right, bottom int) *Tensor {
	if right == 0 && bottom == 0 {
		return t
	}
	out := NewTensor(t.Width+right, t.Height+bottom)
	for c := 0; c < 3; c++ {
		src, dst := t.plane(c), out.plane(c)
		for y := 0; y < out.Height; y++ {
			sy := reflectIndex(y, t.Height)
			for x := 0; x < out.Width; x++ {
				dst[y*out.Width+x] = src[sy*t.Width+reflectIndex(x, t.Width)]
			}
		}
	}
	return out
}

func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}
