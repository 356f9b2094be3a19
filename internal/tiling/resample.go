package tiling

import (
	"image"
	"image/color"

	"github.com/corpsj/weet-ai/internal/domain"
	"golang.org/x/image/draw"
)

// Resample scales img to width x height with Catmull-Rom interpolation.
func Resample(img *domain.ImageBuffer, width, height int) *domain.ImageBuffer {
	if img.Width == width && img.Height == height {
		return img
	}

	src := toRGBA(img)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	return fromRGBA(dst)
}

// ResampleTensor is Resample for normalized tensors.
func ResampleTensor(t *Tensor, width, height int) *Tensor {
	return FromImage(Resample(t.ToImage(), width, height))
}

func toRGBA(img *domain.ImageBuffer) *image.RGBA {
	rgba := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			o := img.Offset(x, y)
			rgba.SetRGBA(x, y, color.RGBA{R: img.Pix[o], G: img.Pix[o+1], B: img.Pix[o+2], A: 0xff})
		}
	}
	return rgba
}

func fromRGBA(rgba *image.RGBA) *domain.ImageBuffer {
	b := rgba.Bounds()
	img := domain.NewImageBuffer(b.Dx(), b.Dy())
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			c := rgba.RGBAAt(b.Min.X+x, b.Min.Y+y)
			o := img.Offset(x, y)
			img.Pix[o], img.Pix[o+1], img.Pix[o+2] = c.R, c.G, c.B
		}
	}
	return img
}
