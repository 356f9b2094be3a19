// Package tiling runs a super-resolution network over arbitrary-sized images in overlapping
// tiles so peak memory stays bounded, then stitches the tiles back without seams.
package tiling

import (
	"context"
	"fmt"

	"github.com/corpsj/weet-ai/internal/domain"
)

// Network upscales a single tensor by its native scale.
type Network interface {
	Scale() int
	Infer(ctx context.Context, in *Tensor) (*Tensor, error)
}

type Engine struct {
	net Network
	cfg domain.TileConfig
}

func NewEngine(net Network, cfg domain.TileConfig) *Engine {
	return &Engine{net: net, cfg: cfg}
}

func (e *Engine) Config() domain.TileConfig {
	return e.cfg
}

// Enhance upscales img by the network's native scale and then resamples to outscale
// when the two differ. The result is always (Width*outscale) x (Height*outscale).
func (e *Engine) Enhance(ctx context.Context, img *domain.ImageBuffer, outscale int) (*domain.ImageBuffer, error) {
	if img == nil || img.Width <= 0 || img.Height <= 0 || len(img.Pix) != img.Width*img.Height*3 {
		return nil, fmt.Errorf("%w: empty or inconsistent buffer", domain.ErrInvalidImage)
	}
	if outscale <= 0 {
		return nil, fmt.Errorf("%w: got %d", domain.ErrInvalidScale, outscale)
	}

	scale := e.net.Scale()
	w, h := img.Width, img.Height

	t := FromImage(img)
	if e.cfg.PrePad > 0 {
		t = t.PadReflect(e.cfg.PrePad, e.cfg.PrePad)
	}
	if mod := modScale(scale); mod > 1 {
		t = t.PadReflect(padTo(t.Width, mod), padTo(t.Height, mod))
	}

	var (
		out *Tensor
		err error
	)
	if e.cfg.TileSize > 0 {
		out, err = e.tileProcess(ctx, t)
	} else {
		out, err = e.infer(ctx, t)
	}
	if err != nil {
		return nil, err
	}

	// Mod and pre padding were both added on the right/bottom edges.
	result := out.Crop(0, 0, w*scale, h*scale).ToImage()

	if outscale != scale {
		result = Resample(result, w*outscale, h*outscale)
	}
	return result, nil
}

func (e *Engine) tileProcess(ctx context.Context, in *Tensor) (*Tensor, error) {
	scale := e.net.Scale()
	size, pad := e.cfg.TileSize, e.cfg.TilePad

	out := NewTensor(in.Width*scale, in.Height*scale)
	tilesX := ceilDiv(in.Width, size)
	tilesY := ceilDiv(in.Height, size)

	for y := 0; y < tilesY; y++ {
		for x := 0; x < tilesX; x++ {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w: %w", domain.ErrInference, err)
			}

			x0, y0 := x*size, y*size
			x1, y1 := min(x0+size, in.Width), min(y0+size, in.Height)

			px0, py0 := max(x0-pad, 0), max(y0-pad, 0)
			px1, py1 := min(x1+pad, in.Width), min(y1+pad, in.Height)

			tileOut, err := e.infer(ctx, in.Crop(px0, py0, px1, py1))
			if err != nil {
				return nil, fmt.Errorf("tile %d/%d: %w", y*tilesX+x+1, tilesX*tilesY, err)
			}

			ox0, oy0 := (x0-px0)*scale, (y0-py0)*scale
			valid := tileOut.Crop(ox0, oy0, ox0+(x1-x0)*scale, oy0+(y1-y0)*scale)
			out.Paste(valid, x0*scale, y0*scale)
		}
	}

	return out, nil
}

func (e *Engine) infer(ctx context.Context, in *Tensor) (*Tensor, error) {
	scale := e.net.Scale()
	out, err := e.net.Infer(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInference, err)
	}
	if out == nil || out.Width != in.Width*scale || out.Height != in.Height*scale || len(out.Data) != 3*out.Width*out.Height {
		return nil, fmt.Errorf("%w: network returned unexpected shape for %dx%d input", domain.ErrInference, in.Width, in.Height)
	}
	return out, nil
}

// modScale is the size multiple the network needs its input padded to.
func modScale(scale int) int {
	switch scale {
	case 2:
		return 2
	case 1:
		return 4
	default:
		return 1
	}
}

func padTo(n, mod int) int {
	if r := n % mod; r != 0 {
		return mod - r
	}
	return 0
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
