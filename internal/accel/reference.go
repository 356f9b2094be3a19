package accel

import (
	"context"

	"github.com/corpsj/weet-ai/internal/domain"
	"github.com/corpsj/weet-ai/internal/tiling"
)

// ReferenceRuntime runs a Catmull-Rom resampler at each model's native scale on the CPU.
// It needs no weights, which makes it suitable for development and tests.
type ReferenceRuntime struct{}

var _ domain.Runtime = ReferenceRuntime{}

func (ReferenceRuntime) Name() string {
	return "reference"
}

func (ReferenceRuntime) NewSession(_ context.Context, key domain.SessionKey, spec domain.ModelSpec, _ string, tile domain.TileConfig) (domain.Session, error) {
	return newSession(key, referenceNetwork{scale: spec.NativeScale}, tile, nil), nil
}

type referenceNetwork struct {
	scale int
}

func (n referenceNetwork) Scale() int {
	return n.scale
}

func (n referenceNetwork) Infer(_ context.Context, in *tiling.Tensor) (*tiling.Tensor, error) {
	return tiling.ResampleTensor(in, in.Width*n.scale, in.Height*n.scale), nil
}
