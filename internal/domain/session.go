package domain

import "context"

// TileConfig controls how a session partitions images for bounded-memory inference.
type TileConfig struct {
	TileSize int
	TilePad  int
	PrePad   int
	Half     bool
}

// DefaultTileConfig matches the settings every session is built with unless configured otherwise.
func DefaultTileConfig(half bool) TileConfig {
	return TileConfig{TileSize: 512, TilePad: 10, PrePad: 0, Half: half}
}

// Session is a loaded, ready-to-run upscaler bound to one model and tile configuration.
type Session interface {
	Key() SessionKey
	Enhance(ctx context.Context, img *ImageBuffer, outscale int) (*ImageBuffer, error)
	Close() error
}

// Runtime constructs sessions on the accelerator.
type Runtime interface {
	Name() string
	NewSession(ctx context.Context, key SessionKey, spec ModelSpec, weightsPath string, tile TileConfig) (Session, error)
}

// WeightsState reports whether a model's weights are present locally.
type WeightsState string

const (
	WeightsReady       WeightsState = "ready"
	WeightsDownloading WeightsState = "downloading"
	WeightsNotFound    WeightsState = "not_found"
)

// WeightsProvider resolves a model to a readable local weights path, fetching it if absent.
type WeightsProvider interface {
	Ensure(ctx context.Context, spec ModelSpec) (string, error)
	Status(spec ModelSpec) WeightsState
}

// Device describes the accelerator sessions run on.
type Device struct {
	Kind            string `json:"kind"`
	Name            string `json:"name,omitempty"`
	Available       bool   `json:"available"`
	HalfCapable     bool   `json:"half_capable"`
	CPUModel        string `json:"cpu_model,omitempty"`
	HostMemoryBytes uint64 `json:"host_memory_bytes,omitempty"`
}

const (
	DeviceCUDA = "cuda"
	DeviceCPU  = "cpu"
)
