package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ModelName identifies one of the supported Real-ESRGAN variants.
type ModelName string

const (
	ModelX4Plus      ModelName = "RealESRGAN_x4plus"
	ModelX4PlusAnime ModelName = "RealESRGAN_x4plus_anime_6B"
	ModelX2Plus      ModelName = "RealESRGAN_x2plus"
)

// DefaultModelX4 is used for scale 4 when the caller does not pick a model.
// ModelForScale2 is forced for every scale 2 request.
const (
	DefaultModelX4 = ModelX4Plus
	ModelForScale2 = ModelX2Plus
)

// Arch holds the fixed RRDBNet parameters the weights were trained with.
type Arch struct {
	InChannels  int `json:"in_channels"`
	OutChannels int `json:"out_channels"`
	NumFeat     int `json:"num_feat"`
	NumBlock    int `json:"num_block"`
	NumGrowCh   int `json:"num_grow_ch"`
}

// DefaultWeightsBaseURL hosts the ONNX exports of every catalog entry as
// <base>/<release>/<weights file>, mirroring the upstream release tags.
const DefaultWeightsBaseURL = "https://github.com/corpsj/weet-ai/releases/download"

// ModelSpec describes one catalog entry. Values are never mutated after init.
// Upstream is the published PyTorch checkpoint the ONNX export was made from.
type ModelSpec struct {
	Name        ModelName `json:"name"`
	NativeScale int       `json:"native_scale"`
	Arch        Arch      `json:"arch"`
	WeightsFile string    `json:"weights_file"`
	Release     string    `json:"release"`
	Upstream    string    `json:"upstream"`
}

// SourceURL returns the download location of the weights under baseURL, which must be an
// absolute http(s) URL.
func (s ModelSpec) SourceURL(baseURL string) (string, error) {
	if baseURL == "" {
		return "", errors.New("no download URL configured")
	}
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("download URL %q is not an absolute http(s) URL", baseURL)
	}
	return u.JoinPath(s.Release, s.WeightsFile).String(), nil
}

var catalog = []ModelSpec{
	{
		Name:        ModelX4Plus,
		NativeScale: 4,
		Arch:        Arch{InChannels: 3, OutChannels: 3, NumFeat: 64, NumBlock: 23, NumGrowCh: 32},
		WeightsFile: "RealESRGAN_x4plus.onnx",
		Release:     "v0.1.0",
		Upstream:    "https://github.com/xinntao/Real-ESRGAN/releases/download/v0.1.0/RealESRGAN_x4plus.pth",
	},
	{
		Name:        ModelX4PlusAnime,
		NativeScale: 4,
		Arch:        Arch{InChannels: 3, OutChannels: 3, NumFeat: 64, NumBlock: 6, NumGrowCh: 32},
		WeightsFile: "RealESRGAN_x4plus_anime_6B.onnx",
		Release:     "v0.2.2.4",
		Upstream:    "https://github.com/xinntao/Real-ESRGAN/releases/download/v0.2.2.4/RealESRGAN_x4plus_anime_6B.pth",
	},
	{
		Name:        ModelX2Plus,
		NativeScale: 2,
		Arch:        Arch{InChannels: 3, OutChannels: 3, NumFeat: 64, NumBlock: 23, NumGrowCh: 32},
		WeightsFile: "RealESRGAN_x2plus.onnx",
		Release:     "v0.2.1",
		Upstream:    "https://github.com/xinntao/Real-ESRGAN/releases/download/v0.2.1/RealESRGAN_x2plus.pth",
	},
}

// Catalog returns a copy of every supported model spec, in declaration order.
func Catalog() []ModelSpec {
	out := make([]ModelSpec, len(catalog))
	copy(out, catalog)
	return out
}

// LookupModel returns the spec for name or ErrUnknownModel.
func LookupModel(name ModelName) (ModelSpec, error) {
	for _, spec := range catalog {
		if spec.Name == name {
			return spec, nil
		}
	}
	return ModelSpec{}, fmt.Errorf("%w: %q", ErrUnknownModel, string(name))
}

// ParseModelName validates a user supplied model string against the catalog.
func ParseModelName(s string) (ModelName, error) {
	spec, err := LookupModel(ModelName(s))
	if err != nil {
		return "", err
	}
	return spec.Name, nil
}

// SessionKey identifies one cached inference session.
type SessionKey struct {
	Model ModelName
	Scale int
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%s_%d", k.Model, k.Scale)
}

// ParseSessionKey parses "model:scale" as used by the PREWARM setting.
func ParseSessionKey(s string) (SessionKey, error) {
	name, scaleStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return SessionKey{}, fmt.Errorf("session key %q must look like model:scale", s)
	}

	model, err := ParseModelName(name)
	if err != nil {
		return SessionKey{}, err
	}

	scale, err := strconv.Atoi(scaleStr)
	if err != nil || scale <= 0 {
		return SessionKey{}, fmt.Errorf("%w: %q", ErrInvalidScale, scaleStr)
	}

	return SessionKey{Model: model, Scale: scale}, nil
}
