// Package upscale turns a client request into an upscaled image: decode, pick the model,
// borrow the session for it and run inference.
package upscale

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/corpsj/weet-ai/internal/adapter/metrics"
	"github.com/corpsj/weet-ai/internal/codec"
	"github.com/corpsj/weet-ai/internal/domain"
	"github.com/jonboulle/clockwork"
)

// SessionProvider hands out ready sessions. Implemented by registry.Registry.
type SessionProvider interface {
	GetSession(ctx context.Context, model domain.ModelName, scale int) (domain.Session, error)
}

// Request carries the image either as Raw bytes or as a Base64 string (data URI allowed).
// Raw wins when both are set.
type Request struct {
	Base64 string
	Raw    []byte
	Scale  int
	Model  string
}

type Result struct {
	Image        *domain.ImageBuffer
	OriginalSize domain.Dimensions
	UpscaledSize domain.Dimensions
	Model        domain.ModelName
	Scale        int
}

type Upscaler struct {
	sessions SessionProvider
	decoder  *codec.Decoder
	metrics  *metrics.InferenceMetrics
	clock    clockwork.Clock
}

type Option func(*Upscaler)

func WithMetrics(m *metrics.InferenceMetrics) Option {
	return func(u *Upscaler) { u.metrics = m }
}

func WithClock(c clockwork.Clock) Option {
	return func(u *Upscaler) { u.clock = c }
}

func New(sessions SessionProvider, decoder *codec.Decoder, opts ...Option) *Upscaler {
	u := &Upscaler{
		sessions: sessions,
		decoder:  decoder,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// ResolveModel maps a scale and an optional model override to a catalog model.
// Scale 2 always uses the x2 model; scale 4 honours the override.
func ResolveModel(scale int, requested string) (domain.ModelName, error) {
	switch scale {
	case 2:
		return domain.ModelForScale2, nil
	case 4:
		if requested == "" {
			return domain.DefaultModelX4, nil
		}
		return domain.ParseModelName(requested)
	default:
		return "", fmt.Errorf("%w: got %d", domain.ErrInvalidScale, scale)
	}
}

// Upscale decodes the request image and runs it through the session for the resolved model.
// Decode and resolve failures return before any session is requested.
func (u *Upscaler) Upscale(ctx context.Context, req Request) (*Result, error) {
	img, err := u.decode(req)
	if err != nil {
		u.count("invalid_image")
		return nil, err
	}

	model, err := ResolveModel(req.Scale, req.Model)
	if err != nil {
		u.count("invalid_request")
		return nil, err
	}

	sess, err := u.sessions.GetSession(ctx, model, req.Scale)
	if err != nil {
		u.count(outcome(err))
		return nil, err
	}

	if u.metrics != nil {
		u.metrics.InputPixels.Observe(float64(img.Width * img.Height))
	}

	start := u.clock.Now()
	out, err := sess.Enhance(ctx, img, req.Scale)
	elapsed := u.clock.Since(start)
	if err != nil {
		u.count(outcome(err))
		if !errors.Is(err, domain.ErrInference) {
			err = fmt.Errorf("%w: %w", domain.ErrInference, err)
		}
		return nil, err
	}

	want := domain.Dimensions{Width: img.Width * req.Scale, Height: img.Height * req.Scale}
	if out.Dimensions() != want {
		u.count("inference_error")
		return nil, fmt.Errorf("%w: session %s produced %dx%d, want %dx%d",
			domain.ErrInference, sess.Key(), out.Width, out.Height, want.Width, want.Height)
	}

	u.count("success")
	if u.metrics != nil {
		u.metrics.Duration.WithLabelValues(string(model), strconv.Itoa(req.Scale)).Observe(elapsed.Seconds())
	}

	slog.Debug("Upscaled image",
		"model", model, "scale", req.Scale,
		"width", img.Width, "height", img.Height,
		"duration", elapsed)

	return &Result{
		Image:        out,
		OriginalSize: img.Dimensions(),
		UpscaledSize: out.Dimensions(),
		Model:        model,
		Scale:        req.Scale,
	}, nil
}

func (u *Upscaler) decode(req Request) (*domain.ImageBuffer, error) {
	raw := req.Raw
	if raw == nil {
		b, err := codec.DecodeBase64(req.Base64)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	img, _, err := u.decoder.Decode(raw)
	return img, err
}

func (u *Upscaler) count(result string) {
	if u.metrics != nil {
		u.metrics.Requests.WithLabelValues(result).Inc()
	}
}

func outcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrWeightFetch):
		return "weights_error"
	case errors.Is(err, domain.ErrInvalidScale), errors.Is(err, domain.ErrUnknownModel):
		return "invalid_request"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "inference_error"
	}
}
