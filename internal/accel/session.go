package accel

import (
	"context"
	"sync"

	"github.com/corpsj/weet-ai/internal/domain"
	"github.com/corpsj/weet-ai/internal/tiling"
)

// session binds a tiling engine to the resources a runtime allocated for it.
type session struct {
	key     domain.SessionKey
	engine  *tiling.Engine
	release func() error

	closeOnce sync.Once
	closeErr  error
}

func newSession(key domain.SessionKey, net tiling.Network, tile domain.TileConfig, release func() error) *session {
	return &session{
		key:     key,
		engine:  tiling.NewEngine(net, tile),
		release: release,
	}
}

func (s *session) Key() domain.SessionKey {
	return s.key
}

func (s *session) Enhance(ctx context.Context, img *domain.ImageBuffer, outscale int) (*domain.ImageBuffer, error) {
	return s.engine.Enhance(ctx, img, outscale)
}

func (s *session) Close() error {
	s.closeOnce.Do(func() {
		if s.release != nil {
			s.closeErr = s.release()
		}
	})
	return s.closeErr
}
