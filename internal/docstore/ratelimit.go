package docstore

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/danieljhkim/docsnap/internal/storepath"
)

// rateLimited waits on a shared limiter before every remote call.
type rateLimited struct {
	next    Store
	limiter *rate.Limiter
}

// WithRateLimit wraps store so that no more than limiter allows reaches the
// backend. A nil limiter returns store unchanged.
func WithRateLimit(store Store, limiter *rate.Limiter) Store {
	if limiter == nil {
		return store
	}
	return &rateLimited{next: store, limiter: limiter}
}

// NewLimiter returns a limiter for perSecond requests, or nil when perSecond
// is not positive.
func NewLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

func (s *rateLimited) ListCollections(ctx context.Context, parent storepath.Path) ([]string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.next.ListCollections(ctx, parent)
}

func (s *rateLimited) ListDocuments(ctx context.Context, collection storepath.Path) ([]string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.next.ListDocuments(ctx, collection)
}

func (s *rateLimited) Get(ctx context.Context, doc storepath.Path) (map[string]any, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return s.next.Get(ctx, doc)
}

func (s *rateLimited) Set(ctx context.Context, doc storepath.Path, data map[string]any) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	return s.next.Set(ctx, doc, data)
}

// Ref is local and does not consume the limiter.
func (s *rateLimited) Ref(doc storepath.Path) (Ref, error) {
	return s.next.Ref(doc)
}
