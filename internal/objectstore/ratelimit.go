package objectstore

import (
	"context"

	"golang.org/x/time/rate"
)

type rateLimitedStore struct {
	Store
	limiter *rate.Limiter
}

// WithRateLimit makes every GetObject wait for the limiter first.
// Listing calls are not limited.
func WithRateLimit(store Store, limiter *rate.Limiter) Store {
	return &rateLimitedStore{Store: store, limiter: limiter}
}

func (s *rateLimitedStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, wrapErr(err, "ratelimit", "wait", key)
	}
	return s.Store.GetObject(ctx, key)
}
