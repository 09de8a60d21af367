package weather

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// Service defaults.
const (
	// defaultCacheTTL is how long a snapshot stays fresh. Several zones
	// often fire within the same minute; one API call covers them all.
	defaultCacheTTL = 10 * time.Minute

	// breakerFailureThreshold trips the breaker after this many
	// consecutive provider failures.
	breakerFailureThreshold = 3

	// breakerOpenFor is how long the breaker stays open before a probe.
	breakerOpenFor = 5 * time.Minute

	// maxFetchRetries bounds the per-call retry loop.
	maxFetchRetries = 2
)

// Service wraps a Provider with retry, circuit breaking, and caching.
//
// The scheduler asks for a snapshot before every decision. The service
// keeps the provider from being hammered (cache), rides out transient
// API hiccups (exponential backoff), and stops calling a dead API
// entirely for a cool-down period (circuit breaker).
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Service struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
	ttl      time.Duration

	mu     sync.Mutex
	cached *Snapshot
}

// NewService creates a resilient weather service around a provider.
func NewService(provider Provider) *Service {
	return &Service{
		provider: provider,
		ttl:      defaultCacheTTL,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    provider.Name(),
			Timeout: breakerOpenFor,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= breakerFailureThreshold
			},
		}),
	}
}

// Snapshot returns a fresh-enough weather snapshot.
//
// Returns the cached snapshot when it is younger than the TTL.
// Otherwise fetches from the provider with retries; on failure the
// error is returned and the caller decides whether to fail open.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - *Snapshot: Weather conditions, nil when unavailable
//   - error: Provider or breaker error when no snapshot could be produced
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	s.mu.Lock()
	if s.cached != nil && time.Since(s.cached.FetchedAt) < s.ttl {
		snap := s.cached
		s.mu.Unlock()
		return snap, nil
	}
	s.mu.Unlock()

	result, err := s.breaker.Execute(func() (interface{}, error) {
		return s.fetchWithRetry(ctx)
	})
	if err != nil {
		return nil, err
	}

	snap := result.(*Snapshot)

	s.mu.Lock()
	s.cached = snap
	s.mu.Unlock()

	return snap, nil
}

// fetchWithRetry calls the provider with exponential backoff.
func (s *Service) fetchWithRetry(ctx context.Context) (*Snapshot, error) {
	var snap *Snapshot

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(func() error {
		var err error
		snap, err = s.provider.Fetch(ctx)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(bo, maxFetchRetries), ctx))
	if err != nil {
		return nil, err
	}

	return snap, nil
}

// Invalidate drops the cached snapshot so the next call refetches.
// Used after configuration reloads.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}
