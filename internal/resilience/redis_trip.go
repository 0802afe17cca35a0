package resilience

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// SharedTrip lets multiple orchestrator processes agree on whether a
// sibling is down, per SPEC_FULL.md §EXPANSION "C3 Sibling Client: rate
// limiting & circuit breaking". It is advisory only: a Redis outage simply
// means each process falls back to its own in-memory CircuitBreaker state,
// never blocking a stage.
type SharedTrip struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

// NewSharedTrip wraps an existing Redis client.
func NewSharedTrip(client *redis.Client, logger zerolog.Logger) *SharedTrip {
	return &SharedTrip{client: client, prefix: "acq:cb:", logger: logger}
}

// MarkOpen records that sibling is currently tripped, for ttl.
func (s *SharedTrip) MarkOpen(ctx context.Context, sibling string, ttl time.Duration) {
	if s == nil || s.client == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.client.Set(rctx, s.prefix+sibling, "open", ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Str("sibling", sibling).Msg("failed to publish shared circuit trip")
	}
}

// ClearOpen removes the shared tripped marker for sibling (on close/recovery).
func (s *SharedTrip) ClearOpen(ctx context.Context, sibling string) {
	if s == nil || s.client == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.client.Del(rctx, s.prefix+sibling).Err(); err != nil {
		s.logger.Warn().Err(err).Str("sibling", sibling).Msg("failed to clear shared circuit trip")
	}
}

// IsOpen reports whether another process has marked sibling as tripped.
// On any Redis error it returns false (fail open to per-process state).
func (s *SharedTrip) IsOpen(ctx context.Context, sibling string) bool {
	if s == nil || s.client == nil {
		return false
	}
	rctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := s.client.Get(rctx, s.prefix+sibling).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("sibling", sibling).Msg("failed to read shared circuit trip")
		return false
	}
	return true
}
