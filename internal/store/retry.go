package store

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/agenthands/kgfuse/internal/core/model"
	"github.com/agenthands/kgfuse/internal/logger"
)

type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialInterval: 200 * time.Millisecond, MaxInterval: 5 * time.Second}
}

// RetryingStore retries the idempotent merges of the wrapped Store when they
// fail with a retryable OpError. Reads and PropagateImpacts pass through:
// impact propagation accumulates weights and must not run twice.
type RetryingStore struct {
	Store
	policy RetryPolicy
	log    *logger.Logger
}

func WithRetry(inner Store, policy RetryPolicy, log *logger.Logger) *RetryingStore {
	if log == nil {
		log = logger.Nop()
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &RetryingStore{Store: inner, policy: policy, log: log}
}

func retry[T any](ctx context.Context, s *RetryingStore, op string, fn func() (T, error)) (T, error) {
	exp := backoff.NewExponentialBackOff()
	if s.policy.InitialInterval > 0 {
		exp.InitialInterval = s.policy.InitialInterval
	}
	if s.policy.MaxInterval > 0 {
		exp.MaxInterval = s.policy.MaxInterval
	}

	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && !IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(uint(s.policy.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			s.log.Warn("retrying store operation", "op", op, "wait", wait, "error", err)
		}),
	)
}

func (s *RetryingStore) TagScannerProvenance(ctx context.Context) (int, error) {
	return retry(ctx, s, "tag provenance", func() (int, error) {
		return s.Store.TagScannerProvenance(ctx)
	})
}

func (s *RetryingStore) MergeEquivalence(ctx context.Context, e model.EquivalenceEdge) (bool, error) {
	return retry(ctx, s, "merge equivalence", func() (bool, error) {
		return s.Store.MergeEquivalence(ctx, e)
	})
}

func (s *RetryingStore) MergeUnified(ctx context.Context, u model.UnifiedVulnerability) (string, bool, error) {
	type result struct {
		id      string
		created bool
	}
	r, err := retry(ctx, s, "merge unified", func() (result, error) {
		id, created, err := s.Store.MergeUnified(ctx, u)
		return result{id, created}, err
	})
	return r.id, r.created, err
}

func (s *RetryingStore) MergeRewired(ctx context.Context, rel model.Relationship, originID string) (bool, error) {
	return retry(ctx, s, "merge rewired", func() (bool, error) {
		return s.Store.MergeRewired(ctx, rel, originID)
	})
}
