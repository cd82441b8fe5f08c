package secret

import (
	"context"
	"errors"

	"golang.org/x/sync/semaphore"
)

// ErrSaturated is returned when the hashing pool is at capacity and the
// caller's context expires before a slot frees up.
var ErrSaturated = errors.New("hashing pool saturated")

// Pool bounds the number of argon2 computations running at once. Hashing is
// deliberately memory-hard; without a cap, a burst of refresh traffic could
// pin every scheduler thread in key derivation and starve unrelated requests.
//
// Acquire respects the caller's context, so waiting is bounded by the request
// deadline; there is no unbounded internal queue.
type Pool struct {
	hasher *Hasher
	sem    *semaphore.Weighted
}

// NewPool wraps hasher with a concurrency cap. maxConcurrent values below 1
// are raised to 1.
func NewPool(hasher *Hasher, maxConcurrent int) *Pool {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Pool{
		hasher: hasher,
		sem:    semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Hash computes a digest through the pool.
func (p *Pool) Hash(ctx context.Context, secret []byte) (string, error) {
	if err := p.acquire(ctx); err != nil {
		return "", err
	}
	defer p.sem.Release(1)

	return p.hasher.Hash(secret)
}

// Verify checks a secret against a stored digest through the pool.
func (p *Pool) Verify(ctx context.Context, secret []byte, digest string) (bool, error) {
	if err := p.acquire(ctx); err != nil {
		return false, err
	}
	defer p.sem.Release(1)

	return p.hasher.Verify(secret, digest)
}

func (p *Pool) acquire(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return ErrSaturated
	}
	return nil
}
