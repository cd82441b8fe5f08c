package secret

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolHashVerify(t *testing.T) {
	hasher, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	pool := NewPool(hasher, 2)

	secret := bytes.Repeat([]byte{0x11}, 32)
	digest, err := pool.Hash(context.Background(), secret)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	ok, err := pool.Verify(context.Background(), secret, digest)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Fatal("expected digest to verify")
	}
}

func TestPoolConcurrentCallsAllComplete(t *testing.T) {
	hasher, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	pool := NewPool(hasher, 2)

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			_, err := pool.Hash(context.Background(), bytes.Repeat([]byte{0x22}, 32))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("pooled hash failed: %v", err)
		}
	}
}

func TestPoolSaturation(t *testing.T) {
	// Heavy parameters keep the single slot occupied long enough for the
	// deadline-bounded attempt below to find the pool full.
	cfg := testConfig()
	cfg.Memory = 64 * 1024
	cfg.Time = 3
	hasher, err := NewHasher(cfg)
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	pool := NewPool(hasher, 1)

	var started atomic.Bool
	done := make(chan struct{})
	go func() {
		defer close(done)
		started.Store(true)
		_, _ = pool.Hash(context.Background(), bytes.Repeat([]byte{0x33}, 32))
	}()

	for !started.Load() {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(5 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	_, err = pool.Hash(ctx, bytes.Repeat([]byte{0x44}, 32))
	if !errors.Is(err, ErrSaturated) {
		t.Fatalf("expected ErrSaturated, got %v", err)
	}

	<-done
}

func TestPoolRaisesZeroCapacity(t *testing.T) {
	hasher, err := NewHasher(testConfig())
	if err != nil {
		t.Fatalf("NewHasher failed: %v", err)
	}
	pool := NewPool(hasher, 0)

	if _, err := pool.Hash(context.Background(), bytes.Repeat([]byte{0x55}, 32)); err != nil {
		t.Fatalf("expected zero capacity to be raised to one, got %v", err)
	}
}
