package rotary

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// Concurrent rotations of one credential must resolve to exactly one winner.
// Losers land on either side of the conditional revoke: those that lose the
// write see the stale classification, those that look up after the winner's
// revoke landed see reuse. Both deny; neither forks the chain.
func TestConcurrentRefreshSingleWinner(t *testing.T) {
	engine := newRotationEngine(t, rotationTestConfig())
	ctx := context.Background()

	pair, err := engine.Login(ctx, LoginRequest{PrincipalID: "alice"})
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	const n = 16
	type outcome struct {
		pair *TokenPair
		err  error
	}

	var wg sync.WaitGroup
	wg.Add(n)
	results := make(chan outcome, n)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			<-start
			next, err := engine.Refresh(ctx, pair.RefreshToken)
			results <- outcome{pair: next, err: err}
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	winners := 0
	for res := range results {
		if res.err == nil {
			winners++
			if res.pair == nil || res.pair.RefreshToken == "" {
				t.Fatal("winner must carry a new token pair")
			}
			continue
		}
		if !errors.Is(res.err, ErrRefreshStale) && !errors.Is(res.err, ErrRefreshReuse) {
			t.Fatalf("unexpected loser error: %v", res.err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
}
