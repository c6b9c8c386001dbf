package rate

import (
	"context"
	"fmt"
	"time"
)

// Limiter gates outbound calls to the mail and embedding APIs.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Wait blocks on l unless it is nil.
func Wait(ctx context.Context, l Limiter) error {
	if l == nil {
		return ctx.Err()
	}
	return l.Wait(ctx)
}

// TokenBucket refills one token every 1/rps seconds up to burst tokens.
type TokenBucket struct {
	ticker *time.Ticker
	tokens chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

// NewTokenBucket returns a limiter releasing rps tokens per second with a
// burst of the same size.
func NewTokenBucket(rps int) *TokenBucket {
	return NewTokenBucketBurst(rps, rps)
}

// NewTokenBucketBurst starts with one token available.
func NewTokenBucketBurst(rps, burst int) *TokenBucket {
	if rps <= 0 {
		rps = 1
	}
	if burst <= 0 {
		burst = 1
	}
	tb := &TokenBucket{
		ticker: time.NewTicker(time.Second / time.Duration(rps)),
		tokens: make(chan struct{}, burst),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	tb.tokens <- struct{}{}
	go tb.refill()
	return tb
}

func (t *TokenBucket) refill() {
	defer close(t.done)
	for {
		select {
		case <-t.stop:
			return
		case <-t.ticker.C:
			select {
			case t.tokens <- struct{}{}:
			default:
			}
		}
	}
}

// Wait blocks until a token is available or the context is canceled.
func (t *TokenBucket) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("rate wait canceled: %w", ctx.Err())
	case <-t.tokens:
		return nil
	}
}

// Stop releases the ticker and the refill goroutine. Safe to call once.
func (t *TokenBucket) Stop() {
	t.ticker.Stop()
	close(t.stop)
	<-t.done
}

var _ Limiter = (*TokenBucket)(nil)
