package lifecycle

import (
	"context"
	"sync"
	"time"
)

// Group counts running goroutines and lets callers wait for them with a
// deadline.
type Group struct {
	wg sync.WaitGroup
}

// Go runs fn in a tracked goroutine.
func (g *Group) Go(fn func()) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		fn()
	}()
}

// Wait blocks until every goroutine returned or ctx is done.
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitWithTimeout waits at most timeout and returns ErrShutdownTimeout when
// it expires.
func (g *Group) WaitWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := g.Wait(ctx); err != nil {
		return ErrShutdownTimeout
	}
	return nil
}
