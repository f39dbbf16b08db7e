package intercept

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"firestige.xyz/scanguard/internal/core"
)

// serve runs workers goroutines calling fn on packets from in until in is
// closed or ctx is done.
func serve(ctx context.Context, in <-chan core.RawPacket, fn PacketFunc, workers int) error {
	if workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", workers)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case raw, ok := <-in:
					if !ok {
						return nil
					}
					fn(raw)
				}
			}
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
