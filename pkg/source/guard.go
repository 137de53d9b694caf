package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dualive/capture/pkg/media"
)

// guard runs a driver call with a timeout. A driver stuck past the
// deadline keeps running in the background, undo is called if the call
// finally succeeds so that nothing is left half-started.
func guard(ctx context.Context, timeout time.Duration, fn func() error, undo func()) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		if undo != nil {
			go func() {
				if err := <-done; err == nil {
					undo()
				}
			}()
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %v", media.ErrDeviceTimeout, timeout)
		}
		return ctx.Err()
	}
}
