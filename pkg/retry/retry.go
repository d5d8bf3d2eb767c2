// Package retry provides the polling helper the Publisher uses to wait for
// a FUSE mount to become ready.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Poll calls checkFn every interval until it returns true, ctx is canceled, or
// (when ceiling > 0) the ceiling elapses. A ceiling of 0 means no limit, used
// by the Publisher waiting on the FUSE mount to become ready: it polls the
// magic readiness path once a second with no hard deadline, relying entirely
// on context cancellation (process kill) to give up.
func Poll(ctx context.Context, interval, ceiling time.Duration, checkFn func() (bool, error)) error {
	var deadline <-chan time.Time
	if ceiling > 0 {
		timer := time.NewTimer(ceiling)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := checkFn()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("poll: deadline of %s exceeded", ceiling)
		case <-ticker.C:
		}
	}
}
