package catalog

import (
	"context"
	"math"
	"time"

	"github.com/lattice-dmcp/lattice/pkg/catalogerr"
)

// Retrial wraps a catalog call with the exponential-backoff retry policy
// of spec §4.6 step 7: delay grows as e^k seconds between attempts,
// giving up once the next delay would exceed 600 seconds.
// DataIdentifierNotFound short-circuits to success, matching the
// ancestor daemon's handling of a DID that disappeared between listing
// and marking it processed.
func Retrial(ctx context.Context, fn func() error) error {
	return retrial(ctx, fn, sleepContext)
}

func retrial(ctx context.Context, fn func() error, sleep func(context.Context, time.Duration) error) error {
	delay := 0
	for {
		err := fn()
		if err == nil {
			return nil
		}
		kind := catalogerr.KindOf(err)
		if kind == catalogerr.DataIdentifierNotFound {
			return nil
		}
		if kind != catalogerr.DatabaseException {
			return err
		}

		wait := math.Exp(float64(delay))
		if wait > 600 {
			return err
		}
		if sleepErr := sleep(ctx, time.Duration(wait*float64(time.Second))); sleepErr != nil {
			return sleepErr
		}
		delay++
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
