package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is the exponential backoff shared by the in-process retry loops:
// the delay starts at Initial, doubles per retry up to Max and is spread by
// Jitter (a randomization factor in [0, 1]).
type Policy struct {
	Initial    time.Duration
	Max        time.Duration
	MaxRetries int
	Jitter     float64
}

// BackOff returns a fresh schedule bound to ctx. It stops after MaxRetries
// retries or when ctx is done.
func (p Policy) BackOff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.Multiplier = 2
	b.RandomizationFactor = p.Jitter
	if p.Max > 0 {
		b.MaxInterval = p.Max
	}
	// MaxRetries bounds the loop, not elapsed time.
	b.MaxElapsedTime = 0
	b.Reset()

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}
