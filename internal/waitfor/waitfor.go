// Package waitfor polls page conditions with exponential backoff until they
// hold or a deadline passes.
package waitfor

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrTimeout is returned when the condition never held within the policy's timeout.
var ErrTimeout = errors.New("condition not met before timeout")

var errNotYet = errors.New("not yet")

// DefaultTimeout bounds a wait whose policy sets no positive timeout.
var DefaultTimeout = 10 * time.Second

// Policy bounds one wait.
type Policy struct {
	Initial time.Duration
	Max     time.Duration
	Timeout time.Duration
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	if b.InitialInterval <= 0 {
		b.InitialInterval = 100 * time.Millisecond
	}
	b.MaxInterval = p.Max
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	b.MaxElapsedTime = p.Timeout
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = DefaultTimeout
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.Reset()
	return b
}

// Condition reports whether the awaited state is reached. An error stops the
// wait immediately.
type Condition func(ctx context.Context) (bool, error)

// Until evaluates cond right away and then with growing pauses. It returns
// nil once cond holds, ErrTimeout when the policy's timeout elapses, or the
// first error cond returns.
func Until(ctx context.Context, p Policy, cond Condition) error {
	err := backoff.Retry(func() error {
		ok, err := cond(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errNotYet
		}
		return nil
	}, backoff.WithContext(p.backOff(), ctx))

	if errors.Is(err, errNotYet) {
		return ErrTimeout
	}
	return err
}

// Sleep pauses for d unless ctx or stop ends first. It reports whether the
// full pause elapsed.
func Sleep(ctx context.Context, d time.Duration, stop <-chan struct{}) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	}
}
