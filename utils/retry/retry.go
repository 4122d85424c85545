// Copyright 2025 The PinMap Authors
// SPDX-License-Identifier: Apache-2.0

// Package retry implements a bounded retry policy with exponential backoff.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy describes how many times an operation is attempted and how long to
// wait between attempts. The zero value makes a single attempt.
type Policy struct {
	// MaxAttempts is the total number of attempts, the first one included.
	MaxAttempts int

	// BaseDelay is the wait before the first retry. Each further retry
	// waits Multiplier times longer, capped at MaxDelay.
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64

	// Sleep waits for d or until ctx is done. Defaults to a timer; tests
	// replace it to avoid real waits.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}

	return p.MaxAttempts
}

// BackOff returns the schedule of waits between attempts, bound to ctx.
// There is no jitter: the provider limits are per second, not per client.
func (p Policy) BackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = max(p.BaseDelay, 0)
	exp.RandomizationFactor = 0
	exp.MaxElapsedTime = 0

	exp.Multiplier = p.Multiplier
	if exp.Multiplier < 1 {
		exp.Multiplier = 2
	}

	exp.MaxInterval = p.MaxDelay
	if exp.MaxInterval <= 0 {
		exp.MaxInterval = time.Duration(math.MaxInt64)
	}

	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(p.attempts()-1)), ctx)
}

// Do runs fn until it succeeds, returns an error retryable rejects, or the
// attempts are exhausted. fn receives the 1-based attempt number. The last
// error is returned.
func (p Policy) Do(ctx context.Context, retryable func(error) bool, fn func(attempt int) error) error {
	attempt := 0

	op := func() error {
		attempt++

		err := fn(attempt)
		if err != nil && retryable != nil && !retryable(err) {
			return backoff.Permanent(err)
		}

		return err
	}

	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	return backoff.RetryNotifyWithTimer(op, p.BackOff(ctx), nil, &sleepTimer{ctx: ctx, sleep: sleep})
}

// sleepTimer adapts a sleep function to backoff.Timer.
type sleepTimer struct {
	ctx   context.Context
	sleep func(context.Context, time.Duration) error
	c     chan time.Time
}

func (t *sleepTimer) Start(d time.Duration) {
	t.c = make(chan time.Time, 1)

	if err := t.sleep(t.ctx, d); err != nil && t.ctx.Err() != nil {
		return
	}

	t.c <- time.Now()
}

func (t *sleepTimer) Stop() {}

func (t *sleepTimer) C() <-chan time.Time {
	return t.c
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
