package core

// decode_limiter.go bounds how many workbooks are decoded at once.
//
// Opening an upload and each later lazy sheet decode take a slot from the
// same semaphore. When every slot is busy a caller waits up to maxWait and
// then fails with ErrTooManyUploads.

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManyUploads is returned when no decode slot frees up in time.
var ErrTooManyUploads = errors.New("too many concurrent uploads, please try again later")

const (
	DefaultMaxConcurrentDecodes = 4
	DefaultDecodeWait           = 30 * time.Second
)

// DecodeLimiter is a counting semaphore for workbook decodes.
type DecodeLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int64
}

// NewDecodeLimiter allows at most maxConcurrent decodes. Non-positive
// arguments fall back to the defaults.
func NewDecodeLimiter(maxConcurrent int, maxWait time.Duration) *DecodeLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentDecodes
	}
	if maxWait <= 0 {
		maxWait = DefaultDecodeWait
	}
	return &DecodeLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot. The caller must Release it when done.
func (l *DecodeLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyUploads
	}
}

// Release returns a slot taken by Acquire.
func (l *DecodeLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// Active returns the number of decodes in flight.
func (l *DecodeLimiter) Active() int {
	return int(l.active.Load())
}

// DecodeLimiterStatus is a point-in-time view of a DecodeLimiter.
type DecodeLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

func (l *DecodeLimiter) Status() DecodeLimiterStatus {
	return DecodeLimiterStatus{
		Active:        l.Active(),
		Available:     cap(l.slots) - len(l.slots),
		MaxConcurrent: cap(l.slots),
	}
}

// WaitForDrain blocks until no decode is in flight or ctx is done.
func (l *DecodeLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for l.Active() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}
