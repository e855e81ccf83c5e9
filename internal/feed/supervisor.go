package feed

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultMinBackoff = time.Second
	DefaultMaxBackoff = time.Minute
)

// Supervisor keeps a listener running. Each failure is logged and retried
// after an exponentially growing pause, capped at MaxBackoff. Listeners
// send their own Resync on every successful subscription.
type Supervisor struct {
	Listener   Listener
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Log        logrus.FieldLogger

	sleep func(context.Context, time.Duration) bool
}

// Run blocks until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context, out chan<- Event) {
	minB, maxB := s.MinBackoff, s.MaxBackoff
	if minB <= 0 {
		minB = DefaultMinBackoff
	}
	if maxB < minB {
		maxB = DefaultMaxBackoff
		if maxB < minB {
			maxB = minB
		}
	}
	sleep := s.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	backoff := minB
	for {
		started := time.Now()
		err := s.Listener.Listen(ctx, out)
		if ctx.Err() != nil {
			return
		}
		if time.Since(started) > maxB {
			backoff = minB
		}

		if err != nil {
			s.Log.WithError(err).WithField("retry_in", backoff.String()).Error("change feed failed")
		} else {
			s.Log.WithField("retry_in", backoff.String()).Warn("change feed stopped")
		}

		if !sleep(ctx, backoff) {
			return
		}
		backoff *= 2
		if backoff > maxB {
			backoff = maxB
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
