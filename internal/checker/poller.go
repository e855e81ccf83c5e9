package checker

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ankityadav/uptimed/internal/config"
	"github.com/ankityadav/uptimed/internal/storage"
)

type poller struct {
	reg    *Registry
	target storage.Target
	prev   <-chan struct{}

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

func newPoller(reg *Registry, target storage.Target, prev <-chan struct{}) *poller {
	return &poller{
		reg:    reg,
		target: target,
		prev:   prev,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (p *poller) stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
}

func (p *poller) stopped() bool {
	select {
	case <-p.stopCh:
		return true
	default:
		return false
	}
}

// run checks immediately, then re-arms the timer after each completed
// cycle. Missed intervals are not caught up.
func (p *poller) run() {
	defer close(p.done)

	// done must not close before the predecessor's cycle has finished,
	// even when this poller is stopped first.
	if p.prev != nil {
		<-p.prev
	}

	interval := p.target.Interval(config.DefaultCheckInterval)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-timer.C:
		}
		if p.stopped() {
			return
		}

		p.cycle()

		if p.stopped() {
			return
		}
		timer.Reset(interval)
	}
}

// cycle runs one probe and its follow-up writes on a context detached from
// the poller so stopping never interrupts it.
func (p *poller) cycle() {
	log := p.reg.log.WithFields(logrus.Fields{"target": p.target.ID, "url": p.target.URL})
	defer func() {
		if rec := recover(); rec != nil {
			log.WithFields(logrus.Fields{"panic": rec, "stack": string(debug.Stack())}).Error("check cycle panicked")
		}
	}()

	budget := p.target.TimeoutDuration(config.DefaultTimeout) + p.reg.grace
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	p.check(ctx, log)
}

func (p *poller) check(ctx context.Context, log logrus.FieldLogger) {
	r := p.reg
	target := p.target

	result := r.prober.Probe(ctx, target)
	log = log.WithField("status", result.Status)
	if result.ResponseTime != nil {
		log = log.WithField("response_ms", *result.ResponseTime)
	}
	if result.Status.IsFailure() {
		log.WithField("error", result.Description()).Info("check failed")
	} else {
		log.Debug("check passed")
	}

	if err := r.store.InsertCheckResult(ctx, &result); err != nil {
		log.WithError(err).Error("failed to save check result")
		return
	}

	tr, err := r.machine.OnResult(ctx, target, result)
	if err != nil {
		log.WithError(err).Error("failed to update incidents")
	}

	r.throttler.Dispatch(ctx, target, tr.Requests())
	if tr.Ongoing != nil {
		description := result.Description()
		if description == "" {
			description = tr.Ongoing.Description
		}
		_, _ = r.throttler.MaybeAlert(ctx, target, tr.Ongoing.Type, description)
	}
}
