// Package checker schedules one probe loop per active target and applies
// change events to the running set.
package checker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ankityadav/uptimed/internal/config"
	"github.com/ankityadav/uptimed/internal/feed"
	"github.com/ankityadav/uptimed/internal/incident"
	"github.com/ankityadav/uptimed/internal/notifier"
	"github.com/ankityadav/uptimed/internal/storage"
)

// PersistGrace is added to a target's timeout to bound one whole cycle.
const PersistGrace = 30 * time.Second

// Registry owns the pollers. The maps guarded by mu are its only shared state.
type Registry struct {
	store     storage.Gateway
	prober    Prober
	machine   *incident.Machine
	throttler *notifier.Throttler
	log       logrus.FieldLogger
	grace     time.Duration

	mu      sync.Mutex
	pollers map[string]*poller
	// draining holds the done channel of a stopped poller until its last
	// cycle has finished, so a later Start for the same id waits for it.
	draining map[string]<-chan struct{}
	closed   bool

	wg    sync.WaitGroup
	loops atomic.Int64
}

func New(store storage.Gateway, prober Prober, machine *incident.Machine, throttler *notifier.Throttler, log logrus.FieldLogger) *Registry {
	return &Registry{
		store:     store,
		prober:    prober,
		machine:   machine,
		throttler: throttler,
		log:       log,
		grace:     PersistGrace,
		pollers:   make(map[string]*poller),
		draining:  make(map[string]<-chan struct{}),
	}
}

// LoadAll starts a poller for every active target and returns how many.
func (r *Registry) LoadAll(ctx context.Context) (int, error) {
	targets, err := r.store.ListActiveTargets(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load targets: %w", err)
	}
	if len(targets) == 0 {
		r.log.Warn("no active targets, waiting for changes")
		return 0, nil
	}

	for _, t := range targets {
		r.Start(t)
	}
	r.log.WithField("count", len(targets)).Info("pollers started")
	return len(targets), nil
}

// Start runs a poller for target, replacing any poller already running
// for the same id. The new poller waits for any earlier poller of the id,
// running or already stopped, to finish its cycle, so checks of one target
// never overlap.
func (r *Registry) Start(target storage.Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startLocked(target)
}

func (r *Registry) startLocked(target storage.Target) {
	if r.closed {
		return
	}

	var prev <-chan struct{}
	if old, ok := r.pollers[target.ID]; ok {
		old.stop()
		prev = old.done
	} else if done, ok := r.draining[target.ID]; ok {
		prev = done
	}
	delete(r.draining, target.ID)

	p := newPoller(r, target, prev)
	r.pollers[target.ID] = p

	r.log.WithFields(logrus.Fields{
		"target":          target.ID,
		"name":            target.Name,
		"url":             target.URL,
		"check_frequency": target.Interval(config.DefaultCheckInterval).String(),
		"timeout":         target.TimeoutDuration(config.DefaultTimeout).String(),
		"expected_status": target.ExpectedStatusCode,
	}).Debug("starting poller")

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loops.Add(1)
		defer r.loops.Add(-1)
		p.run()
	}()
}

// Stop cancels the pending check for id. A check already in flight still
// completes and persists its result. It reports whether a poller existed.
func (r *Registry) Stop(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked(id)
}

func (r *Registry) stopLocked(id string) bool {
	p, ok := r.pollers[id]
	if !ok {
		return false
	}
	p.stop()
	delete(r.pollers, id)
	r.draining[id] = p.done
	go func() {
		<-p.done
		r.mu.Lock()
		if r.draining[id] == p.done {
			delete(r.draining, id)
		}
		r.mu.Unlock()
	}()
	r.log.WithField("target", id).Debug("poller stopped")
	return true
}

// Restart stops the poller for target and starts a new one if the target
// is active.
func (r *Registry) Restart(target storage.Target) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !target.IsActive {
		r.stopLocked(target.ID)
		return
	}
	r.startLocked(target)
}

// HandleEvent applies one change event.
func (r *Registry) HandleEvent(ctx context.Context, ev feed.Event) {
	log := r.log.WithFields(logrus.Fields{"event": ev.Op, "target": ev.ID})

	switch ev.Op {
	case feed.Deleted:
		r.Stop(ev.ID)
		log.Info("target deleted")

	case feed.Created, feed.Updated:
		target, err := r.store.FetchTargetByID(ctx, ev.ID)
		if errors.Is(err, storage.ErrNotFound) {
			r.Stop(ev.ID)
			log.Info("target no longer exists")
			return
		}
		if err != nil {
			log.WithError(err).Error("failed to fetch target")
			return
		}
		if !target.IsActive {
			if r.Stop(ev.ID) {
				log.Info("target deactivated")
			}
			return
		}
		r.Restart(*target)
		log.WithField("name", target.Name).Info("target scheduled")

	case feed.Resync:
		if err := r.Sync(ctx); err != nil {
			log.WithError(err).Error("resync failed")
		}

	default:
		log.Warn("unknown event")
	}
}

// Sync reconciles the running set with the active targets in the store.
// Targets whose row changed since their poller started are restarted.
func (r *Registry) Sync(ctx context.Context) error {
	targets, err := r.store.ListActiveTargets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list targets: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	active := make(map[string]struct{}, len(targets))
	var started, stopped int
	for _, t := range targets {
		active[t.ID] = struct{}{}
		if p, ok := r.pollers[t.ID]; ok && p.target.UpdatedAt.Equal(t.UpdatedAt) {
			continue
		}
		r.startLocked(t)
		started++
	}
	for id := range r.pollers {
		if _, ok := active[id]; !ok {
			r.stopLocked(id)
			stopped++
		}
	}

	r.log.WithFields(logrus.Fields{"started": started, "stopped": stopped, "running": len(r.pollers)}).Info("pollers resynced")
	return nil
}

// Running returns the ids with a live poller, sorted.
func (r *Registry) Running() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.pollers))
	for id := range r.pollers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pollers)
}

// Shutdown stops every poller and waits for in-flight checks until ctx
// expires. Start is a no-op afterwards.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for id := range r.pollers {
		r.stopLocked(id)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight checks: %w", ctx.Err())
	}
}
