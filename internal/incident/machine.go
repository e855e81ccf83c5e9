// Package incident opens and resolves incident records from probe results.
//
// At most one active incident exists per (target, failure kind). A success
// resolves every open incident of the target. A new failure kind never
// closes an open incident of a different kind.
package incident

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ankityadav/uptimed/internal/notifier"
	"github.com/ankityadav/uptimed/internal/storage"
)

const FallbackDescription = "Incident detected"

// Transition is what one result did to a target's incidents.
type Transition struct {
	Opened   *storage.Incident
	Ongoing  *storage.Incident
	Resolved []storage.Incident
}

// Requests converts the transition into notification requests: one alert
// for an opened incident, one recovery per resolved incident. An ongoing
// incident produces none.
func (t Transition) Requests() []notifier.Request {
	var reqs []notifier.Request
	if t.Opened != nil {
		reqs = append(reqs, notifier.Request{
			Kind:         notifier.AlertRequest,
			IncidentKind: t.Opened.Type,
			Description:  t.Opened.Description,
		})
	}
	for _, inc := range t.Resolved {
		minutes := 0
		if inc.DurationMinutes != nil {
			minutes = *inc.DurationMinutes
		}
		reqs = append(reqs, notifier.Request{
			Kind:            notifier.RecoveryRequest,
			IncidentKind:    inc.Type,
			DurationMinutes: minutes,
		})
	}
	return reqs
}

// Machine applies results to persisted incidents. Callers must serialize
// calls for the same target; the poller does.
type Machine struct {
	store storage.Gateway
	log   logrus.FieldLogger
	now   func() time.Time
}

func New(store storage.Gateway, log logrus.FieldLogger) *Machine {
	return &Machine{store: store, log: log, now: time.Now}
}

func (m *Machine) OnResult(ctx context.Context, target storage.Target, result storage.CheckResult) (Transition, error) {
	if result.Status == storage.OutcomeOnline {
		return m.resolve(ctx, target)
	}
	return m.open(ctx, target, result)
}

func (m *Machine) resolve(ctx context.Context, target storage.Target) (Transition, error) {
	var tr Transition

	open, err := m.store.FindOpenIncidents(ctx, target.ID, "")
	if err != nil {
		return tr, err
	}

	now := m.now()
	var errs []error
	for _, inc := range open {
		minutes := DurationMinutes(inc.StartedAt, now)
		if err := m.store.UpdateIncident(ctx, inc.ID, storage.Resolution(now, minutes)); err != nil {
			m.log.WithFields(logrus.Fields{"target": target.ID, "incident": inc.ID}).WithError(err).Error("failed to resolve incident")
			errs = append(errs, err)
			continue
		}

		resolvedAt := now
		inc.Status = storage.IncidentResolved
		inc.ResolvedAt = &resolvedAt
		inc.DurationMinutes = &minutes
		tr.Resolved = append(tr.Resolved, inc)

		m.log.WithFields(logrus.Fields{
			"target":           target.ID,
			"name":             target.Name,
			"incident":         inc.ID,
			"kind":             inc.Type,
			"duration_minutes": minutes,
		}).Info("incident resolved")
	}
	return tr, errors.Join(errs...)
}

func (m *Machine) open(ctx context.Context, target storage.Target, result storage.CheckResult) (Transition, error) {
	var tr Transition
	kind := result.Status
	if !kind.IsFailure() {
		return tr, fmt.Errorf("unknown outcome %q", kind)
	}

	existing, err := m.store.FindOpenIncidents(ctx, target.ID, kind)
	if err != nil {
		return tr, err
	}
	if len(existing) > 0 {
		tr.Ongoing = &existing[0]
		return tr, nil
	}

	description := result.Description()
	if description == "" {
		description = FallbackDescription
	}
	inc := &storage.Incident{
		MonitorID:   target.ID,
		Name:        target.Name,
		URL:         target.URL,
		Type:        kind,
		Status:      storage.IncidentActive,
		StartedAt:   m.now(),
		Description: description,
	}
	if err := m.store.InsertIncident(ctx, inc); err != nil {
		return tr, err
	}
	tr.Opened = inc

	m.log.WithFields(logrus.Fields{
		"target":   target.ID,
		"name":     target.Name,
		"incident": inc.ID,
		"kind":     kind,
	}).Warn("incident opened")
	return tr, nil
}

// DurationMinutes rounds the elapsed time to whole minutes, never below zero.
func DurationMinutes(startedAt, resolvedAt time.Time) int {
	ms := resolvedAt.Sub(startedAt).Milliseconds()
	if ms <= 0 {
		return 0
	}
	return int(math.Round(float64(ms) / 60000))
}
