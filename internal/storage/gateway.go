package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist, or when a
// conditional update matched nothing.
var ErrNotFound = errors.New("not found")

// Gateway is everything the scheduler needs from persistence. Implementations
// must be safe for concurrent use by all pollers.
type Gateway interface {
	ListActiveTargets(ctx context.Context) ([]Target, error)
	FetchTargetByID(ctx context.Context, id string) (*Target, error)
	// ListTargetStamps returns id -> updated_at for every target, active or
	// not. The polling change feed diffs consecutive snapshots.
	ListTargetStamps(ctx context.Context) (map[string]time.Time, error)

	InsertCheckResult(ctx context.Context, result *CheckResult) error

	// FindOpenIncidents returns active incidents for targetID, newest first.
	// An empty kind matches every failure kind.
	FindOpenIncidents(ctx context.Context, targetID string, kind Outcome) ([]Incident, error)
	InsertIncident(ctx context.Context, incident *Incident) error
	UpdateIncident(ctx context.Context, id string, fields IncidentUpdate) error

	FetchOwnerEmail(ctx context.Context, userID string) (string, error)
}

// IncidentUpdate lists the mutable incident columns. Nil fields are left
// untouched.
type IncidentUpdate struct {
	Status          IncidentStatus
	ResolvedAt      *time.Time
	DurationMinutes *int
	LastNotifiedAt  *time.Time
}

// Resolution builds the update that closes an incident. resolved_at and
// duration_minutes always travel together.
func Resolution(at time.Time, minutes int) IncidentUpdate {
	return IncidentUpdate{
		Status:          IncidentResolved,
		ResolvedAt:      &at,
		DurationMinutes: &minutes,
	}
}

func (u IncidentUpdate) columns() map[string]any {
	cols := make(map[string]any, 4)
	if u.Status != "" {
		cols["status"] = u.Status
	}
	if u.ResolvedAt != nil {
		cols["resolved_at"] = *u.ResolvedAt
	}
	if u.DurationMinutes != nil {
		cols["duration_minutes"] = *u.DurationMinutes
	}
	if u.LastNotifiedAt != nil {
		cols["last_notified_at"] = *u.LastNotifiedAt
	}
	return cols
}
