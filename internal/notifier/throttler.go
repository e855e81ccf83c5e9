package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ankityadav/uptimed/internal/config"
	"github.com/ankityadav/uptimed/internal/storage"
)

// Throttler decides whether an alert or recovery message goes out. Alerts
// for the same open incident are spaced at least cooldown apart; recoveries
// always go out. Every failure is logged and never undoes the incident write
// that triggered it.
type Throttler struct {
	store     storage.Gateway
	transport Transport
	cooldown  time.Duration
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewThrottler returns a throttler. A nil transport disables notifications;
// a non-positive cooldown uses config.NotificationCooldown.
func NewThrottler(store storage.Gateway, transport Transport, cooldown time.Duration, log logrus.FieldLogger) *Throttler {
	if cooldown <= 0 {
		cooldown = config.NotificationCooldown
	}
	return &Throttler{
		store:     store,
		transport: transport,
		cooldown:  cooldown,
		log:       log,
		now:       time.Now,
	}
}

// Dispatch routes the requests produced by one incident transition.
func (t *Throttler) Dispatch(ctx context.Context, target storage.Target, reqs []Request) {
	for _, r := range reqs {
		switch r.Kind {
		case AlertRequest:
			_, _ = t.MaybeAlert(ctx, target, r.IncidentKind, r.Description)
		case RecoveryRequest:
			_, _ = t.SendRecovery(ctx, target, r.DurationMinutes)
		}
	}
}

// MaybeAlert sends an alert for the open (target, kind) incident unless one
// was already sent within the cooldown window.
func (t *Throttler) MaybeAlert(ctx context.Context, target storage.Target, kind storage.Outcome, description string) (bool, error) {
	log := t.log.WithFields(logrus.Fields{"target": target.ID, "name": target.Name, "kind": kind})

	to, ok := t.recipient(ctx, target, log)
	if !ok {
		return false, nil
	}

	open, err := t.store.FindOpenIncidents(ctx, target.ID, kind)
	if err != nil {
		log.WithError(err).Error("alert skipped, incident lookup failed")
		return false, err
	}
	var latest *storage.Incident
	if len(open) > 0 {
		latest = &open[0]
	}

	now := t.now()
	if latest != nil && latest.LastNotifiedAt != nil && now.Sub(*latest.LastNotifiedAt) < t.cooldown {
		log.WithField("last_notified_at", latest.LastNotifiedAt.Format(time.RFC3339)).Debug("alert throttled")
		return false, nil
	}

	if err := t.transport.Send(ctx, alertMessage(to, target, kind, description)); err != nil {
		log.WithError(err).Error("failed to send alert")
		return false, err
	}
	log.WithField("to", to).Info("alert sent")

	if latest != nil {
		if err := t.store.UpdateIncident(ctx, latest.ID, storage.IncidentUpdate{LastNotifiedAt: &now}); err != nil {
			log.WithError(err).Error("failed to record alert time")
			return true, err
		}
	}
	return true, nil
}

// SendRecovery is never throttled.
func (t *Throttler) SendRecovery(ctx context.Context, target storage.Target, durationMinutes int) (bool, error) {
	log := t.log.WithFields(logrus.Fields{"target": target.ID, "name": target.Name})

	to, ok := t.recipient(ctx, target, log)
	if !ok {
		return false, nil
	}

	if err := t.transport.Send(ctx, recoveryMessage(to, target, durationMinutes)); err != nil {
		log.WithError(err).Error("failed to send recovery")
		return false, err
	}
	log.WithFields(logrus.Fields{"to": to, "duration_minutes": durationMinutes}).Info("recovery sent")
	return true, nil
}

// recipient checks the preconditions shared by every message: a transport,
// the target's opt-in and a resolvable owner address.
func (t *Throttler) recipient(ctx context.Context, target storage.Target, log logrus.FieldLogger) (string, bool) {
	if t.transport == nil {
		log.Debug("notification skipped, no transport configured")
		return "", false
	}
	if !target.EmailNotifications {
		log.Debug("notification skipped, disabled for target")
		return "", false
	}

	email, err := t.store.FetchOwnerEmail(ctx, target.UserID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		log.WithField("user", target.UserID).Warn("notification skipped, owner has no email")
		return "", false
	case err != nil:
		log.WithError(fmt.Errorf("resolve owner: %w", err)).Error("notification skipped")
		return "", false
	}
	return email, true
}
