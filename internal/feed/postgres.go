package feed

import (
	"context"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const pingInterval = 90 * time.Second

// PostgresListener receives NOTIFY payloads. pq.Listener owns the
// connection and reconnects on its own; a nil notification marks a
// reconnect after which anything sent in between is lost.
type PostgresListener struct {
	dsn          string
	channels     []string
	minReconnect time.Duration
	maxReconnect time.Duration
	log          logrus.FieldLogger
}

func NewPostgresListener(dsn string, channels []string, minReconnect, maxReconnect time.Duration, log logrus.FieldLogger) *PostgresListener {
	if minReconnect <= 0 {
		minReconnect = 10 * time.Second
	}
	if maxReconnect < minReconnect {
		maxReconnect = minReconnect
	}
	return &PostgresListener{
		dsn:          dsn,
		channels:     channels,
		minReconnect: minReconnect,
		maxReconnect: maxReconnect,
		log:          log.WithField("feed", "postgres"),
	}
}

func (p *PostgresListener) Listen(ctx context.Context, out chan<- Event) error {
	l := pq.NewListener(p.dsn, p.minReconnect, p.maxReconnect, p.onEvent)
	defer l.Close()

	// Listen blocks until the first connection succeeds; Close unblocks it.
	subscribed := make(chan error, 1)
	go func() {
		for _, ch := range p.channels {
			if err := l.Listen(ch); err != nil && !errors.Is(err, pq.ErrChannelAlreadyOpen) {
				subscribed <- err
				return
			}
		}
		subscribed <- nil
	}()
	select {
	case <-ctx.Done():
		return nil
	case err := <-subscribed:
		if err != nil {
			return err
		}
	}
	p.log.WithField("channels", p.channels).Info("listening for target changes")
	if !send(ctx, out, Event{Op: Resync}) {
		return nil
	}

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n, ok := <-l.Notify:
			if !ok {
				return errors.New("postgres listener closed")
			}
			if n == nil {
				if !send(ctx, out, Event{Op: Resync}) {
					return nil
				}
				continue
			}
			ev, err := p.decode(n)
			if err != nil {
				p.log.WithFields(logrus.Fields{"channel": n.Channel, "payload": n.Extra}).WithError(err).Warn("ignoring notification")
				continue
			}
			if !send(ctx, out, ev) {
				return nil
			}
		case <-ticker.C:
			go func() {
				if err := l.Ping(); err != nil {
					p.log.WithError(err).Debug("listener ping failed")
				}
			}()
		}
	}
}

func (p *PostgresListener) decode(n *pq.Notification) (Event, error) {
	ev, err := ParsePayload(n.Extra)
	if err != nil {
		return ev, err
	}
	if n.Channel == LegacyChannel {
		ev.Op = Created
	}
	return ev, nil
}

func (p *PostgresListener) onEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnected:
		p.log.Debug("listener connected")
	case pq.ListenerEventDisconnected:
		p.log.WithError(err).Warn("listener disconnected")
	case pq.ListenerEventReconnected:
		p.log.Info("listener reconnected")
	case pq.ListenerEventConnectionAttemptFailed:
		p.log.WithError(err).Warn("listener connection attempt failed")
	}
}

func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
