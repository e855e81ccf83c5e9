// Package feed delivers target change events to the scheduler.
//
// Three transports exist: Postgres LISTEN/NOTIFY, Redis pub/sub and a
// polling fallback that diffs target timestamps. All of them produce the
// same Event values.
package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ankityadav/uptimed/internal/config"
	"github.com/ankityadav/uptimed/internal/storage"
)

type Op string

const (
	Created Op = "created"
	Updated Op = "updated"
	Deleted Op = "deleted"
	// Resync asks the consumer to reconcile its whole set, usually because
	// notifications may have been lost while the connection was down.
	Resync Op = "resync"
)

type Event struct {
	Op Op
	ID string
}

func (e Event) String() string {
	if e.ID == "" {
		return string(e.Op)
	}
	return fmt.Sprintf("%s(%s)", e.Op, e.ID)
}

// Listener blocks and writes events to out until ctx is cancelled or the
// underlying connection fails. It returns nil only on cancellation. Once
// subscribed it sends Resync, since changes made before that point were
// not seen.
type Listener interface {
	Listen(ctx context.Context, out chan<- Event) error
}

// New builds the listener selected by cfg.Driver.
func New(cfg config.FeedConfig, stamps StampSource, log logrus.FieldLogger) (Listener, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "postgres":
		return NewPostgresListener(cfg.URL, cfg.Channels, cfg.MinReconnect, cfg.MaxReconnect, log), nil
	case "redis":
		return NewRedisListener(cfg.URL, cfg.Channels, log)
	case "poll":
		return NewPollingListener(stamps, cfg.PollInterval, log), nil
	default:
		return nil, fmt.Errorf("%w: unknown feed driver %q", config.ErrConfiguration, cfg.Driver)
	}
}

// StampSource is the slice of the gateway the polling listener needs.
type StampSource interface {
	ListTargetStamps(ctx context.Context) (map[string]time.Time, error)
}

var _ StampSource = (storage.Gateway)(nil)
