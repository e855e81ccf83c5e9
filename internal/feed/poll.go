package feed

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// PollingListener compares consecutive snapshots of target timestamps.
// The first snapshot is a baseline; only Resync is emitted for it.
type PollingListener struct {
	source   StampSource
	interval time.Duration
	log      logrus.FieldLogger
}

func NewPollingListener(source StampSource, interval time.Duration, log logrus.FieldLogger) *PollingListener {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &PollingListener{source: source, interval: interval, log: log.WithField("feed", "poll")}
}

func (p *PollingListener) Listen(ctx context.Context, out chan<- Event) error {
	prev, err := p.source.ListTargetStamps(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	p.log.WithFields(logrus.Fields{"targets": len(prev), "interval": p.interval}).Info("polling for target changes")
	if !send(ctx, out, Event{Op: Resync}) {
		return nil
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		next, err := p.source.ListTargetStamps(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		for _, ev := range diffStamps(prev, next) {
			if !send(ctx, out, ev) {
				return nil
			}
		}
		prev = next
	}
}

func diffStamps(prev, next map[string]time.Time) []Event {
	var events []Event
	for id, stamp := range next {
		old, ok := prev[id]
		switch {
		case !ok:
			events = append(events, Event{Op: Created, ID: id})
		case !stamp.Equal(old):
			events = append(events, Event{Op: Updated, ID: id})
		}
	}
	for id := range prev {
		if _, ok := next[id]; !ok {
			events = append(events, Event{Op: Deleted, ID: id})
		}
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].ID != events[j].ID {
			return events[i].ID < events[j].ID
		}
		return events[i].Op < events[j].Op
	})
	return events
}
