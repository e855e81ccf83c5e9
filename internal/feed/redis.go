package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// RedisListener subscribes to pub/sub channels carrying the same payloads
// as the Postgres feed.
type RedisListener struct {
	client   *redis.Client
	channels []string
	log      logrus.FieldLogger
}

func NewRedisListener(url string, channels []string, log logrus.FieldLogger) (*RedisListener, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisListenerWithClient(redis.NewClient(opts), channels, log), nil
}

func NewRedisListenerWithClient(client *redis.Client, channels []string, log logrus.FieldLogger) *RedisListener {
	return &RedisListener{client: client, channels: channels, log: log.WithField("feed", "redis")}
}

func (r *RedisListener) Listen(ctx context.Context, out chan<- Event) error {
	ps := r.client.Subscribe(ctx, r.channels...)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe: %w", err)
	}
	r.log.WithField("channels", r.channels).Info("listening for target changes")
	if !send(ctx, out, Event{Op: Resync}) {
		return nil
	}

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}

		ev, err := ParsePayload(msg.Payload)
		if err != nil {
			r.log.WithFields(logrus.Fields{"channel": msg.Channel, "payload": msg.Payload}).WithError(err).Warn("ignoring message")
			continue
		}
		if msg.Channel == LegacyChannel {
			ev.Op = Created
		}
		if !send(ctx, out, ev) {
			return nil
		}
	}
}

// Close releases the client connection pool.
func (r *RedisListener) Close() error {
	return r.client.Close()
}
