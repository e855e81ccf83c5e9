package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankityadav/uptimed/internal/logger"
	"github.com/ankityadav/uptimed/internal/storage"
	"github.com/ankityadav/uptimed/internal/storage/storagetest"
)

type recordingTransport struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (r *recordingTransport) Send(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingTransport) messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.sent...)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func setup(t *testing.T, notify bool, email string) (*Throttler, *recordingTransport, *clock, *storage.Database, storage.Target) {
	t.Helper()
	db := storagetest.New(t)
	target := storagetest.Seed(t, db, storage.Target{
		Name:               "shop",
		URL:                "https://shop.example.com",
		IsActive:           true,
		EmailNotifications: notify,
	}, email)

	transport := &recordingTransport{}
	clk := &clock{t: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	th := NewThrottler(db, transport, 4*time.Hour, logger.Discard())
	th.now = clk.now
	return th, transport, clk, db, target
}

func openIncident(t *testing.T, db *storage.Database, target storage.Target, kind storage.Outcome, at time.Time) *storage.Incident {
	t.Helper()
	inc := &storage.Incident{
		MonitorID: target.ID,
		Name:      target.Name,
		URL:       target.URL,
		Type:      kind,
		Status:    storage.IncidentActive,
		StartedAt: at,
	}
	require.NoError(t, db.InsertIncident(context.Background(), inc))
	return inc
}

func TestMaybeAlertRespectsCooldown(t *testing.T) {
	th, transport, clk, db, target := setup(t, true, "owner@example.com")
	ctx := context.Background()
	inc := openIncident(t, db, target, storage.OutcomeTimeout, clk.now())

	sent, err := th.MaybeAlert(ctx, target, storage.OutcomeTimeout, "request timed out after 5 seconds")
	require.NoError(t, err)
	assert.True(t, sent)

	clk.advance(time.Hour)
	sent, err = th.MaybeAlert(ctx, target, storage.OutcomeTimeout, "request timed out after 5 seconds")
	require.NoError(t, err)
	assert.False(t, sent, "second failure inside the window is throttled")
	assert.Len(t, transport.messages(), 1)

	clk.advance(3*time.Hour + time.Minute)
	sent, err = th.MaybeAlert(ctx, target, storage.OutcomeTimeout, "request timed out after 5 seconds")
	require.NoError(t, err)
	assert.True(t, sent, "failure after the window alerts again")

	msgs := transport.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "owner@example.com", msgs[0].To)
	assert.Contains(t, msgs[0].Subject, "shop")
	assert.Contains(t, msgs[0].Body, "request timed out after 5 seconds")

	got, err := db.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastNotifiedAt)
	assert.True(t, got.LastNotifiedAt.Equal(clk.now()))
}

func TestMaybeAlertWithoutOpenIncidentSendsImmediately(t *testing.T) {
	th, transport, _, _, target := setup(t, true, "owner@example.com")

	sent, err := th.MaybeAlert(context.Background(), target, storage.OutcomeOffline, "connection refused")
	require.NoError(t, err)
	assert.True(t, sent)
	assert.Len(t, transport.messages(), 1)
}

func TestMaybeAlertPreconditions(t *testing.T) {
	t.Run("notifications disabled", func(t *testing.T) {
		th, transport, _, _, target := setup(t, false, "owner@example.com")
		sent, err := th.MaybeAlert(context.Background(), target, storage.OutcomeOffline, "down")
		require.NoError(t, err)
		assert.False(t, sent)
		assert.Empty(t, transport.messages())
	})

	t.Run("owner without email", func(t *testing.T) {
		th, transport, _, _, target := setup(t, true, "")
		sent, err := th.MaybeAlert(context.Background(), target, storage.OutcomeOffline, "down")
		require.NoError(t, err)
		assert.False(t, sent)
		assert.Empty(t, transport.messages())
	})

	t.Run("no transport", func(t *testing.T) {
		th, _, _, _, target := setup(t, true, "owner@example.com")
		th.transport = nil
		sent, err := th.MaybeAlert(context.Background(), target, storage.OutcomeOffline, "down")
		require.NoError(t, err)
		assert.False(t, sent)
	})
}

func TestMaybeAlertTransportFailureKeepsIncidentUnnotified(t *testing.T) {
	th, transport, clk, db, target := setup(t, true, "owner@example.com")
	ctx := context.Background()
	inc := openIncident(t, db, target, storage.OutcomeOffline, clk.now())
	transport.err = errors.New("relay unavailable")

	sent, err := th.MaybeAlert(ctx, target, storage.OutcomeOffline, "connection refused")
	assert.Error(t, err)
	assert.False(t, sent)

	got, err := db.GetIncident(ctx, inc.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LastNotifiedAt)
	assert.Equal(t, storage.IncidentActive, got.Status)

	// the next failing cycle retries naturally
	transport.err = nil
	clk.advance(time.Minute)
	sent, err = th.MaybeAlert(ctx, target, storage.OutcomeOffline, "connection refused")
	require.NoError(t, err)
	assert.True(t, sent)
}

func TestSendRecoveryIsNeverThrottled(t *testing.T) {
	th, transport, _, _, target := setup(t, true, "owner@example.com")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		sent, err := th.SendRecovery(ctx, target, 12)
		require.NoError(t, err)
		assert.True(t, sent)
	}

	msgs := transport.messages()
	require.Len(t, msgs, 3)
	assert.True(t, msgs[0].Recovery)
	assert.Contains(t, msgs[0].Body, "12 minutes")
}

func TestDispatchRoutesRequests(t *testing.T) {
	th, transport, clk, db, target := setup(t, true, "owner@example.com")
	openIncident(t, db, target, storage.OutcomeStatusCodeError, clk.now())

	th.Dispatch(context.Background(), target, []Request{
		{Kind: AlertRequest, IncidentKind: storage.OutcomeStatusCodeError, Description: "expected 200, got 503"},
		{Kind: RecoveryRequest, DurationMinutes: 3},
	})

	msgs := transport.messages()
	require.Len(t, msgs, 2)
	assert.False(t, msgs[0].Recovery)
	assert.True(t, msgs[1].Recovery)
}
