package incident

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/ankityadav/uptimed/internal/logger"
	"github.com/ankityadav/uptimed/internal/storage"
	"github.com/ankityadav/uptimed/internal/storage/storagetest"
)

var outcomes = []storage.Outcome{
	storage.OutcomeOnline,
	storage.OutcomeTimeout,
	storage.OutcomeOffline,
	storage.OutcomeStatusCodeError,
}

func genOutcomes() gopter.Gen {
	return gen.SliceOf(gen.IntRange(0, len(outcomes)-1))
}

// At most one active incident per (target, kind) after every step, and a
// success leaves nothing open.
func TestPropertyAtMostOneActivePerKind(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 30
	props := gopter.NewProperties(params)

	props.Property("one active incident per kind", prop.ForAll(
		func(steps []int) bool {
			db := storagetest.New(t)
			target := storagetest.Seed(t, db, storage.Target{URL: "https://example.com", IsActive: true}, "")
			ctx := context.Background()

			now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			m := New(db, logger.Discard())
			m.now = func() time.Time { return now }

			for _, idx := range steps {
				now = now.Add(time.Minute)
				outcome := outcomes[idx]
				if _, err := m.OnResult(ctx, target, storage.CheckResult{Status: outcome}); err != nil {
					return false
				}

				open, err := db.FindOpenIncidents(ctx, target.ID, "")
				if err != nil {
					return false
				}
				perKind := make(map[storage.Outcome]int)
				for _, inc := range open {
					perKind[inc.Type]++
					if perKind[inc.Type] > 1 {
						return false
					}
				}
				if outcome == storage.OutcomeOnline && len(open) != 0 {
					return false
				}
			}
			return true
		},
		genOutcomes(),
	))

	props.Property("resolved incidents carry resolution and duration together", prop.ForAll(
		func(steps []int) bool {
			db := storagetest.New(t)
			target := storagetest.Seed(t, db, storage.Target{URL: "https://example.com", IsActive: true}, "")
			ctx := context.Background()

			now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			m := New(db, logger.Discard())
			m.now = func() time.Time { return now }

			for _, idx := range steps {
				now = now.Add(45 * time.Second)
				if _, err := m.OnResult(ctx, target, storage.CheckResult{Status: outcomes[idx]}); err != nil {
					return false
				}
			}

			all, err := db.ListIncidents(ctx, target.ID)
			if err != nil {
				return false
			}
			for _, inc := range all {
				resolved := inc.Status == storage.IncidentResolved
				if resolved != (inc.ResolvedAt != nil) || resolved != (inc.DurationMinutes != nil) {
					return false
				}
				if inc.DurationMinutes != nil && *inc.DurationMinutes < 0 {
					return false
				}
			}
			return true
		},
		genOutcomes(),
	))

	props.TestingRun(t, gopter.ConsoleReporter(false))
}
