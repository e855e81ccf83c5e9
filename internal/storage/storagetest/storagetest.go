// Package storagetest opens throwaway in-memory databases for tests.
package storagetest

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/ankityadav/uptimed/internal/config"
	"github.com/ankityadav/uptimed/internal/storage"
)

// New returns a migrated sqlite database private to the calling test. It is
// closed when the test finishes.
func New(tb testing.TB) *storage.Database {
	tb.Helper()

	db, err := storage.Open(config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	if err != nil {
		tb.Fatalf("open test database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		tb.Fatalf("migrate test database: %v", err)
	}
	tb.Cleanup(func() { _ = db.Close() })
	return db
}

// Seed inserts an owner with email and an active target pointing at url.
// Zero fields in tmpl are filled with sensible defaults.
func Seed(tb testing.TB, db *storage.Database, tmpl storage.Target, email string) storage.Target {
	tb.Helper()
	ctx := context.Background()

	if tmpl.UserID == "" {
		tmpl.UserID = uuid.NewString()
	}
	if email != "" {
		if err := db.CreateUser(ctx, &storage.User{ID: tmpl.UserID, Email: email}); err != nil {
			tb.Fatalf("seed user: %v", err)
		}
	}
	if tmpl.Name == "" {
		tmpl.Name = "example"
	}
	if tmpl.CheckFrequency == 0 {
		tmpl.CheckFrequency = 60
	}
	if tmpl.Timeout == 0 {
		tmpl.Timeout = 5
	}
	if tmpl.ExpectedStatusCode == 0 {
		tmpl.ExpectedStatusCode = 200
	}
	if err := db.CreateTarget(ctx, &tmpl); err != nil {
		tb.Fatalf("seed target: %v", err)
	}
	return tmpl
}
