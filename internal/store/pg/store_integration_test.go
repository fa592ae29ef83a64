//go:build integration
// +build integration

package pg

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"updatebot/internal/domain"
	"updatebot/internal/store"
)

func TestCreateGetDelete(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStore(t)
	defer cleanup()

	in := domain.UpdateContext{
		UpdateID: "u1", UserID: "42", ChatID: 42, GameID: "g1", AppID: "a1",
		GameName: "Game", AppName: "App", MessageID: 7,
		Status: domain.StatusPending, OriginalMessage: "Update available",
	}
	if err := s.Create(ctx, in); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Create(ctx, in); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ChatID != 42 || got.MessageID != 7 || got.Status != domain.StatusPending || got.OriginalMessage != "Update available" {
		t.Fatalf("unexpected context %+v", got)
	}

	if err := s.Delete(ctx, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestMutateStatusRowLock(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStore(t)
	defer cleanup()

	_ = s.Create(ctx, domain.UpdateContext{
		UpdateID: "u2", UserID: "1", ChatID: 1, MessageID: 1,
		Status: domain.StatusProcessing, OriginalMessage: "base",
	})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, next := range []domain.Status{domain.StatusCompleted, domain.StatusFailed} {
		wg.Add(1)
		go func(i int, next domain.Status) {
			defer wg.Done()
			_, errs[i] = s.MutateStatus(ctx, "u2", next, string(next))
		}(i, next)
	}
	wg.Wait()

	applied := 0
	for _, err := range errs {
		if err == nil {
			applied++
		} else if !errors.Is(err, store.ErrInvalidTransition) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if applied != 1 {
		t.Fatalf("expected one applied transition, got %d", applied)
	}
	got, _ := s.Get(ctx, "u2")
	if got.OriginalMessage != "base\n\n"+string(got.Status) {
		t.Fatalf("history does not match final status: %q / %s", got.OriginalMessage, got.Status)
	}
}

func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	dsn := os.Getenv("TEST_DB_DSN")
	if dsn == "" {
		t.Skip("TEST_DB_DSN not set")
	}

	schema := fmt.Sprintf("test_%d", time.Now().UnixNano())
	admin, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect admin db: %v", err)
	}
	if _, err := admin.Exec(context.Background(), "CREATE SCHEMA "+schema); err != nil {
		admin.Close()
		t.Fatalf("create schema: %v", err)
	}

	dbDSN, err := withSearchPath(dsn, schema)
	if err != nil {
		admin.Close()
		t.Fatalf("build dsn: %v", err)
	}
	db, err := NewPool(context.Background(), dbDSN, PoolOptions{MaxConns: 4})
	if err != nil {
		admin.Close()
		t.Fatalf("connect test db: %v", err)
	}

	s := New(db)
	if err := s.EnsureSchema(context.Background()); err != nil {
		db.Close()
		admin.Close()
		t.Fatalf("ensure schema: %v", err)
	}

	return s, func() {
		db.Close()
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
		admin.Close()
	}
}

func withSearchPath(dsn, schema string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	q := u.Query()
	opts := q.Get("options")
	if opts != "" {
		opts = opts + " -c search_path=" + schema
	} else {
		opts = "-c search_path=" + schema
	}
	q.Set("options", opts)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
