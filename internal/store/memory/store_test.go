package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"updatebot/internal/domain"
	"updatebot/internal/store"
)

func newContext(id string) domain.UpdateContext {
	return domain.UpdateContext{
		UpdateID:        id,
		UserID:          "42",
		ChatID:          42,
		GameID:          "g1",
		AppID:           "a1",
		GameName:        "Game",
		AppName:         "App",
		MessageID:       7,
		Status:          domain.StatusPending,
		OriginalMessage: "Update available",
	}
}

func TestCreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	in := newContext("u1")
	if err := s.Create(ctx, in); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	in.CreatedAt, in.UpdatedAt = got.CreatedAt, got.UpdatedAt
	if got != in {
		t.Fatalf("got %+v, want %+v", got, in)
	}
	if n, _ := s.Len(ctx); n != 1 {
		t.Fatalf("expected 1 live entry, got %d", n)
	}
}

func TestCreateCollision(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Create(ctx, newContext("u1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	other := newContext("u1")
	other.MessageID = 99
	if err := s.Create(ctx, other); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	got, _ := s.Get(ctx, "u1")
	if got.MessageID != 7 {
		t.Fatalf("existing entry was overwritten: message id %d", got.MessageID)
	}
}

func TestMutateStatusKeepsMessageIdentity(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Create(ctx, newContext("u1"))

	got, err := s.MutateStatus(ctx, "u1", domain.StatusProcessing, "processing")
	if err != nil {
		t.Fatalf("mutate: %v", err)
	}
	if got.Status != domain.StatusProcessing {
		t.Fatalf("expected PROCESSING, got %s", got.Status)
	}
	if got.OriginalMessage != "Update available\n\nprocessing" {
		t.Fatalf("unexpected message history %q", got.OriginalMessage)
	}
	if got.ChatID != 42 || got.MessageID != 7 {
		t.Fatalf("chat/message ids changed: %d/%d", got.ChatID, got.MessageID)
	}

	if _, err := s.MutateStatus(ctx, "u1", domain.StatusPending, ""); !errors.Is(err, store.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	after, _ := s.Get(ctx, "u1")
	if after.Status != domain.StatusProcessing || after.OriginalMessage != got.OriginalMessage {
		t.Fatalf("rejected transition changed the entry: %+v", after)
	}
}

func TestDeleteThenNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Create(ctx, newContext("u1"))

	if err := s.Delete(ctx, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := s.MutateStatus(ctx, "u1", domain.StatusFailed, ""); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on mutate, got %v", err)
	}
	if err := s.Delete(ctx, "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
	if n, _ := s.Len(ctx); n != 0 {
		t.Fatalf("expected 0 live entries, got %d", n)
	}
}

func TestConcurrentMutateStatusIsSerialized(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		s := New()
		_ = s.Create(ctx, newContext("u1"))
		_, _ = s.MutateStatus(ctx, "u1", domain.StatusProcessing, "")

		var wg sync.WaitGroup
		results := make([]error, 2)
		for j, next := range []domain.Status{domain.StatusCompleted, domain.StatusFailed} {
			wg.Add(1)
			go func(j int, next domain.Status) {
				defer wg.Done()
				_, results[j] = s.MutateStatus(ctx, "u1", next, string(next))
			}(j, next)
		}
		wg.Wait()

		got, _ := s.Get(ctx, "u1")
		var winners int
		for j, err := range results {
			if err == nil {
				winners++
				want := []domain.Status{domain.StatusCompleted, domain.StatusFailed}[j]
				if got.Status != want {
					t.Fatalf("status %s does not match the applied call %s", got.Status, want)
				}
				if got.OriginalMessage != "Update available\n\n"+string(want) {
					t.Fatalf("interleaved history %q", got.OriginalMessage)
				}
			} else if !errors.Is(err, store.ErrInvalidTransition) {
				t.Fatalf("unexpected error %v", err)
			}
		}
		if winners != 1 {
			t.Fatalf("expected exactly one applied transition, got %d", winners)
		}
	}
}

func TestDistinctKeysDoNotBlock(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.Create(ctx, newContext("a"))
	_ = s.Create(ctx, newContext("b"))

	e, err := s.lock("a")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_, _ = s.MutateStatus(ctx, "b", domain.StatusProcessing, "")
		close(done)
	}()
	<-done
}
