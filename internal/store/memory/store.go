package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"updatebot/internal/domain"
	"updatebot/internal/store"
)

type entry struct {
	mu      sync.Mutex
	uc      domain.UpdateContext
	deleted bool
}

// Store keeps update contexts in process memory. Each entry has its own mutex;
// there is no lock shared across keys.
type Store struct {
	entries sync.Map // update id -> *entry
	live    atomic.Int64
	now     func() time.Time
}

func New() *Store {
	return &Store{now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) Create(_ context.Context, uc domain.UpdateContext) error {
	if uc.UpdateID == "" {
		return domain.ErrMissingFields
	}
	now := s.now()
	uc.CreatedAt, uc.UpdatedAt = now, now
	e := &entry{uc: uc}
	if _, loaded := s.entries.LoadOrStore(uc.UpdateID, e); loaded {
		return store.ErrAlreadyExists
	}
	s.live.Add(1)
	return nil
}

func (s *Store) Get(_ context.Context, updateID string) (domain.UpdateContext, error) {
	e, err := s.lock(updateID)
	if err != nil {
		return domain.UpdateContext{}, err
	}
	defer e.mu.Unlock()
	return e.uc, nil
}

func (s *Store) MutateStatus(_ context.Context, updateID string, next domain.Status, fragment string) (domain.UpdateContext, error) {
	e, err := s.lock(updateID)
	if err != nil {
		return domain.UpdateContext{}, err
	}
	defer e.mu.Unlock()

	if !domain.CanTransition(e.uc.Status, next) {
		return e.uc, store.ErrInvalidTransition
	}
	e.uc.Status = next
	e.uc.OriginalMessage = domain.AppendHistory(e.uc.OriginalMessage, fragment)
	e.uc.UpdatedAt = s.now()
	return e.uc, nil
}

func (s *Store) Delete(_ context.Context, updateID string) error {
	e, err := s.lock(updateID)
	if err != nil {
		return err
	}
	defer e.mu.Unlock()

	e.deleted = true
	s.entries.CompareAndDelete(updateID, e)
	s.live.Add(-1)
	return nil
}

func (s *Store) Len(context.Context) (int, error) {
	return int(s.live.Load()), nil
}

// lock returns the live entry for updateID with its mutex held.
func (s *Store) lock(updateID string) (*entry, error) {
	v, ok := s.entries.Load(updateID)
	if !ok {
		return nil, store.ErrNotFound
	}
	e := v.(*entry)
	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return nil, store.ErrNotFound
	}
	return e, nil
}
