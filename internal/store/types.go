package store

import (
	"context"
	"errors"

	"updatebot/internal/domain"
)

var (
	ErrNotFound          = errors.New("update context not found")
	ErrAlreadyExists     = errors.New("update context already exists")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// CorrelationStore maps an update id to the context of the message it produced.
// Operations on one id are linearizable; operations on different ids never block each other.
type CorrelationStore interface {
	Create(ctx context.Context, uc domain.UpdateContext) error
	Get(ctx context.Context, updateID string) (domain.UpdateContext, error)
	// MutateStatus moves the context to next and appends fragment to its message history.
	MutateStatus(ctx context.Context, updateID string, next domain.Status, fragment string) (domain.UpdateContext, error)
	Delete(ctx context.Context, updateID string) error
	Len(ctx context.Context) (int, error)
}
