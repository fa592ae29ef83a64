package pg

import (
	"context"
	_ "embed"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"updatebot/internal/domain"
	"updatebot/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// Store keeps update contexts in Postgres so in-flight correlations survive a restart.
type Store struct {
	DB  *pgxpool.Pool
	now func() time.Time
}

func New(db *pgxpool.Pool) *Store {
	return &Store{DB: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, schemaSQL)
	return err
}

const selectColumns = `update_id, user_id, chat_id, game_id, app_id, game_name, app_name,
	message_id, status, original_message, created_at, updated_at`

func (s *Store) Create(ctx context.Context, uc domain.UpdateContext) error {
	if uc.UpdateID == "" {
		return domain.ErrMissingFields
	}
	ct, err := s.DB.Exec(ctx, `
		INSERT INTO update_contexts (update_id, user_id, chat_id, game_id, app_id, game_name, app_name,
			message_id, status, original_message, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)
		ON CONFLICT (update_id) DO NOTHING
	`, uc.UpdateID, uc.UserID, uc.ChatID, uc.GameID, uc.AppID, uc.GameName, uc.AppName,
		uc.MessageID, string(uc.Status), uc.OriginalMessage, s.now())
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return store.ErrAlreadyExists
	}
	return nil
}

func (s *Store) Get(ctx context.Context, updateID string) (domain.UpdateContext, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+selectColumns+` FROM update_contexts WHERE update_id=$1`, updateID)
	return scanContext(row)
}

func (s *Store) MutateStatus(ctx context.Context, updateID string, next domain.Status, fragment string) (domain.UpdateContext, error) {
	return s.update(ctx, updateID, func(uc *domain.UpdateContext) error {
		if !domain.CanTransition(uc.Status, next) {
			return store.ErrInvalidTransition
		}
		uc.Status = next
		uc.OriginalMessage = domain.AppendHistory(uc.OriginalMessage, fragment)
		return nil
	})
}

func (s *Store) Delete(ctx context.Context, updateID string) error {
	ct, err := s.DB.Exec(ctx, `DELETE FROM update_contexts WHERE update_id=$1`, updateID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	err := s.DB.QueryRow(ctx, `SELECT count(*) FROM update_contexts`).Scan(&n)
	return n, err
}

// update applies fn to the row under SELECT ... FOR UPDATE, so same-key writers queue on the row lock.
func (s *Store) update(ctx context.Context, updateID string, fn func(*domain.UpdateContext) error) (domain.UpdateContext, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return domain.UpdateContext{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	uc, err := scanContext(tx.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM update_contexts WHERE update_id=$1 FOR UPDATE`, updateID))
	if err != nil {
		return domain.UpdateContext{}, err
	}
	if err := fn(&uc); err != nil {
		return uc, err
	}
	uc.UpdatedAt = s.now()

	if _, err := tx.Exec(ctx, `
		UPDATE update_contexts SET status=$2, original_message=$3, updated_at=$4 WHERE update_id=$1
	`, updateID, string(uc.Status), uc.OriginalMessage, uc.UpdatedAt); err != nil {
		return domain.UpdateContext{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.UpdateContext{}, err
	}
	return uc, nil
}

func scanContext(row pgx.Row) (domain.UpdateContext, error) {
	var uc domain.UpdateContext
	var status string
	err := row.Scan(&uc.UpdateID, &uc.UserID, &uc.ChatID, &uc.GameID, &uc.AppID, &uc.GameName, &uc.AppName,
		&uc.MessageID, &status, &uc.OriginalMessage, &uc.CreatedAt, &uc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UpdateContext{}, store.ErrNotFound
		}
		return domain.UpdateContext{}, err
	}
	uc.Status = domain.Status(status)
	return uc, nil
}
