// Package inbound routes updates received from the bot platform.
package inbound

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"updatebot/internal/domain"
	"updatebot/internal/providers/telegram"
)

var ErrUnauthorized = errors.New("interaction without a sender")

type Interactions interface {
	HandleInteraction(ctx context.Context, in domain.Interaction) error
}

// CommandResponder answers text commands such as /start. Optional.
type CommandResponder interface {
	Respond(ctx context.Context, chatID int64, command string) error
}

type Router struct {
	Interactions Interactions
	Commands     CommandResponder
}

func (r *Router) Dispatch(ctx context.Context, u telegram.Update) error {
	switch {
	case u.CallbackQuery != nil:
		return r.callback(ctx, u.CallbackQuery)
	case u.Message != nil:
		return r.message(ctx, u.Message)
	}
	return nil
}

func (r *Router) callback(ctx context.Context, cq *telegram.CallbackQuery) error {
	if cq.From == nil || cq.From.ID == 0 {
		slog.Warn("callback query rejected", "callback_id", cq.ID)
		return ErrUnauthorized
	}
	in := domain.Interaction{
		CallbackID: cq.ID,
		Token:      cq.Data,
		FromID:     cq.From.ID,
	}
	if cq.Message != nil {
		in.MessageID = cq.Message.MessageID
		if cq.Message.Chat != nil {
			in.ChatID = cq.Message.Chat.ID
		}
	}
	return r.Interactions.HandleInteraction(ctx, in)
}

func (r *Router) message(ctx context.Context, m *telegram.Message) error {
	text := strings.TrimSpace(m.Text)
	if r.Commands == nil || !strings.HasPrefix(text, "/") || m.Chat == nil {
		return nil
	}
	cmd, _, _ := strings.Cut(text, " ")
	return r.Commands.Respond(ctx, m.Chat.ID, cmd)
}

// Handle adapts Dispatch to the long-polling callback, logging failures.
func (r *Router) Handle(ctx context.Context, u telegram.Update) {
	if err := r.Dispatch(ctx, u); err != nil {
		slog.Error("inbound update failed", "update_id", u.UpdateID, "err", err)
	}
}
