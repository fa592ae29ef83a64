// Package coordinator drives an update notification from first send to its
// terminal edit. All work on one update id is serialised through a keyed lock.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"updatebot/internal/domain"
	"updatebot/internal/keylock"
	"updatebot/internal/observability"
	"updatebot/internal/render"
	"updatebot/internal/store"
	"updatebot/internal/util"
)

type Gateway interface {
	Send(ctx context.Context, chatID int64, text string, mode domain.ParseMode, control *domain.Control) (int64, error)
	Edit(ctx context.Context, chatID, messageID int64, text string, mode domain.ParseMode, control *domain.Control) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	ResolveChat(ctx context.Context, userID string) (int64, error)
}

type Publisher interface {
	RequestUpdate(ctx context.Context, uc domain.UpdateContext) (domain.UpdateRequestedEvent, error)
}

type Coordinator struct {
	store     store.CorrelationStore
	gateway   Gateway
	publisher Publisher
	locks     *keylock.Map

	now   func() time.Time
	newID func() string
}

func New(st store.CorrelationStore, gw Gateway, pub Publisher) *Coordinator {
	return &Coordinator{
		store:     st,
		gateway:   gw,
		publisher: pub,
		locks:     keylock.New(),
		now:       util.NowUTC,
		newID:     util.NewUpdateID,
	}
}

// Summary counts per-recipient outcomes of one patch note. It is informational.
type Summary struct {
	Recipients int
	Sent       int
	Failed     int
}

// NotifyPatchNote sends one update notification per recipient and records a
// PENDING context for each message that went out. A failure for one recipient
// does not affect the others.
func (c *Coordinator) NotifyPatchNote(ctx context.Context, ev domain.PatchNoteEvent) Summary {
	sum := Summary{Recipients: len(ev.Recipients)}
	for _, userID := range ev.Recipients {
		if ctx.Err() != nil {
			sum.Failed += sum.Recipients - sum.Sent - sum.Failed
			break
		}
		updateID, err := c.notifyRecipient(ctx, ev, userID)
		if err != nil {
			sum.Failed++
			slog.Error("patch note delivery failed", "user_id", userID, "update_id", updateID,
				"app_id", ev.App.ID, "game_id", ev.Game.ID, "err", err)
			continue
		}
		sum.Sent++
	}
	slog.Info("patch note processed", "app_id", ev.App.ID, "game_id", ev.Game.ID,
		"recipients", sum.Recipients, "sent", sum.Sent, "failed", sum.Failed)
	return sum
}

func (c *Coordinator) notifyRecipient(ctx context.Context, ev domain.PatchNoteEvent, userID string) (string, error) {
	chatID, err := c.gateway.ResolveChat(ctx, userID)
	if err != nil {
		return "", err
	}

	updateID := c.newID()
	// Held across send and create so a press on the fresh button waits for the record.
	unlock := c.locks.Lock(updateID)
	defer unlock()

	control, err := render.UpdateControl(updateID)
	if err != nil {
		return updateID, err
	}
	text := render.PatchNote(ev.App, ev.Game)

	messageID, err := c.gateway.Send(ctx, chatID, text, domain.ParseModeMarkdown, control)
	if err != nil {
		return updateID, err
	}

	err = c.store.Create(ctx, domain.UpdateContext{
		UpdateID:        updateID,
		UserID:          userID,
		ChatID:          chatID,
		GameID:          ev.Game.ID,
		AppID:           ev.App.ID,
		GameName:        ev.Game.Name,
		AppName:         ev.App.Name,
		MessageID:       messageID,
		Status:          domain.StatusPending,
		OriginalMessage: text,
	})
	if err != nil {
		return updateID, fmt.Errorf("record context: %w", err)
	}
	observability.LiveContexts.Inc()
	slog.Info("update notification sent", "update_id", updateID, "user_id", userID, "chat_id", chatID, "message_id", messageID)
	return updateID, nil
}

// NotifySubscription confirms a subscribe or unsubscribe. Nothing is recorded.
func (c *Coordinator) NotifySubscription(ctx context.Context, ev domain.SubscriptionEvent, subscribed bool) error {
	chatID, err := c.gateway.ResolveChat(ctx, ev.UserID)
	if err != nil {
		return err
	}
	if _, err := c.gateway.Send(ctx, chatID, render.Subscription(ev, subscribed), domain.ParseModeHTML, nil); err != nil {
		return err
	}
	slog.Info("subscription notice sent", "user_id", ev.UserID, "app_id", ev.App.ID, "game_id", ev.Game.ID, "subscribed", subscribed)
	return nil
}

// HandleInteraction answers a press of the update button. Only a PENDING
// context can be requested; a failed publish leaves it PENDING with the button
// restored so the user can retry.
func (c *Coordinator) HandleInteraction(ctx context.Context, in domain.Interaction) error {
	updateID, ok := render.ParseControlToken(in.Token)
	if !ok {
		observability.Interactions.WithLabelValues("malformed").Inc()
		return c.answer(ctx, in.CallbackID, render.AnswerNoLongerValid)
	}

	unlock := c.locks.Lock(updateID)
	defer unlock()

	uc, err := c.store.Get(ctx, updateID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		observability.Interactions.WithLabelValues("stale").Inc()
		return c.answer(ctx, in.CallbackID, render.AnswerNoLongerValid)
	case err != nil:
		_ = c.answer(ctx, in.CallbackID, render.AnswerRequestFailed)
		return fmt.Errorf("load context %s: %w", updateID, err)
	case uc.Status != domain.StatusPending:
		observability.Interactions.WithLabelValues("stale").Inc()
		return c.answer(ctx, in.CallbackID, render.AnswerNoLongerValid)
	}

	if _, err := c.publisher.RequestUpdate(ctx, uc); err != nil {
		observability.Interactions.WithLabelValues("publish_failed").Inc()
		slog.Error("update request failed", "update_id", updateID, "user_id", uc.UserID, "err", err)
		_ = c.answer(ctx, in.CallbackID, render.AnswerRequestFailed)

		control, cerr := render.UpdateControl(updateID)
		if cerr != nil {
			return cerr
		}
		text := domain.AppendHistory(uc.OriginalMessage, render.RequestFailed())
		if eerr := c.gateway.Edit(ctx, uc.ChatID, uc.MessageID, text, domain.ParseModeMarkdown, control); eerr != nil {
			slog.Warn("edit after failed request failed", "update_id", updateID, "err", eerr)
		}
		return nil
	}

	observability.Interactions.WithLabelValues("requested").Inc()
	_ = c.answer(ctx, in.CallbackID, render.AnswerRequestSent)

	line := render.RequestSent(c.now())
	text := domain.AppendHistory(uc.OriginalMessage, line)
	if err := c.gateway.Edit(ctx, uc.ChatID, uc.MessageID, text, domain.ParseModeMarkdown, nil); err != nil {
		slog.Warn("edit after request failed", "update_id", updateID, "err", err)
	}
	if _, err := c.store.MutateStatus(ctx, updateID, domain.StatusProcessing, line); err != nil {
		return fmt.Errorf("mark processing %s: %w", updateID, err)
	}
	return nil
}

// HandleStatus applies a status report to the notification it belongs to.
// Reports for unknown ids and disallowed transitions are dropped.
func (c *Coordinator) HandleStatus(ctx context.Context, ev domain.UpdateStatusEvent) error {
	next, err := domain.ParseStatus(ev.Status)
	if err != nil {
		observability.StatusEvents.WithLabelValues("unknown_status").Inc()
		return fmt.Errorf("%w: %q", err, ev.Status)
	}

	unlock := c.locks.Lock(ev.ID)
	defer unlock()

	uc, err := c.store.Get(ctx, ev.ID)
	if errors.Is(err, store.ErrNotFound) {
		observability.StatusEvents.WithLabelValues("unknown_id").Inc()
		slog.Info("status for unknown update dropped", "update_id", ev.ID, "status", next)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load context %s: %w", ev.ID, err)
	}

	if !domain.CanTransition(uc.Status, next) {
		observability.StatusEvents.WithLabelValues("invalid_transition").Inc()
		slog.Error("invalid status transition dropped", "update_id", ev.ID, "from", uc.Status, "to", next)
		return nil
	}

	line := render.StatusLine(next, ev.Message, c.now())
	text := domain.AppendHistory(uc.OriginalMessage, line)

	var control *domain.Control
	if next == domain.StatusPending {
		if control, err = render.UpdateControl(ev.ID); err != nil {
			return err
		}
	}
	editErr := c.gateway.Edit(ctx, uc.ChatID, uc.MessageID, text, domain.ParseModeMarkdown, control)
	if editErr != nil {
		slog.Warn("status edit failed", "update_id", ev.ID, "status", next, "err", editErr)
	}

	if next.Terminal() {
		if err := c.store.Delete(ctx, ev.ID); err != nil {
			return fmt.Errorf("evict context %s: %w", ev.ID, err)
		}
		observability.LiveContexts.Dec()
		observability.StatusEvents.WithLabelValues("terminal").Inc()
		slog.Info("update finished", "update_id", ev.ID, "status", next)
		return nil
	}

	if _, err := c.store.MutateStatus(ctx, ev.ID, next, line); err != nil {
		return fmt.Errorf("mutate context %s: %w", ev.ID, err)
	}
	observability.StatusEvents.WithLabelValues("applied").Inc()
	return nil
}

func (c *Coordinator) answer(ctx context.Context, callbackID, text string) error {
	if callbackID == "" {
		return nil
	}
	return c.gateway.AnswerCallback(ctx, callbackID, text)
}
