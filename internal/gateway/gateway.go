// Package gateway sends and edits bot messages with rate limiting, a circuit
// breaker and bounded retries in front of the Telegram client.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"updatebot/internal/domain"
	"updatebot/internal/observability"
	"updatebot/internal/providers/telegram"
)

var (
	ErrSendFailed    = errors.New("send message failed")
	ErrEditFailed    = errors.New("edit message failed")
	ErrAnswerFailed  = errors.New("answer callback failed")
	ErrChatNotFound  = errors.New("chat not resolved")
	ErrInvalidUserID = errors.New("user id is not a chat id")
)

// Bot is the subset of the Bot API the gateway drives.
type Bot interface {
	SendMessage(ctx context.Context, req telegram.SendMessageRequest) (telegram.Message, error)
	EditMessageText(ctx context.Context, req telegram.EditMessageTextRequest) error
	AnswerCallbackQuery(ctx context.Context, callbackID, text string) error
	GetChat(ctx context.Context, chatID int64) (telegram.Chat, error)
}

type Gateway struct {
	Bot     Bot
	Limiter *rate.Limiter
	Breaker *gobreaker.CircuitBreaker

	// MaxAttempts bounds retries of transient failures. Zero means 3.
	MaxAttempts int
	CallTimeout time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

func New(bot Bot, limiter *rate.Limiter, breaker *gobreaker.CircuitBreaker) *Gateway {
	return &Gateway{Bot: bot, Limiter: limiter, Breaker: breaker}
}

// NewBreaker trips after consecutive transient failures. Client errors such as a
// deleted message or a parse error do not count against the platform.
func NewBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !telegram.ShouldRetry(err)
		},
	})
}

// Send posts text to chatID and returns the new message id. A nil control sends no keyboard.
func (g *Gateway) Send(ctx context.Context, chatID int64, text string, mode domain.ParseMode, control *domain.Control) (int64, error) {
	markup, err := keyboard(control, false)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	var msg telegram.Message
	err = g.withFallback(ctx, "sendMessage", false, mode, func(ctx context.Context, m domain.ParseMode) error {
		var callErr error
		msg, callErr = g.Bot.SendMessage(ctx, telegram.SendMessageRequest{
			ChatID:      chatID,
			Text:        text,
			ParseMode:   string(m),
			ReplyMarkup: markup,
		})
		return callErr
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return msg.MessageID, nil
}

// Edit replaces the message text and keyboard. A nil control removes the keyboard.
// Repeating an identical edit succeeds.
func (g *Gateway) Edit(ctx context.Context, chatID, messageID int64, text string, mode domain.ParseMode, control *domain.Control) error {
	markup, err := keyboard(control, true)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEditFailed, err)
	}

	err = g.withFallback(ctx, "editMessageText", true, mode, func(ctx context.Context, m domain.ParseMode) error {
		return g.Bot.EditMessageText(ctx, telegram.EditMessageTextRequest{
			ChatID:      chatID,
			MessageID:   messageID,
			Text:        text,
			ParseMode:   string(m),
			ReplyMarkup: markup,
		})
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEditFailed, err)
	}
	return nil
}

func (g *Gateway) AnswerCallback(ctx context.Context, callbackID, text string) error {
	err := g.do(ctx, "answerCallbackQuery", true, func(ctx context.Context) error {
		return g.Bot.AnswerCallbackQuery(ctx, callbackID, text)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAnswerFailed, err)
	}
	return nil
}

// ResolveChat maps a platform user id to the private chat the bot can write to.
func (g *Gateway) ResolveChat(ctx context.Context, userID string) (int64, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidUserID, userID)
	}

	var chat telegram.Chat
	err = g.do(ctx, "getChat", true, func(ctx context.Context) error {
		var callErr error
		chat, callErr = g.Bot.GetChat(ctx, id)
		return callErr
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrChatNotFound, err)
	}
	if chat.ID == 0 {
		return id, nil
	}
	return chat.ID, nil
}

// withFallback retries a formatted call once as plain text when the platform
// rejects the markup.
func (g *Gateway) withFallback(ctx context.Context, method string, idempotent bool, mode domain.ParseMode, call func(context.Context, domain.ParseMode) error) error {
	err := g.do(ctx, method, idempotent, func(ctx context.Context) error { return call(ctx, mode) })
	if err == nil || mode == domain.ParseModePlain || !telegram.IsParseError(err) {
		return err
	}
	slog.Warn("telegram rejected markup, resending as plain text", "method", method, "err", err)
	return g.do(ctx, method, idempotent, func(ctx context.Context) error { return call(ctx, domain.ParseModePlain) })
}

// do runs call with bounded retries. A timed out call that is not idempotent is
// not repeated, since the platform may already have applied it.
func (g *Gateway) do(ctx context.Context, method string, idempotent bool, call func(context.Context) error) error {
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if g.Limiter != nil {
			if err := g.Limiter.Wait(ctx); err != nil {
				observability.GatewayCalls.WithLabelValues(method, "rate_limited_local").Inc()
				return err
			}
		}

		start := time.Now()
		err := g.executeWithBreaker(ctx, call)
		observability.GatewayLatency.WithLabelValues(method).Observe(time.Since(start).Seconds())

		if err == nil {
			observability.GatewayCalls.WithLabelValues(method, "ok").Inc()
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			observability.GatewayCalls.WithLabelValues(method, "cb_open").Inc()
			return err
		}

		lastErr = err
		observability.GatewayCalls.WithLabelValues(method, "error").Inc()
		if !telegram.ShouldRetry(err) || (!idempotent && telegram.IsTimeout(err)) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		if err := g.wait(ctx, telegram.Backoff(err, attempt)); err != nil {
			return lastErr
		}
	}
	return lastErr
}

func (g *Gateway) executeWithBreaker(ctx context.Context, call func(context.Context) error) error {
	run := func() (any, error) {
		timeout := g.CallTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return nil, call(reqCtx)
	}
	if g.Breaker == nil {
		_, err := run()
		return err
	}
	_, err := g.Breaker.Execute(run)
	return err
}

func (g *Gateway) wait(ctx context.Context, d time.Duration) error {
	if g.sleep != nil {
		return g.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// keyboard builds the single-row inline keyboard. For edits a nil control yields
// an empty keyboard so the existing button is removed.
func keyboard(control *domain.Control, forEdit bool) (*telegram.InlineKeyboardMarkup, error) {
	if control == nil {
		if forEdit {
			return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{}}, nil
		}
		return nil, nil
	}
	if len(control.Token) > domain.ControlTokenMaxBytes {
		return nil, domain.ErrControlTooLong
	}
	return &telegram.InlineKeyboardMarkup{InlineKeyboard: [][]telegram.InlineKeyboardButton{
		{{Text: control.Label, CallbackData: control.Token}},
	}}, nil
}
