// Package publisher turns a button press into an update.requested event.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"updatebot/internal/domain"
	"updatebot/internal/observability"
	"updatebot/internal/providers/settings"
	sqsqueue "updatebot/internal/queue/sqs"
)

const Source = "telegram"

var ErrUpstream = errors.New("update request upstream failed")

type SettingsAPI interface {
	GetSettings(ctx context.Context, appID, gameID string) (settings.Settings, error)
	RegisterUpdateRequest(ctx context.Context, req settings.RegisterRequest) (settings.RegisterResponse, error)
}

type Broker interface {
	Publish(ctx context.Context, topic sqsqueue.Topic, v any) error
}

type Publisher struct {
	Settings SettingsAPI
	Broker   Broker
	Topic    sqsqueue.Topic
	Breaker  *gobreaker.CircuitBreaker

	sleep func(time.Duration)
}

// NewBreaker guards the settings service. Client errors do not trip it.
func NewBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "settings-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !settings.ShouldRetry(err)
		},
	})
}

// RequestUpdate looks up the execution command for the context's app, registers
// the request and publishes it. Any failure is wrapped in ErrUpstream.
func (p *Publisher) RequestUpdate(ctx context.Context, uc domain.UpdateContext) (domain.UpdateRequestedEvent, error) {
	var st settings.Settings
	err := p.call(ctx, func(ctx context.Context) error {
		var callErr error
		st, callErr = p.Settings.GetSettings(ctx, uc.AppID, uc.GameID)
		return callErr
	})
	if err != nil {
		observability.Publishes.WithLabelValues("settings_error").Inc()
		return domain.UpdateRequestedEvent{}, fmt.Errorf("%w: get settings: %w", ErrUpstream, err)
	}

	var reg settings.RegisterResponse
	err = p.call(ctx, func(ctx context.Context) error {
		var callErr error
		reg, callErr = p.Settings.RegisterUpdateRequest(ctx, settings.RegisterRequest{
			UpdateID: uc.UpdateID,
			UserID:   uc.UserID,
			AppID:    uc.AppID,
			GameID:   uc.GameID,
		})
		return callErr
	})
	if err != nil {
		observability.Publishes.WithLabelValues("register_error").Inc()
		return domain.UpdateRequestedEvent{}, fmt.Errorf("%w: register request: %w", ErrUpstream, err)
	}

	// Status reports come back keyed by the id we publish, so it must be the update id.
	ev := domain.UpdateRequestedEvent{
		ID:            uc.UpdateID,
		AppID:         uc.AppID,
		GameID:        uc.GameID,
		UserID:        uc.UserID,
		Source:        Source,
		UpdateCommand: st.UpdateCommand,
	}

	if err := p.Broker.Publish(ctx, p.Topic, ev); err != nil {
		observability.Publishes.WithLabelValues("broker_error").Inc()
		return domain.UpdateRequestedEvent{}, fmt.Errorf("%w: publish: %w", ErrUpstream, err)
	}
	observability.Publishes.WithLabelValues("ok").Inc()
	slog.Info("update requested", "update_id", uc.UpdateID, "registration_id", reg.ID, "app_id", ev.AppID, "game_id", ev.GameID)
	return ev, nil
}

func (p *Publisher) call(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		err := p.executeWithBreaker(ctx, fn)
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return err
		}
		lastErr = err
		if !settings.ShouldRetry(err) || ctx.Err() != nil {
			return err
		}
		if p.backoff(ctx, attempt) != nil {
			return lastErr
		}
	}
	return lastErr
}

func (p *Publisher) executeWithBreaker(ctx context.Context, fn func(context.Context) error) error {
	run := func() (any, error) {
		reqCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
		defer cancel()
		return nil, fn(reqCtx)
	}
	if p.Breaker == nil {
		_, err := run()
		return err
	}
	_, err := p.Breaker.Execute(run)
	return err
}

func (p *Publisher) backoff(ctx context.Context, attempt int) error {
	d := []time.Duration{200 * time.Millisecond, 600 * time.Millisecond, 1400 * time.Millisecond}[attempt]
	if p.sleep != nil {
		p.sleep(d)
		return nil
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
