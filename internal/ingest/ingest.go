// Package ingest decodes broker deliveries and hands them to the coordinator.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"updatebot/internal/coordinator"
	"updatebot/internal/domain"
	"updatebot/internal/observability"
	sqsqueue "updatebot/internal/queue/sqs"
	"updatebot/internal/util"
)

const (
	ExchangeSubscriptions = "subscriptions"
	ExchangeNotifications = "notifications"
	ExchangeUpdates       = "updates"

	KeySubscriptionCreated = "subscription.created"
	KeySubscriptionRemoved = "subscription.removed"
	KeySubscriptionUpdated = "subscription.updated"
	KeyPatchNote           = "patch-note.notification"
	KeyUpdateStatus        = "update.status"
	KeyUpdateRequested     = "update.requested"
)

var (
	ErrMalformed    = errors.New("malformed payload")
	ErrUnknownTopic = errors.New("no handler for topic")
)

type Coordinator interface {
	NotifyPatchNote(ctx context.Context, ev domain.PatchNoteEvent) coordinator.Summary
	NotifySubscription(ctx context.Context, ev domain.SubscriptionEvent, subscribed bool) error
	HandleStatus(ctx context.Context, ev domain.UpdateStatusEvent) error
}

type Ingestor struct {
	coord    Coordinator
	validate *validator.Validate
}

func New(coord Coordinator) *Ingestor {
	return &Ingestor{coord: coord, validate: validator.New()}
}

// Handle is a sqsqueue.Handler. The returned error is only logged by the
// consumer; the delivery is acknowledged either way.
func (i *Ingestor) Handle(ctx context.Context, d sqsqueue.Delivery) error {
	deliveryID := d.MessageID
	if deliveryID == "" {
		deliveryID = util.NewDeliveryID()
	}
	topic := d.Topic.String()
	log := slog.With("delivery_id", deliveryID, "topic", topic)

	err := i.dispatch(ctx, d)
	switch {
	case err == nil:
		observability.EventsConsumed.WithLabelValues(topic, "ok").Inc()
		log.Debug("delivery handled")
	case errors.Is(err, ErrMalformed):
		observability.EventsConsumed.WithLabelValues(topic, "malformed").Inc()
		log.Warn("malformed delivery dropped", "err", err)
	default:
		observability.EventsConsumed.WithLabelValues(topic, "error").Inc()
	}
	return err
}

func (i *Ingestor) dispatch(ctx context.Context, d sqsqueue.Delivery) error {
	switch d.Topic.Exchange + "/" + d.Topic.RoutingKey {
	case ExchangeSubscriptions + "/" + KeySubscriptionCreated,
		ExchangeSubscriptions + "/" + KeySubscriptionRemoved,
		ExchangeSubscriptions + "/" + KeySubscriptionUpdated:
		var ev domain.SubscriptionEvent
		if err := i.decode(d.Body, &ev); err != nil {
			return err
		}
		subscribed := ev.IsSubscribed
		switch d.Topic.RoutingKey {
		case KeySubscriptionCreated:
			subscribed = true
		case KeySubscriptionRemoved:
			subscribed = false
		}
		return i.coord.NotifySubscription(ctx, ev, subscribed)

	case ExchangeNotifications + "/" + KeyPatchNote:
		var ev domain.PatchNoteEvent
		if err := i.decode(d.Body, &ev); err != nil {
			return err
		}
		i.coord.NotifyPatchNote(ctx, ev)
		return nil

	case ExchangeUpdates + "/" + KeyUpdateStatus:
		var ev domain.UpdateStatusEvent
		if err := i.decode(d.Body, &ev); err != nil {
			return err
		}
		return i.coord.HandleStatus(ctx, ev)
	}
	return fmt.Errorf("%w: %s", ErrUnknownTopic, d.Topic.String())
}

func (i *Ingestor) decode(body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err := i.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return nil
}
