package coordinator

import (
	"context"
	"errors"
	"testing"

	"updatebot/internal/domain"
	"updatebot/internal/providers/settings"
	"updatebot/internal/publisher"
	sqsqueue "updatebot/internal/queue/sqs"
	"updatebot/internal/store"
)

type registeringSettings struct{}

func (registeringSettings) GetSettings(_ context.Context, appID, gameID string) (settings.Settings, error) {
	return settings.Settings{AppID: appID, GameID: gameID, UpdateCommand: "run"}, nil
}

func (registeringSettings) RegisterUpdateRequest(context.Context, settings.RegisterRequest) (settings.RegisterResponse, error) {
	return settings.RegisterResponse{ID: "server-assigned-42"}, nil
}

type capturingBroker struct {
	events []domain.UpdateRequestedEvent
}

func (b *capturingBroker) Publish(_ context.Context, _ sqsqueue.Topic, v any) error {
	b.events = append(b.events, v.(domain.UpdateRequestedEvent))
	return nil
}

// The executor answers on the id carried by update.requested; that id must
// find the context created for the notification.
func TestStatusKeyedByPublishedIDCompletesContext(t *testing.T) {
	gw := &fakeGateway{}
	broker := &capturingBroker{}
	c, st := newTestCoordinator(gw, nil)
	c.publisher = &publisher.Publisher{Settings: registeringSettings{}, Broker: broker}
	ctx := context.Background()

	c.NotifyPatchNote(ctx, patchNote("11"))
	id := updateIDOf(t, gw.sends[0])

	if err := c.HandleInteraction(ctx, domain.Interaction{CallbackID: "cb", Token: gw.sends[0].control.Token, FromID: 11}); err != nil {
		t.Fatalf("interaction: %v", err)
	}
	if len(broker.events) != 1 {
		t.Fatalf("expected one published event, got %d", len(broker.events))
	}
	published := broker.events[0].ID
	if published != id {
		t.Fatalf("published id %q, context id %q", published, id)
	}

	if err := c.HandleStatus(ctx, domain.UpdateStatusEvent{ID: published, Status: "COMPLETED"}); err != nil {
		t.Fatalf("status: %v", err)
	}
	if _, err := st.Get(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("context should be evicted after COMPLETED, got %v", err)
	}
	if len(gw.edits) != 2 {
		t.Fatalf("expected request and completion edits, got %d", len(gw.edits))
	}
}
