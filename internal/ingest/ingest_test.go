package ingest

import (
	"context"
	"errors"
	"testing"

	"updatebot/internal/coordinator"
	"updatebot/internal/domain"
	sqsqueue "updatebot/internal/queue/sqs"
)

type fakeCoordinator struct {
	patchNotes    []domain.PatchNoteEvent
	subscriptions []bool
	statuses      []domain.UpdateStatusEvent
}

func (f *fakeCoordinator) NotifyPatchNote(_ context.Context, ev domain.PatchNoteEvent) coordinator.Summary {
	f.patchNotes = append(f.patchNotes, ev)
	return coordinator.Summary{Recipients: len(ev.Recipients), Sent: len(ev.Recipients)}
}

func (f *fakeCoordinator) NotifySubscription(_ context.Context, _ domain.SubscriptionEvent, subscribed bool) error {
	f.subscriptions = append(f.subscriptions, subscribed)
	return nil
}

func (f *fakeCoordinator) HandleStatus(_ context.Context, ev domain.UpdateStatusEvent) error {
	f.statuses = append(f.statuses, ev)
	return nil
}

func delivery(exchange, key, body string) sqsqueue.Delivery {
	return sqsqueue.Delivery{
		MessageID: "m1",
		Topic:     sqsqueue.Topic{Exchange: exchange, RoutingKey: key},
		Body:      []byte(body),
	}
}

func TestPatchNoteIsDispatched(t *testing.T) {
	fc := &fakeCoordinator{}
	in := New(fc)

	err := in.Handle(context.Background(), delivery(ExchangeNotifications, KeyPatchNote,
		`{"app":{"id":"a1","name":"Launcher"},"game":{"id":"g1","name":"Space"},"recipients":["11","22"]}`))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(fc.patchNotes) != 1 || len(fc.patchNotes[0].Recipients) != 2 {
		t.Fatalf("unexpected dispatch %+v", fc.patchNotes)
	}
}

func TestSubscriptionRoutingKeyDecidesDirection(t *testing.T) {
	fc := &fakeCoordinator{}
	in := New(fc)
	body := `{"userId":"7","game":{"id":"g","name":"G"},"app":{"id":"a","name":"A"},"isSubscribed":true}`

	for _, key := range []string{KeySubscriptionCreated, KeySubscriptionRemoved, KeySubscriptionUpdated} {
		if err := in.Handle(context.Background(), delivery(ExchangeSubscriptions, key, body)); err != nil {
			t.Fatalf("%s: %v", key, err)
		}
	}
	want := []bool{true, false, true}
	for i, got := range fc.subscriptions {
		if got != want[i] {
			t.Fatalf("subscription %d: got %v want %v", i, got, want[i])
		}
	}
}

func TestMalformedPayloadsAreRejected(t *testing.T) {
	cases := map[string]sqsqueue.Delivery{
		"not json":         delivery(ExchangeUpdates, KeyUpdateStatus, `{`),
		"missing id":       delivery(ExchangeUpdates, KeyUpdateStatus, `{"status":"COMPLETED"}`),
		"unknown status":   delivery(ExchangeUpdates, KeyUpdateStatus, `{"id":"u1","status":"DONE"}`),
		"no recipients":    delivery(ExchangeNotifications, KeyPatchNote, `{"app":{"id":"a","name":"A"},"game":{"id":"g","name":"G"},"recipients":[]}`),
		"non-numeric user": delivery(ExchangeSubscriptions, KeySubscriptionCreated, `{"userId":"bob","game":{"id":"g","name":"G"},"app":{"id":"a","name":"A"}}`),
	}
	for name, d := range cases {
		t.Run(name, func(t *testing.T) {
			fc := &fakeCoordinator{}
			if err := New(fc).Handle(context.Background(), d); !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
			if len(fc.statuses)+len(fc.patchNotes)+len(fc.subscriptions) != 0 {
				t.Fatalf("malformed payload reached the coordinator")
			}
		})
	}
}

func TestStatusIsDispatched(t *testing.T) {
	fc := &fakeCoordinator{}
	err := New(fc).Handle(context.Background(), delivery(ExchangeUpdates, KeyUpdateStatus,
		`{"id":"u1","userId":"7","gameId":"g","appId":"a","status":"PROCESSING","message":"working"}`))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(fc.statuses) != 1 || fc.statuses[0].Message != "working" {
		t.Fatalf("unexpected dispatch %+v", fc.statuses)
	}
}

func TestUnknownTopic(t *testing.T) {
	err := New(&fakeCoordinator{}).Handle(context.Background(), delivery("misc", "x", `{}`))
	if !errors.Is(err, ErrUnknownTopic) {
		t.Fatalf("expected ErrUnknownTopic, got %v", err)
	}
}
