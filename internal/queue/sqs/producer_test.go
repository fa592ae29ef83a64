package sqsqueue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type fakeSQS struct {
	mu       sync.Mutex
	batches  [][]types.Message
	deleted  []string
	sent     []*sqs.SendMessageInput
	received chan struct{}
}

func (f *fakeSQS) ReceiveMessage(ctx context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	f.mu.Lock()
	if len(f.batches) > 0 {
		b := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return &sqs.ReceiveMessageOutput{Messages: b}, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.mu.Lock()
	f.deleted = append(f.deleted, *in.ReceiptHandle)
	f.mu.Unlock()
	if f.received != nil {
		f.received <- struct{}{}
	}
	return &sqs.DeleteMessageOutput{}, nil
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{MessageId: str("m-1")}, nil
}

func TestPublishCarriesBindingAttributes(t *testing.T) {
	api := &fakeSQS{}
	p := &Producer{SQS: api}
	topic := Topic{Exchange: "updates", RoutingKey: "update.requested", QueueURL: "http://q/updates-requested"}

	if err := p.Publish(context.Background(), topic, map[string]string{"id": "u1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(api.sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(api.sent))
	}
	in := api.sent[0]
	if *in.QueueUrl != topic.QueueURL {
		t.Fatalf("unexpected queue %s", *in.QueueUrl)
	}
	if got := *in.MessageAttributes[AttrRoutingKey].StringValue; got != "update.requested" {
		t.Fatalf("unexpected routing key %q", got)
	}
	if got := *in.MessageAttributes[AttrExchange].StringValue; got != "updates" {
		t.Fatalf("unexpected exchange %q", got)
	}
	var body map[string]string
	if err := json.Unmarshal([]byte(*in.MessageBody), &body); err != nil || body["id"] != "u1" {
		t.Fatalf("unexpected body %s", *in.MessageBody)
	}
}

func TestConsumerDeletesEveryDelivery(t *testing.T) {
	api := &fakeSQS{
		batches: [][]types.Message{{
			{MessageId: str("1"), ReceiptHandle: str("r1"), Body: str(`{"ok":true}`)},
			{MessageId: str("2"), ReceiptHandle: str("r2"), Body: str(`not json`)},
			{MessageId: str("3"), ReceiptHandle: str("r3")},
		}},
		received: make(chan struct{}, 3),
	}
	c := &Consumer{SQS: api, Topic: Topic{Exchange: "updates", RoutingKey: "update.status", QueueURL: "q"}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	var handled sync.Map
	go func() {
		done <- c.PollConcurrent(ctx, 2, func(_ context.Context, d Delivery) error {
			handled.Store(d.MessageID, true)
			if d.MessageID == "2" {
				return errors.New("bad payload")
			}
			return nil
		})
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-api.received:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for deletes, got %d", i)
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if len(api.deleted) != 3 {
		t.Fatalf("expected 3 deletes, got %v", api.deleted)
	}
	if _, ok := handled.Load("3"); ok {
		t.Fatalf("message without body should not reach the handler")
	}
}
