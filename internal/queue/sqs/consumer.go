package sqsqueue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// API is the subset of the SQS client used here.
type API interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Topic is one exchange/routing-key binding, backed by its own queue.
type Topic struct {
	Exchange   string
	RoutingKey string
	QueueURL   string
}

func (t Topic) String() string { return t.Exchange + "/" + t.RoutingKey }

// Delivery is one received message, handed to the handler undecoded.
type Delivery struct {
	MessageID  string
	Topic      Topic
	Body       []byte
	Attributes map[string]string
}

type Handler func(ctx context.Context, d Delivery) error

type Consumer struct {
	SQS   API
	Topic Topic

	WaitTimeSeconds   int32
	MaxMessages       int32
	VisibilityTimeout int32
}

// PollConcurrent processes messages with a worker pool. Every message is deleted
// once the handler returns, whatever the outcome: redelivery would replay chat
// side effects, so failures are logged and dropped.
func (c *Consumer) PollConcurrent(ctx context.Context, workers int, handler Handler) error {
	if workers <= 0 {
		workers = 1
	}

	jobs := make(chan types.Message, workers*2)
	errCh := make(chan error, 1)

	sendErr := func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				c.handle(ctx, m, handler)
			}
		}()
	}

	// Producer: fetch messages and enqueue for workers
	go func() {
		defer close(jobs)

		for {
			if ctx.Err() != nil {
				sendErr(ctx.Err())
				return
			}

			out, err := c.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
				QueueUrl:              &c.Topic.QueueURL,
				MaxNumberOfMessages:   c.MaxMessages,
				WaitTimeSeconds:       c.WaitTimeSeconds,
				VisibilityTimeout:     c.VisibilityTimeout,
				MessageAttributeNames: []string{"All"},
			})
			if err != nil {
				if ctx.Err() != nil {
					sendErr(ctx.Err())
					return
				}
				slog.Error("sqs receive message failed", "err", err, "topic", c.Topic.String())
				select {
				case <-ctx.Done():
					sendErr(ctx.Err())
					return
				case <-time.After(500 * time.Millisecond):
				}
				continue
			}

			for _, m := range out.Messages {
				select {
				case jobs <- m:
				case <-ctx.Done():
					sendErr(ctx.Err())
					return
				}
			}
		}
	}()

	// Wait for shutdown signal (ctx canceled) or producer signals error
	err := <-errCh

	// Let workers finish whatever is already in `jobs` (channel will be closed by producer)
	wg.Wait()
	return err
}

func (c *Consumer) handle(ctx context.Context, m types.Message, handler Handler) {
	defer c.delete(m)

	if m.Body == nil {
		slog.Warn("sqs message without body", "topic", c.Topic.String())
		return
	}
	d := Delivery{
		Topic:      c.Topic,
		Body:       []byte(*m.Body),
		Attributes: attributes(m.MessageAttributes),
	}
	if m.MessageId != nil {
		d.MessageID = *m.MessageId
	}
	if err := handler(ctx, d); err != nil {
		slog.Error("sqs handler error", "err", err, "topic", c.Topic.String(), "sqs_message_id", d.MessageID)
	}
}

// delete uses a fresh context so a shutdown does not leave a handled message on the queue.
func (c *Consumer) delete(m types.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.SQS.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &c.Topic.QueueURL,
		ReceiptHandle: m.ReceiptHandle,
	}); err != nil {
		slog.Error("sqs delete message failed", "err", err, "topic", c.Topic.String())
	}
}

func attributes(in map[string]types.MessageAttributeValue) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if v.StringValue != nil {
			out[k] = *v.StringValue
		}
	}
	return out
}
