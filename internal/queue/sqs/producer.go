package sqsqueue

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

const (
	AttrExchange    = "exchange"
	AttrRoutingKey  = "routing_key"
	AttrContentType = "content_type"
)

type Producer struct {
	SQS API
}

// Publish sends v as JSON to the topic's queue. The exchange and routing key
// travel as message attributes so consumers can tell bindings apart.
func (p *Producer) Publish(ctx context.Context, topic Topic, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = p.SQS.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          &topic.QueueURL,
		MessageBody:       str(string(body)),
		MessageAttributes: messageAttributes(topic),
	})
	return err
}

func messageAttributes(topic Topic) map[string]types.MessageAttributeValue {
	attrs := map[string]types.MessageAttributeValue{
		AttrContentType: stringAttr("application/json"),
	}
	if topic.Exchange != "" {
		attrs[AttrExchange] = stringAttr(topic.Exchange)
	}
	if topic.RoutingKey != "" {
		attrs[AttrRoutingKey] = stringAttr(topic.RoutingKey)
	}
	return attrs
}

func stringAttr(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{DataType: str("String"), StringValue: str(v)}
}

func str(s string) *string { return &s }
