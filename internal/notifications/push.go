package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSAPI is the subset of the SNS client used for push fan-out.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// PushChannel publishes notifications to an SNS topic. Subscribers filter on the
// user_id and event message attributes.
type PushChannel struct {
	client   SNSAPI
	topicARN string
}

func NewPushChannel(client SNSAPI, topicARN string) *PushChannel {
	return &PushChannel{client: client, topicARN: topicARN}
}

func (c *PushChannel) Name() string { return ChannelPush }

func (c *PushChannel) Deliver(ctx context.Context, d Delivery) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal push payload: %w", err)
	}

	_, err = c.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(c.topicARN),
		Message:  aws.String(string(body)),
		Subject:  aws.String(truncate(d.Title, 100)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"event": {
				DataType:    aws.String("String"),
				StringValue: aws.String(d.Event),
			},
			"user_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(d.UserID.String()),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish push notification: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
