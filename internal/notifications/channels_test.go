package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSES struct {
	mock.Mock
}

func (m *MockSES) SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*sesv2.SendEmailOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

type MockSNS struct {
	mock.Mock
}

func (m *MockSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*sns.PublishOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func sampleDelivery() Delivery {
	docID := uuid.New()
	return Delivery{
		NotificationID: uuid.New(),
		UserID:         uuid.New(),
		Name:           "Maria",
		Email:          "maria@gerona.gov.ph",
		Title:          "Document Forwarded",
		Message:        "PR-2026-0001 \"Office supplies\" is now Submitted.",
		Event:          "document.forwarded",
		Payload:        map[string]interface{}{"document_id": docID.String()},
		CreatedAt:      time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
}

func TestEmailChannel_Deliver(t *testing.T) {
	d := sampleDelivery()
	client := new(MockSES)
	client.On("SendEmail", mock.Anything, mock.MatchedBy(func(in *sesv2.SendEmailInput) bool {
		body := aws.ToString(in.Content.Simple.Body.Text.Data)
		return aws.ToString(in.FromEmailAddress) == "no-reply@gerona.gov.ph" &&
			in.Destination.ToAddresses[0] == d.Email &&
			aws.ToString(in.Content.Simple.Subject.Data) == d.Title &&
			aws.ToString(in.ConfigurationSetName) == "doctrack" &&
			aws.ToString(in.EmailTags[0].Value) == "document_forwarded" &&
			assert.Contains(t, body, "Hello Maria") &&
			assert.Contains(t, body, "https://portal.gerona.gov.ph/documents/"+d.DocumentID().String())
	})).Return(&sesv2.SendEmailOutput{MessageId: aws.String("m-1")}, nil).Once()

	ch := NewEmailChannel(client, "no-reply@gerona.gov.ph", "doctrack", "https://portal.gerona.gov.ph/")
	require.NoError(t, ch.Deliver(context.Background(), d))
	client.AssertExpectations(t)
}

func TestEmailChannel_SkipsMissingAddressAndWrapsErrors(t *testing.T) {
	client := new(MockSES)
	ch := NewEmailChannel(client, "no-reply@gerona.gov.ph", "", "")

	d := sampleDelivery()
	d.Email = "  "
	require.NoError(t, ch.Deliver(context.Background(), d))
	client.AssertNotCalled(t, "SendEmail", mock.Anything, mock.Anything)

	boom := errors.New("throttled")
	client.On("SendEmail", mock.Anything, mock.Anything).Return(nil, boom).Once()
	err := ch.Deliver(context.Background(), sampleDelivery())
	assert.ErrorIs(t, err, boom)
}

func TestPushChannel_Deliver(t *testing.T) {
	d := sampleDelivery()
	d.Title = string(make([]rune, 150))
	client := new(MockSNS)
	client.On("Publish", mock.Anything, mock.MatchedBy(func(in *sns.PublishInput) bool {
		return aws.ToString(in.TopicArn) == "arn:aws:sns:ap-southeast-1:123456789012:doctrack" &&
			len([]rune(aws.ToString(in.Subject))) == 100 &&
			aws.ToString(in.MessageAttributes["user_id"].StringValue) == d.UserID.String() &&
			aws.ToString(in.MessageAttributes["event"].StringValue) == "document.forwarded" &&
			assert.Contains(t, aws.ToString(in.Message), d.NotificationID.String())
	})).Return(&sns.PublishOutput{MessageId: aws.String("p-1")}, nil).Once()

	ch := NewPushChannel(client, "arn:aws:sns:ap-southeast-1:123456789012:doctrack")
	require.NoError(t, ch.Deliver(context.Background(), d))
	client.AssertExpectations(t)
}

func TestDelivery_DocumentID(t *testing.T) {
	assert.Nil(t, Delivery{}.DocumentID())
	assert.Nil(t, Delivery{Payload: map[string]interface{}{"document_id": "nope"}}.DocumentID())
	assert.NotNil(t, sampleDelivery().DocumentID())
}
