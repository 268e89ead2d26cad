package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESAPI is the subset of the SES v2 client used for email delivery.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailChannel sends plain-text notification emails through Amazon SES.
type EmailChannel struct {
	client     SESAPI
	from       string
	configSet  string
	portalBase string
}

func NewEmailChannel(client SESAPI, from, configSet, portalBase string) *EmailChannel {
	return &EmailChannel{
		client:     client,
		from:       from,
		configSet:  configSet,
		portalBase: strings.TrimRight(portalBase, "/"),
	}
}

func (c *EmailChannel) Name() string { return ChannelEmail }

// Deliver skips users without an email address.
func (c *EmailChannel) Deliver(ctx context.Context, d Delivery) error {
	if strings.TrimSpace(d.Email) == "" {
		return nil
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(c.from),
		Destination: &types.Destination{
			ToAddresses: []string{d.Email},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(d.Title), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(c.body(d)), Charset: aws.String("UTF-8")},
				},
			},
		},
		EmailTags: []types.MessageTag{
			{Name: aws.String("event"), Value: aws.String(tagValue(d.Event))},
		},
	}
	if c.configSet != "" {
		input.ConfigurationSetName = aws.String(c.configSet)
	}

	if _, err := c.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", d.Email, err)
	}
	return nil
}

func (c *EmailChannel) body(d Delivery) string {
	var b strings.Builder
	if d.Name != "" {
		fmt.Fprintf(&b, "Hello %s,\n\n", d.Name)
	}
	b.WriteString(d.Message)
	b.WriteString("\n")
	if c.portalBase != "" {
		if id := d.DocumentID(); id != nil {
			fmt.Fprintf(&b, "\nOpen the document: %s/documents/%s\n", c.portalBase, id)
		}
	}
	return b.String()
}

// SES tag values allow only alphanumerics, '_' and '-'.
func tagValue(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, s)
}
