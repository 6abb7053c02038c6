// Package events publishes pipeline notifications to EventBridge. The
// only event today is DeliveryFailed, which drives the redispatch worker.
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/rs/zerolog/log"
)

const (
	// Source identifies this service on the event bus.
	Source = "replyflow.dispatch"

	// DetailTypeDeliveryFailed is the detail-type for failed DM dispatches.
	DetailTypeDeliveryFailed = "delivery-failed"
)

// DeliveryFailed is the event detail published when a DM dispatch fails.
// Attempt is the number of sends tried so far, including the failed one.
type DeliveryFailed struct {
	MediaID   string `json:"mediaId"`
	MessageID string `json:"messageId"`
	Attempt   int    `json:"attempt"`
}

// Publisher emits events onto a named EventBridge bus.
type Publisher struct {
	client  *eventbridge.Client
	busName string
}

// NewPublisher creates a Publisher for the given bus. An empty busName
// targets the account's default bus.
func NewPublisher(client *eventbridge.Client, busName string) *Publisher {
	return &Publisher{client: client, busName: busName}
}

// PublishDeliveryFailed emits one delivery-failed event. The caller treats
// a publish failure as non-fatal; the ERROR message record is authoritative.
func (p *Publisher) PublishDeliveryFailed(ctx context.Context, event DeliveryFailed) error {
	detail, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal DeliveryFailed: %w", err)
	}

	entry := eventbridgetypes.PutEventsRequestEntry{
		Source:     aws.String(Source),
		DetailType: aws.String(DetailTypeDeliveryFailed),
		Detail:     aws.String(string(detail)),
	}
	if p.busName != "" {
		entry.EventBusName = aws.String(p.busName)
	}

	result, err := p.client.PutEvents(ctx, &eventbridge.PutEventsInput{
		Entries: []eventbridgetypes.PutEventsRequestEntry{entry},
	})
	if err != nil {
		log.Error().Err(err).Str("messageId", event.MessageID).Msg("EventBridge PutEvents failed")
		return fmt.Errorf("PutEvents: %w", err)
	}

	if result.FailedEntryCount > 0 {
		for i, e := range result.Entries {
			if e.ErrorCode != nil || e.ErrorMessage != nil {
				log.Error().
					Int("index", i).
					Str("errorCode", aws.ToString(e.ErrorCode)).
					Str("errorMessage", aws.ToString(e.ErrorMessage)).
					Str("messageId", event.MessageID).
					Msg("EventBridge PutEvents entry failed")
				return fmt.Errorf("PutEvents entry %d failed: %s - %s", i, aws.ToString(e.ErrorCode), aws.ToString(e.ErrorMessage))
			}
		}
	}

	log.Debug().Str("messageId", event.MessageID).Int("attempt", event.Attempt).Msg("Delivery-failed event published")
	return nil
}
