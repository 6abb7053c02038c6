// Package main provides the Lambda entry point for DM redispatch.
//
// The webhook pipeline publishes a delivery-failed event for every DM
// dispatch that the messaging API rejects. An EventBridge rule routes
// those events here. This Lambda re-resolves the campaign, re-renders
// the template, and tries the send again, up to maxAttempts total
// attempts per message. Intermediate failures leave the record in RETRY
// and publish a fresh event; the final failure settles it as ERROR.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	lambdaevents "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/replyflow/replyflow/internal/automation"
	"github.com/replyflow/replyflow/internal/events"
	"github.com/replyflow/replyflow/internal/lambdaboot"
	"github.com/replyflow/replyflow/internal/logging"
	"github.com/replyflow/replyflow/internal/messenger"
	"github.com/replyflow/replyflow/internal/metrics"
	"github.com/replyflow/replyflow/internal/secrets"
	"github.com/replyflow/replyflow/internal/store"
)

// maxAttempts is the total number of dispatch attempts per message,
// counting the original webhook-path send.
const maxAttempts = 3

var (
	dataStore *store.DynamoStore
	dmClient  *messenger.Client
	cipher    *secrets.Cipher
	publisher *events.Publisher
)

func init() {
	initStart := time.Now()
	logging.Init()

	aws := lambdaboot.InitAWS()
	dataStore = lambdaboot.InitDynamo(aws.Config, "REPLYFLOW_TABLE")
	publisher = lambdaboot.InitEventBridge(aws.Config, "REPLYFLOW_EVENT_BUS")

	credentialKeyParam := logging.EnvOrDefault("SSM_CREDENTIAL_KEY_PARAM", "/replyflow/prod/credential-key")
	cipher = lambdaboot.LoadCipher(aws.SSM, "CREDENTIAL_KEY", credentialKeyParam)
	dmClient = messenger.NewClient()

	lambdaboot.StartupLog("redispatch-lambda", initStart).
		DynamoTable("replyflow", os.Getenv("REPLYFLOW_TABLE")).
		SSMParam("credentialKey", credentialKeyParam).
		EventBus("failures", os.Getenv("REPLYFLOW_EVENT_BUS")).
		Config("maxAttempts", fmt.Sprint(maxAttempts)).
		Log()
}

func main() {
	lambda.Start(handler)
}

func handler(ctx context.Context, event lambdaevents.CloudWatchEvent) error {
	var failed events.DeliveryFailed
	if err := json.Unmarshal(event.Detail, &failed); err != nil {
		return fmt.Errorf("decode delivery-failed detail: %w", err)
	}

	log.Info().
		Str("messageId", failed.MessageID).
		Str("mediaId", failed.MediaID).
		Int("attempt", failed.Attempt).
		Msg("Redispatch invoked")

	rec := metrics.New("ReplyFlow/Redispatch").Property("messageId", failed.MessageID)
	defer rec.Flush()

	message, err := dataStore.GetMessage(ctx, failed.MediaID, failed.MessageID)
	if err != nil {
		return fmt.Errorf("load message %s: %w", failed.MessageID, err)
	}
	if message == nil {
		log.Warn().Str("messageId", failed.MessageID).Msg("Message record not found, dropping redispatch")
		rec.Count("MessageNotFound")
		return nil
	}
	if message.Status == store.StatusSent {
		log.Info().Str("messageId", message.ID).Msg("Message already sent, dropping redispatch")
		rec.Count("AlreadySent")
		return nil
	}

	resolved, err := dataStore.GetActiveCampaign(ctx, message.MediaID)
	if err != nil {
		return fmt.Errorf("resolve campaign for media %s: %w", message.MediaID, err)
	}
	if resolved == nil {
		// The campaign was paused or removed since the original send.
		// Settle the record; there is nothing left to dispatch for.
		message.Status = store.StatusError
		message.ErrorText = "campaign no longer active"
		if err := dataStore.PutMessage(ctx, message); err != nil {
			return fmt.Errorf("record settled message: %w", err)
		}
		log.Info().Str("messageId", message.ID).Msg("Campaign inactive, redispatch abandoned")
		rec.Count("CampaignInactive")
		return nil
	}

	text := automation.RenderTemplate(resolved.Campaign.Template, message.FromUsername, message.MediaID)

	accessToken, err := cipher.Decrypt(resolved.Account.AccessTokenEnc)
	if err != nil {
		return fmt.Errorf("decrypt access token for account %s: %w", resolved.Account.ID, err)
	}

	result := dmClient.SendDM(ctx, resolved.Account.IGBusinessID, message.FromUserID, text, accessToken)
	message.Attempts++

	if result.OK {
		message.Status = store.StatusSent
		message.SentAt = time.Now().Unix()
		message.ErrorText = ""
		if err := dataStore.PutMessage(ctx, message); err != nil {
			return fmt.Errorf("record sent message: %w", err)
		}
		log.Info().Str("messageId", message.ID).Int("attempts", message.Attempts).Msg("Redispatch succeeded")
		rec.Count("RedispatchSuccess")
		return nil
	}

	message.ErrorText = result.ErrorDetail
	if message.Attempts >= maxAttempts {
		message.Status = store.StatusError
		if err := dataStore.PutMessage(ctx, message); err != nil {
			return fmt.Errorf("record failed message: %w", err)
		}
		log.Warn().
			Str("messageId", message.ID).
			Int("attempts", message.Attempts).
			Str("errorText", message.ErrorText).
			Msg("Redispatch attempts exhausted")
		rec.Count("RedispatchExhausted")
		return nil
	}

	message.Status = store.StatusRetry
	if err := dataStore.PutMessage(ctx, message); err != nil {
		return fmt.Errorf("record retrying message: %w", err)
	}

	if publisher != nil {
		failure := events.DeliveryFailed{
			MediaID:   message.MediaID,
			MessageID: message.ID,
			Attempt:   message.Attempts,
		}
		if err := publisher.PublishDeliveryFailed(ctx, failure); err != nil {
			// EventBridge rejected the follow-up. Returning the error lets
			// Lambda's own async retry re-run this attempt.
			return fmt.Errorf("publish follow-up delivery-failed event: %w", err)
		}
	}

	log.Warn().
		Str("messageId", message.ID).
		Int("attempts", message.Attempts).
		Str("errorText", message.ErrorText).
		Msg("Redispatch failed, will retry")
	rec.Count("RedispatchRetry")
	return nil
}
