// Package automation implements the comment-to-DM pipeline: campaign
// resolution, keyword matching, dedup/suppression, DM dispatch, and
// outcome recording. The webhook handler feeds it canonical comment
// events; everything upstream of the trust boundary stays out of this
// package.
package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/replyflow/replyflow/internal/events"
	"github.com/replyflow/replyflow/internal/messenger"
	"github.com/replyflow/replyflow/internal/secrets"
	"github.com/replyflow/replyflow/internal/store"
)

// CommentEvent is the canonical form of one inbound comment, produced by
// the webhook normalizer from the provider envelope.
type CommentEvent struct {
	MediaID      string
	CommentID    string
	Text         string
	FromUserID   string
	FromUsername string
}

// Outcome is the terminal state of one comment event's trip through the
// pipeline. Every outcome is a successful handling from the webhook
// caller's perspective; only unexpected errors escape as errors.
type Outcome string

const (
	// OutcomeSent: keyword matched, DM delivered, SENT message recorded.
	OutcomeSent Outcome = "sent"
	// OutcomeFailed: keyword matched but the DM dispatch failed; an ERROR
	// message was recorded with the provider's error detail.
	OutcomeFailed Outcome = "failed"
	// OutcomeNoCampaign: no active automation for the media ID.
	OutcomeNoCampaign Outcome = "no_campaign"
	// OutcomeNoMatch: active campaign but no keyword matched.
	OutcomeNoMatch Outcome = "no_match"
	// OutcomeSuppressed: a DM was already dispatched to this commenter on
	// this campaign within the suppression window.
	OutcomeSuppressed Outcome = "suppressed"
)

// Store is the subset of the persistence interface the pipeline needs.
type Store interface {
	GetActiveCampaign(ctx context.Context, mediaID string) (*store.ResolvedCampaign, error)
	ReserveDispatch(ctx context.Context, mediaID, fromUserID string, now time.Time) (bool, error)
	PutComment(ctx context.Context, comment *store.Comment) error
	PutMessage(ctx context.Context, message *store.Message) error
}

// Messenger dispatches one DM through the provider's messaging API.
type Messenger interface {
	SendDM(ctx context.Context, igBusinessID, recipientID, text, accessToken string) messenger.DeliveryResult
}

// FailurePublisher notifies the redispatch worker of failed deliveries.
type FailurePublisher interface {
	PublishDeliveryFailed(ctx context.Context, event events.DeliveryFailed) error
}

// Pipeline processes canonical comment events. All collaborators are
// injected; construct once per process and share across deliveries.
type Pipeline struct {
	store     Store
	messenger Messenger
	cipher    *secrets.Cipher

	// events is optional; when nil, failed deliveries are recorded but no
	// redispatch event is published.
	events FailurePublisher

	// now is replaceable for tests; defaults to time.Now.
	now func() time.Time
}

// NewPipeline creates a Pipeline. events may be nil to disable
// delivery-failure notifications.
func NewPipeline(s Store, m Messenger, cipher *secrets.Cipher, events FailurePublisher) *Pipeline {
	return &Pipeline{
		store:     s,
		messenger: m,
		cipher:    cipher,
		events:    events,
		now:       time.Now,
	}
}

// Process runs one comment event through campaign resolution, keyword
// matching, suppression, dispatch, and recording. Terminal no-ops return
// a non-error Outcome; an error return means an unexpected failure the
// caller should surface as a 500 so the provider redelivers.
func (p *Pipeline) Process(ctx context.Context, ev CommentEvent) (Outcome, error) {
	resolved, err := p.store.GetActiveCampaign(ctx, ev.MediaID)
	if err != nil {
		return "", fmt.Errorf("resolve campaign: %w", err)
	}
	if resolved == nil {
		log.Info().Str("mediaId", ev.MediaID).Str("commentId", ev.CommentID).Msg("No active campaign for media, skipping")
		return OutcomeNoCampaign, nil
	}
	campaign := resolved.Campaign

	keyword, matched := MatchKeyword(campaign, ev.Text)
	if !matched {
		log.Info().
			Str("campaignId", campaign.ID).
			Str("commentId", ev.CommentID).
			Int("keywords", len(campaign.Keywords)).
			Msg("No keyword matched, skipping")
		return OutcomeNoMatch, nil
	}

	keywordID := ""
	if keyword != nil {
		keywordID = keyword.ID
	}

	now := p.now()

	// The comment record is written as soon as the match is confirmed,
	// before the dedup check and dispatch. Suppressed comments are still
	// part of the record.
	comment := &store.Comment{
		ID:               ev.CommentID,
		MediaID:          ev.MediaID,
		CampaignID:       campaign.ID,
		FromUserID:       ev.FromUserID,
		FromUsername:     ev.FromUsername,
		Text:             ev.Text,
		MatchedKeywordID: keywordID,
		ReceivedAt:       now.Unix(),
	}
	if err := p.store.PutComment(ctx, comment); err != nil {
		return "", fmt.Errorf("record comment: %w", err)
	}

	reserved, err := p.store.ReserveDispatch(ctx, ev.MediaID, ev.FromUserID, now)
	if err != nil {
		return "", fmt.Errorf("dedup check: %w", err)
	}
	if !reserved {
		log.Info().
			Str("campaignId", campaign.ID).
			Str("fromUserId", ev.FromUserID).
			Msg("DM already dispatched within suppression window, suppressing")
		return OutcomeSuppressed, nil
	}

	result := p.dispatch(ctx, resolved, ev)

	message := &store.Message{
		ID:           "msg-" + uuid.NewString(),
		MediaID:      ev.MediaID,
		CampaignID:   campaign.ID,
		KeywordID:    keywordID,
		FromUserID:   ev.FromUserID,
		FromUsername: ev.FromUsername,
		CreatedAt:    now.Unix(),
		Attempts:     1,
	}
	if result.OK {
		message.Status = store.StatusSent
		message.SentAt = p.now().Unix()
	} else {
		message.Status = store.StatusError
		message.ErrorText = result.ErrorDetail
	}

	if err := p.store.PutMessage(ctx, message); err != nil {
		return "", fmt.Errorf("record message: %w", err)
	}

	if result.OK {
		log.Info().
			Str("campaignId", campaign.ID).
			Str("messageId", message.ID).
			Str("fromUserId", ev.FromUserID).
			Msg("DM sent")
		return OutcomeSent, nil
	}

	log.Warn().
		Str("campaignId", campaign.ID).
		Str("messageId", message.ID).
		Str("errorText", message.ErrorText).
		Msg("DM dispatch failed")

	// Best-effort: the ERROR record stands on its own even if the
	// redispatch notification cannot be published.
	if p.events != nil {
		failure := events.DeliveryFailed{
			MediaID:   ev.MediaID,
			MessageID: message.ID,
			Attempt:   message.Attempts,
		}
		if err := p.events.PublishDeliveryFailed(ctx, failure); err != nil {
			log.Warn().Err(err).Str("messageId", message.ID).Msg("Failed to publish delivery-failed event")
		}
	}

	return OutcomeFailed, nil
}

// dispatch renders the campaign template, decrypts the account credential,
// and issues the outbound send. A credential that cannot be decrypted is a
// delivery failure, not a pipeline error: it is recorded like any other
// dispatch failure.
func (p *Pipeline) dispatch(ctx context.Context, resolved *store.ResolvedCampaign, ev CommentEvent) messenger.DeliveryResult {
	text := RenderTemplate(resolved.Campaign.Template, ev.FromUsername, ev.MediaID)

	accessToken, err := p.cipher.Decrypt(resolved.Account.AccessTokenEnc)
	if err != nil {
		return messenger.DeliveryResult{ErrorDetail: fmt.Sprintf("decrypt access token: %v", err)}
	}

	return p.messenger.SendDM(ctx, resolved.Account.IGBusinessID, ev.FromUserID, text, accessToken)
}
