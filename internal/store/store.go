// Package store provides the system of record for the comment-to-DM
// automation pipeline: connected accounts, per-post campaigns and their
// keywords, matched comments, and DM delivery records.
//
// The package uses a single-table DynamoDB design. Campaign data is keyed
// by the external media ID (partition key MEDIA#{mediaId}) so the webhook
// hot path resolves an automation with one GetItem plus one keyword Query.
// Sort keys distinguish record types: CAMPAIGN, KEYWORD#, COMMENT#, MSG#,
// and DEDUP#. Accounts live under their own partition (ACCOUNT#{accountId}).
package store

import (
	"context"
	"time"
)

// SuppressionWindow is the trailing interval within which a second DM to
// the same commenter on the same campaign is blocked. Fixed, not
// configurable per campaign.
const SuppressionWindow = 24 * time.Hour

// Message delivery statuses.
const (
	StatusSent  = "SENT"
	StatusError = "ERROR"
	StatusRetry = "RETRY"
)

// Store defines the persistence interface for the automation pipeline and
// the admin tooling. Each method is safe for concurrent use.
//
// All Get methods return (nil, nil) when the requested record does not
// exist. All Put methods perform full-item replacement (upsert semantics).
type Store interface {
	// --- Accounts ---

	// PutAccount creates or replaces a connected account record.
	PutAccount(ctx context.Context, account *Account) error

	// GetAccount retrieves an account by ID. Returns nil, nil if not found.
	GetAccount(ctx context.Context, accountID string) (*Account, error)

	// --- Campaigns ---

	// PutCampaign creates or replaces the campaign bound to its media ID.
	PutCampaign(ctx context.Context, campaign *Campaign) error

	// GetActiveCampaign resolves the active campaign for a media ID with
	// its active keywords and owning account loaded. Returns nil, nil when
	// no active campaign exists for the media ID, a valid terminal state
	// for webhook events on unregistered or paused posts.
	GetActiveCampaign(ctx context.Context, mediaID string) (*ResolvedCampaign, error)

	// SetCampaignActive toggles the active flag without touching other
	// fields. Soft-disable is the steady-state pause operation; campaigns
	// are never hard-deleted from the hot path.
	SetCampaignActive(ctx context.Context, mediaID string, active bool) error

	// ListCampaigns returns all campaigns (active and paused). Admin use
	// only; scans the table.
	ListCampaigns(ctx context.Context) ([]*Campaign, error)

	// --- Keywords ---

	// PutKeyword creates or replaces a keyword on a campaign.
	PutKeyword(ctx context.Context, mediaID string, keyword *Keyword) error

	// DeleteKeyword removes a keyword from a campaign.
	DeleteKeyword(ctx context.Context, mediaID, keywordID string) error

	// --- Pipeline records ---

	// ReserveDispatch atomically claims the right to DM a commenter on a
	// campaign. Returns false when a dispatch was already reserved within
	// the suppression window; the caller must then suppress the send.
	ReserveDispatch(ctx context.Context, mediaID, fromUserID string, now time.Time) (bool, error)

	// PutComment records a matched inbound comment. Comments are immutable;
	// re-delivery of the same webhook event overwrites with identical data.
	PutComment(ctx context.Context, comment *Comment) error

	// PutMessage records one DM delivery attempt.
	PutMessage(ctx context.Context, message *Message) error

	// GetMessage retrieves a delivery record. Returns nil, nil if not found.
	GetMessage(ctx context.Context, mediaID, messageID string) (*Message, error)
}

// --- Domain types ---
//
// Each type maps to a DynamoDB record. Fields derived from PK/SK carry
// dynamodbav:"-" and are restored on read.

// Account represents one connected Instagram Business identity. The access
// token is stored AES-GCM encrypted and base64 encoded; only the dispatcher
// decrypts it, per request, in memory.
type Account struct {
	ID             string `json:"id" dynamodbav:"-"`
	UserID         string `json:"userId" dynamodbav:"userId"`
	PageID         string `json:"pageId" dynamodbav:"pageId"`
	IGBusinessID   string `json:"igBusinessId" dynamodbav:"igBusinessId"`
	AccessTokenEnc string `json:"-" dynamodbav:"accessTokenEnc"`
	ConnectedAt    int64  `json:"connectedAt" dynamodbav:"connectedAt"`
}

// Campaign is one automation bound to one external media item.
type Campaign struct {
	ID           string `json:"id" dynamodbav:"id"`
	MediaID      string `json:"mediaId" dynamodbav:"-"`
	AccountID    string `json:"accountId" dynamodbav:"accountId"`
	Name         string `json:"name" dynamodbav:"name"`
	Caption      string `json:"caption,omitempty" dynamodbav:"caption,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty" dynamodbav:"thumbnailUrl,omitempty"`
	Template     string `json:"template" dynamodbav:"template"`
	Active       bool   `json:"active" dynamodbav:"active"`
	ListenAll    bool   `json:"listenAll" dynamodbav:"listenAll"`

	// Keywords are loaded by GetActiveCampaign in stored order; the first
	// matching keyword in this order wins ties.
	Keywords []Keyword `json:"keywords,omitempty" dynamodbav:"-"`
}

// Keyword is a trigger word configured on a campaign. Word is stored
// lowercase; the matcher re-normalizes defensively.
type Keyword struct {
	ID     string `json:"id" dynamodbav:"-"`
	Word   string `json:"word" dynamodbav:"word"`
	Active bool   `json:"active" dynamodbav:"active"`
}

// Comment is an immutable record of one matched inbound comment.
// MatchedKeywordID is empty when a listen-all campaign matched with no
// specific keyword.
type Comment struct {
	ID               string `json:"id" dynamodbav:"-"`
	MediaID          string `json:"mediaId" dynamodbav:"-"`
	CampaignID       string `json:"campaignId" dynamodbav:"campaignId"`
	FromUserID       string `json:"fromUserId" dynamodbav:"fromUserId"`
	FromUsername     string `json:"fromUsername,omitempty" dynamodbav:"fromUsername,omitempty"`
	Text             string `json:"text" dynamodbav:"text"`
	MatchedKeywordID string `json:"matchedKeywordId,omitempty" dynamodbav:"matchedKeywordId,omitempty"`
	ReceivedAt       int64  `json:"receivedAt" dynamodbav:"receivedAt"`
}

// Message is one outbound DM attempt tied to a comment's triggering
// context. SentAt is zero unless the send succeeded. Attempts counts
// dispatch attempts including redispatches.
type Message struct {
	ID           string `json:"id" dynamodbav:"-"`
	MediaID      string `json:"mediaId" dynamodbav:"-"`
	CampaignID   string `json:"campaignId" dynamodbav:"campaignId"`
	KeywordID    string `json:"keywordId,omitempty" dynamodbav:"keywordId,omitempty"`
	FromUserID   string `json:"fromUserId" dynamodbav:"fromUserId"`
	FromUsername string `json:"fromUsername,omitempty" dynamodbav:"fromUsername,omitempty"`
	Status       string `json:"status" dynamodbav:"status"`
	ErrorText    string `json:"errorText,omitempty" dynamodbav:"errorText,omitempty"`
	SentAt       int64  `json:"sentAt,omitempty" dynamodbav:"sentAt,omitempty"`
	CreatedAt    int64  `json:"createdAt" dynamodbav:"createdAt"`
	Attempts     int    `json:"attempts" dynamodbav:"attempts"`
}

// ResolvedCampaign bundles an active campaign with its owning account so
// the dispatcher has the access credential without a second lookup.
type ResolvedCampaign struct {
	Campaign *Campaign
	Account  *Account
}
