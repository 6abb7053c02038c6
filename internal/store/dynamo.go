package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants for the single-table design.
const (
	accountPKPrefix = "ACCOUNT#"
	mediaPKPrefix   = "MEDIA#"

	skMeta     = "META"
	skCampaign = "CAMPAIGN"
	skKeyword  = "KEYWORD#"
	skComment  = "COMMENT#"
	skMessage  = "MSG#"
	skDedup    = "DEDUP#"
)

// DynamoStore implements Store using AWS DynamoDB.
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

// Compile-time interface check.
var _ Store = (*DynamoStore)(nil)

// NewDynamoStore creates a DynamoStore for the given table.
// The client should be initialized from the shared AWS config.
func NewDynamoStore(client *dynamodb.Client, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}
}

// --- Internal helpers ---

func accountPK(accountID string) string {
	return accountPKPrefix + accountID
}

func mediaPK(mediaID string) string {
	return mediaPKPrefix + mediaID
}

// putItem marshals a domain object and writes it to DynamoDB under PK/SK.
// The domain object should use dynamodbav:"-" for fields derived from PK/SK.
func (s *DynamoStore) putItem(ctx context.Context, pk, sk string, data interface{}) error {
	item, err := attributevalue.MarshalMap(data)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, sk, err)
	}
	return nil
}

// getItem reads a single item from DynamoDB and unmarshals it into out.
// Returns false if the item does not exist (out is not modified).
func (s *DynamoStore) getItem(ctx context.Context, pk, sk string, out interface{}) (bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: pk},
			"SK": &types.AttributeValueMemberS{Value: sk},
		},
	})
	if err != nil {
		return false, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, sk, err)
	}
	if result.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, sk, err)
	}
	return true, nil
}

// queryBySKPrefix queries all items under a partition where SK begins with
// the given prefix, in SK order. Handles pagination.
func (s *DynamoStore) queryBySKPrefix(ctx context.Context, pk, skPrefix string) ([]map[string]types.AttributeValue, error) {
	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :skPrefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":       &types.AttributeValueMemberS{Value: pk},
			":skPrefix": &types.AttributeValueMemberS{Value: skPrefix},
		},
	}

	var allItems []map[string]types.AttributeValue
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query PK=%s SK prefix=%s: %w", pk, skPrefix, err)
		}
		allItems = append(allItems, result.Items...)

		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	return allItems, nil
}

// --- Account operations ---

func (s *DynamoStore) PutAccount(ctx context.Context, account *Account) error {
	if account.ConnectedAt == 0 {
		account.ConnectedAt = time.Now().Unix()
	}

	if err := s.putItem(ctx, accountPK(account.ID), skMeta, account); err != nil {
		return fmt.Errorf("put account %s: %w", account.ID, err)
	}

	log.Debug().Str("accountId", account.ID).Str("igBusinessId", account.IGBusinessID).Msg("Account persisted")
	return nil
}

func (s *DynamoStore) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	var account Account
	found, err := s.getItem(ctx, accountPK(accountID), skMeta, &account)
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", accountID, err)
	}
	if !found {
		return nil, nil
	}

	account.ID = accountID
	return &account, nil
}

// --- Campaign operations ---

func (s *DynamoStore) PutCampaign(ctx context.Context, campaign *Campaign) error {
	if err := s.putItem(ctx, mediaPK(campaign.MediaID), skCampaign, campaign); err != nil {
		return fmt.Errorf("put campaign %s: %w", campaign.ID, err)
	}

	log.Debug().
		Str("campaignId", campaign.ID).
		Str("mediaId", campaign.MediaID).
		Bool("active", campaign.Active).
		Bool("listenAll", campaign.ListenAll).
		Msg("Campaign persisted")
	return nil
}

func (s *DynamoStore) GetActiveCampaign(ctx context.Context, mediaID string) (*ResolvedCampaign, error) {
	var campaign Campaign
	found, err := s.getItem(ctx, mediaPK(mediaID), skCampaign, &campaign)
	if err != nil {
		return nil, fmt.Errorf("get campaign for media %s: %w", mediaID, err)
	}
	if !found || !campaign.Active {
		return nil, nil
	}
	campaign.MediaID = mediaID

	// Keywords are attached in query (SK) order; the matcher relies on
	// that order for its tie-break.
	items, err := s.queryBySKPrefix(ctx, mediaPK(mediaID), skKeyword)
	if err != nil {
		return nil, fmt.Errorf("get keywords for media %s: %w", mediaID, err)
	}
	for _, item := range items {
		var kw Keyword
		if err := attributevalue.UnmarshalMap(item, &kw); err != nil {
			log.Warn().Err(err).Str("mediaId", mediaID).Msg("Failed to unmarshal keyword, skipping")
			continue
		}
		if !kw.Active {
			continue
		}
		if skAttr, ok := item["SK"].(*types.AttributeValueMemberS); ok {
			kw.ID = strings.TrimPrefix(skAttr.Value, skKeyword)
		}
		campaign.Keywords = append(campaign.Keywords, kw)
	}

	account, err := s.GetAccount(ctx, campaign.AccountID)
	if err != nil {
		return nil, fmt.Errorf("resolve campaign %s: %w", campaign.ID, err)
	}
	if account == nil {
		return nil, fmt.Errorf("campaign %s references missing account %s", campaign.ID, campaign.AccountID)
	}

	return &ResolvedCampaign{Campaign: &campaign, Account: account}, nil
}

func (s *DynamoStore) SetCampaignActive(ctx context.Context, mediaID string, active bool) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: mediaPK(mediaID)},
			"SK": &types.AttributeValueMemberS{Value: skCampaign},
		},
		UpdateExpression: aws.String("SET active = :a"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":a": &types.AttributeValueMemberBOOL{Value: active},
		},
		ConditionExpression: aws.String("attribute_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("set campaign active media=%s -> %t: %w", mediaID, active, err)
	}

	log.Debug().Str("mediaId", mediaID).Bool("active", active).Msg("Campaign active flag updated")
	return nil
}

func (s *DynamoStore) ListCampaigns(ctx context.Context) ([]*Campaign, error) {
	input := &dynamodb.ScanInput{
		TableName:        &s.tableName,
		FilterExpression: aws.String("SK = :sk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sk": &types.AttributeValueMemberS{Value: skCampaign},
		},
	}

	var campaigns []*Campaign
	for {
		result, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("scan campaigns: %w", err)
		}
		for _, item := range result.Items {
			var c Campaign
			if err := attributevalue.UnmarshalMap(item, &c); err != nil {
				log.Warn().Err(err).Msg("Failed to unmarshal campaign, skipping")
				continue
			}
			if pkAttr, ok := item["PK"].(*types.AttributeValueMemberS); ok {
				c.MediaID = strings.TrimPrefix(pkAttr.Value, mediaPKPrefix)
			}
			campaigns = append(campaigns, &c)
		}

		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	return campaigns, nil
}

// --- Keyword operations ---

func (s *DynamoStore) PutKeyword(ctx context.Context, mediaID string, keyword *Keyword) error {
	if err := s.putItem(ctx, mediaPK(mediaID), skKeyword+keyword.ID, keyword); err != nil {
		return fmt.Errorf("put keyword %s/%s: %w", mediaID, keyword.ID, err)
	}

	log.Debug().Str("mediaId", mediaID).Str("keywordId", keyword.ID).Str("word", keyword.Word).Msg("Keyword persisted")
	return nil
}

func (s *DynamoStore) DeleteKeyword(ctx context.Context, mediaID, keywordID string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: mediaPK(mediaID)},
			"SK": &types.AttributeValueMemberS{Value: skKeyword + keywordID},
		},
	})
	if err != nil {
		return fmt.Errorf("delete keyword %s/%s: %w", mediaID, keywordID, err)
	}

	log.Debug().Str("mediaId", mediaID).Str("keywordId", keywordID).Msg("Keyword deleted")
	return nil
}

// --- Pipeline records ---

// dedupMarker tracks the last reserved dispatch per commenter per campaign.
// The expiresAt TTL attribute garbage-collects markers once they can no
// longer suppress anything.
type dedupMarker struct {
	LastDispatchAt int64 `dynamodbav:"lastDispatchAt"`
	ExpiresAt      int64 `dynamodbav:"expiresAt"`
}

func (s *DynamoStore) ReserveDispatch(ctx context.Context, mediaID, fromUserID string, now time.Time) (bool, error) {
	cutoff := now.Add(-SuppressionWindow).Unix()
	marker := dedupMarker{
		LastDispatchAt: now.Unix(),
		ExpiresAt:      now.Add(SuppressionWindow).Unix(),
	}

	item, err := attributevalue.MarshalMap(marker)
	if err != nil {
		return false, fmt.Errorf("marshal dedup marker: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: mediaPK(mediaID)}
	item["SK"] = &types.AttributeValueMemberS{Value: skDedup + fromUserID}

	// The conditional write makes check-and-claim atomic: concurrent
	// duplicate deliveries for the same commenter race on this item and
	// exactly one wins.
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(SK) OR lastDispatchAt < :cutoff"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":cutoff": &types.AttributeValueMemberN{Value: strconv.FormatInt(cutoff, 10)},
		},
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return false, nil
		}
		return false, fmt.Errorf("reserve dispatch media=%s user=%s: %w", mediaID, fromUserID, err)
	}

	return true, nil
}

func (s *DynamoStore) PutComment(ctx context.Context, comment *Comment) error {
	if err := s.putItem(ctx, mediaPK(comment.MediaID), skComment+comment.ID, comment); err != nil {
		return fmt.Errorf("put comment %s/%s: %w", comment.MediaID, comment.ID, err)
	}

	log.Debug().
		Str("mediaId", comment.MediaID).
		Str("commentId", comment.ID).
		Str("fromUserId", comment.FromUserID).
		Str("matchedKeywordId", comment.MatchedKeywordID).
		Msg("Comment persisted")
	return nil
}

func (s *DynamoStore) PutMessage(ctx context.Context, message *Message) error {
	if message.CreatedAt == 0 {
		message.CreatedAt = time.Now().Unix()
	}

	if err := s.putItem(ctx, mediaPK(message.MediaID), skMessage+message.ID, message); err != nil {
		return fmt.Errorf("put message %s/%s: %w", message.MediaID, message.ID, err)
	}

	log.Debug().
		Str("mediaId", message.MediaID).
		Str("messageId", message.ID).
		Str("status", message.Status).
		Int("attempts", message.Attempts).
		Msg("Message persisted")
	return nil
}

func (s *DynamoStore) GetMessage(ctx context.Context, mediaID, messageID string) (*Message, error) {
	var message Message
	found, err := s.getItem(ctx, mediaPK(mediaID), skMessage+messageID, &message)
	if err != nil {
		return nil, fmt.Errorf("get message %s/%s: %w", mediaID, messageID, err)
	}
	if !found {
		return nil, nil
	}

	message.ID = messageID
	message.MediaID = mediaID
	return &message, nil
}
