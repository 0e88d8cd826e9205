package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/notilink/notilink/internal/models"
	"github.com/sirupsen/logrus"
)

type ConfirmationRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *logrus.Logger
}

func NewConfirmationRepository(client *dynamodb.Client, tableName string, logger *logrus.Logger) *ConfirmationRepository {
	return &ConfirmationRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// Sort key carries the UTC timestamp so range queries order confirmations by
// verification time; the channel suffix keeps two same-second confirmations
// from clobbering each other.
func confirmationSK(verifiedAt time.Time, channel models.ChannelKind) string {
	return fmt.Sprintf("CHANNEL_LINK#%s#%s", verifiedAt.UTC().Format(time.RFC3339), channel)
}

// Insert stores a confirmed channel link in DynamoDB
func (r *ConfirmationRepository) Insert(ctx context.Context, link models.ConfirmedChannelLink) error {
	item := map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: fmt.Sprintf("USER#%s", link.UserID)},
		"SK":         &types.AttributeValueMemberS{Value: confirmationSK(link.VerifiedAt, link.Channel)},
		"UserID":     &types.AttributeValueMemberS{Value: link.UserID},
		"Channel":    &types.AttributeValueMemberS{Value: string(link.Channel)},
		"Link":       &types.AttributeValueMemberS{Value: link.Link},
		"VerifiedAt": &types.AttributeValueMemberS{Value: link.VerifiedAt.UTC().Format(time.RFC3339)},
	}
	if link.Nonce != "" {
		item["Nonce"] = &types.AttributeValueMemberS{Value: link.Nonce}
	}

	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})

	if err != nil {
		r.logger.WithError(err).Error("Failed to store confirmed channel link in DynamoDB")
		return fmt.Errorf("failed to store confirmed link: %w", err)
	}

	return nil
}

// FindRecent returns the user's most recent confirmed link with
// VerifiedAt at or after since, or nil when none exists.
func (r *ConfirmationRepository) FindRecent(ctx context.Context, userID string, since time.Time) (*models.ConfirmedChannelLink, error) {
	result, err := r.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND SK >= :sk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: fmt.Sprintf("USER#%s", userID)},
			":sk": &types.AttributeValueMemberS{Value: fmt.Sprintf("CHANNEL_LINK#%s", since.UTC().Format(time.RFC3339))},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})

	if err != nil {
		return nil, fmt.Errorf("failed to query confirmed links: %w", err)
	}

	if len(result.Items) == 0 {
		return nil, nil
	}

	var link models.ConfirmedChannelLink
	if err := attributevalue.UnmarshalMap(result.Items[0], &link); err != nil {
		return nil, fmt.Errorf("failed to unmarshal confirmed link: %w", err)
	}

	return &link, nil
}
