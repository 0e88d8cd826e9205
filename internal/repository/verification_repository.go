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

type VerificationRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *logrus.Logger
}

func NewVerificationRepository(client *dynamodb.Client, tableName string, logger *logrus.Logger) *VerificationRepository {
	return &VerificationRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// Insert stores a verification request in DynamoDB with TTL
func (r *VerificationRepository) Insert(ctx context.Context, req models.VerificationRequest) error {
	ttl := req.ExpiresAt.Unix()

	item := map[string]types.AttributeValue{
		"PK":        &types.AttributeValueMemberS{Value: fmt.Sprintf("LINK_VERIFY#%s", req.Nonce)},
		"SK":        &types.AttributeValueMemberS{Value: "METADATA"},
		"Nonce":     &types.AttributeValueMemberS{Value: req.Nonce},
		"UserID":    &types.AttributeValueMemberS{Value: req.UserID},
		"Channel":   &types.AttributeValueMemberS{Value: string(req.Channel)},
		"CreatedAt": &types.AttributeValueMemberS{Value: req.CreatedAt.UTC().Format(time.RFC3339)},
		"ExpiresAt": &types.AttributeValueMemberS{Value: req.ExpiresAt.UTC().Format(time.RFC3339)},
		"TTL":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttl)},
	}

	_, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})

	if err != nil {
		r.logger.WithError(err).Error("Failed to store verification request in DynamoDB")
		return fmt.Errorf("failed to store verification request: %w", err)
	}

	return nil
}

// Find retrieves a verification request by nonce, scoped to its owner.
// A missing row and a row belonging to another user both read as absent.
func (r *VerificationRepository) Find(ctx context.Context, nonce, userID string) (*models.VerificationRequest, error) {
	result, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("LINK_VERIFY#%s", nonce)},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
	})

	if err != nil {
		return nil, fmt.Errorf("failed to get verification request: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var req models.VerificationRequest
	if err := attributevalue.UnmarshalMap(result.Item, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal verification request: %w", err)
	}

	if req.UserID != userID {
		return nil, nil
	}

	return &req, nil
}

// Delete removes a verification request from DynamoDB
func (r *VerificationRepository) Delete(ctx context.Context, nonce string) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: fmt.Sprintf("LINK_VERIFY#%s", nonce)},
			"SK": &types.AttributeValueMemberS{Value: "METADATA"},
		},
	})

	if err != nil {
		return fmt.Errorf("failed to delete verification request: %w", err)
	}

	return nil
}

// ListExpired scans for verification requests past their expiry, used by the
// background sweeper. DynamoDB TTL deletion can lag by hours, so the sweep
// does not rely on it.
func (r *VerificationRepository) ListExpired(ctx context.Context, now time.Time) ([]models.VerificationRequest, error) {
	result, err := r.client.Scan(ctx, &dynamodb.ScanInput{
		TableName:        aws.String(r.tableName),
		FilterExpression: aws.String("begins_with(PK, :prefix) AND #ttl <= :now"),
		ExpressionAttributeNames: map[string]string{
			"#ttl": "TTL",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":prefix": &types.AttributeValueMemberS{Value: "LINK_VERIFY#"},
			":now":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Unix())},
		},
	})

	if err != nil {
		return nil, fmt.Errorf("failed to scan expired verification requests: %w", err)
	}

	var expired []models.VerificationRequest
	for _, item := range result.Items {
		var req models.VerificationRequest
		if err := attributevalue.UnmarshalMap(item, &req); err != nil {
			r.logger.WithError(err).Warn("Skipping unreadable verification item")
			continue
		}
		expired = append(expired, req)
	}

	return expired, nil
}
