package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"career-agent/internal/domain"
)

const (
	skProfile      = "PROFILE"
	skPrefixAnswer = "ANSWER#"
	skPrefixPlan   = "PLAN#"
	skPrefixTurn   = "TURN#"
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// DynamoStore implements Gateway on a single DynamoDB table. Every record of
// a user lives under the partition USER#<id>; an EMAIL#<email> item maps the
// address to the surrogate id.
type DynamoStore struct {
	api       dynamodbAPI
	tableName string
	now       func() time.Time
	newID     func() string
}

// NewDynamoStore creates a DynamoStore for the given table.
func NewDynamoStore(api dynamodbAPI, tableName string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	return &DynamoStore{
		api:       api,
		tableName: tableName,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

func userPK(userID string) string {
	return "USER#" + userID
}

func emailPK(email string) string {
	return "EMAIL#" + email
}

// answerSK zero-pads the sequence number so sort-key order is numeric order.
func answerSK(seq int) string {
	return fmt.Sprintf("%s%03d", skPrefixAnswer, seq)
}

func (c *DynamoStore) stamp() (time.Time, string) {
	now := c.now().UTC()
	return now, now.Format(timeLayout)
}

func (c *DynamoStore) FindUserByEmail(ctx context.Context, email string) (domain.User, error) {
	out, err := c.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: emailPK(email)},
			"SK": &types.AttributeValueMemberS{Value: skProfile},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: FindUserByEmail get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.User{}, ErrNotFound
	}
	id, err := strAttr(out.Item, "userId")
	if err != nil {
		return domain.User{}, fmt.Errorf("repository: FindUserByEmail decode: %w", err)
	}
	createdAt, _ := strAttr(out.Item, "createdAt")
	return domain.User{ID: id, Email: email, CreatedAt: parseTime(createdAt)}, nil
}

// CreateUser writes the email lookup item and the profile item in one
// transaction; the lookup item's condition rejects duplicate addresses.
func (c *DynamoStore) CreateUser(ctx context.Context, email string) (domain.User, error) {
	id := c.newID()
	now, ts := c.stamp()

	_, err := c.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName: aws.String(c.tableName),
					Item: map[string]types.AttributeValue{
						"PK":        &types.AttributeValueMemberS{Value: emailPK(email)},
						"SK":        &types.AttributeValueMemberS{Value: skProfile},
						"userId":    &types.AttributeValueMemberS{Value: id},
						"createdAt": &types.AttributeValueMemberS{Value: ts},
					},
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(c.tableName),
					Item: map[string]types.AttributeValue{
						"PK":        &types.AttributeValueMemberS{Value: userPK(id)},
						"SK":        &types.AttributeValueMemberS{Value: skProfile},
						"email":     &types.AttributeValueMemberS{Value: email},
						"createdAt": &types.AttributeValueMemberS{Value: ts},
					},
					ConditionExpression: aws.String("attribute_not_exists(PK)"),
				},
			},
		},
	})
	if err != nil {
		if isConditionFailure(err) {
			return domain.User{}, ErrConflict
		}
		return domain.User{}, fmt.Errorf("repository: CreateUser: %w", err)
	}
	return domain.User{ID: id, Email: email, CreatedAt: now}, nil
}

func (c *DynamoStore) RecordAnswer(ctx context.Context, userID string, seq int, question, answer string) error {
	_, ts := c.stamp()
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":        &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK":        &types.AttributeValueMemberS{Value: answerSK(seq)},
			"seq":       &types.AttributeValueMemberN{Value: strconv.Itoa(seq)},
			"question":  &types.AttributeValueMemberS{Value: question},
			"answer":    &types.AttributeValueMemberS{Value: answer},
			"createdAt": &types.AttributeValueMemberS{Value: ts},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		if isConditionFailure(err) {
			return ErrConflict
		}
		return fmt.Errorf("repository: RecordAnswer: %w", err)
	}
	return nil
}

func (c *DynamoStore) ListAnswers(ctx context.Context, userID string) ([]domain.Answer, error) {
	items, err := c.queryAll(ctx, userID, skPrefixAnswer)
	if err != nil {
		return nil, fmt.Errorf("repository: ListAnswers: %w", err)
	}
	answers := make([]domain.Answer, 0, len(items))
	for _, item := range items {
		a, err := itemToAnswer(userID, item)
		if err != nil {
			return nil, fmt.Errorf("repository: ListAnswers unmarshal: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, nil
}

// queryAll follows pagination so that callers always see the full prefix.
func (c *DynamoStore) queryAll(ctx context.Context, userID, prefix string) ([]map[string]types.AttributeValue, error) {
	var (
		items []map[string]types.AttributeValue
		start map[string]types.AttributeValue
	)
	for {
		out, err := c.api.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(c.tableName),
			KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk":     &types.AttributeValueMemberS{Value: userPK(userID)},
				":prefix": &types.AttributeValueMemberS{Value: prefix},
			},
			ScanIndexForward:  aws.Bool(true),
			ConsistentRead:    aws.Bool(true),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, err
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		start = out.LastEvaluatedKey
	}
}

func (c *DynamoStore) RecordPlan(ctx context.Context, userID, content string) (domain.Plan, error) {
	now, ts := c.stamp()
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":        &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK":        &types.AttributeValueMemberS{Value: skPrefixPlan + ts + "#" + c.newID()},
			"content":   &types.AttributeValueMemberS{Value: content},
			"createdAt": &types.AttributeValueMemberS{Value: ts},
		},
	})
	if err != nil {
		return domain.Plan{}, fmt.Errorf("repository: RecordPlan: %w", err)
	}
	return domain.Plan{UserID: userID, Content: content, CreatedAt: now}, nil
}

func (c *DynamoStore) LatestPlan(ctx context.Context, userID string) (domain.Plan, error) {
	out, err := c.api.Query(ctx, c.newestFirst(userID, skPrefixPlan, 1))
	if err != nil {
		return domain.Plan{}, fmt.Errorf("repository: LatestPlan query: %w", err)
	}
	if out == nil || len(out.Items) == 0 {
		return domain.Plan{}, ErrNotFound
	}
	content, err := strAttr(out.Items[0], "content")
	if err != nil {
		return domain.Plan{}, fmt.Errorf("repository: LatestPlan unmarshal: %w", err)
	}
	createdAt, _ := strAttr(out.Items[0], "createdAt")
	return domain.Plan{UserID: userID, Content: content, CreatedAt: parseTime(createdAt)}, nil
}

func (c *DynamoStore) AppendTurn(ctx context.Context, userID, text string, isUser bool) error {
	_, ts := c.stamp()
	_, err := c.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.tableName),
		Item: map[string]types.AttributeValue{
			"PK":        &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK":        &types.AttributeValueMemberS{Value: skPrefixTurn + ts + "#" + c.newID()},
			"text":      &types.AttributeValueMemberS{Value: text},
			"isUser":    &types.AttributeValueMemberBOOL{Value: isUser},
			"createdAt": &types.AttributeValueMemberS{Value: ts},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("repository: AppendTurn: %w", err)
	}
	return nil
}

func (c *DynamoStore) RecentTurns(ctx context.Context, userID string, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		return []domain.Turn{}, nil
	}
	out, err := c.api.Query(ctx, c.newestFirst(userID, skPrefixTurn, limit))
	if err != nil {
		return nil, fmt.Errorf("repository: RecentTurns query: %w", err)
	}
	turns := make([]domain.Turn, 0, len(out.Items))
	for _, item := range out.Items {
		t, err := itemToTurn(userID, item)
		if err != nil {
			return nil, fmt.Errorf("repository: RecentTurns unmarshal: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (c *DynamoStore) newestFirst(userID, prefix string, limit int) *dynamodb.QueryInput {
	limit = min(limit, math.MaxInt32)
	return &dynamodb.QueryInput{
		TableName:              aws.String(c.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: userPK(userID)},
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		},
		ScanIndexForward: aws.Bool(false),
		ConsistentRead:   aws.Bool(true),
		Limit:            aws.Int32(int32(limit)),
	}
}

func itemToAnswer(userID string, item map[string]types.AttributeValue) (domain.Answer, error) {
	seq, err := intAttr(item, "seq")
	if err != nil {
		return domain.Answer{}, err
	}
	question, err := strAttr(item, "question")
	if err != nil {
		return domain.Answer{}, err
	}
	answer, _ := strAttr(item, "answer") // allow empty
	createdAt, _ := strAttr(item, "createdAt")
	return domain.Answer{
		UserID:    userID,
		Seq:       seq,
		Question:  question,
		Answer:    answer,
		CreatedAt: parseTime(createdAt),
	}, nil
}

func itemToTurn(userID string, item map[string]types.AttributeValue) (domain.Turn, error) {
	text, err := strAttr(item, "text")
	if err != nil {
		return domain.Turn{}, err
	}
	v, ok := item["isUser"].(*types.AttributeValueMemberBOOL)
	if !ok {
		return domain.Turn{}, errors.New(`repository: attribute "isUser" is not a bool`)
	}
	createdAt, _ := strAttr(item, "createdAt")
	return domain.Turn{
		UserID:    userID,
		Text:      text,
		IsUser:    v.Value,
		CreatedAt: parseTime(createdAt),
	}, nil
}

func isConditionFailure(err error) bool {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return true
	}
	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for _, reason := range txErr.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("repository: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("repository: attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("repository: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
