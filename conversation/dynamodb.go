package conversation

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/scholarmind/ragcore/ragerr"
)

const (
	pkPrefixSession = "SESS#"
	skMeta          = "META"
	skPrefixTurn    = "TURN#"
	gsiDocument     = "document-activity"
	gsiPKPrefixDoc  = "DOC#"
)

// dynamodbAPI is the minimal DynamoDB surface the adapter needs. Defined
// here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoPersistence stores sessions and turns in one DynamoDB table:
// a META item per session and one TURN# item per exchange, sharing the
// session partition key. A GSI on the document id serves ListSessions.
type DynamoPersistence struct {
	api   dynamodbAPI
	table string
}

// NewDynamoPersistence wraps a DynamoDB client for the given table.
func NewDynamoPersistence(api dynamodbAPI, table string) (*DynamoPersistence, error) {
	if api == nil {
		return nil, fmt.Errorf("conversation: dynamodb api must not be nil")
	}
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("conversation: table name must not be empty")
	}
	return &DynamoPersistence{api: api, table: table}, nil
}

func sessionPK(sessionID string) string { return pkPrefixSession + sessionID }

// turnSK zero-pads the index so lexicographic sort key order matches turn
// order.
func turnSK(index int) string { return fmt.Sprintf("%s%08d", skPrefixTurn, index) }

func (p *DynamoPersistence) PutSession(ctx context.Context, session Session) error {
	_, err := p.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(p.table),
		Item:      sessionItem(session),
	})
	if err != nil {
		return fmt.Errorf("conversation: put session: %w", err)
	}
	return nil
}

// PutTurn writes the turn and the updated session meta in one transaction
// so a crash cannot leave the turn count behind the turn items.
func (p *DynamoPersistence) PutTurn(ctx context.Context, session Session, turn Turn) error {
	_, err := p.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(p.table),
					Item:                turnItem(turn),
					ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
				},
			},
			{
				Put: &types.Put{
					TableName: aws.String(p.table),
					Item:      sessionItem(session),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("conversation: put turn: %w", err)
	}
	return nil
}

func (p *DynamoPersistence) GetSession(ctx context.Context, sessionID string) (Session, bool, error) {
	out, err := p.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(p.table),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return Session{}, false, fmt.Errorf("conversation: get session: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return Session{}, false, nil
	}
	sess, err := itemToSession(out.Item)
	if err != nil {
		return Session{}, false, err
	}
	return sess, true, nil
}

func (p *DynamoPersistence) GetTurns(ctx context.Context, sessionID string) ([]Turn, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(p.table),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixTurn},
		},
	}
	turns := make([]Turn, 0)
	for {
		out, err := p.api.Query(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("conversation: get turns: %w", err)
		}
		for _, item := range out.Items {
			turn, err := itemToTurn(item)
			if err != nil {
				return nil, err
			}
			turns = append(turns, turn)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
	sort.Slice(turns, func(i, j int) bool { return turns[i].Index < turns[j].Index })
	return turns, nil
}

func (p *DynamoPersistence) ListSessions(ctx context.Context, documentID string) ([]Session, error) {
	out, err := p.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(p.table),
		IndexName:              aws.String(gsiDocument),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: gsiPKPrefixDoc + documentID},
		},
		// Newest activity first.
		ScanIndexForward: aws.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: list sessions: %w", err)
	}
	sessions := make([]Session, 0, len(out.Items))
	for _, item := range out.Items {
		sess, err := itemToSession(item)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

// DeleteSession removes the meta item and every turn item in batches.
func (p *DynamoPersistence) DeleteSession(ctx context.Context, sessionID string) error {
	turns, err := p.GetTurns(ctx, sessionID)
	if err != nil {
		return err
	}

	keys := make([]map[string]types.AttributeValue, 0, len(turns)+1)
	keys = append(keys, map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
		"SK": &types.AttributeValueMemberS{Value: skMeta},
	})
	for _, t := range turns {
		keys = append(keys, map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: sessionPK(sessionID)},
			"SK": &types.AttributeValueMemberS{Value: turnSK(t.Index)},
		})
	}

	// BatchWriteItem caps at 25 requests per call.
	for start := 0; start < len(keys); start += 25 {
		end := start + 25
		if end > len(keys) {
			end = len(keys)
		}
		requests := make([]types.WriteRequest, 0, end-start)
		for _, key := range keys[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: key},
			})
		}
		_, err := p.api.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{p.table: requests},
		})
		if err != nil {
			return fmt.Errorf("conversation: delete session: %w", err)
		}
	}
	return nil
}

func sessionItem(s Session) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":             &types.AttributeValueMemberS{Value: sessionPK(s.ID)},
		"SK":             &types.AttributeValueMemberS{Value: skMeta},
		"GSI1PK":         &types.AttributeValueMemberS{Value: gsiPKPrefixDoc + s.DocumentID},
		"GSI1SK":         &types.AttributeValueMemberS{Value: s.LastActivityAt.UTC().Format(time.RFC3339Nano)},
		"sessionId":      &types.AttributeValueMemberS{Value: s.ID},
		"documentId":     &types.AttributeValueMemberS{Value: s.DocumentID},
		"ownerId":        &types.AttributeValueMemberS{Value: s.OwnerID},
		"createdAt":      &types.AttributeValueMemberS{Value: s.CreatedAt.UTC().Format(time.RFC3339Nano)},
		"lastActivityAt": &types.AttributeValueMemberS{Value: s.LastActivityAt.UTC().Format(time.RFC3339Nano)},
		"turnCount":      &types.AttributeValueMemberN{Value: strconv.Itoa(s.TurnCount)},
	}
}

func turnItem(t Turn) map[string]types.AttributeValue {
	cited := make([]types.AttributeValue, 0, len(t.CitedChunkIDs))
	for _, id := range t.CitedChunkIDs {
		cited = append(cited, &types.AttributeValueMemberS{Value: id})
	}
	return map[string]types.AttributeValue{
		"PK":         &types.AttributeValueMemberS{Value: sessionPK(t.SessionID)},
		"SK":         &types.AttributeValueMemberS{Value: turnSK(t.Index)},
		"turnId":     &types.AttributeValueMemberS{Value: t.ID},
		"sessionId":  &types.AttributeValueMemberS{Value: t.SessionID},
		"turnIndex":  &types.AttributeValueMemberN{Value: strconv.Itoa(t.Index)},
		"question":   &types.AttributeValueMemberS{Value: t.Question},
		"answer":     &types.AttributeValueMemberS{Value: t.Answer},
		"citedIds":   &types.AttributeValueMemberL{Value: cited},
		"confidence": &types.AttributeValueMemberN{Value: strconv.FormatFloat(t.Confidence, 'f', -1, 64)},
		"createdAt":  &types.AttributeValueMemberS{Value: t.CreatedAt.UTC().Format(time.RFC3339Nano)},
	}
}

func itemToSession(item map[string]types.AttributeValue) (Session, error) {
	var s Session
	var err error
	if s.ID, err = strAttr(item, "sessionId"); err != nil {
		return s, err
	}
	if s.DocumentID, err = strAttr(item, "documentId"); err != nil {
		return s, err
	}
	s.OwnerID, _ = strAttr(item, "ownerId")
	if s.CreatedAt, err = timeAttr(item, "createdAt"); err != nil {
		return s, err
	}
	if s.LastActivityAt, err = timeAttr(item, "lastActivityAt"); err != nil {
		return s, err
	}
	if s.TurnCount, err = intAttr(item, "turnCount"); err != nil {
		return s, err
	}
	return s, nil
}

func itemToTurn(item map[string]types.AttributeValue) (Turn, error) {
	var t Turn
	var err error
	if t.ID, err = strAttr(item, "turnId"); err != nil {
		return t, err
	}
	if t.SessionID, err = strAttr(item, "sessionId"); err != nil {
		return t, err
	}
	if t.Index, err = intAttr(item, "turnIndex"); err != nil {
		return t, err
	}
	if t.Question, err = strAttr(item, "question"); err != nil {
		return t, err
	}
	t.Answer, _ = strAttr(item, "answer")
	if list, ok := item["citedIds"].(*types.AttributeValueMemberL); ok {
		for _, v := range list.Value {
			if s, ok := v.(*types.AttributeValueMemberS); ok {
				t.CitedChunkIDs = append(t.CitedChunkIDs, s.Value)
			}
		}
	}
	t.Confidence, _ = floatAttr(item, "confidence")
	t.CreatedAt, _ = timeAttr(item, "createdAt")
	return t, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", ragerr.New(ragerr.ErrValidation, fmt.Sprintf("missing attribute %q", key), nil)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", ragerr.New(ragerr.ErrValidation, fmt.Sprintf("attribute %q is not a string", key), nil)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, ragerr.New(ragerr.ErrValidation, fmt.Sprintf("missing attribute %q", key), nil)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, ragerr.New(ragerr.ErrValidation, fmt.Sprintf("attribute %q is not a number", key), nil)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, ragerr.New(ragerr.ErrValidation, fmt.Sprintf("parse attribute %q", key), err)
	}
	return parsed, nil
}

func floatAttr(item map[string]types.AttributeValue, key string) (float64, error) {
	v, ok := item[key]
	if !ok {
		return 0, nil
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, nil
	}
	return strconv.ParseFloat(n.Value, 64)
}

func timeAttr(item map[string]types.AttributeValue, key string) (time.Time, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return time.Time{}, err
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, ragerr.New(ragerr.ErrValidation, fmt.Sprintf("parse attribute %q", key), err)
	}
	return ts, nil
}
