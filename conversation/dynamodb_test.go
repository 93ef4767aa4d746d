package conversation

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo keeps items in a map keyed by PK/SK, enough to exercise the
// adapter's marshalling and key layout without a live table.
type fakeDynamo struct {
	items map[string]map[string]types.AttributeValue
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: make(map[string]map[string]types.AttributeValue)}
}

func itemKey(item map[string]types.AttributeValue) string {
	pk := item["PK"].(*types.AttributeValueMemberS).Value
	sk := item["SK"].(*types.AttributeValueMemberS).Value
	return pk + "|" + sk
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: f.items[itemKey(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.items[itemKey(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	out := &dynamodb.QueryOutput{}
	if in.IndexName != nil {
		docPK := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value
		for _, item := range f.items {
			if gsi, ok := item["GSI1PK"].(*types.AttributeValueMemberS); ok && gsi.Value == docPK {
				out.Items = append(out.Items, item)
			}
		}
		return out, nil
	}
	pk := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value
	prefix := in.ExpressionAttributeValues[":prefix"].(*types.AttributeValueMemberS).Value
	for key, item := range f.items {
		if strings.HasPrefix(key, pk+"|"+prefix) {
			out.Items = append(out.Items, item)
		}
	}
	return out, nil
}

func (f *fakeDynamo) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	for _, item := range in.TransactItems {
		if item.Put != nil {
			f.items[itemKey(item.Put.Item)] = item.Put.Item
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *fakeDynamo) BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	for _, reqs := range in.RequestItems {
		for _, req := range reqs {
			if req.DeleteRequest != nil {
				delete(f.items, itemKey(req.DeleteRequest.Key))
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func testSession(id string) Session {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	return Session{
		ID:             id,
		DocumentID:     "doc-1",
		OwnerID:        "user-1",
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

func TestDynamoPersistenceRoundTrip(t *testing.T) {
	p, err := NewDynamoPersistence(newFakeDynamo(), "sessions")
	require.NoError(t, err)
	ctx := context.Background()

	sess := testSession("sess-1")
	require.NoError(t, p.PutSession(ctx, sess))

	got, found, err := p.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, sess, got)

	_, found, err = p.GetSession(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDynamoPersistenceTurnsKeepOrder(t *testing.T) {
	p, err := NewDynamoPersistence(newFakeDynamo(), "sessions")
	require.NoError(t, err)
	ctx := context.Background()

	sess := testSession("sess-1")
	require.NoError(t, p.PutSession(ctx, sess))

	for i := 0; i < 3; i++ {
		sess.TurnCount = i + 1
		turn := Turn{
			ID:            "turn-" + string(rune('a'+i)),
			SessionID:     sess.ID,
			Index:         i,
			Question:      "q",
			Answer:        "a",
			CitedChunkIDs: []string{"c1"},
			Confidence:    0.75,
			CreatedAt:     sess.CreatedAt,
		}
		require.NoError(t, p.PutTurn(ctx, sess, turn))
	}

	turns, err := p.GetTurns(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, turns, 3)
	for i, turn := range turns {
		assert.Equal(t, i, turn.Index)
		assert.Equal(t, []string{"c1"}, turn.CitedChunkIDs)
		assert.InDelta(t, 0.75, turn.Confidence, 1e-9)
	}

	got, _, err := p.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.TurnCount, "PutTurn must carry the session meta forward")
}

func TestDynamoPersistenceListAndDelete(t *testing.T) {
	p, err := NewDynamoPersistence(newFakeDynamo(), "sessions")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, p.PutSession(ctx, testSession("sess-1")))
	other := testSession("sess-2")
	other.DocumentID = "doc-2"
	require.NoError(t, p.PutSession(ctx, other))

	sessions, err := p.ListSessions(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "sess-1", sessions[0].ID)

	require.NoError(t, p.DeleteSession(ctx, "sess-1"))
	_, found, err := p.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, found)
}
