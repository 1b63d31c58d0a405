package worker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"notebase.evalgo.org/bus"
	"notebase.evalgo.org/config"
	"notebase.evalgo.org/embed"
	"notebase.evalgo.org/vector"
)

type mockVectorWriter struct {
	mock.Mock
}

func (m *mockVectorWriter) Upsert(ctx context.Context, idField, logicalID, ownerID string, chunks []vector.Chunk, embeddings [][]float32) error {
	args := m.Called(ctx, idField, logicalID, ownerID, chunks, embeddings)
	return args.Error(0)
}

func (m *mockVectorWriter) DeleteByLogicalID(ctx context.Context, logicalID string) error {
	args := m.Called(ctx, logicalID)
	return args.Error(0)
}

func testDedupe(t *testing.T) *Dedupe {
	t.Helper()
	s := miniredis.RunT(t)
	return NewDedupeWithClient(redis.NewClient(&redis.Options{Addr: s.Addr()}), time.Hour)
}

func TestDedupeMarkAndSeen(t *testing.T) {
	d := testDedupe(t)
	ctx := context.Background()

	assert.False(t, d.Seen(ctx, "doc-1", 1, bus.OpCreate))

	d.Mark(ctx, "doc-1", 1, bus.OpCreate)
	assert.True(t, d.Seen(ctx, "doc-1", 1, bus.OpCreate))

	// A different version or op is a different event.
	assert.False(t, d.Seen(ctx, "doc-1", 2, bus.OpCreate))
	assert.False(t, d.Seen(ctx, "doc-1", 1, bus.OpDelete))
}

func TestDedupeDisabledWithoutClient(t *testing.T) {
	d := NewDedupe("", time.Hour)
	ctx := context.Background()

	d.Mark(ctx, "doc-1", 1, bus.OpCreate)
	assert.False(t, d.Seen(ctx, "doc-1", 1, bus.OpCreate))
	assert.NoError(t, d.Close())
}

func TestHandleDeleteEventClearsPoints(t *testing.T) {
	index := new(mockVectorWriter)
	index.On("DeleteByLogicalID", mock.Anything, "doc-1").Return(nil)

	ix := NewIndexer(nil, nil, index, nil, embed.NewChunker(1000, 200), nil, testDedupe(t), config.LimitsConfig{}, time.Minute)

	env := bus.Envelope{Op: bus.OpDelete, DocumentID: "doc-1", Version: 3}
	require.NoError(t, ix.Handle(context.Background(), env))
	index.AssertCalled(t, "DeleteByLogicalID", mock.Anything, "doc-1")
}

func TestHandleSkipsAppliedEvent(t *testing.T) {
	index := new(mockVectorWriter)
	index.On("DeleteByLogicalID", mock.Anything, "doc-1").Return(nil).Once()

	ix := NewIndexer(nil, nil, index, nil, embed.NewChunker(1000, 200), nil, testDedupe(t), config.LimitsConfig{}, time.Minute)
	env := bus.Envelope{Op: bus.OpDelete, DocumentID: "doc-1", Version: 3}

	require.NoError(t, ix.Handle(context.Background(), env))
	require.NoError(t, ix.Handle(context.Background(), env))

	// The replay was absorbed by the dedupe cache.
	index.AssertNumberOfCalls(t, "DeleteByLogicalID", 1)
}

func TestHandleFailureIsNotMarkedApplied(t *testing.T) {
	index := new(mockVectorWriter)
	index.On("DeleteByLogicalID", mock.Anything, "doc-1").Return(assert.AnError).Once()
	index.On("DeleteByLogicalID", mock.Anything, "doc-1").Return(nil).Once()

	ix := NewIndexer(nil, nil, index, nil, embed.NewChunker(1000, 200), nil, testDedupe(t), config.LimitsConfig{}, time.Minute)
	env := bus.Envelope{Op: bus.OpDelete, DocumentID: "doc-1", Version: 3}

	require.Error(t, ix.Handle(context.Background(), env))
	// Redelivery succeeds and is applied.
	require.NoError(t, ix.Handle(context.Background(), env))
	index.AssertNumberOfCalls(t, "DeleteByLogicalID", 2)
}
