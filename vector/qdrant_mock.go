package vector

import (
	"context"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/mock"
)

// MockPointsAPI is a testify mock implementation of PointsAPI.
type MockPointsAPI struct {
	mock.Mock
}

func (m *MockPointsAPI) CollectionExists(ctx context.Context, collectionName string) (bool, error) {
	args := m.Called(ctx, collectionName)
	return args.Bool(0), args.Error(1)
}

func (m *MockPointsAPI) CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error {
	args := m.Called(ctx, request)
	return args.Error(0)
}

func (m *MockPointsAPI) Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	args := m.Called(ctx, request)
	if out := args.Get(0); out != nil {
		return out.(*qdrant.UpdateResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPointsAPI) Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error) {
	args := m.Called(ctx, request)
	if out := args.Get(0); out != nil {
		return out.(*qdrant.UpdateResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPointsAPI) Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	args := m.Called(ctx, request)
	if out := args.Get(0); out != nil {
		return out.([]*qdrant.ScoredPoint), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPointsAPI) Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error) {
	args := m.Called(ctx, request)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *MockPointsAPI) Close() error {
	args := m.Called()
	return args.Error(0)
}
