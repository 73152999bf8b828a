package service

import (
	"context"

	"stash-api/internal/domain"

	"github.com/stretchr/testify/mock"
)

type MockAssetSource struct {
	mock.Mock
}

func (m *MockAssetSource) ListAssets(ctx context.Context, filters domain.AssetFilters) []domain.Asset {
	args := m.Called(ctx, filters)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.Asset)
}

func (m *MockAssetSource) GetAssetBySlug(ctx context.Context, slug string) *domain.Asset {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*domain.Asset)
}

func (m *MockAssetSource) GetAssetByID(ctx context.Context, id string) *domain.Asset {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*domain.Asset)
}

func (m *MockAssetSource) IncrementViewCount(ctx context.Context, id string) bool {
	args := m.Called(ctx, id)
	return args.Bool(0)
}

func (m *MockAssetSource) AssetsForStaticGeneration(ctx context.Context, limit int) []domain.Asset {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.Asset)
}

func (m *MockAssetSource) SubmitAsset(ctx context.Context, sub domain.AssetSubmission) (string, error) {
	args := m.Called(ctx, sub)
	return args.String(0), args.Error(1)
}

type MockEventRepository struct {
	mock.Mock
}

func (m *MockEventRepository) InsertBatch(ctx context.Context, events []domain.Event) error {
	args := m.Called(ctx, events)
	return args.Error(0)
}
