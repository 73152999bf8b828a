package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"stash-api/internal/domain"
	"stash-api/pkg/redis"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := redis.NewClient("redis://"+mr.Addr(), "test", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func sampleAssets() []domain.Asset {
	return []domain.Asset{
		{ID: "1", Title: "Launch Deck", Slug: "launch-deck-1", Category: domain.CategorySalesEnablement},
		{ID: "2", Title: "Brand Book", Slug: "brand-book-2", Category: domain.CategoryBrandIdentity},
	}
}

func TestCacheService_ListAssets(t *testing.T) {
	ctx := context.Background()
	filters := domain.AssetFilters{Category: "web design"}

	t.Run("miss then hit", func(t *testing.T) {
		client, mr := newTestRedis(t)
		source := new(MockAssetSource)
		source.On("ListAssets", mock.Anything, filters).Return(sampleAssets()).Once()

		cache := NewCacheService(source, client, zap.NewNop())

		first := cache.ListAssets(ctx, filters)
		assert.Len(t, first, 2)

		key := client.KeyBuilder.KeyAssetList(filtersHash(filters))
		assert.Eventually(t, func() bool { return mr.Exists(key) }, time.Second, 10*time.Millisecond)

		second := cache.ListAssets(ctx, filters)
		assert.Equal(t, first, second)
		source.AssertExpectations(t)
	})

	t.Run("empty result is not cached", func(t *testing.T) {
		client, mr := newTestRedis(t)
		source := new(MockAssetSource)
		source.On("ListAssets", mock.Anything, filters).Return([]domain.Asset{}).Twice()

		cache := NewCacheService(source, client, zap.NewNop())

		assert.Empty(t, cache.ListAssets(ctx, filters))
		assert.Empty(t, cache.ListAssets(ctx, filters))
		assert.Empty(t, mr.Keys())
		source.AssertExpectations(t)
	})

	t.Run("corrupted entry falls back to source", func(t *testing.T) {
		client, mr := newTestRedis(t)
		key := client.KeyBuilder.KeyAssetList(filtersHash(filters))
		require.NoError(t, mr.Set(key, "{not json"))

		source := new(MockAssetSource)
		source.On("ListAssets", mock.Anything, filters).Return(sampleAssets()).Once()

		cache := NewCacheService(source, client, zap.NewNop())
		assert.Len(t, cache.ListAssets(ctx, filters), 2)
		source.AssertExpectations(t)
	})

	t.Run("no redis passes through", func(t *testing.T) {
		source := new(MockAssetSource)
		source.On("ListAssets", mock.Anything, filters).Return(sampleAssets()).Twice()

		cache := NewCacheService(source, nil, zap.NewNop())
		assert.Len(t, cache.ListAssets(ctx, filters), 2)
		assert.Len(t, cache.ListAssets(ctx, filters), 2)
		source.AssertExpectations(t)
	})

	t.Run("different filters use different keys", func(t *testing.T) {
		other := domain.AssetFilters{Category: "web design", MadeByDB: true}
		assert.NotEqual(t, filtersHash(filters), filtersHash(other))
		assert.Equal(t, filtersHash(filters), filtersHash(domain.AssetFilters{Category: "web design"}))
	})
}

func TestCacheService_GetAssetBySlug(t *testing.T) {
	ctx := context.Background()

	t.Run("hit after miss", func(t *testing.T) {
		client, mr := newTestRedis(t)
		asset := sampleAssets()[0]

		source := new(MockAssetSource)
		source.On("GetAssetBySlug", mock.Anything, asset.Slug).Return(&asset).Once()

		cache := NewCacheService(source, client, zap.NewNop())
		got := cache.GetAssetBySlug(ctx, asset.Slug)
		require.NotNil(t, got)

		key := client.KeyBuilder.KeyAssetBySlug(asset.Slug)
		assert.Eventually(t, func() bool { return mr.Exists(key) }, time.Second, 10*time.Millisecond)

		again := cache.GetAssetBySlug(ctx, asset.Slug)
		require.NotNil(t, again)
		assert.Equal(t, asset.Title, again.Title)
		source.AssertExpectations(t)
	})

	t.Run("not found is not cached", func(t *testing.T) {
		client, mr := newTestRedis(t)
		source := new(MockAssetSource)
		source.On("GetAssetBySlug", mock.Anything, "missing").Return(nil).Twice()

		cache := NewCacheService(source, client, zap.NewNop())
		assert.Nil(t, cache.GetAssetBySlug(ctx, "missing"))
		assert.Nil(t, cache.GetAssetBySlug(ctx, "missing"))
		assert.Empty(t, mr.Keys())
		source.AssertExpectations(t)
	})
}

func TestCacheService_SubmitAssetInvalidates(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestRedis(t)

	listKey := client.KeyBuilder.KeyAssetList("abc")
	slugKey := client.KeyBuilder.KeyAssetBySlug("launch-deck-1")
	visitorKey := client.KeyBuilder.KeyVisitorItem("v1", "db_stash_gate_v1")
	require.NoError(t, mr.Set(listKey, "[]"))
	require.NoError(t, mr.Set(slugKey, "{}"))
	require.NoError(t, mr.Set(visitorKey, "{}"))

	sub := domain.AssetSubmission{Title: "New", FileURL: "https://example.com/a.png"}
	source := new(MockAssetSource)
	source.On("SubmitAsset", mock.Anything, sub).Return("42", nil).Once()

	cache := NewCacheService(source, client, zap.NewNop())
	id, err := cache.SubmitAsset(ctx, sub)
	require.NoError(t, err)
	assert.Equal(t, "42", id)

	assert.False(t, mr.Exists(listKey))
	assert.False(t, mr.Exists(slugKey))
	assert.True(t, mr.Exists(visitorKey))
}

func TestCacheService_SubmitAssetError(t *testing.T) {
	ctx := context.Background()
	client, mr := newTestRedis(t)

	listKey := client.KeyBuilder.KeyAssetList("abc")
	require.NoError(t, mr.Set(listKey, "[]"))

	sub := domain.AssetSubmission{Title: "New"}
	source := new(MockAssetSource)
	source.On("SubmitAsset", mock.Anything, sub).Return("", errors.New("boom")).Once()

	cache := NewCacheService(source, client, zap.NewNop())
	_, err := cache.SubmitAsset(ctx, sub)
	assert.Error(t, err)
	assert.True(t, mr.Exists(listKey))
}

func TestCacheService_PassThroughOperations(t *testing.T) {
	ctx := context.Background()
	source := new(MockAssetSource)
	source.On("IncrementViewCount", mock.Anything, "7").Return(true).Once()
	source.On("GetAssetByID", mock.Anything, "7").Return(&domain.Asset{ID: "7"}).Once()

	var svc AssetService = NewCacheService(source, nil, zap.NewNop())
	assert.True(t, svc.IncrementViewCount(ctx, "7"))
	assert.Equal(t, "7", svc.GetAssetByID(ctx, "7").ID)
	source.AssertExpectations(t)
}

// slowSource blocks fetches until released and fails them when the
// context it was given is already done
type slowSource struct {
	*MockAssetSource
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func newSlowSource() *slowSource {
	return &slowSource{
		MockAssetSource: new(MockAssetSource),
		started:         make(chan struct{}, 4),
		release:         make(chan struct{}),
	}
}

func (s *slowSource) wait(ctx context.Context) bool {
	s.calls.Add(1)
	s.started <- struct{}{}
	<-s.release
	return ctx.Err() == nil
}

func (s *slowSource) ListAssets(ctx context.Context, _ domain.AssetFilters) []domain.Asset {
	if !s.wait(ctx) {
		return []domain.Asset{}
	}
	return sampleAssets()
}

func (s *slowSource) GetAssetBySlug(ctx context.Context, slug string) *domain.Asset {
	if !s.wait(ctx) {
		return nil
	}
	return &domain.Asset{ID: "1", Slug: slug}
}

func TestCacheService_SharedFetchOutlivesFirstCaller(t *testing.T) {
	run := func(t *testing.T, fetch func(cache *CacheService, ctx context.Context) bool) {
		source := newSlowSource()
		cache := NewCacheService(source, nil, zap.NewNop())

		leaderCtx, cancelLeader := context.WithCancel(context.Background())
		leader := make(chan bool, 1)
		go func() { leader <- fetch(cache, leaderCtx) }()
		<-source.started

		follower := make(chan bool, 1)
		go func() { follower <- fetch(cache, context.Background()) }()
		time.Sleep(20 * time.Millisecond)

		cancelLeader()
		close(source.release)

		assert.True(t, <-follower, "caller with a live context lost the shared result")
		assert.True(t, <-leader)
		assert.GreaterOrEqual(t, source.calls.Load(), int32(1))
	}

	t.Run("list", func(t *testing.T) {
		run(t, func(cache *CacheService, ctx context.Context) bool {
			return len(cache.ListAssets(ctx, domain.AssetFilters{})) == 2
		})
	})

	t.Run("slug", func(t *testing.T) {
		run(t, func(cache *CacheService, ctx context.Context) bool {
			return cache.GetAssetBySlug(ctx, "launch-deck-1") != nil
		})
	})
}
