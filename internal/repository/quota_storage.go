package repository

import (
	"context"
	"errors"
	"fmt"

	"stash-api/internal/gate"
	"stash-api/pkg/redis"
)

// QuotaStorage keeps each visitor's gate storage area in Redis
type QuotaStorage struct {
	client *redis.Client
}

// NewQuotaStorage creates a Redis-backed gate.StorageProvider
func NewQuotaStorage(client *redis.Client) *QuotaStorage {
	return &QuotaStorage{client: client}
}

// ForVisitor returns the storage area for one visitor
func (s *QuotaStorage) ForVisitor(visitorID string) gate.Storage {
	return &visitorStorage{client: s.client, visitorID: visitorID}
}

type visitorStorage struct {
	client    *redis.Client
	visitorID string
}

func (v *visitorStorage) key(item string) string {
	return v.client.KeyBuilder.KeyVisitorItem(v.visitorID, item)
}

func (v *visitorStorage) GetItem(ctx context.Context, item string) (string, error) {
	val, err := v.client.Get(ctx, v.key(item))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", gate.ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", gate.ErrStorageUnavailable, err)
	}
	return val, nil
}

// SetItem refreshes the TTL on every write so active visitors keep state
func (v *visitorStorage) SetItem(ctx context.Context, item, value string) error {
	if err := v.client.Set(ctx, v.key(item), value, redis.TTLVisitorItem); err != nil {
		return fmt.Errorf("%w: %v", gate.ErrStorageUnavailable, err)
	}
	return nil
}

func (v *visitorStorage) RemoveItem(ctx context.Context, item string) error {
	if err := v.client.Delete(ctx, v.key(item)); err != nil {
		return fmt.Errorf("%w: %v", gate.ErrStorageUnavailable, err)
	}
	return nil
}
