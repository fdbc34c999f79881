package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/BizAtlas/internal/domain/geoentity"
	"github.com/turtacn/BizAtlas/pkg/errors"
)

const companyVersionKey = "companies:version"

// VersionStore keeps the company-table version in one Redis counter so
// every API replica sees the same value.
type VersionStore struct {
	client *Client
}

var _ geoentity.VersionStore = (*VersionStore)(nil)

func NewVersionStore(client *Client) *VersionStore {
	return &VersionStore{client: client}
}

// Current returns the counter; an absent key is version 0.
func (s *VersionStore) Current(ctx context.Context) (uint64, error) {
	v, err := s.client.Get(ctx, s.client.Key(companyVersionKey)).Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeCacheError, "failed to read company version")
	}
	return v, nil
}

// Bump increments the counter and returns the new version.
func (s *VersionStore) Bump(ctx context.Context) (uint64, error) {
	v, err := s.client.Incr(ctx, s.client.Key(companyVersionKey)).Result()
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeCacheError, "failed to bump company version")
	}
	return uint64(v), nil
}

//Personal.AI order the ending
