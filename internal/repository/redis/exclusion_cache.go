package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/gdugdh24/mpit2026-discovery/internal/repository"
)

const exclusionKeyPrefix = "discovery:excluded:"

type exclusionCache struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewExclusionCache stores decided target ids in one set per viewer. The
// set expires ttl after its last write.
func NewExclusionCache(client *goredis.Client, ttl time.Duration) repository.ExclusionCache {
	return &exclusionCache{client: client, ttl: ttl}
}

func exclusionKey(viewerID int) string {
	return exclusionKeyPrefix + strconv.Itoa(viewerID)
}

func (c *exclusionCache) Add(ctx context.Context, viewerID int, targetIDs ...int) error {
	if c.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if len(targetIDs) == 0 {
		return nil
	}

	members := make([]interface{}, 0, len(targetIDs))
	for _, id := range targetIDs {
		members = append(members, id)
	}

	key := exclusionKey(viewerID)
	pipe := c.client.TxPipeline()
	pipe.SAdd(ctx, key, members...)
	if c.ttl > 0 {
		pipe.Expire(ctx, key, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add exclusions: %w", err)
	}
	return nil
}

func (c *exclusionCache) Members(ctx context.Context, viewerID int) ([]int, error) {
	if c.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}

	raw, err := c.client.SMembers(ctx, exclusionKey(viewerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read exclusions: %w", err)
	}

	ids := make([]int, 0, len(raw))
	for _, member := range raw {
		id, err := strconv.Atoi(member)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
