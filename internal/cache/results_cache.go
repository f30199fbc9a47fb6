package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/quorumlabs/pollhub/internal/domain/vote"
)

// ResultsCache keeps computed tallies in Redis for a short TTL. It is a pure
// read accelerator: a miss or a Redis outage falls back to the live count, and
// every vote cast or poll mutation invalidates the entry.
type ResultsCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewResultsCache(rdb *redis.Client, ttl time.Duration) *ResultsCache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}

	return &ResultsCache{rdb: rdb, ttl: ttl}
}

func resultsKey(pollID string) string {
	return "poll:results:" + pollID
}

func (c *ResultsCache) Get(ctx context.Context, pollID string) (vote.Results, bool) {
	if c == nil || c.rdb == nil {
		return vote.Results{}, false
	}

	raw, err := c.rdb.Get(ctx, resultsKey(pollID)).Bytes()

	if err != nil {
		// redis.Nil and a Redis outage look the same from here: a miss.
		return vote.Results{}, false
	}

	var res vote.Results

	if err := json.Unmarshal(raw, &res); err != nil {
		return vote.Results{}, false
	}

	return res, true
}

func (c *ResultsCache) Set(ctx context.Context, res vote.Results) {
	if c == nil || c.rdb == nil {
		return
	}

	raw, err := json.Marshal(res)

	if err != nil {
		return
	}

	_ = c.rdb.Set(ctx, resultsKey(res.PollID), raw, c.ttl).Err()
}

func (c *ResultsCache) Invalidate(ctx context.Context, pollID string) {
	if c == nil || c.rdb == nil {
		return
	}

	_ = c.rdb.Del(ctx, resultsKey(pollID)).Err()
}
