package points

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// BalanceCache is a read-through Redis cache for card balances. Cache
// failures degrade to the loader; they never fail a read. Mutating
// operations invalidate the key inside the Point Service, so a stale value
// can outlive a write only by the propagation of a single DEL.
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewBalanceCache constructs the cache. A zero ttl defaults to one minute.
func NewBalanceCache(client *redis.Client, ttl time.Duration) *BalanceCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &BalanceCache{client: client, ttl: ttl}
}

func balanceKey(cardUID string) string {
	return "card:balances:" + cardUID
}

// Fetch returns the cached balances for a card, loading and caching them on
// a miss. Concurrent misses for the same card share one loader call.
func (c *BalanceCache) Fetch(ctx context.Context, cardUID string, load func(context.Context) (CardBalances, error)) (CardBalances, error) {
	if c == nil || c.client == nil {
		return load(ctx)
	}
	key := balanceKey(cardUID)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var balances CardBalances
		if unmarshalErr := json.Unmarshal(raw, &balances); unmarshalErr == nil {
			return balances, nil
		}
	} else if !errors.Is(err, redis.Nil) && ctx.Err() != nil {
		return CardBalances{}, ctx.Err()
	}

	result, err, _ := c.group.Do(key, func() (any, error) {
		balances, err := load(ctx)
		if err != nil {
			return CardBalances{}, err
		}
		if data, marshalErr := json.Marshal(balances); marshalErr == nil {
			_ = c.client.Set(ctx, key, data, c.ttl).Err()
		}
		return balances, nil
	})
	if err != nil {
		return CardBalances{}, err
	}
	return result.(CardBalances), nil
}

// Invalidate drops the cached balances for a card.
func (c *BalanceCache) Invalidate(ctx context.Context, cardUID string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, balanceKey(cardUID)).Err()
}
