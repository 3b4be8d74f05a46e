package payroll

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const RateCacheKeyPrefix = "payroll:rates:"

func RateCacheKey(tenantID string, period Period) string {
	return RateCacheKeyPrefix + tenantID + ":" + string(period)
}

// CachedResolver is a read-through Redis cache in front of another resolver.
// Rate sets never change once created, so entries only expire by TTL.
type CachedResolver struct {
	next RateResolver
	rdb  *redis.Client
	ttl  time.Duration
	sf   singleflight.Group
}

func NewCachedResolver(next RateResolver, rdb *redis.Client, ttl time.Duration) *CachedResolver {
	return &CachedResolver{next: next, rdb: rdb, ttl: ttl}
}

func (c *CachedResolver) Resolve(ctx context.Context, tenantID string, period Period) (RateSet, error) {
	key := RateCacheKey(tenantID, period)
	if c.rdb != nil {
		if cached, err := c.rdb.Get(ctx, key).Result(); err == nil {
			var rates RateSet
			if json.Unmarshal([]byte(cached), &rates) == nil {
				rates.TenantID = tenantID
				return rates, nil
			}
		} else if err != redis.Nil {
			log.Warn().Err(err).Str("key", key).Msg("rate cache read failed")
		}
	}

	v, err, _ := c.sf.Do(key, func() (interface{}, error) {
		rates, err := c.next.Resolve(ctx, tenantID, period)
		if err != nil {
			return RateSet{}, err
		}
		if c.rdb != nil {
			if payload, err := json.Marshal(rates); err == nil {
				if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
					log.Warn().Err(err).Str("key", key).Msg("rate cache write failed")
				}
			}
		}
		return rates, nil
	})
	if err != nil {
		return RateSet{}, err
	}
	return v.(RateSet), nil
}
