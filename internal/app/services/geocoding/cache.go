package geocoding

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/kedaikopi/delivery_layer/internal/app/domain/geocode"
)

// ResultCache stores resolved coordinates keyed by normalized address so
// repeated addresses do not burn provider quota.
type ResultCache interface {
	Get(ctx context.Context, address string) (geocode.Point, bool, error)
	Put(ctx context.Context, address string, pt geocode.Point) error
}

// RedisCache is a ResultCache backed by Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ ResultCache = (*RedisCache)(nil)

// NewRedisCache connects a cache to the given Redis instance.
func NewRedisCache(addr, password string, db int, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCache{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		ttl:    ttl,
	}
}

// Ping verifies connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Get(ctx context.Context, address string) (geocode.Point, bool, error) {
	val, err := c.client.Get(ctx, cacheKey(address)).Result()
	if err == redis.Nil {
		return geocode.Point{}, false, nil
	}
	if err != nil {
		return geocode.Point{}, false, err
	}

	parts := strings.SplitN(val, ",", 2)
	if len(parts) != 2 {
		return geocode.Point{}, false, fmt.Errorf("malformed cache entry %q", val)
	}
	lat, latErr := strconv.ParseFloat(parts[0], 64)
	lng, lngErr := strconv.ParseFloat(parts[1], 64)
	if latErr != nil || lngErr != nil {
		return geocode.Point{}, false, fmt.Errorf("malformed cache entry %q", val)
	}
	return geocode.Point{Lat: lat, Lng: lng}, true, nil
}

func (c *RedisCache) Put(ctx context.Context, address string, pt geocode.Point) error {
	value := strconv.FormatFloat(pt.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(pt.Lng, 'f', -1, 64)
	return c.client.Set(ctx, cacheKey(address), value, c.ttl).Err()
}

func cacheKey(address string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(address), " "))
	return "geocode:" + normalized
}
