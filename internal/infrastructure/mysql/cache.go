package mysql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"poolscope/internal/application"
	"poolscope/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey    = "poolscope:logs:version"
	logCacheKeyPrefix  = "poolscope:logs:v"
	optionsCachePrefix = "poolscope:options:v"
	defaultCacheTTL    = time.Hour
)

type CacheConfig struct {
	Addr string
	TTL  time.Duration
}

// CachedRepository adds a read-through redis cache on top of the MySQL
// store. Ingest bumps a version key, so every cached query and option list
// is invalidated as one atomic step.
type CachedRepository struct {
	*Repository
	cache *redis.Client
	ttl   time.Duration
}

func NewCachedRepository(base *Repository, cfg CacheConfig) (*CachedRepository, error) {
	if base == nil {
		return nil, errors.New("base repository is required")
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		return &CachedRepository{Repository: base}, nil
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &CachedRepository{Repository: base, cache: client, ttl: cfg.TTL}, nil
}

func (r *CachedRepository) StoreLogs(ctx context.Context, logs []domain.Log) error {
	if err := r.Repository.StoreLogs(ctx, logs); err != nil {
		return err
	}
	if len(logs) > 0 {
		r.invalidate(ctx)
	}
	return nil
}

func (r *CachedRepository) QueryLogs(ctx context.Context, constraints []application.Constraint) ([]domain.Log, error) {
	if r.cache == nil {
		return r.Repository.QueryLogs(ctx, constraints)
	}
	version, ok := r.version(ctx)
	if !ok {
		return r.Repository.QueryLogs(ctx, constraints)
	}
	key := logCacheKey(version, constraints)
	if cached, err := r.cache.Get(ctx, key).Result(); err == nil {
		var logs []domain.Log
		if err := json.Unmarshal([]byte(cached), &logs); err == nil {
			return logs, nil
		}
	}

	logs, err := r.Repository.QueryLogs(ctx, constraints)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(logs); err == nil {
		_ = r.cache.Set(ctx, key, payload, r.ttl).Err()
	}
	return logs, nil
}

func (r *CachedRepository) DistinctValues(ctx context.Context, column string) ([]string, error) {
	if r.cache == nil {
		return r.Repository.DistinctValues(ctx, column)
	}
	version, ok := r.version(ctx)
	if !ok {
		return r.Repository.DistinctValues(ctx, column)
	}
	key := optionsCachePrefix + version + ":" + column
	if cached, err := r.cache.Get(ctx, key).Result(); err == nil {
		var values []string
		if err := json.Unmarshal([]byte(cached), &values); err == nil {
			return values, nil
		}
	}

	values, err := r.Repository.DistinctValues(ctx, column)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(values); err == nil {
		_ = r.cache.Set(ctx, key, payload, r.ttl).Err()
	}
	return values, nil
}

func (r *CachedRepository) version(ctx context.Context) (string, bool) {
	version, err := r.cache.Get(ctx, cacheVersionKey).Result()
	if err == nil {
		return version, true
	}
	if errors.Is(err, redis.Nil) {
		return "0", true
	}
	return "", false
}

func (r *CachedRepository) invalidate(ctx context.Context) {
	if r.cache == nil {
		return
	}
	_ = r.cache.Incr(ctx, cacheVersionKey).Err()
}

func logCacheKey(version string, constraints []application.Constraint) string {
	var b strings.Builder
	b.Grow(128)
	b.WriteString(logCacheKeyPrefix)
	b.WriteString(version)
	for _, c := range constraints {
		b.WriteString(":")
		b.WriteString(strconv.Itoa(int(c.Op)))
		b.WriteString("/")
		b.WriteString(c.Field)
		b.WriteString("=")
		switch v := c.Value.(type) {
		case nil:
			b.WriteString(strings.Join(c.Values, ","))
		case time.Time:
			b.WriteString(strconv.FormatInt(v.UTC().UnixNano(), 10))
		default:
			b.WriteString(fmt.Sprint(v))
		}
	}
	return b.String()
}
