package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/jstittsworth/lineup-engine/internal/optimizer"
)

// ResultCache stores optimization results in Redis so identical requests
// skip the solver. All operations run behind a circuit breaker; when Redis
// is down reads degrade to misses and writes are dropped.
type ResultCache struct {
	client     *redis.Client
	breaker    *gobreaker.CircuitBreaker
	defaultTTL time.Duration
	keyPrefix  string
	retries    int
	logger     *logrus.Entry
}

// NewResultCache connects to Redis and verifies the connection
func NewResultCache(redisURL string, defaultTTL time.Duration, logger *logrus.Logger) (*ResultCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger == nil {
		logger = logrus.StandardLogger()
	}
	entry := logger.WithField("component", "result_cache")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "result-cache",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			entry.WithFields(logrus.Fields{
				"breaker":    name,
				"from_state": from.String(),
				"to_state":   to.String(),
			}).Warn("Result cache circuit breaker state changed")
		},
	})

	cache := &ResultCache{
		client:     client,
		breaker:    breaker,
		defaultTTL: defaultTTL,
		keyPrefix:  "lineup-engine:",
		retries:    3,
		logger:     entry,
	}

	entry.WithFields(logrus.Fields{
		"default_ttl": defaultTTL,
		"key_prefix":  cache.keyPrefix,
	}).Info("Result cache initialized")
	return cache, nil
}

// GetLineupSet retrieves a cached generation result. A miss, an open
// breaker, and a Redis error all return (nil, nil); the caller recomputes.
func (rc *ResultCache) GetLineupSet(ctx context.Context, key string) (*optimizer.LineupSet, error) {
	payload, ok := rc.get(ctx, rc.keyPrefix+key)
	if !ok {
		return nil, nil
	}

	var set optimizer.LineupSet
	if err := json.Unmarshal(payload, &set); err != nil {
		rc.logger.WithError(err).WithField("key", key).Error("Failed to unmarshal cached lineup set")
		return nil, err
	}
	return &set, nil
}

// SetLineupSet caches a generation result with the default TTL
func (rc *ResultCache) SetLineupSet(ctx context.Context, key string, set *optimizer.LineupSet) error {
	if set == nil {
		return fmt.Errorf("lineup set cannot be nil")
	}
	data, err := json.Marshal(set)
	if err != nil {
		rc.logger.WithError(err).Error("Failed to marshal lineup set")
		return err
	}
	return rc.setWithRetry(ctx, rc.keyPrefix+key, data)
}

// GetLineup retrieves a cached single-lineup result
func (rc *ResultCache) GetLineup(ctx context.Context, key string) (*optimizer.Lineup, error) {
	payload, ok := rc.get(ctx, rc.keyPrefix+key)
	if !ok {
		return nil, nil
	}

	var lineup optimizer.Lineup
	if err := json.Unmarshal(payload, &lineup); err != nil {
		rc.logger.WithError(err).WithField("key", key).Error("Failed to unmarshal cached lineup")
		return nil, err
	}
	return &lineup, nil
}

// SetLineup caches a single-lineup result with the default TTL
func (rc *ResultCache) SetLineup(ctx context.Context, key string, lineup *optimizer.Lineup) error {
	if lineup == nil {
		return fmt.Errorf("lineup cannot be nil")
	}
	data, err := json.Marshal(lineup)
	if err != nil {
		rc.logger.WithError(err).Error("Failed to marshal lineup")
		return err
	}
	return rc.setWithRetry(ctx, rc.keyPrefix+key, data)
}

func (rc *ResultCache) get(ctx context.Context, key string) ([]byte, bool) {
	start := time.Now()
	result, err := rc.breaker.Execute(func() (interface{}, error) {
		return rc.client.Get(ctx, key).Result()
	})
	if err != nil {
		if err == redis.Nil {
			rc.logger.WithField("key", key).Debug("Cache miss")
		} else {
			rc.logger.WithError(err).WithField("key", key).Warn("Cache read failed")
		}
		return nil, false
	}

	rc.logger.WithFields(logrus.Fields{
		"key":           key,
		"response_time": time.Since(start),
	}).Debug("Cache hit")
	return []byte(result.(string)), true
}

func (rc *ResultCache) setWithRetry(ctx context.Context, key string, data []byte) error {
	var lastErr error
	for attempt := 1; attempt <= rc.retries; attempt++ {
		_, err := rc.breaker.Execute(func() (interface{}, error) {
			return nil, rc.client.Set(ctx, key, data, rc.defaultTTL).Err()
		})
		if err == nil {
			rc.logger.WithFields(logrus.Fields{
				"key":        key,
				"ttl":        rc.defaultTTL,
				"size_bytes": len(data),
				"attempt":    attempt,
			}).Debug("Cached result")
			return nil
		}
		lastErr = err
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	rc.logger.WithError(lastErr).WithField("key", key).Warn("Cache write dropped")
	return lastErr
}

// Invalidate removes the given cache keys
func (rc *ResultCache) Invalidate(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = rc.keyPrefix + key
	}

	deleted, err := rc.client.Del(ctx, prefixed...).Result()
	if err != nil {
		rc.logger.WithError(err).Error("Failed to invalidate cache keys")
		return err
	}
	rc.logger.WithField("keys_deleted", deleted).Debug("Cache keys invalidated")
	return nil
}

// PurgeResults deletes every cached result under this cache's prefix.
// Used by the maintenance sweep.
func (rc *ResultCache) PurgeResults(ctx context.Context) (int, error) {
	iter := rc.client.Scan(ctx, 0, rc.keyPrefix+"result:*", 0).Iterator()

	purged := 0
	for iter.Next(ctx) {
		if err := rc.client.Del(ctx, iter.Val()).Err(); err != nil {
			rc.logger.WithError(err).WithField("key", iter.Val()).Warn("Failed to purge cache key")
			continue
		}
		purged++
	}
	if err := iter.Err(); err != nil {
		return purged, err
	}

	rc.logger.WithField("keys_purged", purged).Info("Result cache purged")
	return purged, nil
}

// Health pings Redis
func (rc *ResultCache) Health(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (rc *ResultCache) Close() error {
	return rc.client.Close()
}

// ResultKey builds a deterministic cache key for a generation request.
// Identical pools and settings always map to the same key.
func ResultKey(players []optimizer.Player, schema optimizer.RosterSchema, strategy optimizer.StrategyConfig, cfg optimizer.GenerateConfig) string {
	return fmt.Sprintf("result:cap%d_count%d_overlap%d_%s",
		schema.SalaryCap, cfg.Count, cfg.MaxOverlap, requestFingerprint(players, strategy))
}

// SingleKey builds a deterministic cache key for a single-lineup request
func SingleKey(players []optimizer.Player, schema optimizer.RosterSchema, strategy optimizer.StrategyConfig) string {
	return fmt.Sprintf("result:cap%d_single_%s",
		schema.SalaryCap, requestFingerprint(players, strategy))
}

// requestFingerprint hashes the pool contents and strategy so the key
// stays stable under player reordering
func requestFingerprint(players []optimizer.Player, strategy optimizer.StrategyConfig) string {
	lines := make([]string, len(players))
	for i, p := range players {
		lines[i] = fmt.Sprintf("%s:%d:%.4f:%.4f", p.Key(), p.Salary, p.ProjectedPoints, p.Variance())
	}
	sort.Strings(lines)

	h := fnv.New64a()
	for _, line := range lines {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	h.Write([]byte(fmt.Sprintf("%s:%.4f:%d", strategy.Strategy, strategy.KWeight, strategy.Seed)))

	return fmt.Sprintf("%s_%x", strategy.Strategy, h.Sum64())
}
