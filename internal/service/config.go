package service

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/punchamoorthee/pointops/internal/store"
)

// System config keys and their fallback defaults, used when the key is
// absent from the store or unparsable.
const (
	keyMaxEarnPerTransaction = "point.max.earn.per.transaction"
	keyMaxBalancePerUser     = "point.max.balance.per.user"
	keyDefaultExpirationDays = "point.default.expiration.days"
	keyMinExpirationDays     = "point.min.expiration.days"
	keyMaxExpirationDays     = "point.max.expiration.days"

	defaultMaxEarnPerTransaction = 100000
	defaultMaxBalancePerUser     = 10000000
	defaultDefaultExpirationDays = 365
	defaultMinExpirationDays     = 1
	defaultMaxExpirationDays     = 1825
)

// configCacheTTL bounds how stale a cached limit can get.
const configCacheTTL = time.Minute

type cachedValue struct {
	value   int64
	fetched time.Time
}

// ConfigProvider reads tunable limits from the store's system_configs table
// through a small TTL cache.
type ConfigProvider struct {
	store store.Store

	mu    sync.RWMutex
	cache map[string]cachedValue
}

func NewConfigProvider(s store.Store) *ConfigProvider {
	return &ConfigProvider{store: s, cache: make(map[string]cachedValue)}
}

func (c *ConfigProvider) get(ctx context.Context, key string, fallback int64) int64 {
	c.mu.RLock()
	cached, ok := c.cache[key]
	c.mu.RUnlock()
	if ok && time.Since(cached.fetched) < configCacheTTL {
		return cached.value
	}

	value := fallback
	raw, err := c.store.GetConfigValue(ctx, key)
	if err == nil {
		parsed, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			log.Printf("config %s has unparsable value %q, using default %d", key, raw, fallback)
		} else {
			value = parsed
		}
	}

	c.mu.Lock()
	c.cache[key] = cachedValue{value: value, fetched: time.Now()}
	c.mu.Unlock()
	return value
}

func (c *ConfigProvider) MaxEarnPerTransaction(ctx context.Context) int64 {
	return c.get(ctx, keyMaxEarnPerTransaction, defaultMaxEarnPerTransaction)
}

func (c *ConfigProvider) MaxBalancePerUser(ctx context.Context) int64 {
	return c.get(ctx, keyMaxBalancePerUser, defaultMaxBalancePerUser)
}

func (c *ConfigProvider) DefaultExpirationDays(ctx context.Context) int {
	return int(c.get(ctx, keyDefaultExpirationDays, defaultDefaultExpirationDays))
}

func (c *ConfigProvider) MinExpirationDays(ctx context.Context) int {
	return int(c.get(ctx, keyMinExpirationDays, defaultMinExpirationDays))
}

func (c *ConfigProvider) MaxExpirationDays(ctx context.Context) int {
	return int(c.get(ctx, keyMaxExpirationDays, defaultMaxExpirationDays))
}
