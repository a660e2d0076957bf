package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/compilo/compilo-backend/internal/domain/transfer"
)

// Key prefixes for reference data
const (
	CountryPrefix     = "compilo:ref:country:"
	CountryCodePrefix = "compilo:ref:country:code:"
	CountryListKey    = "compilo:ref:countries"
	MechanismPrefix   = "compilo:ref:mechanism:"
	MechanismListKey  = "compilo:ref:mechanisms"
)

// ReferenceCache is a read-through cache in front of a
// transfer.ReferenceRepository. Countries and mechanisms change on regulatory
// events, not request traffic, so a TTL in the hours is safe. Redis failures
// degrade to direct repository reads.
type ReferenceCache struct {
	client *redis.Client
	source transfer.ReferenceRepository
	logger *zap.Logger
	ttl    time.Duration
}

// NewReferenceCache creates a read-through reference data cache.
func NewReferenceCache(client *redis.Client, source transfer.ReferenceRepository, logger *zap.Logger, ttl time.Duration) *ReferenceCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &ReferenceCache{
		client: client,
		source: source,
		logger: logger,
		ttl:    ttl,
	}
}

// GetCountry retrieves a country by id, cache first.
func (c *ReferenceCache) GetCountry(ctx context.Context, id uuid.UUID) (*transfer.Country, error) {
	key := CountryPrefix + id.String()
	var cached transfer.Country
	if c.lookup(ctx, key, &cached) {
		return &cached, nil
	}

	country, err := c.source.GetCountry(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, country)
	return country, nil
}

// GetCountryByCode retrieves a country by ISO code, cache first.
func (c *ReferenceCache) GetCountryByCode(ctx context.Context, code string) (*transfer.Country, error) {
	key := CountryCodePrefix + code
	var cached transfer.Country
	if c.lookup(ctx, key, &cached) {
		return &cached, nil
	}

	country, err := c.source.GetCountryByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, country)
	return country, nil
}

// ListCountries returns all countries, cache first.
func (c *ReferenceCache) ListCountries(ctx context.Context) ([]*transfer.Country, error) {
	var cached []*transfer.Country
	if c.lookup(ctx, CountryListKey, &cached) {
		return cached, nil
	}

	countries, err := c.source.ListCountries(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, CountryListKey, countries)
	return countries, nil
}

// GetMechanism retrieves a transfer mechanism by id, cache first.
func (c *ReferenceCache) GetMechanism(ctx context.Context, id uuid.UUID) (*transfer.TransferMechanism, error) {
	key := MechanismPrefix + id.String()
	var cached transfer.TransferMechanism
	if c.lookup(ctx, key, &cached) {
		return &cached, nil
	}

	mechanism, err := c.source.GetMechanism(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, mechanism)
	return mechanism, nil
}

// ListMechanisms returns all transfer mechanisms, cache first.
func (c *ReferenceCache) ListMechanisms(ctx context.Context) ([]*transfer.TransferMechanism, error) {
	var cached []*transfer.TransferMechanism
	if c.lookup(ctx, MechanismListKey, &cached) {
		return cached, nil
	}

	mechanisms, err := c.source.ListMechanisms(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, MechanismListKey, mechanisms)
	return mechanisms, nil
}

// Invalidate drops all cached reference data, for use after reference data
// imports.
func (c *ReferenceCache) Invalidate(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, "compilo:ref:*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func (c *ReferenceCache) lookup(ctx context.Context, key string, out any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("reference cache read failed",
				zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		c.logger.Warn("reference cache entry corrupt",
			zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *ReferenceCache) store(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("reference cache marshal failed",
			zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("reference cache write failed",
			zap.String("key", key), zap.Error(err))
	}
}
