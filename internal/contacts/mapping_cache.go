package contacts

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Mapping is one cached externalKey -> identity entry. It is an
// acceleration structure only: callers must verify the contact still
// exists before trusting it.
type Mapping struct {
	Phone     string
	ContactID uuid.UUID
}

// MappingCache caches raw wire identifiers against resolved identities so
// the resolver can skip normalization and lookups on the hot path.
type MappingCache struct {
	rdb redis.UniversalClient
}

// NewMappingCache wraps a redis client. A nil client yields a nil cache,
// which every method tolerates.
func NewMappingCache(rdb redis.UniversalClient) *MappingCache {
	if rdb == nil {
		return nil
	}
	return &MappingCache{rdb: rdb}
}

func mappingKey(channel Channel, externalKey string) string {
	return fmt.Sprintf("idmap:%s:%s", channel, externalKey)
}

// Get returns the cached mapping for the raw external key, if any.
func (c *MappingCache) Get(ctx context.Context, channel Channel, externalKey string) (Mapping, bool, error) {
	if c == nil {
		return Mapping{}, false, nil
	}
	fields, err := c.rdb.HGetAll(ctx, mappingKey(channel, externalKey)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Mapping{}, false, nil
		}
		return Mapping{}, false, fmt.Errorf("contacts: mapping cache get: %w", err)
	}
	if len(fields) == 0 {
		return Mapping{}, false, nil
	}
	contactID, err := uuid.Parse(fields["contact_id"])
	if err != nil {
		// Corrupt entry; treat as a miss so it gets rewritten.
		return Mapping{}, false, nil
	}
	return Mapping{Phone: fields["phone"], ContactID: contactID}, true, nil
}

// Put stores or overwrites the mapping for the raw external key.
func (c *MappingCache) Put(ctx context.Context, channel Channel, externalKey string, m Mapping) error {
	if c == nil {
		return nil
	}
	err := c.rdb.HSet(ctx, mappingKey(channel, externalKey),
		"phone", m.Phone,
		"contact_id", m.ContactID.String(),
	).Err()
	if err != nil {
		return fmt.Errorf("contacts: mapping cache put: %w", err)
	}
	return nil
}

// Delete drops a stale mapping.
func (c *MappingCache) Delete(ctx context.Context, channel Channel, externalKey string) error {
	if c == nil {
		return nil
	}
	if err := c.rdb.Del(ctx, mappingKey(channel, externalKey)).Err(); err != nil {
		return fmt.Errorf("contacts: mapping cache delete: %w", err)
	}
	return nil
}
