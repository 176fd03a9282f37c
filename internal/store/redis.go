// Package store provides storage backends for DawaCall.
//
// This file implements a Redis write-through cache for the hot session row.
// USSD gateways re-send the whole session on every keypress, so the session
// read-modify-write cycle dominates store traffic; the SQL row stays the
// authoritative audit copy.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okothm/dawacall/internal/models"
)

// DefaultSessionCacheTTL bounds how long a session row lives in the cache.
// Longer than any session timeout so active conversations never fall out.
const DefaultSessionCacheTTL = 30 * time.Minute

const sessionKeyPrefix = "dawacall:sess:"

// CachedStore decorates a Store with a Redis session cache. All non-session
// operations pass through to the base store unchanged.
type CachedStore struct {
	Store
	rdb *redis.Client
	ttl time.Duration
}

// NewCachedStore connects to Redis at addr and wraps base with the session
// cache. The connection is verified with a ping before returning.
func NewCachedStore(base Store, addr string) (*CachedStore, error) {
	slog.Debug("CachedStore.NewCachedStore: connecting to Redis", "addr", addr)
	rdb := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("CachedStore Redis ping failed", "error", err, "addr", addr)
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &CachedStore{Store: base, rdb: rdb, ttl: DefaultSessionCacheTTL}, nil
}

// GetSession checks the cache first and falls back to the base store on a
// miss, repopulating the cache. Cache errors degrade to the base store
// rather than failing the request.
func (c *CachedStore) GetSession(id string) (*models.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	raw, err := c.rdb.Get(ctx, sessionKeyPrefix+id).Result()
	if err == nil {
		var sess models.Session
		if err := json.Unmarshal([]byte(raw), &sess); err == nil {
			slog.Debug("CachedStore GetSession cache hit", "sessionID", id)
			return &sess, nil
		}
		slog.Error("CachedStore GetSession cache decode failed, falling back", "sessionID", id)
	} else if err != redis.Nil {
		slog.Error("CachedStore GetSession cache read failed, falling back", "error", err, "sessionID", id)
	}

	sess, err := c.Store.GetSession(id)
	if err != nil || sess == nil {
		return sess, err
	}
	c.cacheSession(*sess)
	return sess, nil
}

// SaveSession writes to the base store first (authoritative), then refreshes
// the cache. A cache write failure is logged, not returned.
func (c *CachedStore) SaveSession(sess models.Session) error {
	if err := c.Store.SaveSession(sess); err != nil {
		return err
	}
	c.cacheSession(sess)
	return nil
}

func (c *CachedStore) cacheSession(sess models.Session) {
	blob, err := json.Marshal(sess)
	if err != nil {
		slog.Error("CachedStore cacheSession marshal failed", "error", err, "sessionID", sess.ID)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.rdb.Set(ctx, sessionKeyPrefix+sess.ID, blob, c.ttl).Err(); err != nil {
		slog.Error("CachedStore cacheSession write failed", "error", err, "sessionID", sess.ID)
	}
}

// Close closes the Redis connection and the base store.
func (c *CachedStore) Close() error {
	if err := c.rdb.Close(); err != nil {
		slog.Error("CachedStore failed to close Redis connection", "error", err)
	}
	return c.Store.Close()
}
