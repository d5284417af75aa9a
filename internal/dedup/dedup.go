// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package dedup remembers which inbound messages already received an
// auto-reply, so a webhook redelivered by the provider is answered once.
// Two backends are available: Redis keys with a TTL, and a Postgres ledger.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a claimed message id is remembered.
	// Provider redeliveries arrive within minutes, so 24h is generous.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "autoreply:replied:"
)

// RedisFilter claims message ids with SET NX.
type RedisFilter struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisFilter creates a dedup filter backed by Redis. A non-positive ttl
// falls back to DefaultTTL.
func NewRedisFilter(rdb redis.Cmdable, ttl time.Duration) *RedisFilter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisFilter{
		rdb: rdb,
		ttl: ttl,
	}
}

// Claim returns true if messageID has NOT been claimed before.
// If true, the id is marked as claimed atomically.
func (f *RedisFilter) Claim(ctx context.Context, messageID string) (bool, error) {
	set, err := f.rdb.SetNX(ctx, redisKey(messageID), 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}
	return set, nil
}

// Release forgets a claim.
func (f *RedisFilter) Release(ctx context.Context, messageID string) error {
	if err := f.rdb.Del(ctx, redisKey(messageID)).Err(); err != nil {
		return fmt.Errorf("dedup DEL: %w", err)
	}
	return nil
}

// redisKey normalises the id so whitespace variants collide.
func redisKey(messageID string) string {
	return keyPrefix + strings.TrimSpace(messageID)
}
