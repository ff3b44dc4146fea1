// Copyright 2025 FleetPulse
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

package notifications

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"

	"fleetpulse/realtime/shared/logger"
)

// directoryKey is the fixed Redis hash mapping userID → owning instance.
// A hash is more memory-efficient than per-user keys and HSET/HDEL are
// atomic per field, which is all the consistency the directory needs.
const directoryKey = "user-instance-mapping"

// Presence is a thin wrapper over the shared presence directory: a
// single Redis hash mapping each connected user to the instance that
// currently holds their connections. Writes are last-write-wins; the
// directory is eventually correct and never the source of durable
// state. A stale entry left by a rapid reconnect to another instance is
// corrected by the old instance's own removal path.
type Presence struct {
	rdb        *redis.Client
	instanceID string
	log        *logger.Logger
}

// NewPresence creates a directory client bound to this instance's identity.
func NewPresence(rdb *redis.Client, instanceID string, log *logger.Logger) *Presence {
	return &Presence{rdb: rdb, instanceID: instanceID, log: log}
}

// Upsert records this instance as the owner of userID's connections.
func (p *Presence) Upsert(ctx context.Context, userID string) error {
	if err := p.rdb.HSet(ctx, directoryKey, userID, p.instanceID).Err(); err != nil {
		return fmt.Errorf("failed to upsert presence for %s: %w", userID, err)
	}
	return nil
}

// Lookup returns the instance that owns userID's connections, or
// ok=false when no instance has the user.
func (p *Presence) Lookup(ctx context.Context, userID string) (instanceID string, ok bool, err error) {
	val, err := p.rdb.HGet(ctx, directoryKey, userID).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up presence for %s: %w", userID, err)
	}
	return val, true, nil
}

// RemoveIfOwner deletes userID's directory entry, but only if this
// instance is still the owner of record. If the user has already
// reconnected elsewhere the newer entry is left untouched. The
// get-then-delete pair is not atomic; under last-write-wins semantics
// the brief race window is accepted.
func (p *Presence) RemoveIfOwner(ctx context.Context, userID string) error {
	owner, ok, err := p.Lookup(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if owner != p.instanceID {
		p.log.Debug(userID, "presence entry owned by another instance, leaving it", map[string]interface{}{
			"owner": owner,
		})
		return nil
	}

	if err := p.rdb.HDel(ctx, directoryKey, userID).Err(); err != nil {
		return fmt.Errorf("failed to remove presence for %s: %w", userID, err)
	}
	return nil
}
