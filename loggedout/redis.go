// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: MPL-2.0

package loggedout

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/redis/go-redis/v9"
)

// Redis is a Store shared by several processes through Redis. Each sid is a
// Redis set, which Redis deletes on its own once the last member is removed.
type Redis struct {
	client   redis.UniversalClient
	prefix   string
	ttl      time.Duration
	logger   hclog.Logger
	onLogout LogoutFunc
}

var _ Store = (*Redis)(nil)

// renewScript swaps ARGV[1] for ARGV[2] in one step. ARGV[3] is the TTL in
// milliseconds, 0 for none.
var renewScript = redis.NewScript(`
redis.call("SREM", KEYS[1], ARGV[1])
redis.call("SADD", KEYS[1], ARGV[2])
if tonumber(ARGV[3]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[3])
end
return 1
`)

// NewRedis creates a Redis backed Store.
//
// Supported options: WithLogger, WithLogoutFunc, WithKeyPrefix, WithTTL
func NewRedis(client redis.UniversalClient, opt ...Option) (*Redis, error) {
	const op = "loggedout.NewRedis"
	if client == nil {
		return nil, fmt.Errorf("%s: redis client is nil: %w", op, ErrNilParameter)
	}
	opts := getStoreOpts(opt...)
	if opts.withTTL < 0 {
		return nil, fmt.Errorf("%s: negative ttl: %w", op, ErrInvalidParameter)
	}
	return &Redis{
		client:   client,
		prefix:   opts.withKeyPrefix,
		ttl:      opts.withTTL,
		logger:   opts.withLogger,
		onLogout: opts.withLogoutFunc,
	}, nil
}

func (r *Redis) key(sid string) string {
	return r.prefix + sid
}

func (r *Redis) Acquire(ctx context.Context, sid, localID string) error {
	const op = "loggedout.(Redis).Acquire"
	if err := validate(op, sid, localID); err != nil {
		return err
	}
	key := r.key(sid)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, key, localID)
		if r.ttl > 0 {
			p.PExpire(ctx, key, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *Redis) Release(ctx context.Context, sid, localID string) error {
	const op = "loggedout.(Redis).Release"
	if err := validate(op, sid, localID); err != nil {
		return err
	}
	if err := r.client.SRem(ctx, r.key(sid), localID).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *Redis) Renew(ctx context.Context, sid, oldID, newID string) error {
	const op = "loggedout.(Redis).Renew"
	if err := validate(op, sid, oldID, newID); err != nil {
		return err
	}
	err := renewScript.Run(ctx, r.client, []string{r.key(sid)}, oldID, newID, r.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *Redis) Logout(ctx context.Context, sid string) error {
	const op = "loggedout.(Redis).Logout"
	if err := validate(op, sid); err != nil {
		return err
	}
	key := r.key(sid)
	var members *redis.StringSliceCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		members = p.SMembers(ctx, key)
		p.Del(ctx, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	ids := members.Val()
	r.logger.Debug("sid logged out", "op", op, "sessions", len(ids))
	if len(ids) > 0 && r.onLogout != nil {
		r.onLogout(ctx, sid, ids)
	}
	return nil
}

func (r *Redis) IsLoggedOut(ctx context.Context, sid string) (bool, error) {
	const op = "loggedout.(Redis).IsLoggedOut"
	if err := validate(op, sid); err != nil {
		return false, err
	}
	key := r.key(sid)
	if r.ttl > 0 {
		// PEXPIRE reports whether the key exists, and keeps the sid of an
		// active session from expiring.
		found, err := r.client.PExpire(ctx, key, r.ttl).Result()
		if err != nil {
			return false, fmt.Errorf("%s: %w", op, err)
		}
		return !found, nil
	}
	n, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}
	return n == 0, nil
}
