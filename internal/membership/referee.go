package membership

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// refereeStore is the narrow KV surface Referee needs: a conditional
// set, a read, a TTL refresh, and a delete. It is satisfied by
// *redis.Client (via redisStore below) and by an in-memory fake in
// tests, so referee arbitration logic is exercised without a live
// Redis instance.
type refereeStore interface {
	setNX(ctx context.Context, key string, value int, ttl time.Duration) (bool, error)
	get(ctx context.Context, key string) (value int, found bool, err error)
	expire(ctx context.Context, key string, ttl time.Duration) error
	del(ctx context.Context, key string) error
}

type redisStore struct{ client *redis.Client }

func (s redisStore) setNX(ctx context.Context, key string, value int, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, key, value, ttl).Result()
}

func (s redisStore) get(ctx context.Context, key string) (int, bool, error) {
	val, err := s.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return val, true, nil
}

func (s redisStore) expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, key, ttl).Err()
}

func (s redisStore) del(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

// Referee arbitrates a two-node split via a well-known advisory KV
// (§4.2: "a simple advisory KV at a well-known address"). The pack's
// redis/go-redis client stands in for whatever advisory store a real
// deployment points at; the protocol is a single conditional SET.
type Referee struct {
	store refereeStore
	key   string
	ttl   time.Duration
}

// NewReferee dials a referee at connstring (§6's referee_connstring).
// key namespaces the grant per cluster (e.g. the cluster name), so one
// referee instance can arbitrate multiple clusters.
func NewReferee(connstring, clusterKey string, ttl time.Duration) (*Referee, error) {
	opt, err := redis.ParseURL(connstring)
	if err != nil {
		return nil, fmt.Errorf("membership: referee connstring: %w", err)
	}
	return newReferee(redisStore{client: redis.NewClient(opt)}, clusterKey, ttl), nil
}

func newReferee(store refereeStore, clusterKey string, ttl time.Duration) *Referee {
	return &Referee{store: store, key: "mtm-referee:" + clusterKey, ttl: ttl}
}

// Claim attempts to win the referee grant for this epoch. It awards
// the grant to at most one node: a SET NX that either succeeds (this
// node wins) or fails because another node already holds a live grant
// (§4.2: "The referee awards a grant to at most one node per epoch").
// A node that already holds the grant renews it via the same call.
func (r *Referee) Claim(ctx context.Context, selfID int) (won bool, winner int, err error) {
	ok, err := r.store.setNX(ctx, r.key, selfID, r.ttl)
	if err != nil {
		return false, 0, fmt.Errorf("membership: referee claim: %w", err)
	}
	if ok {
		return true, selfID, nil
	}
	val, found, err := r.store.get(ctx, r.key)
	if err != nil {
		return false, 0, fmt.Errorf("membership: referee read: %w", err)
	}
	if !found {
		return false, 0, nil
	}
	if val == selfID {
		if err := r.store.expire(ctx, r.key, r.ttl); err != nil {
			return false, 0, fmt.Errorf("membership: referee renew: %w", err)
		}
		return true, selfID, nil
	}
	return false, val, nil
}

// Surrender releases the grant if self currently holds it, so the
// peer that lost the partition can reclaim it once it reconnects and
// wants to rejoin (§4.2: "stays DISABLED until it can reach its peer
// and surrender the grant").
func (r *Referee) Surrender(ctx context.Context, selfID int) error {
	val, found, err := r.store.get(ctx, r.key)
	if err != nil {
		return fmt.Errorf("membership: referee read: %w", err)
	}
	if !found || val != selfID {
		return nil
	}
	return r.store.del(ctx, r.key)
}
