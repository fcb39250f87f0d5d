package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/btczs/btczs-l2/internal/chainerr"
	"github.com/btczs/btczs-l2/internal/util"
)

const keyPrefix = "btczs:"

// KVStore is the abstracted external-store interface from §6: byte-string
// get/put/delete, with an explicit begin/commit/rollback transaction
// bracket. One transaction spans one L1 block's processing.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Txn is a KVStore opened by Begin; exactly one of Commit or Rollback must
// be called to close it.
type Txn interface {
	KVStore
	Commit(ctx context.Context) error
	Rollback() error
}

// RedisStore is the Redis-backed external store.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore dials addr and verifies connectivity before returning.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, chainerr.Wrap(chainerr.KindConnectionError, "redis connection failed", err)
	}
	util.Infof("connected to store at %s", addr)
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Get reads directly from Redis, bypassing any in-flight transaction. The
// core is single-writer per spec §5, so there is no concurrent-transaction
// isolation to worry about outside the buffered read-your-writes a Txn
// itself provides.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, chainerr.Wrap(chainerr.KindConnectionError, "store get failed", err)
	}
	return val, true, nil
}

func (s *RedisStore) Put(ctx context.Context, key string, value []byte) error {
	if err := s.client.Set(ctx, keyPrefix+key, value, 0).Err(); err != nil {
		return chainerr.Wrap(chainerr.KindConnectionError, "store put failed", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return chainerr.Wrap(chainerr.KindConnectionError, "store delete failed", err)
	}
	return nil
}

// Begin opens a buffered transaction: reads check the local buffer first
// and fall through to Redis; writes land in the buffer only. Commit
// flushes the buffer as a single Redis MULTI/EXEC pipeline; Rollback
// discards it. This gives the one-transaction-per-L1-block semantics §6
// asks for without requiring Redis-side locking, since the engine never
// runs two transactions concurrently (§5).
func (s *RedisStore) Begin(ctx context.Context) (Txn, error) {
	return &redisTxn{store: s, puts: make(map[string][]byte), deletes: make(map[string]bool)}, nil
}

type redisTxn struct {
	store   *RedisStore
	puts    map[string][]byte
	deletes map[string]bool
	closed  bool
}

func (t *redisTxn) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if t.closed {
		return nil, false, chainerr.New(chainerr.KindInvalidState, "get on a closed transaction")
	}
	if t.deletes[key] {
		return nil, false, nil
	}
	if v, ok := t.puts[key]; ok {
		return v, true, nil
	}
	return t.store.Get(ctx, key)
}

func (t *redisTxn) Put(ctx context.Context, key string, value []byte) error {
	if t.closed {
		return chainerr.New(chainerr.KindInvalidState, "put on a closed transaction")
	}
	delete(t.deletes, key)
	t.puts[key] = value
	return nil
}

func (t *redisTxn) Delete(ctx context.Context, key string) error {
	if t.closed {
		return chainerr.New(chainerr.KindInvalidState, "delete on a closed transaction")
	}
	delete(t.puts, key)
	t.deletes[key] = true
	return nil
}

func (t *redisTxn) Commit(ctx context.Context) error {
	if t.closed {
		return chainerr.New(chainerr.KindInvalidState, "commit on a closed transaction")
	}
	t.closed = true

	if len(t.puts) == 0 && len(t.deletes) == 0 {
		return nil
	}

	pipe := t.store.client.TxPipeline()
	for k, v := range t.puts {
		pipe.Set(ctx, keyPrefix+k, v, 0)
	}
	for k := range t.deletes {
		pipe.Del(ctx, keyPrefix+k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return chainerr.Wrap(chainerr.KindConnectionError, "transaction commit failed", err)
	}
	return nil
}

func (t *redisTxn) Rollback() error {
	t.closed = true
	t.puts = nil
	t.deletes = nil
	return nil
}

// key helpers implementing the logical layout from §6.

func keySnapshot(height uint64) string       { return fmt.Sprintf("snapshot/%d", height) }
func keySnapshotByHash(hash [32]byte) string { return fmt.Sprintf("snapshot_by_hash/%x", hash) }
func keyBalance(l2Address string) string     { return "balance/" + l2Address }
func keyStacking(l2Address string) string    { return "stacking/" + l2Address }
func keyCycle(n uint64) string               { return fmt.Sprintf("cycle/%d", n) }
func keyUnlocks(height uint64) string        { return fmt.Sprintf("unlocks/%d", height) }

const keyTipHeight = "tip_height"
const keyCanonicalTip = "canonical_tip"
