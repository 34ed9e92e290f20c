package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bikepack-planner/server/internal/agent/model"
	errx "github.com/bikepack-planner/server/internal/core/error"
	logx "github.com/bikepack-planner/server/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "planner"

// RedisCheckpointStore keeps one JSON checkpoint per session plus a sorted
// index of session ids scored by last write.
type RedisCheckpointStore struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
	now    func() time.Time
}

type Option func(*RedisCheckpointStore)

// WithTTL expires idle checkpoints. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(r *RedisCheckpointStore) {
		r.ttl = ttl
	}
}

func WithPrefix(prefix string) Option {
	return func(r *RedisCheckpointStore) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

func NewRedisCheckpointStore(rdb redis.Cmdable, opts ...Option) *RedisCheckpointStore {
	r := &RedisCheckpointStore{rdb: rdb, prefix: defaultPrefix, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RedisCheckpointStore) checkpointKey(sessionID string) string {
	return fmt.Sprintf("%s:checkpoint:%s", r.prefix, sessionID)
}

func (r *RedisCheckpointStore) indexKey() string {
	return fmt.Sprintf("%s:checkpoints", r.prefix)
}

func (r *RedisCheckpointStore) Get(ctx context.Context, sessionID string) (*model.ConversationState, error) {
	key := r.checkpointKey(sessionID)

	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errx.NotFound("checkpoint not found", fmt.Errorf("%w: %s", model.ErrCheckpointNotFound, sessionID))
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load checkpoint from redis")
		return nil, errx.WrapRedis(err)
	}

	var state model.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to unmarshal checkpoint")
		return nil, errx.Internal("corrupt checkpoint", fmt.Errorf("unmarshal checkpoint %s: %w", sessionID, err))
	}
	if state.Messages == nil {
		state.Messages = []model.Message{}
	}
	return &state, nil
}

// Put writes the checkpoint and refreshes the index in one transaction.
func (r *RedisCheckpointStore) Put(ctx context.Context, sessionID string, state *model.ConversationState) error {
	if state == nil {
		return errx.Validation("nil checkpoint", fmt.Errorf("session %s", sessionID))
	}
	b, err := json.Marshal(state)
	if err != nil {
		logx.Error().Err(err).Str("session_id", sessionID).Msg("failed to marshal checkpoint")
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	key := r.checkpointKey(sessionID)

	_, err = r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, b, r.ttl)
		pipe.ZAdd(ctx, r.indexKey(), redis.Z{
			Score:  float64(r.now().Unix()),
			Member: sessionID,
		})
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to write checkpoint to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisCheckpointStore) Delete(ctx context.Context, sessionID string) error {
	key := r.checkpointKey(sessionID)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, r.indexKey(), sessionID)
		return nil
	})
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete checkpoint from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

// List returns the ids of stored checkpoints with their last write time.
// Index entries whose checkpoint expired are pruned on the way.
func (r *RedisCheckpointStore) List(ctx context.Context) ([]model.CheckpointInfo, error) {
	if r.ttl > 0 {
		cutoff := r.now().Add(-r.ttl).Unix()
		if err := r.rdb.ZRemRangeByScore(ctx, r.indexKey(), "-inf", fmt.Sprintf("(%d", cutoff)).Err(); err != nil {
			return nil, errx.WrapRedis(err)
		}
	}

	rows, err := r.rdb.ZRangeWithScores(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, errx.WrapRedis(err)
	}
	out := make([]model.CheckpointInfo, 0, len(rows))
	for _, z := range rows {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		out = append(out, model.CheckpointInfo{SessionID: id, UpdatedAt: time.Unix(int64(z.Score), 0)})
	}
	return out, nil
}

var (
	_ model.CheckpointStore  = (*RedisCheckpointStore)(nil)
	_ model.CheckpointLister = (*RedisCheckpointStore)(nil)
)
