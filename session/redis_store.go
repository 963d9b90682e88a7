package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/flowroute/config"
	"github.com/BaSui01/flowroute/types"
)

// RedisStore persists sessions as JSON blobs in redis. Active sessions are
// tracked in a set so ListActive avoids a full key scan. Terminal sessions
// expire after the configured retention.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	retention time.Duration
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg config.RedisConfig, retention time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, types.NewError(types.ErrStoreUnavailable, "redis connection failed").
			WithCause(err).WithRetryable(true)
	}
	return &RedisStore{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		retention: retention,
	}, nil
}

func (r *RedisStore) sessionKey(id string) string {
	return r.keyPrefix + "session:" + id
}

func (r *RedisStore) activeKey() string {
	return r.keyPrefix + "sessions:active"
}

// Save writes the session blob and maintains the active index atomically.
func (r *RedisStore) Save(ctx context.Context, session *types.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return types.NewError(types.ErrInternalError, "marshal session").WithCause(err).WithSession(session.ID)
	}

	pipe := r.client.TxPipeline()
	if session.Phase.Terminal() {
		pipe.Set(ctx, r.sessionKey(session.ID), data, r.retention)
		pipe.SRem(ctx, r.activeKey(), session.ID)
	} else {
		pipe.Set(ctx, r.sessionKey(session.ID), data, 0)
		pipe.SAdd(ctx, r.activeKey(), session.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewError(types.ErrStoreUnavailable, "redis save failed").
			WithCause(err).WithRetryable(true).WithSession(session.ID)
	}
	return nil
}

// Get loads and decodes one session.
func (r *RedisStore) Get(ctx context.Context, id string) (*types.Session, error) {
	data, err := r.client.Get(ctx, r.sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, types.NewError(types.ErrSessionNotFound, "session not found").WithSession(id)
	}
	if err != nil {
		return nil, types.NewError(types.ErrStoreUnavailable, "redis get failed").
			WithCause(err).WithRetryable(true).WithSession(id)
	}
	var session types.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, types.NewError(types.ErrInternalError, "decode session").WithCause(err).WithSession(id)
	}
	return &session, nil
}

// ListActive resolves the active index to full sessions. Index entries whose
// blob has vanished are pruned as they are discovered.
func (r *RedisStore) ListActive(ctx context.Context) ([]*types.Session, error) {
	ids, err := r.client.SMembers(ctx, r.activeKey()).Result()
	if err != nil {
		return nil, types.NewError(types.ErrStoreUnavailable, "redis list failed").
			WithCause(err).WithRetryable(true)
	}

	active := []*types.Session{}
	for _, id := range ids {
		session, err := r.Get(ctx, id)
		if err != nil {
			if types.GetErrorCode(err) == types.ErrSessionNotFound {
				r.client.SRem(ctx, r.activeKey(), id)
				continue
			}
			return nil, err
		}
		active = append(active, session)
	}
	return active, nil
}

// Delete removes the session blob and its index entry.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.sessionKey(id))
	pipe.SRem(ctx, r.activeKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return types.NewError(types.ErrStoreUnavailable, "redis delete failed").
			WithCause(err).WithRetryable(true).WithSession(id)
	}
	return nil
}

// Ping verifies the redis connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return types.NewError(types.ErrStoreUnavailable, "redis ping failed").
			WithCause(err).WithRetryable(true)
	}
	return nil
}

// Close closes the redis client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
