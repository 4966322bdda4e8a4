package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/estate/internal/model"
)

const redisSessionPrefix = "estate:session:"

// RedisSessionRepo はRedisを使用したセッションリポジトリ。
// 有効期限はキーのTTLで管理する。
type RedisSessionRepo struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedisSessionRepo はRedisSessionRepoを生成する。
func NewRedisSessionRepo(rdb *redis.Client) *RedisSessionRepo {
	return &RedisSessionRepo{rdb: rdb, now: time.Now}
}

// NewRedisClient は接続情報からRedisクライアントを生成する。
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

func redisSessionKey(id string) string {
	return redisSessionPrefix + id
}

func (r *RedisSessionRepo) ttl(session *model.Session) (time.Duration, error) {
	ttl := session.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return 0, fmt.Errorf("session already expired: %s", session.ID)
	}
	return ttl, nil
}

// Create はセッションを作成する。同じIDのキーが存在する場合はエラーを返す。
func (r *RedisSessionRepo) Create(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	ttl, err := r.ttl(session)
	if err != nil {
		return err
	}
	ok, err := r.rdb.SetNX(ctx, redisSessionKey(session.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	if !ok {
		return fmt.Errorf("session already exists: %s", session.ID)
	}
	return nil
}

// FindByID は指定IDのセッションを取得する。キーが存在しない場合はnilを返す。
func (r *RedisSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	data, err := r.rdb.Get(ctx, redisSessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	session := &model.Session{}
	if err := json.Unmarshal(data, session); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	if session.Expired(r.now()) {
		return nil, nil
	}
	return session, nil
}

// Update はセッションを上書きする。キーが存在しない場合はErrSessionNotFoundを返す。
func (r *RedisSessionRepo) Update(ctx context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	ttl, err := r.ttl(session)
	if err != nil {
		return err
	}
	ok, err := r.rdb.SetXX(ctx, redisSessionKey(session.ID), data, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if !ok {
		return ErrSessionNotFound
	}
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *RedisSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, redisSessionKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpired はTTLでRedisが自動削除するため常に0件を返す。
func (r *RedisSessionRepo) DeleteExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

// Ping はRedisへの疎通を確認する。
func (r *RedisSessionRepo) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// compile-time interface check
var _ SessionRepository = (*RedisSessionRepo)(nil)
