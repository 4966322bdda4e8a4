package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hitoshi/estate/internal/model"
)

// MemorySessionRepo はプロセス内メモリにセッションを保持するリポジトリ。
// 単一インスタンス構成と開発用。保存時にJSONへ変換し、呼び出し側との共有を避ける。
type MemorySessionRepo struct {
	mu       sync.RWMutex
	sessions map[string][]byte
	expires  map[string]time.Time
	now      func() time.Time
}

// NewMemorySessionRepo はMemorySessionRepoを生成する。
func NewMemorySessionRepo() *MemorySessionRepo {
	return &MemorySessionRepo{
		sessions: make(map[string][]byte),
		expires:  make(map[string]time.Time),
		now:      time.Now,
	}
}

// Create はセッションを作成する。
func (r *MemorySessionRepo) Create(_ context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; ok {
		return fmt.Errorf("session already exists: %s", session.ID)
	}
	r.sessions[session.ID] = data
	r.expires[session.ID] = session.ExpiresAt
	return nil
}

// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
func (r *MemorySessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.mu.RLock()
	data, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, nil
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

// Update はセッションを上書きする。
func (r *MemorySessionRepo) Update(_ context.Context, session *model.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; !ok {
		return ErrSessionNotFound
	}
	r.sessions[session.ID] = data
	r.expires[session.ID] = session.ExpiresAt
	return nil
}

// DeleteByID は指定IDのセッションを削除する。
func (r *MemorySessionRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	delete(r.expires, id)
	return nil
}

// DeleteExpired は期限切れセッションを削除する。
func (r *MemorySessionRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, exp := range r.expires {
		if !exp.IsZero() && !now.Before(exp) {
			delete(r.sessions, id)
			delete(r.expires, id)
			n++
		}
	}
	return n, nil
}

// compile-time interface check
var _ SessionRepository = (*MemorySessionRepo)(nil)
