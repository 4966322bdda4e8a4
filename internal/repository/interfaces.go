// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/estate/internal/model"
)

// ErrSessionNotFound は更新対象のセッションが存在しない場合に返される。
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository はセッションデータの永続化インターフェース。
// 実装はメモリ・PostgreSQL・Redisの3種類。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。存在しないか期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// Update はセッションの内容を上書きする。存在しない場合はErrSessionNotFoundを返す。
	Update(ctx context.Context, session *model.Session) error
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired はnow時点で期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
