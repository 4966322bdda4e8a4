package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/estate/internal/model"
	"github.com/hitoshi/estate/internal/repository"
)

// ServiceConfig はセッションサービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service はBFFセッションの発行・取得・保存・破棄を提供する。
type Service struct {
	sessionRepo repository.SessionRepository
	config      ServiceConfig
	now         func() time.Time
}

// NewService はServiceを生成する。
func NewService(sessionRepo repository.SessionRepository, config ServiceConfig) *Service {
	return &Service{
		sessionRepo: sessionRepo,
		config:      config,
		now:         time.Now,
	}
}

// Start は未認証の新しいセッションを発行し永続化する。
func (s *Service) Start(ctx context.Context) (*model.Session, error) {
	now := s.now()
	session := &model.Session{
		ID:        uuid.NewString(),
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	slog.Debug("session started", slog.String("session_id", session.ID))
	return session, nil
}

// Find はセッションを取得する。存在しないか期限切れの場合はnilを返す。
func (s *Service) Find(ctx context.Context, sessionID string) (*model.Session, error) {
	if sessionID == "" {
		return nil, nil
	}
	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	return session, nil
}

// Save はセッションの変更を永続化する。
func (s *Service) Save(ctx context.Context, session *model.Session) error {
	if err := s.sessionRepo.Update(ctx, session); err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

// Destroy はセッションを破棄する。
func (s *Service) Destroy(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("session destroyed", slog.String("session_id", sessionID))
	return nil
}
