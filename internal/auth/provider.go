// Package auth はログイン状態の保持とセッション管理を提供する。
// Providerは画面ごとに明示的に受け渡す認証コンテキストで、グローバル状態を持たない。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/hitoshi/estate/internal/estateapi"
	"github.com/hitoshi/estate/internal/model"
)

// Identity はProviderが保持するログイン中のユーザー情報。
type Identity struct {
	Authenticated bool   `json:"is_authenticated"`
	UserID        int64  `json:"user_id,omitempty"`
	Username      string `json:"username,omitempty"`
}

// Provider は1セッション分の認証状態と、そのセッションに紐づくAPIクライアントを保持する。
// Login で初期化され、Logout で破棄される。
type Provider struct {
	client *estateapi.Client
	logger *slog.Logger

	mu       sync.RWMutex
	identity Identity
}

// NewProvider は未認証状態のProviderを生成する。
func NewProvider(client *estateapi.Client, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{client: client, logger: logger}
}

// Client はこのセッションのCookieとCSRFトークンを持つAPIクライアントを返す。
func (p *Provider) Client() *estateapi.Client {
	return p.client
}

// Current は現在の認証状態を返す。
func (p *Provider) Current() Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.identity
}

// IsAuthenticated はログイン済みかどうかを返す。
func (p *Provider) IsAuthenticated() bool {
	return p.Current().Authenticated
}

// restore は保存済みの認証状態を復元する。
func (p *Provider) restore(id Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id.Authenticated && id.UserID == 0 {
		// ユーザーIDを解決できない状態は認証済みとして扱わない
		id = Identity{}
	}
	p.identity = id
}

// Login はバックエンドにログインし、ログインユーザーを解決する。
// 手順: CSRFトークン取得 → 資格情報送信 → /api/user/ でユーザーID解決。
func (p *Provider) Login(ctx context.Context, username, password string) (*model.User, error) {
	username = strings.TrimSpace(username)
	fields := map[string]string{}
	if username == "" {
		fields["username"] = "Username is required"
	}
	if password == "" {
		fields["password"] = "Password is required"
	}
	if len(fields) > 0 {
		return nil, model.NewValidationError(fields)
	}

	if _, err := p.client.CSRFToken(ctx); err != nil {
		return nil, fmt.Errorf("failed to fetch csrf token: %w", err)
	}

	if err := p.client.Login(ctx, username, password); err != nil {
		if code := estateapi.StatusCode(err); code == http.StatusBadRequest || code == http.StatusUnauthorized || code == http.StatusForbidden {
			p.logger.Info("ログインに失敗しました",
				slog.String("username", username),
				slog.Int("http_status", code),
			)
			return nil, model.NewLoginFailedError()
		}
		return nil, fmt.Errorf("failed to login: %w", err)
	}

	user, err := p.client.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve logged-in user: %w", err)
	}
	if user.ID == 0 {
		return nil, model.NewLoginFailedError()
	}

	p.mu.Lock()
	p.identity = Identity{Authenticated: true, UserID: user.ID, Username: user.Username}
	p.mu.Unlock()

	p.logger.Info("user logged in",
		slog.Int64("user_id", user.ID),
		slog.String("username", user.Username),
	)
	return user, nil
}

// Logout はバックエンドからログアウトし、認証状態・CSRFトークン・Cookieを破棄する。
// リモート呼び出しが失敗してもローカル状態は必ず破棄し、エラーは返り値で通知する。
func (p *Provider) Logout(ctx context.Context) error {
	var remoteErr error
	if p.IsAuthenticated() {
		if _, err := p.client.CSRFToken(ctx); err != nil {
			remoteErr = fmt.Errorf("failed to fetch csrf token: %w", err)
		} else if err := p.client.Logout(ctx); err != nil {
			remoteErr = fmt.Errorf("failed to logout: %w", err)
		}
	}

	prev := p.Current()
	p.mu.Lock()
	p.identity = Identity{}
	p.mu.Unlock()
	p.client.SetCSRFToken("")
	if err := p.client.ResetCookies(); err != nil {
		remoteErr = errors.Join(remoteErr, err)
	}

	if remoteErr != nil {
		p.logger.Warn("バックエンドのログアウトに失敗しました。ローカル状態は破棄済み",
			slog.Int64("user_id", prev.UserID),
			slog.String("error", remoteErr.Error()),
		)
	} else {
		p.logger.Info("user logged out", slog.Int64("user_id", prev.UserID))
	}
	return remoteErr
}

// User はバックエンドから最新のユーザープロフィールを取得する。
// 未認証の場合はLOGIN_REQUIREDエラーを返す。
func (p *Provider) User(ctx context.Context) (*model.User, error) {
	if !p.IsAuthenticated() {
		return nil, model.NewLoginRequiredError()
	}
	return p.client.CurrentUser(ctx)
}

// UserID はログイン中のユーザーIDを返す。未認証の場合はLOGIN_REQUIREDエラーを返す。
func (p *Provider) UserID() (int64, error) {
	id := p.Current()
	if !id.Authenticated {
		return 0, model.NewLoginRequiredError()
	}
	return id.UserID, nil
}
