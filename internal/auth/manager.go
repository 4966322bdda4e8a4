package auth

import (
	"fmt"
	"log/slog"

	"github.com/hitoshi/estate/internal/estateapi"
	"github.com/hitoshi/estate/internal/model"
)

// Manager は保存済みセッションからProviderを組み立て、状態をセッションへ書き戻す。
type Manager struct {
	opts   estateapi.Options
	logger *slog.Logger
}

// NewManager はManagerを生成する。optsは全セッションのAPIクライアントに共通の設定。
func NewManager(opts estateapi.Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logger
	}
	return &Manager{opts: opts, logger: logger}
}

// FromSession はセッションのCookie・CSRFトークン・認証状態を引き継いだProviderを生成する。
func (m *Manager) FromSession(s *model.Session) (*Provider, error) {
	client, err := estateapi.New(m.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}
	client.SetCookies(s.Cookies)
	client.SetCSRFToken(s.CSRFToken)

	p := NewProvider(client, m.logger)
	p.restore(Identity{
		Authenticated: s.Authenticated,
		UserID:        s.UserID,
		Username:      s.Username,
	})
	return p, nil
}

// Export はProviderの状態をセッションに書き戻す。
// 未認証になった場合はお気に入りのローカル状態も破棄する。
func (m *Manager) Export(p *Provider, s *model.Session) {
	id := p.Current()
	s.Authenticated = id.Authenticated
	s.UserID = id.UserID
	s.Username = id.Username
	s.CSRFToken = p.client.CurrentCSRFToken()
	s.Cookies = p.client.Cookies()
	if !id.Authenticated {
		s.Saved = nil
	}
}
