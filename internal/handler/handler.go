// Package handler はHTTPハンドラーを提供する。
//
// 各画面エンドポイントへのリクエストが画面のマウントに相当し、そのたびに物件APIから取得し直す。
// セッションごとのAPIクライアント（Cookie・CSRFトークン）はauth.Providerとして組み立て、
// 処理後の状態をセッションへ書き戻して永続化する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/estate/internal/auth"
	"github.com/hitoshi/estate/internal/estateapi"
	"github.com/hitoshi/estate/internal/metrics"
	"github.com/hitoshi/estate/internal/middleware"
	"github.com/hitoshi/estate/internal/model"
	"github.com/hitoshi/estate/internal/pending"
	"github.com/hitoshi/estate/internal/repository"
	"github.com/hitoshi/estate/internal/security"
)

// SessionStore はセッションの発行・保存・破棄を行う。auth.Service が実装する。
type SessionStore interface {
	middleware.SessionStore
	Save(ctx context.Context, session *model.Session) error
	Destroy(ctx context.Context, sessionID string) error
}

// ProviderFactory はセッションからProviderを組み立て、状態を書き戻す。auth.Manager が実装する。
type ProviderFactory interface {
	FromSession(s *model.Session) (*auth.Provider, error)
	Export(p *auth.Provider, s *model.Session)
}

// Deps はハンドラーが必要とする依存関係。
type Deps struct {
	Sessions      SessionStore
	Providers     ProviderFactory
	Sanitizer     security.DescriptionSanitizer
	Images        *security.ImageURLResolver
	Metrics       metrics.MetricsCollector
	Logger        *slog.Logger
	SessionConfig middleware.SessionConfig

	// SecondaryGrace は一次データの取得後に画像の取得を待つ時間。0の場合はデフォルト値。
	SecondaryGrace time.Duration
}

// Handler は画面・認証・フォームのHTTPハンドラー。
type Handler struct {
	sessions  SessionStore
	providers ProviderFactory
	sanitizer security.DescriptionSanitizer
	images    *security.ImageURLResolver
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	cookie    middleware.SessionConfig
	grace     time.Duration
}

// New はHandlerを生成する。
func New(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.NopCollector{}
	}
	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = security.NewDescriptionSanitizer()
	}
	grace := deps.SecondaryGrace
	if grace == 0 {
		grace = pending.DefaultGrace
	}
	return &Handler{
		sessions:  deps.Sessions,
		providers: deps.Providers,
		sanitizer: sanitizer,
		images:    deps.Images,
		metrics:   m,
		logger:    logger,
		cookie:    deps.SessionConfig,
		grace:     grace,
	}
}

// scope は1リクエスト分のセッションとProvider。
type scope struct {
	session  *model.Session
	provider *auth.Provider
}

// withScope はリクエストのセッションからProviderを組み立ててfnを実行し、
// 終了後にProviderの状態をセッションへ書き戻して保存する。
// 処理中にセッションが破棄された場合は書き戻さない。
// fnがエラーを返した場合もセッションは保存する（お気に入りの失敗時遷移などを保持するため）。
func (h *Handler) withScope(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, sc *scope) error) {
	session, err := middleware.SessionFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, r, http.StatusUnauthorized, model.NewSessionNotFoundError())
		return
	}
	provider, err := h.providers.FromSession(session)
	if err != nil {
		h.logger.Error("failed to build provider", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w, r)
		return
	}

	sc := &scope{session: session, provider: provider}
	fnErr := fn(r.Context(), sc)

	h.providers.Export(sc.provider, sc.session)
	if err := h.sessions.Save(r.Context(), sc.session); errors.Is(err, repository.ErrSessionNotFound) {
		// ログイン・ログアウトで破棄されたセッションは復活させない
		h.logger.Info("session ended during request", slog.String("session_id", sc.session.ID))
	} else if err != nil {
		h.logger.Error("failed to save session",
			slog.String("session_id", sc.session.ID),
			slog.String("error", err.Error()),
		)
	}

	if fnErr != nil {
		h.handleServiceError(w, r, fnErr)
	}
}

// handleServiceError はサービス層のエラーを統一フォーマットのレスポンスに変換する。
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, r, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	var httpErr *estateapi.HTTPError
	if errors.As(err, &httpErr) {
		h.logger.Warn("upstream error", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, r, http.StatusBadGateway, model.NewUpstreamError(httpErr.Error()))
		return
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		h.logger.Warn("upstream unreachable", slog.String("error", err.Error()))
		middleware.WriteErrorResponse(w, r, http.StatusBadGateway, model.NewUpstreamError(urlErr.Op+" "+urlErr.URL))
		return
	}

	h.logger.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w, r)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation, model.ErrCodeInvalidRequest, model.ErrCodeInvalidKind, model.ErrCodeSearchDisabled:
		return http.StatusBadRequest
	case model.ErrCodeLoginRequired, model.ErrCodeLoginFailed, model.ErrCodeSessionNotFound:
		return http.StatusUnauthorized
	case model.ErrCodeAlreadySaved:
		return http.StatusConflict
	case model.ErrCodeSubmissionFailed:
		return http.StatusUnprocessableEntity
	case model.ErrCodeUpstream:
		return http.StatusBadGateway
	case model.ErrCodeListingNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeInvalidRequest(w http.ResponseWriter, r *http.Request, reason string) {
	middleware.WriteErrorResponse(w, r, http.StatusBadRequest, model.NewInvalidRequestError(reason))
}
