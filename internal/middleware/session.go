// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/estate/internal/model"
)

// SessionCookieName はBFFセッションIDを保持するCookieの名前。
const SessionCookieName = "estate_session"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionContextKey はリクエストコンテキストにセッションを格納するためのキー。
var sessionContextKey = contextKey("session")

// SessionStore はセッションの検索と発行に必要なインターフェース。
// auth.Serviceの部分集合として定義する。
type SessionStore interface {
	Find(ctx context.Context, id string) (*model.Session, error)
	Start(ctx context.Context) (*model.Session, error)
}

// SessionConfig はセッションCookieの設定。
type SessionConfig struct {
	CookieSecure bool
	CookieDomain string
	MaxAge       int // 秒
}

// NewSessionMiddleware はHTTP Only Cookieからセッションを読み取るミドルウェアを返す。
// セッションが無いか期限切れの場合は未認証のセッションを発行してCookieを設定する。
// 画面はログイン無しでも閲覧できるため、未認証でもリクエストは拒否しない。
func NewSessionMiddleware(store SessionStore, config SessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var session *model.Session
			if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
				session, err = store.Find(r.Context(), cookie.Value)
				if err != nil {
					slog.Error("failed to find session",
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w, r)
					return
				}
			}

			if session == nil {
				var err error
				session, err = store.Start(r.Context())
				if err != nil {
					slog.Error("failed to start session",
						slog.String("error", err.Error()),
					)
					WriteInternalServerError(w, r)
					return
				}
				SetSessionCookie(w, session.ID, config)
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), session)))
		})
	}
}

// SetSessionCookie はセッションCookieを設定する。
func SetSessionCookie(w http.ResponseWriter, sessionID string, config SessionConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   config.MaxAge,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionFromContext はリクエストコンテキストからセッションを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func SessionFromContext(ctx context.Context) (*model.Session, error) {
	session, ok := ctx.Value(sessionContextKey).(*model.Session)
	if !ok || session == nil {
		return nil, fmt.Errorf("session not found in context")
	}
	return session, nil
}

// ContextWithSession はコンテキストにセッションを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, session *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, session)
}
