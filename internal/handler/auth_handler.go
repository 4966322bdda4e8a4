package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/hitoshi/estate/internal/auth"
	"github.com/hitoshi/estate/internal/middleware"
	"github.com/hitoshi/estate/internal/model"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	auth.Identity
	User *model.User `json:"user"`
}

// Login はバックエンドにログインする。
// POST /auth/login
// セッション固定を避けるため、成功時はセッションIDを発行し直す。
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w, r, "JSONを解析できません")
		return
	}

	h.withScope(w, r, func(ctx context.Context, sc *scope) error {
		user, err := sc.provider.Login(ctx, req.Username, req.Password)
		if err != nil {
			return err
		}

		if rotated, err := h.rotate(ctx, sc.session); err != nil {
			h.logger.Warn("failed to rotate session", slog.String("error", err.Error()))
		} else {
			sc.session = rotated
			middleware.SetSessionCookie(w, rotated.ID, h.cookie)
		}

		render.JSON(w, r, loginResponse{Identity: sc.provider.Current(), User: user})
		return nil
	})
}

// rotate は新しいセッションを発行して旧セッションを破棄する。
// 状態は呼び出し元がExportで書き戻す。
func (h *Handler) rotate(ctx context.Context, old *model.Session) (*model.Session, error) {
	next, err := h.sessions.Start(ctx)
	if err != nil {
		return nil, err
	}
	next.Saved = old.Saved
	if err := h.sessions.Destroy(ctx, old.ID); err != nil {
		h.logger.Warn("failed to destroy old session",
			slog.String("session_id", old.ID),
			slog.String("error", err.Error()),
		)
	}
	return next, nil
}

// Logout はバックエンドからログアウトし、ローカルの認証状態を破棄する。
// POST /auth/logout
// バックエンドの呼び出しに失敗してもローカル状態は破棄し、200を返す。
// 旧セッションは破棄して発行し直すため、ログアウト前に始まった画面リクエストが
// 完了時に認証状態を書き戻すことはない。
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.withScope(w, r, func(ctx context.Context, sc *scope) error {
		_ = sc.provider.Logout(ctx)

		if rotated, err := h.rotate(ctx, sc.session); err != nil {
			h.logger.Warn("failed to rotate session", slog.String("error", err.Error()))
		} else {
			sc.session = rotated
			middleware.SetSessionCookie(w, rotated.ID, h.cookie)
		}

		render.JSON(w, r, sc.provider.Current())
		return nil
	})
}

// Me は現在の認証状態を返す。バックエンドには問い合わせない。
// GET /auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	h.withScope(w, r, func(ctx context.Context, sc *scope) error {
		render.JSON(w, r, sc.provider.Current())
		return nil
	})
}
