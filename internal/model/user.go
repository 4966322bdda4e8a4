package model

import "time"

// User はバックエンドの /api/user/ が返すログインユーザーのプロフィールを表す。
type User struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	ProfilePics string `json:"profile_pics"`
	Country     string `json:"country"`
	About       string `json:"about"`
}

// UpstreamCookie はバックエンドが発行したCookieの保存形式。
type UpstreamCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Path   string `json:"path,omitempty"`
	Domain string `json:"domain,omitempty"`
}

// Session は画面クライアント1台分のセッションを表す。
// 認証状態とバックエンドのCookie、お気に入りのローカル状態を保持する。
type Session struct {
	ID            string           `json:"id"`
	Authenticated bool             `json:"authenticated"`
	UserID        int64            `json:"user_id,omitempty"`
	Username      string           `json:"username,omitempty"`
	CSRFToken     string           `json:"csrf_token,omitempty"`
	Cookies       []UpstreamCookie `json:"cookies,omitempty"`
	Saved         map[string]bool  `json:"saved,omitempty"`
	ExpiresAt     time.Time        `json:"expires_at"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Expired はセッションが期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
