package auth

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/estate/internal/estateapi"
	"github.com/hitoshi/estate/internal/model"
	"github.com/hitoshi/estate/internal/repository"
)

// --- フェイクバックエンド ---

type fakeBackend struct {
	loginStatus  int
	logoutStatus int
	userID       int64
	logoutCalls  atomic.Int32
	gotCSRF      atomic.Value
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{loginStatus: http.StatusOK, logoutStatus: http.StatusOK, userID: 3}
}

func (b *fakeBackend) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/api/get-csrf-token/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"csrf_token":"tok-login"}`))
	})
	r.Post("/api/login/", func(w http.ResponseWriter, r *http.Request) {
		b.gotCSRF.Store(r.Header.Get("X-CSRFToken"))
		if b.loginStatus != http.StatusOK {
			w.WriteHeader(b.loginStatus)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "backend-sess", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/api/logout/", func(w http.ResponseWriter, r *http.Request) {
		b.logoutCalls.Add(1)
		w.WriteHeader(b.logoutStatus)
	})
	r.Get("/api/user/", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("sessionid"); err != nil {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`{"id":` + estateapi.FormatID(b.userID) + `,"username":"ada","email":"ada@example.com"}`))
	})
	return r
}

func newTestLogger() *slog.Logger {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil))
}

func newTestProvider(t *testing.T, url string) *Provider {
	t.Helper()
	client, err := estateapi.New(estateapi.Options{BaseURL: url, Logger: newTestLogger()})
	if err != nil {
		t.Fatalf("estateapi.New がエラーを返した: %v", err)
	}
	return NewProvider(client, newTestLogger())
}

// --- Provider ---

func TestProvider_Login_ResolvesUser(t *testing.T) {
	backend := newFakeBackend()
	server := httptest.NewServer(backend.router())
	defer server.Close()

	p := newTestProvider(t, server.URL)
	if p.IsAuthenticated() {
		t.Fatal("初期状態は未認証であるべき")
	}

	user, err := p.Login(context.Background(), "ada", "secret")
	if err != nil {
		t.Fatalf("Login がエラーを返した: %v", err)
	}
	if user.ID != 3 {
		t.Errorf("user.ID = %d, want 3", user.ID)
	}
	id := p.Current()
	if !id.Authenticated || id.UserID != 3 || id.Username != "ada" {
		t.Errorf("Current() = %+v", id)
	}
	if got, _ := backend.gotCSRF.Load().(string); got != "tok-login" {
		t.Errorf("ログイン時のX-CSRFToken = %q, want tok-login", got)
	}
}

func TestProvider_Login_EmptyCredentials_ReturnsValidationError(t *testing.T) {
	p := newTestProvider(t, "http://127.0.0.1:1")

	_, err := p.Login(context.Background(), " ", "")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *model.APIError", err)
	}
	if apiErr.Code != model.ErrCodeValidation {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeValidation)
	}
	fields := apiErr.Details.(map[string]string)
	if _, ok := fields["username"]; !ok {
		t.Error("username のエラーが含まれるべき")
	}
	if _, ok := fields["password"]; !ok {
		t.Error("password のエラーが含まれるべき")
	}
}

func TestProvider_Login_Rejected_ReturnsLoginFailed(t *testing.T) {
	backend := newFakeBackend()
	backend.loginStatus = http.StatusUnauthorized
	server := httptest.NewServer(backend.router())
	defer server.Close()

	p := newTestProvider(t, server.URL)
	_, err := p.Login(context.Background(), "ada", "wrong")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeLoginFailed {
		t.Fatalf("err = %v, want LOGIN_FAILED", err)
	}
	if p.IsAuthenticated() {
		t.Error("ログイン失敗時は未認証のままであるべき")
	}
}

func TestProvider_Logout_ClearsStateEvenIfRemoteFails(t *testing.T) {
	backend := newFakeBackend()
	backend.logoutStatus = http.StatusInternalServerError
	server := httptest.NewServer(backend.router())
	defer server.Close()

	p := newTestProvider(t, server.URL)
	if _, err := p.Login(context.Background(), "ada", "secret"); err != nil {
		t.Fatalf("Login がエラーを返した: %v", err)
	}

	if err := p.Logout(context.Background()); err == nil {
		t.Error("リモートのログアウト失敗はエラーとして返されるべき")
	}
	if p.IsAuthenticated() {
		t.Error("ログアウト後は未認証であるべき")
	}
	if p.Client().CurrentCSRFToken() != "" {
		t.Error("ログアウト後はCSRFトークンが空であるべき")
	}
	if len(p.Client().Cookies()) != 0 {
		t.Error("ログアウト後はCookieが空であるべき")
	}
	if backend.logoutCalls.Load() != 1 {
		t.Errorf("logout calls = %d, want 1", backend.logoutCalls.Load())
	}
}

func TestProvider_Logout_Unauthenticated_NoRemoteCall(t *testing.T) {
	backend := newFakeBackend()
	server := httptest.NewServer(backend.router())
	defer server.Close()

	p := newTestProvider(t, server.URL)
	if err := p.Logout(context.Background()); err != nil {
		t.Fatalf("Logout がエラーを返した: %v", err)
	}
	if backend.logoutCalls.Load() != 0 {
		t.Errorf("logout calls = %d, want 0", backend.logoutCalls.Load())
	}
}

func TestProvider_UserID_Unauthenticated_ReturnsLoginRequired(t *testing.T) {
	p := newTestProvider(t, "http://127.0.0.1:1")

	_, err := p.UserID()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeLoginRequired {
		t.Fatalf("err = %v, want LOGIN_REQUIRED", err)
	}
	if _, err := p.User(context.Background()); err == nil {
		t.Error("未認証のUserはエラーになるべき")
	}
}

// --- Manager ---

func TestManager_RoundTripsSession(t *testing.T) {
	backend := newFakeBackend()
	server := httptest.NewServer(backend.router())
	defer server.Close()

	m := NewManager(estateapi.Options{BaseURL: server.URL}, newTestLogger())

	session := &model.Session{ID: "s1"}
	p, err := m.FromSession(session)
	if err != nil {
		t.Fatalf("FromSession がエラーを返した: %v", err)
	}
	if _, err := p.Login(context.Background(), "ada", "secret"); err != nil {
		t.Fatalf("Login がエラーを返した: %v", err)
	}
	m.Export(p, session)

	if !session.Authenticated || session.UserID != 3 || session.Username != "ada" {
		t.Errorf("exported session = %+v", session)
	}
	if session.CSRFToken != "tok-login" {
		t.Errorf("CSRFToken = %q, want tok-login", session.CSRFToken)
	}
	if len(session.Cookies) != 1 || session.Cookies[0].Value != "backend-sess" {
		t.Errorf("Cookies = %+v", session.Cookies)
	}

	// 次のリクエスト: 保存済みセッションから復元したProviderで同じユーザーを参照できる
	p2, err := m.FromSession(session)
	if err != nil {
		t.Fatalf("FromSession がエラーを返した: %v", err)
	}
	if !p2.IsAuthenticated() {
		t.Fatal("復元したProviderは認証済みであるべき")
	}
	user, err := p2.User(context.Background())
	if err != nil {
		t.Fatalf("User がエラーを返した: %v", err)
	}
	if user.ID != 3 {
		t.Errorf("user.ID = %d, want 3", user.ID)
	}
}

func TestManager_Export_LogoutClearsSavedBoard(t *testing.T) {
	m := NewManager(estateapi.Options{BaseURL: "http://127.0.0.1:1"}, newTestLogger())
	session := &model.Session{
		ID:            "s1",
		Authenticated: true,
		UserID:        3,
		Saved:         map[string]bool{"land:42": true},
	}
	p, err := m.FromSession(session)
	if err != nil {
		t.Fatalf("FromSession がエラーを返した: %v", err)
	}
	p.restore(Identity{})
	m.Export(p, session)

	if session.Authenticated || session.UserID != 0 {
		t.Errorf("session = %+v, want unauthenticated", session)
	}
	if session.Saved != nil {
		t.Errorf("Saved = %v, want nil", session.Saved)
	}
}

func TestManager_FromSession_AuthenticatedWithoutUserID_TreatedAsAnonymous(t *testing.T) {
	m := NewManager(estateapi.Options{BaseURL: "http://127.0.0.1:1"}, newTestLogger())
	p, err := m.FromSession(&model.Session{ID: "s1", Authenticated: true})
	if err != nil {
		t.Fatalf("FromSession がエラーを返した: %v", err)
	}
	if p.IsAuthenticated() {
		t.Error("ユーザーIDの無い認証状態は未認証として扱うべき")
	}
}

// --- Service ---

func TestService_StartFindSaveDestroy(t *testing.T) {
	repo := repository.NewMemorySessionRepo()
	svc := NewService(repo, ServiceConfig{SessionMaxAge: 3600})
	fixed := time.Now()
	svc.now = func() time.Time { return fixed }
	ctx := context.Background()

	s, err := svc.Start(ctx)
	if err != nil {
		t.Fatalf("Start がエラーを返した: %v", err)
	}
	if s.ID == "" {
		t.Fatal("セッションIDが空であってはならない")
	}
	if s.Authenticated {
		t.Error("新しいセッションは未認証であるべき")
	}
	if !s.ExpiresAt.Equal(fixed.Add(time.Hour)) {
		t.Errorf("ExpiresAt = %v, want %v", s.ExpiresAt, fixed.Add(time.Hour))
	}

	s.Authenticated = true
	s.UserID = 3
	if err := svc.Save(ctx, s); err != nil {
		t.Fatalf("Save がエラーを返した: %v", err)
	}

	found, err := svc.Find(ctx, s.ID)
	if err != nil {
		t.Fatalf("Find がエラーを返した: %v", err)
	}
	if found == nil || found.UserID != 3 {
		t.Fatalf("found = %+v, want UserID 3", found)
	}

	if err := svc.Destroy(ctx, s.ID); err != nil {
		t.Fatalf("Destroy がエラーを返した: %v", err)
	}
	if found, _ := svc.Find(ctx, s.ID); found != nil {
		t.Error("Destroy後はnilが返るべき")
	}
}

func TestService_Find_EmptyID_ReturnsNil(t *testing.T) {
	svc := NewService(repository.NewMemorySessionRepo(), ServiceConfig{SessionMaxAge: 60})

	s, err := svc.Find(context.Background(), "")
	if err != nil {
		t.Fatalf("Find がエラーを返した: %v", err)
	}
	if s != nil {
		t.Error("空IDはnilが返るべき")
	}
}

func TestService_Destroy_EmptyID_ReturnsError(t *testing.T) {
	svc := NewService(repository.NewMemorySessionRepo(), ServiceConfig{SessionMaxAge: 60})

	if err := svc.Destroy(context.Background(), ""); err == nil {
		t.Error("空IDのDestroyはエラーになるべき")
	}
}

func TestService_Save_UnknownSession_ReturnsError(t *testing.T) {
	svc := NewService(repository.NewMemorySessionRepo(), ServiceConfig{SessionMaxAge: 60})

	err := svc.Save(context.Background(), &model.Session{ID: "missing"})
	if !errors.Is(err, repository.ErrSessionNotFound) {
		t.Errorf("err = %v, want ErrSessionNotFound", err)
	}
}
