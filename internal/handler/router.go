package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/estate/internal/metrics"
	"github.com/hitoshi/estate/internal/middleware"
)

// HealthChecker はセッションストアの疎通を確認する。*sql.DB が実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Handler Deps

	// ミドルウェア依存
	HealthChecker     HealthChecker // nilの場合は常に正常
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	LoginRatePerMin   int

	// メトリクス
	Gatherer prometheus.Gatherer
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Session → Logging → RateLimit(General) → CSRF
//
// /health と /metrics はセッションを発行しないようチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()
	h := New(deps.Handler)

	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(h.logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	// --- セッション不要のルート ---
	r.Get("/health", healthHandler(deps.HealthChecker, h.logger))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	loginRate := deps.LoginRatePerMin
	if loginRate <= 0 {
		loginRate = 10
	}

	// --- セッションが必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.Handler.Sessions, deps.Handler.SessionConfig))
		r.Use(middleware.NewLoggingMiddleware(h.logger))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// トークン発行はCSRF検証の外に置き、Cookieの二重発行を避ける
		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

			r.Route("/auth", func(r chi.Router) {
				// ログイン試行はIP単位でも制限する
				r.With(httprate.LimitByIP(loginRate, time.Minute)).Post("/login", h.Login)
				r.Post("/logout", h.Logout)
				r.Get("/me", h.Me)
			})

			r.Route("/screens", func(r chi.Router) {
				r.Route("/buildings", func(r chi.Router) {
					r.Get("/", h.Buildings)
					r.Get("/{id}", h.BuildingDetail)
					r.With(deps.RateLimiter.SubmitMiddleware()).Post("/{id}/save", h.SaveBuilding)
				})
				r.Route("/land", func(r chi.Router) {
					r.Get("/", h.Land)
					r.Get("/{id}", h.LandDetail)
					r.With(deps.RateLimiter.SubmitMiddleware()).Post("/{id}/save", h.SaveLand)
				})
				r.Get("/search", h.Search)
				r.Get("/saved-land", h.SavedLand)
				r.Get("/account", h.Account)
				r.Get("/categories", h.Categories)
				r.With(deps.RateLimiter.SubmitMiddleware()).Post("/categories", h.CreateCategory)
			})

			r.Route("/forms", func(r chi.Router) {
				r.Get("/building/choices", h.BuildingChoices)

				r.Group(func(r chi.Router) {
					r.Use(deps.RateLimiter.SubmitMiddleware())
					r.Post("/building", h.SubmitBuilding)
					r.Post("/land", h.SubmitLand)
					r.Post("/register", h.SubmitRegistration)
				})
			})
		})
	})

	return r
}

type healthResponse struct {
	Status string `json:"status"`
}

func healthHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				logger.Error("health check failed", slog.String("error", err.Error()))
				render.Status(r, http.StatusServiceUnavailable)
				render.JSON(w, r, healthResponse{Status: "unavailable"})
				return
			}
		}
		render.JSON(w, r, healthResponse{Status: "ok"})
	}
}
