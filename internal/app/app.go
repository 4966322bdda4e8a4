package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/estate/internal/auth"
	"github.com/hitoshi/estate/internal/config"
	"github.com/hitoshi/estate/internal/database"
	"github.com/hitoshi/estate/internal/estateapi"
	"github.com/hitoshi/estate/internal/handler"
	"github.com/hitoshi/estate/internal/logger"
	"github.com/hitoshi/estate/internal/metrics"
	"github.com/hitoshi/estate/internal/middleware"
	"github.com/hitoshi/estate/internal/repository"
	"github.com/hitoshi/estate/internal/security"
	"github.com/hitoshi/estate/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数でConfigを読み込み、LOG_LEVELを反映する。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, cfg.LogLevel)
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("api_base_url", cfg.APIBaseURL),
		slog.String("session_store", cfg.SessionStore),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandCleanup:
		return runCleanup(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// sessionStore は設定に応じて選択したセッションストア。
type sessionStore struct {
	repo   repository.SessionRepository
	health handler.HealthChecker
	close  func() error
}

// pingFunc は関数をhandler.HealthCheckerとして扱うアダプタ。
type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// openSessionStore はSESSION_STOREに応じてセッションストアを開き、疎通を確認する。
func openSessionStore(ctx context.Context, cfg *config.Config) (*sessionStore, error) {
	switch cfg.SessionStore {
	case config.SessionStorePostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL, database.DefaultPoolConfig())
		if err != nil {
			return nil, err
		}
		slog.Info("database connection established")
		return &sessionStore{
			repo:   repository.NewPostgresSessionRepo(db),
			health: db,
			close:  db.Close,
		}, nil

	case config.SessionStoreRedis:
		rdb := repository.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		repo := repository.NewRedisSessionRepo(rdb)
		if err := repo.Ping(ctx); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("redis connection established", slog.String("addr", cfg.RedisAddr))
		return &sessionStore{
			repo:   repo,
			health: pingFunc(repo.Ping),
			close:  rdb.Close,
		}, nil

	default:
		return &sessionStore{
			repo:  repository.NewMemorySessionRepo(),
			close: func() error { return nil },
		}, nil
	}
}

// apiOptions は全セッションのAPIクライアントに共通の設定を組み立てる。
// 接続プールは全セッションで共有する。
func apiOptions(cfg *config.Config, recorder estateapi.Recorder) estateapi.Options {
	return estateapi.Options{
		BaseURL:             cfg.APIBaseURL,
		SearchBuildingsPath: cfg.SearchBuildingsPath,
		SearchLandPath:      cfg.SearchLandPath,
		Timeout:             cfg.UpstreamTimeout,
		Transport:           http.DefaultTransport.(*http.Transport).Clone(),
		Logger:              slog.Default(),
		Recorder:            recorder,
	}
}

// newRouterDeps は全依存関係をワイヤリングする。
func newRouterDeps(cfg *config.Config, store *sessionStore, reg *prometheus.Registry, limiter *middleware.RateLimiter) (*handler.RouterDeps, error) {
	collector := metrics.NewCollector(reg)

	opts := apiOptions(cfg, collector)
	// ベースURLの検証のため、起動時に1度クライアントを生成する
	if _, err := estateapi.New(opts); err != nil {
		return nil, fmt.Errorf("invalid ESTATE_API_BASE_URL: %w", err)
	}

	sessionCfg := middleware.SessionConfig{
		CookieSecure: cfg.CookieSecure,
		CookieDomain: cfg.CookieDomain,
		MaxAge:       cfg.SessionMaxAge,
	}

	return &handler.RouterDeps{
		Handler: handler.Deps{
			Sessions:       auth.NewService(store.repo, auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge}),
			Providers:      auth.NewManager(opts, slog.Default()),
			Sanitizer:      security.NewDescriptionSanitizer(),
			Images:         security.NewImageURLResolver(cfg.APIBaseURL),
			Metrics:        collector,
			Logger:         slog.Default(),
			SessionConfig:  sessionCfg,
			SecondaryGrace: cfg.SecondaryFetchGrace,
		},
		HealthChecker:     store.health,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:     limiter,
		LoginRatePerMin: cfg.RateLimitLogin,
		Gatherer:        reg,
	}, nil
}

// runServe は画面APIサーバーモードで起動する。
// セッションストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// 期限切れセッションのクリーンアップはバックグラウンドで定期実行する。
// ctxがキャンセルされる（SIGINT/SIGTERM）とグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. セッションストア
	store, err := openSessionStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer store.close()

	// 2. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// 3. ルーターの構築
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfigFromPerMinute(cfg.RateLimitGeneral, 0))
	defer limiter.Stop()

	deps, err := newRouterDeps(cfg, store, reg, limiter)
	if err != nil {
		return err
	}
	router := handler.NewRouter(deps)

	// 4. セッションのクリーンアップ
	go cleanup.NewCleanupJob(store.repo, slog.Default()).Start(ctx)

	// 5. HTTPサーバーの起動
	// 物件APIのタイムアウトは無制限がデフォルトのため、WriteTimeoutは設定しない
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runCleanup は期限切れセッションの削除を1回実行する。
// cronなど外部スケジューラからの実行用。
func runCleanup(ctx context.Context, cfg *config.Config) error {
	store, err := openSessionStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}
	defer store.close()

	return cleanup.NewCleanupJob(store.repo, slog.Default()).Run(ctx)
}

// runMigrate はセッションテーブルのマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	state, err := database.MigrateUp(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(state.Version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}

var _ handler.HealthChecker = (*sql.DB)(nil)
