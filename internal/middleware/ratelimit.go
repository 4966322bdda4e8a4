package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/estate/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // 画面取得全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // 画面取得全般のバーストサイズ
	SubmitRate      rate.Limit    // フォーム送信・お気に入り登録のレート（req/sec）。10/60
	SubmitBurst     int           // フォーム送信・お気に入り登録のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 画面取得 120 req/min/session、送信系 10 req/min/session
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0),
		GeneralBurst:    120,
		SubmitRate:      rate.Limit(10.0 / 60.0),
		SubmitBurst:     10,
		CleanupInterval: 5 * time.Minute,
	}
}

// RateLimiterConfigFromPerMinute は1分あたりの上限から設定を生成する。
func RateLimiterConfigFromPerMinute(general, submit int) RateLimiterConfig {
	c := DefaultRateLimiterConfig()
	if general > 0 {
		c.GeneralRate = rate.Limit(float64(general) / 60.0)
		c.GeneralBurst = general
	}
	if submit > 0 {
		c.SubmitRate = rate.Limit(float64(submit) / 60.0)
		c.SubmitBurst = submit
	}
	return c
}

// sessionLimiter はセッションごとのレートリミッターとアクセス時刻を保持する。
type sessionLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// limiterSet は1種類のレート制限をセッションごとに管理する。
type limiterSet struct {
	name  string
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*sessionLimiter
}

func newLimiterSet(name string, limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{name: name, limit: limit, burst: burst, limiters: make(map[string]*sessionLimiter)}
}

func (s *limiterSet) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl, ok := s.limiters[key]; ok {
		sl.lastAccess = now
		return sl.limiter
	}
	l := rate.NewLimiter(s.limit, s.burst)
	s.limiters[key] = &sessionLimiter{limiter: l, lastAccess: now}
	return l
}

func (s *limiterSet) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

func (s *limiterSet) sweep(now time.Time, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, sl := range s.limiters {
		if now.Sub(sl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

// middleware はセッションIDをキーにレート制限するミドルウェアを返す。
// SessionMiddlewareの後に配置する。
func (s *limiterSet) middleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session, err := SessionFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, r, http.StatusUnauthorized, model.NewSessionNotFoundError())
				return
			}

			if !s.get(session.ID, time.Now()).Allow() {
				writeRateLimitResponse(w, r, s.limit)
				slog.Warn("rate limit exceeded",
					slog.String("session_id", session.ID),
					slog.String("limit_type", s.name),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter はセッションごとのレート制限を管理する。
// 画面取得全般と送信系の2種類を提供する。
type RateLimiter struct {
	config  RateLimiterConfig
	general *limiterSet
	submit  *limiterSet

	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		general: newLimiterSet("general", config.GeneralRate, config.GeneralBurst),
		submit:  newLimiterSet("submit", config.SubmitRate, config.SubmitBurst),
		stopCh:  make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware は画面取得全般のレート制限ミドルウェアを返す。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return rl.general.middleware()
}

// SubmitMiddleware はフォーム送信・お気に入り登録のレート制限ミドルウェアを返す。
// 画面取得全般のレート制限とは独立に動作する。
func (rl *RateLimiter) SubmitMiddleware() func(next http.Handler) http.Handler {
	return rl.submit.middleware()
}

// GeneralLimiterCount は画面取得全般リミッターのエントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.count()
}

// SubmitLimiterCount は送信系リミッターのエントリ数を返す。
func (rl *RateLimiter) SubmitLimiterCount() int {
	return rl.submit.count()
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup(time.Now())
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup(now time.Time) {
	ttl := rl.config.CleanupInterval * 2
	rl.general.sweep(now, ttl)
	rl.submit.sweep(now, ttl)
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r *http.Request, limit rate.Limit) {
	retryAfterSec := int(math.Ceil(1.0 / float64(limit)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, r, http.StatusTooManyRequests, &model.APIError{
		Code:     "RATE_LIMIT_EXCEEDED",
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
