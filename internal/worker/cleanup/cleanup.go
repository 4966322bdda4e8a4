// Package cleanup は期限切れセッションの削除ジョブを提供する。
// セッションストアに残った期限切れのBFFセッションを定期的に削除する。
// RedisはTTLで自動削除されるため、削除件数は常に0になる。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionSweeper は期限切れセッションを削除する。repository.SessionRepository が実装する。
type SessionSweeper interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CleanupJob は期限切れセッションの削除ジョブ。冪等に実行できる。
type CleanupJob struct {
	sessions SessionSweeper
	logger   *slog.Logger
	now      func() time.Time
	Interval time.Duration // 定期実行の間隔（デフォルト: 1時間）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(sessions SessionSweeper, logger *slog.Logger) *CleanupJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupJob{
		sessions: sessions,
		logger:   logger,
		now:      time.Now,
		Interval: time.Hour,
	}
}

// Run は現在時刻で期限切れのセッションを削除する。
// 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.sessions.DeleteExpired(ctx, j.now())
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回実行し、以降Intervalごとに実行する。ctxがキャンセルされるまでブロックする。
// 個々の実行の失敗はログに記録して継続する。
func (j *CleanupJob) Start(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
