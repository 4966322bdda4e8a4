package favorite

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/estate/internal/metrics"
	"github.com/hitoshi/estate/internal/model"
)

// API はお気に入り登録で使用する物件APIの操作。*estateapi.Client が実装する。
type API interface {
	CSRFToken(ctx context.Context) (string, error)
	SaveProperty(ctx context.Context, buildingID, userID int64) error
	SaveLand(ctx context.Context, landID, userID int64) error
	ListSavedLand(ctx context.Context) ([]model.SavedListing, error)
}

// Service はBoardの初期化と登録操作を行う。
type Service struct {
	api     API
	logger  *slog.Logger
	metrics metrics.MetricsCollector
}

// NewService はServiceを生成する。apiはセッションごとのクライアント。
func NewService(api API, logger *slog.Logger, m metrics.MetricsCollector) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NopCollector{}
	}
	return &Service{api: api, logger: logger, metrics: m}
}

// Mount は一覧画面を開いたときにBoardを初期化する。
// 指定カテゴリのトグルをリセットし、ログイン中なら土地はサーバーの登録一覧で登録済みにする。
// 建物には登録一覧を取得するエンドポイントがないため未登録のまま始まる。
// 登録一覧の取得失敗はログに記録して未登録として扱う。
func (s *Service) Mount(ctx context.Context, b *Board, kind model.Kind, userID int64, authenticated bool) {
	b.Reset(kind)
	if kind != model.KindLand || !authenticated {
		return
	}

	saved, err := s.api.ListSavedLand(ctx)
	if err != nil {
		s.metrics.RecordFetchAbsorbed("favorites")
		s.logger.Error("データ取得に失敗しました",
			slog.String("screen", "favorites"),
			slog.String("endpoint", "/api/saved-land/"),
			slog.String("error", err.Error()),
		)
		return
	}
	for _, sv := range saved {
		if sv.UserID == userID {
			b.mark(model.KindLand, sv.ListingID)
		}
	}
}

// Save は物件をお気に入りに登録する。
// 登録済みの場合はリクエストを送らない。未登録の場合はCSRFトークンを取得してから1回だけ登録する。
func (s *Service) Save(ctx context.Context, b *Board, kind model.Kind, listingID, userID int64) error {
	if !kind.Valid() {
		return model.NewInvalidKindError(string(kind))
	}

	err := b.Toggle(kind, listingID).Save(ctx, func(ctx context.Context) error {
		if _, err := s.api.CSRFToken(ctx); err != nil {
			return err
		}
		if kind == model.KindLand {
			return s.api.SaveLand(ctx, listingID, userID)
		}
		return s.api.SaveProperty(ctx, listingID, userID)
	})

	var apiErr *model.APIError
	switch {
	case err == nil:
		s.metrics.RecordFavoriteSave(string(kind), "created")
	case errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeAlreadySaved:
		s.metrics.RecordFavoriteSave(string(kind), "already_saved")
	default:
		s.metrics.RecordFavoriteSave(string(kind), "failed")
		s.logger.Error("お気に入り登録に失敗しました",
			slog.String("kind", string(kind)),
			slog.Int64("listing_id", listingID),
			slog.String("error", err.Error()),
		)
	}
	return err
}
