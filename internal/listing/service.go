// Package listing は物件一覧画面のビューモデルを提供する。
// 画面を開くたびに一覧と画像を取得し直し、外部キーで結合して描画用の項目列を作る。
package listing

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/estate/internal/estateapi"
	"github.com/hitoshi/estate/internal/metrics"
	"github.com/hitoshi/estate/internal/model"
	"github.com/hitoshi/estate/internal/pending"
)

// API は一覧画面が使用する物件APIの操作。*estateapi.Client が実装する。
type API interface {
	ListBuildings(ctx context.Context) ([]model.Building, error)
	ListBuildingImages(ctx context.Context) ([]model.ListingImage, error)
	ListLand(ctx context.Context) ([]model.Land, error)
	ListLandImages(ctx context.Context, landID string) ([]model.ListingImage, error)
	SearchBuildings(ctx context.Context, q estateapi.SearchQuery) ([]model.Building, error)
	SearchLand(ctx context.Context, q estateapi.SearchQuery) ([]model.Land, error)
	ListSavedLand(ctx context.Context) ([]model.SavedListing, error)
	GetLand(ctx context.Context, id string) (*model.Land, error)
}

// Item は一覧の1行分の描画データ。
type Item struct {
	Kind      model.Kind `json:"kind"`
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Price     string     `json:"price"`
	Currency  string     `json:"currency,omitempty"`
	Country   string     `json:"country,omitempty"`
	Cover     string     `json:"cover,omitempty"`
	Images    []string   `json:"images"`
	OwnerName string     `json:"owner_name,omitempty"`
	Saved     bool       `json:"saved"`
}

// Page は一覧画面1回分の描画結果。再読み込みのたびに丸ごと置き換える。
type Page struct {
	Kind  model.Kind `json:"kind"`
	Items []Item     `json:"items"`
	// LoggedInAs はヘッダーに表示するログインユーザー名（未認証時は空）。
	LoggedInAs string `json:"logged_in_as,omitempty"`
	// LoginRequired はログインを促す表示にする場合にtrue。
	LoginRequired bool `json:"login_required,omitempty"`
}

// ImageResolver は画像パスを表示可能なURLに変換する。
// *security.ImageURLResolver が実装する。
type ImageResolver interface {
	Resolve(raw string) string
	ResolveAll(raws []string) []string
}

// Service は一覧画面のデータ取得と結合を行う。
// 取得失敗は画面側で吸収し、ログに記録したうえで空の一覧を返す。
type Service struct {
	api     API
	logger  *slog.Logger
	metrics metrics.MetricsCollector
	images  ImageResolver

	grace      time.Duration // 一次データの取得後に画像を待つ時間
	fetchLimit int           // 登録済み土地の詳細を同時に取得する上限
}

// DefaultFetchLimit は登録済み土地の詳細を同時に取得する数のデフォルト値。
const DefaultFetchLimit = 4

// NewService はServiceを生成する。apiはセッションごとのクライアント。
func NewService(api API, logger *slog.Logger, m metrics.MetricsCollector) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NopCollector{}
	}
	return &Service{
		api:        api,
		logger:     logger,
		metrics:    m,
		grace:      pending.DefaultGrace,
		fetchLimit: DefaultFetchLimit,
	}
}

// WithSecondaryGrace は補助データを待つ時間を設定する。0以下の場合は完了まで待つ。
func (s *Service) WithSecondaryGrace(d time.Duration) *Service {
	s.grace = d
	return s
}

// WithImageResolver は画像URLの変換を設定する。未設定の場合は取得値をそのまま使う。
func (s *Service) WithImageResolver(r ImageResolver) *Service {
	s.images = r
	return s
}

// resolveImages は項目の画像URLを表示可能な形に変換する。
func (s *Service) resolveImages(items []Item) []Item {
	if s.images == nil {
		return items
	}
	for i := range items {
		items[i].Cover = s.images.Resolve(items[i].Cover)
		items[i].Images = s.images.ResolveAll(items[i].Images)
	}
	return items
}

// JoinImages は各項目に、外部キーが項目IDと一致する画像を取得順で付与する。
// 一致する画像が無い項目には空の画像列を設定する。
func JoinImages(items []Item, images []model.ListingImage) []Item {
	byListing := make(map[int64][]string, len(items))
	for _, img := range images {
		byListing[img.ListingID] = append(byListing[img.ListingID], img.Image)
	}
	for i := range items {
		if imgs, ok := byListing[items[i].ID]; ok {
			items[i].Images = imgs
		} else {
			items[i].Images = []string{}
		}
	}
	return items
}

// BuildingItem は建物を一覧項目に変換する。
func BuildingItem(b model.Building) Item {
	return Item{
		Kind:      model.KindBuilding,
		ID:        b.ID,
		Name:      b.Name,
		Price:     string(b.Price),
		Currency:  b.Currency,
		Country:   b.Country,
		Cover:     b.Image,
		Images:    []string{},
		OwnerName: ownerName(b.Owner),
	}
}

// LandItem は土地を一覧項目に変換する。
func LandItem(l model.Land) Item {
	return Item{
		Kind:      model.KindLand,
		ID:        l.ID,
		Name:      l.Name,
		Price:     string(l.Price),
		Currency:  l.Currency,
		Country:   l.Country,
		Cover:     l.Image,
		Images:    []string{},
		OwnerName: ownerName(l.Owner),
	}
}

func ownerName(o *model.Owner) string {
	if o == nil {
		return ""
	}
	name := o.FirstName
	if o.LastName != "" {
		if name != "" {
			name += " "
		}
		name += o.LastName
	}
	if name == "" {
		name = o.Username
	}
	return name
}

// LoadBuildings は建物一覧と建物画像を並行に取得して結合する。
// 一覧の取得後、画像は猶予時間だけ待ち、間に合わなければ画像なしで描画する。
func (s *Service) LoadBuildings(ctx context.Context) *Page {
	s.metrics.RecordScreenMount("buildings")

	imgs := pending.Start(ctx, s.api.ListBuildingImages)
	buildings, err := s.api.ListBuildings(ctx)

	page := &Page{Kind: model.KindBuilding, Items: []Item{}}
	if err != nil {
		imgs.Cancel()
		s.absorb("buildings", "/api/buildings/", err)
		return page
	}
	images, err := imgs.WaitWithin(s.grace)
	if err != nil {
		s.absorb("buildings", "/api/building-images/", err)
		images = nil
	}

	items := make([]Item, 0, len(buildings))
	for _, b := range buildings {
		items = append(items, BuildingItem(b))
	}
	page.Items = s.resolveImages(JoinImages(items, images))
	return page
}

// LoadLand は土地一覧と土地画像（全件）を並行に取得して結合する。
func (s *Service) LoadLand(ctx context.Context) *Page {
	s.metrics.RecordScreenMount("land")

	imgs := pending.Start(ctx, func(ctx context.Context) ([]model.ListingImage, error) {
		return s.api.ListLandImages(ctx, "")
	})
	land, err := s.api.ListLand(ctx)

	page := &Page{Kind: model.KindLand, Items: []Item{}}
	if err != nil {
		imgs.Cancel()
		s.absorb("land", "/api/land/", err)
		return page
	}
	images, err := imgs.WaitWithin(s.grace)
	if err != nil {
		s.absorb("land", "/api/land-images/", err)
		images = nil
	}

	items := make([]Item, 0, len(land))
	for _, l := range land {
		items = append(items, LandItem(l))
	}
	page.Items = s.resolveImages(JoinImages(items, images))
	return page
}

// LoadSavedLand はログインユーザーがお気に入り登録した土地を取得する。
// 登録一覧をユーザーIDで絞り込み、土地ごとに詳細を取得する。取得できなかった土地は除外する。
func (s *Service) LoadSavedLand(ctx context.Context, userID int64, authenticated bool) *Page {
	page := &Page{Kind: model.KindLand, Items: []Item{}}
	if !authenticated {
		page.LoginRequired = true
		return page
	}
	s.metrics.RecordScreenMount("saved_land")

	saved, err := s.api.ListSavedLand(ctx)
	if err != nil {
		s.absorb("saved_land", "/api/saved-land/", err)
		return page
	}

	var landIDs []int64
	for _, sv := range saved {
		if sv.UserID == userID {
			landIDs = append(landIDs, sv.ListingID)
		}
	}

	resolved := make([]*model.Land, len(landIDs))
	var g errgroup.Group
	g.SetLimit(s.fetchLimit)
	for i, id := range landIDs {
		i, id := i, id
		g.Go(func() error {
			land, err := s.api.GetLand(ctx, estateapi.FormatID(id))
			if err != nil {
				s.absorb("saved_land", "/api/land/{id}", err)
				return nil
			}
			resolved[i] = land
			return nil
		})
	}
	_ = g.Wait()

	for _, land := range resolved {
		if land == nil {
			continue
		}
		item := LandItem(*land)
		item.Saved = true
		page.Items = append(page.Items, item)
	}
	page.Items = s.resolveImages(page.Items)
	return page
}

// absorb は画面で吸収する取得失敗をログとメトリクスに記録する。
func (s *Service) absorb(screen, endpoint string, err error) {
	s.metrics.RecordFetchAbsorbed(screen)
	s.logger.Error("データ取得に失敗しました",
		slog.String("screen", screen),
		slog.String("endpoint", endpoint),
		slog.String("error", err.Error()),
	)
}
