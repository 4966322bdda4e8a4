package listing

import (
	"context"

	"github.com/hitoshi/estate/internal/estateapi"
	"github.com/hitoshi/estate/internal/model"
	"github.com/hitoshi/estate/internal/pending"
)

// Criteria は検索画面の入力値。全条件のANDでサーバー側が絞り込む。
type Criteria struct {
	Search   string `json:"search"`
	MinPrice string `json:"min_price"`
	MaxPrice string `json:"max_price"`
	Country  string `json:"country"`
}

// Enabled はいずれかの条件が1文字以上入力されている場合にtrueを返す。
// 空白のみの入力も入力ありとして扱う。falseの場合は検索を実行しない。
func (c Criteria) Enabled() bool {
	return len(c.Search) > 0 ||
		len(c.MinPrice) > 0 ||
		len(c.MaxPrice) > 0 ||
		len(c.Country) > 0
}

func (c Criteria) query() estateapi.SearchQuery {
	return estateapi.SearchQuery{
		Search:   c.Search,
		MinPrice: c.MinPrice,
		MaxPrice: c.MaxPrice,
		Country:  c.Country,
	}
}

// SearchResult は検索画面の描画結果。建物と土地の結果を別々に保持し、
// Categoryで選択された側をDisplayedとして表示する。
type SearchResult struct {
	Criteria  Criteria   `json:"criteria"`
	Category  model.Kind `json:"category"`
	Buildings []Item     `json:"buildings"`
	Land      []Item     `json:"land"`
	Displayed []Item     `json:"displayed"`
	NoResult  bool       `json:"no_result"`
}

// Search は建物と土地の検索を並行かつ独立に実行する。
// 条件が空の場合はリクエストを送らずSEARCH_DISABLEDエラーを返す。
// 片方の取得失敗はその結果を空として扱う。選択されていない側は猶予時間を過ぎると空になる。
func (s *Service) Search(ctx context.Context, c Criteria, category model.Kind) (*SearchResult, error) {
	if !c.Enabled() {
		return nil, model.NewSearchDisabledError()
	}
	if category == "" {
		category = model.KindBuilding
	}
	if !category.Valid() {
		return nil, model.NewInvalidKindError(string(category))
	}
	s.metrics.RecordScreenMount("search")

	q := c.query()
	bFetch := pending.Start(ctx, func(ctx context.Context) ([]model.Building, error) {
		return s.api.SearchBuildings(ctx, q)
	})
	lFetch := pending.Start(ctx, func(ctx context.Context) ([]model.Land, error) {
		return s.api.SearchLand(ctx, q)
	})

	// 表示するカテゴリの結果は完了まで待ち、もう一方は猶予時間だけ待つ
	var (
		buildings []model.Building
		land      []model.Land
		bErr      error
		lErr      error
	)
	if category == model.KindLand {
		land, lErr = lFetch.Wait()
		buildings, bErr = bFetch.WaitWithin(s.grace)
	} else {
		buildings, bErr = bFetch.Wait()
		land, lErr = lFetch.WaitWithin(s.grace)
	}

	result := &SearchResult{
		Criteria:  c,
		Category:  category,
		Buildings: []Item{},
		Land:      []Item{},
	}
	if bErr != nil {
		s.absorb("search", "search_buildings", bErr)
	} else {
		for _, b := range buildings {
			result.Buildings = append(result.Buildings, BuildingItem(b))
		}
	}
	if lErr != nil {
		s.absorb("search", "search_land", lErr)
	} else {
		for _, l := range land {
			result.Land = append(result.Land, LandItem(l))
		}
	}

	result.Buildings = s.resolveImages(result.Buildings)
	result.Land = s.resolveImages(result.Land)
	result.Select(category)
	return result, nil
}

// Select は表示するカテゴリを切り替える。再取得は行わない。
func (r *SearchResult) Select(category model.Kind) {
	r.Category = category
	switch category {
	case model.KindLand:
		r.Displayed = r.Land
	default:
		r.Displayed = r.Buildings
	}
	r.NoResult = len(r.Displayed) == 0
}
