// Package detail は物件詳細画面のビューモデルを提供する。
//
// 取得（Load）と描画（Render）を分離しているため、
// ログイン状態が変わっても再取得せずに表示だけを切り替えられる。
package detail

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/estate/internal/estateapi"
	"github.com/hitoshi/estate/internal/metrics"
	"github.com/hitoshi/estate/internal/model"
	"github.com/hitoshi/estate/internal/pending"
)

// API は詳細画面が使用する物件APIの操作。*estateapi.Client が実装する。
type API interface {
	GetBuilding(ctx context.Context, id string) (*model.Building, error)
	GetLand(ctx context.Context, id string) (*model.Land, error)
	ListBuildingImages(ctx context.Context) ([]model.ListingImage, error)
	ListLandImages(ctx context.Context, landID string) ([]model.ListingImage, error)
}

// Sanitizer は説明文のサニタイズを行う。
type Sanitizer interface {
	Sanitize(raw string) string
}

// ImageResolver は画像パスを表示可能なURLに変換する。
type ImageResolver interface {
	Resolve(raw string) string
	ResolveAll(raws []string) []string
}

// Entity は取得済みの物件と画像。BuildingとLandのどちらか一方のみが設定される。
type Entity struct {
	Kind     model.Kind
	Building *model.Building
	Land     *model.Land
	Images   []string
}

// Fact は詳細画面に表示する項目名と値の組。
type Fact struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// OwnerView は掲載者の表示内容。連絡先はログイン時のみ設定される。
type OwnerView struct {
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// LoginPrompt は未ログイン時に電話番号の代わりに表示する導線。
type LoginPrompt struct {
	Message   string `json:"message"`
	LoginPath string `json:"login_path"`
}

// View は詳細画面1回分の描画結果。
type View struct {
	Kind        model.Kind   `json:"kind"`
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Price       string       `json:"price"`
	Currency    string       `json:"currency,omitempty"`
	Country     string       `json:"country,omitempty"`
	Description string       `json:"description"`
	DatePosted  string       `json:"date_posted,omitempty"`
	Cover       string       `json:"cover,omitempty"`
	Images      []string     `json:"images"`
	Owner       *OwnerView   `json:"owner,omitempty"`
	LoginPrompt *LoginPrompt `json:"login_prompt,omitempty"`
	Facts       []Fact       `json:"facts"`
	Amenities   []Fact       `json:"amenities,omitempty"`
}

// loginPath は未ログイン時の導線先。
const loginPath = "/auth/login"

// Service は詳細画面のデータ取得と描画を行う。
type Service struct {
	api       API
	sanitizer Sanitizer
	images    ImageResolver
	logger    *slog.Logger
	metrics   metrics.MetricsCollector
	grace     time.Duration
}

// NewService はServiceを生成する。imagesがnilの場合は画像パスをそのまま使う。
func NewService(api API, sanitizer Sanitizer, images ImageResolver, logger *slog.Logger, m metrics.MetricsCollector) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NopCollector{}
	}
	return &Service{
		api:       api,
		sanitizer: sanitizer,
		images:    images,
		logger:    logger,
		metrics:   m,
		grace:     pending.DefaultGrace,
	}
}

// WithSecondaryGrace は物件の取得後に画像を待つ時間を設定する。0以下の場合は完了まで待つ。
func (s *Service) WithSecondaryGrace(d time.Duration) *Service {
	s.grace = d
	return s
}

// LoadBuilding は建物と建物画像を並行に取得する。
// idは検証せずそのままパスに埋め込む。画像の取得失敗は画像なしとして扱い、
// 建物の取得後は猶予時間を過ぎた画像を待たない。
func (s *Service) LoadBuilding(ctx context.Context, id string) (*Entity, error) {
	s.metrics.RecordScreenMount("building_detail")

	imgs := pending.Start(ctx, s.api.ListBuildingImages)
	building, err := s.api.GetBuilding(ctx, id)
	if err != nil {
		imgs.Cancel()
		return nil, s.fail("building_detail", "/api/buildings/{id}", model.KindBuilding, id, err)
	}
	images, err := imgs.WaitWithin(s.grace)
	if err != nil {
		s.absorb("building_detail", "/api/building-images/", err)
	}

	return &Entity{
		Kind:     model.KindBuilding,
		Building: building,
		Images:   imagesFor(building.ID, images),
	}, nil
}

// LoadLand は土地と、その土地に紐づく画像を並行に取得する。
func (s *Service) LoadLand(ctx context.Context, id string) (*Entity, error) {
	s.metrics.RecordScreenMount("land_detail")

	imgs := pending.Start(ctx, func(ctx context.Context) ([]model.ListingImage, error) {
		return s.api.ListLandImages(ctx, id)
	})
	land, err := s.api.GetLand(ctx, id)
	if err != nil {
		imgs.Cancel()
		return nil, s.fail("land_detail", "/api/land/{id}", model.KindLand, id, err)
	}
	images, err := imgs.WaitWithin(s.grace)
	if err != nil {
		s.absorb("land_detail", "/api/land-images/", err)
	}

	return &Entity{
		Kind:   model.KindLand,
		Land:   land,
		Images: imagesFor(land.ID, images),
	}, nil
}

// Render はEntityを描画する。掲載者の連絡先（電話番号・メールアドレス）は
// authenticatedがtrueの場合のみ含める。
func (s *Service) Render(e *Entity, authenticated bool) *View {
	var v *View
	switch {
	case e.Building != nil:
		v = s.renderBuilding(e.Building)
	case e.Land != nil:
		v = s.renderLand(e.Land)
	default:
		return &View{Kind: e.Kind, Images: []string{}, Facts: []Fact{}}
	}

	v.Images = s.resolveAll(e.Images)
	if v.Owner != nil && !authenticated {
		v.Owner.PhoneNumber = ""
		v.Owner.Email = ""
		v.LoginPrompt = &LoginPrompt{
			Message:   "電話番号を見るにはログインしてください。",
			LoginPath: loginPath,
		}
	}
	return v
}

func (s *Service) renderBuilding(b *model.Building) *View {
	return &View{
		Kind:        model.KindBuilding,
		ID:          b.ID,
		Name:        b.Name,
		Price:       string(b.Price),
		Currency:    b.Currency,
		Country:     b.Country,
		Description: s.sanitize(b.Description),
		DatePosted:  datePart(b.DatePosted),
		Cover:       s.resolve(b.Image),
		Owner:       ownerView(b.Owner),
		Facts: []Fact{
			{Label: "Property type", Value: b.PropertyType},
			{Label: "Building type", Value: b.BuildingType},
			{Label: "Condition", Value: b.Condition},
			{Label: "Furnishing", Value: b.Furnishing},
			{Label: "Bedrooms", Value: strconv.Itoa(b.Bedrooms)},
			{Label: "Bathrooms", Value: strconv.Itoa(b.Bathrooms)},
			{Label: "Toilets", Value: strconv.Itoa(b.Toilets)},
		},
		Amenities: []Fact{
			{Label: "Swimming pool", Value: yesNo(b.SwimmingPool)},
			{Label: "High-speed internet", Value: yesNo(b.HighspeedInternet)},
			{Label: "Gym", Value: yesNo(b.Gym)},
			{Label: "Dishwasher", Value: yesNo(b.Dishwasher)},
			{Label: "Wifi", Value: yesNo(b.Wifi)},
			{Label: "Garage", Value: yesNo(b.Garage)},
		},
	}
}

func (s *Service) renderLand(l *model.Land) *View {
	return &View{
		Kind:        model.KindLand,
		ID:          l.ID,
		Name:        l.Name,
		Price:       string(l.Price),
		Currency:    l.Currency,
		Country:     l.Country,
		Description: s.sanitize(l.Description),
		DatePosted:  datePart(l.DatePosted),
		Cover:       s.resolve(l.Image),
		Owner:       ownerView(l.Owner),
		Facts: []Fact{
			{Label: "Land type", Value: l.LandType},
		},
	}
}

func (s *Service) sanitize(raw string) string {
	if s.sanitizer == nil {
		return raw
	}
	return s.sanitizer.Sanitize(raw)
}

func (s *Service) resolve(raw string) string {
	if s.images == nil {
		return raw
	}
	return s.images.Resolve(raw)
}

func (s *Service) resolveAll(raws []string) []string {
	if s.images == nil {
		if raws == nil {
			return []string{}
		}
		return raws
	}
	return s.images.ResolveAll(raws)
}

// fail は取得失敗を記録し、404の場合はLISTING_NOT_FOUNDに変換する。
func (s *Service) fail(screen, endpoint string, kind model.Kind, id string, err error) error {
	s.absorb(screen, endpoint, err)
	if estateapi.StatusCode(err) == http.StatusNotFound {
		return model.NewListingNotFoundError(kind, id)
	}
	return fmt.Errorf("load %s %s: %w", kind, id, err)
}

func (s *Service) absorb(screen, endpoint string, err error) {
	s.metrics.RecordFetchAbsorbed(screen)
	s.logger.Error("データ取得に失敗しました",
		slog.String("screen", screen),
		slog.String("endpoint", endpoint),
		slog.String("error", err.Error()),
	)
}

func imagesFor(id int64, images []model.ListingImage) []string {
	out := []string{}
	for _, img := range images {
		if img.ListingID == id {
			out = append(out, img.Image)
		}
	}
	return out
}

func ownerView(o *model.Owner) *OwnerView {
	if o == nil {
		return nil
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
	return &OwnerView{Name: name, Email: o.Email, PhoneNumber: o.PhoneNumber}
}

// datePart は投稿日時の日付部分（YYYY-MM-DD）を返す。
func datePart(raw string) string {
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t.Format("2006-01-02")
	}
	if len(raw) > 10 {
		return raw[:10]
	}
	return raw
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
