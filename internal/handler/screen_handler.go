package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/hitoshi/estate/internal/detail"
	"github.com/hitoshi/estate/internal/favorite"
	"github.com/hitoshi/estate/internal/listing"
	"github.com/hitoshi/estate/internal/model"
)

func (h *Handler) listingService(sc *scope) *listing.Service {
	svc := listing.NewService(sc.provider.Client(), h.logger, h.metrics).WithSecondaryGrace(h.grace)
	if h.images != nil {
		svc.WithImageResolver(h.images)
	}
	return svc
}

func (h *Handler) favoriteService(sc *scope) *favorite.Service {
	return favorite.NewService(sc.provider.Client(), h.logger, h.metrics)
}

func (h *Handler) detailService(sc *scope) *detail.Service {
	var images detail.ImageResolver
	if h.images != nil {
		images = h.images
	}
	return detail.NewService(sc.provider.Client(), h.sanitizer, images, h.logger, h.metrics).
		WithSecondaryGrace(h.grace)
}

// mountList は一覧画面を組み立てる。お気に入りのトグルはマウントのたびに初期化する。
func (h *Handler) mountList(ctx context.Context, sc *scope, kind model.Kind) *listing.Page {
	svc := h.listingService(sc)
	var page *listing.Page
	if kind == model.KindLand {
		page = svc.LoadLand(ctx)
	} else {
		page = svc.LoadBuildings(ctx)
	}

	id := sc.provider.Current()
	board := favorite.NewBoard(sc.session.Saved)
	h.favoriteService(sc).Mount(ctx, board, kind, id.UserID, id.Authenticated)
	for i := range page.Items {
		page.Items[i].Saved = board.IsSaved(kind, page.Items[i].ID)
	}
	sc.session.Saved = board.Export()

	if id.Authenticated {
		page.LoggedInAs = id.Username
	}
	return page
}

// Buildings は建物一覧画面。
// GET /screens/buildings
func (h *Handler) Buildings(w http.ResponseWriter, r *http.Request) {
	h.withScope(w, r, func(ctx context.Context, sc *scope) error {
		render.JSON(w, r, h.mountList(ctx, sc, model.KindBuilding))
		return nil
	})
}

// Land は土地一覧画面。
// GET /screens/land
func (h *Handler) Land(w http.ResponseWriter, r *http.Request) {
	h.withScope(w, r, func(ctx context.Context, sc *scope) error {
		render.JSON(w, r, h.mountList(ctx, sc, model.KindLand))
		return nil
	})
}

// detailScreen は詳細画面のレスポンス。取得に失敗した場合はUnavailableのみを返す。
type detailScreen struct {
	*detail.View
	Unavailable bool `json:"unavailable,omitempty"`
}

func (h *Handler) mountDetail(w http.ResponseWriter, r *http.Request, kind model.Kind) {
	id := chi.URLParam(r, "id")
	h.withScope(w, r, func(ctx context.Context, sc *scope) error {
		svc := h.detailService(sc)
		var (
			entity *detail.Entity
			err    error
		)
		if kind == model.KindLand {
			entity, err = svc.LoadLand(ctx, id)
		} else {
			entity, err = svc.LoadBuilding(ctx, id)
		}

		var apiErr *model.APIError
		switch {
		case errors.As(err, &apiErr):
			return apiErr
		case err != nil:
			// 取得失敗は画面側で吸収する
			render.JSON(w, r, detailScreen{Unavailable: true})
			return nil
		}

		render.JSON(w, r, detailScreen{View: svc.Render(entity, sc.provider.IsAuthenticated())})
		return nil
	})
}

// BuildingDetail は建物詳細画面。
// GET /screens/buildings/{id}
func (h *Handler) BuildingDetail(w http.ResponseWriter, r *http.Request) {
	h.mountDetail(w, r, model.KindBuilding)
}

// LandDetail は土地詳細画面。
// GET /screens/land/{id}
func (h *Handler) LandDetail(w http.ResponseWriter, r *http.Request) {
	h.mountDetail(w, r, model.KindLand)
}

// Search は検索画面。
// GET /screens/search?search=&min_price=&max_price=&country=&category=
// 条件が1つも無い場合は物件APIに問い合わせずSEARCH_DISABLEDを返す。
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := listing.Criteria{
		Search:   q.Get("search"),
		MinPrice: q.Get("min_price"),
		MaxPrice: q.Get("max_price"),
		Country:  q.Get("country"),
	}
	category := model.Kind(q.Get("category"))

	h.withScope(w, r, func(ctx context.Context, sc *scope) error {
		result, err := h.listingService(sc).Search(ctx, criteria, category)
		if err != nil {
			return err
		}
		render.JSON(w, r, result)
		return nil
	})
}

// SavedLand はお気に入り登録した土地の画面。未ログインの場合はログインを促す。
// GET /screens/saved-land
func (h *Handler) SavedLand(w http.ResponseWriter, r *http.Request) {
	h.withScope(w, r, func(ctx context.Context, sc *scope) error {
		id := sc.provider.Current()
		page := h.listingService(sc).LoadSavedLand(ctx, id.UserID, id.Authenticated)
		if id.Authenticated {
			page.LoggedInAs = id.Username
		}
		render.JSON(w, r, page)
		return nil
	})
}

// accountScreen はアカウント画面のレスポンス。
type accountScreen struct {
	LoginRequired bool        `json:"login_required,omitempty"`
	User          *model.User `json:"user,omitempty"`
	UploadLinks   []string    `json:"upload_links,omitempty"`
}

// Account はアカウント画面。ログイン中はプロフィールと掲載フォームへの導線を返す。
// GET /screens/account
func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	h.withScope(w, r, func(ctx context.Context, sc *scope) error {
		if !sc.provider.IsAuthenticated() {
			render.JSON(w, r, accountScreen{LoginRequired: true})
			return nil
		}

		h.metrics.RecordScreenMount("account")
		resp := accountScreen{UploadLinks: []string{"/forms/building", "/forms/land"}}
		user, err := sc.provider.User(ctx)
		if err != nil {
			h.metrics.RecordFetchAbsorbed("account")
			h.logger.Error("データ取得に失敗しました",
				slog.String("screen", "account"),
				slog.String("endpoint", "/api/user/"),
				slog.String("error", err.Error()),
			)
		} else {
			if h.images != nil {
				user.ProfilePics = h.images.Resolve(user.ProfilePics)
			}
			resp.User = user
		}
		render.JSON(w, r, resp)
		return nil
	})
}

// Categories はデモ用のカテゴリ一覧。取得失敗は空の一覧として扱う。
// GET /screens/categories
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	h.withScope(w, r, func(ctx context.Context, sc *scope) error {
		categories, err := sc.provider.Client().ListCategories(ctx)
		if err != nil {
			h.metrics.RecordFetchAbsorbed("categories")
			h.logger.Error("データ取得に失敗しました",
				slog.String("screen", "categories"),
				slog.String("endpoint", "/categories/"),
				slog.String("error", err.Error()),
			)
			categories = []model.Category{}
		}
		if categories == nil {
			categories = []model.Category{}
		}
		render.JSON(w, r, categories)
		return nil
	})
}

type createCategoryRequest struct {
	Name string `json:"name"`
}

// CreateCategory はデモ用のカテゴリを作成する。
// POST /screens/categories
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req createCategoryRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeInvalidRequest(w, r, "JSONを解析できません")
		return
	}
	if req.Name == "" {
		h.handleServiceError(w, r, model.NewValidationError(map[string]string{"name": "必須項目です"}))
		return
	}

	h.withScope(w, r, func(ctx context.Context, sc *scope) error {
		if _, err := sc.provider.Client().CSRFToken(ctx); err != nil {
			return err
		}
		category, err := sc.provider.Client().CreateCategory(ctx, req.Name)
		if err != nil {
			return err
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, category)
		return nil
	})
}
