package estateapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/hitoshi/estate/internal/model"
)

// SearchQuery は検索エンドポイントに渡す条件。
// 空の値もキーごと送信する（サーバー側で全条件のANDとして解釈される）。
type SearchQuery struct {
	Search   string
	MinPrice string
	MaxPrice string
	Country  string
}

// Encode はsearch, min_price, max_price, countryの順でクエリ文字列を組み立てる。
func (q SearchQuery) Encode() string {
	return "search=" + url.QueryEscape(q.Search) +
		"&min_price=" + url.QueryEscape(q.MinPrice) +
		"&max_price=" + url.QueryEscape(q.MaxPrice) +
		"&country=" + url.QueryEscape(q.Country)
}

// BuildingUpload は建物掲載リクエストのペイロード。
type BuildingUpload struct {
	Name              string `json:"name"`
	Price             string `json:"price"`
	PropertyType      string `json:"property_type"`
	BuildingType      string `json:"building_type"`
	Condition         string `json:"condition"`
	Furnishing        string `json:"furnishing"`
	Bedrooms          int    `json:"bedrooms"`
	Bathrooms         int    `json:"bathrooms"`
	Toilets           int    `json:"toilets"`
	SwimmingPool      bool   `json:"swimming_pool"`
	HighspeedInternet bool   `json:"highspeed_internet"`
	Gym               bool   `json:"gym"`
	Dishwasher        bool   `json:"dishwasher"`
	Wifi              bool   `json:"wifi"`
	Garage            bool   `json:"garage"`
}

// LandUpload は土地掲載リクエストのペイロード。
type LandUpload struct {
	Name        string `json:"name"`
	Price       string `json:"price"`
	Description string `json:"description"`
	Owner       int64  `json:"owner"`
}

// Registration はユーザー登録リクエストの項目。
type Registration struct {
	Username    string `json:"username"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	About       string `json:"about"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phone_number"`
	Password    string `json:"password"`
	Country     string `json:"country"`
}

type landImageWire struct {
	ID    int64  `json:"id"`
	Land  int64  `json:"land"`
	Image string `json:"image"`
}

type buildingImageWire struct {
	ID       int64  `json:"id"`
	Building int64  `json:"building"`
	Image    string `json:"image"`
}

type savedLandWire struct {
	ID   int64 `json:"id"`
	User int64 `json:"user"`
	Land int64 `json:"land"`
}

// ListCategories はデモ用のカテゴリ一覧を取得する。
func (c *Client) ListCategories(ctx context.Context) ([]model.Category, error) {
	var out []model.Category
	_, err := c.do(ctx, request{method: http.MethodGet, endpoint: "/categories/", path: "/categories/"}, &out)
	return out, err
}

// CreateCategory はデモ用のカテゴリを作成する。
func (c *Client) CreateCategory(ctx context.Context, name string) (*model.Category, error) {
	r, err := c.jsonRequest(http.MethodPost, "/categories/", "/categories/", map[string]string{"name": name})
	if err != nil {
		return nil, err
	}
	var out model.Category
	if _, err := c.do(ctx, r, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListBuildings は建物一覧を取得する。
func (c *Client) ListBuildings(ctx context.Context) ([]model.Building, error) {
	var out []model.Building
	_, err := c.do(ctx, request{method: http.MethodGet, endpoint: "/api/buildings/", path: "/api/buildings/"}, &out)
	return out, err
}

// GetBuilding は建物1件を取得する。idはそのままパスに埋め込む。
func (c *Client) GetBuilding(ctx context.Context, id string) (*model.Building, error) {
	var out model.Building
	_, err := c.do(ctx, request{method: http.MethodGet, endpoint: "/api/buildings/{id}", path: "/api/buildings/" + id}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListLand は土地一覧を取得する。
func (c *Client) ListLand(ctx context.Context) ([]model.Land, error) {
	var out []model.Land
	_, err := c.do(ctx, request{method: http.MethodGet, endpoint: "/api/land/", path: "/api/land/"}, &out)
	return out, err
}

// GetLand は土地1件を取得する。idはそのままパスに埋め込む。
func (c *Client) GetLand(ctx context.Context, id string) (*model.Land, error) {
	var out model.Land
	_, err := c.do(ctx, request{method: http.MethodGet, endpoint: "/api/land/{id}", path: "/api/land/" + id}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ListLandImages は土地画像を取得する。landIDが空の場合は全件を取得する。
func (c *Client) ListLandImages(ctx context.Context, landID string) ([]model.ListingImage, error) {
	r := request{method: http.MethodGet, endpoint: "/api/land-images/", path: "/api/land-images/"}
	if landID != "" {
		r.rawQuery = "land=" + url.QueryEscape(landID)
	}
	var wire []landImageWire
	if _, err := c.do(ctx, r, &wire); err != nil {
		return nil, err
	}
	images := make([]model.ListingImage, 0, len(wire))
	for _, w := range wire {
		images = append(images, model.ListingImage{ID: w.ID, ListingID: w.Land, Image: w.Image})
	}
	return images, nil
}

// ListBuildingImages は建物画像を全件取得する。
func (c *Client) ListBuildingImages(ctx context.Context) ([]model.ListingImage, error) {
	var wire []buildingImageWire
	_, err := c.do(ctx, request{method: http.MethodGet, endpoint: "/api/building-images/", path: "/api/building-images/"}, &wire)
	if err != nil {
		return nil, err
	}
	images := make([]model.ListingImage, 0, len(wire))
	for _, w := range wire {
		images = append(images, model.ListingImage{ID: w.ID, ListingID: w.Building, Image: w.Image})
	}
	return images, nil
}

// SearchBuildings は条件に一致する建物を検索する。絞り込みはサーバー側で行われる。
func (c *Client) SearchBuildings(ctx context.Context, q SearchQuery) ([]model.Building, error) {
	var out []model.Building
	r := request{method: http.MethodGet, endpoint: c.searchBuildingsPath, path: c.searchBuildingsPath, rawQuery: q.Encode()}
	_, err := c.do(ctx, r, &out)
	return out, err
}

// SearchLand は条件に一致する土地を検索する。
func (c *Client) SearchLand(ctx context.Context, q SearchQuery) ([]model.Land, error) {
	var out []model.Land
	r := request{method: http.MethodGet, endpoint: c.searchLandPath, path: c.searchLandPath, rawQuery: q.Encode()}
	_, err := c.do(ctx, r, &out)
	return out, err
}

// CurrentUser はバックエンドセッションのログインユーザーを取得する。
func (c *Client) CurrentUser(ctx context.Context) (*model.User, error) {
	var out model.User
	if _, err := c.do(ctx, request{method: http.MethodGet, endpoint: "/api/user/", path: "/api/user/"}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CSRFToken は新しいCSRFトークンを取得し、以降の更新系リクエストに使用する。
func (c *Client) CSRFToken(ctx context.Context) (string, error) {
	var out struct {
		CSRFToken string `json:"csrf_token"`
	}
	if _, err := c.do(ctx, request{method: http.MethodGet, endpoint: "/api/get-csrf-token/", path: "/api/get-csrf-token/"}, &out); err != nil {
		return "", err
	}
	if out.CSRFToken == "" {
		return "", fmt.Errorf("CSRFトークンがレスポンスに含まれていません")
	}
	c.SetCSRFToken(out.CSRFToken)
	return out.CSRFToken, nil
}

// SaveProperty は建物をお気に入りに登録する。
func (c *Client) SaveProperty(ctx context.Context, buildingID, userID int64) error {
	payload := map[string]int64{"property": buildingID, "user": userID}
	r, err := c.jsonRequest(http.MethodPost, "/api/saved-properties/", "/api/saved-properties/", payload)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, r, nil)
	return err
}

// SaveLand は土地をお気に入りに登録する。
func (c *Client) SaveLand(ctx context.Context, landID, userID int64) error {
	payload := map[string]int64{"land": landID, "user": userID}
	r, err := c.jsonRequest(http.MethodPost, "/api/saved-land/", "/api/saved-land/", payload)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, r, nil)
	return err
}

// ListSavedLand は土地のお気に入り登録を全件取得する。
// ユーザーによる絞り込みは呼び出し側で行う。
func (c *Client) ListSavedLand(ctx context.Context) ([]model.SavedListing, error) {
	var wire []savedLandWire
	if _, err := c.do(ctx, request{method: http.MethodGet, endpoint: "/api/saved-land/", path: "/api/saved-land/"}, &wire); err != nil {
		return nil, err
	}
	saved := make([]model.SavedListing, 0, len(wire))
	for _, w := range wire {
		saved = append(saved, model.SavedListing{ID: w.ID, Kind: model.KindLand, UserID: w.User, ListingID: w.Land})
	}
	return saved, nil
}

// UploadBuilding は建物を掲載する。imageがnilでなければmultipartで送信する。
// 成功時はサーバーの生レスポンスを返す。
func (c *Client) UploadBuilding(ctx context.Context, b BuildingUpload, image *model.Attachment) (json.RawMessage, error) {
	return c.upload(ctx, "/api/upload/building/", b, image)
}

// UploadLand は土地を掲載する。imageがnilでなければmultipartで送信する。
func (c *Client) UploadLand(ctx context.Context, l LandUpload, image *model.Attachment) (json.RawMessage, error) {
	return c.upload(ctx, "/api/upload/land/", l, image)
}

func (c *Client) upload(ctx context.Context, path string, payload any, image *model.Attachment) (json.RawMessage, error) {
	if image == nil {
		r, err := c.jsonRequest(http.MethodPost, path, path, payload)
		if err != nil {
			return nil, err
		}
		return c.do(ctx, r, nil)
	}
	body, contentType, err := encodeMultipart(payload, "image", image)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, request{
		method:      http.MethodPost,
		endpoint:    path,
		path:        path,
		body:        body,
		contentType: contentType,
	}, nil)
}

// Register はユーザーを登録する。profilePicがnilの場合はprofile_picsパートを含めない。
func (c *Client) Register(ctx context.Context, reg Registration, profilePic *model.Attachment) (json.RawMessage, error) {
	body, contentType, err := encodeMultipart(reg, "profile_pics", profilePic)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, request{
		method:      http.MethodPost,
		endpoint:    "/api/register/",
		path:        "/api/register/",
		body:        body,
		contentType: contentType,
	}, nil)
}

// Login はバックエンドのセッションにログインする。
// 事前にCSRFToken を呼び出しておくこと。
func (c *Client) Login(ctx context.Context, username, password string) error {
	r, err := c.jsonRequest(http.MethodPost, "/api/login/", "/api/login/", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return err
	}
	_, err = c.do(ctx, r, nil)
	return err
}

// Logout はバックエンドのセッションからログアウトする。
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, request{method: http.MethodPost, endpoint: "/api/logout/", path: "/api/logout/"}, nil)
	return err
}

// FormatID は数値IDをパス埋め込み用の文字列に変換する。
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
