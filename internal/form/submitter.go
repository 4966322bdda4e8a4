package form

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hitoshi/estate/internal/estateapi"
	"github.com/hitoshi/estate/internal/metrics"
	"github.com/hitoshi/estate/internal/model"
)

// API はフォーム送信で使用する物件APIの操作。*estateapi.Client が実装する。
type API interface {
	CSRFToken(ctx context.Context) (string, error)
	UploadBuilding(ctx context.Context, b estateapi.BuildingUpload, image *model.Attachment) (json.RawMessage, error)
	UploadLand(ctx context.Context, l estateapi.LandUpload, image *model.Attachment) (json.RawMessage, error)
	Register(ctx context.Context, reg estateapi.Registration, profilePic *model.Attachment) (json.RawMessage, error)
}

// Identity は現在のログインユーザーを解決する。*auth.Provider が実装する。
type Identity interface {
	UserID() (int64, error)
}

// Submitter はフォームの検証と送信を行う。
// 送信のたびに新しいCSRFトークンを取得してから送る。
type Submitter struct {
	api     API
	logger  *slog.Logger
	metrics metrics.MetricsCollector
}

// NewSubmitter はSubmitterを生成する。apiはセッションごとのクライアント。
func NewSubmitter(api API, logger *slog.Logger, m metrics.MetricsCollector) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NopCollector{}
	}
	return &Submitter{api: api, logger: logger, metrics: m}
}

// SubmitBuilding は建物掲載フォームを送信する。画像が添付されていればmultipartで送る。
func (s *Submitter) SubmitBuilding(ctx context.Context, f BuildingForm) (json.RawMessage, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return s.submit(ctx, "building", func() (json.RawMessage, error) {
		return s.api.UploadBuilding(ctx, estateapi.BuildingUpload{
			Name:              f.Name,
			Price:             f.Price,
			PropertyType:      f.PropertyType,
			BuildingType:      f.BuildingType,
			Condition:         f.Condition,
			Furnishing:        f.Furnishing,
			Bedrooms:          f.Bedrooms,
			Bathrooms:         f.Bathrooms,
			Toilets:           f.Toilets,
			SwimmingPool:      f.SwimmingPool,
			HighspeedInternet: f.HighspeedInternet,
			Gym:               f.Gym,
			Dishwasher:        f.Dishwasher,
			Wifi:              f.Wifi,
			Garage:            f.Garage,
		}, f.Image)
	})
}

// SubmitLand は土地掲載フォームを送信する。掲載者IDは現在のログインユーザーから解決する。
func (s *Submitter) SubmitLand(ctx context.Context, f LandForm, who Identity) (json.RawMessage, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	ownerID, err := who.UserID()
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, "land", func() (json.RawMessage, error) {
		return s.api.UploadLand(ctx, estateapi.LandUpload{
			Name:        f.Name,
			Price:       f.Price,
			Description: f.Description,
			Owner:       ownerID,
		}, f.Image)
	})
}

// SubmitRegistration はユーザー登録フォームをmultipartで送信する。
// プロフィール画像が選択されていない場合はprofile_picsパートを含めない。
func (s *Submitter) SubmitRegistration(ctx context.Context, f RegistrationForm) (json.RawMessage, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	pic := f.ProfilePic
	if pic != nil && pic.ContentType == "" {
		withType := *pic
		withType.ContentType = model.ImageContentType(pic.FileName)
		pic = &withType
	}
	return s.submit(ctx, "register", func() (json.RawMessage, error) {
		return s.api.Register(ctx, estateapi.Registration{
			Username:    f.Username,
			FirstName:   f.FirstName,
			LastName:    f.LastName,
			About:       f.About,
			Email:       f.Email,
			PhoneNumber: f.PhoneNumber,
			Password:    f.Password,
			Country:     f.Country,
		}, pic)
	})
}

// submit はCSRFトークンを取得してから送信し、結果をログとメトリクスに記録する。
// 失敗時はサーバーのエラー詳細を含むSUBMISSION_FAILEDエラーを返す。
func (s *Submitter) submit(ctx context.Context, name string, send func() (json.RawMessage, error)) (json.RawMessage, error) {
	if _, err := s.api.CSRFToken(ctx); err != nil {
		return nil, s.failed(name, err)
	}
	raw, err := send()
	if err != nil {
		return nil, s.failed(name, err)
	}

	s.metrics.RecordFormSubmission(name, true)
	s.logger.Info("フォームを送信しました",
		slog.String("form", name),
		slog.String("response", string(raw)),
	)
	return raw, nil
}

func (s *Submitter) failed(name string, err error) error {
	s.metrics.RecordFormSubmission(name, false)
	s.logger.Error("フォームの送信に失敗しました",
		slog.String("form", name),
		slog.String("error", err.Error()),
	)

	var details any
	var httpErr *estateapi.HTTPError
	if errors.As(err, &httpErr) {
		details = httpErr.Details
	}
	return model.NewSubmissionFailedError(details)
}
