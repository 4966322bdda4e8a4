package form

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/estate/internal/estateapi"
	"github.com/hitoshi/estate/internal/model"
)

// --- モック定義 ---

type mockAPI struct {
	csrfFn           func(ctx context.Context) (string, error)
	uploadBuildingFn func(ctx context.Context, b estateapi.BuildingUpload, image *model.Attachment) (json.RawMessage, error)
	uploadLandFn     func(ctx context.Context, l estateapi.LandUpload, image *model.Attachment) (json.RawMessage, error)
	registerFn       func(ctx context.Context, reg estateapi.Registration, pic *model.Attachment) (json.RawMessage, error)

	order []string
}

func (m *mockAPI) CSRFToken(ctx context.Context) (string, error) {
	m.order = append(m.order, "csrf")
	if m.csrfFn != nil {
		return m.csrfFn(ctx)
	}
	return "tok", nil
}

func (m *mockAPI) UploadBuilding(ctx context.Context, b estateapi.BuildingUpload, image *model.Attachment) (json.RawMessage, error) {
	m.order = append(m.order, "upload_building")
	if m.uploadBuildingFn != nil {
		return m.uploadBuildingFn(ctx, b, image)
	}
	return json.RawMessage(`{"id":1}`), nil
}

func (m *mockAPI) UploadLand(ctx context.Context, l estateapi.LandUpload, image *model.Attachment) (json.RawMessage, error) {
	m.order = append(m.order, "upload_land")
	if m.uploadLandFn != nil {
		return m.uploadLandFn(ctx, l, image)
	}
	return json.RawMessage(`{"id":2}`), nil
}

func (m *mockAPI) Register(ctx context.Context, reg estateapi.Registration, pic *model.Attachment) (json.RawMessage, error) {
	m.order = append(m.order, "register")
	if m.registerFn != nil {
		return m.registerFn(ctx, reg, pic)
	}
	return json.RawMessage(`{"id":3}`), nil
}

var _ API = (*mockAPI)(nil)
var _ API = (*estateapi.Client)(nil)

type fixedIdentity struct {
	id  int64
	err error
}

func (f fixedIdentity) UserID() (int64, error) { return f.id, f.err }

func newTestSubmitter(api API, buf *bytes.Buffer) *Submitter {
	return NewSubmitter(api, slog.New(slog.NewJSONHandler(buf, nil)), nil)
}

func validRegistration() RegistrationForm {
	return RegistrationForm{
		Username:    "ada",
		Password:    "secret",
		FirstName:   "Ada",
		LastName:    "Obi",
		Email:       "ada@example.com",
		PhoneNumber: "+234",
		About:       "agent",
		Country:     "NG",
	}
}

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeValidation {
		t.Fatalf("err = %v, want VALIDATION_FAILED", err)
	}
	fields, ok := apiErr.Details.(map[string]string)
	if !ok {
		t.Fatalf("Details = %#v, want map[string]string", apiErr.Details)
	}
	return fields
}

// --- Validate ---

func TestBuildingForm_Validate_RequiredFields(t *testing.T) {
	fields := fieldErrors(t, BuildingForm{}.Validate())
	if fields["name"] == "" || fields["price"] == "" {
		t.Errorf("fields = %v, want name and price", fields)
	}
	if len(fields) != 2 {
		t.Errorf("必須項目以外にエラーが出ている: %v", fields)
	}
}

func TestBuildingForm_Validate_Choices(t *testing.T) {
	f := BuildingForm{Name: "Flat", Price: "1", PropertyType: "swap", BuildingType: "castle", Condition: "renovated"}
	fields := fieldErrors(t, f.Validate())
	if fields["property_type"] == "" || fields["building_type"] == "" {
		t.Errorf("fields = %v", fields)
	}
	if _, ok := fields["condition"]; ok {
		t.Errorf("正しい選択肢がエラーになった: %v", fields)
	}

	ok := BuildingForm{Name: "Flat", Price: "-5", PropertyType: "lease", BuildingType: "room_and_parlour", Furnishing: "semi_furnished"}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate がエラーを返した: %v", err)
	}
}

func TestLandForm_Validate(t *testing.T) {
	fields := fieldErrors(t, LandForm{Name: "  "}.Validate())
	if fields["name"] == "" || fields["price"] == "" {
		t.Errorf("fields = %v", fields)
	}
	if err := (LandForm{Name: "Plot", Price: "5"}).Validate(); err != nil {
		t.Errorf("Validate がエラーを返した: %v", err)
	}
}

func TestRegistrationForm_Validate_AllRequired(t *testing.T) {
	fields := fieldErrors(t, RegistrationForm{}.Validate())
	for _, key := range []string{"username", "password", "first_name", "last_name", "email", "phone_number", "about", "country"} {
		if fields[key] == "" {
			t.Errorf("%s のエラーがない", key)
		}
	}
	if err := validRegistration().Validate(); err != nil {
		t.Errorf("Validate がエラーを返した: %v", err)
	}
}

func TestChoices(t *testing.T) {
	c := Choices()
	if len(c.PropertyTypes) != 3 || len(c.BuildingTypes) != 9 || len(c.Conditions) != 3 || len(c.Furnishings) != 3 {
		t.Errorf("Choices = %+v", c)
	}
}

// --- Submitter ---

func TestSubmitBuilding_InvalidForm_NoRequests(t *testing.T) {
	api := &mockAPI{}
	var buf bytes.Buffer
	_, err := newTestSubmitter(api, &buf).SubmitBuilding(context.Background(), BuildingForm{})
	if err == nil {
		t.Fatal("エラーが返されなかった")
	}
	if len(api.order) != 0 {
		t.Errorf("入力不備でリクエストが送信された: %v", api.order)
	}
}

func TestSubmitBuilding_FetchesTokenFirstAndKeepsImage(t *testing.T) {
	var gotImage *model.Attachment
	var gotPayload estateapi.BuildingUpload
	api := &mockAPI{
		uploadBuildingFn: func(ctx context.Context, b estateapi.BuildingUpload, image *model.Attachment) (json.RawMessage, error) {
			gotPayload = b
			gotImage = image
			return json.RawMessage(`{"id":10}`), nil
		},
	}
	img := &model.Attachment{FileName: "a.png", ContentType: "image/png", Data: []byte("x")}
	var buf bytes.Buffer
	raw, err := newTestSubmitter(api, &buf).SubmitBuilding(context.Background(), BuildingForm{Name: "Flat", Price: "10", Gym: true, Bedrooms: 2, Image: img})
	if err != nil {
		t.Fatalf("SubmitBuilding がエラーを返した: %v", err)
	}
	if strings.Join(api.order, ",") != "csrf,upload_building" {
		t.Errorf("order = %v", api.order)
	}
	if gotImage != img {
		t.Errorf("添付画像が送信されていない")
	}
	if !gotPayload.Gym || gotPayload.Bedrooms != 2 {
		t.Errorf("payload = %+v", gotPayload)
	}
	if string(raw) != `{"id":10}` {
		t.Errorf("raw = %s", raw)
	}
	if !strings.Contains(buf.String(), `{\"id\":10}`) {
		t.Errorf("レスポンスがログに記録されていない: %s", buf.String())
	}
}

func TestSubmitLand_UsesCurrentUserAsOwner(t *testing.T) {
	var owner int64
	api := &mockAPI{
		uploadLandFn: func(ctx context.Context, l estateapi.LandUpload, image *model.Attachment) (json.RawMessage, error) {
			owner = l.Owner
			return json.RawMessage(`{}`), nil
		},
	}
	var buf bytes.Buffer
	if _, err := newTestSubmitter(api, &buf).SubmitLand(context.Background(), LandForm{Name: "Plot", Price: "5"}, fixedIdentity{id: 42}); err != nil {
		t.Fatalf("SubmitLand がエラーを返した: %v", err)
	}
	if owner != 42 {
		t.Errorf("owner = %d, want 42", owner)
	}
}

func TestSubmitLand_Unauthenticated_NoRequests(t *testing.T) {
	api := &mockAPI{}
	var buf bytes.Buffer
	_, err := newTestSubmitter(api, &buf).SubmitLand(context.Background(), LandForm{Name: "Plot", Price: "5"}, fixedIdentity{err: model.NewLoginRequiredError()})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeLoginRequired {
		t.Fatalf("err = %v, want LOGIN_REQUIRED", err)
	}
	if len(api.order) != 0 {
		t.Errorf("order = %v, want none", api.order)
	}
}

func TestSubmit_ServerError_CarriesDetails(t *testing.T) {
	details := map[string]any{"email": []any{"already registered"}}
	api := &mockAPI{
		registerFn: func(ctx context.Context, reg estateapi.Registration, pic *model.Attachment) (json.RawMessage, error) {
			return nil, &estateapi.HTTPError{StatusCode: http.StatusBadRequest, Details: details}
		},
	}
	var buf bytes.Buffer
	_, err := newTestSubmitter(api, &buf).SubmitRegistration(context.Background(), validRegistration())

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeSubmissionFailed {
		t.Fatalf("err = %v, want SUBMISSION_FAILED", err)
	}
	got, ok := apiErr.Details.(map[string]any)
	if !ok || got["email"] == nil {
		t.Errorf("Details = %#v", apiErr.Details)
	}
}

func TestSubmit_TokenFailure_NotSent(t *testing.T) {
	api := &mockAPI{
		csrfFn: func(ctx context.Context) (string, error) { return "", errors.New("down") },
	}
	var buf bytes.Buffer
	_, err := newTestSubmitter(api, &buf).SubmitBuilding(context.Background(), BuildingForm{Name: "F", Price: "1"})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeSubmissionFailed || apiErr.Details != nil {
		t.Fatalf("err = %#v", err)
	}
	if strings.Join(api.order, ",") != "csrf" {
		t.Errorf("order = %v", api.order)
	}
}

func TestSubmitRegistration_DetectsImageType(t *testing.T) {
	var pic *model.Attachment
	api := &mockAPI{
		registerFn: func(ctx context.Context, reg estateapi.Registration, p *model.Attachment) (json.RawMessage, error) {
			pic = p
			return json.RawMessage(`{}`), nil
		},
	}
	f := validRegistration()
	f.ProfilePic = &model.Attachment{FileName: "me.png", Data: []byte("img")}
	var buf bytes.Buffer
	if _, err := newTestSubmitter(api, &buf).SubmitRegistration(context.Background(), f); err != nil {
		t.Fatalf("SubmitRegistration がエラーを返した: %v", err)
	}
	if pic == nil || pic.ContentType != "image/png" || pic.FileName != "me.png" {
		t.Errorf("pic = %+v", pic)
	}
	if f.ProfilePic.ContentType != "" {
		t.Errorf("入力値が書き換えられた")
	}
}

// TestSubmitRegistration_Multipart は実クライアントで送信されるmultipartの内容を検証する。
func TestSubmitRegistration_Multipart(t *testing.T) {
	type captured struct {
		token string
		parts map[string]string
		file  *multipart.Part
		data  string
	}

	run := func(t *testing.T, pic *model.Attachment) captured {
		t.Helper()
		var got captured
		r := chi.NewRouter()
		r.Get("/api/get-csrf-token/", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"csrf_token":"fresh"}`))
		})
		r.Post("/api/register/", func(w http.ResponseWriter, r *http.Request) {
			got.token = r.Header.Get("X-CSRFToken")
			got.parts = map[string]string{}
			_, params, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
			mr := multipart.NewReader(r.Body, params["boundary"])
			for {
				p, err := mr.NextPart()
				if err != nil {
					break
				}
				b, _ := io.ReadAll(p)
				if p.FileName() != "" {
					got.file = p
					got.data = string(b)
					continue
				}
				got.parts[p.FormName()] = string(b)
			}
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":3}`))
		})
		srv := httptest.NewServer(r)
		defer srv.Close()

		client, err := estateapi.New(estateapi.Options{BaseURL: srv.URL})
		if err != nil {
			t.Fatalf("New がエラーを返した: %v", err)
		}
		f := validRegistration()
		f.ProfilePic = pic
		var buf bytes.Buffer
		if _, err := newTestSubmitter(client, &buf).SubmitRegistration(context.Background(), f); err != nil {
			t.Fatalf("SubmitRegistration がエラーを返した: %v", err)
		}
		return got
	}

	t.Run("画像なし", func(t *testing.T) {
		got := run(t, nil)
		if got.token != "fresh" {
			t.Errorf("X-CSRFToken = %q", got.token)
		}
		if got.file != nil {
			t.Errorf("profile_pics パートが含まれている")
		}
		if _, ok := got.parts["profile_pics"]; ok {
			t.Errorf("profile_pics フィールドが含まれている")
		}
		if got.parts["username"] != "ada" || got.parts["country"] != "NG" {
			t.Errorf("parts = %v", got.parts)
		}
	})

	t.Run("画像あり", func(t *testing.T) {
		got := run(t, &model.Attachment{FileName: "IMG_0001.jpg", Data: []byte("jpegdata")})
		if got.file == nil {
			t.Fatal("profile_pics パートがない")
		}
		if got.file.FormName() != "profile_pics" || got.file.FileName() != "IMG_0001.jpg" {
			t.Errorf("part = %s %s", got.file.FormName(), got.file.FileName())
		}
		if got.file.Header.Get("Content-Type") != "image/jpeg" {
			t.Errorf("Content-Type = %q", got.file.Header.Get("Content-Type"))
		}
		if got.data != "jpegdata" {
			t.Errorf("data = %q", got.data)
		}
	})
}
