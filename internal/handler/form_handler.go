package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/render"

	"github.com/hitoshi/estate/internal/form"
	"github.com/hitoshi/estate/internal/model"
)

// maxUploadBytes はフォーム送信1回あたりの最大サイズ。
const maxUploadBytes = 10 << 20

type submitResponse struct {
	Message  string          `json:"message"`
	Response json.RawMessage `json:"response,omitempty"`
}

func (h *Handler) submitter(sc *scope) *form.Submitter {
	return form.NewSubmitter(sc.provider.Client(), h.logger, h.metrics)
}

func writeSubmitted(w http.ResponseWriter, r *http.Request, raw json.RawMessage) {
	if len(raw) > 0 && !json.Valid(raw) {
		raw = nil
	}
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, submitResponse{Message: "送信しました。", Response: raw})
}

// BuildingChoices は建物掲載フォームの選択肢を返す。
// GET /forms/building/choices
func (h *Handler) BuildingChoices(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, form.Choices())
}

// SubmitBuilding は建物掲載フォームを送信する。
// POST /forms/building（JSON、または image パートを含むmultipart）
func (h *Handler) SubmitBuilding(w http.ResponseWriter, r *http.Request) {
	var f form.BuildingForm
	if isMultipart(r) {
		values, image, err := readMultipart(w, r, "image")
		if err != nil {
			writeInvalidRequest(w, r, err.Error())
			return
		}
		if f, err = buildingFormFromValues(values); err != nil {
			h.handleServiceError(w, r, err)
			return
		}
		f.Image = image
	} else if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeInvalidRequest(w, r, "JSONを解析できません")
		return
	}

	h.withScope(w, r, func(ctx context.Context, sc *scope) error {
		raw, err := h.submitter(sc).SubmitBuilding(ctx, f)
		if err != nil {
			return err
		}
		writeSubmitted(w, r, raw)
		return nil
	})
}

// SubmitLand は土地掲載フォームを送信する。掲載者はログイン中のユーザー。
// POST /forms/land（JSON、または image パートを含むmultipart）
func (h *Handler) SubmitLand(w http.ResponseWriter, r *http.Request) {
	var f form.LandForm
	if isMultipart(r) {
		values, image, err := readMultipart(w, r, "image")
		if err != nil {
			writeInvalidRequest(w, r, err.Error())
			return
		}
		f = form.LandForm{
			Name:        values.get("name"),
			Price:       values.get("price"),
			Description: values.get("description"),
			Image:       image,
		}
	} else if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeInvalidRequest(w, r, "JSONを解析できません")
		return
	}

	h.withScope(w, r, func(ctx context.Context, sc *scope) error {
		raw, err := h.submitter(sc).SubmitLand(ctx, f, sc.provider)
		if err != nil {
			return err
		}
		writeSubmitted(w, r, raw)
		return nil
	})
}

// SubmitRegistration はユーザー登録フォームを送信する。
// POST /forms/register（multipart。profile_pics パートは任意）
func (h *Handler) SubmitRegistration(w http.ResponseWriter, r *http.Request) {
	if !isMultipart(r) {
		writeInvalidRequest(w, r, "multipart/form-data で送信してください")
		return
	}
	values, pic, err := readMultipart(w, r, "profile_pics")
	if err != nil {
		writeInvalidRequest(w, r, err.Error())
		return
	}
	f := form.RegistrationForm{
		Username:    values.get("username"),
		Password:    values.get("password"),
		FirstName:   values.get("first_name"),
		LastName:    values.get("last_name"),
		Email:       values.get("email"),
		PhoneNumber: values.get("phone_number"),
		About:       values.get("about"),
		Country:     values.get("country"),
		ProfilePic:  pic,
	}

	h.withScope(w, r, func(ctx context.Context, sc *scope) error {
		raw, err := h.submitter(sc).SubmitRegistration(ctx, f)
		if err != nil {
			return err
		}
		writeSubmitted(w, r, raw)
		return nil
	})
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

type formValues map[string][]string

func (v formValues) get(key string) string {
	if vs := v[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// readMultipart はmultipartのテキスト項目と、fileFieldのファイル（任意）を読み取る。
// ファイル名は元の名前を保持し、MIMEタイプは拡張子から判定する。
func readMultipart(w http.ResponseWriter, r *http.Request, fileField string) (formValues, *model.Attachment, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, nil, fmt.Errorf("multipartを解析できません")
	}
	values := formValues(r.MultipartForm.Value)

	file, header, err := r.FormFile(fileField)
	if errors.Is(err, http.ErrMissingFile) {
		return values, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%s を読み取れません", fileField)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, fmt.Errorf("%s を読み取れません", fileField)
	}
	if len(data) == 0 {
		return values, nil, nil
	}
	name := model.FileNameFromURI(header.Filename)
	return values, &model.Attachment{
		FileName:    name,
		ContentType: model.ImageContentType(name),
		Data:        data,
	}, nil
}

// buildingFormFromValues はmultipartの項目を建物掲載フォームに変換する。
// 数値・真偽値として解釈できない項目はインラインメッセージ付きの入力エラーにする。
func buildingFormFromValues(v formValues) (form.BuildingForm, error) {
	fields := map[string]string{}
	intField := func(key string) int {
		s := strings.TrimSpace(v.get(key))
		if s == "" {
			return 0
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			fields[key] = "数値を入力してください"
		}
		return n
	}
	boolField := func(key string) bool {
		s := strings.TrimSpace(v.get(key))
		switch strings.ToLower(s) {
		case "", "false", "0", "off", "no":
			return false
		case "true", "1", "on", "yes":
			return true
		}
		fields[key] = "true または false を指定してください"
		return false
	}

	f := form.BuildingForm{
		Name:              v.get("name"),
		Price:             v.get("price"),
		PropertyType:      v.get("property_type"),
		BuildingType:      v.get("building_type"),
		Condition:         v.get("condition"),
		Furnishing:        v.get("furnishing"),
		Bedrooms:          intField("bedrooms"),
		Bathrooms:         intField("bathrooms"),
		Toilets:           intField("toilets"),
		SwimmingPool:      boolField("swimming_pool"),
		HighspeedInternet: boolField("highspeed_internet"),
		Gym:               boolField("gym"),
		Dishwasher:        boolField("dishwasher"),
		Wifi:              boolField("wifi"),
		Garage:            boolField("garage"),
	}
	if len(fields) > 0 {
		return f, model.NewValidationError(fields)
	}
	return f, nil
}
