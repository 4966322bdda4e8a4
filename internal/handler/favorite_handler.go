package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/hitoshi/estate/internal/favorite"
	"github.com/hitoshi/estate/internal/model"
)

type saveResponse struct {
	Kind      model.Kind `json:"kind"`
	ListingID int64      `json:"listing_id"`
	Saved     bool       `json:"saved"`
	Message   string     `json:"message"`
}

func (h *Handler) save(w http.ResponseWriter, r *http.Request, kind model.Kind) {
	listingID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeInvalidRequest(w, r, "物件IDが不正です")
		return
	}

	h.withScope(w, r, func(ctx context.Context, sc *scope) error {
		userID, err := sc.provider.UserID()
		if err != nil {
			return err
		}

		board := favorite.NewBoard(sc.session.Saved)
		err = h.favoriteService(sc).Save(ctx, board, kind, listingID, userID)
		sc.session.Saved = board.Export()

		var apiErr *model.APIError
		if err != nil && !errors.As(err, &apiErr) {
			// 登録リクエストの失敗。トグルは登録済みに遷移している
			return model.NewUpstreamError(err.Error())
		}
		if err != nil {
			return err
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, saveResponse{
			Kind:      kind,
			ListingID: listingID,
			Saved:     true,
			Message:   "お気に入りに登録しました。",
		})
		return nil
	})
}

// SaveBuilding は建物をお気に入りに登録する。
// POST /screens/buildings/{id}/save
func (h *Handler) SaveBuilding(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, model.KindBuilding)
}

// SaveLand は土地をお気に入りに登録する。
// POST /screens/land/{id}/save
func (h *Handler) SaveLand(w http.ResponseWriter, r *http.Request) {
	h.save(w, r, model.KindLand)
}
