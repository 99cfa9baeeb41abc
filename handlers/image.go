package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/camden-git/imageindex/database"
	"github.com/camden-git/imageindex/models"
)

const thumbnailCacheDuration = 24 * time.Hour

// ImageStore is the part of the metadata store served over HTTP.
type ImageStore interface {
	QueryImages(ctx context.Context, filter database.ImageFilter, sort database.Sort, page database.Page) ([]models.ImageRecord, error)
	CountImages(ctx context.Context, filter database.ImageFilter) (int64, error)
	GetImageByID(ctx context.Context, id int64) (*models.ImageRecord, error)
	SetFavorite(ctx context.Context, id int64, favorite bool) error
	ToggleFavorite(ctx context.Context, id int64) (bool, error)
	SetRating(ctx context.Context, id int64, rating int) error
	GetThumbnail(ctx context.Context, id int64) ([]byte, error)
	GetOriginalPath(ctx context.Context, id int64) (string, error)
	DeleteImage(ctx context.Context, path string) (bool, error)
}

type ImageHandler struct {
	Store ImageStore
}

type imageListResponse struct {
	Images []models.ImageRecord `json:"images"`
	Total  int64                `json:"total"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

// ListImages runs a filtered, sorted and paged query along with the total
// count of matches.
func (h *ImageHandler) ListImages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := parseImageFilter(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sort, err := parseSort(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := parsePage(q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	images, err := h.Store.QueryImages(r.Context(), filter, sort, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	total, err := h.Store.CountImages(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if images == nil {
		images = []models.ImageRecord{}
	}
	writeJSON(w, http.StatusOK, imageListResponse{Images: images, Total: total, Limit: page.Limit, Offset: page.Offset})
}

func (h *ImageHandler) CountImages(w http.ResponseWriter, r *http.Request) {
	filter, err := parseImageFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	total, err := h.Store.CountImages(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": total})
}

func (h *ImageHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	img, err := h.Store.GetImageByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if img == nil {
		writeError(w, r, models.NotFoundf("image %d", id))
		return
	}
	writeJSON(w, http.StatusOK, img)
}

func (h *ImageHandler) SetFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		IsFavorite *bool `json:"is_favorite"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.IsFavorite == nil {
		writeError(w, r, models.NewValidationError("is_favorite", "is required"))
		return
	}
	if err := h.Store.SetFavorite(r.Context(), id, *req.IsFavorite); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "is_favorite": *req.IsFavorite})
}

func (h *ImageHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	favorite, err := h.Store.ToggleFavorite(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "is_favorite": favorite})
}

func (h *ImageHandler) SetRating(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Rating *int `json:"rating"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Rating == nil {
		writeError(w, r, models.NewValidationError("rating", "is required"))
		return
	}
	if err := h.Store.SetRating(r.Context(), id, *req.Rating); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"id": id, "rating": *req.Rating})
}

// Thumbnail serves the stored JPEG thumbnail bytes.
func (h *ImageHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := h.Store.GetThumbnail(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age="+strconv.Itoa(int(thumbnailCacheDuration.Seconds())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Original streams the indexed file from disk.
func (h *ImageHandler) Original(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	path, err := h.Store.GetOriginalPath(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	http.ServeFile(w, r, path)
}

// DeleteImage drops the record, its thumbnail and its album memberships. The
// file on disk is left alone, so a later scan indexes it again.
func (h *ImageHandler) DeleteImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	path, err := h.Store.GetOriginalPath(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	existed, err := h.Store.DeleteImage(r.Context(), path)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !existed {
		writeError(w, r, models.NotFoundf("image %d", id))
		return
	}
	log.Info().Int64("image_id", id).Str("path", path).Msg("images: deleted record")
	w.WriteHeader(http.StatusNoContent)
}
