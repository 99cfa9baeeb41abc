package handlers

import (
	"net/http"

	"github.com/camden-git/imageindex/models"
	"github.com/camden-git/imageindex/services"
)

type AlbumHandler struct {
	Service *services.AlbumService
}

type imageIDsRequest struct {
	ImageIDs []int64 `json:"image_ids"`
}

// ListAlbums lists every album, or only those matching q.
func (ah *AlbumHandler) ListAlbums(w http.ResponseWriter, r *http.Request) {
	albums, err := ah.Service.SearchAlbums(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if albums == nil {
		albums = []models.Album{}
	}
	writeJSON(w, http.StatusOK, albums)
}

func (ah *AlbumHandler) CreateAlbum(w http.ResponseWriter, r *http.Request) {
	var req services.CreateAlbumInput
	if !decodeJSON(w, r, &req) {
		return
	}
	album, err := ah.Service.CreateAlbum(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, album)
}

func (ah *AlbumHandler) GetAlbum(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	album, err := ah.Service.GetAlbum(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, album)
}

func (ah *AlbumHandler) UpdateAlbum(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req models.AlbumUpdate
	if !decodeJSON(w, r, &req) {
		return
	}
	album, err := ah.Service.UpdateAlbum(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, album)
}

func (ah *AlbumHandler) DeleteAlbum(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := ah.Service.DeleteAlbum(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ah *AlbumHandler) ListAlbumImages(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
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
	list, err := ah.Service.ListAlbumImages(r.Context(), id, sort, page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (ah *AlbumHandler) AddImages(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req imageIDsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	added, err := ah.Service.AddImages(r.Context(), id, req.ImageIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"added": added})
}

func (ah *AlbumHandler) RemoveImages(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req imageIDsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	removed, err := ah.Service.RemoveImages(r.Context(), id, req.ImageIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (ah *AlbumHandler) ReorderImages(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Updates []models.SortOrderUpdate `json:"updates"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := ah.Service.Reorder(r.Context(), id, req.Updates)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}
