package handlers

import (
	"net/http"

	"github.com/camden-git/imageindex/models"
	"github.com/camden-git/imageindex/services"
)

type DirectoryHandler struct {
	Service      *services.DirectoryService
	Tree         *services.DirectoryTree
	DefaultDepth int
}

type directoryRequest struct {
	Path string `json:"path"`
}

func (dh *DirectoryHandler) ListDirectories(w http.ResponseWriter, r *http.Request) {
	dirs, err := dh.Service.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if dirs == nil {
		dirs = []models.Directory{}
	}
	writeJSON(w, http.StatusOK, dirs)
}

func (dh *DirectoryHandler) RegisterDirectory(w http.ResponseWriter, r *http.Request) {
	var req directoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	dir, created, err := dh.Service.Register(r.Context(), req.Path)
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, dir)
}

// UnregisterDirectory takes the path from the body or, failing that, the
// "path" query parameter.
func (dh *DirectoryHandler) UnregisterDirectory(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		var req directoryRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		path = req.Path
	}
	removed, err := dh.Service.Unregister(r.Context(), path)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !removed {
		writeError(w, r, models.NotFoundf("directory %s", path))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetTree builds the directory tree under ?path= to ?depth= levels.
func (dh *DirectoryHandler) GetTree(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	depth, err := queryInt(q, "depth")
	if err != nil {
		writeError(w, r, err)
		return
	}
	maxDepth := dh.DefaultDepth
	if depth != nil {
		maxDepth = *depth
	}
	root := q.Get("path")
	if root == "" {
		writeError(w, r, models.NewValidationError("path", "is required"))
		return
	}

	node, err := dh.Tree.BuildTree(r.Context(), root, maxDepth)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}
