package handlers

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/imageindex/database"
	"github.com/camden-git/imageindex/models"
)

const maxPageLimit = 1000

// pathID reads a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, models.NewValidationError(name, "must be a positive integer, got %q", raw)
	}
	return id, nil
}

func queryString(q url.Values, key string) *string {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return nil
	}
	return &v
}

func queryInt(q url.Values, key string) (*int, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, models.NewValidationError(key, "must be an integer, got %q", raw)
	}
	return &v, nil
}

func queryInt64(q url.Values, key string) (*int64, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, models.NewValidationError(key, "must be an integer, got %q", raw)
	}
	return &v, nil
}

func queryBool(q url.Values, key string) (*bool, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, models.NewValidationError(key, "must be true or false, got %q", raw)
	}
	return &v, nil
}

// parseImageFilter reads the image filter query parameters.
func parseImageFilter(q url.Values) (database.ImageFilter, error) {
	var (
		f   database.ImageFilter
		err error
	)
	f.Directory = queryString(q, "directory")
	f.DirectoryTree = queryString(q, "directory_tree")
	f.Format = queryString(q, "format")
	f.Search = queryString(q, "search")
	if f.Favorite, err = queryBool(q, "favorite"); err != nil {
		return f, err
	}
	if f.AlbumID, err = queryInt64(q, "album_id"); err != nil {
		return f, err
	}
	if f.MinRating, err = queryInt(q, "min_rating"); err != nil {
		return f, err
	}
	if f.MaxRating, err = queryInt(q, "max_rating"); err != nil {
		return f, err
	}
	return f, nil
}

// parseSort reads sort_by and order. Absent parts stay zero so the callee
// fills them from its own default.
func parseSort(q url.Values) (database.Sort, error) {
	return database.ParseSort(q.Get("sort_by"), q.Get("order"))
}

func parsePage(q url.Values) (database.Page, error) {
	var p database.Page
	limit, err := queryInt(q, "limit")
	if err != nil {
		return p, err
	}
	offset, err := queryInt(q, "offset")
	if err != nil {
		return p, err
	}
	if limit != nil {
		if *limit < 0 || *limit > maxPageLimit {
			return p, models.NewValidationError("limit", "must be between 0 and %d", maxPageLimit)
		}
		p.Limit = *limit
	}
	if offset != nil {
		p.Offset = *offset
	}
	return p, nil
}
