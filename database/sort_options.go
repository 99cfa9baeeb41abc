package database

import (
	"fmt"
	"strings"

	"github.com/camden-git/imageindex/models"
)

// SortField is a sortable image attribute. Only the constants below are valid.
type SortField string

const (
	SortModifiedAt SortField = "modified_at"
	SortCreatedAt  SortField = "created_at"
	SortFilename   SortField = "filename"
	SortFileSize   SortField = "file_size"
	SortRating     SortField = "rating"
	SortAddedAt    SortField = "added_at"

	// album-only; valid when the filter selects an album
	SortAlbumOrder   SortField = "sort_order"
	SortAlbumAddedAt SortField = "album_added_at"
)

// sortColumns maps each field to the column expression used in ORDER BY.
// Caller input never reaches the SQL text except through this table.
var sortColumns = map[SortField]string{
	SortModifiedAt: "m.modified_at",
	SortCreatedAt:  "m.created_at",
	SortFilename:   "m.filename COLLATE NOCASE",
	SortFileSize:   "m.file_size",
	SortRating:     "m.rating",
	SortAddedAt:    "m.added_at",
}

var albumSortColumns = map[SortField]string{
	SortAlbumOrder:   "ai.sort_order",
	SortAlbumAddedAt: "ai.added_at",
}

// AlbumOnly reports whether f needs an album filter.
func (f SortField) AlbumOnly() bool {
	_, ok := albumSortColumns[f]
	return ok
}

// ParseSortField maps s onto the whitelist. An empty string selects the default field.
func ParseSortField(s string) (SortField, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return DefaultSort.Field, nil
	}
	f := SortField(s)
	if _, ok := sortColumns[f]; ok {
		return f, nil
	}
	if f.AlbumOnly() {
		return f, nil
	}
	return "", models.NewValidationError("sort_by", "unknown sort field %q", s)
}

// SortDirection is either ascending or descending.
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// ParseSortDirection validates s. An empty string selects the default direction.
func ParseSortDirection(s string) (SortDirection, error) {
	switch SortDirection(strings.TrimSpace(strings.ToLower(s))) {
	case "":
		return DefaultSort.Direction, nil
	case SortAsc:
		return SortAsc, nil
	case SortDesc:
		return SortDesc, nil
	default:
		return "", models.NewValidationError("order", "must be %q or %q, got %q", SortAsc, SortDesc, s)
	}
}

func (d SortDirection) sql() string {
	if d == SortAsc {
		return "ASC"
	}
	return "DESC"
}

// Sort selects the ordering of a query.
type Sort struct {
	Field     SortField
	Direction SortDirection
}

// DefaultSort is used for every zero field of a Sort.
var DefaultSort = Sort{Field: SortModifiedAt, Direction: SortDesc}

// ParseSort validates a caller-supplied field and direction. A blank part is
// left zero so the caller's own default can fill it in with Or.
func ParseSort(field, direction string) (Sort, error) {
	var out Sort
	if strings.TrimSpace(field) != "" {
		f, err := ParseSortField(field)
		if err != nil {
			return Sort{}, err
		}
		out.Field = f
	}
	if strings.TrimSpace(direction) != "" {
		d, err := ParseSortDirection(direction)
		if err != nil {
			return Sort{}, err
		}
		out.Direction = d
	}
	return out, nil
}

// Or fills each zero field of s from def.
func (s Sort) Or(def Sort) Sort {
	if s.Field == "" {
		s.Field = def.Field
	}
	if s.Direction == "" {
		s.Direction = def.Direction
	}
	return s
}

// orderBy resolves the ORDER BY clause. id breaks ties so paging is stable.
func (s Sort) orderBy(albumActive bool) (string, error) {
	s = s.Or(DefaultSort)
	field, dir := s.Field, s.Direction
	if dir != SortAsc && dir != SortDesc {
		return "", models.NewValidationError("order", "must be %q or %q, got %q", SortAsc, SortDesc, dir)
	}

	col, ok := sortColumns[field]
	if !ok {
		albumCol, isAlbum := albumSortColumns[field]
		if !isAlbum {
			return "", models.NewValidationError("sort_by", "unknown sort field %q", field)
		}
		if !albumActive {
			return "", models.NewValidationError("sort_by", "%q requires an album filter", field)
		}
		col = albumCol
	}
	return fmt.Sprintf("%s %s, m.id %s", col, dir.sql(), dir.sql()), nil
}
