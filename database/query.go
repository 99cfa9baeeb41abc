package database

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	sq "github.com/Masterminds/squirrel"

	"github.com/camden-git/imageindex/models"
)

const maxSearchLength = 100

// ImageFilter narrows a query. Nil fields impose no constraint; set fields are ANDed.
type ImageFilter struct {
	Directory     *string // exact directory_path
	DirectoryTree *string // directory_path equal to or below this path
	Favorite      *bool
	AlbumID       *int64
	MinRating     *int // inclusive
	MaxRating     *int // inclusive
	Format        *string
	Search        *string // filename substring
}

// Page limits a query. Limit <= 0 returns every matching row.
type Page struct {
	Limit  int
	Offset int
}

func (f ImageFilter) validate() error {
	if f.AlbumID != nil {
		if err := validateID("album_id", *f.AlbumID); err != nil {
			return err
		}
	}
	if f.MinRating != nil {
		if err := validateRatingField("min_rating", *f.MinRating); err != nil {
			return err
		}
	}
	if f.MaxRating != nil {
		if err := validateRatingField("max_rating", *f.MaxRating); err != nil {
			return err
		}
	}
	if f.MinRating != nil && f.MaxRating != nil && *f.MinRating > *f.MaxRating {
		return models.NewValidationError("min_rating", "must not exceed max_rating")
	}
	if f.Search != nil && utf8.RuneCountInString(*f.Search) > maxSearchLength {
		return models.NewValidationError("search", "must be at most %d characters", maxSearchLength)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (f ImageFilter) apply(b sq.SelectBuilder) sq.SelectBuilder {
	if f.AlbumID != nil {
		b = b.Join("album_images ai ON ai.image_id = m.id").Where(sq.Eq{"ai.album_id": *f.AlbumID})
	}
	if f.Directory != nil {
		b = b.Where(sq.Eq{"m.directory_path": *f.Directory})
	}
	if f.DirectoryTree != nil {
		root := filepath.Clean(*f.DirectoryTree)
		prefix := strings.TrimSuffix(root, string(filepath.Separator)) + string(filepath.Separator)
		b = b.Where(sq.Or{
			sq.Eq{"m.directory_path": root},
			sq.Expr("substr(m.directory_path, 1, ?) = ?", utf8.RuneCountInString(prefix), prefix),
		})
	}
	if f.Favorite != nil {
		b = b.Where(sq.Eq{"m.is_favorite": *f.Favorite})
	}
	if f.MinRating != nil {
		b = b.Where(sq.GtOrEq{"m.rating": *f.MinRating})
	}
	if f.MaxRating != nil {
		b = b.Where(sq.LtOrEq{"m.rating": *f.MaxRating})
	}
	if f.Format != nil {
		b = b.Where(sq.Eq{"m.format": strings.ToUpper(strings.TrimSpace(*f.Format))})
	}
	if f.Search != nil && *f.Search != "" {
		b = b.Where(`m.filename LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(*f.Search)+"%")
	}
	return b
}

// QueryImages returns the images matching filter, ordered by sort and limited
// by page. Album-only sort fields require filter.AlbumID; records returned for
// an album query carry their SortOrder and AlbumAddedAt.
func (s *Store) QueryImages(ctx context.Context, filter ImageFilter, sort Sort, page Page) (images []models.ImageRecord, err error) {
	start := time.Now()
	defer func() { recordQuery("query_images", start, err) }()

	if err := filter.validate(); err != nil {
		return nil, err
	}
	if page.Offset < 0 {
		return nil, models.NewValidationError("offset", "must not be negative")
	}
	albumActive := filter.AlbumID != nil
	orderBy, err := sort.orderBy(albumActive)
	if err != nil {
		return nil, err
	}

	columns := imageColumns
	if albumActive {
		columns = append(append([]string{}, imageColumns...), "ai.sort_order", "ai.added_at")
	}

	queryBuilder := filter.apply(psql.Select(columns...).From("image_metadata m")).OrderBy(orderBy)
	switch {
	case page.Limit > 0:
		queryBuilder = queryBuilder.Limit(uint64(page.Limit)).Offset(uint64(page.Offset))
	case page.Offset > 0:
		// sqlite only accepts OFFSET after a LIMIT
		queryBuilder = queryBuilder.Suffix("LIMIT -1 OFFSET ?", page.Offset)
	}

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for QueryImages: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, storageErr("query images", err)
	}
	defer rows.Close()

	images = []models.ImageRecord{}
	for rows.Next() {
		var (
			rec          *models.ImageRecord
			sortOrder    int
			albumAddedAt int64
		)
		if albumActive {
			rec, err = scanImage(rows, &sortOrder, &albumAddedAt)
		} else {
			rec, err = scanImage(rows)
		}
		if err != nil {
			return nil, storageErr("scan image row", err)
		}
		if albumActive {
			t := fromNanos(albumAddedAt)
			rec.SortOrder = &sortOrder
			rec.AlbumAddedAt = &t
		}
		images = append(images, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate image rows", err)
	}
	return images, nil
}

// CountImages returns how many images match filter.
func (s *Store) CountImages(ctx context.Context, filter ImageFilter) (count int64, err error) {
	start := time.Now()
	defer func() { recordQuery("count_images", start, err) }()

	if err := filter.validate(); err != nil {
		return 0, err
	}

	sqlStr, args, err := filter.apply(psql.Select("COUNT(*)").From("image_metadata m")).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL query for CountImages: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, storageErr("count images", err)
	}
	return count, nil
}

// FavoriteImages lists favorites, most recently modified first.
func (s *Store) FavoriteImages(ctx context.Context, page Page) ([]models.ImageRecord, error) {
	fav := true
	return s.QueryImages(ctx, ImageFilter{Favorite: &fav}, Sort{Field: SortModifiedAt, Direction: SortDesc}, page)
}

// DirectoryImages lists the images directly inside dir.
func (s *Store) DirectoryImages(ctx context.Context, dir string, sort Sort, page Page) ([]models.ImageRecord, error) {
	return s.QueryImages(ctx, ImageFilter{Directory: &dir}, sort, page)
}
