package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/rs/zerolog/log"

	"github.com/camden-git/imageindex/models"
)

var imageColumns = []string{
	"m.id", "m.filename", "m.file_path", "m.file_size", "m.created_at", "m.modified_at",
	"m.directory_path", "m.width", "m.height", "m.format", "m.exif",
	"m.is_favorite", "m.rating", "m.added_at",
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanImage reads one row selected with imageColumns. extra receives any
// trailing columns the caller appended.
func scanImage(row rowScanner, extra ...interface{}) (*models.ImageRecord, error) {
	var (
		rec                            models.ImageRecord
		createdAt, modifiedAt, addedAt int64
		exifJSON                       sql.NullString
	)
	dest := []interface{}{
		&rec.ID, &rec.Filename, &rec.FilePath, &rec.FileSize, &createdAt, &modifiedAt,
		&rec.DirectoryPath, &rec.Width, &rec.Height, &rec.Format, &exifJSON,
		&rec.IsFavorite, &rec.Rating, &addedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	rec.CreatedAt = fromNanos(createdAt)
	rec.ModifiedAt = fromNanos(modifiedAt)
	rec.AddedAt = fromNanos(addedAt)
	if exifJSON.Valid && exifJSON.String != "" {
		if err := json.Unmarshal([]byte(exifJSON.String), &rec.Exif); err != nil {
			log.Warn().Err(err).Int64("image_id", rec.ID).Msg("database: ignoring unreadable exif column")
		}
	}
	return &rec, nil
}

func encodeExif(exif map[string]string) (interface{}, error) {
	if len(exif) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(exif)
	if err != nil {
		return nil, fmt.Errorf("failed to encode exif: %w", err)
	}
	return string(b), nil
}

func validateRating(rating int) error {
	return validateRatingField("rating", rating)
}

func validateRatingField(field string, rating int) error {
	if rating < models.MinRating || rating > models.MaxRating {
		return models.NewValidationError(field, "must be between %d and %d, got %d", models.MinRating, models.MaxRating, rating)
	}
	return nil
}

func validateID(field string, id int64) error {
	if id <= 0 {
		return models.NewValidationError(field, "must be a positive id, got %d", id)
	}
	return nil
}

// UpsertImage inserts rec or, when file_path is already indexed, overwrites its
// file-derived fields. id, added_at, is_favorite and rating of an existing row
// are kept. thumb decides what happens to the stored thumbnail. The record and
// thumbnail are written in one transaction. rec.ID is set on success.
func (s *Store) UpsertImage(ctx context.Context, rec *models.ImageRecord, thumb models.ThumbnailUpdate) (id int64, err error) {
	start := time.Now()
	defer func() { recordQuery("upsert_image", start, err) }()

	if rec == nil || rec.FilePath == "" {
		return 0, models.NewValidationError("file_path", "is required")
	}
	if err := validateRating(rec.Rating); err != nil {
		return 0, err
	}
	if rec.Filename == "" {
		rec.Filename = filepath.Base(rec.FilePath)
	}
	if rec.DirectoryPath == "" {
		rec.DirectoryPath = filepath.Dir(rec.FilePath)
	}
	if rec.AddedAt.IsZero() {
		rec.AddedAt = time.Now()
	}
	exifValue, err := encodeExif(rec.Exif)
	if err != nil {
		return 0, err
	}

	queryBuilder := psql.Insert("image_metadata").
		Columns("filename", "file_path", "file_size", "created_at", "modified_at", "directory_path",
			"width", "height", "format", "exif", "is_favorite", "rating", "added_at").
		Values(rec.Filename, rec.FilePath, rec.FileSize, toNanos(rec.CreatedAt), toNanos(rec.ModifiedAt), rec.DirectoryPath,
			rec.Width, rec.Height, rec.Format, exifValue, rec.IsFavorite, rec.Rating, toNanos(rec.AddedAt)).
		Suffix("ON CONFLICT(file_path) DO UPDATE SET").
		Suffix("filename = excluded.filename,").
		Suffix("file_size = excluded.file_size,").
		Suffix("created_at = excluded.created_at,").
		Suffix("modified_at = excluded.modified_at,").
		Suffix("directory_path = excluded.directory_path,").
		Suffix("width = excluded.width,").
		Suffix("height = excluded.height,").
		Suffix("format = excluded.format,").
		Suffix("exif = excluded.exif").
		Suffix("RETURNING id")

	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL query for UpsertImage: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, sqlStr, args...).Scan(&id); err != nil {
			return fmt.Errorf("failed to upsert image %s: %w", rec.FilePath, err)
		}
		return writeThumbnail(ctx, tx, id, thumb)
	})
	if err != nil {
		return 0, storageErr("upsert image", err)
	}
	rec.ID = id
	return id, nil
}

func (s *Store) getImage(ctx context.Context, op string, where sq.Sqlizer) (rec *models.ImageRecord, err error) {
	start := time.Now()
	defer func() { recordQuery(op, start, err) }()

	sqlStr, args, err := psql.Select(imageColumns...).
		From("image_metadata m").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for %s: %w", op, err)
	}

	rec, err = scanImage(s.db.QueryRowContext(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, storageErr(op, err)
	}
	return rec, nil
}

// GetImageByPath returns the record indexed under path, or nil if there is none.
func (s *Store) GetImageByPath(ctx context.Context, path string) (*models.ImageRecord, error) {
	return s.getImage(ctx, "get_image_by_path", sq.Eq{"m.file_path": path})
}

// GetImageByID returns the record with the given id, or nil if there is none.
func (s *Store) GetImageByID(ctx context.Context, id int64) (*models.ImageRecord, error) {
	return s.getImage(ctx, "get_image_by_id", sq.Eq{"m.id": id})
}

// DeleteImage removes the record for path and its thumbnail in one
// transaction. It reports whether a record existed.
func (s *Store) DeleteImage(ctx context.Context, path string) (existed bool, err error) {
	start := time.Now()
	defer func() { recordQuery("delete_image", start, err) }()

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM image_metadata WHERE file_path = ?`, path).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to look up image %s: %w", path, err)
		}
		if err := deleteImageByID(ctx, tx, id); err != nil {
			return err
		}
		existed = true
		return nil
	})
	if err != nil {
		return false, storageErr("delete image", err)
	}
	return existed, nil
}

func deleteImageByID(ctx context.Context, q Querier, id int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM image_thumbnails WHERE image_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete thumbnail for image %d: %w", id, err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM image_metadata WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete image %d: %w", id, err)
	}
	return nil
}

// UpdateImage applies a partial update to the user-editable fields of image id.
// The update is validated before anything is written.
func (s *Store) UpdateImage(ctx context.Context, id int64, upd models.ImageUpdate) (err error) {
	start := time.Now()
	defer func() { recordQuery("update_image", start, err) }()

	if err := validateID("id", id); err != nil {
		return err
	}
	if upd.Rating != nil {
		if err := validateRating(*upd.Rating); err != nil {
			return err
		}
	}

	if upd.IsEmpty() {
		rec, err := s.GetImageByID(ctx, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return models.NotFoundf("image %d", id)
		}
		return nil
	}

	setMap := map[string]interface{}{}
	if upd.IsFavorite != nil {
		setMap["is_favorite"] = *upd.IsFavorite
	}
	if upd.Rating != nil {
		setMap["rating"] = *upd.Rating
	}

	sqlStr, args, err := psql.Update("image_metadata").
		SetMap(setMap).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build SQL query for UpdateImage: %w", err)
	}

	result, err := s.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return storageErr("update image", fmt.Errorf("failed to update image %d: %w", id, err))
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.NotFoundf("image %d", id)
	}
	return nil
}

func (s *Store) SetFavorite(ctx context.Context, id int64, favorite bool) error {
	return s.UpdateImage(ctx, id, models.ImageUpdate{IsFavorite: &favorite})
}

func (s *Store) SetRating(ctx context.Context, id int64, rating int) error {
	return s.UpdateImage(ctx, id, models.ImageUpdate{Rating: &rating})
}

// ToggleFavorite flips the favorite flag of image id and returns the new value.
func (s *Store) ToggleFavorite(ctx context.Context, id int64) (favorite bool, err error) {
	start := time.Now()
	defer func() { recordQuery("toggle_favorite", start, err) }()

	if err := validateID("id", id); err != nil {
		return false, err
	}
	err = s.db.QueryRowContext(ctx,
		`UPDATE image_metadata SET is_favorite = 1 - is_favorite WHERE id = ? RETURNING is_favorite`, id,
	).Scan(&favorite)
	if errors.Is(err, sql.ErrNoRows) {
		return false, models.NotFoundf("image %d", id)
	}
	if err != nil {
		return false, storageErr("toggle favorite", err)
	}
	return favorite, nil
}

// GetOriginalPath returns the on-disk path of image id.
func (s *Store) GetOriginalPath(ctx context.Context, id int64) (string, error) {
	if err := validateID("id", id); err != nil {
		return "", err
	}
	var path string
	err := s.db.QueryRowContext(ctx, `SELECT file_path FROM image_metadata WHERE id = ?`, id).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", models.NotFoundf("image %d", id)
	}
	if err != nil {
		return "", storageErr("get original path", err)
	}
	return path, nil
}

// ListImagePaths returns every indexed file path, ordered by path.
func (s *Store) ListImagePaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT file_path FROM image_metadata ORDER BY file_path`)
	if err != nil {
		return nil, storageErr("list image paths", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, storageErr("list image paths", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list image paths", err)
	}
	return paths, nil
}

// PruneMissing deletes the records whose file exists reports as gone.
// Each deletion is its own transaction. It returns the number removed.
func (s *Store) PruneMissing(ctx context.Context, exists func(path string) bool) (int, error) {
	paths, err := s.ListImagePaths(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if exists(p) {
			continue
		}
		ok, err := s.DeleteImage(ctx, p)
		if err != nil {
			return removed, err
		}
		if ok {
			removed++
			log.Debug().Str("path", p).Msg("database: pruned record of missing file")
		}
	}
	return removed, nil
}
