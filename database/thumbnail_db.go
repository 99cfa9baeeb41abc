package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/camden-git/imageindex/models"
)

// writeThumbnail applies thumb to the thumbnail row of imageID.
func writeThumbnail(ctx context.Context, q Querier, imageID int64, thumb models.ThumbnailUpdate) error {
	switch {
	case thumb.IsReplace():
		sqlStr, args, err := psql.Insert("image_thumbnails").
			Columns("image_id", "thumbnail", "updated_at").
			Values(imageID, thumb.Data(), time.Now().UnixNano()).
			Suffix("ON CONFLICT(image_id) DO UPDATE SET").
			Suffix("thumbnail = excluded.thumbnail,").
			Suffix("updated_at = excluded.updated_at").
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build SQL query for thumbnail write: %w", err)
		}
		if _, err := q.ExecContext(ctx, sqlStr, args...); err != nil {
			return fmt.Errorf("failed to store thumbnail for image %d: %w", imageID, err)
		}
	case thumb.IsClear():
		if _, err := q.ExecContext(ctx, `DELETE FROM image_thumbnails WHERE image_id = ?`, imageID); err != nil {
			return fmt.Errorf("failed to clear thumbnail for image %d: %w", imageID, err)
		}
	}
	return nil
}

// GetThumbnail returns the encoded thumbnail of image id.
func (s *Store) GetThumbnail(ctx context.Context, id int64) (data []byte, err error) {
	start := time.Now()
	defer func() { recordQuery("get_thumbnail", start, err) }()

	if err := validateID("id", id); err != nil {
		return nil, err
	}

	sqlStr, args, err := psql.Select("thumbnail").
		From("image_thumbnails").
		Where("image_id = ?", id).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for GetThumbnail: %w", err)
	}

	err = s.db.QueryRowContext(ctx, sqlStr, args...).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundf("thumbnail for image %d", id)
	}
	if err != nil {
		return nil, storageErr("get thumbnail", err)
	}
	return data, nil
}

// HasThumbnail reports whether image id has a stored thumbnail.
func (s *Store) HasThumbnail(ctx context.Context, id int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM image_thumbnails WHERE image_id = ?`, id).Scan(&n)
	if err != nil {
		return false, storageErr("has thumbnail", err)
	}
	return n > 0, nil
}
