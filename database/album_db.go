package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/camden-git/imageindex/models"
)

// dedupeIDs drops repeated ids, keeping first-seen order.
func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func validateIDs(field string, ids []int64) error {
	for _, id := range ids {
		if err := validateID(field, id); err != nil {
			return err
		}
	}
	return nil
}

func requireAlbum(ctx context.Context, q Querier, albumID int64) error {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM albums WHERE id = ?`, albumID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.NotFoundf("album %d", albumID)
	}
	if err != nil {
		return fmt.Errorf("failed to look up album %d: %w", albumID, err)
	}
	return nil
}

// missingImages returns the ids in ids with no image_metadata row.
func missingImages(ctx context.Context, q Querier, ids []int64) ([]int64, error) {
	sqlStr, args, err := psql.Select("id").From("image_metadata").Where(sq.Eq{"id": ids}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL query for image lookup: %w", err)
	}
	rows, err := q.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to look up images: %w", err)
	}
	defer rows.Close()

	found := make(map[int64]struct{}, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan image id: %w", err)
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []int64
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func touchAlbum(ctx context.Context, q Querier, albumID int64) error {
	_, err := q.ExecContext(ctx, `UPDATE albums SET updated_at = ? WHERE id = ?`, time.Now().Unix(), albumID)
	if err != nil {
		return fmt.Errorf("failed to touch album %d: %w", albumID, err)
	}
	return nil
}

// AddImagesToAlbum appends the images to the end of the album. Ids already in
// the album are skipped. It returns how many memberships were created.
func (s *Store) AddImagesToAlbum(ctx context.Context, albumID int64, imageIDs []int64) (added int, err error) {
	start := time.Now()
	defer func() { recordQuery("add_album_images", start, err) }()

	if err := validateID("album_id", albumID); err != nil {
		return 0, err
	}
	if err := validateIDs("image_ids", imageIDs); err != nil {
		return 0, err
	}
	ids := dedupeIDs(imageIDs)
	if len(ids) == 0 {
		return 0, nil
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireAlbum(ctx, tx, albumID); err != nil {
			return err
		}
		missing, err := missingImages(ctx, tx, ids)
		if err != nil {
			return err
		}
		if len(missing) > 0 {
			return models.NotFoundf("images %v", missing)
		}

		var maxOrder int
		err = tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(sort_order), 0) FROM album_images WHERE album_id = ?`, albumID,
		).Scan(&maxOrder)
		if err != nil {
			return fmt.Errorf("failed to read max sort order of album %d: %w", albumID, err)
		}

		now := time.Now().UnixNano()
		for _, imageID := range ids {
			sqlStr, args, err := psql.Insert("album_images").
				Columns("album_id", "image_id", "added_at", "sort_order").
				Values(albumID, imageID, now, maxOrder+1).
				Suffix("ON CONFLICT(album_id, image_id) DO NOTHING").
				ToSql()
			if err != nil {
				return fmt.Errorf("failed to build SQL for AddImagesToAlbum: %w", err)
			}
			result, err := tx.ExecContext(ctx, sqlStr, args...)
			if err != nil {
				return fmt.Errorf("failed to add image %d to album %d: %w", imageID, albumID, err)
			}
			if n, _ := result.RowsAffected(); n > 0 {
				added++
				maxOrder++
			}
		}
		if added > 0 {
			return touchAlbum(ctx, tx, albumID)
		}
		return nil
	})
	if err != nil {
		added = 0
		if errors.Is(err, models.ErrNotFound) {
			return 0, err
		}
		return 0, storageErr("add album images", err)
	}
	return added, nil
}

// RemoveImagesFromAlbum deletes the memberships of imageIDs in the album and
// returns how many existed.
func (s *Store) RemoveImagesFromAlbum(ctx context.Context, albumID int64, imageIDs []int64) (removed int, err error) {
	start := time.Now()
	defer func() { recordQuery("remove_album_images", start, err) }()

	if err := validateID("album_id", albumID); err != nil {
		return 0, err
	}
	if err := validateIDs("image_ids", imageIDs); err != nil {
		return 0, err
	}
	ids := dedupeIDs(imageIDs)
	if len(ids) == 0 {
		return 0, nil
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireAlbum(ctx, tx, albumID); err != nil {
			return err
		}
		sqlStr, args, err := psql.Delete("album_images").
			Where(sq.Eq{"album_id": albumID, "image_id": ids}).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build SQL for RemoveImagesFromAlbum: %w", err)
		}
		result, err := tx.ExecContext(ctx, sqlStr, args...)
		if err != nil {
			return fmt.Errorf("failed to remove images from album %d: %w", albumID, err)
		}
		n, _ := result.RowsAffected()
		removed = int(n)
		if removed > 0 {
			return touchAlbum(ctx, tx, albumID)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return 0, err
		}
		return 0, storageErr("remove album images", err)
	}
	return removed, nil
}

func validateReorder(updates []models.SortOrderUpdate) error {
	seen := make(map[int64]struct{}, len(updates))
	for i, u := range updates {
		if u.ImageID <= 0 {
			return models.NewValidationError(fmt.Sprintf("order[%d].image_id", i), "must be a positive id, got %d", u.ImageID)
		}
		if u.SortOrder < 0 {
			return models.NewValidationError(fmt.Sprintf("order[%d].sort_order", i), "must not be negative, got %d", u.SortOrder)
		}
		if _, dup := seen[u.ImageID]; dup {
			return models.NewValidationError(fmt.Sprintf("order[%d].image_id", i), "image %d appears more than once", u.ImageID)
		}
		seen[u.ImageID] = struct{}{}
	}
	return nil
}

// ReorderAlbumImages assigns new sort orders to members of the album. The whole
// batch is validated before any write. Entries for images that are not members
// are ignored; the number of memberships updated is returned.
func (s *Store) ReorderAlbumImages(ctx context.Context, albumID int64, updates []models.SortOrderUpdate) (updated int, err error) {
	start := time.Now()
	defer func() { recordQuery("reorder_album_images", start, err) }()

	if err := validateID("album_id", albumID); err != nil {
		return 0, err
	}
	if err := validateReorder(updates); err != nil {
		return 0, err
	}
	if len(updates) == 0 {
		return 0, nil
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := requireAlbum(ctx, tx, albumID); err != nil {
			return err
		}
		for _, u := range updates {
			sqlStr, args, err := psql.Update("album_images").
				Set("sort_order", u.SortOrder).
				Where(sq.Eq{"album_id": albumID, "image_id": u.ImageID}).
				ToSql()
			if err != nil {
				return fmt.Errorf("failed to build SQL for ReorderAlbumImages: %w", err)
			}
			result, err := tx.ExecContext(ctx, sqlStr, args...)
			if err != nil {
				return fmt.Errorf("failed to reorder image %d in album %d: %w", u.ImageID, albumID, err)
			}
			n, _ := result.RowsAffected()
			updated += int(n)
		}
		return touchAlbum(ctx, tx, albumID)
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return 0, err
		}
		return 0, storageErr("reorder album images", err)
	}
	return updated, nil
}

// IsImageInAlbum reports whether the pair is a membership.
func (s *Store) IsImageInAlbum(ctx context.Context, albumID, imageID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM album_images WHERE album_id = ? AND image_id = ?`, albumID, imageID,
	).Scan(&n)
	if err != nil {
		return false, storageErr("is image in album", err)
	}
	return n > 0, nil
}

// AlbumImageCount returns the number of members of the album.
func (s *Store) AlbumImageCount(ctx context.Context, albumID int64) (int64, error) {
	albumFilter := albumID
	return s.CountImages(ctx, ImageFilter{AlbumID: &albumFilter})
}
