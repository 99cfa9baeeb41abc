package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/camden-git/imageindex/models"
)

const albumWithCount = "albums.*, (SELECT COUNT(*) FROM album_images ai WHERE ai.album_id = albums.id) AS image_count"

// AlbumRepository handles database operations for Album entities
type AlbumRepository struct {
	DB *gorm.DB
}

// NewAlbumRepository creates a new instance of AlbumRepository
func NewAlbumRepository(db *gorm.DB) *AlbumRepository {
	return &AlbumRepository{DB: db}
}

func (r *AlbumRepository) withCount(ctx context.Context) *gorm.DB {
	return r.DB.WithContext(ctx).Model(&models.Album{}).Select(albumWithCount)
}

// Create creates a new album record in the database
func (r *AlbumRepository) Create(ctx context.Context, album *models.Album) error {
	now := time.Now().Unix()
	if album.CreatedAt == 0 {
		album.CreatedAt = now
	}
	if album.UpdatedAt == 0 {
		album.UpdatedAt = now
	}

	if err := r.DB.WithContext(ctx).Create(album).Error; err != nil {
		return &models.StorageError{Op: "create album", Err: fmt.Errorf("failed to create album %s: %w", album.Name, err)}
	}
	return nil
}

// GetByID retrieves an album and its image count
func (r *AlbumRepository) GetByID(ctx context.Context, id int64) (*models.Album, error) {
	var album models.Album
	err := r.withCount(ctx).Where("albums.id = ?", id).Take(&album).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NotFoundf("album %d", id)
		}
		return nil, &models.StorageError{Op: "get album", Err: fmt.Errorf("failed to get album by ID %d: %w", id, err)}
	}
	return &album, nil
}

// List retrieves all albums, newest first
func (r *AlbumRepository) List(ctx context.Context) ([]models.Album, error) {
	var albums []models.Album
	err := r.withCount(ctx).Order("albums.created_at DESC, albums.id DESC").Find(&albums).Error
	if err != nil {
		return nil, &models.StorageError{Op: "list albums", Err: err}
	}
	return albums, nil
}

// Search lists albums whose name contains keyword, case-insensitively
func (r *AlbumRepository) Search(ctx context.Context, keyword string) ([]models.Album, error) {
	var albums []models.Album
	pattern := "%" + escapeLike(keyword) + "%"
	err := r.withCount(ctx).
		Where(`albums.name LIKE ? ESCAPE '\'`, pattern).
		Order("albums.name ASC, albums.id ASC").
		Find(&albums).Error
	if err != nil {
		return nil, &models.StorageError{Op: "search albums", Err: err}
	}
	return albums, nil
}

// Update applies a partial update; nil fields are left untouched
func (r *AlbumRepository) Update(ctx context.Context, id int64, upd models.AlbumUpdate) error {
	updates := map[string]interface{}{
		"updated_at": time.Now().Unix(),
	}
	if upd.Name != nil {
		updates["name"] = *upd.Name
	}
	if upd.Description != nil {
		updates["description"] = *upd.Description
	}
	if upd.ClearCover {
		updates["cover_image_id"] = gorm.Expr("NULL")
	} else if upd.CoverImageID != nil {
		updates["cover_image_id"] = *upd.CoverImageID
	}

	result := r.DB.WithContext(ctx).Model(&models.Album{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return &models.StorageError{Op: "update album", Err: fmt.Errorf("failed to update album ID %d: %w", id, result.Error)}
	}
	if result.RowsAffected == 0 {
		return models.NotFoundf("album %d", id)
	}
	return nil
}

// Delete removes an album; its memberships go with it, its images stay
func (r *AlbumRepository) Delete(ctx context.Context, id int64) error {
	result := r.DB.WithContext(ctx).Delete(&models.Album{}, id)
	if result.Error != nil {
		return &models.StorageError{Op: "delete album", Err: fmt.Errorf("failed to delete album ID %d: %w", id, result.Error)}
	}
	if result.RowsAffected == 0 {
		return models.NotFoundf("album %d", id)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
