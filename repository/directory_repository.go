package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/camden-git/imageindex/models"
)

// DirectoryRepository handles the registered scan roots
type DirectoryRepository struct {
	DB *gorm.DB
}

func NewDirectoryRepository(db *gorm.DB) *DirectoryRepository {
	return &DirectoryRepository{DB: db}
}

// Create registers dir unless its path is already registered, in which case
// dir is filled from the existing row and created is false.
func (r *DirectoryRepository) Create(ctx context.Context, dir *models.Directory) (created bool, err error) {
	if dir.CreatedAt == 0 {
		dir.CreatedAt = time.Now().Unix()
	}
	result := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "path"}}, DoNothing: true}).
		Create(dir)
	if result.Error != nil {
		return false, &models.StorageError{Op: "create directory", Err: fmt.Errorf("failed to register %s: %w", dir.Path, result.Error)}
	}
	if result.RowsAffected > 0 {
		return true, nil
	}

	existing, err := r.GetByPath(ctx, dir.Path)
	if err != nil {
		return false, err
	}
	*dir = *existing
	return false, nil
}

func (r *DirectoryRepository) GetByPath(ctx context.Context, path string) (*models.Directory, error) {
	var dir models.Directory
	err := r.DB.WithContext(ctx).Where("path = ?", path).Take(&dir).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NotFoundf("directory %s", path)
		}
		return nil, &models.StorageError{Op: "get directory", Err: err}
	}
	return &dir, nil
}

// List returns the registered directories, most recently added first
func (r *DirectoryRepository) List(ctx context.Context) ([]models.Directory, error) {
	var dirs []models.Directory
	if err := r.DB.WithContext(ctx).Order("created_at DESC, id DESC").Find(&dirs).Error; err != nil {
		return nil, &models.StorageError{Op: "list directories", Err: err}
	}
	return dirs, nil
}

func (r *DirectoryRepository) DeleteByPath(ctx context.Context, path string) (bool, error) {
	result := r.DB.WithContext(ctx).Where("path = ?", path).Delete(&models.Directory{})
	if result.Error != nil {
		return false, &models.StorageError{Op: "delete directory", Err: result.Error}
	}
	return result.RowsAffected > 0, nil
}

func (r *DirectoryRepository) Exists(ctx context.Context, path string) (bool, error) {
	var count int64
	if err := r.DB.WithContext(ctx).Model(&models.Directory{}).Where("path = ?", path).Count(&count).Error; err != nil {
		return false, &models.StorageError{Op: "directory exists", Err: err}
	}
	return count > 0, nil
}

// Paths returns every registered path, oldest registration first
func (r *DirectoryRepository) Paths(ctx context.Context) ([]string, error) {
	var paths []string
	if err := r.DB.WithContext(ctx).Model(&models.Directory{}).Order("id ASC").Pluck("path", &paths).Error; err != nil {
		return nil, &models.StorageError{Op: "list directory paths", Err: err}
	}
	return paths, nil
}
