package repository

import (
	"context"

	"github.com/camden-git/imageindex/models"
)

// AlbumRepositoryInterface defines the methods for album data operations
type AlbumRepositoryInterface interface {
	Create(ctx context.Context, album *models.Album) error
	GetByID(ctx context.Context, id int64) (*models.Album, error)
	List(ctx context.Context) ([]models.Album, error)
	Search(ctx context.Context, keyword string) ([]models.Album, error)
	Update(ctx context.Context, id int64, upd models.AlbumUpdate) error
	Delete(ctx context.Context, id int64) error
}

// DirectoryRepositoryInterface defines the methods for registered directory operations
type DirectoryRepositoryInterface interface {
	Create(ctx context.Context, dir *models.Directory) (bool, error)
	GetByPath(ctx context.Context, path string) (*models.Directory, error)
	List(ctx context.Context) ([]models.Directory, error)
	DeleteByPath(ctx context.Context, path string) (bool, error)
	Exists(ctx context.Context, path string) (bool, error)
	Paths(ctx context.Context) ([]string, error)
}
