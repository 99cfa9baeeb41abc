package services

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/camden-git/imageindex/models"
	"github.com/camden-git/imageindex/repository"
	"github.com/camden-git/imageindex/validation"
)

// DirectoryService keeps the set of root directories the scanner walks.
// Unregistering a directory leaves its image records in the index.
type DirectoryService struct {
	repo repository.DirectoryRepositoryInterface
}

func NewDirectoryService(repo repository.DirectoryRepositoryInterface) *DirectoryService {
	return &DirectoryService{repo: repo}
}

func cleanDirPath(path string) (string, error) {
	if err := validation.Var("path", path, "required,notblank"); err != nil {
		return "", err
	}
	if !filepath.IsAbs(path) {
		return "", models.NewValidationError("path", "must be an absolute path")
	}
	return filepath.Clean(path), nil
}

// Register adds path to the scanned roots. It reports false when path was
// already registered.
func (s *DirectoryService) Register(ctx context.Context, path string) (*models.Directory, bool, error) {
	path, err := cleanDirPath(path)
	if err != nil {
		return nil, false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, models.NewValidationError("path", "does not exist")
		}
		return nil, false, models.NewValidationError("path", "cannot be read: %v", err)
	}
	if !info.IsDir() {
		return nil, false, models.NewValidationError("path", "is not a directory")
	}

	dir := &models.Directory{Path: path, Name: filepath.Base(path)}
	created, err := s.repo.Create(ctx, dir)
	if err != nil {
		return nil, false, err
	}
	if created {
		log.Info().Str("path", path).Msg("directories: registered directory")
	}
	return dir, created, nil
}

func (s *DirectoryService) Unregister(ctx context.Context, path string) (bool, error) {
	path, err := cleanDirPath(path)
	if err != nil {
		return false, err
	}
	removed, err := s.repo.DeleteByPath(ctx, path)
	if err != nil {
		return false, err
	}
	if removed {
		log.Info().Str("path", path).Msg("directories: unregistered directory")
	}
	return removed, nil
}

func (s *DirectoryService) List(ctx context.Context) ([]models.Directory, error) {
	return s.repo.List(ctx)
}

func (s *DirectoryService) Exists(ctx context.Context, path string) (bool, error) {
	path, err := cleanDirPath(path)
	if err != nil {
		return false, err
	}
	return s.repo.Exists(ctx, path)
}

// Paths lists the registered roots for the scanner.
func (s *DirectoryService) Paths(ctx context.Context) ([]string, error) {
	return s.repo.Paths(ctx)
}
