package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/camden-git/imageindex/database"
	"github.com/camden-git/imageindex/models"
	"github.com/camden-git/imageindex/repository"
	"github.com/camden-git/imageindex/validation"
)

// MembershipStore is the part of the metadata store that albums need.
type MembershipStore interface {
	GetImageByID(ctx context.Context, id int64) (*models.ImageRecord, error)
	AddImagesToAlbum(ctx context.Context, albumID int64, imageIDs []int64) (int, error)
	RemoveImagesFromAlbum(ctx context.Context, albumID int64, imageIDs []int64) (int, error)
	ReorderAlbumImages(ctx context.Context, albumID int64, updates []models.SortOrderUpdate) (int, error)
	IsImageInAlbum(ctx context.Context, albumID, imageID int64) (bool, error)
	AlbumImageCount(ctx context.Context, albumID int64) (int64, error)
	QueryImages(ctx context.Context, filter database.ImageFilter, sort database.Sort, page database.Page) ([]models.ImageRecord, error)
	CountImages(ctx context.Context, filter database.ImageFilter) (int64, error)
}

// CreateAlbumInput is the payload for creating an album.
type CreateAlbumInput struct {
	Name         string `json:"name" validate:"required,notblank,max=100"`
	Description  string `json:"description" validate:"max=1000"`
	CoverImageID *int64 `json:"cover_image_id,omitempty" validate:"omitempty,gt=0"`
}

// AlbumImageList is one page of album contents plus the total member count.
type AlbumImageList struct {
	Images []models.ImageRecord `json:"images"`
	Total  int64                `json:"total"`
}

// defaultAlbumSort lists members in their curated order.
var defaultAlbumSort = database.Sort{Field: database.SortAlbumOrder, Direction: database.SortAsc}

// AlbumService is the album index: album records through the repository,
// membership through the metadata store.
type AlbumService struct {
	repo  repository.AlbumRepositoryInterface
	store MembershipStore
}

func NewAlbumService(repo repository.AlbumRepositoryInterface, store MembershipStore) *AlbumService {
	return &AlbumService{repo: repo, store: store}
}

func validateAlbumID(id int64) error {
	if id <= 0 {
		return models.NewValidationError("album_id", "must be a positive integer")
	}
	return nil
}

// checkCoverImage reports ErrNotFound when the cover image is not indexed.
func (s *AlbumService) checkCoverImage(ctx context.Context, imageID int64) error {
	img, err := s.store.GetImageByID(ctx, imageID)
	if err != nil {
		return err
	}
	if img == nil {
		return models.NotFoundf("image %d", imageID)
	}
	return nil
}

func (s *AlbumService) CreateAlbum(ctx context.Context, in CreateAlbumInput) (*models.Album, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	if in.CoverImageID != nil {
		if err := s.checkCoverImage(ctx, *in.CoverImageID); err != nil {
			return nil, err
		}
	}

	album := &models.Album{Name: in.Name, Description: in.Description, CoverImageID: in.CoverImageID}
	if err := s.repo.Create(ctx, album); err != nil {
		return nil, err
	}
	log.Info().Int64("album_id", album.ID).Str("name", album.Name).Msg("albums: created album")
	return album, nil
}

func (s *AlbumService) GetAlbum(ctx context.Context, id int64) (*models.Album, error) {
	if err := validateAlbumID(id); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

func (s *AlbumService) ListAlbums(ctx context.Context) ([]models.Album, error) {
	return s.repo.List(ctx)
}

// SearchAlbums matches keyword against album names. A blank keyword lists
// every album.
func (s *AlbumService) SearchAlbums(ctx context.Context, keyword string) ([]models.Album, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return s.repo.List(ctx)
	}
	if err := validation.Var("q", keyword, "max=100"); err != nil {
		return nil, err
	}
	return s.repo.Search(ctx, keyword)
}

// UpdateAlbum applies a partial update and returns the updated album.
func (s *AlbumService) UpdateAlbum(ctx context.Context, id int64, upd models.AlbumUpdate) (*models.Album, error) {
	if err := validateAlbumID(id); err != nil {
		return nil, err
	}
	if upd.IsEmpty() {
		return nil, models.NewValidationError("", "no fields to update")
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if err := validation.Var("name", name, "notblank"); err != nil {
			return nil, err
		}
		upd.Name = &name
	}
	if err := validation.Struct(upd); err != nil {
		return nil, err
	}
	if upd.ClearCover && upd.CoverImageID != nil {
		return nil, models.NewValidationError("cover_image_id", "cannot be set together with clear_cover")
	}
	if upd.CoverImageID != nil {
		if err := s.checkCoverImage(ctx, *upd.CoverImageID); err != nil {
			return nil, err
		}
	}

	if err := s.repo.Update(ctx, id, upd); err != nil {
		return nil, err
	}
	return s.repo.GetByID(ctx, id)
}

// DeleteAlbum removes the album and its memberships. Images are untouched.
func (s *AlbumService) DeleteAlbum(ctx context.Context, id int64) error {
	if err := validateAlbumID(id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	log.Info().Int64("album_id", id).Msg("albums: deleted album")
	return nil
}

// AddImages appends imageIDs to the album and returns how many were not
// already members.
func (s *AlbumService) AddImages(ctx context.Context, albumID int64, imageIDs []int64) (int, error) {
	if err := validateAlbumID(albumID); err != nil {
		return 0, err
	}
	if err := validation.Var("image_ids", imageIDs, "required,min=1,dive,gt=0"); err != nil {
		return 0, err
	}
	return s.store.AddImagesToAlbum(ctx, albumID, imageIDs)
}

func (s *AlbumService) RemoveImages(ctx context.Context, albumID int64, imageIDs []int64) (int, error) {
	if err := validateAlbumID(albumID); err != nil {
		return 0, err
	}
	if err := validation.Var("image_ids", imageIDs, "required,min=1,dive,gt=0"); err != nil {
		return 0, err
	}
	return s.store.RemoveImagesFromAlbum(ctx, albumID, imageIDs)
}

// Reorder assigns new sort positions. The whole batch is validated before
// anything is written.
func (s *AlbumService) Reorder(ctx context.Context, albumID int64, updates []models.SortOrderUpdate) (int, error) {
	if err := validateAlbumID(albumID); err != nil {
		return 0, err
	}
	if len(updates) == 0 {
		return 0, models.NewValidationError("updates", "is required")
	}
	for _, u := range updates {
		if err := validation.Struct(u); err != nil {
			return 0, err
		}
	}
	return s.store.ReorderAlbumImages(ctx, albumID, updates)
}

// ListAlbumImages returns one page of the album's images. Zero sort fields
// fall back to the curated order, ascending.
func (s *AlbumService) ListAlbumImages(ctx context.Context, albumID int64, sort database.Sort, page database.Page) (*AlbumImageList, error) {
	if _, err := s.GetAlbum(ctx, albumID); err != nil {
		return nil, err
	}
	sort = sort.Or(defaultAlbumSort)

	filter := database.ImageFilter{AlbumID: &albumID}
	images, err := s.store.QueryImages(ctx, filter, sort, page)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountImages(ctx, filter)
	if err != nil {
		return nil, err
	}
	if images == nil {
		images = []models.ImageRecord{}
	}
	return &AlbumImageList{Images: images, Total: total}, nil
}

func (s *AlbumService) AlbumImageCount(ctx context.Context, albumID int64) (int64, error) {
	if err := validateAlbumID(albumID); err != nil {
		return 0, err
	}
	return s.store.AlbumImageCount(ctx, albumID)
}

func (s *AlbumService) IsImageInAlbum(ctx context.Context, albumID, imageID int64) (bool, error) {
	if err := validateAlbumID(albumID); err != nil {
		return false, err
	}
	return s.store.IsImageInAlbum(ctx, albumID, imageID)
}
