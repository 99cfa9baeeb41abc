package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/camden-git/imageindex/database"
	"github.com/camden-git/imageindex/models"
	"github.com/camden-git/imageindex/repository"
)

func newTestStore(t *testing.T) *database.Store {
	t.Helper()
	store, err := database.Open(context.Background(), filepath.Join(t.TempDir(), "services.db"))
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newAlbumService(t *testing.T) (*AlbumService, *database.Store) {
	t.Helper()
	store := newTestStore(t)
	gdb, err := database.OpenGorm(store.DB())
	if err != nil {
		t.Fatalf("OpenGorm() error = %v", err)
	}
	return NewAlbumService(repository.NewAlbumRepository(gdb), store), store
}

func newDirectoryService(t *testing.T) *DirectoryService {
	t.Helper()
	store := newTestStore(t)
	gdb, err := database.OpenGorm(store.DB())
	if err != nil {
		t.Fatalf("OpenGorm() error = %v", err)
	}
	return NewDirectoryService(repository.NewDirectoryRepository(gdb))
}

func seedImages(t *testing.T, store *database.Store, paths ...string) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(paths))
	for _, p := range paths {
		id, err := store.UpsertImage(context.Background(), &models.ImageRecord{FilePath: p, Format: "PNG"}, models.KeepThumbnail())
		if err != nil {
			t.Fatalf("UpsertImage(%s) error = %v", p, err)
		}
		ids = append(ids, id)
	}
	return ids
}
