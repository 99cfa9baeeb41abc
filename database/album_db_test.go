package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/camden-git/imageindex/models"
)

func seedImages(t *testing.T, s *Store, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		rec := testRecord(fmt.Sprintf("/photos/trip/%02d.jpg", i), 1, time.Unix(1_700_000_000, 0))
		ids = append(ids, mustUpsert(t, s, rec, models.KeepThumbnail()))
	}
	return ids
}

func TestAddImagesToAlbumTwice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ids := seedImages(t, s, 1)
	albumID := createAlbum(t, s, "Trip")

	added, err := s.AddImagesToAlbum(ctx, albumID, []int64{ids[0]})
	if err != nil || added != 1 {
		t.Fatalf("first AddImagesToAlbum() = %d, %v; want 1, nil", added, err)
	}
	added, err = s.AddImagesToAlbum(ctx, albumID, []int64{ids[0]})
	if err != nil || added != 0 {
		t.Fatalf("second AddImagesToAlbum() = %d, %v; want 0, nil", added, err)
	}

	var rows int
	s.DB().QueryRow(`SELECT COUNT(*) FROM album_images WHERE album_id = ? AND image_id = ?`, albumID, ids[0]).Scan(&rows)
	if rows != 1 {
		t.Errorf("membership rows = %d, want 1", rows)
	}
}

func TestAddImagesDedupesAndAppends(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ids := seedImages(t, s, 3)
	albumID := createAlbum(t, s, "Trip")

	added, err := s.AddImagesToAlbum(ctx, albumID, []int64{ids[0], ids[0], ids[1]})
	if err != nil || added != 2 {
		t.Fatalf("AddImagesToAlbum() = %d, %v; want 2, nil", added, err)
	}
	added, err = s.AddImagesToAlbum(ctx, albumID, []int64{ids[1], ids[2]})
	if err != nil || added != 1 {
		t.Fatalf("AddImagesToAlbum() = %d, %v; want 1, nil", added, err)
	}

	images, err := s.QueryImages(ctx, ImageFilter{AlbumID: &albumID}, Sort{Field: SortAlbumOrder, Direction: SortAsc}, Page{})
	if err != nil {
		t.Fatalf("QueryImages() error = %v", err)
	}
	for i, img := range images {
		if img.ID != ids[i] || img.SortOrder == nil || *img.SortOrder != i+1 {
			t.Errorf("position %d = id %d order %v, want id %d order %d", i, img.ID, img.SortOrder, ids[i], i+1)
		}
	}
}

func TestAddImagesUnknownReferences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ids := seedImages(t, s, 1)
	albumID := createAlbum(t, s, "Trip")

	if _, err := s.AddImagesToAlbum(ctx, 999, ids); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown album error = %v, want ErrNotFound", err)
	}
	if _, err := s.AddImagesToAlbum(ctx, albumID, []int64{ids[0], 999}); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown image error = %v, want ErrNotFound", err)
	}
	if n, _ := s.AlbumImageCount(ctx, albumID); n != 0 {
		t.Errorf("failed add left %d memberships, want 0", n)
	}
	if _, err := s.AddImagesToAlbum(ctx, albumID, []int64{-3}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("negative id error = %v, want validation error", err)
	}
}

func TestRemoveImagesCountsOnlyMembers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ids := seedImages(t, s, 5)
	albumID := createAlbum(t, s, "Trip")

	if _, err := s.AddImagesToAlbum(ctx, albumID, ids[:2]); err != nil {
		t.Fatalf("AddImagesToAlbum() error = %v", err)
	}

	removed, err := s.RemoveImagesFromAlbum(ctx, albumID, ids)
	if err != nil {
		t.Fatalf("RemoveImagesFromAlbum() error = %v", err)
	}
	if removed != 2 {
		t.Errorf("RemoveImagesFromAlbum() = %d, want 2", removed)
	}
	if n, _ := s.AlbumImageCount(ctx, albumID); n != 0 {
		t.Errorf("AlbumImageCount() = %d, want 0", n)
	}
	for _, id := range ids {
		if rec, _ := s.GetImageByID(ctx, id); rec == nil {
			t.Errorf("image %d deleted by membership removal", id)
		}
	}
}

func TestReorderReversesAlbum(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ids := seedImages(t, s, 3)
	albumID := createAlbum(t, s, "Trip")

	if added, err := s.AddImagesToAlbum(ctx, albumID, ids); err != nil || added != 3 {
		t.Fatalf("AddImagesToAlbum() = %d, %v", added, err)
	}

	updated, err := s.ReorderAlbumImages(ctx, albumID, []models.SortOrderUpdate{
		{ImageID: ids[0], SortOrder: 3},
		{ImageID: ids[1], SortOrder: 2},
		{ImageID: ids[2], SortOrder: 1},
	})
	if err != nil || updated != 3 {
		t.Fatalf("ReorderAlbumImages() = %d, %v; want 3, nil", updated, err)
	}

	images, err := s.QueryImages(ctx, ImageFilter{AlbumID: &albumID}, Sort{Field: SortAlbumOrder, Direction: SortAsc}, Page{})
	if err != nil {
		t.Fatalf("QueryImages() error = %v", err)
	}
	want := []int64{ids[2], ids[1], ids[0]}
	if len(images) != len(want) {
		t.Fatalf("got %d images, want %d", len(images), len(want))
	}
	for i := range want {
		if images[i].ID != want[i] {
			t.Errorf("position %d = %d, want %d", i, images[i].ID, want[i])
		}
	}
}

func TestReorderRejectsMalformedBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ids := seedImages(t, s, 2)
	albumID := createAlbum(t, s, "Trip")
	if _, err := s.AddImagesToAlbum(ctx, albumID, ids); err != nil {
		t.Fatalf("AddImagesToAlbum() error = %v", err)
	}

	batches := [][]models.SortOrderUpdate{
		{{ImageID: ids[0], SortOrder: 9}, {ImageID: 0, SortOrder: 1}},
		{{ImageID: ids[0], SortOrder: 9}, {ImageID: ids[1], SortOrder: -1}},
		{{ImageID: ids[0], SortOrder: 9}, {ImageID: ids[0], SortOrder: 4}},
	}
	for i, batch := range batches {
		if _, err := s.ReorderAlbumImages(ctx, albumID, batch); !errors.Is(err, models.ErrValidation) {
			t.Errorf("batch %d error = %v, want validation error", i, err)
		}
	}

	images, _ := s.QueryImages(ctx, ImageFilter{AlbumID: &albumID}, Sort{Field: SortAlbumOrder, Direction: SortAsc}, Page{})
	if len(images) != 2 || *images[0].SortOrder != 1 || *images[1].SortOrder != 2 {
		t.Errorf("rejected batch was partially applied: %+v", images)
	}
}
