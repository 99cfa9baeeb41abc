package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/camden-git/imageindex/models"
)

func intPtr(v int) *int { return &v }
func boolPtr(v bool) *bool { return &v }
func strPtr(v string) *string { return &v }
func int64Ptr(v int64) *int64 { return &v }

// seedQueryFixture indexes ten images across two directories with varied
// ratings, formats and favorites, and puts the even ones in an album.
func seedQueryFixture(t *testing.T, s *Store) (albumID int64, ids []int64) {
	t.Helper()
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)
	albumID = createAlbum(t, s, "Fixture")

	for i := 0; i < 10; i++ {
		dir := "/photos/2023"
		if i >= 6 {
			dir = "/photos/2023/summer"
		}
		rec := testRecord(fmt.Sprintf("%s/img_%02d.jpg", dir, i), int64(1000*(i+1)), base.Add(time.Duration(i)*time.Minute))
		if i%3 == 0 {
			rec.Format = "PNG"
		}
		rec.Rating = i % 6
		id := mustUpsert(t, s, rec, models.KeepThumbnail())
		ids = append(ids, id)
		if i%4 == 0 {
			if err := s.SetFavorite(ctx, id, true); err != nil {
				t.Fatalf("SetFavorite() error = %v", err)
			}
		}
	}

	var even []int64
	for i, id := range ids {
		if i%2 == 0 {
			even = append(even, id)
		}
	}
	if _, err := s.AddImagesToAlbum(ctx, albumID, even); err != nil {
		t.Fatalf("AddImagesToAlbum() error = %v", err)
	}
	return albumID, ids
}

func TestQueryAndCountAgree(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	albumID, _ := seedQueryFixture(t, s)

	tests := []struct {
		name   string
		filter ImageFilter
		want   int
	}{
		{name: "all", filter: ImageFilter{}, want: 10},
		{name: "directory exact", filter: ImageFilter{Directory: strPtr("/photos/2023")}, want: 6},
		{name: "directory tree", filter: ImageFilter{DirectoryTree: strPtr("/photos")}, want: 10},
		{name: "directory tree leaf", filter: ImageFilter{DirectoryTree: strPtr("/photos/2023/summer")}, want: 4},
		{name: "favorites", filter: ImageFilter{Favorite: boolPtr(true)}, want: 3},
		{name: "not favorites", filter: ImageFilter{Favorite: boolPtr(false)}, want: 7},
		{name: "album", filter: ImageFilter{AlbumID: int64Ptr(albumID)}, want: 5},
		{name: "rating range", filter: ImageFilter{MinRating: intPtr(2), MaxRating: intPtr(4)}, want: 5},
		{name: "format lower case", filter: ImageFilter{Format: strPtr("png")}, want: 4},
		{name: "search", filter: ImageFilter{Search: strPtr("img_0")}, want: 10},
		{name: "search literal underscore", filter: ImageFilter{Search: strPtr("g_09")}, want: 1},
		{name: "combined", filter: ImageFilter{AlbumID: int64Ptr(albumID), Format: strPtr("PNG")}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := s.QueryImages(ctx, tt.filter, Sort{}, Page{})
			if err != nil {
				t.Fatalf("QueryImages() error = %v", err)
			}
			count, err := s.CountImages(ctx, tt.filter)
			if err != nil {
				t.Fatalf("CountImages() error = %v", err)
			}
			if len(rows) != tt.want {
				t.Errorf("QueryImages() returned %d rows, want %d", len(rows), tt.want)
			}
			if count != int64(len(rows)) {
				t.Errorf("CountImages() = %d, QueryImages() returned %d", count, len(rows))
			}
		})
	}
}

func TestQuerySortingAndPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedQueryFixture(t, s)

	desc, err := s.QueryImages(ctx, ImageFilter{}, Sort{Field: SortFileSize, Direction: SortDesc}, Page{})
	if err != nil {
		t.Fatalf("QueryImages() error = %v", err)
	}
	for i := 1; i < len(desc); i++ {
		if desc[i-1].FileSize < desc[i].FileSize {
			t.Fatalf("rows not sorted by file_size desc at %d", i)
		}
	}

	page, err := s.QueryImages(ctx, ImageFilter{}, Sort{Field: SortFileSize, Direction: SortDesc}, Page{Limit: 3, Offset: 2})
	if err != nil {
		t.Fatalf("QueryImages(page) error = %v", err)
	}
	if len(page) != 3 || page[0].ID != desc[2].ID || page[2].ID != desc[4].ID {
		t.Errorf("page = %v, want rows 2..4 of the full listing", page)
	}

	tail, err := s.QueryImages(ctx, ImageFilter{}, Sort{Field: SortFileSize, Direction: SortDesc}, Page{Offset: 8})
	if err != nil {
		t.Fatalf("QueryImages(offset only) error = %v", err)
	}
	if len(tail) != 2 {
		t.Errorf("offset-only query returned %d rows, want 2", len(tail))
	}

	favs, err := s.FavoriteImages(ctx, Page{})
	if err != nil {
		t.Fatalf("FavoriteImages() error = %v", err)
	}
	for i := 1; i < len(favs); i++ {
		if favs[i-1].ModifiedAt.Before(favs[i].ModifiedAt) {
			t.Errorf("favorites not sorted by modified_at desc")
		}
	}
}

func TestQueryRejectsUnknownSortField(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := ParseSortField("nonexistent_field"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("ParseSortField() error = %v, want validation error", err)
	}
	if _, err := ParseSortField("filename; DROP TABLE image_metadata"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("ParseSortField(injection) error = %v, want validation error", err)
	}

	_, err := s.QueryImages(ctx, ImageFilter{}, Sort{Field: SortField("nonexistent_field")}, Page{})
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("QueryImages(unknown field) error = %v, want validation error", err)
	}
	_, err = s.QueryImages(ctx, ImageFilter{}, Sort{Field: SortAlbumOrder}, Page{})
	if !errors.Is(err, models.ErrValidation) {
		t.Errorf("QueryImages(sort_order without album) error = %v, want validation error", err)
	}
	if _, err := ParseSortDirection("sideways"); !errors.Is(err, models.ErrValidation) {
		t.Errorf("ParseSortDirection() error = %v, want validation error", err)
	}
}

func TestParseSortLeavesBlankPartsZero(t *testing.T) {
	albumDefault := Sort{Field: SortAlbumOrder, Direction: SortAsc}
	tests := []struct {
		field, order string
		want         Sort
		wantAlbum    Sort
	}{
		{"", "", Sort{}, albumDefault},
		{"", "desc", Sort{Direction: SortDesc}, Sort{Field: SortAlbumOrder, Direction: SortDesc}},
		{"Filename", "", Sort{Field: SortFilename}, Sort{Field: SortFilename, Direction: SortAsc}},
		{"rating", "ASC", Sort{Field: SortRating, Direction: SortAsc}, Sort{Field: SortRating, Direction: SortAsc}},
	}
	for _, tt := range tests {
		got, err := ParseSort(tt.field, tt.order)
		if err != nil {
			t.Fatalf("ParseSort(%q, %q) error = %v", tt.field, tt.order, err)
		}
		if got != tt.want {
			t.Errorf("ParseSort(%q, %q) = %+v, want %+v", tt.field, tt.order, got, tt.want)
		}
		if filled := got.Or(albumDefault); filled != tt.wantAlbum {
			t.Errorf("ParseSort(%q, %q).Or(album) = %+v, want %+v", tt.field, tt.order, filled, tt.wantAlbum)
		}
	}
	if got := (Sort{Direction: SortAsc}).Or(DefaultSort); got != (Sort{Field: SortModifiedAt, Direction: SortAsc}) {
		t.Errorf("Or(DefaultSort) = %+v", got)
	}
}

func TestQueryValidatesFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	bad := []ImageFilter{
		{MinRating: intPtr(-1)},
		{MaxRating: intPtr(9)},
		{MinRating: intPtr(4), MaxRating: intPtr(2)},
		{AlbumID: int64Ptr(0)},
	}
	for _, f := range bad {
		if _, err := s.CountImages(ctx, f); !errors.Is(err, models.ErrValidation) {
			t.Errorf("CountImages(%+v) error = %v, want validation error", f, err)
		}
	}
	if _, err := s.QueryImages(ctx, ImageFilter{}, Sort{}, Page{Offset: -1}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("negative offset error = %v, want validation error", err)
	}
}
