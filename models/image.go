package models

import "time"

// ImageRecord is the indexed metadata of one image file, keyed by FilePath.
type ImageRecord struct {
	ID            int64             `json:"id"`
	Filename      string            `json:"filename"`
	FilePath      string            `json:"file_path"`
	FileSize      int64             `json:"file_size"`
	CreatedAt     time.Time         `json:"created_at"`
	ModifiedAt    time.Time         `json:"modified_at"`
	DirectoryPath string            `json:"directory_path"`
	Width         int               `json:"width"`
	Height        int               `json:"height"`
	Format        string            `json:"format"`
	Exif          map[string]string `json:"exif,omitempty"`
	IsFavorite    bool              `json:"is_favorite"`
	Rating        int               `json:"rating"`
	AddedAt       time.Time         `json:"added_at"`

	// populated only for album-filtered queries
	SortOrder    *int       `json:"sort_order,omitempty"`
	AlbumAddedAt *time.Time `json:"album_added_at,omitempty"`
}

const (
	MinRating = 0
	MaxRating = 5
)

// ImageUpdate is a partial update of the user-editable fields of an image.
// Nil fields are left untouched.
type ImageUpdate struct {
	IsFavorite *bool `json:"is_favorite,omitempty"`
	Rating     *int  `json:"rating,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u ImageUpdate) IsEmpty() bool {
	return u.IsFavorite == nil && u.Rating == nil
}

type thumbnailAction int

const (
	thumbnailKeep thumbnailAction = iota
	thumbnailReplace
	thumbnailClear
)

// ThumbnailUpdate says what an upsert does with the stored thumbnail.
// The zero value keeps whatever is stored.
type ThumbnailUpdate struct {
	action thumbnailAction
	data   []byte
}

// KeepThumbnail leaves any stored thumbnail untouched.
func KeepThumbnail() ThumbnailUpdate { return ThumbnailUpdate{} }

// ReplaceThumbnail stores data as the image's thumbnail.
func ReplaceThumbnail(data []byte) ThumbnailUpdate {
	return ThumbnailUpdate{action: thumbnailReplace, data: data}
}

// ClearThumbnail removes any stored thumbnail.
func ClearThumbnail() ThumbnailUpdate { return ThumbnailUpdate{action: thumbnailClear} }

func (t ThumbnailUpdate) IsKeep() bool    { return t.action == thumbnailKeep }
func (t ThumbnailUpdate) IsReplace() bool { return t.action == thumbnailReplace }
func (t ThumbnailUpdate) IsClear() bool   { return t.action == thumbnailClear }
func (t ThumbnailUpdate) Data() []byte    { return t.data }
