package models

// Album represents a user-curated group of images.
// It corresponds to the 'albums' table.
type Album struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string `gorm:"not null" json:"name"`
	Description  string `gorm:"not null;default:''" json:"description"`
	CoverImageID *int64 `gorm:"" json:"cover_image_id,omitempty"` // Nullable, cleared when the image is deleted
	CreatedAt    int64  `gorm:"not null" json:"created_at"`       // Unix timestamp
	UpdatedAt    int64  `gorm:"not null" json:"updated_at"`       // Unix timestamp

	// ImageCount is only populated by listing queries.
	ImageCount int64 `gorm:"->;-:migration" json:"image_count"`
}

// TableName explicitly sets the table name for GORM.
func (Album) TableName() string {
	return "albums"
}

// AlbumUpdate is a partial update of an album. Nil fields are left untouched.
type AlbumUpdate struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,max=100"`
	Description  *string `json:"description,omitempty" validate:"omitempty,max=1000"`
	CoverImageID *int64  `json:"cover_image_id,omitempty" validate:"omitempty,gt=0"`
	ClearCover   bool    `json:"clear_cover,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u AlbumUpdate) IsEmpty() bool {
	return u.Name == nil && u.Description == nil && u.CoverImageID == nil && !u.ClearCover
}

// AlbumMembership links an image to an album with its own ordering.
// It corresponds to the 'album_images' table.
type AlbumMembership struct {
	AlbumID   int64 `json:"album_id"`
	ImageID   int64 `json:"image_id"`
	AddedAt   int64 `json:"added_at"` // Unix nanoseconds
	SortOrder int   `json:"sort_order"`
}

// SortOrderUpdate assigns a new position to one member of an album.
type SortOrderUpdate struct {
	ImageID   int64 `json:"image_id" validate:"gt=0"`
	SortOrder int   `json:"sort_order" validate:"gte=0"`
}
