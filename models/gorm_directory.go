package models

// Directory is a root folder registered for scanning.
// It corresponds to the 'directories' table.
type Directory struct {
	ID        int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Path      string `gorm:"not null;uniqueIndex" json:"path"`
	Name      string `gorm:"not null" json:"name"`
	CreatedAt int64  `gorm:"not null" json:"created_at"` // Unix timestamp
}

// TableName explicitly sets the table name for GORM.
func (Directory) TableName() string {
	return "directories"
}
