package models

import "time"

// Event represents a single event listing. UserID is the owner and is
// set once at creation from the authenticated caller; only the owner
// may update or delete the row. Image is an opaque reference into the
// configured image store (a filename for the local backend, an object
// key or absolute URL for S3); empty means no image.
type Event struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Title       string    `json:"title" gorm:"not null"`
	Description string    `json:"description" gorm:"not null"`
	Address     string    `json:"address" gorm:"not null"`
	Date        string    `json:"date" gorm:"index;not null"`
	Image       string    `json:"image,omitempty"`
	UserID      uint      `json:"user_id" gorm:"index;not null"`
	User        *User     `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time `json:"created_at"`
}
