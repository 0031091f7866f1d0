package models

import "time"

// User represents a registered account. The password column holds the
// bcrypt hash and must never leave the repository/service layer, hence
// the "-" json tag.
type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Email     string    `json:"email" gorm:"uniqueIndex;type:varchar(255);not null"`
	Password  string    `json:"-" gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `json:"created_at"`
}

// UserPublic is the externally visible user shape: id and email only.
type UserPublic struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
}

// Public strips the user down to its externally visible fields.
func (u *User) Public() UserPublic {
	return UserPublic{ID: u.ID, Email: u.Email}
}
