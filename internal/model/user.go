package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents an account allowed to call the controller's administrative API.
type User struct {
	ID             string    `json:"id" gorm:"type:char(36);primaryKey"`
	Username       string    `json:"username" gorm:"uniqueIndex;size:255;not null"`
	Email          string    `json:"email" gorm:"size:255"`
	PasswordDigest string    `json:"password_digest" gorm:"size:255;not null"`
	IsSuperuser    bool      `json:"is_superuser" gorm:"default:false;index"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// TableName pins the SQL table backing the users namespace.
func (User) TableName() string {
	return "auth_users"
}

// BeforeCreate sets UUID before creating the record.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	u.EnsureID()
	return nil
}

// EnsureID assigns a fresh identifier when none is set yet.
func (u *User) EnsureID() {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
}

// UserView is the public projection of a User. The digest never leaves the service.
type UserView struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	IsSuperuser bool      `json:"is_superuser"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// View returns the public projection of the user.
func (u *User) View() UserView {
	return UserView{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		IsSuperuser: u.IsSuperuser,
		CreatedAt:   u.CreatedAt,
		UpdatedAt:   u.UpdatedAt,
	}
}
