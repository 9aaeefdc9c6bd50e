package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User is the authentication record behind an Identity. Profile data lives
// in UserProfile; UserMetadata only keeps what was supplied at sign-up.
type User struct {
	ID               uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Email            string         `gorm:"uniqueIndex;not null;column:email" json:"email"`
	Password         string         `gorm:"not null;column:password" json:"-"`
	UserMetadata     datatypes.JSON `gorm:"column:user_metadata" json:"user_metadata,omitempty"`
	EmailConfirmedAt *time.Time     `gorm:"column:email_confirmed_at" json:"email_confirmed_at,omitempty"`
	LastSignInAt     *time.Time     `gorm:"column:last_sign_in_at" json:"last_sign_in_at,omitempty"`
	CreatedAt        time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "user" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
