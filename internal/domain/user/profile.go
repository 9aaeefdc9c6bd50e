package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// UserProfile is the user-editable record keyed 1:1 by User.ID. A user may
// exist without one.
type UserProfile struct {
	UserID    uuid.UUID      `gorm:"type:uuid;primaryKey;column:user_id" json:"id"`
	FullName  string         `gorm:"column:full_name" json:"full_name"`
	AvatarURL string         `gorm:"column:avatar_url" json:"avatar_url"`
	Bio       string         `gorm:"column:bio;type:text" json:"bio"`
	Metadata  datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (UserProfile) TableName() string { return "user_profile" }
