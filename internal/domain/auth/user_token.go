package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/learnhub/internal/domain/user"
)

// UserToken is one issued session. ID doubles as the session id embedded in
// the access token, so deleting the row revokes both tokens.
type UserToken struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID  `gorm:"type:uuid;index;not null" json:"user_id"`
	User             *user.User `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	RefreshToken     string     `gorm:"uniqueIndex;not null;column:refresh_token" json:"-"`
	AccessExpiresAt  time.Time  `gorm:"column:access_expires_at;not null" json:"access_expires_at"`
	RefreshExpiresAt time.Time  `gorm:"column:refresh_expires_at;not null;index" json:"refresh_expires_at"`
	CreatedAt        time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"not null" json:"updated_at"`
}

func (UserToken) TableName() string { return "user_token" }
