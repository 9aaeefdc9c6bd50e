package learning

import (
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/learnhub/internal/domain/user"
	"gorm.io/gorm"
)

// Review is unique per (UserID, CourseID); resubmitting updates the row.
type Review struct {
	ID           uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_review_user_course,priority:1" json:"user_id"`
	CourseID     uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_review_user_course,priority:2;index" json:"course_id"`
	Author       *user.UserProfile `gorm:"foreignKey:UserID;references:UserID" json:"user,omitempty"`
	Rating       int               `gorm:"column:rating;not null" json:"rating"`
	Body         string            `gorm:"column:review_text;type:text" json:"review_text"`
	HelpfulCount int               `gorm:"column:helpful_count;not null;default:0" json:"helpful_count"`
	CreatedAt    time.Time         `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time         `gorm:"not null" json:"updated_at"`
}

func (Review) TableName() string { return "course_review" }

func (r *Review) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
