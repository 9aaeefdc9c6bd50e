package learning

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	LevelBeginner     = "Beginner"
	LevelIntermediate = "Intermediate"
	LevelAdvanced     = "Advanced"
)

// Course is catalog reference data. The core only reads it.
type Course struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id" yaml:"id"`
	Title           string    `gorm:"column:title;not null" json:"title" yaml:"title"`
	Description     string    `gorm:"column:description;type:text" json:"description" yaml:"description"`
	Category        string    `gorm:"column:category;index" json:"category" yaml:"category"`
	Level           string    `gorm:"column:level;index" json:"level" yaml:"level"`
	Price           float64   `gorm:"column:price;not null;default:0" json:"price" yaml:"price"`
	Rating          float64   `gorm:"column:rating;not null;default:0" json:"rating" yaml:"rating"`
	ReviewCount     int       `gorm:"column:reviews;not null;default:0" json:"reviews" yaml:"reviews"`
	InstructorName  string    `gorm:"column:instructor_name" json:"instructor_name" yaml:"instructor_name"`
	InstructorImage string    `gorm:"column:instructor_image" json:"instructor_image" yaml:"instructor_image"`
	ImageURL        string    `gorm:"column:image_url" json:"image_url" yaml:"image_url"`
	// Duration is free text such as "12 hours".
	Duration  string         `gorm:"column:duration" json:"duration" yaml:"duration"`
	CreatedAt time.Time      `gorm:"not null;index" json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at" yaml:"-"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty" yaml:"-"`
}

func (Course) TableName() string { return "course" }

func (c *Course) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
