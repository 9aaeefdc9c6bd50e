package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	types "github.com/yungbote/learnhub/internal/domain"
	"gorm.io/gorm"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.User {
	tb.Helper()
	now := time.Now().UTC()
	u := &types.User{
		ID:               uuid.New(),
		Email:            email,
		Password:         "pw",
		EmailConfirmedAt: &now,
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedProfile(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, fullName string) *types.UserProfile {
	tb.Helper()
	p := &types.UserProfile{UserID: userID, FullName: fullName}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed profile: %v", err)
	}
	return p
}

// SeedCourse inserts a course; createdAt orders catalog listings.
func SeedCourse(tb testing.TB, ctx context.Context, tx *gorm.DB, c types.Course, createdAt time.Time) *types.Course {
	tb.Helper()
	course := c
	if course.ID == uuid.Nil {
		course.ID = uuid.New()
	}
	if course.Title == "" {
		course.Title = "course"
	}
	course.CreatedAt = createdAt.UTC()
	course.UpdatedAt = createdAt.UTC()
	if err := tx.WithContext(ctx).Create(&course).Error; err != nil {
		tb.Fatalf("seed course: %v", err)
	}
	return &course
}

func SeedEnrollment(tb testing.TB, ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID, progress int, enrolledAt time.Time) *types.Enrollment {
	tb.Helper()
	e := &types.Enrollment{
		ID:         uuid.New(),
		UserID:     userID,
		CourseID:   courseID,
		Progress:   progress,
		EnrolledAt: enrolledAt.UTC(),
	}
	if progress >= 100 {
		done := enrolledAt.UTC()
		e.CompletedAt = &done
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed enrollment: %v", err)
	}
	return e
}
