package local

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/learnhub/internal/data/repos"
	types "github.com/yungbote/learnhub/internal/domain"
	"github.com/yungbote/learnhub/internal/pkg/apierr"
)

type Profiles struct {
	repo repos.UserProfileRepo
}

func (p *Profiles) GetByID(ctx context.Context, userID uuid.UUID) (*types.UserProfile, error) {
	row, err := p.repo.GetByUserID(ctx, nil, userID)
	return row, mapErr("local.Profiles.GetByID", err)
}

func (p *Profiles) Upsert(ctx context.Context, profile *types.UserProfile) (*types.UserProfile, error) {
	row, err := p.repo.Upsert(ctx, nil, profile)
	return row, mapErr("local.Profiles.Upsert", err)
}

type Courses struct {
	repo repos.CourseRepo
}

func (c *Courses) List(ctx context.Context, q types.CourseQuery) ([]*types.Course, error) {
	rows, err := c.repo.List(ctx, nil, q)
	if err != nil {
		return nil, mapErr("local.Courses.List", err)
	}
	return rows, nil
}

func (c *Courses) GetByID(ctx context.Context, courseID uuid.UUID) (*types.Course, error) {
	row, err := c.repo.GetByID(ctx, nil, courseID)
	return row, mapErr("local.Courses.GetByID", err)
}

type Enrollments struct {
	repo repos.EnrollmentRepo
}

func (e *Enrollments) ListByUser(ctx context.Context, userID uuid.UUID) ([]*types.Enrollment, error) {
	rows, err := e.repo.ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, mapErr("local.Enrollments.ListByUser", err)
	}
	return rows, nil
}

func (e *Enrollments) Insert(ctx context.Context, row *types.Enrollment) (*types.Enrollment, error) {
	const op = "local.Enrollments.Insert"
	inserted, err := e.repo.Insert(ctx, nil, row)
	if err != nil {
		return nil, mapErr(op, err)
	}
	if !inserted {
		return nil, apierr.Newf(apierr.CodeConflict, op, "user %s already enrolled in %s", row.UserID, row.CourseID)
	}
	return row, nil
}

func (e *Enrollments) UpdateProgress(ctx context.Context, userID, courseID uuid.UUID, progress int, completedAt *time.Time) error {
	const op = "local.Enrollments.UpdateProgress"
	ok, err := e.repo.UpdateProgress(ctx, nil, userID, courseID, progress, completedAt)
	if err != nil {
		return mapErr(op, err)
	}
	if !ok {
		return apierr.Newf(apierr.CodeNotFound, op, "no enrollment for course %s", courseID)
	}
	return nil
}

type Reviews struct {
	repo repos.ReviewRepo
}

func (r *Reviews) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]*types.Review, error) {
	rows, err := r.repo.ListByCourse(ctx, nil, courseID)
	if err != nil {
		return nil, mapErr("local.Reviews.ListByCourse", err)
	}
	return rows, nil
}

func (r *Reviews) Insert(ctx context.Context, row *types.Review) (*types.Review, error) {
	const op = "local.Reviews.Insert"
	inserted, err := r.repo.Insert(ctx, nil, row)
	if err != nil {
		return nil, mapErr(op, err)
	}
	if !inserted {
		return nil, apierr.Newf(apierr.CodeConflict, op, "user %s already reviewed %s", row.UserID, row.CourseID)
	}
	return row, nil
}

func (r *Reviews) Update(ctx context.Context, reviewID uuid.UUID, rating int, body string) error {
	const op = "local.Reviews.Update"
	ok, err := r.repo.Update(ctx, nil, reviewID, rating, body)
	if err != nil {
		return mapErr(op, err)
	}
	if !ok {
		return apierr.Newf(apierr.CodeNotFound, op, "review %s", reviewID)
	}
	return nil
}

func (r *Reviews) IncrementHelpful(ctx context.Context, reviewID uuid.UUID) error {
	const op = "local.Reviews.IncrementHelpful"
	ok, err := r.repo.IncrementHelpful(ctx, nil, reviewID)
	if err != nil {
		return mapErr(op, err)
	}
	if !ok {
		return apierr.Newf(apierr.CodeNotFound, op, "review %s", reviewID)
	}
	return nil
}
