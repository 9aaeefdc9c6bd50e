package learning

import (
	"context"
	"time"

	"github.com/google/uuid"
	types "github.com/yungbote/learnhub/internal/domain"
	"github.com/yungbote/learnhub/internal/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EnrollmentRepo interface {
	// Insert reports false without error when the (user, course) pair is
	// already enrolled.
	Insert(ctx context.Context, tx *gorm.DB, e *types.Enrollment) (bool, error)
	GetByUserAndCourse(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID) (*types.Enrollment, error)
	ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Enrollment, error)
	// UpdateProgress reports false when no enrollment exists for the pair.
	UpdateProgress(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID, progress int, completedAt *time.Time) (bool, error)
}

type enrollmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEnrollmentRepo(db *gorm.DB, baseLog *logger.Logger) EnrollmentRepo {
	repoLog := baseLog.With("repo", "EnrollmentRepo")
	return &enrollmentRepo{db: db, log: repoLog}
}

func (r *enrollmentRepo) Insert(ctx context.Context, tx *gorm.DB, e *types.Enrollment) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(e)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *enrollmentRepo) GetByUserAndCourse(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID) (*types.Enrollment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var e types.Enrollment
	if err := transaction.WithContext(ctx).
		Preload("Course").
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&e).Error; err != nil {
		return nil, err
	}
	return &e, nil
}

// ListByUser returns the user's enrollments newest first with Course
// attached. Rows whose course has been removed keep a nil Course.
func (r *enrollmentRepo) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.Enrollment, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Enrollment
	if err := transaction.WithContext(ctx).
		Preload("Course").
		Where("user_id = ?", userID).
		Order("enrolled_at DESC").
		Order("id DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateProgress is a single guarded statement: once completed_at is set the
// stored progress is frozen and completed_at is never overwritten.
func (r *enrollmentRepo) UpdateProgress(ctx context.Context, tx *gorm.DB, userID, courseID uuid.UUID, progress int, completedAt *time.Time) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	updates := map[string]any{
		"progress":   gorm.Expr("CASE WHEN completed_at IS NULL THEN ? ELSE progress END", progress),
		"updated_at": time.Now().UTC(),
	}
	if completedAt != nil {
		updates["completed_at"] = gorm.Expr("COALESCE(completed_at, ?)", completedAt.UTC())
	}

	res := transaction.WithContext(ctx).
		Model(&types.Enrollment{}).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		UpdateColumns(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
