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

type ReviewRepo interface {
	ListByCourse(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.Review, error)
	GetByID(ctx context.Context, tx *gorm.DB, reviewID uuid.UUID) (*types.Review, error)
	// Insert reports false without error when the user already reviewed the
	// course.
	Insert(ctx context.Context, tx *gorm.DB, review *types.Review) (bool, error)
	// Update reports false when the review does not exist.
	Update(ctx context.Context, tx *gorm.DB, reviewID uuid.UUID, rating int, body string) (bool, error)
	IncrementHelpful(ctx context.Context, tx *gorm.DB, reviewID uuid.UUID) (bool, error)
}

type reviewRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReviewRepo(db *gorm.DB, baseLog *logger.Logger) ReviewRepo {
	repoLog := baseLog.With("repo", "ReviewRepo")
	return &reviewRepo{db: db, log: repoLog}
}

// ListByCourse returns the course's reviews newest first with the author
// profile attached where one exists.
func (r *reviewRepo) ListByCourse(ctx context.Context, tx *gorm.DB, courseID uuid.UUID) ([]*types.Review, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Review
	if err := transaction.WithContext(ctx).
		Preload("Author").
		Where("course_id = ?", courseID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *reviewRepo) GetByID(ctx context.Context, tx *gorm.DB, reviewID uuid.UUID) (*types.Review, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var rv types.Review
	if err := transaction.WithContext(ctx).
		Preload("Author").
		Where("id = ?", reviewID).
		First(&rv).Error; err != nil {
		return nil, err
	}
	return &rv, nil
}

func (r *reviewRepo) Insert(ctx context.Context, tx *gorm.DB, review *types.Review) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(review)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *reviewRepo) Update(ctx context.Context, tx *gorm.DB, reviewID uuid.UUID, rating int, body string) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Model(&types.Review{}).
		Where("id = ?", reviewID).
		UpdateColumns(map[string]any{
			"rating":      rating,
			"review_text": body,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// IncrementHelpful adds one in the database so concurrent calls never lose
// an increment.
func (r *reviewRepo) IncrementHelpful(ctx context.Context, tx *gorm.DB, reviewID uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	res := transaction.WithContext(ctx).
		Model(&types.Review{}).
		Where("id = ?", reviewID).
		UpdateColumn("helpful_count", gorm.Expr("helpful_count + ?", 1))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
