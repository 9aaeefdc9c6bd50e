// Package reviews manages one course's reviews: the signed-in user's own
// review and the aggregate rating derived from every review.
package reviews

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/learnhub/internal/backend"
	types "github.com/yungbote/learnhub/internal/domain"
	"github.com/yungbote/learnhub/internal/observability"
	"github.com/yungbote/learnhub/internal/pkg/apierr"
	"github.com/yungbote/learnhub/internal/pkg/logger"
	"github.com/yungbote/learnhub/internal/pkg/seqguard"
)

const (
	component = "reviews"

	MinRating     = 1
	MaxRating     = 5
	MaxTextLength = 5000
)

// Identity is the part of session.Manager the engine needs.
type Identity interface {
	UserID() uuid.UUID
}

type Engine struct {
	log      *logger.Logger
	reviews  backend.Reviews
	identity Identity
	courseID uuid.UUID
	guard    *seqguard.Guard

	// writeMu serialises submissions so the update-or-insert decision sees
	// the result of the previous submission.
	writeMu sync.Mutex

	mu      sync.RWMutex
	rows    []*types.Review
	summary Summary
	lastErr error
}

func NewEngine(log *logger.Logger, reviews backend.Reviews, identity Identity, courseID uuid.UUID) *Engine {
	return &Engine{
		log:      log.With("service", "ReviewEngine", "course_id", courseID.String()),
		reviews:  reviews,
		identity: identity,
		courseID: courseID,
		guard:    seqguard.New(),
		summary:  Summarize(nil),
	}
}

func (e *Engine) CourseID() uuid.UUID { return e.courseID }

// ListReviews fetches every review for the course, newest first, and
// recomputes the summary. A failed fetch keeps the previous set.
func (e *Engine) ListReviews(ctx context.Context) (out []*types.Review, err error) {
	ctx, finish := observability.Track(ctx, component, "ListReviews", attribute.String("course_id", e.courseID.String()))
	defer func() { finish(err) }()

	if _, err := e.refetch(ctx); err != nil {
		return []*types.Review{}, err
	}
	return e.Reviews(), nil
}

// SubmitReview creates the user's review or overwrites it in place; a user
// never has more than one review per course.
func (e *Engine) SubmitReview(ctx context.Context, rating int, text string) (r *types.Review, err error) {
	const op = "reviews.SubmitReview"
	ctx, finish := observability.Track(ctx, component, "SubmitReview",
		attribute.String("course_id", e.courseID.String()),
		attribute.Int("rating", rating),
	)
	defer func() { finish(err) }()

	uid := e.identity.UserID()
	if uid == uuid.Nil {
		return nil, apierr.Newf(apierr.CodeNotAuthenticated, op, "no user signed in")
	}
	if rating < MinRating || rating > MaxRating {
		return nil, apierr.Newf(apierr.CodeValidation, op, "rating %d outside [%d,%d]", rating, MinRating, MaxRating)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apierr.Newf(apierr.CodeValidation, op, "review text is required")
	}
	if len(text) > MaxTextLength {
		return nil, apierr.Newf(apierr.CodeValidation, op, "review text longer than %d bytes", MaxTextLength)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	written, werr := e.write(ctx, uid, rating, text)
	if werr != nil {
		return nil, apierr.Unavailable(op, werr)
	}
	applied, rerr := e.refetch(ctx)
	if rerr != nil {
		e.log.Warn("Review saved but refetch failed", "error", rerr)
	}
	if applied {
		if own := e.UserReview(); own != nil {
			return own, nil
		}
	}
	// The refetch failed or was superseded; show the confirmed row anyway.
	e.mergeLocal(written)
	return cloneReview(written), nil
}

// MarkHelpful adds one to a review's helpful count with an atomic backend
// increment, then refetches.
func (e *Engine) MarkHelpful(ctx context.Context, reviewID uuid.UUID) (err error) {
	const op = "reviews.MarkHelpful"
	ctx, finish := observability.Track(ctx, component, "MarkHelpful", attribute.String("review_id", reviewID.String()))
	defer func() { finish(err) }()

	if reviewID == uuid.Nil {
		return apierr.Newf(apierr.CodeValidation, op, "review id is required")
	}
	if ierr := e.reviews.IncrementHelpful(ctx, reviewID); ierr != nil {
		if errors.Is(ierr, apierr.ErrNotFound) {
			return apierr.Newf(apierr.CodeNotFound, op, "review %s not found", reviewID)
		}
		return apierr.Unavailable(op, ierr)
	}
	if _, rerr := e.refetch(ctx); rerr != nil {
		e.log.Warn("Helpful mark saved but refetch failed", "review_id", reviewID, "error", rerr)
	}
	return nil
}

// Reviews returns the cached set, newest first.
func (e *Engine) Reviews() []*types.Review {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*types.Review, 0, len(e.rows))
	for _, r := range e.rows {
		out = append(out, cloneReview(r))
	}
	return out
}

// UserReview picks the signed-in user's review out of the cached set; nil
// when signed out or not yet reviewed.
func (e *Engine) UserReview() *types.Review {
	uid := e.identity.UserID()
	if uid == uuid.Nil {
		return nil
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if r := findByUser(e.rows, uid); r != nil {
		return cloneReview(r)
	}
	return nil
}

func (e *Engine) Summary() Summary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.summary
	s.Buckets = append([]Bucket(nil), e.summary.Buckets...)
	return s
}

// Err returns the failure of the most recent fetch, if any.
func (e *Engine) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// Close drops any fetch still in flight.
func (e *Engine) Close() { e.guard.Close() }

// write stores the review and returns the row as the backend now holds it.
func (e *Engine) write(ctx context.Context, uid uuid.UUID, rating int, text string) (*types.Review, error) {
	if own := e.UserReview(); own != nil {
		err := e.reviews.Update(ctx, own.ID, rating, text)
		if err == nil {
			return revised(own, rating, text), nil
		}
		if !errors.Is(err, apierr.ErrNotFound) {
			return nil, err
		}
		// Cached row is gone; fall through to insert.
	}

	row, err := e.reviews.Insert(ctx, &types.Review{UserID: uid, CourseID: e.courseID, Rating: rating, Body: text})
	if err == nil {
		return cloneReview(row), nil
	}
	if !errors.Is(err, apierr.ErrConflict) {
		return nil, err
	}

	// Another client created the row since our last fetch.
	e.log.Debug("Review already exists, updating instead", "user_id", uid)
	rows, lerr := e.reviews.ListByCourse(ctx, e.courseID)
	if lerr != nil {
		return nil, lerr
	}
	own := findByUser(rows, uid)
	if own == nil {
		return nil, apierr.Newf(apierr.CodeConflict, "reviews.write", "review conflict but no row for user")
	}
	if err := e.reviews.Update(ctx, own.ID, rating, text); err != nil {
		return nil, err
	}
	return revised(own, rating, text), nil
}

// mergeLocal puts a confirmed row into the cached set and recomputes the
// summary.
func (e *Engine) mergeLocal(row *types.Review) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := cloneReview(row)
	replaced := false
	for i, r := range e.rows {
		if r.ID == cp.ID {
			if cp.Author == nil {
				cp.Author = r.Author
			}
			e.rows[i] = cp
			replaced = true
			break
		}
	}
	if !replaced {
		e.rows = append([]*types.Review{cp}, e.rows...)
	}
	e.summary = Summarize(e.rows)
}

// refetch reports whether its result was applied to the cache.
func (e *Engine) refetch(ctx context.Context) (bool, error) {
	const op = "reviews.refetch"
	ticket := e.guard.Next()
	rows, err := e.reviews.ListByCourse(ctx, e.courseID)
	if err != nil {
		err = apierr.Unavailable(op, err)
		e.guard.Commit(ticket, func() {
			e.mu.Lock()
			e.lastErr = err
			e.mu.Unlock()
		})
		e.log.Warn("Review fetch failed, keeping cached reviews", "error", err)
		return false, err
	}

	cached := make([]*types.Review, 0, len(rows))
	for _, r := range rows {
		cached = append(cached, cloneReview(r))
	}
	summary := Summarize(cached)
	applied := e.guard.Commit(ticket, func() {
		e.mu.Lock()
		e.rows = cached
		e.summary = summary
		e.lastErr = nil
		e.mu.Unlock()
	})
	if !applied {
		observability.StaleDiscarded("reviews")
	}
	return applied, nil
}

func findByUser(rows []*types.Review, uid uuid.UUID) *types.Review {
	for _, r := range rows {
		if r.UserID == uid {
			return r
		}
	}
	return nil
}

func revised(r *types.Review, rating int, text string) *types.Review {
	cp := cloneReview(r)
	cp.Rating = rating
	cp.Body = text
	cp.UpdatedAt = time.Now().UTC()
	return cp
}

func cloneReview(r *types.Review) *types.Review {
	cp := *r
	if r.Author != nil {
		a := *r.Author
		cp.Author = &a
	}
	return &cp
}
