// Package catalog turns a closed filter set into a course listing.
package catalog

import (
	"context"
	"errors"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/learnhub/internal/backend"
	types "github.com/yungbote/learnhub/internal/domain"
	"github.com/yungbote/learnhub/internal/observability"
	"github.com/yungbote/learnhub/internal/pkg/apierr"
	"github.com/yungbote/learnhub/internal/pkg/logger"
	"github.com/yungbote/learnhub/internal/pkg/seqguard"
)

const component = "catalog"

type Engine struct {
	log      *logger.Logger
	courses  backend.Courses
	validate *validator.Validate
	guard    *seqguard.Guard

	mu      sync.RWMutex
	result  []*types.Course
	filters Filters
	lastErr error
}

func NewEngine(log *logger.Logger, courses backend.Courses) *Engine {
	return &Engine{
		log:      log.With("service", "CatalogEngine"),
		courses:  courses,
		validate: validator.New(),
		guard:    seqguard.New(),
	}
}

// ListCourses runs a full query for f and makes it the current result set.
// Failures return an empty slice with a typed error; a backend failure keeps
// the previous result set readable through Courses.
func (e *Engine) ListCourses(ctx context.Context, f Filters) (out []*types.Course, err error) {
	const op = "catalog.ListCourses"
	ctx, finish := observability.Track(ctx, component, "ListCourses",
		attribute.String("category", f.Category),
		attribute.String("level", f.Level),
		attribute.String("price", f.Price),
	)
	defer func() { finish(err) }()

	ticket := e.guard.Next()

	q, verr := f.Query(e.validate)
	if verr != nil {
		err = apierr.New(apierr.CodeValidation, op, verr)
		e.guard.Commit(ticket, func() {
			e.mu.Lock()
			e.filters = f
			e.result = nil
			e.lastErr = err
			e.mu.Unlock()
		})
		return []*types.Course{}, err
	}

	rows, lerr := e.courses.List(ctx, q)
	if lerr != nil {
		err = apierr.Unavailable(op, lerr)
		e.log.Warn("Course listing failed, keeping previous results", "error", lerr)
		e.guard.Commit(ticket, func() {
			e.mu.Lock()
			e.lastErr = err
			e.mu.Unlock()
		})
		return []*types.Course{}, err
	}
	if rows == nil {
		rows = []*types.Course{}
	}

	applied := e.guard.Commit(ticket, func() {
		e.mu.Lock()
		e.filters = f
		e.result = rows
		e.lastErr = nil
		e.mu.Unlock()
	})
	if !applied {
		observability.StaleDiscarded("catalog")
		e.log.Debug("Discarded stale course listing", "filters", f)
	}
	return cloneCourses(rows), nil
}

// GetCourse loads a single course; missing ids return NotFound.
func (e *Engine) GetCourse(ctx context.Context, id uuid.UUID) (c *types.Course, err error) {
	const op = "catalog.GetCourse"
	ctx, finish := observability.Track(ctx, component, "GetCourse", attribute.String("course_id", id.String()))
	defer func() { finish(err) }()

	if id == uuid.Nil {
		return nil, apierr.Newf(apierr.CodeValidation, op, "course id is required")
	}
	c, err = e.courses.GetByID(ctx, id)
	if errors.Is(err, apierr.ErrNotFound) {
		return nil, apierr.Newf(apierr.CodeNotFound, op, "course %s not found", id)
	}
	if err != nil {
		return nil, apierr.Unavailable(op, err)
	}
	return c, nil
}

// Courses returns the current result set, newest first.
func (e *Engine) Courses() []*types.Course {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneCourses(e.result)
}

// Filters returns the filter set behind the current result set.
func (e *Engine) Filters() Filters {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.filters
}

// Err returns the failure of the most recent listing, if any.
func (e *Engine) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastErr
}

// Close drops any listing still in flight.
func (e *Engine) Close() { e.guard.Close() }

func cloneCourses(in []*types.Course) []*types.Course {
	out := make([]*types.Course, 0, len(in))
	for _, c := range in {
		cp := *c
		out = append(out, &cp)
	}
	return out
}
