// Package enrollment tracks the signed-in user's enrollments and progress.
//
// The tracker keeps one cached collection per identity. Lookups are served
// from the cache; mutations go to the backend and are followed by a full
// refresh. A refresh that fails leaves the cache as it was.
package enrollment

import (
	"context"
	"errors"
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
	"github.com/yungbote/learnhub/internal/session"
)

const component = "enrollment"

// Identity is the part of session.Manager the tracker needs.
type Identity interface {
	UserID() uuid.UUID
	Subscribe(fn func(session.State)) (unsubscribe func())
}

type Tracker struct {
	log         *logger.Logger
	enrollments backend.Enrollments
	identity    Identity
	guard       *seqguard.Guard
	now         func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	userID   uuid.UUID
	rows     []*types.Enrollment
	byCourse map[uuid.UUID]*types.Enrollment
	lastErr  error

	// confirmed holds rows this tracker wrote, stamped with writeSeq. A
	// refresh issued before a write completed may not include it, so those
	// rows are laid back over the refreshed collection.
	writeSeq  uint64
	confirmed map[uuid.UUID]confirmedWrite

	unsubscribe func()
}

type confirmedWrite struct {
	row *types.Enrollment
	seq uint64
}

func NewTracker(log *logger.Logger, enrollments backend.Enrollments, identity Identity) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		log:         log.With("service", "EnrollmentTracker"),
		enrollments: enrollments,
		identity:    identity,
		guard:       seqguard.New(),
		now:         func() time.Time { return time.Now().UTC() },
		ctx:         ctx,
		cancel:      cancel,
		byCourse:    map[uuid.UUID]*types.Enrollment{},
		confirmed:   map[uuid.UUID]confirmedWrite{},
	}
	t.unsubscribe = identity.Subscribe(func(st session.State) {
		uid := uuid.Nil
		if st.Identity != nil {
			uid = st.Identity.ID
		}
		if t.adopt(uid) && uid != uuid.Nil {
			t.refreshInBackground()
		}
	})
	if uid := identity.UserID(); t.adopt(uid) && uid != uuid.Nil {
		t.refreshInBackground()
	}
	return t
}

// Enroll is idempotent: enrolling in a course twice leaves one enrollment
// untouched by the second call.
func (t *Tracker) Enroll(ctx context.Context, courseID uuid.UUID) (e *types.Enrollment, err error) {
	const op = "enrollment.Enroll"
	ctx, finish := observability.Track(ctx, component, "Enroll", attribute.String("course_id", courseID.String()))
	defer func() { finish(err) }()

	uid, err := t.currentUser(op)
	if err != nil {
		return nil, err
	}
	if courseID == uuid.Nil {
		return nil, apierr.Newf(apierr.CodeValidation, op, "course id is required")
	}

	if cached := t.GetEnrollment(courseID); cached != nil {
		t.log.Debug("Already enrolled, skipping insert", "course_id", courseID)
	} else {
		row, ierr := t.enrollments.Insert(ctx, &types.Enrollment{UserID: uid, CourseID: courseID, Progress: 0})
		switch {
		case ierr == nil:
			t.mergeLocal(uid, row)
		case errors.Is(ierr, apierr.ErrConflict):
			t.log.Debug("Enrollment already exists", "course_id", courseID)
		default:
			return nil, apierr.Unavailable(op, ierr)
		}
	}

	if rerr := t.refresh(ctx, uid); rerr != nil {
		if cached := t.GetEnrollment(courseID); cached != nil {
			t.log.Warn("Enrolled but refresh failed", "course_id", courseID, "error", rerr)
			return cached, nil
		}
		return nil, rerr
	}
	if cached := t.GetEnrollment(courseID); cached != nil {
		return cached, nil
	}
	// The refresh was superseded before it could show an existing row.
	return t.lookup(ctx, op, uid, courseID)
}

// UpdateProgress persists progress for an enrolled course. Reaching 100
// marks the enrollment completed; a completed enrollment keeps its progress
// and completion time.
func (t *Tracker) UpdateProgress(ctx context.Context, courseID uuid.UUID, progress int) (e *types.Enrollment, err error) {
	const op = "enrollment.UpdateProgress"
	ctx, finish := observability.Track(ctx, component, "UpdateProgress",
		attribute.String("course_id", courseID.String()),
		attribute.Int("progress", progress),
	)
	defer func() { finish(err) }()

	uid, err := t.currentUser(op)
	if err != nil {
		return nil, err
	}
	if progress < 0 || progress > 100 {
		return nil, apierr.Newf(apierr.CodeValidation, op, "progress %d outside [0,100]", progress)
	}

	var completedAt *time.Time
	if progress >= 100 {
		now := t.now()
		completedAt = &now
	}

	uerr := t.enrollments.UpdateProgress(ctx, uid, courseID, progress, completedAt)
	if errors.Is(uerr, apierr.ErrNotFound) {
		return nil, apierr.Newf(apierr.CodeNotEnrolled, op, "not enrolled in course %s", courseID)
	}
	if uerr != nil {
		return nil, apierr.Unavailable(op, uerr)
	}
	if cached := t.GetEnrollment(courseID); cached != nil {
		t.mergeLocal(uid, applyProgress(cached, progress, completedAt))
	}

	rerr := t.refresh(ctx, uid)
	if cached := t.GetEnrollment(courseID); cached != nil {
		if rerr != nil {
			t.log.Warn("Progress saved but refresh failed", "course_id", courseID, "error", rerr)
		}
		return cached, nil
	}
	if rerr != nil {
		return nil, rerr
	}
	return t.lookup(ctx, op, uid, courseID)
}

// Refresh reloads the collection for the current identity.
func (t *Tracker) Refresh(ctx context.Context) (err error) {
	const op = "enrollment.Refresh"
	ctx, finish := observability.Track(ctx, component, "Refresh")
	defer func() { finish(err) }()

	uid, err := t.currentUser(op)
	if err != nil {
		return err
	}
	return t.refresh(ctx, uid)
}

func (t *Tracker) IsEnrolled(courseID uuid.UUID) bool {
	return t.GetEnrollment(courseID) != nil
}

// GetEnrollment returns nil when the current user is not enrolled.
func (t *Tracker) GetEnrollment(courseID uuid.UUID) *types.Enrollment {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.ownsCacheLocked() {
		return nil
	}
	e := t.byCourse[courseID]
	if e == nil {
		return nil
	}
	return cloneEnrollment(e)
}

// Enrollments returns the cached collection, most recently enrolled first.
func (t *Tracker) Enrollments() []*types.Enrollment {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.ownsCacheLocked() {
		return []*types.Enrollment{}
	}
	out := make([]*types.Enrollment, 0, len(t.rows))
	for _, e := range t.rows {
		out = append(out, cloneEnrollment(e))
	}
	return out
}

// Err returns the failure of the most recent refresh, if any.
func (t *Tracker) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastErr
}

func (t *Tracker) Stats() Stats {
	return ComputeStats(t.Enrollments())
}

func (t *Tracker) Close() {
	if t.unsubscribe != nil {
		t.unsubscribe()
	}
	t.cancel()
	t.guard.Close()
	t.wg.Wait()
}

func (t *Tracker) currentUser(op string) (uuid.UUID, error) {
	uid := t.identity.UserID()
	if uid == uuid.Nil {
		return uuid.Nil, apierr.Newf(apierr.CodeNotAuthenticated, op, "no user signed in")
	}
	t.adopt(uid)
	return uid, nil
}

// adopt points the cache at uid, dropping whatever belonged to the previous
// identity. It reports whether the identity changed.
func (t *Tracker) adopt(uid uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.userID == uid {
		return false
	}
	t.userID = uid
	t.rows = nil
	t.byCourse = map[uuid.UUID]*types.Enrollment{}
	t.lastErr = nil
	t.confirmed = map[uuid.UUID]confirmedWrite{}
	t.guard.Invalidate()
	return true
}

// ownsCacheLocked re-derives authorization on every read: a cache belongs
// to whoever is signed in now, or to nobody.
func (t *Tracker) ownsCacheLocked() bool {
	return t.userID != uuid.Nil && t.userID == t.identity.UserID()
}

func (t *Tracker) refresh(ctx context.Context, uid uuid.UUID) error {
	const op = "enrollment.refresh"
	ticket := t.guard.Next()
	t.mu.RLock()
	issuedAfter := t.writeSeq
	t.mu.RUnlock()
	rows, err := t.enrollments.ListByUser(ctx, uid)

	t.mu.Lock()
	current := t.userID == uid && t.guard.Current(ticket)
	if current {
		if err != nil {
			t.lastErr = apierr.Unavailable(op, err)
		} else {
			t.replaceLocked(rows)
			t.reapplyLocked(issuedAfter)
			t.lastErr = nil
		}
	}
	t.mu.Unlock()

	if err != nil {
		t.log.Warn("Enrollment refresh failed, keeping cached enrollments", "error", err)
		return apierr.Unavailable(op, err)
	}
	if !current {
		observability.StaleDiscarded("enrollments")
	}
	return nil
}

func (t *Tracker) refreshInBackground() {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		uid := t.identity.UserID()
		if uid == uuid.Nil {
			return
		}
		_ = t.refresh(t.ctx, uid)
	}()
}

// lookup fetches one enrollment directly and merges it into the cache.
func (t *Tracker) lookup(ctx context.Context, op string, uid, courseID uuid.UUID) (*types.Enrollment, error) {
	rows, err := t.enrollments.ListByUser(ctx, uid)
	if err != nil {
		return nil, apierr.Unavailable(op, err)
	}
	for _, e := range rows {
		if e.CourseID == courseID {
			t.mergeLocal(uid, e)
			return cloneEnrollment(e), nil
		}
	}
	return nil, apierr.Newf(apierr.CodeNotEnrolled, op, "not enrolled in course %s", courseID)
}

// mergeLocal applies a row the backend confirmed. It is not gated by the
// sequence guard: a newer refresh still in flight must not hide a write
// that already succeeded.
func (t *Tracker) mergeLocal(uid uuid.UUID, row *types.Enrollment) {
	if row == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.userID != uid {
		return
	}
	cp := cloneEnrollment(row)
	t.putLocked(cp)
	t.writeSeq++
	t.confirmed[cp.CourseID] = confirmedWrite{row: cloneEnrollment(cp), seq: t.writeSeq}
}

// reapplyLocked lays confirmed writes newer than issuedAfter over a freshly
// replaced collection and forgets the ones the refresh already reflects.
func (t *Tracker) reapplyLocked(issuedAfter uint64) {
	for courseID, w := range t.confirmed {
		if w.seq <= issuedAfter {
			delete(t.confirmed, courseID)
			continue
		}
		t.putLocked(cloneEnrollment(w.row))
	}
}

func (t *Tracker) putLocked(cp *types.Enrollment) {
	if existing := t.byCourse[cp.CourseID]; existing != nil {
		if cp.Course == nil {
			cp.Course = existing.Course
		}
		for i, e := range t.rows {
			if e.CourseID == cp.CourseID {
				t.rows[i] = cp
			}
		}
	} else {
		t.rows = append([]*types.Enrollment{cp}, t.rows...)
	}
	t.byCourse[cp.CourseID] = cp
}

func (t *Tracker) replaceLocked(rows []*types.Enrollment) {
	t.rows = make([]*types.Enrollment, 0, len(rows))
	t.byCourse = make(map[uuid.UUID]*types.Enrollment, len(rows))
	for _, e := range rows {
		cp := cloneEnrollment(e)
		t.rows = append(t.rows, cp)
		t.byCourse[cp.CourseID] = cp
	}
}

func applyProgress(e *types.Enrollment, progress int, completedAt *time.Time) *types.Enrollment {
	if e.Completed() {
		return e
	}
	e.Progress = progress
	if completedAt != nil {
		t := *completedAt
		e.CompletedAt = &t
	}
	return e
}

func cloneEnrollment(e *types.Enrollment) *types.Enrollment {
	cp := *e
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		cp.CompletedAt = &t
	}
	if e.Course != nil {
		c := *e.Course
		cp.Course = &c
	}
	return &cp
}
