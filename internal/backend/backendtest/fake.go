// Package backendtest provides an in-memory backend.Backend for component
// tests. Every call passes through a per-method hook so tests can inject
// failures or hold a call open to force out-of-order completion.
package backendtest

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/learnhub/internal/backend"
	types "github.com/yungbote/learnhub/internal/domain"
	"github.com/yungbote/learnhub/internal/pkg/apierr"
)

type Method string

const (
	GetSession         Method = "auth.GetSession"
	SignUp             Method = "auth.SignUp"
	SignInWithPassword Method = "auth.SignInWithPassword"
	SignOut            Method = "auth.SignOut"
	ProfileGet         Method = "profiles.GetByID"
	ProfileUpsert      Method = "profiles.Upsert"
	CourseList         Method = "courses.List"
	CourseGet          Method = "courses.GetByID"
	EnrollmentList     Method = "enrollments.ListByUser"
	EnrollmentInsert   Method = "enrollments.Insert"
	EnrollmentProgress Method = "enrollments.UpdateProgress"
	ReviewList         Method = "reviews.ListByCourse"
	ReviewInsert       Method = "reviews.Insert"
	ReviewUpdate       Method = "reviews.Update"
	ReviewHelpful      Method = "reviews.IncrementHelpful"
)

// Hook runs before a method touches state. A non-nil error is returned to
// the caller instead.
type Hook func(ctx context.Context) error

type account struct {
	identity  backend.Identity
	password  string
	confirmed bool
}

type Fake struct {
	// RequireConfirmation makes SignUp return no session and SignIn fail
	// with EmailNotConfirmed until Confirm is called.
	RequireConfirmation bool
	MinPasswordLength   int

	mu          sync.Mutex
	calls       map[Method]int
	failNext    map[Method][]error
	hooks       map[Method]Hook
	accounts    map[string]*account
	session     *backend.Session
	listeners   map[int]func(backend.AuthChange)
	nextListen  int
	profiles    map[uuid.UUID]*types.UserProfile
	courses     map[uuid.UUID]*types.Course
	enrollments map[uuid.UUID]*types.Enrollment
	reviews     map[uuid.UUID]*types.Review
	clock       func() time.Time
}

func New() *Fake {
	return &Fake{
		MinPasswordLength: 8,
		calls:             map[Method]int{},
		failNext:          map[Method][]error{},
		hooks:             map[Method]Hook{},
		accounts:          map[string]*account{},
		listeners:         map[int]func(backend.AuthChange){},
		profiles:          map[uuid.UUID]*types.UserProfile{},
		courses:           map[uuid.UUID]*types.Course{},
		enrollments:       map[uuid.UUID]*types.Enrollment{},
		reviews:           map[uuid.UUID]*types.Review{},
		clock:             func() time.Time { return time.Now().UTC() },
	}
}

func (f *Fake) Backend() backend.Backend {
	return backend.Backend{
		Auth:        (*fakeAuth)(f),
		Profiles:    (*fakeProfiles)(f),
		Courses:     (*fakeCourses)(f),
		Enrollments: (*fakeEnrollments)(f),
		Reviews:     (*fakeReviews)(f),
	}
}

// FailNext queues err for the next call of m. Queued errors are consumed in
// order.
func (f *Fake) FailNext(m Method, err error) {
	f.mu.Lock()
	f.failNext[m] = append(f.failNext[m], err)
	f.mu.Unlock()
}

// SetHook installs h for every later call of m; nil removes it.
func (f *Fake) SetHook(m Method, h Hook) {
	f.mu.Lock()
	if h == nil {
		delete(f.hooks, m)
	} else {
		f.hooks[m] = h
	}
	f.mu.Unlock()
}

func (f *Fake) Calls(m Method) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[m]
}

func (f *Fake) enter(ctx context.Context, m Method) error {
	f.mu.Lock()
	f.calls[m]++
	var queued error
	if q := f.failNext[m]; len(q) > 0 {
		queued = q[0]
		f.failNext[m] = q[1:]
	}
	hook := f.hooks[m]
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	if queued != nil {
		return queued
	}
	return ctx.Err()
}

// Unavailable is a ready-made transient failure for FailNext.
func Unavailable(op string) error {
	return apierr.Newf(apierr.CodeBackendUnavailable, op, "simulated outage")
}

// ---- seeding ----

// AddAccount registers a confirmed user directly and returns its identity.
func (f *Fake) AddAccount(email, password string) backend.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := backend.Identity{ID: uuid.New(), Email: strings.ToLower(email)}
	f.accounts[id.Email] = &account{identity: id, password: password, confirmed: true}
	return id
}

func (f *Fake) Confirm(email string) {
	f.mu.Lock()
	if a := f.accounts[strings.ToLower(email)]; a != nil {
		a.confirmed = true
	}
	f.mu.Unlock()
}

func (f *Fake) PutProfile(p *types.UserProfile) {
	f.mu.Lock()
	cp := *p
	f.profiles[p.UserID] = &cp
	f.mu.Unlock()
}

func (f *Fake) PutCourse(c *types.Course) *types.Course {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = f.clock()
	}
	f.courses[cp.ID] = &cp
	out := cp
	return &out
}

func (f *Fake) PutReview(r *types.Review) *types.Review {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = f.clock()
	}
	cp.UpdatedAt = cp.CreatedAt
	f.reviews[cp.ID] = &cp
	out := cp
	return &out
}

// EnrollmentRows returns the stored rows for a user, unordered.
func (f *Fake) EnrollmentRows(userID uuid.UUID) []types.Enrollment {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Enrollment
	for _, e := range f.enrollments {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	return out
}

// ReviewRows returns the stored rows for a course, unordered.
func (f *Fake) ReviewRows(courseID uuid.UUID) []types.Review {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Review
	for _, r := range f.reviews {
		if r.CourseID == courseID {
			out = append(out, *r)
		}
	}
	return out
}

// Emit delivers a change to every listener as a remote auth event would,
// updating the fake's current session to match.
func (f *Fake) Emit(change backend.AuthChange) {
	f.mu.Lock()
	if change.Event == backend.EventSignedOut {
		f.session = nil
	} else if change.Session != nil {
		s := *change.Session
		f.session = &s
	}
	fns := f.listenersLocked()
	f.mu.Unlock()
	for _, fn := range fns {
		fn(change)
	}
}

// SetSession installs a session as if one were persisted from a previous run.
func (f *Fake) SetSession(s *backend.Session) {
	f.mu.Lock()
	f.session = s
	f.mu.Unlock()
}

func (f *Fake) listenersLocked() []func(backend.AuthChange) {
	keys := make([]int, 0, len(f.listeners))
	for k := range f.listeners {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]func(backend.AuthChange), 0, len(keys))
	for _, k := range keys {
		out = append(out, f.listeners[k])
	}
	return out
}

func (f *Fake) newSession(id backend.Identity) *backend.Session {
	return &backend.Session{
		AccessToken:  "access-" + uuid.NewString(),
		RefreshToken: "refresh-" + uuid.NewString(),
		ExpiresAt:    f.clock().Add(time.Hour),
		User:         id,
	}
}

// ---- auth ----

type fakeAuth Fake

func (a *fakeAuth) f() *Fake { return (*Fake)(a) }

func (a *fakeAuth) GetSession(ctx context.Context) (*backend.Session, error) {
	f := a.f()
	if err := f.enter(ctx, GetSession); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return nil, nil
	}
	s := *f.session
	return &s, nil
}

func (a *fakeAuth) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*backend.SignUpResult, error) {
	const op = "backendtest.SignUp"
	f := a.f()
	if err := f.enter(ctx, SignUp); err != nil {
		return nil, err
	}
	if len(password) < f.MinPasswordLength {
		return nil, apierr.Newf(apierr.CodeWeakPassword, op, "password shorter than %d", f.MinPasswordLength)
	}

	f.mu.Lock()
	key := strings.ToLower(strings.TrimSpace(email))
	if _, ok := f.accounts[key]; ok {
		f.mu.Unlock()
		return nil, apierr.Newf(apierr.CodeDuplicateEmail, op, "email already registered")
	}
	meta, _ := json.Marshal(metadata)
	id := backend.Identity{ID: uuid.New(), Email: key, Metadata: meta}
	f.accounts[key] = &account{identity: id, password: password, confirmed: !f.RequireConfirmation}
	if f.RequireConfirmation {
		f.mu.Unlock()
		return &backend.SignUpResult{User: id}, nil
	}
	s := f.newSession(id)
	f.session = s
	fns := f.listenersLocked()
	f.mu.Unlock()

	out := *s
	for _, fn := range fns {
		fn(backend.AuthChange{Event: backend.EventSignedIn, Session: &out})
	}
	return &backend.SignUpResult{User: id, Session: &out}, nil
}

func (a *fakeAuth) SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error) {
	const op = "backendtest.SignInWithPassword"
	f := a.f()
	if err := f.enter(ctx, SignInWithPassword); err != nil {
		return nil, err
	}
	f.mu.Lock()
	acc := f.accounts[strings.ToLower(strings.TrimSpace(email))]
	if acc == nil || acc.password != password {
		f.mu.Unlock()
		return nil, apierr.Newf(apierr.CodeInvalidCredentials, op, "invalid login credentials")
	}
	if !acc.confirmed {
		f.mu.Unlock()
		return nil, apierr.Newf(apierr.CodeEmailNotConfirmed, op, "email not confirmed")
	}
	s := f.newSession(acc.identity)
	f.session = s
	fns := f.listenersLocked()
	f.mu.Unlock()

	out := *s
	for _, fn := range fns {
		fn(backend.AuthChange{Event: backend.EventSignedIn, Session: &out})
	}
	return &out, nil
}

func (a *fakeAuth) SignOut(ctx context.Context) error {
	f := a.f()
	if err := f.enter(ctx, SignOut); err != nil {
		return err
	}
	f.mu.Lock()
	f.session = nil
	fns := f.listenersLocked()
	f.mu.Unlock()
	for _, fn := range fns {
		fn(backend.AuthChange{Event: backend.EventSignedOut})
	}
	return nil
}

func (a *fakeAuth) OnAuthStateChange(fn func(backend.AuthChange)) func() {
	f := a.f()
	f.mu.Lock()
	id := f.nextListen
	f.nextListen++
	f.listeners[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.listeners, id)
			f.mu.Unlock()
		})
	}
}

// ---- profiles ----

type fakeProfiles Fake

func (p *fakeProfiles) GetByID(ctx context.Context, userID uuid.UUID) (*types.UserProfile, error) {
	f := (*Fake)(p)
	if err := f.enter(ctx, ProfileGet); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.profiles[userID]
	if !ok {
		return nil, apierr.Newf(apierr.CodeNotFound, "backendtest.Profiles.GetByID", "no profile for %s", userID)
	}
	out := *row
	return &out, nil
}

func (p *fakeProfiles) Upsert(ctx context.Context, profile *types.UserProfile) (*types.UserProfile, error) {
	f := (*Fake)(p)
	if err := f.enter(ctx, ProfileUpsert); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.clock()
	row := *profile
	if prev, ok := f.profiles[profile.UserID]; ok {
		row.CreatedAt = prev.CreatedAt
	} else {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	f.profiles[row.UserID] = &row
	out := row
	return &out, nil
}

// ---- courses ----

type fakeCourses Fake

func (c *fakeCourses) List(ctx context.Context, q types.CourseQuery) ([]*types.Course, error) {
	f := (*Fake)(c)
	if err := f.enter(ctx, CourseList); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	search := strings.ToLower(strings.TrimSpace(q.Search))
	var out []*types.Course
	for _, row := range f.courses {
		if q.Category != "" && row.Category != q.Category {
			continue
		}
		if q.Level != "" && row.Level != q.Level {
			continue
		}
		if q.Price == types.PriceFree && row.Price != 0 {
			continue
		}
		if q.Price == types.PricePaid && row.Price <= 0 {
			continue
		}
		if q.MinRating != nil && row.Rating < *q.MinRating {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(row.Title), search) &&
			!strings.Contains(strings.ToLower(row.Description), search) {
			continue
		}
		cp := *row
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (c *fakeCourses) GetByID(ctx context.Context, courseID uuid.UUID) (*types.Course, error) {
	f := (*Fake)(c)
	if err := f.enter(ctx, CourseGet); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.courses[courseID]
	if !ok {
		return nil, apierr.Newf(apierr.CodeNotFound, "backendtest.Courses.GetByID", "course %s", courseID)
	}
	out := *row
	return &out, nil
}

// ---- enrollments ----

type fakeEnrollments Fake

func (e *fakeEnrollments) ListByUser(ctx context.Context, userID uuid.UUID) ([]*types.Enrollment, error) {
	f := (*Fake)(e)
	if err := f.enter(ctx, EnrollmentList); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Enrollment
	for _, row := range f.enrollments {
		if row.UserID != userID {
			continue
		}
		cp := *row
		if c, ok := f.courses[row.CourseID]; ok {
			course := *c
			cp.Course = &course
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnrolledAt.Equal(out[j].EnrolledAt) {
			return out[i].EnrolledAt.After(out[j].EnrolledAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out, nil
}

func (e *fakeEnrollments) Insert(ctx context.Context, row *types.Enrollment) (*types.Enrollment, error) {
	f := (*Fake)(e)
	if err := f.enter(ctx, EnrollmentInsert); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.enrollments {
		if existing.UserID == row.UserID && existing.CourseID == row.CourseID {
			return nil, apierr.Newf(apierr.CodeConflict, "backendtest.Enrollments.Insert", "already enrolled")
		}
	}
	cp := *row
	cp.Course = nil
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.EnrolledAt.IsZero() {
		cp.EnrolledAt = f.clock()
	}
	cp.UpdatedAt = cp.EnrolledAt
	f.enrollments[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (e *fakeEnrollments) UpdateProgress(ctx context.Context, userID, courseID uuid.UUID, progress int, completedAt *time.Time) error {
	f := (*Fake)(e)
	if err := f.enter(ctx, EnrollmentProgress); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.enrollments {
		if row.UserID != userID || row.CourseID != courseID {
			continue
		}
		if row.CompletedAt == nil {
			row.Progress = progress
			if completedAt != nil {
				t := completedAt.UTC()
				row.CompletedAt = &t
			}
		}
		row.UpdatedAt = f.clock()
		return nil
	}
	return apierr.Newf(apierr.CodeNotFound, "backendtest.Enrollments.UpdateProgress", "not enrolled")
}

// ---- reviews ----

type fakeReviews Fake

func (r *fakeReviews) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]*types.Review, error) {
	f := (*Fake)(r)
	if err := f.enter(ctx, ReviewList); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*types.Review
	for _, row := range f.reviews {
		if row.CourseID != courseID {
			continue
		}
		cp := *row
		if p, ok := f.profiles[row.UserID]; ok {
			author := *p
			cp.Author = &author
		}
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out, nil
}

func (r *fakeReviews) Insert(ctx context.Context, row *types.Review) (*types.Review, error) {
	f := (*Fake)(r)
	if err := f.enter(ctx, ReviewInsert); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.reviews {
		if existing.UserID == row.UserID && existing.CourseID == row.CourseID {
			return nil, apierr.Newf(apierr.CodeConflict, "backendtest.Reviews.Insert", "already reviewed")
		}
	}
	cp := *row
	cp.Author = nil
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	now := f.clock()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	f.reviews[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (r *fakeReviews) Update(ctx context.Context, reviewID uuid.UUID, rating int, body string) error {
	f := (*Fake)(r)
	if err := f.enter(ctx, ReviewUpdate); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.reviews[reviewID]
	if !ok {
		return apierr.Newf(apierr.CodeNotFound, "backendtest.Reviews.Update", "review %s", reviewID)
	}
	row.Rating = rating
	row.Body = body
	row.UpdatedAt = f.clock()
	return nil
}

func (r *fakeReviews) IncrementHelpful(ctx context.Context, reviewID uuid.UUID) error {
	f := (*Fake)(r)
	if err := f.enter(ctx, ReviewHelpful); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.reviews[reviewID]
	if !ok {
		return apierr.Newf(apierr.CodeNotFound, "backendtest.Reviews.IncrementHelpful", "review %s", reviewID)
	}
	row.HelpfulCount++
	return nil
}
