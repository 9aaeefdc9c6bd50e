package local

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/learnhub/internal/backend"
	"github.com/yungbote/learnhub/internal/data/repos/testutil"
	types "github.com/yungbote/learnhub/internal/domain"
	"github.com/yungbote/learnhub/internal/pkg/apierr"
	"github.com/yungbote/learnhub/internal/realtime/bus"
)

type recorder struct {
	mu     sync.Mutex
	events []backend.AuthChange
}

func (r *recorder) record(c backend.AuthChange) {
	r.mu.Lock()
	r.events = append(r.events, c)
	r.mu.Unlock()
}

func (r *recorder) kinds() []backend.AuthEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]backend.AuthEvent, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Event)
	}
	return out
}

func newTestBackend(t *testing.T, cfg AuthConfig) (backend.Backend, *Auth, Repos) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	if cfg.JWTSecretKey == "" {
		cfg.JWTSecretKey = "test-secret"
	}
	r := NewRepos(db, log)
	be, auth, err := New(db, log, r, NewMemorySessionStore(), bus.NewMemoryBus(), cfg)
	require.NoError(t, err)
	return be, auth, r
}

func TestAuthSignUpSignInSignOut(t *testing.T) {
	ctx := context.Background()
	be, _, _ := newTestBackend(t, AuthConfig{})
	rec := &recorder{}
	unsub := be.Auth.OnAuthStateChange(rec.record)
	defer unsub()

	res, err := be.Auth.SignUp(ctx, "Ada@Example.com", "correct-horse", map[string]any{"full_name": "Ada"})
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	assert.Equal(t, "ada@example.com", res.User.Email)

	profile, err := be.Profiles.GetByID(ctx, res.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", profile.FullName)

	_, err = be.Auth.SignUp(ctx, "ada@example.com", "another-password", nil)
	assert.Equal(t, apierr.CodeDuplicateEmail, apierr.CodeOf(err))

	_, err = be.Auth.SignUp(ctx, "bob@example.com", "short", nil)
	assert.Equal(t, apierr.CodeWeakPassword, apierr.CodeOf(err))

	_, err = be.Auth.SignUp(ctx, "not-an-email", "long-enough-pw", nil)
	assert.Equal(t, apierr.CodeValidation, apierr.CodeOf(err))

	_, err = be.Auth.SignInWithPassword(ctx, "ada@example.com", "wrong-password")
	assert.Equal(t, apierr.CodeInvalidCredentials, apierr.CodeOf(err))
	_, err = be.Auth.SignInWithPassword(ctx, "nobody@example.com", "whatever-pw")
	assert.Equal(t, apierr.CodeInvalidCredentials, apierr.CodeOf(err))

	s, err := be.Auth.SignInWithPassword(ctx, "ADA@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, s.User.ID)

	got, err := be.Auth.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, s.AccessToken, got.AccessToken)

	require.NoError(t, be.Auth.SignOut(ctx))
	got, err = be.Auth.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.Equal(t, []backend.AuthEvent{
		backend.EventSignedIn,
		backend.EventSignedIn,
		backend.EventSignedOut,
	}, rec.kinds())
}

func TestAuthEmailConfirmationRequired(t *testing.T) {
	ctx := context.Background()
	be, auth, _ := newTestBackend(t, AuthConfig{RequireEmailConfirmation: true})

	res, err := be.Auth.SignUp(ctx, "pending@example.com", "long-enough-pw", nil)
	require.NoError(t, err)
	assert.Nil(t, res.Session, "no session until the email is confirmed")

	_, err = be.Auth.SignInWithPassword(ctx, "pending@example.com", "long-enough-pw")
	assert.Equal(t, apierr.CodeEmailNotConfirmed, apierr.CodeOf(err))

	require.NoError(t, auth.ConfirmEmail(ctx, "pending@example.com"))
	_, err = be.Auth.SignInWithPassword(ctx, "pending@example.com", "long-enough-pw")
	require.NoError(t, err)
}

func TestAuthGetSessionRefreshesExpiredAccessToken(t *testing.T) {
	ctx := context.Background()
	be, auth, _ := newTestBackend(t, AuthConfig{AccessTTL: time.Minute})

	_, err := be.Auth.SignUp(ctx, "refresh@example.com", "long-enough-pw", nil)
	require.NoError(t, err)
	first, err := be.Auth.GetSession(ctx)
	require.NoError(t, err)

	rec := &recorder{}
	defer be.Auth.OnAuthStateChange(rec.record)()

	auth.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	refreshed, err := be.Auth.GetSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, refreshed)
	assert.NotEqual(t, first.RefreshToken, refreshed.RefreshToken)
	assert.True(t, refreshed.ExpiresAt.After(first.ExpiresAt))
	assert.Equal(t, []backend.AuthEvent{backend.EventTokenRefreshed}, rec.kinds())
}

func TestAuthExpiredRefreshTokenSignsOut(t *testing.T) {
	ctx := context.Background()
	be, auth, _ := newTestBackend(t, AuthConfig{AccessTTL: time.Minute, RefreshTTL: time.Hour})

	_, err := be.Auth.SignUp(ctx, "stale@example.com", "long-enough-pw", nil)
	require.NoError(t, err)

	rec := &recorder{}
	defer be.Auth.OnAuthStateChange(rec.record)()

	auth.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	_, err = auth.Refresh(ctx)
	assert.Equal(t, apierr.CodeNotAuthenticated, apierr.CodeOf(err))
	assert.Equal(t, []backend.AuthEvent{backend.EventSignedOut}, rec.kinds())

	got, err := be.Auth.GetSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestAuthRemoteEventsReachOtherProcess(t *testing.T) {
	ctx := context.Background()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	r := NewRepos(db, log)
	store := NewMemorySessionStore()
	shared := bus.NewMemoryBus()
	cfg := AuthConfig{JWTSecretKey: "test-secret", ClientKey: "browser-1"}

	_, first, err := New(db, log, r, store, shared, cfg)
	require.NoError(t, err)
	_, second, err := New(db, log, r, store, shared, cfg)
	require.NoError(t, err)
	require.NoError(t, first.Start(ctx))
	require.NoError(t, second.Start(ctx))
	t.Cleanup(first.Close)
	t.Cleanup(second.Close)

	rec := &recorder{}
	defer second.OnAuthStateChange(rec.record)()

	_, err = first.SignUp(ctx, "shared@example.com", "long-enough-pw", nil)
	require.NoError(t, err)
	require.NoError(t, first.SignOut(ctx))

	assert.Equal(t, []backend.AuthEvent{backend.EventSignedIn, backend.EventSignedOut}, rec.kinds())
	rec.mu.Lock()
	require.NotNil(t, rec.events[0].Session)
	assert.Equal(t, "shared@example.com", rec.events[0].Session.User.Email)
	rec.mu.Unlock()
}

func TestCollectionsMapConflictsAndMissingRows(t *testing.T) {
	ctx := context.Background()
	be, _, r := newTestBackend(t, AuthConfig{})

	res, err := be.Auth.SignUp(ctx, "learner@example.com", "long-enough-pw", nil)
	require.NoError(t, err)
	userID := res.User.ID

	_, err = be.Profiles.GetByID(ctx, uuid.New())
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))
	_, err = be.Courses.GetByID(ctx, uuid.New())
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))

	created, err := r.Course.Create(ctx, nil, []*types.Course{{Title: "Go", Duration: "4 hours"}})
	require.NoError(t, err)
	courseID := created[0].ID

	_, err = be.Enrollments.Insert(ctx, &types.Enrollment{UserID: userID, CourseID: courseID})
	require.NoError(t, err)
	_, err = be.Enrollments.Insert(ctx, &types.Enrollment{UserID: userID, CourseID: courseID})
	assert.Equal(t, apierr.CodeConflict, apierr.CodeOf(err))

	err = be.Enrollments.UpdateProgress(ctx, userID, uuid.New(), 10, nil)
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(err))

	rv, err := be.Reviews.Insert(ctx, &types.Review{UserID: userID, CourseID: courseID, Rating: 4, Body: "ok"})
	require.NoError(t, err)
	_, err = be.Reviews.Insert(ctx, &types.Review{UserID: userID, CourseID: courseID, Rating: 5, Body: "dup"})
	assert.Equal(t, apierr.CodeConflict, apierr.CodeOf(err))

	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(be.Reviews.Update(ctx, uuid.New(), 3, "x")))
	assert.Equal(t, apierr.CodeNotFound, apierr.CodeOf(be.Reviews.IncrementHelpful(ctx, uuid.New())))
	require.NoError(t, be.Reviews.IncrementHelpful(ctx, rv.ID))

	rows, err := be.Reviews.ListByCourse(ctx, courseID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].HelpfulCount)
	require.NotNil(t, rows[0].Author, "sign-up creates the profile row")
}
