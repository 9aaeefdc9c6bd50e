package enrollment

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/learnhub/internal/backend/backendtest"
	types "github.com/yungbote/learnhub/internal/domain"
	"github.com/yungbote/learnhub/internal/pkg/apierr"
	"github.com/yungbote/learnhub/internal/pkg/logger"
	"github.com/yungbote/learnhub/internal/session"
)

type harness struct {
	fake    *backendtest.Fake
	session *session.Manager
	tracker *Tracker
	course  *types.Course
	other   *types.Course
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fake := backendtest.New()
	be := fake.Backend()
	sm := session.NewManager(logger.Nop(), be.Auth, be.Profiles)
	tr := NewTracker(logger.Nop(), be.Enrollments, sm)
	t.Cleanup(func() {
		tr.Close()
		sm.Close()
	})
	return &harness{
		fake:    fake,
		session: sm,
		tracker: tr,
		course:  fake.PutCourse(&types.Course{Title: "Go Fundamentals", Duration: "10 hours"}),
		other:   fake.PutCourse(&types.Course{Title: "Statistics", Duration: "6 hours"}),
	}
}

func (h *harness) signIn(t *testing.T, email string) uuid.UUID {
	t.Helper()
	h.fake.AddAccount(email, "password1")
	lists := h.fake.Calls(backendtest.EnrollmentList)
	id, err := h.session.SignIn(context.Background(), email, "password1")
	require.NoError(t, err)
	// Wait for the refresh a new identity triggers so it cannot interleave
	// with the test's own calls.
	require.Eventually(t, func() bool { return h.fake.Calls(backendtest.EnrollmentList) > lists }, time.Second, time.Millisecond)
	return id.ID
}

func TestRequiresIdentity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.tracker.Enroll(ctx, h.course.ID)
	assert.True(t, errors.Is(err, apierr.ErrNotAuthenticated))
	_, err = h.tracker.UpdateProgress(ctx, h.course.ID, 10)
	assert.True(t, errors.Is(err, apierr.ErrNotAuthenticated))
	assert.True(t, errors.Is(h.tracker.Refresh(ctx), apierr.ErrNotAuthenticated))
	assert.False(t, h.tracker.IsEnrolled(h.course.ID))
}

func TestIsEnrolledFlipsWithoutRoundTrip(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "ada@example.com")
	ctx := context.Background()

	assert.False(t, h.tracker.IsEnrolled(h.course.ID))
	_, err := h.tracker.Enroll(ctx, h.course.ID)
	require.NoError(t, err)

	lists := h.fake.Calls(backendtest.EnrollmentList)
	assert.True(t, h.tracker.IsEnrolled(h.course.ID))
	assert.False(t, h.tracker.IsEnrolled(h.other.ID))
	require.NotNil(t, h.tracker.GetEnrollment(h.course.ID))
	assert.Equal(t, lists, h.fake.Calls(backendtest.EnrollmentList), "lookups must be served from cache")
}

func TestEnrollTwiceKeepsOneRow(t *testing.T) {
	h := newHarness(t)
	uid := h.signIn(t, "ada@example.com")
	ctx := context.Background()

	_, err := h.tracker.Enroll(ctx, h.course.ID)
	require.NoError(t, err)
	_, err = h.tracker.UpdateProgress(ctx, h.course.ID, 40)
	require.NoError(t, err)

	e, err := h.tracker.Enroll(ctx, h.course.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, e.Progress)

	rows := h.fake.EnrollmentRows(uid)
	require.Len(t, rows, 1)
	assert.Equal(t, 40, rows[0].Progress)
}

func TestEnrollExistingRowWithColdCache(t *testing.T) {
	h := newHarness(t)
	uid := h.signIn(t, "ada@example.com")
	ctx := context.Background()

	// Simulate an enrollment made from another device before this cache
	// ever saw it.
	_, err := h.fake.Backend().Enrollments.Insert(ctx, &types.Enrollment{UserID: uid, CourseID: h.course.ID, Progress: 25})
	require.NoError(t, err)
	h.fake.FailNext(backendtest.EnrollmentList, backendtest.Unavailable("list"))
	_ = h.tracker.Refresh(ctx)

	e, err := h.tracker.Enroll(ctx, h.course.ID)
	require.NoError(t, err, "duplicate enrollment is a no-op success")
	require.NotNil(t, e)
	assert.Equal(t, 25, e.Progress)
	assert.Len(t, h.fake.EnrollmentRows(uid), 1)
}

func TestCompletionLifecycle(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "ada@example.com")
	ctx := context.Background()
	_, err := h.tracker.Enroll(ctx, h.course.ID)
	require.NoError(t, err)

	e, err := h.tracker.UpdateProgress(ctx, h.course.ID, 99)
	require.NoError(t, err)
	assert.Equal(t, 99, e.Progress)
	assert.Nil(t, e.CompletedAt)

	e, err = h.tracker.UpdateProgress(ctx, h.course.ID, 100)
	require.NoError(t, err)
	require.NotNil(t, e.CompletedAt)
	completedAt := *e.CompletedAt

	e, err = h.tracker.UpdateProgress(ctx, h.course.ID, 30)
	require.NoError(t, err)
	require.NotNil(t, e.CompletedAt, "completion is one-way")
	assert.True(t, completedAt.Equal(*e.CompletedAt))
	assert.Equal(t, 100, e.Progress)
}

func TestUpdateProgressValidation(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "ada@example.com")
	ctx := context.Background()

	_, err := h.tracker.UpdateProgress(ctx, h.course.ID, 50)
	assert.True(t, errors.Is(err, apierr.ErrNotEnrolled))

	_, err = h.tracker.Enroll(ctx, h.course.ID)
	require.NoError(t, err)
	for _, p := range []int{-1, 101} {
		_, err = h.tracker.UpdateProgress(ctx, h.course.ID, p)
		assert.True(t, errors.Is(err, apierr.ErrValidation), "progress %d", p)
	}
}

func TestFailedRefreshKeepsCache(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "ada@example.com")
	ctx := context.Background()
	_, err := h.tracker.Enroll(ctx, h.course.ID)
	require.NoError(t, err)

	h.fake.FailNext(backendtest.EnrollmentList, errors.New("timeout"))
	err = h.tracker.Refresh(ctx)
	assert.True(t, errors.Is(err, apierr.ErrBackendUnavailable))
	assert.True(t, h.tracker.IsEnrolled(h.course.ID))
	assert.Error(t, h.tracker.Err())

	require.NoError(t, h.tracker.Refresh(ctx))
	assert.NoError(t, h.tracker.Err())
}

func TestProgressVisibleWhenRefreshFails(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "ada@example.com")
	ctx := context.Background()
	_, err := h.tracker.Enroll(ctx, h.course.ID)
	require.NoError(t, err)

	h.fake.FailNext(backendtest.EnrollmentList, backendtest.Unavailable("list"))
	e, err := h.tracker.UpdateProgress(ctx, h.course.ID, 100)
	require.NoError(t, err)
	assert.Equal(t, 100, e.Progress)
	assert.NotNil(t, e.CompletedAt)
}

func TestIdentityChangeResetsCache(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "ada@example.com")
	ctx := context.Background()
	_, err := h.tracker.Enroll(ctx, h.course.ID)
	require.NoError(t, err)

	require.NoError(t, h.session.SignOut(ctx))
	assert.False(t, h.tracker.IsEnrolled(h.course.ID))
	assert.Empty(t, h.tracker.Enrollments())

	h.signIn(t, "grace@example.com")
	assert.False(t, h.tracker.IsEnrolled(h.course.ID), "another user's enrollments must not leak")

	_, err = h.session.SignIn(ctx, "ada@example.com", "password1")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.tracker.IsEnrolled(h.course.ID) }, time.Second, 5*time.Millisecond)
}

func TestStaleRefreshIsDiscarded(t *testing.T) {
	h := newHarness(t)
	uid := h.signIn(t, "ada@example.com")
	ctx := context.Background()
	require.NoError(t, h.tracker.Refresh(ctx))

	release := make(chan struct{})
	entered := make(chan struct{})
	h.fake.SetHook(backendtest.EnrollmentList, func(ctx context.Context) error {
		select {
		case <-entered:
			return nil
		default:
			close(entered)
		}
		<-release
		return backendtest.Unavailable("slow list")
	})

	done := make(chan error, 1)
	go func() { done <- h.tracker.Refresh(ctx) }()
	<-entered

	_, err := h.fake.Backend().Enrollments.Insert(ctx, &types.Enrollment{UserID: uid, CourseID: h.other.ID})
	require.NoError(t, err)
	require.NoError(t, h.tracker.Refresh(ctx))
	assert.True(t, h.tracker.IsEnrolled(h.other.ID))

	close(release)
	assert.Error(t, <-done, "the caller still sees its own failure")
	assert.NoError(t, h.tracker.Err(), "a superseded failure must not overwrite newer state")
	assert.True(t, h.tracker.IsEnrolled(h.other.ID))
}

// supersedeNextRefresh makes the next list call start a newer Refresh that
// stalls until release is called, so the first caller's result goes stale.
func supersedeNextRefresh(t *testing.T, h *harness) (release func(), newer <-chan error) {
	t.Helper()
	unblock := make(chan struct{})
	stalled := make(chan struct{})
	done := make(chan error, 1)
	var calls int32
	h.fake.SetHook(backendtest.EnrollmentList, func(ctx context.Context) error {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			go func() { done <- h.tracker.Refresh(context.Background()) }()
			<-stalled
		case 2:
			close(stalled)
			<-unblock
		}
		return nil
	})
	var once atomic.Bool
	release = func() {
		if once.CompareAndSwap(false, true) {
			close(unblock)
		}
	}
	t.Cleanup(release)
	return release, done
}

func TestEnrollVisibleWhileNewerRefreshStalls(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "ada@example.com")
	ctx := context.Background()

	release, newer := supersedeNextRefresh(t, h)
	e, err := h.tracker.Enroll(ctx, h.course.ID)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, h.course.ID, e.CourseID)
	assert.True(t, h.tracker.IsEnrolled(h.course.ID))

	release()
	require.NoError(t, <-newer)
	assert.True(t, h.tracker.IsEnrolled(h.course.ID))
}

func TestUpdateProgressColdCacheWhileNewerRefreshStalls(t *testing.T) {
	h := newHarness(t)
	uid := h.signIn(t, "ada@example.com")
	ctx := context.Background()
	_, err := h.fake.Backend().Enrollments.Insert(ctx, &types.Enrollment{UserID: uid, CourseID: h.course.ID})
	require.NoError(t, err)

	release, newer := supersedeNextRefresh(t, h)
	e, err := h.tracker.UpdateProgress(ctx, h.course.ID, 30)
	require.NoError(t, err)
	require.NotNil(t, e)
	assert.Equal(t, 30, e.Progress)
	assert.True(t, h.tracker.IsEnrolled(h.course.ID))

	release()
	require.NoError(t, <-newer)
	assert.Equal(t, 30, h.tracker.GetEnrollment(h.course.ID).Progress)
}

func TestRefreshForPreviousIdentityIsDiscarded(t *testing.T) {
	h := newHarness(t)
	ada := h.signIn(t, "ada@example.com")
	ctx := context.Background()
	_, err := h.fake.Backend().Enrollments.Insert(ctx, &types.Enrollment{UserID: ada, CourseID: h.course.ID})
	require.NoError(t, err)

	release := make(chan struct{})
	entered := make(chan struct{})
	h.fake.SetHook(backendtest.EnrollmentList, func(ctx context.Context) error {
		select {
		case <-entered:
			return nil
		default:
			close(entered)
		}
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() { done <- h.tracker.Refresh(ctx) }()
	<-entered

	require.NoError(t, h.session.SignOut(ctx))
	h.signIn(t, "grace@example.com")
	close(release)
	<-done

	assert.False(t, h.tracker.IsEnrolled(h.course.ID))
	assert.Empty(t, h.tracker.Enrollments())
}

func TestStats(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "ada@example.com")
	ctx := context.Background()

	_, err := h.tracker.Enroll(ctx, h.course.ID)
	require.NoError(t, err)
	_, err = h.tracker.Enroll(ctx, h.other.ID)
	require.NoError(t, err)
	_, err = h.tracker.UpdateProgress(ctx, h.course.ID, 100)
	require.NoError(t, err)
	_, err = h.tracker.UpdateProgress(ctx, h.other.ID, 25)
	require.NoError(t, err)

	s := h.tracker.Stats()
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Completed)
	assert.Equal(t, 63, s.AverageProgress)
	// 10h at 100% + 6h at 25%
	assert.Equal(t, 12, s.HoursLearned)
	require.Len(t, s.RecentlyCompleted, 1)
	assert.Equal(t, h.course.ID, s.RecentlyCompleted[0].CourseID)
}

func TestComputeStatsEmpty(t *testing.T) {
	s := ComputeStats(nil)
	assert.Equal(t, 0, s.Total)
	assert.Equal(t, 0, s.AverageProgress)
	assert.Equal(t, 0, s.HoursLearned)
	assert.Empty(t, s.Recent)
}

func TestDurationHours(t *testing.T) {
	cases := map[string]int{
		"12 hours": 12,
		"8h":       8,
		"":         0,
		"unknown":  0,
		"  3 hrs":  3,
	}
	for in, want := range cases {
		assert.Equal(t, want, durationHours(in), in)
	}
}
