package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/learnhub/internal/backend/backendtest"
	types "github.com/yungbote/learnhub/internal/domain"
	"github.com/yungbote/learnhub/internal/pkg/apierr"
	"github.com/yungbote/learnhub/internal/pkg/logger"
)

func seedCatalog(t *testing.T) (*Engine, *backendtest.Fake, []*types.Course) {
	t.Helper()
	fake := backendtest.New()
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []*types.Course{
		{Title: "Go Fundamentals", Description: "Types, slices and maps", Category: "Programming", Level: types.LevelBeginner, Price: 0, Rating: 4.6},
		{Title: "Distributed Systems", Description: "Consensus and replication", Category: "Programming", Level: types.LevelAdvanced, Price: 49.99, Rating: 4.8},
		{Title: "Watercolor Basics", Description: "Loose landscapes in GO-style washes", Category: "Art", Level: types.LevelBeginner, Price: 19, Rating: 3.9},
		{Title: "Statistics", Description: "Probability and inference", Category: "Math", Level: types.LevelIntermediate, Price: 0, Rating: 4.2},
	}
	var seeded []*types.Course
	for i, c := range rows {
		c.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		seeded = append(seeded, fake.PutCourse(c))
	}
	e := NewEngine(logger.Nop(), fake.Backend().Courses)
	t.Cleanup(e.Close)
	return e, fake, seeded
}

func titles(cs []*types.Course) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Title)
	}
	return out
}

func TestListAllReturnsFullCatalogNewestFirst(t *testing.T) {
	e, _, _ := seedCatalog(t)
	want := []string{"Statistics", "Watercolor Basics", "Distributed Systems", "Go Fundamentals"}

	for _, f := range []Filters{
		{},
		{Category: All, Level: All, Price: All, Rating: All, Search: ""},
	} {
		got, err := e.ListCourses(context.Background(), f)
		require.NoError(t, err)
		assert.Equal(t, want, titles(got))
	}
	assert.Equal(t, want, titles(e.Courses()))
}

func TestListFilters(t *testing.T) {
	e, _, _ := seedCatalog(t)
	cases := []struct {
		name string
		f    Filters
		want []string
	}{
		{"category", Filters{Category: "Programming"}, []string{"Distributed Systems", "Go Fundamentals"}},
		{"level is case insensitive", Filters{Level: "BEGINNER"}, []string{"Watercolor Basics", "Go Fundamentals"}},
		{"free", Filters{Price: "free"}, []string{"Statistics", "Go Fundamentals"}},
		{"paid", Filters{Price: "paid"}, []string{"Watercolor Basics", "Distributed Systems"}},
		{"min rating", Filters{Rating: "4.5"}, []string{"Distributed Systems", "Go Fundamentals"}},
		{"search title or description", Filters{Search: "go"}, []string{"Watercolor Basics", "Go Fundamentals"}},
		{"combined", Filters{Category: "Programming", Price: "free", Rating: "4"}, []string{"Go Fundamentals"}},
		{"limit", Filters{Limit: 2}, []string{"Statistics", "Watercolor Basics"}},
		{"no match", Filters{Category: "Cooking"}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.ListCourses(context.Background(), tc.f)
			require.NoError(t, err)
			assert.Equal(t, tc.want, titles(got))
		})
	}
}

func TestInvalidFiltersReturnValidationErrorAndEmptyResult(t *testing.T) {
	e, fake, _ := seedCatalog(t)
	for _, f := range []Filters{
		{Level: "expert"},
		{Price: "cheap"},
		{Rating: "high"},
		{Rating: "7"},
		{Limit: -1},
		{Limit: MaxLimit + 1},
	} {
		got, err := e.ListCourses(context.Background(), f)
		assert.True(t, errors.Is(err, apierr.ErrValidation), "filters %+v: %v", f, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
	assert.Equal(t, 0, fake.Calls(backendtest.CourseList), "invalid filters never reach the backend")
}

func TestBackendFailureKeepsPreviousResults(t *testing.T) {
	e, fake, _ := seedCatalog(t)
	_, err := e.ListCourses(context.Background(), Filters{Category: "Programming"})
	require.NoError(t, err)

	fake.FailNext(backendtest.CourseList, errors.New("connection reset"))
	got, err := e.ListCourses(context.Background(), Filters{Category: "Art"})
	assert.True(t, errors.Is(err, apierr.ErrBackendUnavailable))
	assert.Empty(t, got)
	assert.Equal(t, []string{"Distributed Systems", "Go Fundamentals"}, titles(e.Courses()))
	assert.Equal(t, "Programming", e.Filters().Category)
	assert.Error(t, e.Err())
}

func TestStaleListingIsDiscarded(t *testing.T) {
	e, fake, _ := seedCatalog(t)

	release := make(chan struct{})
	entered := make(chan struct{})
	first := true
	fake.SetHook(backendtest.CourseList, func(ctx context.Context) error {
		if first {
			first = false
			close(entered)
			<-release
		}
		return nil
	})

	slow := make(chan []*types.Course, 1)
	go func() {
		got, _ := e.ListCourses(context.Background(), Filters{Category: "Art"})
		slow <- got
	}()
	<-entered

	_, err := e.ListCourses(context.Background(), Filters{Category: "Math"})
	require.NoError(t, err)
	close(release)
	<-slow

	assert.Equal(t, []string{"Statistics"}, titles(e.Courses()))
	assert.Equal(t, "Math", e.Filters().Category)
}

func TestGetCourse(t *testing.T) {
	e, _, seeded := seedCatalog(t)

	c, err := e.GetCourse(context.Background(), seeded[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "Distributed Systems", c.Title)

	_, err = e.GetCourse(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, apierr.ErrNotFound))
}

func TestCloseDropsInFlightListing(t *testing.T) {
	e, fake, _ := seedCatalog(t)
	release := make(chan struct{})
	entered := make(chan struct{})
	fake.SetHook(backendtest.CourseList, func(ctx context.Context) error {
		close(entered)
		<-release
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.ListCourses(context.Background(), Filters{})
	}()
	<-entered
	e.Close()
	close(release)
	<-done
	assert.Empty(t, e.Courses())
}
