package seed

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/yungbote/learnhub/internal/data/repos"
	"github.com/yungbote/learnhub/internal/data/repos/testutil"
	types "github.com/yungbote/learnhub/internal/domain"
)

func TestLoadBuiltInCatalog(t *testing.T) {
	courses, err := LoadCourses("")
	if err != nil {
		t.Fatalf("LoadCourses: %v", err)
	}
	if len(courses) < 4 {
		t.Fatalf("built-in catalog too small: %d", len(courses))
	}
	free := 0
	for _, c := range courses {
		if c.Price == 0 {
			free++
		}
	}
	if free == 0 || free == len(courses) {
		t.Fatalf("built-in catalog should mix free and paid courses, free=%d", free)
	}
}

func TestLoadCoursesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := []byte(`version: 1
courses:
  - title: Intro to Go
    level: Beginner
    category: Programming
    price: 0
    rating: 4.5
    duration: 8 hours
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	courses, err := LoadCourses(path)
	if err != nil {
		t.Fatalf("LoadCourses: %v", err)
	}
	if len(courses) != 1 || courses[0].Title != "Intro to Go" || courses[0].Duration != "8 hours" {
		t.Fatalf("unexpected courses: %+v", courses)
	}
}

func TestParseCoursesRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"version":   "version: 2\ncourses:\n  - title: A\n    level: Beginner\n",
		"empty":     "version: 1\ncourses: []\n",
		"no title":  "version: 1\ncourses:\n  - level: Beginner\n",
		"level":     "version: 1\ncourses:\n  - title: A\n    level: Expert\n",
		"duplicate": "version: 1\ncourses:\n  - title: A\n    level: Beginner\n  - title: A\n    level: Advanced\n",
		"rating":    "version: 1\ncourses:\n  - title: A\n    level: Beginner\n    rating: 9\n",
		"syntax":    "version: [1\n",
	}
	for name, in := range cases {
		if _, err := ParseCourses([]byte(in)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestIfEmptySeedsOnce(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	courseRepo := repos.NewCourseRepo(db, log)
	ctx := context.Background()

	courses, err := LoadCourses("")
	if err != nil {
		t.Fatalf("LoadCourses: %v", err)
	}
	n, err := IfEmpty(ctx, db, courseRepo, log, courses)
	if err != nil {
		t.Fatalf("IfEmpty: %v", err)
	}
	if n != len(courses) {
		t.Fatalf("inserted: want=%d got=%d", len(courses), n)
	}

	again, err := LoadCourses("")
	if err != nil {
		t.Fatalf("LoadCourses: %v", err)
	}
	n, err = IfEmpty(ctx, db, courseRepo, log, again)
	if err != nil {
		t.Fatalf("IfEmpty second run: %v", err)
	}
	if n != 0 {
		t.Fatalf("second run should insert nothing, got %d", n)
	}

	listed, err := courseRepo.List(ctx, nil, types.CourseQuery{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listed) != len(courses) {
		t.Fatalf("count: want=%d got=%d", len(courses), len(listed))
	}
	if listed[0].Title != courses[0].Title {
		t.Fatalf("first listed: want=%s got=%s", courses[0].Title, listed[0].Title)
	}
}
