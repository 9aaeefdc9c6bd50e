// Package seed loads catalog reference data from YAML into the course table.
package seed

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"

	"github.com/yungbote/learnhub/internal/data/repos"
	types "github.com/yungbote/learnhub/internal/domain"
	"github.com/yungbote/learnhub/internal/pkg/logger"
)

//go:embed courses.yaml
var defaultCatalogFS embed.FS

type catalogFile struct {
	Version int             `yaml:"version"`
	Courses []*types.Course `yaml:"courses"`
}

var validLevels = map[string]bool{
	types.LevelBeginner:     true,
	types.LevelIntermediate: true,
	types.LevelAdvanced:     true,
}

// LoadCourses reads a catalog file. An empty path loads the built-in
// catalog.
func LoadCourses(path string) ([]*types.Course, error) {
	data, err := readCatalog(path)
	if err != nil {
		return nil, err
	}
	return ParseCourses(data)
}

func ParseCourses(data []byte) ([]*types.Course, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if f.Version != 1 {
		return nil, fmt.Errorf("unsupported catalog version: %d", f.Version)
	}
	if len(f.Courses) == 0 {
		return nil, errors.New("catalog has no courses")
	}

	seen := map[string]bool{}
	for i, c := range f.Courses {
		if c == nil {
			return nil, fmt.Errorf("course %d is empty", i)
		}
		c.Title = strings.TrimSpace(c.Title)
		if c.Title == "" {
			return nil, fmt.Errorf("course %d: title is required", i)
		}
		if seen[c.Title] {
			return nil, fmt.Errorf("duplicate course title: %s", c.Title)
		}
		seen[c.Title] = true
		if !validLevels[c.Level] {
			return nil, fmt.Errorf("course %q: unknown level %q", c.Title, c.Level)
		}
		if c.Price < 0 {
			return nil, fmt.Errorf("course %q: negative price", c.Title)
		}
		if c.Rating < 0 || c.Rating > 5 {
			return nil, fmt.Errorf("course %q: rating %v outside [0,5]", c.Title, c.Rating)
		}
	}
	return f.Courses, nil
}

// IfEmpty inserts courses when the course table has no rows and reports how
// many were written. Creation times are spaced a second apart in file order
// so the first course in the file lists first.
func IfEmpty(ctx context.Context, db *gorm.DB, courseRepo repos.CourseRepo, log *logger.Logger, courses []*types.Course) (int, error) {
	var inserted int
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := courseRepo.Count(ctx, tx)
		if err != nil {
			return fmt.Errorf("count courses: %w", err)
		}
		if n > 0 {
			log.Debug("Catalog already seeded", "courses", n)
			return nil
		}
		base := time.Now().UTC().Add(-time.Duration(len(courses)) * time.Second)
		for i, c := range courses {
			if c.CreatedAt.IsZero() {
				c.CreatedAt = base.Add(time.Duration(len(courses)-i) * time.Second)
			}
		}
		created, err := courseRepo.Create(ctx, tx, courses)
		if err != nil {
			return fmt.Errorf("create courses: %w", err)
		}
		inserted = len(created)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if inserted > 0 {
		log.Info("Seeded catalog", "courses", inserted)
	}
	return inserted, nil
}

func readCatalog(path string) ([]byte, error) {
	if path = strings.TrimSpace(path); path != "" {
		return os.ReadFile(path)
	}
	return defaultCatalogFS.ReadFile("courses.yaml")
}
