package catalog

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	types "github.com/yungbote/learnhub/internal/domain"
)

// All means "no constraint" for every string filter.
const All = "all"

const MaxLimit = 100

// Filters is the closed set of options a catalog listing accepts. Empty
// strings behave like All.
type Filters struct {
	Category string `validate:"max=64"`
	Level    string `validate:"omitempty,oneof=all beginner intermediate advanced"`
	Price    string `validate:"omitempty,oneof=all free paid"`
	// Rating is All or a decimal minimum in [0,5].
	Rating string `validate:"max=8"`
	Search string `validate:"max=200"`
	// Limit of 0 returns every match.
	Limit int `validate:"min=0,max=100"`
}

var levels = map[string]string{
	"beginner":     types.LevelBeginner,
	"intermediate": types.LevelIntermediate,
	"advanced":     types.LevelAdvanced,
}

// normalize lowercases the enumerated fields and trims free text so that
// validation and the query see the same values.
func (f Filters) normalize() Filters {
	f.Category = strings.TrimSpace(f.Category)
	f.Level = strings.ToLower(strings.TrimSpace(f.Level))
	f.Price = strings.ToLower(strings.TrimSpace(f.Price))
	f.Rating = strings.ToLower(strings.TrimSpace(f.Rating))
	f.Search = strings.TrimSpace(f.Search)
	return f
}

// Query validates f and converts it to the backend predicate set.
func (f Filters) Query(v *validator.Validate) (types.CourseQuery, error) {
	f = f.normalize()
	if err := v.Struct(f); err != nil {
		return types.CourseQuery{}, err
	}

	q := types.CourseQuery{Search: f.Search, Limit: f.Limit}
	if f.Category != "" && !strings.EqualFold(f.Category, All) {
		q.Category = f.Category
	}
	if f.Level != "" && f.Level != All {
		q.Level = levels[f.Level]
	}
	switch f.Price {
	case "free":
		q.Price = types.PriceFree
	case "paid":
		q.Price = types.PricePaid
	}
	if f.Rating != "" && f.Rating != All {
		threshold, err := strconv.ParseFloat(f.Rating, 64)
		if err != nil {
			return types.CourseQuery{}, fmt.Errorf("rating %q is not a number", f.Rating)
		}
		if math.IsNaN(threshold) || threshold < 0 || threshold > 5 {
			return types.CourseQuery{}, fmt.Errorf("rating %v outside [0,5]", threshold)
		}
		q.MinRating = &threshold
	}
	return q, nil
}
