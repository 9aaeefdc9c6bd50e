package domain

import (
	"github.com/yungbote/learnhub/internal/domain/auth"
	"github.com/yungbote/learnhub/internal/domain/learning"
	"github.com/yungbote/learnhub/internal/domain/user"
)

type (
	User        = user.User
	UserProfile = user.UserProfile
	UserToken   = auth.UserToken

	Course      = learning.Course
	CourseQuery = learning.CourseQuery
	PriceFilter = learning.PriceFilter
	Enrollment  = learning.Enrollment
	Review      = learning.Review
)

const (
	PriceAny  = learning.PriceAny
	PriceFree = learning.PriceFree
	PricePaid = learning.PricePaid

	LevelBeginner     = learning.LevelBeginner
	LevelIntermediate = learning.LevelIntermediate
	LevelAdvanced     = learning.LevelAdvanced
)

// Models lists every persisted type in migration order.
func Models() []interface{} {
	return []interface{}{
		&User{},
		&UserProfile{},
		&UserToken{},
		&Course{},
		&Enrollment{},
		&Review{},
	}
}
