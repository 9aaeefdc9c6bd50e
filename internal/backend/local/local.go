// Package local implements the backend contract on top of the gorm
// repositories, with sessions held in a SessionStore and auth changes fanned
// out over a bus.
package local

import (
	"gorm.io/gorm"

	"github.com/yungbote/learnhub/internal/backend"
	"github.com/yungbote/learnhub/internal/data/repos"
	"github.com/yungbote/learnhub/internal/pkg/logger"
	"github.com/yungbote/learnhub/internal/realtime/bus"
)

type Repos struct {
	User        repos.UserRepo
	UserProfile repos.UserProfileRepo
	UserToken   repos.UserTokenRepo
	Course      repos.CourseRepo
	Enrollment  repos.EnrollmentRepo
	Review      repos.ReviewRepo
}

func NewRepos(db *gorm.DB, log *logger.Logger) Repos {
	return Repos{
		User:        repos.NewUserRepo(db, log),
		UserProfile: repos.NewUserProfileRepo(db, log),
		UserToken:   repos.NewUserTokenRepo(db, log),
		Course:      repos.NewCourseRepo(db, log),
		Enrollment:  repos.NewEnrollmentRepo(db, log),
		Review:      repos.NewReviewRepo(db, log),
	}
}

// New wires a complete backend. The returned *Auth must be started to
// receive remote auth events and closed on shutdown.
func New(db *gorm.DB, log *logger.Logger, r Repos, store SessionStore, eventBus bus.Bus, cfg AuthConfig) (backend.Backend, *Auth, error) {
	auth, err := NewAuth(db, log, r.User, r.UserProfile, r.UserToken, store, eventBus, cfg)
	if err != nil {
		return backend.Backend{}, nil, err
	}
	return backend.Backend{
		Auth:        auth,
		Profiles:    &Profiles{repo: r.UserProfile},
		Courses:     &Courses{repo: r.Course},
		Enrollments: &Enrollments{repo: r.Enrollment},
		Reviews:     &Reviews{repo: r.Review},
	}, auth, nil
}
