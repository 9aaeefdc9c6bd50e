package app

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/learnhub/internal/backend"
	"github.com/yungbote/learnhub/internal/backend/local"
	"github.com/yungbote/learnhub/internal/catalog"
	"github.com/yungbote/learnhub/internal/enrollment"
	"github.com/yungbote/learnhub/internal/pkg/logger"
	"github.com/yungbote/learnhub/internal/reviews"
	"github.com/yungbote/learnhub/internal/session"
)

type Services struct {
	Backend    backend.Backend
	Auth       *local.Auth
	Session    *session.Manager
	Catalog    *catalog.Engine
	Enrollment *enrollment.Tracker

	log *logger.Logger
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet Repos, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	var store local.SessionStore
	if clients.Redis != nil {
		store = local.NewRedisSessionStore(clients.Redis, cfg.SessionClientKey, cfg.RefreshTokenTTL)
	} else {
		store = local.NewMemorySessionStore()
	}

	be, auth, err := local.New(db, log, reposet, store, clients.Bus, local.AuthConfig{
		JWTSecretKey:             cfg.JWTSecretKey,
		Issuer:                   cfg.JWTIssuer,
		AccessTTL:                cfg.AccessTokenTTL,
		RefreshTTL:               cfg.RefreshTokenTTL,
		RequireEmailConfirmation: cfg.RequireEmailConfirmation,
		MinPasswordLength:        cfg.MinPasswordLength,
		ClientKey:                cfg.SessionClientKey,
		RefreshInterval:          cfg.AuthRefreshInterval,
	})
	if err != nil {
		return Services{}, fmt.Errorf("init backend: %w", err)
	}

	sessionManager := session.NewManager(log, be.Auth, be.Profiles)
	return Services{
		Backend:    be,
		Auth:       auth,
		Session:    sessionManager,
		Catalog:    catalog.NewEngine(log, be.Courses),
		Enrollment: enrollment.NewTracker(log, be.Enrollments, sessionManager),
		log:        log,
	}, nil
}

// Reviews returns an engine for one course. Callers close it when done.
func (s *Services) Reviews(courseID uuid.UUID) *reviews.Engine {
	return reviews.NewEngine(s.log, s.Backend.Reviews, s.Session, courseID)
}

func (s *Services) Close() {
	if s == nil {
		return
	}
	if s.Enrollment != nil {
		s.Enrollment.Close()
	}
	if s.Catalog != nil {
		s.Catalog.Close()
	}
	if s.Session != nil {
		s.Session.Close()
	}
	if s.Auth != nil {
		s.Auth.Close()
	}
}
