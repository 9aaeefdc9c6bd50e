// Package backend is the contract the core components consume: an auth
// service plus four typed collections. Implementations report failures as
// *apierr.Error values; anything uncoded is treated as BackendUnavailable.
package backend

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	types "github.com/yungbote/learnhub/internal/domain"
)

type Identity struct {
	ID       uuid.UUID       `json:"id"`
	Email    string          `json:"email"`
	Metadata json.RawMessage `json:"user_metadata,omitempty"`
}

type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         Identity  `json:"user"`
}

type AuthEvent string

const (
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEvent = "USER_UPDATED"
)

// AuthChange is delivered to OnAuthStateChange listeners. Session is nil for
// EventSignedOut.
type AuthChange struct {
	Event   AuthEvent
	Session *Session
}

// SignUpResult carries a nil Session when the user must confirm their email
// before signing in.
type SignUpResult struct {
	User    Identity
	Session *Session
}

type Auth interface {
	// GetSession returns nil without error when there is no valid session.
	GetSession(ctx context.Context) (*Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error)
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context) error
	// OnAuthStateChange registers fn for every later auth change and returns
	// a function that removes it. fn may run on any goroutine.
	OnAuthStateChange(fn func(AuthChange)) (unsubscribe func())
}

type Profiles interface {
	// GetByID returns apierr NotFound when the user has no profile row.
	GetByID(ctx context.Context, userID uuid.UUID) (*types.UserProfile, error)
	Upsert(ctx context.Context, profile *types.UserProfile) (*types.UserProfile, error)
}

type Courses interface {
	List(ctx context.Context, q types.CourseQuery) ([]*types.Course, error)
	GetByID(ctx context.Context, courseID uuid.UUID) (*types.Course, error)
}

type Enrollments interface {
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*types.Enrollment, error)
	// Insert returns apierr Conflict when the pair already exists.
	Insert(ctx context.Context, e *types.Enrollment) (*types.Enrollment, error)
	// UpdateProgress returns apierr NotFound when the pair is not enrolled.
	UpdateProgress(ctx context.Context, userID, courseID uuid.UUID, progress int, completedAt *time.Time) error
}

type Reviews interface {
	ListByCourse(ctx context.Context, courseID uuid.UUID) ([]*types.Review, error)
	// Insert returns apierr Conflict when the user already reviewed the course.
	Insert(ctx context.Context, r *types.Review) (*types.Review, error)
	Update(ctx context.Context, reviewID uuid.UUID, rating int, body string) error
	// IncrementHelpful adds exactly one to helpful_count atomically.
	IncrementHelpful(ctx context.Context, reviewID uuid.UUID) error
}

type Backend struct {
	Auth        Auth
	Profiles    Profiles
	Courses     Courses
	Enrollments Enrollments
	Reviews     Reviews
}
