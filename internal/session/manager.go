// Package session owns the authenticated identity and its profile. It is the
// only component that talks to backend.Auth; the others ask it who is
// signed in on every call and subscribe to learn when that changes.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"

	"github.com/yungbote/learnhub/internal/backend"
	types "github.com/yungbote/learnhub/internal/domain"
	"github.com/yungbote/learnhub/internal/observability"
	"github.com/yungbote/learnhub/internal/pkg/apierr"
	"github.com/yungbote/learnhub/internal/pkg/logger"
	"github.com/yungbote/learnhub/internal/pkg/seqguard"
)

const component = "session"

// State is a snapshot handed to subscribers. Identity is nil when signed
// out; Profile may be nil for a signed-in user who has none yet.
type State struct {
	Identity *backend.Identity
	Profile  *types.UserProfile
	Ready    bool
}

type SignUpResult struct {
	Identity *backend.Identity
	// ConfirmationRequired means the account exists but no session was
	// issued; the user must confirm their email and then sign in.
	ConfirmationRequired bool
}

// ProfilePatch updates only the non-nil fields.
type ProfilePatch struct {
	FullName  *string        `validate:"omitempty,max=120"`
	AvatarURL *string        `validate:"omitempty,url,max=2048"`
	Bio       *string        `validate:"omitempty,max=2000"`
	Metadata  map[string]any `validate:"-"`
}

type credentials struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required"`
	FullName string `validate:"max=120"`
}

// establishment is one sign-in of one user. Its profile load runs once and
// done closes when it finishes, whatever the outcome.
type establishment struct {
	userID uuid.UUID
	ticket uint64
	done   chan struct{}
}

type Manager struct {
	log      *logger.Logger
	auth     backend.Auth
	profiles backend.Profiles
	validate *validator.Validate

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.RWMutex
	identity *backend.Identity
	profile  *types.UserProfile
	current  *establishment
	guard    *seqguard.Guard

	restoreOnce sync.Once
	restoreErr  error
	ready       chan struct{}
	readyOnce   sync.Once

	loads singleflight.Group

	// notifyMu orders deliveries: each snapshot is taken and handed out
	// under it, so subscribers see changes in order and end on the latest.
	notifyMu sync.Mutex
	subsMu   sync.Mutex
	subs     map[int]func(State)
	nextSub  int

	unsubscribeAuth func()
}

func NewManager(log *logger.Logger, auth backend.Auth, profiles backend.Profiles) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		log:      log.With("service", "SessionManager"),
		auth:     auth,
		profiles: profiles,
		validate: validator.New(),
		ctx:      ctx,
		cancel:   cancel,
		guard:    seqguard.New(),
		ready:    make(chan struct{}),
		subs:     map[int]func(State){},
	}
	m.unsubscribeAuth = auth.OnAuthStateChange(m.onAuthChange)
	return m
}

// RestoreSession asks the backend for a persisted session. It runs once per
// Manager; later calls return the first call's error. Ready closes when it
// finishes even if the backend failed, since "unknown" is then treated as
// signed out.
func (m *Manager) RestoreSession(ctx context.Context) error {
	m.restoreOnce.Do(func() {
		ctx, finish := observability.Track(ctx, component, "RestoreSession")
		s, err := m.auth.GetSession(ctx)
		if err != nil {
			m.log.Warn("Session restore failed, continuing signed out", "error", err)
			m.restoreErr = apierr.Unavailable("session.RestoreSession", err)
		} else if s != nil {
			m.establish(s.User)
		}
		finish(m.restoreErr)
		m.readyOnce.Do(func() { close(m.ready) })
		m.notify()
	})
	return m.restoreErr
}

// Ready closes once RestoreSession has produced a definitive answer.
func (m *Manager) Ready() <-chan struct{} { return m.ready }

func (m *Manager) WaitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) SignUp(ctx context.Context, email, password, fullName string) (res *SignUpResult, err error) {
	const op = "session.SignUp"
	ctx, finish := observability.Track(ctx, component, "SignUp")
	defer func() { finish(err) }()

	in := credentials{Email: strings.TrimSpace(email), Password: password, FullName: strings.TrimSpace(fullName)}
	if verr := m.validate.Struct(in); verr != nil {
		return nil, apierr.New(apierr.CodeValidation, op, verr)
	}
	out, err := m.auth.SignUp(ctx, in.Email, in.Password, map[string]any{"full_name": in.FullName})
	if err != nil {
		return nil, apierr.Unavailable(op, err)
	}

	id := out.User
	if out.Session == nil {
		m.log.Info("Sign up requires email confirmation", "user_id", id.ID)
		return &SignUpResult{Identity: &id, ConfirmationRequired: true}, nil
	}
	if err := m.await(ctx, m.establish(out.Session.User)); err != nil {
		return nil, err
	}
	return &SignUpResult{Identity: m.Identity()}, nil
}

// SignIn leaves the current state untouched when it fails.
func (m *Manager) SignIn(ctx context.Context, email, password string) (id *backend.Identity, err error) {
	const op = "session.SignIn"
	ctx, finish := observability.Track(ctx, component, "SignIn")
	defer func() { finish(err) }()

	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apierr.Newf(apierr.CodeValidation, op, "email and password are required")
	}
	s, err := m.auth.SignInWithPassword(ctx, strings.TrimSpace(email), password)
	if err != nil {
		return nil, apierr.Unavailable(op, err)
	}
	if err := m.await(ctx, m.establish(s.User)); err != nil {
		return nil, err
	}
	return m.Identity(), nil
}

// SignOut clears local state even when the backend call fails; that failure
// is still returned so it can be shown.
func (m *Manager) SignOut(ctx context.Context) (err error) {
	ctx, finish := observability.Track(ctx, component, "SignOut")
	defer func() { finish(err) }()

	err = m.auth.SignOut(ctx)
	m.clear()
	if err != nil {
		m.log.Warn("Backend sign out failed, local session cleared anyway", "error", err)
		return apierr.Unavailable("session.SignOut", err)
	}
	return nil
}

func (m *Manager) UpdateProfile(ctx context.Context, patch ProfilePatch) (p *types.UserProfile, err error) {
	const op = "session.UpdateProfile"
	ctx, finish := observability.Track(ctx, component, "UpdateProfile")
	defer func() { finish(err) }()

	if !m.IsAuthenticated() {
		return nil, apierr.Newf(apierr.CodeNotAuthenticated, op, "no user signed in")
	}
	if verr := m.validate.Struct(patch); verr != nil {
		return nil, apierr.New(apierr.CodeValidation, op, verr)
	}

	m.mu.Lock()
	if m.identity == nil {
		m.mu.Unlock()
		return nil, apierr.Newf(apierr.CodeNotAuthenticated, op, "no user signed in")
	}
	userID := m.identity.ID
	base := cloneProfile(m.profile)
	ticket := m.guard.Next()
	m.mu.Unlock()

	if base == nil {
		existing, gerr := m.profiles.GetByID(ctx, userID)
		switch {
		case gerr == nil:
			base = existing
		case errors.Is(gerr, apierr.ErrNotFound):
			base = &types.UserProfile{UserID: userID}
		default:
			return nil, apierr.Unavailable(op, gerr)
		}
	}
	next, err := applyPatch(base, patch)
	if err != nil {
		return nil, apierr.New(apierr.CodeValidation, op, err)
	}
	next.UserID = userID

	if _, err := m.profiles.Upsert(ctx, next); err != nil {
		return nil, apierr.Unavailable(op, err)
	}
	fresh, err := m.profiles.GetByID(ctx, userID)
	if err != nil {
		return nil, apierr.Unavailable(op, err)
	}

	m.mu.Lock()
	applied := m.identity != nil && m.identity.ID == userID && m.guard.Current(ticket)
	if applied {
		m.profile = fresh
	}
	m.mu.Unlock()
	if !applied {
		observability.StaleDiscarded("profile")
	} else {
		m.notify()
	}
	return cloneProfile(fresh), nil
}

func (m *Manager) Identity() *backend.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneIdentity(m.identity)
}

func (m *Manager) Profile() *types.UserProfile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneProfile(m.profile)
}

// UserID returns uuid.Nil when signed out.
func (m *Manager) UserID() uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.identity == nil {
		return uuid.Nil
	}
	return m.identity.ID
}

func (m *Manager) IsAuthenticated() bool { return m.UserID() != uuid.Nil }

func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stateLocked()
}

// Subscribe calls fn with a fresh State after every change. fn runs on the
// goroutine that caused the change, must not block and must not call
// SignIn, SignUp, SignOut or UpdateProfile.
func (m *Manager) Subscribe(fn func(State)) (unsubscribe func()) {
	m.subsMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subsMu.Lock()
			delete(m.subs, id)
			m.subsMu.Unlock()
		})
	}
}

// Close detaches from the backend and abandons in-flight profile loads.
func (m *Manager) Close() {
	if m.unsubscribeAuth != nil {
		m.unsubscribeAuth()
	}
	m.cancel()
	m.guard.Close()
	m.wg.Wait()
}

func (m *Manager) onAuthChange(change backend.AuthChange) {
	observability.AuthEvent(string(change.Event))
	m.log.Debug("Auth state changed", "event", change.Event)

	if change.Event == backend.EventSignedOut || change.Session == nil {
		m.clear()
		return
	}
	m.establish(change.Session.User)
}

// establish makes id the current identity. A repeat for the user already
// established only refreshes identity fields and shares the pending load.
func (m *Manager) establish(id backend.Identity) <-chan struct{} {
	m.mu.Lock()
	if m.current != nil && m.current.userID == id.ID {
		m.identity = cloneIdentity(&id)
		done := m.current.done
		m.mu.Unlock()
		m.notify()
		return done
	}

	est := &establishment{userID: id.ID, ticket: m.guard.Next(), done: make(chan struct{})}
	m.identity = cloneIdentity(&id)
	m.profile = nil
	m.current = est
	m.wg.Add(1)
	m.mu.Unlock()
	m.notify()

	go m.loadProfile(est)
	return est.done
}

func (m *Manager) loadProfile(est *establishment) {
	defer m.wg.Done()
	defer close(est.done)

	v, err, _ := m.loads.Do(est.userID.String(), func() (interface{}, error) {
		ctx, finish := observability.Track(m.ctx, component, "LoadProfile",
			attribute.String("user_id", est.userID.String()))
		p, err := m.profiles.GetByID(ctx, est.userID)
		finish(err)
		return p, err
	})

	var profile *types.UserProfile
	switch {
	case err == nil:
		profile, _ = v.(*types.UserProfile)
	case errors.Is(err, apierr.ErrNotFound):
		// New users have no profile row yet.
	default:
		m.log.Warn("Profile fetch failed, keeping session without profile", "user_id", est.userID, "error", err)
		return
	}

	m.mu.Lock()
	applied := m.current == est && m.guard.Current(est.ticket)
	if applied {
		m.profile = cloneProfile(profile)
	}
	m.mu.Unlock()
	if !applied {
		observability.StaleDiscarded("profile")
		return
	}
	m.notify()
}

func (m *Manager) clear() {
	m.mu.Lock()
	changed := m.identity != nil || m.profile != nil
	m.identity = nil
	m.profile = nil
	m.current = nil
	m.guard.Invalidate()
	m.mu.Unlock()
	if changed {
		m.notify()
	}
}

func (m *Manager) await(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return apierr.New(apierr.CodeBackendUnavailable, "session.await", ctx.Err())
	}
}

func (m *Manager) stateLocked() State {
	ready := false
	select {
	case <-m.ready:
		ready = true
	default:
	}
	return State{
		Identity: cloneIdentity(m.identity),
		Profile:  cloneProfile(m.profile),
		Ready:    ready,
	}
}

func (m *Manager) notify() {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	st := m.State()
	m.subsMu.Lock()
	fns := make([]func(State), 0, len(m.subs))
	for i := 0; i < m.nextSub; i++ {
		if fn, ok := m.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	m.subsMu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

func applyPatch(base *types.UserProfile, patch ProfilePatch) (*types.UserProfile, error) {
	next := cloneProfile(base)
	if patch.FullName != nil {
		next.FullName = strings.TrimSpace(*patch.FullName)
	}
	if patch.AvatarURL != nil {
		next.AvatarURL = strings.TrimSpace(*patch.AvatarURL)
	}
	if patch.Bio != nil {
		next.Bio = *patch.Bio
	}
	if patch.Metadata != nil {
		raw, err := json.Marshal(patch.Metadata)
		if err != nil {
			return nil, err
		}
		next.Metadata = datatypes.JSON(raw)
	}
	return next, nil
}

func cloneIdentity(id *backend.Identity) *backend.Identity {
	if id == nil {
		return nil
	}
	cp := *id
	if id.Metadata != nil {
		cp.Metadata = append(json.RawMessage(nil), id.Metadata...)
	}
	return &cp
}

func cloneProfile(p *types.UserProfile) *types.UserProfile {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Metadata != nil {
		cp.Metadata = append(datatypes.JSON(nil), p.Metadata...)
	}
	return &cp
}
