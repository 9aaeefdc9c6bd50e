package local

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/learnhub/internal/backend"
	"github.com/yungbote/learnhub/internal/data/repos"
	types "github.com/yungbote/learnhub/internal/domain"
	"github.com/yungbote/learnhub/internal/pkg/apierr"
	"github.com/yungbote/learnhub/internal/pkg/logger"
	"github.com/yungbote/learnhub/internal/realtime/bus"
)

type AuthConfig struct {
	JWTSecretKey             string
	Issuer                   string
	AccessTTL                time.Duration
	RefreshTTL               time.Duration
	RequireEmailConfirmation bool
	MinPasswordLength        int
	// ClientKey scopes the stored session and bus events to one client.
	ClientKey string
	// RefreshInterval is how often the session is checked for expiry; zero
	// disables automatic refresh.
	RefreshInterval time.Duration
}

type JWTClaims struct {
	Email     string `json:"email"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

type signUpInput struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,max=72"`
}

// Auth issues HS256 access tokens backed by a user_token row per session.
// Deleting the row revokes the session even if the access token has not
// yet expired.
type Auth struct {
	db       *gorm.DB
	log      *logger.Logger
	users    repos.UserRepo
	profiles repos.UserProfileRepo
	tokens   repos.UserTokenRepo
	store    SessionStore
	bus      bus.Bus
	cfg      AuthConfig
	origin   string
	validate *validator.Validate
	now      func() time.Time

	mu        sync.Mutex
	listeners map[int]func(backend.AuthChange)
	nextID    int

	refreshMu sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewAuth(
	db *gorm.DB,
	log *logger.Logger,
	users repos.UserRepo,
	profiles repos.UserProfileRepo,
	tokens repos.UserTokenRepo,
	store SessionStore,
	eventBus bus.Bus,
	cfg AuthConfig,
) (*Auth, error) {
	if strings.TrimSpace(cfg.JWTSecretKey) == "" {
		return nil, fmt.Errorf("missing JWT secret key")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = 8
	}
	if cfg.ClientKey == "" {
		cfg.ClientKey = "default"
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "learnhub"
	}
	if store == nil {
		store = NewMemorySessionStore()
	}
	if eventBus == nil {
		eventBus = bus.NewMemoryBus()
	}
	return &Auth{
		db:        db,
		log:       log.With("service", "LocalAuth"),
		users:     users,
		profiles:  profiles,
		tokens:    tokens,
		store:     store,
		bus:       eventBus,
		cfg:       cfg,
		origin:    uuid.NewString(),
		validate:  validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
		listeners: map[int]func(backend.AuthChange){},
	}, nil
}

// Start subscribes to remote auth events and, when configured, keeps the
// session fresh in the background until Close.
func (a *Auth) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	if err := a.bus.StartForwarder(runCtx, a.onBusMessage); err != nil {
		cancel()
		return fmt.Errorf("start auth forwarder: %w", err)
	}
	if a.cfg.RefreshInterval > 0 {
		a.wg.Add(1)
		go a.refreshLoop(runCtx)
	}
	return nil
}

func (a *Auth) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}

func (a *Auth) GetSession(ctx context.Context) (*backend.Session, error) {
	const op = "local.Auth.GetSession"
	s, err := a.store.Load(ctx)
	if err != nil {
		return nil, apierr.Unavailable(op, err)
	}
	if s == nil {
		return nil, nil
	}

	claims, perr := a.parseAccessToken(s.AccessToken)
	if perr != nil {
		a.log.Warn("Discarding stored session with bad access token", "error", perr)
		_ = a.store.Clear(ctx)
		return nil, nil
	}
	sid, perr := uuid.Parse(claims.SessionID)
	if perr != nil {
		_ = a.store.Clear(ctx)
		return nil, nil
	}
	row, err := a.tokens.GetByID(ctx, nil, sid)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Revoked elsewhere.
		_ = a.store.Clear(ctx)
		return nil, nil
	}
	if err != nil {
		return nil, mapErr(op, err)
	}
	if !row.RefreshExpiresAt.After(a.now()) {
		_ = a.tokens.DeleteByIDs(ctx, nil, []uuid.UUID{sid})
		_ = a.store.Clear(ctx)
		return nil, nil
	}
	if !s.ExpiresAt.After(a.now()) {
		refreshed, rerr := a.Refresh(ctx)
		if apierr.CodeOf(rerr) == apierr.CodeNotAuthenticated {
			return nil, nil
		}
		return refreshed, rerr
	}
	return s, nil
}

func (a *Auth) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*backend.SignUpResult, error) {
	const op = "local.Auth.SignUp"
	email = strings.ToLower(strings.TrimSpace(email))
	if err := a.validate.Struct(signUpInput{Email: email, Password: password}); err != nil {
		return nil, apierr.New(apierr.CodeValidation, op, err)
	}
	if len(password) < a.cfg.MinPasswordLength {
		return nil, apierr.Newf(apierr.CodeWeakPassword, op, "password must be at least %d characters", a.cfg.MinPasswordLength)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apierr.New(apierr.CodeBackendUnavailable, op, fmt.Errorf("hash password: %w", err))
	}
	rawMeta, err := json.Marshal(metadata)
	if err != nil {
		return nil, apierr.New(apierr.CodeValidation, op, fmt.Errorf("metadata: %w", err))
	}

	user := &types.User{
		ID:           uuid.New(),
		Email:        email,
		Password:     string(hashed),
		UserMetadata: datatypes.JSON(rawMeta),
	}
	if !a.cfg.RequireEmailConfirmation {
		now := a.now()
		user.EmailConfirmedAt = &now
	}

	var session *backend.Session
	txErr := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := a.users.EmailExists(ctx, tx, email)
		if err != nil {
			return err
		}
		if exists {
			return apierr.Newf(apierr.CodeDuplicateEmail, op, "email already registered")
		}
		if _, err := a.users.Create(ctx, tx, []*types.User{user}); err != nil {
			return err
		}
		profile := &types.UserProfile{UserID: user.ID}
		if name, ok := metadata["full_name"].(string); ok {
			profile.FullName = strings.TrimSpace(name)
		}
		if _, err := a.profiles.Upsert(ctx, tx, profile); err != nil {
			return err
		}
		if a.cfg.RequireEmailConfirmation {
			return nil
		}
		session, err = a.issueSession(ctx, tx, user)
		return err
	})
	if errors.Is(txErr, gorm.ErrDuplicatedKey) {
		return nil, apierr.New(apierr.CodeDuplicateEmail, op, txErr)
	}
	if txErr != nil {
		a.log.Warn("Sign up failed", "error", txErr)
		return nil, mapErr(op, txErr)
	}

	result := &backend.SignUpResult{User: identityOf(user)}
	if session == nil {
		a.log.Info("User registered, awaiting email confirmation", "user_id", user.ID)
		return result, nil
	}
	if err := a.store.Save(ctx, session); err != nil {
		return nil, apierr.Unavailable(op, err)
	}
	result.Session = session
	a.emit(ctx, backend.EventSignedIn, session)
	return result, nil
}

// ConfirmEmail marks the address confirmed so password sign-in succeeds.
func (a *Auth) ConfirmEmail(ctx context.Context, email string) error {
	const op = "local.Auth.ConfirmEmail"
	u, err := a.users.GetByEmail(ctx, nil, email)
	if err != nil {
		return mapErr(op, err)
	}
	return mapErr(op, a.users.MarkEmailConfirmed(ctx, nil, u.ID, a.now()))
}

func (a *Auth) SignInWithPassword(ctx context.Context, email, password string) (*backend.Session, error) {
	const op = "local.Auth.SignInWithPassword"
	u, err := a.users.GetByEmail(ctx, nil, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apierr.Newf(apierr.CodeInvalidCredentials, op, "invalid login credentials")
	}
	if err != nil {
		return nil, mapErr(op, err)
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
		return nil, apierr.Newf(apierr.CodeInvalidCredentials, op, "invalid login credentials")
	}
	if a.cfg.RequireEmailConfirmation && u.EmailConfirmedAt == nil {
		return nil, apierr.Newf(apierr.CodeEmailNotConfirmed, op, "email not confirmed")
	}

	var session *backend.Session
	txErr := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		s, err := a.issueSession(ctx, tx, u)
		if err != nil {
			return err
		}
		session = s
		return a.users.TouchLastSignIn(ctx, tx, u.ID, a.now())
	})
	if txErr != nil {
		a.log.Warn("Sign in failed", "error", txErr)
		return nil, mapErr(op, txErr)
	}

	// Replacing the stored session leaves the previous one dangling; revoke it.
	if prev, _ := a.store.Load(ctx); prev != nil {
		a.revoke(ctx, prev)
	}
	if err := a.store.Save(ctx, session); err != nil {
		return nil, apierr.Unavailable(op, err)
	}
	a.emit(ctx, backend.EventSignedIn, session)
	return session, nil
}

// SignOut always clears the stored session and notifies listeners; the
// returned error only reports whether server-side revocation succeeded.
func (a *Auth) SignOut(ctx context.Context) error {
	const op = "local.Auth.SignOut"
	s, loadErr := a.store.Load(ctx)
	var revokeErr error
	if s != nil {
		revokeErr = a.revoke(ctx, s)
	}
	clearErr := a.store.Clear(ctx)
	a.emit(ctx, backend.EventSignedOut, nil)

	switch {
	case revokeErr != nil:
		return mapErr(op, revokeErr)
	case loadErr != nil:
		return apierr.Unavailable(op, loadErr)
	case clearErr != nil:
		return apierr.Unavailable(op, clearErr)
	}
	return nil
}

// Refresh rotates the stored session's refresh token. A refresh token that
// is expired or no longer recognised signs the client out.
func (a *Auth) Refresh(ctx context.Context) (*backend.Session, error) {
	const op = "local.Auth.Refresh"
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	s, err := a.store.Load(ctx)
	if err != nil {
		return nil, apierr.Unavailable(op, err)
	}
	if s == nil {
		return nil, apierr.Newf(apierr.CodeNotAuthenticated, op, "no session")
	}

	row, err := a.tokens.GetByRefreshToken(ctx, nil, s.RefreshToken)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !row.RefreshExpiresAt.After(a.now())) {
		if row != nil {
			_ = a.tokens.DeleteByIDs(ctx, nil, []uuid.UUID{row.ID})
		}
		_ = a.store.Clear(ctx)
		a.emit(ctx, backend.EventSignedOut, nil)
		return nil, apierr.Newf(apierr.CodeNotAuthenticated, op, "refresh token expired or revoked")
	}
	if err != nil {
		return nil, mapErr(op, err)
	}

	users, err := a.users.GetByIDs(ctx, nil, []uuid.UUID{row.UserID})
	if err != nil {
		return nil, mapErr(op, err)
	}
	if len(users) == 0 {
		_ = a.store.Clear(ctx)
		a.emit(ctx, backend.EventSignedOut, nil)
		return nil, apierr.Newf(apierr.CodeNotAuthenticated, op, "user no longer exists")
	}

	now := a.now()
	newRefresh, err := randomToken()
	if err != nil {
		return nil, apierr.Unavailable(op, err)
	}
	accessExp := now.Add(a.cfg.AccessTTL)
	ok, err := a.tokens.Rotate(ctx, nil, row.ID, s.RefreshToken, newRefresh, accessExp, now.Add(a.cfg.RefreshTTL))
	if err != nil {
		return nil, mapErr(op, err)
	}
	if !ok {
		return nil, apierr.Newf(apierr.CodeConflict, op, "refresh token already rotated")
	}
	access, err := a.signAccessToken(users[0], row.ID, accessExp)
	if err != nil {
		return nil, apierr.Unavailable(op, err)
	}

	next := &backend.Session{
		AccessToken:  access,
		RefreshToken: newRefresh,
		ExpiresAt:    accessExp,
		User:         identityOf(users[0]),
	}
	if err := a.store.Save(ctx, next); err != nil {
		return nil, apierr.Unavailable(op, err)
	}
	a.emit(ctx, backend.EventTokenRefreshed, next)
	return next, nil
}

func (a *Auth) OnAuthStateChange(fn func(backend.AuthChange)) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	a.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.listeners, id)
			a.mu.Unlock()
		})
	}
}

func (a *Auth) issueSession(ctx context.Context, tx *gorm.DB, u *types.User) (*backend.Session, error) {
	now := a.now()
	refresh, err := randomToken()
	if err != nil {
		return nil, err
	}
	row := &types.UserToken{
		ID:               uuid.New(),
		UserID:           u.ID,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(a.cfg.AccessTTL),
		RefreshExpiresAt: now.Add(a.cfg.RefreshTTL),
	}
	if _, err := a.tokens.Create(ctx, tx, []*types.UserToken{row}); err != nil {
		return nil, fmt.Errorf("create user token: %w", err)
	}
	access, err := a.signAccessToken(u, row.ID, row.AccessExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &backend.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    row.AccessExpiresAt,
		User:         identityOf(u),
	}, nil
}

func (a *Auth) signAccessToken(u *types.User, sessionID uuid.UUID, exp time.Time) (string, error) {
	claims := JWTClaims{
		Email:     u.Email,
		SessionID: sessionID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			Issuer:    a.cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(a.now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.cfg.JWTSecretKey))
}

// parseAccessToken verifies the signature and issuer but not expiry, so an
// expired token still resolves to its session id.
func (a *Auth) parseAccessToken(tokenString string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(a.cfg.JWTSecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid JWT token")
	}
	if claims.Issuer != a.cfg.Issuer {
		return nil, fmt.Errorf("unexpected issuer %q", claims.Issuer)
	}
	return claims, nil
}

func (a *Auth) revoke(ctx context.Context, s *backend.Session) error {
	row, err := a.tokens.GetByRefreshToken(ctx, nil, s.RefreshToken)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return a.tokens.DeleteByIDs(ctx, nil, []uuid.UUID{row.ID})
}

// emit notifies local listeners, then tells other processes sharing the
// client key to reload.
func (a *Auth) emit(ctx context.Context, event backend.AuthEvent, s *backend.Session) {
	change := backend.AuthChange{Event: event}
	msg := bus.Message{Origin: a.origin, ClientKey: a.cfg.ClientKey, Event: string(event), At: a.now()}
	if s != nil {
		cp := *s
		change.Session = &cp
		msg.UserID = s.User.ID.String()
	}
	a.notify(change)

	if err := a.bus.Publish(context.WithoutCancel(ctx), msg); err != nil {
		a.log.Warn("Failed to publish auth event", "event", event, "error", err)
	}
}

func (a *Auth) notify(change backend.AuthChange) {
	a.mu.Lock()
	fns := make([]func(backend.AuthChange), 0, len(a.listeners))
	for i := 0; i < a.nextID; i++ {
		if fn, ok := a.listeners[i]; ok {
			fns = append(fns, fn)
		}
	}
	a.mu.Unlock()
	for _, fn := range fns {
		fn(change)
	}
}

func (a *Auth) onBusMessage(m bus.Message) {
	if m.Origin == a.origin || m.ClientKey != a.cfg.ClientKey {
		return
	}
	event := backend.AuthEvent(m.Event)
	if event == backend.EventSignedOut {
		a.notify(backend.AuthChange{Event: event})
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := a.store.Load(ctx)
	if err != nil {
		a.log.Warn("Failed to reload session after remote auth event", "event", event, "error", err)
		return
	}
	if s == nil {
		a.notify(backend.AuthChange{Event: backend.EventSignedOut})
		return
	}
	a.notify(backend.AuthChange{Event: event, Session: s})
}

func (a *Auth) refreshLoop(ctx context.Context) {
	defer a.wg.Done()
	ticker := time.NewTicker(a.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		s, err := a.store.Load(ctx)
		if err != nil || s == nil {
			continue
		}
		// Refresh one tick ahead so the access token never lapses between checks.
		if s.ExpiresAt.After(a.now().Add(2 * a.cfg.RefreshInterval)) {
			continue
		}
		if _, err := a.Refresh(ctx); err != nil && apierr.CodeOf(err) != apierr.CodeNotAuthenticated {
			a.log.Warn("Background session refresh failed", "error", err)
		}
	}
}

func identityOf(u *types.User) backend.Identity {
	return backend.Identity{
		ID:       u.ID,
		Email:    u.Email,
		Metadata: json.RawMessage(u.UserMetadata),
	}
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
